// Package persistence defines durable backends for session state and the
// background flusher that writes to them without blocking the engine.
package persistence

import (
	"context"

	"github.com/okian/versus/internal/adapters/repository"
	"github.com/okian/versus/internal/domain/model"
	"github.com/okian/versus/internal/domain/rating"
)

// State is the full persisted session state.
type State struct {
	Ratings          map[model.EntityID]rating.Record `json:"ratings"`
	History          []model.OutcomeRecord            `json:"history"`
	Tasks            []model.RefinementTask           `json:"tasks"`
	Frozen           []repository.FreezeKey           `json:"frozen"`
	TotalComparisons int                              `json:"total_comparisons"`
}

// Backend stores session state durably. Implementations must be safe to
// call frequently and idempotently; the engine treats them as eventually
// consistent and never blocks foreground work on them.
type Backend interface {
	SaveRatings(ctx context.Context, ratings map[model.EntityID]rating.Record) error
	LoadRatings(ctx context.Context) (map[model.EntityID]rating.Record, error)

	SaveHistory(ctx context.Context, history []model.OutcomeRecord) error
	LoadHistory(ctx context.Context) ([]model.OutcomeRecord, error)

	SaveTasks(ctx context.Context, tasks []model.RefinementTask) error
	LoadTasks(ctx context.Context) ([]model.RefinementTask, error)

	SaveFrozen(ctx context.Context, frozen []repository.FreezeKey) error
	LoadFrozen(ctx context.Context) ([]repository.FreezeKey, error)
}

// SaveAll writes a full state snapshot through the per-kind methods.
func SaveAll(ctx context.Context, b Backend, state State) error {
	if err := b.SaveRatings(ctx, state.Ratings); err != nil {
		return err
	}
	if err := b.SaveHistory(ctx, state.History); err != nil {
		return err
	}
	if err := b.SaveTasks(ctx, state.Tasks); err != nil {
		return err
	}
	return b.SaveFrozen(ctx, state.Frozen)
}

// Package repository defines the rating store: the single source of truth
// for per-entity skill estimates and tier freeze flags during a session.
package repository

import (
	"context"

	"github.com/okian/versus/internal/domain/model"
	"github.com/okian/versus/internal/domain/rating"
)

// FreezeKey identifies a per-(entity, tier) freeze flag.
type FreezeKey struct {
	ID   model.EntityID `json:"id"`
	Tier int            `json:"tier"`
}

// Store provides read/write access to rating state. The in-memory state is
// authoritative for the running session; persistence is scheduled on
// mutation and never blocks.
type Store interface {
	// Get returns the record for id, or the default prior if absent.
	// It never errors.
	Get(ctx context.Context, id model.EntityID) rating.Record

	// Put overwrites the record for id. Only the outcome processor calls this.
	Put(ctx context.Context, id model.EntityID, rec rating.Record)

	// All returns a copy of every stored record.
	All(ctx context.Context) map[model.EntityID]rating.Record

	// RatedCount returns the number of entities with at least one comparison.
	RatedCount(ctx context.Context) int

	// Freeze sets the freeze flag for (id, tier). Flags are only ever
	// cleared by Reset.
	Freeze(ctx context.Context, id model.EntityID, tier int)

	// IsFrozen reports whether (id, tier) is frozen.
	IsFrozen(ctx context.Context, id model.EntityID, tier int) bool

	// FrozenKeys returns a copy of all set freeze flags.
	FrozenKeys(ctx context.Context) []FreezeKey

	// Reset clears every record and freeze flag back to the prior.
	Reset(ctx context.Context)
}

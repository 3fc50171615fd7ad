// Package outcome records comparison results: it expands a group judgment
// into pairwise rating updates, appends to the session history, and applies
// the tier freeze policy to losers.
package outcome

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/versus/internal/adapters/repository"
	"github.com/okian/versus/internal/domain/model"
	"github.com/okian/versus/internal/domain/rating"
	"github.com/okian/versus/internal/domain/recency"
	"github.com/okian/versus/pkg/logger"
	"github.com/okian/versus/pkg/metrics"
)

// Default freeze policy constants.
const (
	defaultTierSize             = 50
	defaultFreezeMinComparisons = 5
	defaultFreezeMinConfidence  = 60.0
)

// Result summarizes one processed outcome.
type Result struct {
	// Records holds the pairwise records appended to the history, in the
	// order they were derived from the group.
	Records []model.OutcomeRecord

	// Applied counts the records whose rating updates were written. A
	// record kept with Applied=false was skipped as numerically degenerate.
	Applied int

	// Frozen lists entities newly frozen for the active tier.
	Frozen []model.EntityID

	// TotalComparisons is the session total after this outcome.
	TotalComparisons int
}

// Processor applies outcomes to the rating store. One outcome counts as a
// single comparison regardless of how many pairwise updates it expands to.
type Processor struct {
	mu sync.Mutex

	store   repository.Store
	updater *rating.Updater
	memory  *recency.Memory
	log     logger.Logger

	tierSize             int
	freezeMinComparisons int
	freezeMinConfidence  float64

	history []model.OutcomeRecord
	marks   []int // index of each outcome's first record, for undo
	total   int

	now   func() time.Time
	newID func() string
}

// Option applies a configuration option to the Processor.
type Option func(*Processor)

// WithTierSize sets the tier scope used for freeze flags.
func WithTierSize(n int) Option {
	return func(p *Processor) {
		if n > 0 {
			p.tierSize = n
		}
	}
}

// WithFreezeThresholds sets the minimum comparison count and confidence
// percent a loser needs before it can be frozen out of the tier.
func WithFreezeThresholds(minComparisons int, minConfidence float64) Option {
	return func(p *Processor) {
		if minComparisons > 0 {
			p.freezeMinComparisons = minComparisons
		}
		if minConfidence > 0 {
			p.freezeMinConfidence = minConfidence
		}
	}
}

// WithClock injects the timestamp source, for tests.
func WithClock(now func() time.Time) Option {
	return func(p *Processor) {
		if now != nil {
			p.now = now
		}
	}
}

// WithIDGenerator injects the record id source, for tests.
func WithIDGenerator(newID func() string) Option {
	return func(p *Processor) {
		if newID != nil {
			p.newID = newID
		}
	}
}

// New creates a Processor with configuration options.
func New(store repository.Store, updater *rating.Updater, memory *recency.Memory, opts ...Option) *Processor {
	p := &Processor{
		store:                store,
		updater:              updater,
		memory:               memory,
		log:                  logger.Named("outcome"),
		tierSize:             defaultTierSize,
		freezeMinComparisons: defaultFreezeMinComparisons,
		freezeMinConfidence:  defaultFreezeMinConfidence,
		now:                  time.Now,
		newID:                uuid.NewString,
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// ProcessOutcome validates the judgment and applies it. Winners must be a
// non-empty strict subset of the group. Each (winner, loser) pair becomes
// one pairwise update; winner-vs-winner and loser-vs-loser pairs carry no
// information and are not expanded.
func (p *Processor) ProcessOutcome(ctx context.Context, group model.ComparisonGroup, winners []model.EntityID) (Result, error) {
	if err := validate(group, winners); err != nil {
		metrics.RecordInvalidOutcome()
		return Result{}, err
	}

	winnerSet := make(map[model.EntityID]struct{}, len(winners))
	for _, w := range winners {
		winnerSet[w] = struct{}{}
	}
	var losers []model.EntityID
	for _, id := range group.Members {
		if _, ok := winnerSet[id]; !ok {
			losers = append(losers, id)
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	res := Result{}
	ts := p.now().UTC()
	p.marks = append(p.marks, len(p.history))

	for _, w := range winners {
		for _, l := range losers {
			rec := p.applyPair(ctx, group, w, l, ts)
			p.history = append(p.history, rec)
			res.Records = append(res.Records, rec)
			if rec.Applied {
				res.Applied++
			}
		}
	}

	for _, l := range losers {
		if p.maybeFreeze(ctx, l) {
			res.Frozen = append(res.Frozen, l)
		}
	}

	p.memory.RememberGroup(group)
	p.total++
	res.TotalComparisons = p.total

	metrics.RecordOutcomeProcessed()
	metrics.UpdateRatedEntities(p.store.RatedCount(ctx))
	metrics.UpdateFrozenEntities(len(p.store.FrozenKeys(ctx)))

	return res, nil
}

// applyPair runs one pairwise update. A degenerate (non-finite) update is
// recorded but not applied, isolating numeric trouble to the single pair.
func (p *Processor) applyPair(ctx context.Context, group model.ComparisonGroup, winner, loser model.EntityID, ts time.Time) model.OutcomeRecord {
	preW := p.store.Get(ctx, winner)
	preL := p.store.Get(ctx, loser)

	rec := model.OutcomeRecord{
		ID:        p.newID(),
		Winner:    winner,
		Loser:     loser,
		Group:     append([]model.EntityID(nil), group.Members...),
		PreWinner: toState(preW),
		PreLoser:  toState(preL),
		Timestamp: ts,
	}

	newW, newL, err := p.updater.Rate1vs1(preW, preL)
	if err != nil {
		p.log.Warn(ctx, "skipping degenerate rating update",
			logger.String("winner", string(winner)),
			logger.String("loser", string(loser)),
			logger.Error(err))
		metrics.RecordDegenerateUpdate()
		return rec
	}

	p.store.Put(ctx, winner, newW)
	p.store.Put(ctx, loser, newL)
	rec.Applied = true
	metrics.RecordPairwiseUpdate()
	return rec
}

// maybeFreeze flags a loser out of the tier once it is well-measured and
// confidently below the prior. Freezing is monotonic for a tier scope.
func (p *Processor) maybeFreeze(ctx context.Context, id model.EntityID) bool {
	if p.store.IsFrozen(ctx, id, p.tierSize) {
		return false
	}
	rec := p.store.Get(ctx, id)
	if rec.Comparisons < p.freezeMinComparisons {
		return false
	}
	if p.updater.ConfidencePercent(rec) < p.freezeMinConfidence {
		return false
	}
	if p.updater.ConservativeScore(rec) >= 0 {
		return false
	}

	p.store.Freeze(ctx, id, p.tierSize)
	p.log.Info(ctx, "entity frozen for tier",
		logger.String("id", string(id)),
		logger.Int("tier", p.tierSize))
	return true
}

// UndoLast reverts the most recent outcome: every pairwise record it
// produced has its pre-update ratings restored, newest first. Freeze flags
// are not cleared; the policy re-evaluates on later outcomes.
func (p *Processor) UndoLast(ctx context.Context) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.marks) == 0 {
		return 0, ErrNothingToUndo
	}

	start := p.marks[len(p.marks)-1]
	reverted := 0
	for i := len(p.history) - 1; i >= start; i-- {
		rec := p.history[i]
		if rec.Applied {
			p.store.Put(ctx, rec.Winner, fromState(rec.PreWinner))
			p.store.Put(ctx, rec.Loser, fromState(rec.PreLoser))
		}
		reverted++
	}

	p.history = p.history[:start]
	p.marks = p.marks[:len(p.marks)-1]
	p.total--

	metrics.RecordUndo()
	metrics.UpdateRatedEntities(p.store.RatedCount(ctx))
	return reverted, nil
}

// History returns a copy of the pairwise record log, oldest first.
func (p *Processor) History() []model.OutcomeRecord {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]model.OutcomeRecord, len(p.history))
	copy(out, p.history)
	return out
}

// TotalComparisons returns the number of outcomes recorded this session.
func (p *Processor) TotalComparisons() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.total
}

// Restore replaces the history from persisted state. Outcome boundaries are
// not persisted, so each restored record undoes individually.
func (p *Processor) Restore(history []model.OutcomeRecord, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.history = make([]model.OutcomeRecord, len(history))
	copy(p.history, history)
	p.marks = make([]int, len(history))
	for i := range history {
		p.marks[i] = i
	}
	if total < len(history) {
		total = len(history)
	}
	p.total = total
}

// Reset drops all history and counters.
func (p *Processor) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.history = nil
	p.marks = nil
	p.total = 0
}

func validate(group model.ComparisonGroup, winners []model.EntityID) error {
	if len(group.Members) != 2 && len(group.Members) != 3 {
		return ErrInvalidOutcome
	}
	seen := make(map[model.EntityID]struct{}, len(group.Members))
	for _, id := range group.Members {
		if _, dup := seen[id]; dup {
			return ErrInvalidOutcome
		}
		seen[id] = struct{}{}
	}

	if len(winners) == 0 || len(winners) >= len(group.Members) {
		return ErrInvalidOutcome
	}
	wset := make(map[model.EntityID]struct{}, len(winners))
	for _, w := range winners {
		if !group.Contains(w) {
			return ErrInvalidOutcome
		}
		if _, dup := wset[w]; dup {
			return ErrInvalidOutcome
		}
		wset[w] = struct{}{}
	}
	return nil
}

func toState(r rating.Record) model.RatingState {
	return model.RatingState{Mean: r.Mean, Uncertainty: r.Uncertainty, Comparisons: r.Comparisons}
}

func fromState(s model.RatingState) rating.Record {
	return rating.Record{Mean: s.Mean, Uncertainty: s.Uncertainty, Comparisons: s.Comparisons}
}

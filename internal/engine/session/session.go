// Package session wires the engine components behind one facade with an
// explicit state machine. A session owns exactly one engine instance; hosts
// running several independent rankings create one Session each.
package session

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/okian/versus/internal/adapters/persistence"
	"github.com/okian/versus/internal/adapters/repository"
	"github.com/okian/versus/internal/config"
	"github.com/okian/versus/internal/domain/catalog"
	"github.com/okian/versus/internal/domain/model"
	"github.com/okian/versus/internal/domain/rating"
	"github.com/okian/versus/internal/domain/recency"
	"github.com/okian/versus/internal/domain/refine"
	"github.com/okian/versus/internal/engine/matchmaker"
	"github.com/okian/versus/internal/engine/outcome"
	"github.com/okian/versus/internal/ranking"
	"github.com/okian/versus/pkg/logger"
	"github.com/okian/versus/pkg/metrics"
)

// State is the session lifecycle state.
type State string

// Session states. MilestoneShown is entered from Resolving when the
// comparison total crosses a milestone, and exits on Continue.
const (
	StateIdle              State = "idle"
	StateAwaitingSelection State = "awaiting_selection"
	StateResolving         State = "resolving"
	StateMilestoneShown    State = "milestone_shown"
)

// Result is the outcome of a resolved comparison, with milestone info.
type Result struct {
	Outcome   outcome.Result
	Milestone bool
	// Snapshot is populated only when a milestone was crossed.
	Snapshot []ranking.Entry
}

// Stats are per-entity win/loss counts derived from the history.
type Stats struct {
	Wins   int `json:"wins"`
	Losses int `json:"losses"`
}

// Session is the engine facade. All methods are safe for concurrent use,
// but Resolve enforces single-flight: a second call while one is in flight
// fails with ErrBusy instead of queueing.
type Session struct {
	id  string
	cfg *config.Config
	log logger.Logger

	catalog    catalog.Provider
	filter     catalog.Filter
	store      *repository.MemStore
	updater    *rating.Updater
	memory     *recency.Memory
	queue      *refine.Queue
	matchmaker *matchmaker.Matchmaker
	processor  *outcome.Processor
	generator  *ranking.Generator
	milestones *ranking.MilestoneDetector

	backend persistence.Backend
	flusher *persistence.Flusher
	rng     *rand.Rand

	mu        sync.Mutex
	state     State
	current   *model.ComparisonGroup
	resolving atomic.Bool
}

// Option applies a configuration option to the Session.
type Option func(*Session)

// WithBackend attaches a persistence backend. Without one, state lives only
// in memory for the lifetime of the session.
func WithBackend(b persistence.Backend) Option {
	return func(s *Session) {
		s.backend = b
	}
}

// WithRNG injects the random source used by matchmaking.
func WithRNG(rng *rand.Rand) Option {
	return func(s *Session) {
		if rng != nil {
			s.rng = rng
		}
	}
}

// WithFilter restricts the session's population.
func WithFilter(filter catalog.Filter) Option {
	return func(s *Session) {
		s.filter = filter
	}
}

// New creates a Session over the given catalog. Configuration problems and
// an empty population are construction-time failures; the session refuses
// to initialize rather than limp along.
func New(cfg *config.Config, cat catalog.Provider, opts ...Option) (*Session, error) {
	if cfg == nil {
		cfg = config.New()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Session{
		id:      uuid.NewString(),
		cfg:     cfg,
		log:     logger.Named("session"),
		catalog: cat,
		state:   StateIdle,
	}

	for _, opt := range opts {
		opt(s)
	}

	if len(cat.ListPopulation(s.filter)) == 0 {
		return nil, ErrEmptyPopulation
	}

	s.updater = rating.NewUpdater(
		rating.WithPrior(cfg.DefaultMean, cfg.DefaultUncertainty),
		rating.WithUncertaintyFloor(cfg.UncertaintyFloor),
		rating.WithConservativeK(cfg.ConservativeK),
	)
	s.store = repository.NewMemStore(
		repository.WithPrior(s.updater.Prior()),
		repository.WithDirtyNotifier(s.notifyDirty),
	)
	s.memory = recency.New(
		recency.WithIDCapacity(cfg.RecentIDCap),
		recency.WithPairCapacity(cfg.RecentPairCap),
	)
	s.queue = refine.New()

	mmOpts := []matchmaker.Option{
		matchmaker.WithTierSize(cfg.TierSize),
		matchmaker.WithStrategyWeights(
			cfg.WeightIntroduceUnrated,
			cfg.WeightRefineTopN,
			cfg.WeightBubbleChallenge,
			cfg.WeightBottomConfirmation,
		),
		matchmaker.WithBootstrap(cfg.BootstrapComparisons, cfg.BootstrapSubsetSize),
		matchmaker.WithFilter(s.filter),
	}
	if s.rng != nil {
		mmOpts = append(mmOpts, matchmaker.WithRNG(s.rng))
	}
	s.matchmaker = matchmaker.New(s.catalog, s.store, s.updater, s.memory, s.queue, mmOpts...)

	s.processor = outcome.New(s.store, s.updater, s.memory,
		outcome.WithTierSize(cfg.TierSize),
		outcome.WithFreezeThresholds(cfg.FreezeMinComparisons, cfg.FreezeMinConfidence),
	)
	s.generator = ranking.NewGenerator(s.store, s.updater)

	detector, err := ranking.NewMilestoneDetector(cfg.Milestones, cfg.MilestoneStep)
	if err != nil {
		return nil, err
	}
	s.milestones = detector

	if s.backend != nil {
		s.flusher = persistence.NewFlusher(s.backend, s.snapshotState,
			persistence.WithFlushDelay(time.Duration(cfg.FlushDelayMS)*time.Millisecond),
		)
	}

	return s, nil
}

// Start loads persisted state, if a backend is attached, and begins the
// background flush loop.
func (s *Session) Start(ctx context.Context) error {
	if s.backend == nil {
		return nil
	}

	ratings, err := s.backend.LoadRatings(ctx)
	if err != nil {
		return fmt.Errorf("%w: ratings: %w", ErrLoadState, err)
	}
	history, err := s.backend.LoadHistory(ctx)
	if err != nil {
		return fmt.Errorf("%w: history: %w", ErrLoadState, err)
	}
	tasks, err := s.backend.LoadTasks(ctx)
	if err != nil {
		return fmt.Errorf("%w: tasks: %w", ErrLoadState, err)
	}
	frozen, err := s.backend.LoadFrozen(ctx)
	if err != nil {
		return fmt.Errorf("%w: frozen: %w", ErrLoadState, err)
	}

	s.store.Restore(ratings, frozen)
	s.queue.Restore(tasks)
	// Outcome boundaries are not persisted; after a restart every restored
	// record counts as one comparison and undoes individually.
	s.processor.Restore(history, len(history))

	s.flusher.Start(ctx)
	s.log.Info(ctx, "session started",
		logger.String("session", s.id),
		logger.Int("ratings", len(ratings)),
		logger.Int("history", len(history)),
		logger.Int("tasks", len(tasks)),
	)
	return nil
}

// Stop flushes outstanding state synchronously and stops the flush loop.
func (s *Session) Stop() {
	if s.flusher != nil {
		s.flusher.Stop()
	}
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// NextGroup issues the next comparison group. Re-requesting while a group
// is already outstanding abandons it; refinement tasks survive abandonment.
func (s *Session) NextGroup(ctx context.Context) (model.ComparisonGroup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateResolving:
		return model.ComparisonGroup{}, ErrBusy
	case StateMilestoneShown:
		return model.ComparisonGroup{}, ErrMilestonePending
	case StateIdle, StateAwaitingSelection:
	}

	group, err := s.matchmaker.SelectNextGroup(ctx, s.cfg.GroupSize)
	if err != nil {
		return model.ComparisonGroup{}, err
	}

	s.current = &group
	s.state = StateAwaitingSelection
	return group, nil
}

// Resolve records the user's judgment for the outstanding group. On an
// invalid judgment the group stays outstanding so the caller can retry or
// re-request.
func (s *Session) Resolve(ctx context.Context, winners []model.EntityID) (Result, error) {
	if !s.resolving.CompareAndSwap(false, true) {
		return Result{}, ErrBusy
	}
	defer s.resolving.Store(false)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateAwaitingSelection || s.current == nil {
		return Result{}, ErrNoActiveGroup
	}
	group := *s.current
	s.state = StateResolving

	res, err := s.processor.ProcessOutcome(ctx, group, winners)
	if err != nil {
		s.state = StateAwaitingSelection
		return Result{}, err
	}

	s.matchmaker.NotifyRecorded(group)
	s.current = nil

	out := Result{Outcome: res}
	if s.milestones.IsMilestone(res.TotalComparisons) {
		out.Milestone = true
		out.Snapshot = s.generator.Snapshot(ctx, 0)
		s.state = StateMilestoneShown
		metrics.RecordMilestone()
		s.log.Info(ctx, "milestone reached",
			logger.String("session", s.id),
			logger.Int("comparisons", res.TotalComparisons),
		)
	} else {
		s.state = StateIdle
	}

	s.notifyDirty()
	return out, nil
}

// Continue dismisses a shown milestone and issues the next group.
func (s *Session) Continue(ctx context.Context) (model.ComparisonGroup, error) {
	s.mu.Lock()
	if s.state != StateMilestoneShown {
		s.mu.Unlock()
		return model.ComparisonGroup{}, ErrNoMilestone
	}
	s.state = StateIdle
	s.mu.Unlock()

	return s.NextGroup(ctx)
}

// Undo reverts the most recent outcome and returns to Idle. The anti-repeat
// memory is left as is; recency decays only by eviction.
func (s *Session) Undo(ctx context.Context) (int, error) {
	if !s.resolving.CompareAndSwap(false, true) {
		return 0, ErrBusy
	}
	defer s.resolving.Store(false)

	s.mu.Lock()
	defer s.mu.Unlock()

	reverted, err := s.processor.UndoLast(ctx)
	if err != nil {
		return 0, err
	}

	s.current = nil
	s.state = StateIdle
	s.notifyDirty()
	return reverted, nil
}

// Snapshot returns the current ranking, optionally truncated.
func (s *Session) Snapshot(ctx context.Context, limit int) []ranking.Entry {
	return s.generator.Snapshot(ctx, limit)
}

// TotalComparisons returns the number of outcomes recorded this session.
func (s *Session) TotalComparisons() int {
	return s.processor.TotalComparisons()
}

// RequestComparison flags an entity for the next selection.
func (s *Session) RequestComparison(id model.EntityID) {
	s.matchmaker.RequestComparison(id)
}

// EnqueueRefinement queues an explicit comparison. Returns false when the
// unordered pair is already queued.
func (s *Session) EnqueueRefinement(primary, opponent model.EntityID, reason string) bool {
	ok := s.queue.Enqueue(primary, opponent, reason)
	if ok {
		s.notifyDirty()
	}
	return ok
}

// RequestReorder validates a manual rank edit: the moved entity is queued
// against its new positional neighbors so the rating model can confirm or
// reject the implied ordering. Returns how many comparisons were queued.
func (s *Session) RequestReorder(ctx context.Context, id model.EntityID, newRank int) int {
	entries := s.generator.Snapshot(ctx, 0)

	others := make([]model.EntityID, 0, len(entries))
	for _, e := range entries {
		if e.ID != id {
			others = append(others, e.ID)
		}
	}
	if len(others) == 0 {
		return 0
	}

	if newRank < 1 {
		newRank = 1
	}
	if newRank > len(others)+1 {
		newRank = len(others) + 1
	}

	queued := 0
	// Neighbor above the new slot.
	if newRank >= 2 {
		if s.queue.Enqueue(id, others[newRank-2], "reorder") {
			queued++
		}
	}
	// Neighbor below the new slot.
	if newRank <= len(others) {
		if s.queue.Enqueue(id, others[newRank-1], "reorder") {
			queued++
		}
	}
	if queued > 0 {
		s.notifyDirty()
	}
	return queued
}

// Stats derives win/loss counts for an entity from the history.
func (s *Session) Stats(id model.EntityID) Stats {
	var st Stats
	for _, rec := range s.processor.History() {
		switch id {
		case rec.Winner:
			st.Wins++
		case rec.Loser:
			st.Losses++
		}
	}
	return st
}

// History returns the append-only pairwise record log.
func (s *Session) History() []model.OutcomeRecord {
	return s.processor.History()
}

// Reset wipes ratings, history, queue, freeze flags and selection state.
func (s *Session) Reset(ctx context.Context) error {
	if !s.resolving.CompareAndSwap(false, true) {
		return ErrBusy
	}
	defer s.resolving.Store(false)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.store.Reset(ctx)
	s.processor.Reset()
	s.queue.Clear()
	s.memory.Reset()
	s.matchmaker.Reset()
	s.current = nil
	s.state = StateIdle

	s.log.Info(ctx, "session reset", logger.String("session", s.id))
	s.notifyDirty()
	return nil
}

// notifyDirty schedules a background flush. Never blocks.
func (s *Session) notifyDirty() {
	if s.flusher != nil {
		s.flusher.Notify()
	}
}

// snapshotState captures the full persistable state.
func (s *Session) snapshotState() persistence.State {
	ctx := context.Background()
	return persistence.State{
		Ratings:          s.store.All(ctx),
		History:          s.processor.History(),
		Tasks:            s.queue.Tasks(),
		Frozen:           s.store.FrozenKeys(ctx),
		TotalComparisons: s.processor.TotalComparisons(),
	}
}

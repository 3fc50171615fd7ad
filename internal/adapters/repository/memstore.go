package repository

import (
	"context"
	"sync"

	"github.com/okian/versus/internal/domain/model"
	"github.com/okian/versus/internal/domain/rating"
	"github.com/okian/versus/pkg/metrics"
)

// MemStore is the in-memory Store implementation. Every mutation invokes the
// configured dirty notifier, which the persistence flusher uses to schedule
// a debounced background write.
type MemStore struct {
	mu      sync.RWMutex
	prior   rating.Record
	records map[model.EntityID]rating.Record
	frozen  map[FreezeKey]struct{}
	notify  func()
}

// Option applies a configuration option to the MemStore.
type Option func(*MemStore)

// WithPrior sets the default record returned for unknown entities.
func WithPrior(prior rating.Record) Option {
	return func(s *MemStore) {
		s.prior = prior
	}
}

// WithDirtyNotifier registers a callback invoked after every mutation.
// The callback must not block; the flusher debounces internally.
func WithDirtyNotifier(notify func()) Option {
	return func(s *MemStore) {
		if notify != nil {
			s.notify = notify
		}
	}
}

// NewMemStore creates an in-memory store with configuration options.
func NewMemStore(opts ...Option) *MemStore {
	s := &MemStore{
		prior:   rating.Record{Mean: 25, Uncertainty: 25.0 / 3.0},
		records: make(map[model.EntityID]rating.Record),
		frozen:  make(map[FreezeKey]struct{}),
		notify:  func() {},
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Get returns the record for id, or the default prior if absent.
func (s *MemStore) Get(ctx context.Context, id model.EntityID) rating.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if rec, ok := s.records[id]; ok {
		return rec
	}
	return s.prior
}

// Put overwrites the record for id and schedules a persistence write.
func (s *MemStore) Put(ctx context.Context, id model.EntityID, rec rating.Record) {
	s.mu.Lock()
	s.records[id] = rec
	rated := s.ratedCountLocked()
	s.mu.Unlock()

	metrics.UpdateRatedEntities(rated)
	s.notify()
}

// All returns a copy of every stored record.
func (s *MemStore) All(ctx context.Context) map[model.EntityID]rating.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[model.EntityID]rating.Record, len(s.records))
	for id, rec := range s.records {
		out[id] = rec
	}
	return out
}

// RatedCount returns the number of entities with at least one comparison.
func (s *MemStore) RatedCount(ctx context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ratedCountLocked()
}

func (s *MemStore) ratedCountLocked() int {
	n := 0
	for _, rec := range s.records {
		if rec.Comparisons > 0 {
			n++
		}
	}
	return n
}

// Freeze sets the freeze flag for (id, tier).
func (s *MemStore) Freeze(ctx context.Context, id model.EntityID, tier int) {
	key := FreezeKey{ID: id, Tier: tier}

	s.mu.Lock()
	s.frozen[key] = struct{}{}
	count := len(s.frozen)
	s.mu.Unlock()

	metrics.UpdateFrozenEntities(count)
	s.notify()
}

// IsFrozen reports whether (id, tier) is frozen.
func (s *MemStore) IsFrozen(ctx context.Context, id model.EntityID, tier int) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.frozen[FreezeKey{ID: id, Tier: tier}]
	return ok
}

// FrozenKeys returns a copy of all set freeze flags.
func (s *MemStore) FrozenKeys(ctx context.Context) []FreezeKey {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]FreezeKey, 0, len(s.frozen))
	for key := range s.frozen {
		out = append(out, key)
	}
	return out
}

// Reset clears every record and freeze flag.
func (s *MemStore) Reset(ctx context.Context) {
	s.mu.Lock()
	s.records = make(map[model.EntityID]rating.Record)
	s.frozen = make(map[FreezeKey]struct{})
	s.mu.Unlock()

	metrics.UpdateRatedEntities(0)
	metrics.UpdateFrozenEntities(0)
	s.notify()
}

// Restore replaces ratings and freeze flags from persisted state. It does
// not trigger the dirty notifier.
func (s *MemStore) Restore(records map[model.EntityID]rating.Record, frozen []FreezeKey) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = make(map[model.EntityID]rating.Record, len(records))
	for id, rec := range records {
		s.records[id] = rec
	}
	s.frozen = make(map[FreezeKey]struct{}, len(frozen))
	for _, key := range frozen {
		s.frozen[key] = struct{}{}
	}
}

// Package recency tracks recently compared entities and pairs so the
// matchmaker can bias toward unseen candidates and avoid immediate repeats.
package recency

import (
	"sync"

	"github.com/okian/versus/internal/domain/model"
)

// Default capacity constants.
const (
	defaultIDCapacity   = 50
	defaultPairCapacity = 100
)

// Memory holds two bounded recency sets: individual entity ids and
// normalized pair keys. Both evict in insertion order (FIFO), never by
// access order. It also remembers the key of the most recently issued
// group so the exact same group is not re-issued back to back.
type Memory struct {
	mu sync.Mutex

	idCap   int
	pairCap int

	ids      []model.EntityID
	idSet    map[model.EntityID]struct{}
	pairs    []string
	pairSet  map[string]struct{}
	lastKey  string
	hasGroup bool
}

// Option applies a configuration option to the Memory.
type Option func(*Memory)

// WithIDCapacity bounds the individual-id recency set.
func WithIDCapacity(capacity int) Option {
	return func(m *Memory) {
		if capacity > 0 {
			m.idCap = capacity
		}
	}
}

// WithPairCapacity bounds the pair-key recency set.
func WithPairCapacity(capacity int) Option {
	return func(m *Memory) {
		if capacity > 0 {
			m.pairCap = capacity
		}
	}
}

// New creates a Memory with configuration options.
func New(opts ...Option) *Memory {
	m := &Memory{
		idCap:   defaultIDCapacity,
		pairCap: defaultPairCapacity,
		idSet:   make(map[model.EntityID]struct{}),
		pairSet: make(map[string]struct{}),
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// RememberID records an individual id, evicting the oldest over capacity.
func (m *Memory) RememberID(id model.EntityID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.idSet[id]; ok {
		return
	}
	m.ids = append(m.ids, id)
	m.idSet[id] = struct{}{}
	for len(m.ids) > m.idCap {
		oldest := m.ids[0]
		m.ids = m.ids[1:]
		delete(m.idSet, oldest)
	}
}

// RememberPair records a normalized pair key, evicting the oldest over capacity.
func (m *Memory) RememberPair(a, b model.EntityID) {
	key := model.PairKey(a, b)

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.pairSet[key]; ok {
		return
	}
	m.pairs = append(m.pairs, key)
	m.pairSet[key] = struct{}{}
	for len(m.pairs) > m.pairCap {
		oldest := m.pairs[0]
		m.pairs = m.pairs[1:]
		delete(m.pairSet, oldest)
	}
}

// RememberGroup records the unordered key of the group just issued.
func (m *Memory) RememberGroup(g model.ComparisonGroup) {
	key := g.Key()

	m.mu.Lock()
	m.lastKey = key
	m.hasGroup = true
	m.mu.Unlock()

	for _, id := range g.Members {
		m.RememberID(id)
	}
	for i := 0; i < len(g.Members); i++ {
		for j := i + 1; j < len(g.Members); j++ {
			m.RememberPair(g.Members[i], g.Members[j])
		}
	}
}

// IsRecentID reports whether id is in the recency window.
func (m *Memory) IsRecentID(id model.EntityID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.idSet[id]
	return ok
}

// IsRecentPair reports whether the unordered pair was recently compared.
func (m *Memory) IsRecentPair(a, b model.EntityID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.pairSet[model.PairKey(a, b)]
	return ok
}

// IsLastGroup reports whether g matches the most recently issued group
// as an unordered id-set.
func (m *Memory) IsLastGroup(g model.ComparisonGroup) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hasGroup && m.lastKey == g.Key()
}

// ForgetOldestIDs drops the n oldest individual ids, used to progressively
// relax the recency filter when candidates run out.
func (m *Memory) ForgetOldestIDs(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := 0; i < n && len(m.ids) > 0; i++ {
		oldest := m.ids[0]
		m.ids = m.ids[1:]
		delete(m.idSet, oldest)
	}
}

// ClearIDs empties the individual-id set. Pair memory is kept.
func (m *Memory) ClearIDs() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ids = nil
	m.idSet = make(map[model.EntityID]struct{})
}

// Reset empties all recency state.
func (m *Memory) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ids = nil
	m.idSet = make(map[model.EntityID]struct{})
	m.pairs = nil
	m.pairSet = make(map[string]struct{})
	m.lastKey = ""
	m.hasGroup = false
}

// IDCount returns the number of ids currently remembered.
func (m *Memory) IDCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.ids)
}

// PairCount returns the number of pair keys currently remembered.
func (m *Memory) PairCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pairs)
}

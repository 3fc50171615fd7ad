// Package catalog defines the read-only entity catalog the engine consumes.
// The catalog is owned by the host application; the engine only references
// entities by id and never mutates catalog data.
package catalog

import (
	"sync"

	"github.com/okian/versus/internal/domain/model"
)

// Provider exposes the population to the engine.
type Provider interface {
	// Lookup returns the attributes for an id, or nil if unknown.
	Lookup(id model.EntityID) *model.EntityAttributes

	// ListPopulation returns the ids matching the filter, in stable order.
	ListPopulation(filter Filter) []model.EntityID
}

// Filter restricts the population listing. The zero value matches all.
type Filter struct {
	// Tag restricts to entities carrying the tag (e.g. a generation or
	// category label). Empty matches everything.
	Tag string
}

// InMemoryProvider implements Provider over a fixed entity set.
type InMemoryProvider struct {
	mu       sync.RWMutex
	order    []model.EntityID
	entities map[model.EntityID]model.EntityAttributes
}

// NewInMemoryProvider creates a provider over the given entities,
// preserving their order for deterministic listings.
func NewInMemoryProvider(entities []model.EntityAttributes) *InMemoryProvider {
	p := &InMemoryProvider{
		entities: make(map[model.EntityID]model.EntityAttributes, len(entities)),
	}
	for _, e := range entities {
		if _, dup := p.entities[e.ID]; dup {
			continue
		}
		p.entities[e.ID] = e
		p.order = append(p.order, e.ID)
	}
	return p
}

// Lookup returns the attributes for an id, or nil if unknown.
func (p *InMemoryProvider) Lookup(id model.EntityID) *model.EntityAttributes {
	p.mu.RLock()
	defer p.mu.RUnlock()

	e, ok := p.entities[id]
	if !ok {
		return nil
	}
	return &e
}

// ListPopulation returns ids matching the filter in insertion order.
func (p *InMemoryProvider) ListPopulation(filter Filter) []model.EntityID {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]model.EntityID, 0, len(p.order))
	for _, id := range p.order {
		if filter.Tag != "" && !hasTag(p.entities[id], filter.Tag) {
			continue
		}
		out = append(out, id)
	}
	return out
}

func hasTag(e model.EntityAttributes, tag string) bool {
	for _, t := range e.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

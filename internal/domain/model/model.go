// Package model contains domain models passed between layers.
package model

import (
	"fmt"
	"time"
)

// EntityID identifies a single comparable entity in the population.
type EntityID string

// EntityAttributes carries the read-only display attributes of an entity.
// The engine never mutates catalog data; it only references ids.
type EntityAttributes struct {
	ID   EntityID
	Name string
	Tags []string
}

// ComparisonGroup is the ordered set of 2 or 3 entities presented together
// for one user judgment. Transient: constructed by the matchmaker, consumed
// once by the outcome processor.
type ComparisonGroup struct {
	Members  []EntityID
	Strategy string // selection strategy that produced the group
}

// Contains reports whether id is a member of the group.
func (g ComparisonGroup) Contains(id EntityID) bool {
	for _, m := range g.Members {
		if m == id {
			return true
		}
	}
	return false
}

// Key returns the normalized unordered key of the group's id-set.
func (g ComparisonGroup) Key() string {
	ids := make([]EntityID, len(g.Members))
	copy(ids, g.Members)
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && ids[j] < ids[j-1]; j-- {
			ids[j], ids[j-1] = ids[j-1], ids[j]
		}
	}
	key := ""
	for i, id := range ids {
		if i > 0 {
			key += "|"
		}
		key += string(id)
	}
	return key
}

// PairKey normalizes an unordered entity pair so {A,B} and {B,A} collide.
func PairKey(a, b EntityID) string {
	if b < a {
		a, b = b, a
	}
	return fmt.Sprintf("%s-%s", a, b)
}

// RatingState captures a rating at a point in time, embedded in outcome
// records so undo can restore the pre-update values.
type RatingState struct {
	Mean        float64 `json:"mean"`
	Uncertainty float64 `json:"uncertainty"`
	Comparisons int     `json:"comparisons"`
}

// OutcomeRecord is one pairwise result appended to the session history.
type OutcomeRecord struct {
	ID        string      `json:"id"`
	Winner    EntityID    `json:"winner"`
	Loser     EntityID    `json:"loser"`
	Group     []EntityID  `json:"group"`
	PreWinner RatingState `json:"pre_winner"`
	PreLoser  RatingState `json:"pre_loser"`
	Applied   bool        `json:"applied"` // false when the update was skipped as degenerate
	Timestamp time.Time   `json:"timestamp"`
}

// RefinementTask is an explicitly requested comparison, e.g. created to
// validate a manual reorder against the rating model.
type RefinementTask struct {
	Primary  EntityID `json:"primary"`
	Opponent EntityID `json:"opponent"`
	Reason   string   `json:"reason"`
}

// Key returns the unordered pair key used for queue deduplication.
func (t RefinementTask) Key() string {
	return PairKey(t.Primary, t.Opponent)
}

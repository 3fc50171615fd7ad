// Package ranking derives sorted, confidence-annotated snapshots from the
// rating store and detects comparison-count milestones.
package ranking

import (
	"context"
	"sort"
	"time"

	"github.com/okian/versus/internal/adapters/repository"
	"github.com/okian/versus/internal/domain/model"
	"github.com/okian/versus/internal/domain/rating"
	"github.com/okian/versus/pkg/metrics"
)

// Entry is one row of a ranking snapshot.
type Entry struct {
	Rank              int            `json:"rank"`
	ID                model.EntityID `json:"id"`
	Mean              float64        `json:"mean"`
	Uncertainty       float64        `json:"uncertainty"`
	Comparisons       int            `json:"comparisons"`
	ConservativeScore float64        `json:"conservative_score"`
	ConfidencePercent float64        `json:"confidence_percent"`
}

// Generator builds ranking snapshots on demand. Snapshots are derived,
// never hand-mutated.
type Generator struct {
	store   repository.Store
	updater *rating.Updater
}

// NewGenerator creates a Generator over the given store and updater.
func NewGenerator(store repository.Store, updater *rating.Updater) *Generator {
	return &Generator{store: store, updater: updater}
}

// Snapshot returns every entity with at least one comparison, sorted by
// conservative score descending. Ties break by lower uncertainty, then by
// entity id ascending, so equal inputs always produce identical output.
// A positive limit truncates the result (e.g. to the active tier size).
func (g *Generator) Snapshot(ctx context.Context, limit int) []Entry {
	start := time.Now()
	defer func() {
		metrics.RecordSnapshotDuration(float64(time.Since(start).Milliseconds()))
	}()

	all := g.store.All(ctx)
	entries := make([]Entry, 0, len(all))
	for id, rec := range all {
		if rec.Comparisons == 0 {
			continue
		}
		entries = append(entries, Entry{
			ID:                id,
			Mean:              rec.Mean,
			Uncertainty:       rec.Uncertainty,
			Comparisons:       rec.Comparisons,
			ConservativeScore: g.updater.ConservativeScore(rec),
			ConfidencePercent: g.updater.ConfidencePercent(rec),
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].ConservativeScore != entries[j].ConservativeScore {
			return entries[i].ConservativeScore > entries[j].ConservativeScore
		}
		if entries[i].Uncertainty != entries[j].Uncertainty {
			return entries[i].Uncertainty < entries[j].Uncertainty
		}
		return entries[i].ID < entries[j].ID
	})

	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}

// MilestoneDetector matches comparison counts against a configured
// sequence: explicit leading values, then every step beyond the last.
type MilestoneDetector struct {
	leading []int
	step    int
}

// NewMilestoneDetector validates and builds a detector. The sequence must
// be non-empty and strictly increasing, the step positive.
func NewMilestoneDetector(leading []int, step int) (*MilestoneDetector, error) {
	if len(leading) == 0 {
		return nil, ErrInvalidMilestones
	}
	if step <= 0 {
		return nil, ErrInvalidMilestones
	}
	prev := 0
	for _, m := range leading {
		if m <= prev {
			return nil, ErrInvalidMilestones
		}
		prev = m
	}
	seq := make([]int, len(leading))
	copy(seq, leading)
	return &MilestoneDetector{leading: seq, step: step}, nil
}

// IsMilestone reports whether totalComparisons sits on the sequence.
func (d *MilestoneDetector) IsMilestone(totalComparisons int) bool {
	if totalComparisons <= 0 {
		return false
	}
	last := d.leading[len(d.leading)-1]
	if totalComparisons > last {
		return (totalComparisons-last)%d.step == 0
	}
	for _, m := range d.leading {
		if m == totalComparisons {
			return true
		}
	}
	return false
}

// Command simulate runs seeded self-play over a synthetic population with a
// hidden true ordering and reports how well the ranking converged.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"

	"github.com/okian/versus/internal/config"
	"github.com/okian/versus/internal/domain/catalog"
	"github.com/okian/versus/internal/domain/model"
	"github.com/okian/versus/internal/engine/session"
	"github.com/okian/versus/internal/ranking"
	"github.com/okian/versus/pkg/logger"
)

func main() {
	var (
		populationSize = flag.Int("n", 100, "population size")
		comparisons    = flag.Int("comparisons", 500, "number of comparisons to simulate")
		groupSize      = flag.Int("group", 2, "comparison group size (2 or 3)")
		seed           = flag.Int64("seed", 1, "random seed")
		noise          = flag.Float64("noise", 10.0, "performance noise added to true strength per judgment")
	)
	flag.Parse()

	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	_ = logger.SetLevelString("warn")

	if err := run(*populationSize, *comparisons, *groupSize, *seed, *noise); err != nil {
		os.Stderr.WriteString("simulation failed: " + err.Error() + "\n")
		os.Exit(1)
	}
}

func run(populationSize, comparisons, groupSize int, seed int64, noise float64) error {
	ctx := context.Background()
	rng := rand.New(rand.NewSource(seed)) //nolint:gosec // reproducible simulation

	// Hidden truth: entity i has strength populationSize-i, so the true
	// ranking is simply catalog order.
	entities := make([]model.EntityAttributes, 0, populationSize)
	strength := make(map[model.EntityID]float64, populationSize)
	trueRank := make(map[model.EntityID]int, populationSize)
	for i := 0; i < populationSize; i++ {
		id := model.EntityID(fmt.Sprintf("sim-%03d", i))
		entities = append(entities, model.EntityAttributes{ID: id, Name: string(id)})
		strength[id] = float64(populationSize - i)
		trueRank[id] = i + 1
	}

	cfg := config.New()
	cfg.GroupSize = groupSize

	sess, err := session.New(cfg, catalog.NewInMemoryProvider(entities),
		session.WithRNG(rng))
	if err != nil {
		return err
	}

	milestones := 0
	group, err := sess.NextGroup(ctx)
	if err != nil {
		return err
	}
	for i := 0; i < comparisons; i++ {
		winner := judge(rng, group, strength, noise)
		res, err := sess.Resolve(ctx, []model.EntityID{winner})
		if err != nil {
			return err
		}

		if i == comparisons-1 {
			break
		}
		if res.Milestone {
			milestones++
			group, err = sess.Continue(ctx)
		} else {
			group, err = sess.NextGroup(ctx)
		}
		if err != nil {
			return err
		}
	}

	entries := sess.Snapshot(ctx, 0)
	rho := spearman(entries, trueRank)

	fmt.Printf("population:        %d\n", populationSize)
	fmt.Printf("comparisons:       %d\n", sess.TotalComparisons())
	fmt.Printf("milestones:        %d\n", milestones)
	fmt.Printf("rated entities:    %d\n", len(entries))
	fmt.Printf("rank correlation:  %.4f\n", rho)
	if len(entries) > 0 {
		fmt.Printf("top entity:        %s (true rank %d, confidence %.1f%%)\n",
			entries[0].ID, trueRank[entries[0].ID], entries[0].ConfidencePercent)
	}
	return nil
}

// judge picks the winner as the member with the highest noisy performance
// draw, mirroring how a human judgment tracks true strength imperfectly.
func judge(rng *rand.Rand, group model.ComparisonGroup, strength map[model.EntityID]float64, noise float64) model.EntityID {
	best := group.Members[0]
	bestPerf := strength[best] + rng.NormFloat64()*noise
	for _, id := range group.Members[1:] {
		if perf := strength[id] + rng.NormFloat64()*noise; perf > bestPerf {
			best = id
			bestPerf = perf
		}
	}
	return best
}

// spearman computes the rank correlation between the estimated ranking and
// the hidden true ranks, over the rated entities only.
func spearman(entries []ranking.Entry, trueRank map[model.EntityID]int) float64 {
	m := len(entries)
	if m < 2 {
		return 0
	}

	ids := make([]model.EntityID, m)
	for i, e := range entries {
		ids[i] = e.ID
	}

	// Re-rank the rated subset by true order so both rankings cover the
	// same set.
	sorted := append([]model.EntityID(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool {
		return trueRank[sorted[i]] < trueRank[sorted[j]]
	})
	subsetRank := make(map[model.EntityID]int, m)
	for i, id := range sorted {
		subsetRank[id] = i + 1
	}

	var sum float64
	for i, id := range ids {
		d := float64((i + 1) - subsetRank[id])
		sum += d * d
	}
	n := float64(m)
	return 1 - 6*sum/(n*(n*n-1))
}

package outcome_test

import (
	"context"
	"math"
	"testing"

	"github.com/okian/versus/internal/adapters/repository"
	"github.com/okian/versus/internal/domain/model"
	"github.com/okian/versus/internal/domain/rating"
	"github.com/okian/versus/internal/domain/recency"
	"github.com/okian/versus/internal/engine/outcome"
	"github.com/okian/versus/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	_ = logger.Init()
}

func newProcessor(opts ...outcome.Option) (*outcome.Processor, *repository.MemStore, *rating.Updater) {
	updater := rating.NewUpdater()
	store := repository.NewMemStore(repository.WithPrior(updater.Prior()))
	p := outcome.New(store, updater, recency.New(), opts...)
	return p, store, updater
}

func TestProcessOutcomePair(t *testing.T) {
	ctx := context.Background()

	Convey("Given two entities at the prior", t, func() {
		p, store, _ := newProcessor()
		group := model.ComparisonGroup{Members: []model.EntityID{"a", "b"}}

		Convey("When a beats b", func() {
			res, err := p.ProcessOutcome(ctx, group, []model.EntityID{"a"})

			Convey("Then one pairwise record is applied", func() {
				So(err, ShouldBeNil)
				So(res.Records, ShouldHaveLength, 1)
				So(res.Applied, ShouldEqual, 1)
				So(res.TotalComparisons, ShouldEqual, 1)
			})

			Convey("Then the winner gains and the loser drops", func() {
				prior := rating.NewUpdater().Prior()
				a := store.Get(ctx, "a")
				b := store.Get(ctx, "b")
				So(a.Mean, ShouldBeGreaterThan, prior.Mean)
				So(b.Mean, ShouldBeLessThan, prior.Mean)
				So(a.Uncertainty, ShouldBeLessThan, prior.Uncertainty)
				So(b.Uncertainty, ShouldBeLessThan, prior.Uncertainty)
				So(a.Comparisons, ShouldEqual, 1)
				So(b.Comparisons, ShouldEqual, 1)
			})

			Convey("Then the record captures the pre-update state", func() {
				prior := rating.NewUpdater().Prior()
				So(res.Records[0].Winner, ShouldEqual, model.EntityID("a"))
				So(res.Records[0].Loser, ShouldEqual, model.EntityID("b"))
				So(res.Records[0].PreWinner.Mean, ShouldEqual, prior.Mean)
				So(res.Records[0].PreLoser.Mean, ShouldEqual, prior.Mean)
			})
		})
	})
}

func TestProcessOutcomeTriplet(t *testing.T) {
	ctx := context.Background()
	group := model.ComparisonGroup{Members: []model.EntityID{"a", "b", "c"}}

	Convey("Given a triplet with a single winner", t, func() {
		p, store, _ := newProcessor()

		Convey("Then the outcome expands to two pairwise updates", func() {
			res, err := p.ProcessOutcome(ctx, group, []model.EntityID{"a"})
			So(err, ShouldBeNil)
			So(res.Records, ShouldHaveLength, 2)
			So(res.Applied, ShouldEqual, 2)

			// One comparison, not two.
			So(res.TotalComparisons, ShouldEqual, 1)

			// Winner updated twice, each loser once.
			So(store.Get(ctx, "a").Comparisons, ShouldEqual, 2)
			So(store.Get(ctx, "b").Comparisons, ShouldEqual, 1)
			So(store.Get(ctx, "c").Comparisons, ShouldEqual, 1)
		})
	})

	Convey("Given a triplet with two winners", t, func() {
		p, store, _ := newProcessor()

		Convey("Then each winner beats the single loser once", func() {
			res, err := p.ProcessOutcome(ctx, group, []model.EntityID{"a", "b"})
			So(err, ShouldBeNil)
			So(res.Records, ShouldHaveLength, 2)

			So(store.Get(ctx, "a").Comparisons, ShouldEqual, 1)
			So(store.Get(ctx, "b").Comparisons, ShouldEqual, 1)
			So(store.Get(ctx, "c").Comparisons, ShouldEqual, 2)

			// Winner-vs-winner pairs are never expanded.
			for _, rec := range res.Records {
				So(rec.Loser, ShouldEqual, model.EntityID("c"))
			}
		})
	})
}

func TestProcessOutcomeValidation(t *testing.T) {
	ctx := context.Background()

	Convey("Given an outcome processor", t, func() {
		p, _, _ := newProcessor()
		pair := model.ComparisonGroup{Members: []model.EntityID{"a", "b"}}

		Convey("Then malformed judgments are rejected", func() {
			_, err := p.ProcessOutcome(ctx, pair, nil)
			So(err, ShouldEqual, outcome.ErrInvalidOutcome)

			_, err = p.ProcessOutcome(ctx, pair, []model.EntityID{"a", "b"})
			So(err, ShouldEqual, outcome.ErrInvalidOutcome)

			_, err = p.ProcessOutcome(ctx, pair, []model.EntityID{"z"})
			So(err, ShouldEqual, outcome.ErrInvalidOutcome)

			bad := model.ComparisonGroup{Members: []model.EntityID{"a"}}
			_, err = p.ProcessOutcome(ctx, bad, []model.EntityID{"a"})
			So(err, ShouldEqual, outcome.ErrInvalidOutcome)

			dup := model.ComparisonGroup{Members: []model.EntityID{"a", "a"}}
			_, err = p.ProcessOutcome(ctx, dup, []model.EntityID{"a"})
			So(err, ShouldEqual, outcome.ErrInvalidOutcome)

			So(p.TotalComparisons(), ShouldEqual, 0)
		})
	})
}

func TestDegenerateIsolation(t *testing.T) {
	ctx := context.Background()

	Convey("Given a triplet where one member has a corrupt rating", t, func() {
		p, store, _ := newProcessor()
		store.Put(ctx, "broken", rating.Record{Mean: math.NaN(), Uncertainty: 5, Comparisons: 1})
		group := model.ComparisonGroup{Members: []model.EntityID{"a", "broken", "c"}}

		Convey("When the healthy member wins", func() {
			res, err := p.ProcessOutcome(ctx, group, []model.EntityID{"a"})

			Convey("Then the degenerate pair is recorded but not applied", func() {
				So(err, ShouldBeNil)
				So(res.Records, ShouldHaveLength, 2)
				So(res.Applied, ShouldEqual, 1)

				for _, rec := range res.Records {
					if rec.Loser == "broken" {
						So(rec.Applied, ShouldBeFalse)
					} else {
						So(rec.Applied, ShouldBeTrue)
					}
				}
			})

			Convey("Then the healthy pair still updated", func() {
				So(store.Get(ctx, "c").Comparisons, ShouldEqual, 1)
				So(store.Get(ctx, "broken").Comparisons, ShouldEqual, 1) // untouched
			})
		})
	})
}

func TestFreezePolicy(t *testing.T) {
	ctx := context.Background()

	Convey("Given a well-measured, clearly weak entity", t, func() {
		p, store, updater := newProcessor(outcome.WithTierSize(50))
		store.Put(ctx, "weak", rating.Record{Mean: 5, Uncertainty: 2, Comparisons: 10})
		group := model.ComparisonGroup{Members: []model.EntityID{"strong", "weak"}}

		Convey("When it loses again", func() {
			res, err := p.ProcessOutcome(ctx, group, []model.EntityID{"strong"})

			Convey("Then it is frozen for the tier", func() {
				So(err, ShouldBeNil)
				So(res.Frozen, ShouldContain, model.EntityID("weak"))
				So(store.IsFrozen(ctx, "weak", 50), ShouldBeTrue)
				So(store.IsFrozen(ctx, "strong", 50), ShouldBeFalse)

				rec := store.Get(ctx, "weak")
				So(updater.ConservativeScore(rec), ShouldBeLessThan, 0)
			})

			Convey("Then freezing is monotonic", func() {
				again, err := p.ProcessOutcome(ctx, group, []model.EntityID{"strong"})
				So(err, ShouldBeNil)
				So(again.Frozen, ShouldBeEmpty)
				So(store.IsFrozen(ctx, "weak", 50), ShouldBeTrue)
			})
		})
	})

	Convey("Given an under-measured weak entity", t, func() {
		p, store, _ := newProcessor(outcome.WithFreezeThresholds(5, 60))
		store.Put(ctx, "new", rating.Record{Mean: 5, Uncertainty: 2, Comparisons: 2})
		group := model.ComparisonGroup{Members: []model.EntityID{"strong", "new"}}

		Convey("Then it is not frozen below the comparison floor", func() {
			res, err := p.ProcessOutcome(ctx, group, []model.EntityID{"strong"})
			So(err, ShouldBeNil)
			So(res.Frozen, ShouldBeEmpty)
			So(store.IsFrozen(ctx, "new", 50), ShouldBeFalse)
		})
	})
}

func TestUndo(t *testing.T) {
	ctx := context.Background()

	Convey("Given a recorded triplet outcome", t, func() {
		p, store, _ := newProcessor()
		group := model.ComparisonGroup{Members: []model.EntityID{"a", "b", "c"}}
		_, err := p.ProcessOutcome(ctx, group, []model.EntityID{"a"})
		So(err, ShouldBeNil)

		Convey("When undoing", func() {
			reverted, err := p.UndoLast(ctx)

			Convey("Then both pairwise updates are reverted", func() {
				So(err, ShouldBeNil)
				So(reverted, ShouldEqual, 2)

				prior := rating.NewUpdater().Prior()
				for _, id := range group.Members {
					rec := store.Get(ctx, id)
					So(rec.Mean, ShouldEqual, prior.Mean)
					So(rec.Uncertainty, ShouldEqual, prior.Uncertainty)
					So(rec.Comparisons, ShouldEqual, 0)
				}
				So(p.TotalComparisons(), ShouldEqual, 0)
				So(p.History(), ShouldBeEmpty)
			})

			Convey("Then a second undo has nothing to revert", func() {
				_, err := p.UndoLast(ctx)
				So(err, ShouldEqual, outcome.ErrNothingToUndo)
			})
		})
	})

	Convey("Given restored history", t, func() {
		p, store, _ := newProcessor()
		group := model.ComparisonGroup{Members: []model.EntityID{"a", "b"}}
		_, err := p.ProcessOutcome(ctx, group, []model.EntityID{"a"})
		So(err, ShouldBeNil)

		saved := p.History()
		total := p.TotalComparisons()

		fresh := outcome.New(store, rating.NewUpdater(), recency.New())
		fresh.Restore(saved, total)

		Convey("Then the restored log matches and remains undoable", func() {
			So(fresh.History(), ShouldResemble, saved)
			So(fresh.TotalComparisons(), ShouldEqual, total)

			_, err := fresh.UndoLast(ctx)
			So(err, ShouldBeNil)
			So(fresh.TotalComparisons(), ShouldEqual, 0)
		})
	})
}

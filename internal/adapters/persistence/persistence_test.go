package persistence_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/okian/versus/internal/adapters/persistence"
	"github.com/okian/versus/internal/adapters/repository"
	"github.com/okian/versus/internal/domain/model"
	"github.com/okian/versus/internal/domain/rating"
	"github.com/okian/versus/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	_ = logger.Init()
}

func TestFileBackend(t *testing.T) {
	ctx := context.Background()

	Convey("Given a file backend in a temp dir", t, func() {
		path := filepath.Join(t.TempDir(), "state.json")
		b, err := persistence.NewFileBackend(path)
		So(err, ShouldBeNil)

		Convey("When saving and reloading ratings", func() {
			ratings := map[model.EntityID]rating.Record{
				"a": {Mean: 28, Uncertainty: 6, Comparisons: 3},
			}
			So(b.SaveRatings(ctx, ratings), ShouldBeNil)

			reopened, err := persistence.NewFileBackend(path)
			So(err, ShouldBeNil)
			loaded, err := reopened.LoadRatings(ctx)

			Convey("Then the ratings round-trip", func() {
				So(err, ShouldBeNil)
				So(loaded, ShouldHaveLength, 1)
				So(loaded["a"].Mean, ShouldEqual, 28.0)
				So(loaded["a"].Comparisons, ShouldEqual, 3)
			})
		})

		Convey("When saving history, tasks and freeze flags", func() {
			history := []model.OutcomeRecord{{ID: "o1", Winner: "a", Loser: "b", Applied: true, Timestamp: time.Now().UTC()}}
			tasks := []model.RefinementTask{{Primary: "a", Opponent: "b", Reason: "reorder"}}
			frozen := []repository.FreezeKey{{ID: "c", Tier: 50}}

			So(b.SaveHistory(ctx, history), ShouldBeNil)
			So(b.SaveTasks(ctx, tasks), ShouldBeNil)
			So(b.SaveFrozen(ctx, frozen), ShouldBeNil)

			reopened, err := persistence.NewFileBackend(path)
			So(err, ShouldBeNil)

			Convey("Then every section round-trips", func() {
				h, err := reopened.LoadHistory(ctx)
				So(err, ShouldBeNil)
				So(h, ShouldHaveLength, 1)
				So(h[0].Winner, ShouldEqual, model.EntityID("a"))

				ts, err := reopened.LoadTasks(ctx)
				So(err, ShouldBeNil)
				So(ts, ShouldResemble, tasks)

				fr, err := reopened.LoadFrozen(ctx)
				So(err, ShouldBeNil)
				So(fr, ShouldResemble, frozen)
			})
		})

		Convey("When the state file does not exist yet", func() {
			fresh, err := persistence.NewFileBackend(filepath.Join(t.TempDir(), "missing.json"))
			So(err, ShouldBeNil)
			loaded, err := fresh.LoadRatings(ctx)

			Convey("Then loads return empty state without error", func() {
				So(err, ShouldBeNil)
				So(loaded, ShouldBeEmpty)
			})
		})

		Convey("When the path is empty", func() {
			_, err := persistence.NewFileBackend("")
			So(err, ShouldNotBeNil)
		})
	})
}

// flakyBackend fails the first n SaveRatings calls.
type flakyBackend struct {
	mu        sync.Mutex
	failures  int
	saveCount int
	saved     map[model.EntityID]rating.Record
}

func (f *flakyBackend) SaveRatings(_ context.Context, r map[model.EntityID]rating.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saveCount++
	if f.saveCount <= f.failures {
		return errors.New("backend unavailable")
	}
	f.saved = r
	return nil
}

func (f *flakyBackend) LoadRatings(context.Context) (map[model.EntityID]rating.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.saved, nil
}

func (f *flakyBackend) SaveHistory(context.Context, []model.OutcomeRecord) error { return nil }
func (f *flakyBackend) LoadHistory(context.Context) ([]model.OutcomeRecord, error) {
	return nil, nil
}
func (f *flakyBackend) SaveTasks(context.Context, []model.RefinementTask) error { return nil }
func (f *flakyBackend) LoadTasks(context.Context) ([]model.RefinementTask, error) {
	return nil, nil
}
func (f *flakyBackend) SaveFrozen(context.Context, []repository.FreezeKey) error { return nil }
func (f *flakyBackend) LoadFrozen(context.Context) ([]repository.FreezeKey, error) {
	return nil, nil
}

func (f *flakyBackend) savedRatings() map[model.EntityID]rating.Record {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.saved
}

func TestFlusher(t *testing.T) {
	Convey("Given a flusher over a healthy backend", t, func() {
		backend := &flakyBackend{}
		state := persistence.State{
			Ratings: map[model.EntityID]rating.Record{"a": {Mean: 30, Uncertainty: 5, Comparisons: 2}},
		}
		f := persistence.NewFlusher(backend,
			func() persistence.State { return state },
			persistence.WithFlushDelay(10*time.Millisecond),
		)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		f.Start(ctx)

		Convey("When notified", func() {
			f.Notify()

			Convey("Then the snapshot lands in the backend", func() {
				So(func() bool {
					deadline := time.After(2 * time.Second)
					for {
						select {
						case <-deadline:
							return false
						default:
						}
						if backend.savedRatings() != nil {
							return true
						}
						time.Sleep(5 * time.Millisecond)
					}
				}(), ShouldBeTrue)
				So(backend.savedRatings()["a"].Mean, ShouldEqual, 30.0)
			})
		})
	})

	Convey("Given a flusher over a backend that fails once", t, func() {
		backend := &flakyBackend{failures: 1}
		state := persistence.State{
			Ratings: map[model.EntityID]rating.Record{"b": {Mean: 20, Uncertainty: 7, Comparisons: 1}},
		}
		f := persistence.NewFlusher(backend,
			func() persistence.State { return state },
			persistence.WithFlushDelay(5*time.Millisecond),
			persistence.WithRetries(3, 5*time.Millisecond),
		)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		f.Start(ctx)

		Convey("When notified", func() {
			f.Notify()

			Convey("Then the retry eventually succeeds", func() {
				So(func() bool {
					deadline := time.After(2 * time.Second)
					for {
						select {
						case <-deadline:
							return false
						default:
						}
						if backend.savedRatings() != nil {
							return true
						}
						time.Sleep(5 * time.Millisecond)
					}
				}(), ShouldBeTrue)
			})
		})
	})

	Convey("Given a started flusher", t, func() {
		backend := &flakyBackend{}
		f := persistence.NewFlusher(backend,
			func() persistence.State {
				return persistence.State{Ratings: map[model.EntityID]rating.Record{"c": {Mean: 1}}}
			},
			persistence.WithFlushDelay(time.Hour), // never fires on its own
		)
		f.Start(context.Background())

		Convey("When stopping", func() {
			f.Stop()

			Convey("Then a final flush is written", func() {
				So(backend.savedRatings(), ShouldNotBeNil)
			})
		})
	})
}

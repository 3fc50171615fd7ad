package recency_test

import (
	"fmt"
	"testing"

	"github.com/okian/versus/internal/domain/model"
	"github.com/okian/versus/internal/domain/recency"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMemoryIDs(t *testing.T) {
	Convey("Given a memory bounded to 3 ids", t, func() {
		m := recency.New(recency.WithIDCapacity(3))

		Convey("When remembering ids beyond capacity", func() {
			for i := 0; i < 5; i++ {
				m.RememberID(model.EntityID(fmt.Sprintf("e%d", i)))
			}

			Convey("Then the oldest inserted are evicted first", func() {
				So(m.IDCount(), ShouldEqual, 3)
				So(m.IsRecentID("e0"), ShouldBeFalse)
				So(m.IsRecentID("e1"), ShouldBeFalse)
				So(m.IsRecentID("e2"), ShouldBeTrue)
				So(m.IsRecentID("e4"), ShouldBeTrue)
			})
		})

		Convey("When remembering the same id twice", func() {
			m.RememberID("a")
			m.RememberID("a")

			Convey("Then it is stored once", func() {
				So(m.IDCount(), ShouldEqual, 1)
			})
		})

		Convey("When forgetting the oldest ids", func() {
			m.RememberID("a")
			m.RememberID("b")
			m.RememberID("c")
			m.ForgetOldestIDs(2)

			Convey("Then only the newest remain", func() {
				So(m.IsRecentID("a"), ShouldBeFalse)
				So(m.IsRecentID("b"), ShouldBeFalse)
				So(m.IsRecentID("c"), ShouldBeTrue)
			})
		})
	})
}

func TestMemoryPairs(t *testing.T) {
	Convey("Given a memory bounded to 2 pairs", t, func() {
		m := recency.New(recency.WithPairCapacity(2))

		Convey("When remembering pairs in either order", func() {
			m.RememberPair("a", "b")

			Convey("Then both orders are recent", func() {
				So(m.IsRecentPair("a", "b"), ShouldBeTrue)
				So(m.IsRecentPair("b", "a"), ShouldBeTrue)
			})
		})

		Convey("When exceeding pair capacity", func() {
			m.RememberPair("a", "b")
			m.RememberPair("c", "d")
			m.RememberPair("e", "f")

			Convey("Then the oldest pair is evicted", func() {
				So(m.IsRecentPair("a", "b"), ShouldBeFalse)
				So(m.IsRecentPair("c", "d"), ShouldBeTrue)
				So(m.PairCount(), ShouldEqual, 2)
			})
		})
	})
}

func TestMemoryGroups(t *testing.T) {
	Convey("Given a fresh memory", t, func() {
		m := recency.New()
		g := model.ComparisonGroup{Members: []model.EntityID{"a", "b", "c"}}

		Convey("When remembering a group", func() {
			m.RememberGroup(g)

			Convey("Then the exact group matches as the last issued", func() {
				reordered := model.ComparisonGroup{Members: []model.EntityID{"c", "a", "b"}}
				So(m.IsLastGroup(g), ShouldBeTrue)
				So(m.IsLastGroup(reordered), ShouldBeTrue)
			})

			Convey("Then all members and member pairs are recent", func() {
				So(m.IsRecentID("a"), ShouldBeTrue)
				So(m.IsRecentID("b"), ShouldBeTrue)
				So(m.IsRecentID("c"), ShouldBeTrue)
				So(m.IsRecentPair("a", "c"), ShouldBeTrue)
				So(m.IsRecentPair("b", "c"), ShouldBeTrue)
			})

			Convey("Then a different group does not match", func() {
				other := model.ComparisonGroup{Members: []model.EntityID{"a", "b", "d"}}
				So(m.IsLastGroup(other), ShouldBeFalse)
			})
		})

		Convey("When resetting", func() {
			m.RememberGroup(g)
			m.Reset()

			Convey("Then nothing is recent", func() {
				So(m.IDCount(), ShouldEqual, 0)
				So(m.PairCount(), ShouldEqual, 0)
				So(m.IsLastGroup(g), ShouldBeFalse)
			})
		})
	})
}

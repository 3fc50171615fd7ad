package model_test

import (
	"testing"

	"github.com/okian/versus/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestPairKey(t *testing.T) {
	Convey("Given two entity ids", t, func() {
		Convey("When building pair keys in either order", func() {
			k1 := model.PairKey("alpha", "beta")
			k2 := model.PairKey("beta", "alpha")

			Convey("Then the keys should collide", func() {
				So(k1, ShouldEqual, k2)
				So(k1, ShouldEqual, "alpha-beta")
			})
		})
	})
}

func TestComparisonGroup(t *testing.T) {
	Convey("Given a comparison group", t, func() {
		g := model.ComparisonGroup{Members: []model.EntityID{"c", "a", "b"}}

		Convey("When checking membership", func() {
			So(g.Contains("a"), ShouldBeTrue)
			So(g.Contains("z"), ShouldBeFalse)
		})

		Convey("When computing the unordered key", func() {
			Convey("Then member order should not matter", func() {
				g2 := model.ComparisonGroup{Members: []model.EntityID{"b", "c", "a"}}
				So(g.Key(), ShouldEqual, g2.Key())
				So(g.Key(), ShouldEqual, "a|b|c")
			})
		})
	})
}

func TestRefinementTaskKey(t *testing.T) {
	Convey("Given refinement tasks for the same unordered pair", t, func() {
		t1 := model.RefinementTask{Primary: "x", Opponent: "y"}
		t2 := model.RefinementTask{Primary: "y", Opponent: "x"}

		Convey("Then their keys should be equal", func() {
			So(t1.Key(), ShouldEqual, t2.Key())
		})
	})
}

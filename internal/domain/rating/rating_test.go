package rating_test

import (
	"math"
	"testing"

	"github.com/okian/versus/internal/domain/rating"
	. "github.com/smartystreets/goconvey/convey"
)

func TestRate1vs1(t *testing.T) {
	Convey("Given a default updater and two fresh entities", t, func() {
		u := rating.NewUpdater()
		a := u.Prior()
		b := u.Prior()

		Convey("When the first entity wins", func() {
			newA, newB, err := u.Rate1vs1(a, b)

			Convey("Then the winner's mean rises and the loser's falls", func() {
				So(err, ShouldBeNil)
				So(newA.Mean, ShouldBeGreaterThan, a.Mean)
				So(newB.Mean, ShouldBeLessThan, b.Mean)
			})

			Convey("Then both uncertainties shrink or hold", func() {
				So(err, ShouldBeNil)
				So(newA.Uncertainty, ShouldBeLessThanOrEqualTo, a.Uncertainty)
				So(newB.Uncertainty, ShouldBeLessThanOrEqualTo, b.Uncertainty)
			})

			Convey("Then both comparison counts increment", func() {
				So(newA.Comparisons, ShouldEqual, 1)
				So(newB.Comparisons, ShouldEqual, 1)
			})

			Convey("Then the update is symmetric around the prior", func() {
				So(newA.Mean-a.Mean, ShouldAlmostEqual, b.Mean-newB.Mean, 1e-9)
			})
		})

		Convey("When a heavy favorite wins", func() {
			favorite := rating.Record{Mean: 40, Uncertainty: 2, Comparisons: 10}
			underdog := rating.Record{Mean: 10, Uncertainty: 2, Comparisons: 10}
			newFav, newDog, err := u.Rate1vs1(favorite, underdog)

			Convey("Then the rating change is small", func() {
				So(err, ShouldBeNil)
				So(newFav.Mean-favorite.Mean, ShouldBeLessThan, 0.5)
				So(underdog.Mean-newDog.Mean, ShouldBeLessThan, 0.5)
				So(newFav.Mean, ShouldBeGreaterThanOrEqualTo, favorite.Mean)
			})
		})

		Convey("When an upset happens", func() {
			favorite := rating.Record{Mean: 40, Uncertainty: 2, Comparisons: 10}
			underdog := rating.Record{Mean: 10, Uncertainty: 2, Comparisons: 10}
			newDog, newFav, err := u.Rate1vs1(underdog, favorite)

			Convey("Then the winner gains more than a routine win would give", func() {
				So(err, ShouldBeNil)
				So(newDog.Mean-underdog.Mean, ShouldBeGreaterThan, 1.0)
				So(favorite.Mean-newFav.Mean, ShouldBeGreaterThan, 1.0)
			})
		})

		Convey("When inputs are degenerate", func() {
			bad := rating.Record{Mean: math.NaN(), Uncertainty: math.Inf(1)}
			_, _, err := u.Rate1vs1(bad, b)

			Convey("Then ErrNumericDegenerate is returned", func() {
				So(err, ShouldNotBeNil)
				So(err.Error(), ShouldContainSubstring, "degenerate")
			})
		})

		Convey("When many updates repeat between the same pair", func() {
			x, y := u.Prior(), u.Prior()
			for i := 0; i < 50; i++ {
				var err error
				x, y, err = u.Rate1vs1(x, y)
				So(err, ShouldBeNil)
			}

			Convey("Then uncertainty stays at or above the floor", func() {
				So(x.Uncertainty, ShouldBeGreaterThanOrEqualTo, 0.5)
				So(y.Uncertainty, ShouldBeGreaterThanOrEqualTo, 0.5)
			})
		})
	})
}

func TestScores(t *testing.T) {
	Convey("Given an updater with k=3", t, func() {
		u := rating.NewUpdater(rating.WithConservativeK(3))

		Convey("When computing the conservative score", func() {
			r := rating.Record{Mean: 30, Uncertainty: 4}

			Convey("Then it equals mean - 3*uncertainty", func() {
				So(u.ConservativeScore(r), ShouldAlmostEqual, 18.0, 1e-9)
			})
		})

		Convey("When computing confidence", func() {
			Convey("Then a fresh prior has zero confidence", func() {
				So(u.ConfidencePercent(u.Prior()), ShouldAlmostEqual, 0, 1e-9)
			})

			Convey("Then lower uncertainty means higher confidence", func() {
				half := rating.Record{Mean: 25, Uncertainty: u.Prior().Uncertainty / 2}
				So(u.ConfidencePercent(half), ShouldAlmostEqual, 50, 1e-9)
			})

			Convey("Then confidence is clamped to [0, 100]", func() {
				high := rating.Record{Mean: 25, Uncertainty: 0}
				low := rating.Record{Mean: 25, Uncertainty: 100}
				So(u.ConfidencePercent(high), ShouldEqual, 100)
				So(u.ConfidencePercent(low), ShouldEqual, 0)
			})
		})
	})
}

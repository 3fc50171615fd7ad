// Package rating implements the two-player Gaussian skill update used to
// turn pairwise comparison outcomes into (mean, uncertainty) estimates.
//
// The update follows the TrueSkill 1-vs-1 rule: the winner's mean rises,
// the loser's mean falls, and both uncertainties shrink by a factor derived
// from how surprising the outcome was. The dynamics term is intentionally
// zero so uncertainty is monotonically non-increasing.
package rating

import (
	"fmt"
	"math"
)

// Default rating configuration constants.
const (
	defaultMean        = 25.0
	defaultUncertainty = defaultMean / 3.0
	defaultFloor       = 0.5
	defaultConservK    = 3.0
	maxConfidence      = 100.0
)

// Record summarizes belief about one entity's relative strength.
type Record struct {
	Mean        float64 `json:"mean"`
	Uncertainty float64 `json:"uncertainty"`
	Comparisons int     `json:"comparisons"`
}

// Updater applies the pairwise skill update under a fixed configuration.
type Updater struct {
	priorMean        float64
	priorUncertainty float64
	floor            float64
	conservativeK    float64
	beta             float64 // performance noise; defaults to priorUncertainty/2
}

// Option applies a configuration option to the Updater.
type Option func(*Updater)

// WithPrior sets the default prior for unrated entities.
func WithPrior(mean, uncertainty float64) Option {
	return func(u *Updater) {
		if uncertainty > 0 {
			u.priorMean = mean
			u.priorUncertainty = uncertainty
			u.beta = uncertainty / 2
		}
	}
}

// WithUncertaintyFloor clamps how far uncertainty may shrink.
func WithUncertaintyFloor(floor float64) Option {
	return func(u *Updater) {
		if floor >= 0 {
			u.floor = floor
		}
	}
}

// WithConservativeK sets the multiplier in mean - k*uncertainty.
func WithConservativeK(k float64) Option {
	return func(u *Updater) {
		if k >= 0 {
			u.conservativeK = k
		}
	}
}

// NewUpdater creates an Updater with configuration options.
func NewUpdater(opts ...Option) *Updater {
	u := &Updater{
		priorMean:        defaultMean,
		priorUncertainty: defaultUncertainty,
		floor:            defaultFloor,
		conservativeK:    defaultConservK,
		beta:             defaultUncertainty / 2,
	}

	for _, opt := range opts {
		opt(u)
	}

	return u
}

// Prior returns the default record for an entity never compared.
func (u *Updater) Prior() Record {
	return Record{Mean: u.priorMean, Uncertainty: u.priorUncertainty}
}

// ConservativeScore returns the pessimistic point estimate used for sorting.
func (u *Updater) ConservativeScore(r Record) float64 {
	return r.Mean - u.conservativeK*r.Uncertainty
}

// ConfidencePercent maps uncertainty onto [0, 100]: 100 at the floor, 0 at
// the prior uncertainty ceiling.
func (u *Updater) ConfidencePercent(r Record) float64 {
	pct := maxConfidence * (1 - r.Uncertainty/u.priorUncertainty)
	return math.Max(0, math.Min(maxConfidence, pct))
}

// Rate1vs1 returns the post-outcome records for a winner and loser.
// Inputs are unchanged; ErrNumericDegenerate is returned when the update
// would produce a non-finite value, and callers must keep the old records.
func (u *Updater) Rate1vs1(winner, loser Record) (Record, Record, error) {
	c2 := 2*u.beta*u.beta + winner.Uncertainty*winner.Uncertainty + loser.Uncertainty*loser.Uncertainty
	c := math.Sqrt(c2)
	if !isFinite(c) || c == 0 {
		return Record{}, Record{}, fmt.Errorf("%w: zero or non-finite variance", ErrNumericDegenerate)
	}

	t := (winner.Mean - loser.Mean) / c
	v := vWin(t)
	w := v * (v + t)

	wVar := winner.Uncertainty * winner.Uncertainty
	lVar := loser.Uncertainty * loser.Uncertainty

	newWinner := Record{
		Mean:        winner.Mean + (wVar/c)*v,
		Uncertainty: math.Sqrt(wVar * (1 - (wVar/c2)*w)),
		Comparisons: winner.Comparisons + 1,
	}
	newLoser := Record{
		Mean:        loser.Mean - (lVar/c)*v,
		Uncertainty: math.Sqrt(lVar * (1 - (lVar/c2)*w)),
		Comparisons: loser.Comparisons + 1,
	}

	if !isFinite(newWinner.Mean) || !isFinite(newWinner.Uncertainty) ||
		!isFinite(newLoser.Mean) || !isFinite(newLoser.Uncertainty) {
		return Record{}, Record{}, fmt.Errorf("%w: non-finite update result", ErrNumericDegenerate)
	}

	newWinner.Uncertainty = math.Max(u.floor, newWinner.Uncertainty)
	newLoser.Uncertainty = math.Max(u.floor, newLoser.Uncertainty)

	return newWinner, newLoser, nil
}

// vWin is the additive correction v(t) = pdf(t)/cdf(t) for a win outcome.
func vWin(t float64) float64 {
	denom := cdf(t)
	if denom < 1e-300 {
		// Far tail: v(t) approaches -t.
		return -t
	}
	return pdf(t) / denom
}

func pdf(x float64) float64 {
	return math.Exp(-x*x/2) / math.Sqrt(2*math.Pi)
}

func cdf(x float64) float64 {
	return 0.5 * math.Erfc(-x/math.Sqrt2)
}

func isFinite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}

// Package scoring holds the pure functions that derive completion and validate
// rubric values. The lifecycle engine and the analytics projections both call
// into it, so the weight rule exists in exactly one place.
package scoring

import (
	"math"

	"github.com/okian/surgilog/internal/domain/model"
)

// Step weights.
const (
	weightNone    = 0.0
	weightPartial = 0.5
	weightFull    = 1.0
)

// StepWeight returns the credit a step contributes: full when both the resident
// and the teacher confirmed it, half when the confirmed score is b, none otherwise.
func StepWeight(s model.Step) float64 {
	if !s.ResidentDone || !s.TeacherDone {
		return weightNone
	}
	if s.Score == model.ScoreB {
		return weightPartial
	}
	return weightFull
}

// PercentCompleted is round(sum(StepWeight)/len(steps)*100), or 0 for no steps.
func PercentCompleted(steps []model.Step) int {
	if len(steps) == 0 {
		return 0
	}
	var sum float64
	for _, s := range steps {
		sum += StepWeight(s)
	}
	return int(math.Round(sum / float64(len(steps)) * 100))
}

// OsatBounds returns the lowest and highest punctuation of scale.
// ok is false for an empty scale.
func OsatBounds(scale []model.OsatScalePoint) (lo, hi int, ok bool) {
	if len(scale) == 0 {
		return 0, 0, false
	}
	lo, hi = scale[0].Punctuation, scale[0].Punctuation
	for _, p := range scale[1:] {
		lo = min(lo, p.Punctuation)
		hi = max(hi, p.Punctuation)
	}
	return lo, hi, true
}

// ValidateOsat accepts obtained when it lies within the bounds of scale,
// boundaries included.
func ValidateOsat(obtained int, scale []model.OsatScalePoint) error {
	const op = "scoring.validate_osat"
	lo, hi, ok := OsatBounds(scale)
	if !ok {
		return model.Invalid(op, "scale has no points")
	}
	if obtained < lo || obtained > hi {
		return model.Invalid(op, "obtained %d outside [%d, %d]", obtained, lo, hi)
	}
	return nil
}

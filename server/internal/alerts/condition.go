package alerts

import (
	"math"

	"github.com/brandlens/brandlens/pkg/types"
)

// equalsTolerance absorbs floating-point noise in computed metrics.
const equalsTolerance = 0.001

// Evaluate reports whether snap satisfies cond against threshold.
//
//	above       current > threshold
//	below       current < threshold
//	equals      |current - threshold| < 0.001
//	changes_by  |PercentChange(snap)| >= threshold
//
// Inputs are assumed validated: an unknown condition never fires.
func Evaluate(snap types.MetricSnapshot, cond types.ConditionKind, threshold float64) bool {
	switch cond {
	case types.ConditionAbove:
		return snap.Current > threshold
	case types.ConditionBelow:
		return snap.Current < threshold
	case types.ConditionEquals:
		return math.Abs(snap.Current-threshold) < equalsTolerance
	case types.ConditionChangesBy:
		return math.Abs(PercentChange(snap)) >= threshold
	default:
		return false
	}
}

// PercentChange returns the signed change of Current relative to Previous, in percent.
//
// A zero baseline yields 100 when Current is positive and 0 otherwise, so any
// growth from nothing counts as a full change.
func PercentChange(snap types.MetricSnapshot) float64 {
	if snap.Previous == 0 {
		if snap.Current > 0 {
			return 100
		}
		return 0
	}
	return (snap.Current - snap.Previous) / math.Abs(snap.Previous) * 100
}

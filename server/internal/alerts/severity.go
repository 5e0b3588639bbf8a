package alerts

import (
	"math"

	"github.com/brandlens/brandlens/pkg/types"
)

// Trend thresholds (absolute percent change) used by Classify.
const (
	criticalDeltaPct = 50.0
	warningDeltaPct  = 20.0
)

// Classify assigns a severity to a fired rule. First match wins:
//
//  1. hallucinations are always critical
//  2. any negative sentiment reading is critical
//  3. otherwise |PercentChange| >= 50 is critical, >= 20 warning, else info
func Classify(metric types.MetricKind, snap types.MetricSnapshot) types.Severity {
	if metric == types.MetricHallucinations {
		return types.SeverityCritical
	}
	if metric == types.MetricSentiment && snap.Current < 0 {
		return types.SeverityCritical
	}

	delta := math.Abs(PercentChange(snap))
	switch {
	case delta >= criticalDeltaPct:
		return types.SeverityCritical
	case delta >= warningDeltaPct:
		return types.SeverityWarning
	default:
		return types.SeverityInfo
	}
}

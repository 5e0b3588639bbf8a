package alerts

import (
	"context"
	"log/slog"

	"github.com/brandlens/brandlens/pkg/types"
)

// RunRules evaluates rules for clientID and returns one AlertEvent per rule
// that fires, in the order of rules.
//
// Disabled rules are skipped. A provider error or a non-finite snapshot for
// one rule is logged and that rule is skipped; the remaining rules are still
// evaluated.
func RunRules(ctx context.Context, clientID string, rules []types.AlertRule, metrics MetricsProvider) []types.AlertEvent {
	var out []types.AlertEvent
	for _, rule := range rules {
		if !rule.Enabled {
			continue
		}

		snap, err := metrics.Snapshot(ctx, clientID, rule.Metric)
		if err == nil {
			err = snap.Validate()
		}
		if err != nil {
			slog.Warn("alerts: snapshot unavailable, skipping rule",
				"client", clientID,
				"rule", rule.ID,
				"metric", rule.Metric,
				"err", err,
			)
			continue
		}

		if !Evaluate(snap, rule.Condition, rule.Threshold) {
			continue
		}

		out = append(out, types.AlertEvent{
			ClientID: clientID,
			RuleID:   rule.ID,
			Severity: Classify(rule.Metric, snap),
			Metric:   rule.Metric,
			Snapshot: snap,
		})
	}
	return out
}

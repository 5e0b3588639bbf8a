package alerts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/brandlens/brandlens/pkg/types"
)

// SweepResult reports the outcome of one hallucination sweep.
// NotificationsSent below Created means some deliveries failed and may be retried.
type SweepResult struct {
	Created           int `json:"created"`
	NotificationsSent int `json:"notifications_sent"`
}

// RunCriticalHallucinationSweep creates one critical alert and one
// notification for every unresolved critical hallucination case of clientID
// that has no alert yet.
//
// Cases are processed oldest first. Each case is claimed with MarkAlerted
// before its alert is written; a lost claim means a concurrent sweep owns the
// case and it is skipped. A failed alert write releases the claim when the
// provider supports it. Notification failures never roll back the alert.
//
// Running the sweep again without any case changing creates nothing.
func RunCriticalHallucinationSweep(
	ctx context.Context,
	clientID string,
	cases CaseProvider,
	store AlertStore,
	notifier Notifier,
) SweepResult {
	var res SweepResult

	pending, err := cases.ListUnalertedCriticalCases(ctx, clientID)
	if err != nil {
		slog.Error("alerts: list hallucination cases failed",
			"client", clientID, "err", err)
		return res
	}

	sort.SliceStable(pending, func(i, j int) bool {
		if !pending[i].CreatedAt.Equal(pending[j].CreatedAt) {
			return pending[i].CreatedAt.Before(pending[j].CreatedAt)
		}
		return pending[i].ID < pending[j].ID
	})

	for _, c := range pending {
		if !qualifies(c, clientID) {
			continue
		}

		claimed, err := cases.MarkAlerted(ctx, c.ID)
		if err != nil {
			slog.Error("alerts: mark case alerted failed",
				"client", clientID, "case", c.ID, "err", err)
			continue
		}
		if !claimed {
			slog.Debug("alerts: case already claimed by another sweep",
				"client", clientID, "case", c.ID)
			continue
		}

		a, err := store.CreateAlert(ctx, types.Alert{
			ClientID: clientID,
			CaseID:   c.ID,
			Severity: types.SeverityCritical,
			Metric:   types.MetricHallucinations,
			Message:  caseMessage(c),
			DedupKey: "case:" + c.ID,
		})
		if errors.Is(err, ErrDuplicateAlert) {
			// The alert exists already; the claim just caught up with it.
			continue
		}
		if err != nil {
			slog.Error("alerts: create hallucination alert failed",
				"client", clientID, "case", c.ID, "err", err)
			release(ctx, cases, c.ID)
			continue
		}
		res.Created++

		slog.Warn("alert fired",
			"client", clientID,
			"alert", a.ID,
			"case", c.ID,
			"severity", a.Severity,
		)

		if err := notifier.Send(ctx, types.NewNotificationEvent(a)); err != nil {
			slog.Error("alerts: notification delivery failed, alert kept",
				"client", clientID, "alert", a.ID, "err", err)
			continue
		}
		res.NotificationsSent++
	}

	return res
}

// qualifies guards against providers that return more than was asked for.
func qualifies(c types.HallucinationCase, clientID string) bool {
	return c.ClientID == clientID &&
		c.RiskLevel == types.RiskCritical &&
		c.ResolvedAt == nil &&
		!c.HasAlert
}

func release(ctx context.Context, cases CaseProvider, caseID string) {
	r, ok := cases.(Releaser)
	if !ok {
		return
	}
	if err := r.ReleaseAlerted(ctx, caseID); err != nil {
		slog.Error("alerts: release case claim failed, needs manual follow-up",
			"case", caseID, "err", err)
	}
}

func caseMessage(c types.HallucinationCase) string {
	var b strings.Builder
	b.WriteString("Critical hallucination detected")
	if c.Platform != "" {
		fmt.Fprintf(&b, " on %s", c.Platform)
	}
	if c.Summary != "" {
		fmt.Fprintf(&b, ": %s", c.Summary)
	}
	fmt.Fprintf(&b, " (case %s)", c.ID)
	return b.String()
}

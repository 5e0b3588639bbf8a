package alerts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/brandlens/brandlens/pkg/types"
	"github.com/brandlens/brandlens/server/internal/telemetry"
)

const defaultWindow = 24 * time.Hour

// EvaluateResult reports the outcome of evaluating one client's rules.
type EvaluateResult struct {
	Fired             int `json:"fired"`
	Created           int `json:"created"`
	NotificationsSent int `json:"notifications_sent"`
}

// Deps are the collaborators an Engine works with. Clients is optional and
// only needed by Run.
type Deps struct {
	Rules    RuleSource
	Metrics  MetricsProvider
	Alerts   AlertStore
	Cases    CaseProvider
	Notifier Notifier
	Clients  ClientLister
	Counters *telemetry.Counters
}

// Engine evaluates alert rules and sweeps hallucination cases for a client,
// persisting alerts and delivering notifications.
//
// Engine keeps no per-client state; concurrent calls for different clients are
// safe. Duplicate protection lives in the stores: rule alerts are keyed by
// rule and evaluation window, hallucination alerts by the case claim.
type Engine struct {
	deps   Deps
	window time.Duration
	now    func() time.Time // injectable for deterministic tests
}

// New creates an Engine. window is the evaluation window used to de-duplicate
// rule alerts; zero means 24h. A nil Notifier falls back to LogNotifier.
func New(deps Deps, window time.Duration) *Engine {
	if window <= 0 {
		window = defaultWindow
	}
	if deps.Notifier == nil {
		deps.Notifier = LogNotifier{}
	}
	return &Engine{deps: deps, window: window, now: time.Now}
}

// EvaluateClient runs the client's enabled rules and records an alert for each
// rule that fires, at most once per rule per window.
func (e *Engine) EvaluateClient(ctx context.Context, clientID string) (EvaluateResult, error) {
	var res EvaluateResult

	rules, err := e.deps.Rules.ListRules(ctx, clientID, true)
	if err != nil {
		return res, fmt.Errorf("load rules for %q: %w", clientID, err)
	}

	byID := make(map[string]types.AlertRule, len(rules))
	for _, r := range rules {
		byID[r.ID] = r
	}

	events := RunRules(ctx, clientID, rules, countingMetrics{e.deps.Metrics, e.deps.Counters})
	res.Fired = len(events)

	windowStart := e.now().UTC().Truncate(e.window)
	notifier := e.notifier()
	for _, ev := range events {
		e.deps.Counters.Inc(telemetry.AlertsFired, string(ev.Severity))

		ruleID := ev.RuleID
		a, err := e.deps.Alerts.CreateAlert(ctx, types.Alert{
			ClientID: clientID,
			RuleID:   &ruleID,
			Severity: ev.Severity,
			Metric:   ev.Metric,
			Message:  ruleMessage(byID[ruleID], ev.Snapshot),
			DedupKey: fmt.Sprintf("rule:%s:%d", ruleID, windowStart.Unix()),
		})
		if errors.Is(err, ErrDuplicateAlert) {
			slog.Debug("alerts: rule already alerted in this window",
				"client", clientID, "rule", ruleID, "window_start", windowStart)
			continue
		}
		if err != nil {
			slog.Error("alerts: create rule alert failed",
				"client", clientID, "rule", ruleID, "err", err)
			continue
		}
		res.Created++
		e.deps.Counters.Inc(telemetry.AlertsCreated, string(a.Severity))

		slog.Warn("alert fired",
			"client", clientID,
			"rule", ruleID,
			"metric", a.Metric,
			"severity", a.Severity,
		)

		if err := notifier.Send(ctx, types.NewNotificationEvent(a)); err != nil {
			slog.Error("alerts: notification delivery failed, alert kept",
				"client", clientID, "alert", a.ID, "err", err)
			continue
		}
		res.NotificationsSent++
	}

	return res, nil
}

// Sweep runs the hallucination pipeline for clientID.
func (e *Engine) Sweep(ctx context.Context, clientID string) SweepResult {
	res := RunCriticalHallucinationSweep(ctx, clientID, e.deps.Cases, countingStore{e.deps.Alerts, e.deps.Counters}, e.notifier())
	if res.Created > 0 {
		slog.Info("alerts: hallucination sweep complete",
			"client", clientID,
			"created", res.Created,
			"notifications_sent", res.NotificationsSent,
		)
	}
	return res
}

// RunOnce evaluates and sweeps every known client.
func (e *Engine) RunOnce(ctx context.Context) {
	if e.deps.Clients == nil {
		return
	}
	clients, err := e.deps.Clients.ListClients(ctx)
	if err != nil {
		slog.Error("alerts: list clients failed", "err", err)
		return
	}
	for _, id := range clients {
		if ctx.Err() != nil {
			return
		}
		if _, err := e.EvaluateClient(ctx, id); err != nil {
			slog.Error("alerts: evaluate client failed", "client", id, "err", err)
		}
		e.Sweep(ctx, id)
	}
}

// Run calls RunOnce every interval until ctx is cancelled. A non-positive
// interval disables the loop.
func (e *Engine) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			e.RunOnce(ctx)
		}
	}
}

func (e *Engine) notifier() Notifier {
	return countingNotifier{e.deps.Notifier, e.deps.Counters}
}

func ruleMessage(rule types.AlertRule, snap types.MetricSnapshot) string {
	return fmt.Sprintf("%s %s %g: current %.2f, previous %.2f (%+.1f%%)",
		rule.Metric, rule.Condition, rule.Threshold,
		snap.Current, snap.Previous, PercentChange(snap))
}

// --- counting decorators ----------------------------------------------------

type countingMetrics struct {
	MetricsProvider
	counters *telemetry.Counters
}

func (m countingMetrics) Snapshot(ctx context.Context, clientID string, metric types.MetricKind) (types.MetricSnapshot, error) {
	snap, err := m.MetricsProvider.Snapshot(ctx, clientID, metric)
	if err == nil {
		err = snap.Validate()
	}
	if err != nil {
		m.counters.Inc(telemetry.RuleEvaluationErrors, "")
	}
	return snap, err
}

type countingStore struct {
	AlertStore
	counters *telemetry.Counters
}

func (s countingStore) CreateAlert(ctx context.Context, a types.Alert) (types.Alert, error) {
	out, err := s.AlertStore.CreateAlert(ctx, a)
	if err == nil {
		s.counters.Inc(telemetry.AlertsCreated, string(out.Severity))
	}
	return out, err
}

type countingNotifier struct {
	Notifier
	counters *telemetry.Counters
}

func (n countingNotifier) Send(ctx context.Context, ev types.NotificationEvent) error {
	err := n.Notifier.Send(ctx, ev)
	if err != nil {
		n.counters.Inc(telemetry.NotificationsFailed, string(ev.Severity))
	} else {
		n.counters.Inc(telemetry.NotificationsSent, string(ev.Severity))
	}
	return err
}

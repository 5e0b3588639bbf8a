package store

import (
	"context"
	"errors"
	"time"

	"github.com/brandlens/brandlens/pkg/types"
	"github.com/brandlens/brandlens/server/internal/alerts"
)

// ErrNotFound is returned when a rule, alert or case does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicateAlert is returned by CreateAlert when the dedup key is taken.
var ErrDuplicateAlert = alerts.ErrDuplicateAlert

// AlertFilter narrows ListAlerts. Zero values mean "no filter".
type AlertFilter struct {
	ClientID    string
	UnreadOnly  bool
	MinSeverity types.Severity
	Limit       int
}

// Store is the full persistence surface of the server. Both Memory and SQLite
// implement it, and with it every collaborator the alert engine consumes.
type Store interface {
	CreateRule(ctx context.Context, r types.AlertRule) (types.AlertRule, error)
	GetRule(ctx context.Context, id string) (types.AlertRule, error)
	ListRules(ctx context.Context, clientID string, enabledOnly bool) ([]types.AlertRule, error)
	UpdateRule(ctx context.Context, r types.AlertRule) (types.AlertRule, error)
	DisableRule(ctx context.Context, id string) error

	CreateAlert(ctx context.Context, a types.Alert) (types.Alert, error)
	ListAlerts(ctx context.Context, f AlertFilter) ([]types.Alert, error)
	MarkAlertRead(ctx context.Context, id string) (types.Alert, error)

	CreateCase(ctx context.Context, c types.HallucinationCase) (types.HallucinationCase, error)
	ResolveCase(ctx context.Context, id string) error
	ListUnalertedCriticalCases(ctx context.Context, clientID string) ([]types.HallucinationCase, error)
	MarkAlerted(ctx context.Context, caseID string) (bool, error)
	ReleaseAlerted(ctx context.Context, caseID string) error

	RecordSample(ctx context.Context, s types.MetricSample) error
	Snapshot(ctx context.Context, clientID string, metric types.MetricKind) (types.MetricSnapshot, error)

	ListClients(ctx context.Context) ([]string, error)
	Close() error
}

var (
	_ Store                  = (*Memory)(nil)
	_ Store                  = (*SQLite)(nil)
	_ alerts.MetricsProvider = (*SQLite)(nil)
	_ alerts.CaseProvider    = (*SQLite)(nil)
	_ alerts.Releaser        = (*SQLite)(nil)
	_ alerts.AlertStore      = (*SQLite)(nil)
	_ alerts.RuleSource      = (*SQLite)(nil)
	_ alerts.ClientLister    = (*Memory)(nil)
)

// windows returns the bounds of the current [curStart, now) and previous
// [prevStart, curStart) comparison windows.
func windows(now time.Time, w time.Duration) (prevStart, curStart time.Time) {
	curStart = now.Add(-w)
	prevStart = curStart.Add(-w)
	return prevStart, curStart
}

// severityAllowed reports whether sev passes a MinSeverity filter.
func severityAllowed(sev, floor types.Severity) bool {
	return floor == "" || sev.AtLeast(floor)
}

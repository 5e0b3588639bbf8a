package alerts

import (
	"context"
	"errors"

	"github.com/brandlens/brandlens/pkg/types"
)

// ErrDuplicateAlert is returned by AlertStore.CreateAlert when an alert with
// the same DedupKey already exists.
var ErrDuplicateAlert = errors.New("duplicate alert")

// MetricsProvider computes the current/previous snapshot of a metric for a
// client. The comparison window is owned by the provider.
type MetricsProvider interface {
	Snapshot(ctx context.Context, clientID string, metric types.MetricKind) (types.MetricSnapshot, error)
}

// CaseProvider lists hallucination cases awaiting an alert and claims them.
//
// MarkAlerted must be a conditional write: it returns true only for the call
// that flipped has_alert from false to true. Concurrent sweeps rely on this to
// avoid duplicate alerts.
type CaseProvider interface {
	ListUnalertedCriticalCases(ctx context.Context, clientID string) ([]types.HallucinationCase, error)
	MarkAlerted(ctx context.Context, caseID string) (bool, error)
}

// Releaser is implemented by case providers that can undo a MarkAlerted claim.
// The sweep uses it when the alert for a claimed case could not be stored.
type Releaser interface {
	ReleaseAlerted(ctx context.Context, caseID string) error
}

// AlertStore persists alerts. CreateAlert assigns ID and CreatedAt, and
// rejects a non-empty DedupKey that is already taken with ErrDuplicateAlert.
type AlertStore interface {
	CreateAlert(ctx context.Context, a types.Alert) (types.Alert, error)
}

// Notifier delivers a notification event. A nil error means delivered.
type Notifier interface {
	Send(ctx context.Context, ev types.NotificationEvent) error
}

// RuleSource loads the alert rules of a client.
type RuleSource interface {
	ListRules(ctx context.Context, clientID string, enabledOnly bool) ([]types.AlertRule, error)
}

// ClientLister enumerates the clients that own rules or cases.
type ClientLister interface {
	ListClients(ctx context.Context) ([]string, error)
}

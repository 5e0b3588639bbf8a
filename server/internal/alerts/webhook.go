package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/brandlens/brandlens/pkg/types"
	"github.com/brandlens/brandlens/server/internal/config"
)

// ErrNoTargets is returned by WebhookNotifier.Send when no target has a URL.
var ErrNoTargets = errors.New("no webhook targets configured")

// WebhookNotifier delivers notification events to Slack, Teams, PagerDuty or
// generic HTTP webhooks. Targets can be swapped at runtime with SetTargets.
type WebhookNotifier struct {
	mu      sync.RWMutex
	targets []config.WebhookConfig
	client  *http.Client
}

// NewWebhookNotifier creates a notifier for the given targets.
func NewWebhookNotifier(targets []config.WebhookConfig) *WebhookNotifier {
	return &WebhookNotifier{
		targets: targets,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// SetTargets replaces the delivery targets, e.g. after a config reload.
func (n *WebhookNotifier) SetTargets(targets []config.WebhookConfig) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.targets = targets
}

// Send posts ev to every target. The event counts as delivered only if every
// target accepted it; failures are joined into the returned error.
func (n *WebhookNotifier) Send(ctx context.Context, ev types.NotificationEvent) error {
	n.mu.RLock()
	targets := n.targets
	n.mu.RUnlock()

	var errs []error
	delivered := 0
	for _, wh := range targets {
		url := wh.URL()
		if url == "" {
			continue
		}

		var body []byte
		switch wh.Type {
		case "slack":
			body = slackPayload(ev)
		case "teams":
			body = teamsPayload(ev)
		case "pagerduty", "http":
			body = httpPayload(ev)
		default:
			slog.Warn("alerts: unknown webhook type, skipping", "type", wh.Type)
			continue
		}

		if err := n.post(ctx, url, body); err != nil {
			errs = append(errs, fmt.Errorf("%s webhook: %w", wh.Type, err))
			continue
		}
		delivered++
		slog.Debug("alerts: webhook delivered",
			"type", wh.Type,
			"alert", ev.AlertID,
			"client", ev.ClientID,
		)
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	if delivered == 0 {
		return ErrNoTargets
	}
	return nil
}

func (n *WebhookNotifier) post(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("http post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned HTTP %d", resp.StatusCode)
	}
	return nil
}

func slackPayload(ev types.NotificationEvent) []byte {
	body, _ := json.Marshal(map[string]string{
		"text": fmt.Sprintf("*%s* [%s] %s", severityLabel(ev.Severity), ev.ClientID, ev.Message),
	})
	return body
}

func teamsPayload(ev types.NotificationEvent) []byte {
	body, _ := json.Marshal(map[string]interface{}{
		"@type":      "MessageCard",
		"@context":   "http://schema.org/extensions",
		"themeColor": severityColor(ev.Severity),
		"summary":    string(ev.Metric),
		"title":      fmt.Sprintf("Brandlens Alert: %s (%s)", ev.Metric, ev.ClientID),
		"text":       ev.Message,
	})
	return body
}

func httpPayload(ev types.NotificationEvent) []byte {
	body, _ := json.Marshal(map[string]interface{}{"event": ev})
	return body
}

func severityLabel(s types.Severity) string {
	switch s {
	case types.SeverityCritical:
		return "[CRITICAL]"
	case types.SeverityWarning:
		return "[WARNING]"
	default:
		return "[INFO]"
	}
}

func severityColor(s types.Severity) string {
	switch s {
	case types.SeverityCritical:
		return "FF4F6A"
	case types.SeverityWarning:
		return "FFAB40"
	default:
		return "00D4FF"
	}
}

// WithLogFallback returns a Notifier that delivers through n and, while n has
// no usable target, logs the event with LogNotifier instead.
func WithLogFallback(n *WebhookNotifier) Notifier {
	return logFallback{n}
}

type logFallback struct {
	hooks *WebhookNotifier
}

func (f logFallback) Send(ctx context.Context, ev types.NotificationEvent) error {
	err := f.hooks.Send(ctx, ev)
	if errors.Is(err, ErrNoTargets) {
		return LogNotifier{}.Send(ctx, ev)
	}
	return err
}

// LogNotifier writes notification events to the default slog logger. It is
// used when no webhook targets are configured and always succeeds.
type LogNotifier struct{}

// Send logs ev.
func (LogNotifier) Send(_ context.Context, ev types.NotificationEvent) error {
	slog.Info("alerts: notification",
		"alert", ev.AlertID,
		"client", ev.ClientID,
		"severity", ev.Severity,
		"metric", ev.Metric,
		"message", ev.Message,
	)
	return nil
}

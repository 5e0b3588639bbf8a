// Package telemetry keeps the alert engine's counters and renders them in the
// Prometheus text exposition format.
package telemetry

import (
	"fmt"
	"io"
	"sort"
	"sync"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"google.golang.org/protobuf/proto"
)

// Counter names exposed on /metrics.
const (
	AlertsFired          = "brandlens_alerts_fired_total"
	AlertsCreated        = "brandlens_alerts_created_total"
	NotificationsSent    = "brandlens_notifications_sent_total"
	NotificationsFailed  = "brandlens_notifications_failed_total"
	RuleEvaluationErrors = "brandlens_rule_evaluation_errors_total"
)

var help = map[string]string{
	AlertsFired:          "Alert rules that fired, before de-duplication.",
	AlertsCreated:        "Alert records created.",
	NotificationsSent:    "Notification events delivered.",
	NotificationsFailed:  "Notification events that could not be delivered.",
	RuleEvaluationErrors: "Rules skipped because no snapshot could be computed.",
}

type key struct {
	name     string
	severity string
}

// Counters is a set of monotonically increasing counters labelled by severity.
// The zero value is not usable; call New. A nil *Counters ignores all updates.
type Counters struct {
	mu     sync.Mutex
	values map[key]float64
}

// New returns Counters with every known counter registered at zero.
func New() *Counters {
	c := &Counters{values: make(map[key]float64)}
	for name := range help {
		c.values[key{name: name}] = 0
	}
	return c
}

// Inc adds one to the named counter. severity may be empty.
func (c *Counters) Inc(name, severity string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key{name, severity}]++
}

// Value returns the current value of one counter series.
func (c *Counters) Value(name, severity string) float64 {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.values[key{name, severity}]
}

// Families converts the counters to metric families sorted by name. Series
// with an empty severity are exported without a label.
func (c *Counters) Families() []*dto.MetricFamily {
	c.mu.Lock()
	defer c.mu.Unlock()

	byName := make(map[string]*dto.MetricFamily)
	for k, v := range c.values {
		mf, ok := byName[k.name]
		if !ok {
			mf = &dto.MetricFamily{
				Name: proto.String(k.name),
				Help: proto.String(help[k.name]),
				Type: dto.MetricType_COUNTER.Enum(),
			}
			byName[k.name] = mf
		}
		m := &dto.Metric{Counter: &dto.Counter{Value: proto.Float64(v)}}
		if k.severity != "" {
			m.Label = []*dto.LabelPair{{
				Name:  proto.String("severity"),
				Value: proto.String(k.severity),
			}}
		}
		mf.Metric = append(mf.Metric, m)
	}

	out := make([]*dto.MetricFamily, 0, len(byName))
	for _, mf := range byName {
		sort.Slice(mf.Metric, func(i, j int) bool {
			return labelOf(mf.Metric[i]) < labelOf(mf.Metric[j])
		})
		out = append(out, mf)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GetName() < out[j].GetName() })
	return out
}

// WriteText writes all counters to w in the Prometheus text format.
func (c *Counters) WriteText(w io.Writer) error {
	for _, mf := range c.Families() {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("telemetry: encode %s: %w", mf.GetName(), err)
		}
	}
	return nil
}

func labelOf(m *dto.Metric) string {
	if len(m.Label) == 0 {
		return ""
	}
	return m.Label[0].GetValue()
}

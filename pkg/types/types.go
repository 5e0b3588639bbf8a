package types

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Input errors returned by the Parse* helpers and Validate methods.
var (
	ErrUnknownMetric     = errors.New("unknown metric")
	ErrUnknownCondition  = errors.New("unknown condition")
	ErrUnknownSeverity   = errors.New("unknown severity")
	ErrUnknownRiskLevel  = errors.New("unknown risk level")
	ErrUnknownRole       = errors.New("unknown role")
	ErrNegativeThreshold = errors.New("threshold must not be negative")
	ErrNonFiniteSnapshot = errors.New("snapshot values must be finite")
	ErrMissingClient     = errors.New("client id is required")
)

// MetricKind identifies a tracked brand-presence metric.
type MetricKind string

const (
	MetricMentions           MetricKind = "mentions"
	MetricSentiment          MetricKind = "sentiment"
	MetricCitations          MetricKind = "citations"
	MetricHallucinations     MetricKind = "hallucinations"
	MetricCompetitorMovement MetricKind = "competitor_movement"
)

// MetricKinds lists every known metric in a stable order.
var MetricKinds = []MetricKind{
	MetricMentions,
	MetricSentiment,
	MetricCitations,
	MetricHallucinations,
	MetricCompetitorMovement,
}

// Valid reports whether m is one of the known metrics.
func (m MetricKind) Valid() bool {
	switch m {
	case MetricMentions, MetricSentiment, MetricCitations, MetricHallucinations, MetricCompetitorMovement:
		return true
	default:
		return false
	}
}

// Averaged reports whether the metric is a mean over its window rather than a count.
func (m MetricKind) Averaged() bool {
	return m == MetricSentiment || m == MetricCompetitorMovement
}

// ParseMetricKind converts s to a MetricKind.
func ParseMetricKind(s string) (MetricKind, error) {
	m := MetricKind(s)
	if !m.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownMetric, s)
	}
	return m, nil
}

// ConditionKind is the comparison applied by an alert rule.
type ConditionKind string

const (
	ConditionAbove     ConditionKind = "above"
	ConditionBelow     ConditionKind = "below"
	ConditionEquals    ConditionKind = "equals"
	ConditionChangesBy ConditionKind = "changes_by"
)

// Valid reports whether c is one of the known conditions.
func (c ConditionKind) Valid() bool {
	switch c {
	case ConditionAbove, ConditionBelow, ConditionEquals, ConditionChangesBy:
		return true
	default:
		return false
	}
}

// ParseConditionKind converts s to a ConditionKind.
func ParseConditionKind(s string) (ConditionKind, error) {
	c := ConditionKind(s)
	if !c.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownCondition, s)
	}
	return c, nil
}

// Severity is the risk tier attached to an alert. Ordered info < warning < critical.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Rank returns the position of s in the severity order, or -1 if s is unknown.
func (s Severity) Rank() int {
	switch s {
	case SeverityInfo:
		return 0
	case SeverityWarning:
		return 1
	case SeverityCritical:
		return 2
	default:
		return -1
	}
}

// AtLeast reports whether s is as severe as other.
func (s Severity) AtLeast(other Severity) bool {
	return s.Rank() >= other.Rank()
}

// ParseSeverity converts s to a Severity.
func ParseSeverity(s string) (Severity, error) {
	sev := Severity(s)
	if sev.Rank() < 0 {
		return "", fmt.Errorf("%w: %q", ErrUnknownSeverity, s)
	}
	return sev, nil
}

// RiskLevel is the risk assigned to a hallucination case by the detection pipeline.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// ParseRiskLevel converts s to a RiskLevel.
func ParseRiskLevel(s string) (RiskLevel, error) {
	switch r := RiskLevel(s); r {
	case RiskLow, RiskMedium, RiskHigh, RiskCritical:
		return r, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownRiskLevel, s)
	}
}

// Role is the dashboard role of the caller, as asserted by the upstream proxy.
type Role string

const (
	RoleViewer Role = "viewer"
	RoleEditor Role = "editor"
	RoleAdmin  Role = "admin"
)

// ParseRole converts s to a Role. An empty string is a viewer.
func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case "":
		return RoleViewer, nil
	case RoleViewer, RoleEditor, RoleAdmin:
		return r, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, s)
	}
}

// CanEditRules reports whether the role may create or change alert rules.
func (r Role) CanEditRules() bool {
	return r == RoleEditor || r == RoleAdmin
}

// MetricSnapshot is the latest and prior value of a metric over a rolling window.
type MetricSnapshot struct {
	Current  float64 `json:"current"`
	Previous float64 `json:"previous"`
}

// NewSnapshot builds a snapshot, rejecting NaN and infinite readings.
func NewSnapshot(current, previous float64) (MetricSnapshot, error) {
	s := MetricSnapshot{Current: current, Previous: previous}
	if err := s.Validate(); err != nil {
		return MetricSnapshot{}, err
	}
	return s, nil
}

// Validate returns ErrNonFiniteSnapshot if either value is NaN or infinite.
func (s MetricSnapshot) Validate() error {
	if !finite(s.Current) || !finite(s.Previous) {
		return fmt.Errorf("%w: current=%v previous=%v", ErrNonFiniteSnapshot, s.Current, s.Previous)
	}
	return nil
}

// AlertRule is a user-defined threshold on one metric for one client.
// Disabled rules are kept rather than deleted.
type AlertRule struct {
	ID        string        `json:"id"`
	ClientID  string        `json:"client_id"`
	Metric    MetricKind    `json:"metric"`
	Condition ConditionKind `json:"condition"`
	Threshold float64       `json:"threshold"`
	Enabled   bool          `json:"enabled"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// Validate checks the rule before it is stored or evaluated.
func (r AlertRule) Validate() error {
	if r.ClientID == "" {
		return ErrMissingClient
	}
	if !r.Metric.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownMetric, r.Metric)
	}
	if !r.Condition.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownCondition, r.Condition)
	}
	if !finite(r.Threshold) {
		return fmt.Errorf("threshold must be finite, got %v", r.Threshold)
	}
	if r.Condition == ConditionChangesBy && r.Threshold < 0 {
		return fmt.Errorf("%w: changes_by %v", ErrNegativeThreshold, r.Threshold)
	}
	return nil
}

// AlertEvent is produced by the rule engine when an enabled rule fires.
type AlertEvent struct {
	ClientID string         `json:"client_id"`
	RuleID   string         `json:"rule_id"`
	Severity Severity       `json:"severity"`
	Metric   MetricKind     `json:"metric"`
	Snapshot MetricSnapshot `json:"snapshot"`
}

// Alert is a persisted alert record. RuleID is nil for system-generated
// hallucination alerts, which carry CaseID instead. DedupKey, when set, is
// unique across the alert store.
type Alert struct {
	ID        string     `json:"id"`
	ClientID  string     `json:"client_id"`
	RuleID    *string    `json:"rule_id"`
	CaseID    string     `json:"case_id,omitempty"`
	Severity  Severity   `json:"severity"`
	Metric    MetricKind `json:"metric"`
	Message   string     `json:"message"`
	DedupKey  string     `json:"-"`
	CreatedAt time.Time  `json:"created_at"`
	ReadAt    *time.Time `json:"read_at"`
}

// HallucinationCase is a detected AI-platform answer that misrepresents the brand.
type HallucinationCase struct {
	ID         string     `json:"id"`
	ClientID   string     `json:"client_id"`
	RiskLevel  RiskLevel  `json:"risk_level"`
	Platform   string     `json:"platform,omitempty"`
	Summary    string     `json:"summary,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	ResolvedAt *time.Time `json:"resolved_at"`
	HasAlert   bool       `json:"has_alert"`
}

// NotificationEvent is the contract accepted by notification delivery targets.
type NotificationEvent struct {
	AlertID   string     `json:"alert_id"`
	ClientID  string     `json:"client_id"`
	Severity  Severity   `json:"severity"`
	Metric    MetricKind `json:"metric"`
	Message   string     `json:"message"`
	CreatedAt time.Time  `json:"created_at"`
}

// NewNotificationEvent builds the event for a persisted alert.
func NewNotificationEvent(a Alert) NotificationEvent {
	return NotificationEvent{
		AlertID:   a.ID,
		ClientID:  a.ClientID,
		Severity:  a.Severity,
		Metric:    a.Metric,
		Message:   a.Message,
		CreatedAt: a.CreatedAt,
	}
}

// MetricSample is one raw observation recorded by the upstream collectors.
type MetricSample struct {
	ClientID   string     `json:"client_id"`
	Metric     MetricKind `json:"metric"`
	Value      float64    `json:"value"`
	ObservedAt time.Time  `json:"observed_at"`
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

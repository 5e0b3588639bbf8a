package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/brandlens/brandlens/pkg/types"
)

// Memory is a thread-safe in-memory Store. Nothing survives a restart.
type Memory struct {
	mu       sync.RWMutex
	rules    map[string]types.AlertRule
	ruleIDs  []string // insertion order
	alerts   map[string]types.Alert
	alertIDs []string          // insertion order
	dedup    map[string]string // dedup key -> alert ID
	cases    map[string]types.HallucinationCase
	samples  []types.MetricSample
	window   time.Duration
	now      func() time.Time // injectable for deterministic tests
}

// NewMemory creates a Memory store whose metric snapshots compare two
// consecutive windows of length window.
func NewMemory(window time.Duration) *Memory {
	return &Memory{
		rules:  make(map[string]types.AlertRule),
		alerts: make(map[string]types.Alert),
		dedup:  make(map[string]string),
		cases:  make(map[string]types.HallucinationCase),
		window: window,
		now:    time.Now,
	}
}

// --- rules ------------------------------------------------------------------

func (m *Memory) CreateRule(_ context.Context, r types.AlertRule) (types.AlertRule, error) {
	if err := r.Validate(); err != nil {
		return types.AlertRule{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if _, exists := m.rules[r.ID]; exists {
		return types.AlertRule{}, fmt.Errorf("rule %q already exists", r.ID)
	}
	now := m.now().UTC()
	r.CreatedAt, r.UpdatedAt = now, now
	m.rules[r.ID] = r
	m.ruleIDs = append(m.ruleIDs, r.ID)
	return r, nil
}

func (m *Memory) GetRule(_ context.Context, id string) (types.AlertRule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rules[id]
	if !ok {
		return types.AlertRule{}, ErrNotFound
	}
	return r, nil
}

// ListRules returns the client's rules in creation order.
func (m *Memory) ListRules(_ context.Context, clientID string, enabledOnly bool) ([]types.AlertRule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]types.AlertRule, 0)
	for _, id := range m.ruleIDs {
		r := m.rules[id]
		if r.ClientID != clientID || (enabledOnly && !r.Enabled) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (m *Memory) UpdateRule(_ context.Context, r types.AlertRule) (types.AlertRule, error) {
	if err := r.Validate(); err != nil {
		return types.AlertRule{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	prev, ok := m.rules[r.ID]
	if !ok {
		return types.AlertRule{}, ErrNotFound
	}
	r.CreatedAt = prev.CreatedAt
	r.UpdatedAt = m.now().UTC()
	m.rules[r.ID] = r
	return r, nil
}

// DisableRule soft-disables a rule; it stays listed but is never evaluated.
func (m *Memory) DisableRule(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rules[id]
	if !ok {
		return ErrNotFound
	}
	r.Enabled = false
	r.UpdatedAt = m.now().UTC()
	m.rules[id] = r
	return nil
}

// --- alerts -----------------------------------------------------------------

func (m *Memory) CreateAlert(_ context.Context, a types.Alert) (types.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if a.DedupKey != "" {
		if _, taken := m.dedup[a.DedupKey]; taken {
			return types.Alert{}, ErrDuplicateAlert
		}
	}
	a.ID = uuid.NewString()
	a.CreatedAt = m.now().UTC()
	a.ReadAt = nil
	m.alerts[a.ID] = a
	m.alertIDs = append(m.alertIDs, a.ID)
	if a.DedupKey != "" {
		m.dedup[a.DedupKey] = a.ID
	}
	return a, nil
}

// ListAlerts returns matching alerts, newest first.
func (m *Memory) ListAlerts(_ context.Context, f AlertFilter) ([]types.Alert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]types.Alert, 0)
	for i := len(m.alertIDs) - 1; i >= 0; i-- {
		a := m.alerts[m.alertIDs[i]]
		if f.ClientID != "" && a.ClientID != f.ClientID {
			continue
		}
		if f.UnreadOnly && a.ReadAt != nil {
			continue
		}
		if !severityAllowed(a.Severity, f.MinSeverity) {
			continue
		}
		out = append(out, a)
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// MarkAlertRead sets ReadAt once; later calls keep the first timestamp.
func (m *Memory) MarkAlertRead(_ context.Context, id string) (types.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.alerts[id]
	if !ok {
		return types.Alert{}, ErrNotFound
	}
	if a.ReadAt == nil {
		now := m.now().UTC()
		a.ReadAt = &now
		m.alerts[id] = a
	}
	return a, nil
}

// --- hallucination cases ----------------------------------------------------

func (m *Memory) CreateCase(_ context.Context, c types.HallucinationCase) (types.HallucinationCase, error) {
	if c.ClientID == "" {
		return types.HallucinationCase{}, types.ErrMissingClient
	}
	if _, err := types.ParseRiskLevel(string(c.RiskLevel)); err != nil {
		return types.HallucinationCase{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if _, exists := m.cases[c.ID]; exists {
		return types.HallucinationCase{}, fmt.Errorf("case %q already exists", c.ID)
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = m.now().UTC()
	}
	c.HasAlert = false
	c.ResolvedAt = nil
	m.cases[c.ID] = c
	return c, nil
}

func (m *Memory) ResolveCase(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cases[id]
	if !ok {
		return ErrNotFound
	}
	if c.ResolvedAt == nil {
		now := m.now().UTC()
		c.ResolvedAt = &now
		m.cases[id] = c
	}
	return nil
}

// ListUnalertedCriticalCases returns unresolved critical cases without an
// alert, oldest first.
func (m *Memory) ListUnalertedCriticalCases(_ context.Context, clientID string) ([]types.HallucinationCase, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []types.HallucinationCase
	for _, c := range m.cases {
		if c.ClientID == clientID && c.RiskLevel == types.RiskCritical && c.ResolvedAt == nil && !c.HasAlert {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// MarkAlerted claims a case. Only the call that performs the transition
// returns true.
func (m *Memory) MarkAlerted(_ context.Context, caseID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cases[caseID]
	if !ok {
		return false, ErrNotFound
	}
	if c.HasAlert {
		return false, nil
	}
	c.HasAlert = true
	m.cases[caseID] = c
	return true, nil
}

// ReleaseAlerted undoes a claim whose alert could not be written.
func (m *Memory) ReleaseAlerted(_ context.Context, caseID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cases[caseID]
	if !ok {
		return ErrNotFound
	}
	c.HasAlert = false
	m.cases[caseID] = c
	return nil
}

// --- metric samples ---------------------------------------------------------

func (m *Memory) RecordSample(_ context.Context, s types.MetricSample) error {
	if s.ClientID == "" {
		return types.ErrMissingClient
	}
	if !s.Metric.Valid() {
		return fmt.Errorf("%w: %q", types.ErrUnknownMetric, s.Metric)
	}
	if _, err := types.NewSnapshot(s.Value, 0); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.ObservedAt.IsZero() {
		s.ObservedAt = m.now().UTC()
	}
	m.samples = append(m.samples, s)
	return nil
}

// Snapshot aggregates samples over the current and previous windows. Averaged
// metrics use the mean, count metrics the sum. An empty window reads as 0.
func (m *Memory) Snapshot(_ context.Context, clientID string, metric types.MetricKind) (types.MetricSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := m.now()
	prevStart, curStart := windows(now, m.window)

	var cur, prev aggregate
	for _, s := range m.samples {
		if s.ClientID != clientID || s.Metric != metric {
			continue
		}
		switch {
		case !s.ObservedAt.Before(curStart) && s.ObservedAt.Before(now):
			cur.add(s.Value)
		case !s.ObservedAt.Before(prevStart) && s.ObservedAt.Before(curStart):
			prev.add(s.Value)
		}
	}
	return types.NewSnapshot(cur.value(metric), prev.value(metric))
}

type aggregate struct {
	sum float64
	n   int
}

func (a *aggregate) add(v float64) {
	a.sum += v
	a.n++
}

func (a aggregate) value(metric types.MetricKind) float64 {
	if metric.Averaged() {
		if a.n == 0 {
			return 0
		}
		return a.sum / float64(a.n)
	}
	return a.sum
}

// --- clients ----------------------------------------------------------------

// ListClients returns every client that owns a rule or a case, sorted.
func (m *Memory) ListClients(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, r := range m.rules {
		seen[r.ClientID] = struct{}{}
	}
	for _, c := range m.cases {
		seen[c.ClientID] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

// Close is a no-op.
func (m *Memory) Close() error { return nil }

package alerts

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/brandlens/brandlens/pkg/types"
)

// fakeMetrics serves fixed snapshots per metric; errs makes a metric fail.
type fakeMetrics struct {
	snaps map[types.MetricKind]types.MetricSnapshot
	errs  map[types.MetricKind]error
	calls int
}

func (f *fakeMetrics) Snapshot(_ context.Context, _ string, metric types.MetricKind) (types.MetricSnapshot, error) {
	f.calls++
	if err := f.errs[metric]; err != nil {
		return types.MetricSnapshot{}, err
	}
	return f.snaps[metric], nil
}

// fakeCases is a thread-safe case table with a conditional claim.
type fakeCases struct {
	mu        sync.Mutex
	cases     map[string]types.HallucinationCase
	listErr   error
	loseClaim map[string]bool // claim returns false as if another sweep won
	released  []string
}

func newFakeCases(cs ...types.HallucinationCase) *fakeCases {
	f := &fakeCases{cases: make(map[string]types.HallucinationCase), loseClaim: make(map[string]bool)}
	for _, c := range cs {
		f.cases[c.ID] = c
	}
	return f
}

func (f *fakeCases) ListUnalertedCriticalCases(_ context.Context, clientID string) ([]types.HallucinationCase, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []types.HallucinationCase
	for _, c := range f.cases {
		if c.ClientID == clientID && c.RiskLevel == types.RiskCritical && c.ResolvedAt == nil && !c.HasAlert {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeCases) MarkAlerted(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loseClaim[id] {
		return false, nil
	}
	c, ok := f.cases[id]
	if !ok {
		return false, fmt.Errorf("case %q not found", id)
	}
	if c.HasAlert {
		return false, nil
	}
	c.HasAlert = true
	f.cases[id] = c
	return true, nil
}

func (f *fakeCases) ReleaseAlerted(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := f.cases[id]
	c.HasAlert = false
	f.cases[id] = c
	f.released = append(f.released, id)
	return nil
}

func (f *fakeCases) hasAlert(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cases[id].HasAlert
}

// fakeAlerts records created alerts and enforces dedup keys.
type fakeAlerts struct {
	mu      sync.Mutex
	created []types.Alert
	keys    map[string]bool
	failFor map[string]bool // case IDs whose alert write fails
	seq     int
}

func newFakeAlerts() *fakeAlerts {
	return &fakeAlerts{keys: make(map[string]bool), failFor: make(map[string]bool)}
}

func (f *fakeAlerts) CreateAlert(_ context.Context, a types.Alert) (types.Alert, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFor[a.CaseID] {
		return types.Alert{}, errors.New("disk full")
	}
	if a.DedupKey != "" {
		if f.keys[a.DedupKey] {
			return types.Alert{}, ErrDuplicateAlert
		}
		f.keys[a.DedupKey] = true
	}
	f.seq++
	a.ID = fmt.Sprintf("alert-%d", f.seq)
	f.created = append(f.created, a)
	return a, nil
}

func (f *fakeAlerts) all() []types.Alert {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]types.Alert(nil), f.created...)
}

// fakeNotifier records events; fail makes every send return an error.
type fakeNotifier struct {
	mu     sync.Mutex
	events []types.NotificationEvent
	fail   bool
}

func (f *fakeNotifier) Send(_ context.Context, ev types.NotificationEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	if f.fail {
		return errors.New("webhook unreachable")
	}
	return nil
}

type fakeRules struct {
	rules []types.AlertRule
	err   error
}

func (f *fakeRules) ListRules(_ context.Context, clientID string, enabledOnly bool) ([]types.AlertRule, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []types.AlertRule
	for _, r := range f.rules {
		if r.ClientID == clientID && (!enabledOnly || r.Enabled) {
			out = append(out, r)
		}
	}
	return out, nil
}

type fakeClients []string

func (f fakeClients) ListClients(context.Context) ([]string, error) { return f, nil }

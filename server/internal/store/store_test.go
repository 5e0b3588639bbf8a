package store

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brandlens/brandlens/pkg/types"
)

const testWindow = 24 * time.Hour

var base = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

// fixedClock returns a func() time.Time that always returns t.
func fixedClock(t time.Time) func() time.Time { return func() time.Time { return t } }

// backends runs fn against every Store implementation with a clock fixed at base.
func backends(t *testing.T, fn func(t *testing.T, st Store, setNow func(time.Time))) {
	t.Run("memory", func(t *testing.T) {
		m := NewMemory(testWindow)
		m.now = fixedClock(base)
		fn(t, m, func(ts time.Time) { m.now = fixedClock(ts) })
	})
	t.Run("sqlite", func(t *testing.T) {
		s, err := OpenSQLite(filepath.Join(t.TempDir(), "brandlens.db"), testWindow)
		require.NoError(t, err)
		t.Cleanup(func() { s.Close() })
		s.now = fixedClock(base)
		fn(t, s, func(ts time.Time) { s.now = fixedClock(ts) })
	})
}

func rule(client string, metric types.MetricKind, cond types.ConditionKind, threshold float64) types.AlertRule {
	return types.AlertRule{ClientID: client, Metric: metric, Condition: cond, Threshold: threshold, Enabled: true}
}

func TestRules_CRUD(t *testing.T) {
	backends(t, func(t *testing.T, st Store, setNow func(time.Time)) {
		ctx := context.Background()

		r1, err := st.CreateRule(ctx, rule("acme", types.MetricMentions, types.ConditionAbove, 10))
		require.NoError(t, err)
		assert.NotEmpty(t, r1.ID)
		assert.Equal(t, base, r1.CreatedAt)

		setNow(base.Add(time.Second))
		r2, err := st.CreateRule(ctx, rule("acme", types.MetricSentiment, types.ConditionBelow, 0))
		require.NoError(t, err)
		_, err = st.CreateRule(ctx, rule("globex", types.MetricCitations, types.ConditionChangesBy, 20))
		require.NoError(t, err)

		got, err := st.GetRule(ctx, r1.ID)
		require.NoError(t, err)
		assert.Equal(t, types.MetricMentions, got.Metric)
		assert.Equal(t, 10.0, got.Threshold)
		assert.True(t, got.Enabled)

		rules, err := st.ListRules(ctx, "acme", false)
		require.NoError(t, err)
		require.Len(t, rules, 2)
		assert.Equal(t, r1.ID, rules[0].ID)
		assert.Equal(t, r2.ID, rules[1].ID)

		require.NoError(t, st.DisableRule(ctx, r1.ID))
		enabled, err := st.ListRules(ctx, "acme", true)
		require.NoError(t, err)
		require.Len(t, enabled, 1)
		assert.Equal(t, r2.ID, enabled[0].ID)

		all, err := st.ListRules(ctx, "acme", false)
		require.NoError(t, err)
		assert.Len(t, all, 2, "disabled rules stay listed")

		r2.Threshold = -0.2
		updated, err := st.UpdateRule(ctx, r2)
		require.NoError(t, err)
		assert.Equal(t, -0.2, updated.Threshold)

		_, err = st.GetRule(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)
		assert.ErrorIs(t, st.DisableRule(ctx, "missing"), ErrNotFound)
	})
}

func TestRules_RejectInvalid(t *testing.T) {
	backends(t, func(t *testing.T, st Store, _ func(time.Time)) {
		ctx := context.Background()
		_, err := st.CreateRule(ctx, rule("acme", "clicks", types.ConditionAbove, 1))
		assert.ErrorIs(t, err, types.ErrUnknownMetric)
		_, err = st.CreateRule(ctx, rule("acme", types.MetricMentions, types.ConditionChangesBy, -5))
		assert.ErrorIs(t, err, types.ErrNegativeThreshold)
	})
}

func TestAlerts_DedupAndRead(t *testing.T) {
	backends(t, func(t *testing.T, st Store, setNow func(time.Time)) {
		ctx := context.Background()
		ruleID := "r1"

		a1, err := st.CreateAlert(ctx, types.Alert{
			ClientID: "acme", RuleID: &ruleID, Severity: types.SeverityWarning,
			Metric: types.MetricMentions, Message: "first", DedupKey: "rule:r1:1",
		})
		require.NoError(t, err)
		assert.NotEmpty(t, a1.ID)
		assert.Nil(t, a1.ReadAt)

		_, err = st.CreateAlert(ctx, types.Alert{
			ClientID: "acme", RuleID: &ruleID, Severity: types.SeverityWarning,
			Metric: types.MetricMentions, Message: "again", DedupKey: "rule:r1:1",
		})
		assert.ErrorIs(t, err, ErrDuplicateAlert)

		setNow(base.Add(time.Minute))
		a2, err := st.CreateAlert(ctx, types.Alert{
			ClientID: "acme", CaseID: "c1", Severity: types.SeverityCritical,
			Metric: types.MetricHallucinations, Message: "case",
		})
		require.NoError(t, err)
		assert.Nil(t, a2.RuleID)

		list, err := st.ListAlerts(ctx, AlertFilter{ClientID: "acme"})
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, a2.ID, list[0].ID, "newest first")
		require.NotNil(t, list[1].RuleID)
		assert.Equal(t, "r1", *list[1].RuleID)

		crit, err := st.ListAlerts(ctx, AlertFilter{ClientID: "acme", MinSeverity: types.SeverityCritical})
		require.NoError(t, err)
		require.Len(t, crit, 1)
		assert.Equal(t, "c1", crit[0].CaseID)

		setNow(base.Add(time.Hour))
		read, err := st.MarkAlertRead(ctx, a1.ID)
		require.NoError(t, err)
		require.NotNil(t, read.ReadAt)
		assert.Equal(t, base.Add(time.Hour), *read.ReadAt)

		setNow(base.Add(2 * time.Hour))
		again, err := st.MarkAlertRead(ctx, a1.ID)
		require.NoError(t, err)
		assert.Equal(t, base.Add(time.Hour), *again.ReadAt, "first read time is kept")

		unread, err := st.ListAlerts(ctx, AlertFilter{ClientID: "acme", UnreadOnly: true})
		require.NoError(t, err)
		require.Len(t, unread, 1)
		assert.Equal(t, a2.ID, unread[0].ID)

		limited, err := st.ListAlerts(ctx, AlertFilter{ClientID: "acme", Limit: 1})
		require.NoError(t, err)
		assert.Len(t, limited, 1)

		_, err = st.MarkAlertRead(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestCases_ClaimLifecycle(t *testing.T) {
	backends(t, func(t *testing.T, st Store, _ func(time.Time)) {
		ctx := context.Background()

		for i, risk := range []types.RiskLevel{types.RiskCritical, types.RiskCritical, types.RiskHigh} {
			_, err := st.CreateCase(ctx, types.HallucinationCase{
				ID: []string{"c2", "c1", "c3"}[i], ClientID: "acme", RiskLevel: risk,
				CreatedAt: base.Add(time.Duration(-i) * time.Hour),
			})
			require.NoError(t, err)
		}
		_, err := st.CreateCase(ctx, types.HallucinationCase{ID: "c4", ClientID: "acme", RiskLevel: types.RiskCritical})
		require.NoError(t, err)
		require.NoError(t, st.ResolveCase(ctx, "c4"))

		pending, err := st.ListUnalertedCriticalCases(ctx, "acme")
		require.NoError(t, err)
		require.Len(t, pending, 2)
		assert.Equal(t, "c1", pending[0].ID, "oldest first")
		assert.Equal(t, "c2", pending[1].ID)

		ok, err := st.MarkAlerted(ctx, "c1")
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = st.MarkAlerted(ctx, "c1")
		require.NoError(t, err)
		assert.False(t, ok, "second claim must lose")

		pending, err = st.ListUnalertedCriticalCases(ctx, "acme")
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, "c2", pending[0].ID)

		require.NoError(t, st.ReleaseAlerted(ctx, "c1"))
		pending, err = st.ListUnalertedCriticalCases(ctx, "acme")
		require.NoError(t, err)
		assert.Len(t, pending, 2)

		_, err = st.CreateCase(ctx, types.HallucinationCase{ClientID: "acme", RiskLevel: "extreme"})
		assert.ErrorIs(t, err, types.ErrUnknownRiskLevel)
		assert.ErrorIs(t, st.ResolveCase(ctx, "missing"), ErrNotFound)
	})
}

func TestCases_ConcurrentClaims(t *testing.T) {
	backends(t, func(t *testing.T, st Store, _ func(time.Time)) {
		ctx := context.Background()
		_, err := st.CreateCase(ctx, types.HallucinationCase{ID: "race", ClientID: "acme", RiskLevel: types.RiskCritical})
		require.NoError(t, err)

		var wins atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ok, err := st.MarkAlerted(ctx, "race")
				if err == nil && ok {
					wins.Add(1)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(1), wins.Load())
	})
}

func TestSnapshot_Windows(t *testing.T) {
	backends(t, func(t *testing.T, st Store, _ func(time.Time)) {
		ctx := context.Background()
		record := func(metric types.MetricKind, v float64, ago time.Duration) {
			t.Helper()
			require.NoError(t, st.RecordSample(ctx, types.MetricSample{
				ClientID: "acme", Metric: metric, Value: v, ObservedAt: base.Add(-ago),
			}))
		}

		// Current window: last 24h. Previous: 24h-48h ago. Older is ignored.
		record(types.MetricMentions, 15, time.Hour)
		record(types.MetricMentions, 10, 23*time.Hour)
		record(types.MetricMentions, 20, 30*time.Hour)
		record(types.MetricMentions, 99, 72*time.Hour)

		record(types.MetricSentiment, 0.5, 2*time.Hour)
		record(types.MetricSentiment, -0.1, 3*time.Hour)
		record(types.MetricSentiment, 0.8, 25*time.Hour)

		snap, err := st.Snapshot(ctx, "acme", types.MetricMentions)
		require.NoError(t, err)
		assert.Equal(t, types.MetricSnapshot{Current: 25, Previous: 20}, snap)

		snap, err = st.Snapshot(ctx, "acme", types.MetricSentiment)
		require.NoError(t, err)
		assert.InDelta(t, 0.2, snap.Current, 1e-9)
		assert.InDelta(t, 0.8, snap.Previous, 1e-9)

		empty, err := st.Snapshot(ctx, "acme", types.MetricCitations)
		require.NoError(t, err)
		assert.Equal(t, types.MetricSnapshot{}, empty)

		err = st.RecordSample(ctx, types.MetricSample{ClientID: "acme", Metric: "clicks", Value: 1})
		assert.ErrorIs(t, err, types.ErrUnknownMetric)
	})
}

func TestListClients(t *testing.T) {
	backends(t, func(t *testing.T, st Store, _ func(time.Time)) {
		ctx := context.Background()
		_, err := st.CreateRule(ctx, rule("globex", types.MetricMentions, types.ConditionAbove, 1))
		require.NoError(t, err)
		_, err = st.CreateRule(ctx, rule("acme", types.MetricMentions, types.ConditionAbove, 1))
		require.NoError(t, err)
		_, err = st.CreateCase(ctx, types.HallucinationCase{ClientID: "initech", RiskLevel: types.RiskLow})
		require.NoError(t, err)

		clients, err := st.ListClients(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"acme", "globex", "initech"}, clients)
	})
}

func TestMemory_ConcurrentMixedOps(t *testing.T) {
	st := NewMemory(testWindow)
	ctx := context.Background()
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			st.CreateAlert(ctx, types.Alert{ClientID: "acme", Severity: types.SeverityInfo}) //nolint:errcheck
		}()
		go func() {
			defer wg.Done()
			st.ListAlerts(ctx, AlertFilter{ClientID: "acme"}) //nolint:errcheck
		}()
	}
	wg.Wait()

	list, err := st.ListAlerts(ctx, AlertFilter{})
	require.NoError(t, err)
	assert.Len(t, list, 50)
}

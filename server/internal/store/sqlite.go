package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/brandlens/brandlens/pkg/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS alert_rules (
	id         TEXT PRIMARY KEY,
	client_id  TEXT NOT NULL,
	metric     TEXT NOT NULL,
	condition  TEXT NOT NULL,
	threshold  REAL NOT NULL,
	enabled    INTEGER NOT NULL DEFAULT 1,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_alert_rules_client ON alert_rules(client_id);

CREATE TABLE IF NOT EXISTS alerts (
	id         TEXT PRIMARY KEY,
	client_id  TEXT NOT NULL,
	rule_id    TEXT,
	case_id    TEXT NOT NULL DEFAULT '',
	severity   TEXT NOT NULL,
	metric     TEXT NOT NULL,
	message    TEXT NOT NULL,
	dedup_key  TEXT UNIQUE,
	created_at INTEGER NOT NULL,
	read_at    INTEGER
);
CREATE INDEX IF NOT EXISTS idx_alerts_client ON alerts(client_id, created_at);

CREATE TABLE IF NOT EXISTS hallucination_cases (
	id          TEXT PRIMARY KEY,
	client_id   TEXT NOT NULL,
	risk_level  TEXT NOT NULL,
	platform    TEXT NOT NULL DEFAULT '',
	summary     TEXT NOT NULL DEFAULT '',
	created_at  INTEGER NOT NULL,
	resolved_at INTEGER,
	has_alert   INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_cases_pending ON hallucination_cases(client_id, risk_level, has_alert);

CREATE TABLE IF NOT EXISTS metric_samples (
	client_id   TEXT NOT NULL,
	metric      TEXT NOT NULL,
	value       REAL NOT NULL,
	observed_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_samples_lookup ON metric_samples(client_id, metric, observed_at);
`

// SQLite is a Store backed by a SQLite database file.
type SQLite struct {
	db     *sql.DB
	window time.Duration
	now    func() time.Time // injectable for deterministic tests
}

// OpenSQLite opens (creating if needed) the database at path and applies the
// schema. window is the snapshot comparison window.
func OpenSQLite(path string, window time.Duration) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// One connection serialises writers and keeps ":memory:" databases shared.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite database: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &SQLite{db: db, window: window, now: time.Now}, nil
}

// Close closes the database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// --- rules ------------------------------------------------------------------

const ruleColumns = `id, client_id, metric, condition, threshold, enabled, created_at, updated_at`

func (s *SQLite) CreateRule(ctx context.Context, r types.AlertRule) (types.AlertRule, error) {
	if err := r.Validate(); err != nil {
		return types.AlertRule{}, err
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	now := s.now().UTC()
	r.CreatedAt, r.UpdatedAt = now, now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO alert_rules (`+ruleColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.ClientID, string(r.Metric), string(r.Condition), r.Threshold,
		boolInt(r.Enabled), now.UnixNano(), now.UnixNano(),
	)
	if err != nil {
		return types.AlertRule{}, fmt.Errorf("insert rule: %w", err)
	}
	return r, nil
}

func (s *SQLite) GetRule(ctx context.Context, id string) (types.AlertRule, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+ruleColumns+` FROM alert_rules WHERE id = ?`, id)
	r, err := scanRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return types.AlertRule{}, ErrNotFound
	}
	if err != nil {
		return types.AlertRule{}, fmt.Errorf("scan rule: %w", err)
	}
	return r, nil
}

// ListRules returns the client's rules in creation order.
func (s *SQLite) ListRules(ctx context.Context, clientID string, enabledOnly bool) ([]types.AlertRule, error) {
	query := `SELECT ` + ruleColumns + ` FROM alert_rules WHERE client_id = ?`
	if enabledOnly {
		query += ` AND enabled = 1`
	}
	query += ` ORDER BY created_at, rowid`

	rows, err := s.db.QueryContext(ctx, query, clientID)
	if err != nil {
		return nil, fmt.Errorf("query rules: %w", err)
	}
	defer rows.Close()

	out := make([]types.AlertRule, 0)
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLite) UpdateRule(ctx context.Context, r types.AlertRule) (types.AlertRule, error) {
	if err := r.Validate(); err != nil {
		return types.AlertRule{}, err
	}
	now := s.now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE alert_rules SET client_id = ?, metric = ?, condition = ?, threshold = ?, enabled = ?, updated_at = ?
		 WHERE id = ?`,
		r.ClientID, string(r.Metric), string(r.Condition), r.Threshold, boolInt(r.Enabled), now.UnixNano(), r.ID,
	)
	if err != nil {
		return types.AlertRule{}, fmt.Errorf("update rule: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return types.AlertRule{}, ErrNotFound
	}
	return s.GetRule(ctx, r.ID)
}

// DisableRule soft-disables a rule; it stays listed but is never evaluated.
func (s *SQLite) DisableRule(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE alert_rules SET enabled = 0, updated_at = ? WHERE id = ?`,
		s.now().UTC().UnixNano(), id,
	)
	if err != nil {
		return fmt.Errorf("disable rule: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- alerts -----------------------------------------------------------------

const alertColumns = `id, client_id, rule_id, case_id, severity, metric, message, dedup_key, created_at, read_at`

// CreateAlert inserts a. A dedup key that is already taken yields ErrDuplicateAlert.
func (s *SQLite) CreateAlert(ctx context.Context, a types.Alert) (types.Alert, error) {
	a.ID = uuid.NewString()
	a.CreatedAt = s.now().UTC()
	a.ReadAt = nil

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO alerts (`+alertColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, NULL)
		 ON CONFLICT(dedup_key) DO NOTHING`,
		a.ID, a.ClientID, nullString(a.RuleID), a.CaseID, string(a.Severity), string(a.Metric),
		a.Message, nullIfEmpty(a.DedupKey), a.CreatedAt.UnixNano(),
	)
	if err != nil {
		return types.Alert{}, fmt.Errorf("insert alert: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return types.Alert{}, ErrDuplicateAlert
	}
	return a, nil
}

// ListAlerts returns matching alerts, newest first.
func (s *SQLite) ListAlerts(ctx context.Context, f AlertFilter) ([]types.Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM alerts WHERE 1=1`
	var args []interface{}
	if f.ClientID != "" {
		query += ` AND client_id = ?`
		args = append(args, f.ClientID)
	}
	if f.UnreadOnly {
		query += ` AND read_at IS NULL`
	}
	query += ` ORDER BY created_at DESC, rowid DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	defer rows.Close()

	out := make([]types.Alert, 0)
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		// Severity order is not lexical, so filter here rather than in SQL.
		if !severityAllowed(a.Severity, f.MinSeverity) {
			continue
		}
		out = append(out, a)
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out, rows.Err()
}

// MarkAlertRead sets read_at once; later calls keep the first timestamp.
func (s *SQLite) MarkAlertRead(ctx context.Context, id string) (types.Alert, error) {
	_, err := s.db.ExecContext(ctx,
		`UPDATE alerts SET read_at = ? WHERE id = ? AND read_at IS NULL`,
		s.now().UTC().UnixNano(), id,
	)
	if err != nil {
		return types.Alert{}, fmt.Errorf("mark alert read: %w", err)
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+alertColumns+` FROM alerts WHERE id = ?`, id)
	a, err := scanAlert(row)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Alert{}, ErrNotFound
	}
	if err != nil {
		return types.Alert{}, fmt.Errorf("scan alert: %w", err)
	}
	return a, nil
}

// --- hallucination cases ----------------------------------------------------

const caseColumns = `id, client_id, risk_level, platform, summary, created_at, resolved_at, has_alert`

func (s *SQLite) CreateCase(ctx context.Context, c types.HallucinationCase) (types.HallucinationCase, error) {
	if c.ClientID == "" {
		return types.HallucinationCase{}, types.ErrMissingClient
	}
	if _, err := types.ParseRiskLevel(string(c.RiskLevel)); err != nil {
		return types.HallucinationCase{}, err
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.now().UTC()
	}
	c.HasAlert = false
	c.ResolvedAt = nil

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO hallucination_cases (`+caseColumns+`) VALUES (?, ?, ?, ?, ?, ?, NULL, 0)`,
		c.ID, c.ClientID, string(c.RiskLevel), c.Platform, c.Summary, c.CreatedAt.UnixNano(),
	)
	if err != nil {
		return types.HallucinationCase{}, fmt.Errorf("insert case: %w", err)
	}
	return c, nil
}

func (s *SQLite) ResolveCase(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE hallucination_cases SET resolved_at = COALESCE(resolved_at, ?) WHERE id = ?`,
		s.now().UTC().UnixNano(), id,
	)
	if err != nil {
		return fmt.Errorf("resolve case: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListUnalertedCriticalCases returns unresolved critical cases without an
// alert, oldest first.
func (s *SQLite) ListUnalertedCriticalCases(ctx context.Context, clientID string) ([]types.HallucinationCase, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+caseColumns+` FROM hallucination_cases
		 WHERE client_id = ? AND risk_level = ? AND resolved_at IS NULL AND has_alert = 0
		 ORDER BY created_at, id`,
		clientID, string(types.RiskCritical),
	)
	if err != nil {
		return nil, fmt.Errorf("query cases: %w", err)
	}
	defer rows.Close()

	var out []types.HallucinationCase
	for rows.Next() {
		var (
			c        types.HallucinationCase
			risk     string
			created  int64
			resolved sql.NullInt64
			hasAlert int
		)
		if err := rows.Scan(&c.ID, &c.ClientID, &risk, &c.Platform, &c.Summary, &created, &resolved, &hasAlert); err != nil {
			return nil, fmt.Errorf("scan case: %w", err)
		}
		c.RiskLevel = types.RiskLevel(risk)
		c.CreatedAt = fromNanos(created)
		c.ResolvedAt = nullTime(resolved)
		c.HasAlert = hasAlert != 0
		out = append(out, c)
	}
	return out, rows.Err()
}

// MarkAlerted claims a case with a conditional update. Only the call that
// flips has_alert returns true.
func (s *SQLite) MarkAlerted(ctx context.Context, caseID string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE hallucination_cases SET has_alert = 1 WHERE id = ? AND has_alert = 0`,
		caseID,
	)
	if err != nil {
		return false, fmt.Errorf("mark case alerted: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark case alerted: %w", err)
	}
	return n == 1, nil
}

// ReleaseAlerted undoes a claim whose alert could not be written.
func (s *SQLite) ReleaseAlerted(ctx context.Context, caseID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE hallucination_cases SET has_alert = 0 WHERE id = ?`, caseID)
	if err != nil {
		return fmt.Errorf("release case: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- metric samples ---------------------------------------------------------

func (s *SQLite) RecordSample(ctx context.Context, m types.MetricSample) error {
	if m.ClientID == "" {
		return types.ErrMissingClient
	}
	if !m.Metric.Valid() {
		return fmt.Errorf("%w: %q", types.ErrUnknownMetric, m.Metric)
	}
	if _, err := types.NewSnapshot(m.Value, 0); err != nil {
		return err
	}
	if m.ObservedAt.IsZero() {
		m.ObservedAt = s.now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO metric_samples (client_id, metric, value, observed_at) VALUES (?, ?, ?, ?)`,
		m.ClientID, string(m.Metric), m.Value, m.ObservedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert sample: %w", err)
	}
	return nil
}

// Snapshot aggregates samples over the current and previous windows. Averaged
// metrics use the mean, count metrics the sum. An empty window reads as 0.
func (s *SQLite) Snapshot(ctx context.Context, clientID string, metric types.MetricKind) (types.MetricSnapshot, error) {
	now := s.now()
	prevStart, curStart := windows(now, s.window)
	p, c, n := prevStart.UnixNano(), curStart.UnixNano(), now.UnixNano()

	var cur, prev aggregate
	err := s.db.QueryRowContext(ctx,
		`SELECT
			COALESCE(SUM(CASE WHEN observed_at >= ? THEN value END), 0),
			COUNT(CASE WHEN observed_at >= ? THEN 1 END),
			COALESCE(SUM(CASE WHEN observed_at < ? THEN value END), 0),
			COUNT(CASE WHEN observed_at < ? THEN 1 END)
		 FROM metric_samples
		 WHERE client_id = ? AND metric = ? AND observed_at >= ? AND observed_at < ?`,
		c, c, c, c, clientID, string(metric), p, n,
	).Scan(&cur.sum, &cur.n, &prev.sum, &prev.n)
	if err != nil {
		return types.MetricSnapshot{}, fmt.Errorf("aggregate %s for %q: %w", metric, clientID, err)
	}
	return types.NewSnapshot(cur.value(metric), prev.value(metric))
}

// --- clients ----------------------------------------------------------------

// ListClients returns every client that owns a rule or a case, sorted.
func (s *SQLite) ListClients(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT client_id FROM alert_rules UNION SELECT client_id FROM hallucination_cases ORDER BY 1`)
	if err != nil {
		return nil, fmt.Errorf("query clients: %w", err)
	}
	defer rows.Close()

	out := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan client: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// --- scanning helpers -------------------------------------------------------

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRule(sc scanner) (types.AlertRule, error) {
	var (
		r                types.AlertRule
		metric, cond     string
		enabled          int
		created, updated int64
	)
	if err := sc.Scan(&r.ID, &r.ClientID, &metric, &cond, &r.Threshold, &enabled, &created, &updated); err != nil {
		return types.AlertRule{}, err
	}
	r.Metric = types.MetricKind(metric)
	r.Condition = types.ConditionKind(cond)
	r.Enabled = enabled != 0
	r.CreatedAt = fromNanos(created)
	r.UpdatedAt = fromNanos(updated)
	return r, nil
}

func scanAlert(sc scanner) (types.Alert, error) {
	var (
		a                types.Alert
		ruleID, dedupKey sql.NullString
		severity, metric string
		created          int64
		readAt           sql.NullInt64
	)
	if err := sc.Scan(&a.ID, &a.ClientID, &ruleID, &a.CaseID, &severity, &metric, &a.Message, &dedupKey, &created, &readAt); err != nil {
		return types.Alert{}, err
	}
	if ruleID.Valid {
		id := ruleID.String
		a.RuleID = &id
	}
	a.Severity = types.Severity(severity)
	a.Metric = types.MetricKind(metric)
	a.DedupKey = dedupKey.String
	a.CreatedAt = fromNanos(created)
	a.ReadAt = nullTime(readAt)
	return a, nil
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func nullTime(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := fromNanos(n.Int64)
	return &t
}

func nullString(s *string) interface{} {
	if s == nil {
		return nil
	}
	return *s
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

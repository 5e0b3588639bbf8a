// Package types defines the domain types shared by the brandlens server and
// its CLI: metric snapshots, alert rules, alerts, hallucination cases and the
// notification events handed to delivery targets.
//
// The enumerations (MetricKind, ConditionKind, Severity, RiskLevel, Role) are
// closed sets. Values arriving from JSON or the database should go through the
// Parse* helpers or Validate so the alert engine only ever sees known values.
package types

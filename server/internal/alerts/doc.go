// Package alerts implements the brandlens alert core.
//
// condition.go and severity.go hold the pure Evaluate and Classify functions.
// rules.go runs a client's rules against a MetricsProvider and returns the
// AlertEvents that fired. sweep.go turns unalerted critical hallucination
// cases into alerts and notifications exactly once per case.
//
// Engine wires both producers to persistent storage, de-duplicates rule
// alerts per evaluation window and delivers notifications through a Notifier
// such as WebhookNotifier (Slack, Teams, PagerDuty or generic HTTP).
package alerts

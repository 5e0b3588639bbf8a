// Package store persists alert rules, alerts, hallucination cases and metric
// samples. Memory is a thread-safe in-memory implementation with an injectable
// clock; SQLite is the durable implementation backed by modernc.org/sqlite.
//
// Both satisfy every collaborator interface of the alerts package. The case
// claim (MarkAlerted) is a conditional write in both: only the caller that
// flips has_alert from false to true gets true back.
package store

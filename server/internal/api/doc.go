// Package api implements the HTTP REST API for the brandlens server.
//
// New(store, engine, counters) returns an http.Handler that serves:
//
//	GET  /api/v1/health                                   server status and counts
//	GET  /api/v1/clients/{clientID}/rules                 the client's alert rules
//	POST /api/v1/clients/{clientID}/rules                 create a rule (editor)
//	POST /api/v1/clients/{clientID}/rules/{ruleID}/disable disable a rule (editor)
//	POST /api/v1/clients/{clientID}/evaluate              run the client's rules now
//	POST /api/v1/clients/{clientID}/sweep                 run the hallucination sweep
//	GET  /api/v1/clients/{clientID}/alerts                list alerts (unread, severity, limit)
//	POST /api/v1/alerts/{alertID}/read                    mark an alert read
//	POST /api/v1/clients/{clientID}/samples               ingest metric samples
//	POST /api/v1/clients/{clientID}/cases                 ingest a hallucination case
//	POST /api/v1/cases/{caseID}/resolve                   resolve a case
//	GET  /metrics                                         Prometheus text exposition
//
// All JSON endpoints respond with Content-Type: application/json. Unexpected
// store errors are logged and reported as a generic 500. Authentication is
// applied by the caller with auth.Middleware; rule mutations additionally
// require the editor role.
//
// JSON request and response types are defined in types.go. No external HTTP
// framework is used.
package api

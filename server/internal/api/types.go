package api

import (
	"time"

	"github.com/brandlens/brandlens/server/internal/alerts"
)

// HealthResponse is the payload for GET /api/v1/health.
type HealthResponse struct {
	Status      string `json:"status"`
	ClientCount int    `json:"client_count"`
	UnreadCount int    `json:"unread_alert_count"`
}

// CreateRuleRequest is the body of POST /api/v1/clients/{clientID}/rules.
// Enabled defaults to true when omitted.
type CreateRuleRequest struct {
	Metric    string  `json:"metric"`
	Condition string  `json:"condition"`
	Threshold float64 `json:"threshold"`
	Enabled   *bool   `json:"enabled,omitempty"`
}

// SweepResponse is the payload for POST /api/v1/clients/{clientID}/sweep.
type SweepResponse struct {
	alerts.SweepResult
	Message string `json:"message"`
}

// SampleRequest is one observation in POST /api/v1/clients/{clientID}/samples.
// ObservedAt defaults to the time of ingestion.
type SampleRequest struct {
	Metric     string     `json:"metric"`
	Value      float64    `json:"value"`
	ObservedAt *time.Time `json:"observed_at,omitempty"`
}

// SamplesRequest is the body of POST /api/v1/clients/{clientID}/samples.
type SamplesRequest struct {
	Samples []SampleRequest `json:"samples"`
}

// SamplesResponse reports how many samples were stored.
type SamplesResponse struct {
	Recorded int `json:"recorded"`
}

// CaseRequest is the body of POST /api/v1/clients/{clientID}/cases.
// ID is optional; the detection pipeline may supply its own.
type CaseRequest struct {
	ID        string     `json:"id,omitempty"`
	RiskLevel string     `json:"risk_level"`
	Platform  string     `json:"platform,omitempty"`
	Summary   string     `json:"summary,omitempty"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/brandlens/brandlens/pkg/types"
	"github.com/brandlens/brandlens/server/internal/alerts"
	"github.com/brandlens/brandlens/server/internal/auth"
	"github.com/brandlens/brandlens/server/internal/store"
	"github.com/brandlens/brandlens/server/internal/telemetry"
)

const maxBodyBytes = 1 << 20

// Handler is the HTTP handler for all /api/v1/* endpoints and /metrics.
type Handler struct {
	store    store.Store
	engine   *alerts.Engine
	counters *telemetry.Counters
	mux      *http.ServeMux
}

// New creates a Handler wired to the given store and engine and registers all
// routes. counters may be nil, in which case /metrics renders nothing.
func New(st store.Store, eng *alerts.Engine, counters *telemetry.Counters) http.Handler {
	h := &Handler{store: st, engine: eng, counters: counters, mux: http.NewServeMux()}

	h.mux.HandleFunc("GET /api/v1/health", h.health)
	h.mux.HandleFunc("GET /api/v1/clients/{clientID}/rules", h.listRules)
	h.mux.HandleFunc("POST /api/v1/clients/{clientID}/rules", auth.RequireEditor(h.createRule))
	h.mux.HandleFunc("POST /api/v1/clients/{clientID}/rules/{ruleID}/disable", auth.RequireEditor(h.disableRule))
	h.mux.HandleFunc("POST /api/v1/clients/{clientID}/evaluate", h.evaluate)
	h.mux.HandleFunc("POST /api/v1/clients/{clientID}/sweep", h.sweep)
	h.mux.HandleFunc("GET /api/v1/clients/{clientID}/alerts", h.listAlerts)
	h.mux.HandleFunc("POST /api/v1/alerts/{alertID}/read", h.markRead)
	h.mux.HandleFunc("POST /api/v1/clients/{clientID}/samples", h.recordSamples)
	h.mux.HandleFunc("POST /api/v1/clients/{clientID}/cases", h.createCase)
	h.mux.HandleFunc("POST /api/v1/cases/{caseID}/resolve", h.resolveCase)
	h.mux.HandleFunc("GET /metrics", h.metrics)

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// --- route handlers ---------------------------------------------------------

// health returns GET /api/v1/health: client count and unread alerts.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	clients, err := h.store.ListClients(r.Context())
	if err != nil {
		internalErr(w, r, err)
		return
	}
	unread, err := h.store.ListAlerts(r.Context(), store.AlertFilter{UnreadOnly: true})
	if err != nil {
		internalErr(w, r, err)
		return
	}
	jsonResp(w, http.StatusOK, HealthResponse{
		Status:      "ok",
		ClientCount: len(clients),
		UnreadCount: len(unread),
	})
}

func (h *Handler) listRules(w http.ResponseWriter, r *http.Request) {
	rules, err := h.store.ListRules(r.Context(), r.PathValue("clientID"), false)
	if err != nil {
		internalErr(w, r, err)
		return
	}
	jsonResp(w, http.StatusOK, rules)
}

func (h *Handler) createRule(w http.ResponseWriter, r *http.Request) {
	var req CreateRuleRequest
	if !decodeBody(w, r, &req) {
		return
	}
	metric, err := types.ParseMetricKind(req.Metric)
	if err != nil {
		jsonErr(w, http.StatusBadRequest, err.Error())
		return
	}
	cond, err := types.ParseConditionKind(req.Condition)
	if err != nil {
		jsonErr(w, http.StatusBadRequest, err.Error())
		return
	}
	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	rule, err := h.store.CreateRule(r.Context(), types.AlertRule{
		ClientID:  r.PathValue("clientID"),
		Metric:    metric,
		Condition: cond,
		Threshold: req.Threshold,
		Enabled:   enabled,
	})
	if err != nil {
		storeErr(w, r, err)
		return
	}
	slog.Info("api: rule created",
		"client", rule.ClientID, "rule", rule.ID,
		"metric", rule.Metric, "condition", rule.Condition, "role", auth.RoleFrom(r.Context()))
	jsonResp(w, http.StatusCreated, rule)
}

func (h *Handler) disableRule(w http.ResponseWriter, r *http.Request) {
	clientID, ruleID := r.PathValue("clientID"), r.PathValue("ruleID")

	rule, err := h.store.GetRule(r.Context(), ruleID)
	if err != nil {
		storeErr(w, r, err)
		return
	}
	if rule.ClientID != clientID {
		jsonErr(w, http.StatusNotFound, "rule not found")
		return
	}
	if err := h.store.DisableRule(r.Context(), ruleID); err != nil {
		storeErr(w, r, err)
		return
	}
	rule, err = h.store.GetRule(r.Context(), ruleID)
	if err != nil {
		storeErr(w, r, err)
		return
	}
	jsonResp(w, http.StatusOK, rule)
}

func (h *Handler) evaluate(w http.ResponseWriter, r *http.Request) {
	res, err := h.engine.EvaluateClient(r.Context(), r.PathValue("clientID"))
	if err != nil {
		internalErr(w, r, err)
		return
	}
	jsonResp(w, http.StatusOK, res)
}

func (h *Handler) sweep(w http.ResponseWriter, r *http.Request) {
	res := h.engine.Sweep(r.Context(), r.PathValue("clientID"))
	jsonResp(w, http.StatusOK, SweepResponse{
		SweepResult: res,
		Message:     fmt.Sprintf("%d new critical alerts generated", res.Created),
	})
}

// listAlerts returns GET /api/v1/clients/{clientID}/alerts, newest first.
// Query parameters: unread=true, severity=<minimum>, limit=N.
func (h *Handler) listAlerts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := store.AlertFilter{ClientID: r.PathValue("clientID")}

	if v := q.Get("unread"); v != "" {
		unread, err := strconv.ParseBool(v)
		if err != nil {
			jsonErr(w, http.StatusBadRequest, "unread must be a boolean")
			return
		}
		f.UnreadOnly = unread
	}
	if v := q.Get("severity"); v != "" {
		sev, err := types.ParseSeverity(v)
		if err != nil {
			jsonErr(w, http.StatusBadRequest, err.Error())
			return
		}
		f.MinSeverity = sev
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			jsonErr(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		f.Limit = n
	}

	list, err := h.store.ListAlerts(r.Context(), f)
	if err != nil {
		internalErr(w, r, err)
		return
	}
	jsonResp(w, http.StatusOK, list)
}

func (h *Handler) markRead(w http.ResponseWriter, r *http.Request) {
	a, err := h.store.MarkAlertRead(r.Context(), r.PathValue("alertID"))
	if err != nil {
		storeErr(w, r, err)
		return
	}
	jsonResp(w, http.StatusOK, a)
}

func (h *Handler) recordSamples(w http.ResponseWriter, r *http.Request) {
	var req SamplesRequest
	if !decodeBody(w, r, &req) {
		return
	}
	clientID := r.PathValue("clientID")

	// Validate the whole batch before writing any of it.
	samples := make([]types.MetricSample, 0, len(req.Samples))
	for i, s := range req.Samples {
		metric, err := types.ParseMetricKind(s.Metric)
		if err != nil {
			jsonErr(w, http.StatusBadRequest, fmt.Sprintf("samples[%d]: %v", i, err))
			return
		}
		if _, err := types.NewSnapshot(s.Value, 0); err != nil {
			jsonErr(w, http.StatusBadRequest, fmt.Sprintf("samples[%d]: %v", i, err))
			return
		}
		sample := types.MetricSample{ClientID: clientID, Metric: metric, Value: s.Value}
		if s.ObservedAt != nil {
			sample.ObservedAt = s.ObservedAt.UTC()
		}
		samples = append(samples, sample)
	}

	for _, s := range samples {
		if err := h.store.RecordSample(r.Context(), s); err != nil {
			storeErr(w, r, err)
			return
		}
	}
	jsonResp(w, http.StatusAccepted, SamplesResponse{Recorded: len(samples)})
}

func (h *Handler) createCase(w http.ResponseWriter, r *http.Request) {
	var req CaseRequest
	if !decodeBody(w, r, &req) {
		return
	}
	risk, err := types.ParseRiskLevel(req.RiskLevel)
	if err != nil {
		jsonErr(w, http.StatusBadRequest, err.Error())
		return
	}
	c := types.HallucinationCase{
		ID:        req.ID,
		ClientID:  r.PathValue("clientID"),
		RiskLevel: risk,
		Platform:  req.Platform,
		Summary:   req.Summary,
	}
	if req.CreatedAt != nil {
		c.CreatedAt = req.CreatedAt.UTC()
	}

	c, err = h.store.CreateCase(r.Context(), c)
	if err != nil {
		storeErr(w, r, err)
		return
	}
	jsonResp(w, http.StatusCreated, c)
}

func (h *Handler) resolveCase(w http.ResponseWriter, r *http.Request) {
	if err := h.store.ResolveCase(r.Context(), r.PathValue("caseID")); err != nil {
		storeErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// metrics returns GET /metrics in the Prometheus text format.
func (h *Handler) metrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	if h.counters == nil {
		return
	}
	if err := h.counters.WriteText(w); err != nil {
		slog.Error("api: write metrics failed", "err", err)
	}
}

// --- helpers ----------------------------------------------------------------

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}

// decodeBody reads a JSON body into v, writing a 400 and returning false on
// failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		jsonErr(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

// storeErr maps validation and lookup errors to 4xx and everything else to 500.
func storeErr(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		jsonErr(w, http.StatusNotFound, "not found")
	case isValidation(err):
		jsonErr(w, http.StatusBadRequest, err.Error())
	default:
		internalErr(w, r, err)
	}
}

func isValidation(err error) bool {
	for _, target := range []error{
		types.ErrUnknownMetric,
		types.ErrUnknownCondition,
		types.ErrUnknownSeverity,
		types.ErrUnknownRiskLevel,
		types.ErrNegativeThreshold,
		types.ErrNonFiniteSnapshot,
		types.ErrMissingClient,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// internalErr logs err and writes a generic 500; raw errors never reach clients.
func internalErr(w http.ResponseWriter, r *http.Request, err error) {
	slog.Error("api: request failed", "method", r.Method, "path", r.URL.Path, "err", err)
	jsonErr(w, http.StatusInternalServerError, "internal error")
}

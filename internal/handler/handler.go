package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/angeloszaimis/fetch-orchestrator/internal/catalog"
	"github.com/angeloszaimis/fetch-orchestrator/internal/circuitbreaker"
	"github.com/angeloszaimis/fetch-orchestrator/internal/dispatch"
	"github.com/angeloszaimis/fetch-orchestrator/internal/engine"
	"github.com/angeloszaimis/fetch-orchestrator/internal/health"
	"github.com/angeloszaimis/fetch-orchestrator/internal/telemetry"
)

const (
	defaultTraceLimit = 50
	maxTraceLimit     = 1000
)

// Service is the orchestrator surface the handlers need.
type Service interface {
	Fetch(ctx context.Context, symbol string, e engine.Engine) (*dispatch.Result, error)
	RecentTraces(limit int) []telemetry.Trace
	LastTrace(e engine.Engine) (telemetry.Trace, bool)
	HealthReport() health.Report
	Breakers() []circuitbreaker.Record
	SubscribeTraces(buffer int) (<-chan telemetry.Trace, func())
}

type FetchHandler struct {
	logger  *slog.Logger
	service Service
}

func NewFetchHandler(logger *slog.Logger, service Service) *FetchHandler {
	return &FetchHandler{logger: logger, service: service}
}

type fetchResponse struct {
	Provider string          `json:"provider"`
	Payload  json.RawMessage `json:"payload"`
	Trace    telemetry.Trace `json:"trace"`
}

type errorResponse struct {
	Error string           `json:"error"`
	Trace *telemetry.Trace `json:"trace,omitempty"`
}

// Fetch serves GET /v1/fetch?symbol=&engine=. The engine defaults to quote.
func (h *FetchHandler) Fetch(w http.ResponseWriter, r *http.Request) {
	symbol := r.URL.Query().Get("symbol")
	if symbol == "" {
		writeError(w, http.StatusBadRequest, "symbol is required")
		return
	}

	e := engine.Quote
	if raw := r.URL.Query().Get("engine"); raw != "" {
		parsed, err := engine.Parse(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		e = parsed
	}

	res, err := h.service.Fetch(r.Context(), symbol, e)
	if err != nil {
		h.writeFetchError(w, err)
		return
	}

	w.Header().Set("X-Provider", res.Provider)
	writeJSON(w, http.StatusOK, fetchResponse{
		Provider: res.Provider,
		Payload:  res.Payload,
		Trace:    res.Trace,
	})
}

func (h *FetchHandler) writeFetchError(w http.ResponseWriter, err error) {
	var ex *dispatch.ExhaustedError
	switch {
	case errors.As(err, &ex):
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error(), Trace: &ex.Trace})
	case errors.Is(err, catalog.ErrInvalidSymbol), errors.Is(err, engine.ErrUnknown):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, catalog.ErrUnknownAsset):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, dispatch.ErrNoCandidates):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		h.logger.Error("Fetch failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// Traces serves GET /v1/traces?limit=, oldest first.
func (h *FetchHandler) Traces(w http.ResponseWriter, r *http.Request) {
	limit := defaultTraceLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = min(n, maxTraceLimit)
	}

	writeJSON(w, http.StatusOK, h.service.RecentTraces(limit))
}

// LastTrace serves GET /v1/traces/last?engine=.
func (h *FetchHandler) LastTrace(w http.ResponseWriter, r *http.Request) {
	e, err := engine.Parse(r.URL.Query().Get("engine"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	t, ok := h.service.LastTrace(e)
	if !ok {
		writeError(w, http.StatusNotFound, "no trace recorded for engine "+e.String())
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// Health serves GET /v1/health. A critical system answers 503 so load
// balancers can act on it.
func (h *FetchHandler) Health(w http.ResponseWriter, r *http.Request) {
	report := h.service.HealthReport()
	status := http.StatusOK
	if report.Status == health.Critical {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}

// Breakers serves GET /v1/breakers.
func (h *FetchHandler) Breakers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.service.Breakers())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

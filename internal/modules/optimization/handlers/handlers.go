// Package handlers provides HTTP handlers for portfolio optimization.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/aristath/frontier/internal/modules/optimization"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// OptimizationService is the part of optimization.Service used by the handlers.
type OptimizationService interface {
	Optimize(ctx context.Context, req optimization.Request) (*optimization.Run, error)
	EfficientFrontier(ctx context.Context, req optimization.Request) (*optimization.FrontierReport, error)
	AssetStatistics(ctx context.Context, params optimization.SessionParams) ([]optimization.AssetStatistics, error)
}

// RunReader reads the run log.
type RunReader interface {
	Get(id string) (*optimization.Run, error)
	List(limit int) ([]optimization.Run, error)
}

// Handler handles optimization HTTP requests
type Handler struct {
	service      OptimizationService
	runs         RunReader
	riskFreeRate float64
	now          func() time.Time
	log          zerolog.Logger
}

// NewHandler creates a new optimization handler
func NewHandler(service OptimizationService, runs RunReader, log zerolog.Logger) *Handler {
	return &Handler{
		service:      service,
		runs:         runs,
		riskFreeRate: optimization.DefaultRiskFreeRate,
		now:          time.Now,
		log:          log.With().Str("handler", "optimization").Logger(),
	}
}

// WithRiskFreeRate sets the rate used when a request omits risk_free_rate.
func (h *Handler) WithRiskFreeRate(rate float64) *Handler {
	h.riskFreeRate = rate
	return h
}

type optimizeResponse struct {
	Tickers []string `json:"tickers"`
	RunID   string   `json:"run_id"`
	optimization.OptimizationResult
}

// HandleOptimize handles POST /api/optimize
func (h *Handler) HandleOptimize(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeRequest(w, r)
	if !ok {
		return
	}

	run, err := h.service.Optimize(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	status := http.StatusOK
	if !run.Result.Success {
		status = http.StatusUnprocessableEntity
	}
	h.writeData(w, status, optimizeResponse{
		Tickers:            run.Tickers,
		RunID:              run.ID,
		OptimizationResult: run.Result,
	})
}

// HandleEfficientFrontier handles POST /api/efficient-frontier
func (h *Handler) HandleEfficientFrontier(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeRequest(w, r)
	if !ok {
		return
	}

	report, err := h.service.EfficientFrontier(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	if !report.OptimaFound() {
		h.writeError(w, http.StatusUnprocessableEntity, "Failed to compute optimal portfolios")
		return
	}
	h.writeData(w, http.StatusOK, report)
}

// HandleAssetStatistics handles POST /api/assets/stats
func (h *Handler) HandleAssetStatistics(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeRequest(w, r)
	if !ok {
		return
	}

	assets, err := h.service.AssetStatistics(r.Context(), req.SessionParams())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeData(w, http.StatusOK, map[string]interface{}{
		"tickers": req.Tickers,
		"assets":  assets,
	})
}

// HandleListRuns handles GET /api/runs
func (h *Handler) HandleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 1000 {
			h.writeError(w, http.StatusBadRequest, "limit must be an integer between 1 and 1000")
			return
		}
		limit = parsed
	}

	runs, err := h.runs.List(limit)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list runs")
		h.writeError(w, http.StatusInternalServerError, "Failed to list runs")
		return
	}
	if runs == nil {
		runs = []optimization.Run{}
	}

	h.writeData(w, http.StatusOK, map[string]interface{}{
		"runs":  runs,
		"count": len(runs),
	})
}

// HandleGetRun handles GET /api/runs/{id}
func (h *Handler) HandleGetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	run, err := h.runs.Get(id)
	if err != nil {
		h.log.Error().Err(err).Str("run_id", id).Msg("Failed to get run")
		h.writeError(w, http.StatusInternalServerError, "Failed to get run")
		return
	}
	if run == nil {
		h.writeError(w, http.StatusNotFound, "Run not found")
		return
	}

	h.writeData(w, http.StatusOK, run)
}

func (h *Handler) decodeRequest(w http.ResponseWriter, r *http.Request) (optimization.Request, bool) {
	var raw optimization.RawRequest
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return optimization.Request{}, false
	}

	req, err := optimization.ParseRequestWithRate(raw, h.now(), h.riskFreeRate)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return optimization.Request{}, false
	}
	return req, true
}

// StatusFor maps an engine error to its HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, optimization.ErrInvalidInput),
		errors.Is(err, optimization.ErrDataUnavailable),
		errors.Is(err, optimization.ErrInsufficientData):
		return http.StatusBadRequest
	case errors.Is(err, optimization.ErrStatisticsUnavailable):
		return http.StatusConflict
	case errors.Is(err, optimization.ErrDegenerateVariance),
		errors.Is(err, optimization.ErrConvergence):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		h.log.Error().Err(err).Msg("Optimization request failed")
		h.writeError(w, status, "Internal server error")
		return
	}
	h.log.Warn().Err(err).Int("status", status).Msg("Optimization request rejected")
	h.writeError(w, status, err.Error())
}

func (h *Handler) writeData(w http.ResponseWriter, status int, data interface{}) {
	h.writeJSON(w, status, map[string]interface{}{
		"data": data,
		"metadata": map[string]interface{}{
			"timestamp": h.now().Format(time.RFC3339),
		},
	})
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{
		"error": message,
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// Package handlers provides HTTP handlers for chart images.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/aristath/frontier/internal/modules/charts"
	"github.com/aristath/frontier/internal/modules/optimization"
	opthandlers "github.com/aristath/frontier/internal/modules/optimization/handlers"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// FrontierService computes efficient frontier reports.
type FrontierService interface {
	EfficientFrontier(ctx context.Context, req optimization.Request) (*optimization.FrontierReport, error)
}

// Handler serves PNG charts
type Handler struct {
	service  FrontierService
	runs     opthandlers.RunReader
	renderer *charts.Renderer
	riskFree float64
	now      func() time.Time
	log      zerolog.Logger
}

// NewHandler creates a new charts handler
func NewHandler(service FrontierService, runs opthandlers.RunReader, renderer *charts.Renderer, log zerolog.Logger) *Handler {
	return &Handler{
		service:  service,
		runs:     runs,
		renderer: renderer,
		riskFree: optimization.DefaultRiskFreeRate,
		now:      time.Now,
		log:      log.With().Str("handler", "charts").Logger(),
	}
}

// WithRiskFreeRate sets the rate used when a request omits risk_free_rate.
func (h *Handler) WithRiskFreeRate(rate float64) *Handler {
	h.riskFree = rate
	return h
}

// HandleRunAllocation handles GET /api/charts/runs/{id}/allocation.png
func (h *Handler) HandleRunAllocation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	run, err := h.runs.Get(id)
	if err != nil {
		h.log.Error().Err(err).Str("run_id", id).Msg("Failed to load run")
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if run == nil {
		h.writeError(w, http.StatusNotFound, "Run not found")
		return
	}
	if !run.Result.Success {
		h.writeError(w, http.StatusUnprocessableEntity, "Run did not produce a portfolio")
		return
	}

	png, err := h.renderer.RenderAllocation("Allocation: "+string(run.Strategy), run.Tickers, run.Result.Weights)
	h.writePNG(w, png, err)
}

// HandleEfficientFrontier handles POST /api/charts/efficient-frontier.png
func (h *Handler) HandleEfficientFrontier(w http.ResponseWriter, r *http.Request) {
	var raw optimization.RawRequest
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	req, err := optimization.ParseRequestWithRate(raw, h.now(), h.riskFree)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	report, err := h.service.EfficientFrontier(r.Context(), req)
	if err != nil {
		status := opthandlers.StatusFor(err)
		if status == http.StatusInternalServerError {
			h.log.Error().Err(err).Msg("Efficient frontier failed")
			h.writeError(w, status, "Internal server error")
			return
		}
		h.writeError(w, status, err.Error())
		return
	}

	png, err := h.renderer.RenderFrontier("Efficient frontier", report.EfficientCurve)
	h.writePNG(w, png, err)
}

func (h *Handler) writePNG(w http.ResponseWriter, png []byte, err error) {
	if errors.Is(err, charts.ErrEmptyChart) {
		h.writeError(w, http.StatusUnprocessableEntity, "Nothing to chart")
		return
	}
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to render chart")
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(png); err != nil {
		h.log.Debug().Err(err).Msg("Failed to write chart")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(map[string]string{"error": message}); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

package handlers

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aristath/frontier/internal/modules/charts"
	"github.com/aristath/frontier/internal/modules/optimization"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFrontier struct {
	report *optimization.FrontierReport
	err    error
}

func (f *fakeFrontier) EfficientFrontier(_ context.Context, _ optimization.Request) (*optimization.FrontierReport, error) {
	return f.report, f.err
}

type fakeRuns struct {
	runs map[string]*optimization.Run
	err  error
}

func (f *fakeRuns) Get(id string) (*optimization.Run, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.runs[id], nil
}

func (f *fakeRuns) List(limit int) ([]optimization.Run, error) {
	return nil, f.err
}

func setupRouter(service FrontierService, runs *fakeRuns) *chi.Mux {
	h := NewHandler(service, runs, charts.NewRenderer(), zerolog.Nop())
	h.now = func() time.Time { return time.Date(2024, 6, 30, 12, 0, 0, 0, time.UTC) }
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return r
}

func TestHandleRunAllocation(t *testing.T) {
	runs := &fakeRuns{runs: map[string]*optimization.Run{
		"ok": {
			ID:       "ok",
			Strategy: optimization.StrategyMaxSharpe,
			Tickers:  []string{"SPY", "TLT"},
			Result:   optimization.OptimizationResult{Weights: []float64{0.6, 0.4}, Success: true},
		},
		"failed": {
			ID:      "failed",
			Tickers: []string{"SPY", "TLT"},
			Result:  optimization.OptimizationResult{Success: false, Message: "did not converge"},
		},
	}}
	router := setupRouter(&fakeFrontier{}, runs)

	tests := []struct {
		name        string
		id          string
		status      int
		contentType string
	}{
		{"renders png", "ok", http.StatusOK, "image/png"},
		{"unknown run", "missing", http.StatusNotFound, "application/json"},
		{"failed run", "failed", http.StatusUnprocessableEntity, "application/json"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/charts/runs/"+tt.id+"/allocation.png", nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.contentType, w.Header().Get("Content-Type"))
			if tt.status == http.StatusOK {
				assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("\x89PNG")))
			}
		})
	}
}

func TestHandleRunAllocation_StoreError(t *testing.T) {
	router := setupRouter(&fakeFrontier{}, &fakeRuns{err: errors.New("disk I/O error")})

	req := httptest.NewRequest(http.MethodGet, "/charts/runs/x/allocation.png", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "disk")
}

func TestHandleEfficientFrontier(t *testing.T) {
	report := &optimization.FrontierReport{
		EfficientCurve: &optimization.FrontierSample{
			Returns:      []float64{0.05, 0.08, 0.1},
			Volatilities: []float64{0.1, 0.12, 0.17},
			SharpeRatios: []float64{0.3, 0.5, 0.47},
			Weights:      [][]float64{{1, 0}, {0.5, 0.5}, {0, 1}},
		},
	}
	router := setupRouter(&fakeFrontier{report: report}, &fakeRuns{})

	req := httptest.NewRequest(http.MethodPost, "/charts/efficient-frontier.png", strings.NewReader(`{"tickers":["AAA","BBB"]}`))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("\x89PNG")))
}

func TestHandleEfficientFrontier_Errors(t *testing.T) {
	tests := []struct {
		name    string
		service *fakeFrontier
		body    string
		status  int
	}{
		{"malformed body", &fakeFrontier{}, `{"tickers":`, http.StatusBadRequest},
		{"missing tickers", &fakeFrontier{}, `{}`, http.StatusBadRequest},
		{"insufficient data", &fakeFrontier{err: optimization.ErrInsufficientData}, `{"tickers":["AAA","BBB"]}`, http.StatusBadRequest},
		{"empty curve", &fakeFrontier{report: &optimization.FrontierReport{EfficientCurve: &optimization.FrontierSample{}}}, `{"tickers":["AAA","BBB"]}`, http.StatusUnprocessableEntity},
		{"internal", &fakeFrontier{err: errors.New("boom")}, `{"tickers":["AAA","BBB"]}`, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := setupRouter(tt.service, &fakeRuns{})
			req := httptest.NewRequest(http.MethodPost, "/charts/efficient-frontier.png", strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			assert.Equal(t, tt.status, w.Code)
		})
	}
}

package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/aristath/frontier/internal/database"
	"github.com/aristath/frontier/internal/scheduler"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pingModule struct{}

func (pingModule) RegisterRoutes(r chi.Router) {
	r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"pong": "ok"})
	})
}

type staticCache struct {
	count int
	err   error
}

func (c staticCache) Count() (int, error) { return c.count, c.err }

type stubJob struct {
	name string
	err  error
	runs int
}

func (j *stubJob) Run() error   { j.runs++; return j.err }
func (j *stubJob) Name() string { return j.name }

func newTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.New(database.Config{
		Path:    filepath.Join(t.TempDir(), "frontier.db"),
		Profile: database.ProfileStandard,
		Name:    "frontier",
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate())
	return db
}

func newTestServer(t *testing.T, system *SystemHandlers) http.Handler {
	t.Helper()
	if system != nil {
		system.sample = func() (float64, float64) { return 12.5, 40 }
	}
	srv := New(Config{
		Log:     zerolog.Nop(),
		Port:    0,
		DevMode: true,
		System:  system,
		Modules: []RouteRegistrar{pingModule{}},
	})
	return srv.Router()
}

func get(t *testing.T, h http.Handler, method, path string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return rec, body
}

func TestServer_HealthAndModules(t *testing.T) {
	h := newTestServer(t, nil)

	rec, body := get(t, h, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "frontier", body["service"])
	assert.NotEmpty(t, rec.Header().Get("Content-Type"))

	rec, body = get(t, h, http.MethodGet, "/api/ping")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["pong"])
}

func TestServer_CORS(t *testing.T) {
	h := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/ping", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "GET")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.NotEmpty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestSystemStatus(t *testing.T) {
	db := newTestDB(t)
	system := NewSystemHandlers(zerolog.Nop(), "chart", staticCache{count: 7}, nil, db)
	h := newTestServer(t, system)

	rec, body := get(t, h, http.MethodGet, "/api/system/status")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "chart", body["provider"])
	assert.Equal(t, 7.0, body["cache_entries"])
	assert.Equal(t, 12.5, body["cpu_percent"])
	assert.Equal(t, 40.0, body["memory_percent"])
	assert.Contains(t, body["go_version"], "go")
}

func TestSystemStatus_CacheFailureDegrades(t *testing.T) {
	system := NewSystemHandlers(zerolog.Nop(), "yfinance", staticCache{err: errors.New("locked")}, nil)
	h := newTestServer(t, system)

	_, body := get(t, h, http.MethodGet, "/api/system/status")
	assert.Equal(t, "degraded", body["status"])
}

func TestDatabaseStats(t *testing.T) {
	db := newTestDB(t)
	system := NewSystemHandlers(zerolog.Nop(), "chart", nil, nil, db)
	h := newTestServer(t, system)

	rec, body := get(t, h, http.MethodGet, "/api/system/database/stats")
	assert.Equal(t, http.StatusOK, rec.Code)
	dbs := body["databases"].([]interface{})
	require.Len(t, dbs, 1)
	assert.Equal(t, "frontier", dbs[0].(map[string]interface{})["name"])
}

func TestJobs(t *testing.T) {
	runner := scheduler.New(zerolog.Nop())
	ok := &stubJob{name: "refresh_watchlist"}
	failing := &stubJob{name: "wal_checkpoint", err: errors.New("busy")}

	system := NewSystemHandlers(zerolog.Nop(), "chart", nil, runner)
	system.RegisterJob(ok)
	system.RegisterJob(failing)
	h := newTestServer(t, system)

	_, body := get(t, h, http.MethodGet, "/api/system/jobs")
	assert.Equal(t, []interface{}{"refresh_watchlist", "wal_checkpoint"}, body["jobs"])

	rec, body := get(t, h, http.MethodPost, "/api/system/jobs/refresh_watchlist")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "completed", body["status"])
	assert.Equal(t, 1, ok.runs)

	rec, _ = get(t, h, http.MethodPost, "/api/system/jobs/wal_checkpoint")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	rec, _ = get(t, h, http.MethodPost, "/api/system/jobs/unknown")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

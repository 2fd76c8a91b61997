package server

import (
	"net/http"
	"runtime"
	"sort"
	"time"

	"github.com/aristath/frontier/internal/database"
	"github.com/aristath/frontier/internal/scheduler"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// Version is reported by /health and /api/system/status.
var Version = "dev"

// CacheCounter reports the number of cached price series
type CacheCounter interface {
	Count() (int, error)
}

// JobRunner runs a job outside its schedule
type JobRunner interface {
	RunNow(job scheduler.Job) error
}

// SystemHandlers serves status and maintenance endpoints
type SystemHandlers struct {
	log       zerolog.Logger
	provider  string
	cache     CacheCounter
	databases []*database.DB
	runner    JobRunner
	jobs      map[string]scheduler.Job
	startedAt time.Time
	sample    func() (cpuPercent, memPercent float64)
}

// NewSystemHandlers creates new system handlers. cache and runner may be nil.
func NewSystemHandlers(log zerolog.Logger, provider string, cache CacheCounter, runner JobRunner, databases ...*database.DB) *SystemHandlers {
	h := &SystemHandlers{
		log:       log.With().Str("handler", "system").Logger(),
		provider:  provider,
		cache:     cache,
		databases: databases,
		runner:    runner,
		jobs:      make(map[string]scheduler.Job),
		startedAt: time.Now(),
	}
	h.sample = h.systemUsage
	return h
}

// RegisterJob makes a job triggerable via POST /api/system/jobs/{name}
func (h *SystemHandlers) RegisterJob(job scheduler.Job) {
	h.jobs[job.Name()] = job
}

// RegisterRoutes registers system routes
func (h *SystemHandlers) RegisterRoutes(r chi.Router) {
	r.Route("/system", func(r chi.Router) {
		r.Get("/status", h.HandleSystemStatus)
		r.Get("/database/stats", h.HandleDatabaseStats)
		r.Get("/jobs", h.HandleListJobs)
		r.Post("/jobs/{name}", h.HandleRunJob)
	})
}

// SystemStatusResponse represents the system status response
type SystemStatusResponse struct {
	Status        string  `json:"status"`
	Version       string  `json:"version"`
	GoVersion     string  `json:"go_version"`
	UptimeSeconds int64   `json:"uptime_seconds"`
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
	Goroutines    int     `json:"goroutines"`
	Provider      string  `json:"provider"`
	CacheEntries  int     `json:"cache_entries"`
}

// HandleSystemStatus handles GET /api/system/status
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	h.log.Debug().Msg("Getting system status")

	cpuPercent, memPercent := h.sample()
	response := SystemStatusResponse{
		Status:        "healthy",
		Version:       Version,
		GoVersion:     runtime.Version(),
		UptimeSeconds: int64(time.Since(h.startedAt).Seconds()),
		CPUPercent:    cpuPercent,
		MemoryPercent: memPercent,
		Goroutines:    runtime.NumGoroutine(),
		Provider:      h.provider,
	}

	if h.cache != nil {
		count, err := h.cache.Count()
		if err != nil {
			h.log.Warn().Err(err).Msg("Failed to count cache entries")
			response.Status = "degraded"
		}
		response.CacheEntries = count
	}

	for _, db := range h.databases {
		if err := db.QuickCheck(r.Context()); err != nil {
			h.log.Warn().Err(err).Str("database", db.Name()).Msg("Database health check failed")
			response.Status = "unhealthy"
		}
	}

	writeJSON(w, http.StatusOK, response)
}

// DBInfo describes one database file
type DBInfo struct {
	Name          string  `json:"name"`
	Path          string  `json:"path"`
	SizeMB        float64 `json:"size_mb"`
	WALSizeMB     float64 `json:"wal_size_mb"`
	PageCount     int64   `json:"page_count"`
	FreelistCount int64   `json:"freelist_count"`
}

// DatabaseStatsResponse represents database statistics
type DatabaseStatsResponse struct {
	Databases   []DBInfo `json:"databases"`
	TotalSizeMB float64  `json:"total_size_mb"`
	LastChecked string   `json:"last_checked"`
}

// HandleDatabaseStats handles GET /api/system/database/stats
func (h *SystemHandlers) HandleDatabaseStats(w http.ResponseWriter, r *http.Request) {
	h.log.Debug().Msg("Getting database stats")

	response := DatabaseStatsResponse{
		Databases:   []DBInfo{},
		LastChecked: time.Now().Format(time.RFC3339),
	}
	for _, db := range h.databases {
		stats, err := db.GetStats()
		if err != nil {
			h.log.Warn().Err(err).Str("database", db.Name()).Msg("Failed to get database stats")
			continue
		}
		sizeMB := float64(stats.SizeBytes) / 1024 / 1024
		response.TotalSizeMB += sizeMB
		response.Databases = append(response.Databases, DBInfo{
			Name:          db.Name(),
			Path:          db.Path(),
			SizeMB:        sizeMB,
			WALSizeMB:     float64(stats.WALSizeBytes) / 1024 / 1024,
			PageCount:     stats.PageCount,
			FreelistCount: stats.FreelistCount,
		})
	}

	writeJSON(w, http.StatusOK, response)
}

// HandleListJobs handles GET /api/system/jobs
func (h *SystemHandlers) HandleListJobs(w http.ResponseWriter, r *http.Request) {
	names := make([]string, 0, len(h.jobs))
	for name := range h.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	writeJSON(w, http.StatusOK, map[string]interface{}{"jobs": names})
}

// HandleRunJob handles POST /api/system/jobs/{name}
func (h *SystemHandlers) HandleRunJob(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	job, ok := h.jobs[name]
	if !ok || h.runner == nil {
		writeError(w, http.StatusNotFound, "Unknown job")
		return
	}

	start := time.Now()
	if err := h.runner.RunNow(job); err != nil {
		h.log.Error().Err(err).Str("job", name).Msg("Manual job run failed")
		writeError(w, http.StatusInternalServerError, "Job failed: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"job":         name,
		"status":      "completed",
		"duration_ms": time.Since(start).Milliseconds(),
	})
}

// systemUsage returns CPU and RAM usage percentages
func (h *SystemHandlers) systemUsage() (float64, float64) {
	// A short sampling window keeps the endpoint responsive
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}
	return cpuAvg, memStat.UsedPercent
}

package di

import (
	"github.com/aristath/frontier/internal/clientdata"
	"github.com/aristath/frontier/internal/database"
	"github.com/aristath/frontier/internal/marketdata"
	"github.com/aristath/frontier/internal/modules/charts"
	"github.com/aristath/frontier/internal/modules/optimization"
	"github.com/aristath/frontier/internal/scheduler"
)

// Container holds all application dependencies
type Container struct {
	// Databases
	FrontierDB *database.DB // run log
	CacheDB    *database.DB // price series cache

	// Repositories
	RunRepo   *optimization.RunRepository
	CacheRepo *clientdata.Repository

	// Market data
	Fetcher  marketdata.SeriesFetcher // upstream client wrapped by the cache
	Provider *marketdata.Provider

	// Services
	OptimizationService *optimization.Service
	ChartRenderer       *charts.Renderer
	Scheduler           *scheduler.Scheduler
}

// JobInstances holds the registered background jobs
type JobInstances struct {
	RefreshWatchlist *scheduler.RefreshWatchlistJob
	CacheCleanup     *clientdata.CleanupJob
	WALCheckpoint    *scheduler.WALCheckpointJob
}

// All returns the jobs in registration order
func (j *JobInstances) All() []scheduler.Job {
	return []scheduler.Job{j.RefreshWatchlist, j.CacheCleanup, j.WALCheckpoint}
}

// Close closes every open database
func (c *Container) Close() {
	if c.FrontierDB != nil {
		c.FrontierDB.Close()
	}
	if c.CacheDB != nil {
		c.CacheDB.Close()
	}
}

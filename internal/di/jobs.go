package di

import (
	"fmt"

	"github.com/aristath/frontier/internal/clientdata"
	"github.com/aristath/frontier/internal/config"
	"github.com/aristath/frontier/internal/scheduler"
	"github.com/rs/zerolog"
)

const (
	cacheCleanupSchedule  = "0 0 * * * *"  // hourly
	walCheckpointSchedule = "0 15 3 * * *" // daily at 03:15
)

// RegisterJobs creates the background jobs and adds them to the scheduler
func RegisterJobs(container *Container, cfg *config.Config, log zerolog.Logger) (*JobInstances, error) {
	jobs := &JobInstances{
		RefreshWatchlist: scheduler.NewRefreshWatchlistJob(container.Provider, cfg.Watchlist, log),
		CacheCleanup:     clientdata.NewCleanupJob(container.CacheRepo, log),
		WALCheckpoint:    scheduler.NewWALCheckpointJob(log, container.FrontierDB, container.CacheDB),
	}

	schedules := []struct {
		spec string
		job  scheduler.Job
	}{
		{cfg.RefreshSchedule, jobs.RefreshWatchlist},
		{cacheCleanupSchedule, jobs.CacheCleanup},
		{walCheckpointSchedule, jobs.WALCheckpoint},
	}
	for _, s := range schedules {
		if err := container.Scheduler.AddJob(s.spec, s.job); err != nil {
			return nil, fmt.Errorf("failed to register %s: %w", s.job.Name(), err)
		}
	}

	return jobs, nil
}

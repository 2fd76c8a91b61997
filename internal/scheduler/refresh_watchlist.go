package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/frontier/internal/modules/optimization"
	"github.com/rs/zerolog"
)

// RefreshWatchlistJob fetches the configured watchlist through the price
// provider so the cache is warm before the first request of the day.
type RefreshWatchlistJob struct {
	provider  optimization.PriceProvider
	watchlist []string
	timeout   time.Duration
	now       func() time.Time
	log       zerolog.Logger
}

// NewRefreshWatchlistJob creates a new RefreshWatchlistJob
func NewRefreshWatchlistJob(provider optimization.PriceProvider, watchlist []string, log zerolog.Logger) *RefreshWatchlistJob {
	return &RefreshWatchlistJob{
		provider:  provider,
		watchlist: append([]string(nil), watchlist...),
		timeout:   5 * time.Minute,
		now:       time.Now,
		log:       log.With().Str("job", "refresh_watchlist").Logger(),
	}
}

// Name returns the job name
func (j *RefreshWatchlistJob) Name() string {
	return "refresh_watchlist"
}

// Run fetches the default lookback window ending today.
func (j *RefreshWatchlistJob) Run() error {
	if len(j.watchlist) == 0 {
		j.log.Debug().Msg("Watchlist empty, nothing to refresh")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	end := j.now().UTC().Truncate(24 * time.Hour)
	start := end.AddDate(0, 0, -optimization.DefaultLookbackDays)

	table, err := j.provider.FetchPrices(ctx, j.watchlist, start, end)
	if err != nil {
		return fmt.Errorf("failed to refresh watchlist: %w", err)
	}

	j.log.Info().
		Strs("tickers", j.watchlist).
		Int("dates", len(table.Dates)).
		Msg("Watchlist prices refreshed")
	return nil
}

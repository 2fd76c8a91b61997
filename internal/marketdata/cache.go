package marketdata

import (
	"context"
	"time"

	"github.com/aristath/frontier/internal/clientdata"
	"github.com/rs/zerolog"
)

// CachedFetcher serves series from the SQLite cache and falls back to the
// wrapped fetcher on a miss. When the upstream fails, stale cache entries
// are returned instead (stale data > no data).
type CachedFetcher struct {
	next    SeriesFetcher
	repo    *clientdata.Repository
	ttl     time.Duration
	workers int
	now     func() time.Time
	log     zerolog.Logger
}

// NewCachedFetcher wraps next with the cache. ttl applies to ranges that
// reach the current session; closed ranges use clientdata.TTLHistoricalSeries.
func NewCachedFetcher(next SeriesFetcher, repo *clientdata.Repository, ttl time.Duration, log zerolog.Logger) *CachedFetcher {
	return &CachedFetcher{
		next:    next,
		repo:    repo,
		ttl:     ttl,
		workers: 4,
		now:     time.Now,
		log:     log.With().Str("component", "price_cache").Logger(),
	}
}

func seriesKey(symbol string, start, end time.Time) clientdata.SeriesKey {
	return clientdata.SeriesKey{Symbol: symbol, Start: start.Format(DateLayout), End: end.Format(DateLayout)}
}

// FetchSeries implements SeriesFetcher.
func (c *CachedFetcher) FetchSeries(ctx context.Context, symbol string, start, end time.Time) ([]Bar, error) {
	key := seriesKey(symbol, start, end)

	if bars, ok := c.fresh(key); ok {
		return bars, nil
	}

	bars, err := c.next.FetchSeries(ctx, symbol, start, end)
	if err != nil {
		return c.staleOr(key, err)
	}

	c.store(key, bars, end)
	return bars, nil
}

// FetchBatch implements BatchFetcher. Cache hits are served directly; misses
// go to the wrapped fetcher in one batch when it supports batching.
func (c *CachedFetcher) FetchBatch(ctx context.Context, symbols []string, start, end time.Time) (map[string][]Bar, map[string]error, error) {
	series := make(map[string][]Bar, len(symbols))
	var misses []string
	for _, symbol := range symbols {
		if bars, ok := c.fresh(seriesKey(symbol, start, end)); ok {
			series[symbol] = bars
			continue
		}
		misses = append(misses, symbol)
	}
	failures := make(map[string]error)
	if len(misses) == 0 {
		return series, failures, nil
	}

	var (
		fetched map[string][]Bar
		errs    map[string]error
		err     error
	)
	if batch, ok := c.next.(BatchFetcher); ok {
		fetched, errs, err = batch.FetchBatch(ctx, misses, start, end)
	} else {
		fetched, errs, err = fetchEach(ctx, c.next, misses, start, end, c.workers)
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, nil, err
		}
		errs = make(map[string]error, len(misses))
		for _, symbol := range misses {
			errs[symbol] = err
		}
	}

	for symbol, bars := range fetched {
		c.store(seriesKey(symbol, start, end), bars, end)
		series[symbol] = bars
	}
	for symbol, fetchErr := range errs {
		bars, staleErr := c.staleOr(seriesKey(symbol, start, end), fetchErr)
		if staleErr != nil {
			failures[symbol] = staleErr
			continue
		}
		series[symbol] = bars
	}
	return series, failures, nil
}

func (c *CachedFetcher) fresh(key clientdata.SeriesKey) ([]Bar, bool) {
	var bars []Bar
	found, err := c.repo.GetIfFresh(key, &bars)
	if err != nil {
		c.log.Warn().Err(err).Str("key", key.String()).Msg("Failed to read price cache")
		return nil, false
	}
	if found {
		normalizeDates(bars)
		c.log.Debug().Str("key", key.String()).Int("count", len(bars)).Msg("Cache hit")
	}
	return bars, found
}

func (c *CachedFetcher) staleOr(key clientdata.SeriesKey, fetchErr error) ([]Bar, error) {
	var bars []Bar
	found, err := c.repo.Get(key, &bars)
	if err != nil || !found || len(bars) == 0 {
		return nil, fetchErr
	}
	normalizeDates(bars)
	c.log.Warn().
		Err(fetchErr).
		Str("key", key.String()).
		Int("count", len(bars)).
		Msg("Upstream failed, using stale cached series")
	return bars, nil
}

func (c *CachedFetcher) store(key clientdata.SeriesKey, bars []Bar, end time.Time) {
	if len(bars) == 0 {
		return
	}
	ttl := clientdata.TTLFor(end, c.now(), c.ttl)
	if err := c.repo.Store(key, bars, len(bars), ttl); err != nil {
		c.log.Warn().Err(err).Str("key", key.String()).Msg("Failed to cache price series")
	}
}

// normalizeDates restores UTC dates after msgpack decoding, which yields
// local time.
func normalizeDates(bars []Bar) {
	for i := range bars {
		bars[i].Date = bars[i].Date.UTC()
	}
}

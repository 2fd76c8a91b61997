// Package marketdata fetches daily price history from Yahoo Finance and
// normalizes it into price tables for the optimizer.
package marketdata

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// DateLayout is the calendar date format used for cache keys.
const DateLayout = "2006-01-02"

// ErrNoData reports that the upstream source returned no bars for a symbol.
var ErrNoData = errors.New("no price data")

// Bar is one daily observation. Date is the trading day at midnight UTC.
type Bar struct {
	Date     time.Time `msgpack:"d"`
	Close    float64   `msgpack:"c"`
	AdjClose float64   `msgpack:"a"`
}

// Price returns the adjusted close, falling back to the raw close.
func (b Bar) Price() float64 {
	if b.AdjClose > 0 {
		return b.AdjClose
	}
	return b.Close
}

// SeriesFetcher fetches daily bars for one symbol. start and end are
// inclusive calendar dates.
type SeriesFetcher interface {
	FetchSeries(ctx context.Context, symbol string, start, end time.Time) ([]Bar, error)
}

// BatchFetcher fetches several symbols in one call. Per-symbol failures are
// reported in the error map; the returned error is reserved for failures of
// the whole batch.
type BatchFetcher interface {
	FetchBatch(ctx context.Context, symbols []string, start, end time.Time) (map[string][]Bar, map[string]error, error)
}

// fetchEach fetches symbols one by one on up to workers goroutines.
// Only context cancellation aborts the batch.
func fetchEach(ctx context.Context, fetcher SeriesFetcher, symbols []string, start, end time.Time, workers int) (map[string][]Bar, map[string]error, error) {
	var mu sync.Mutex
	series := make(map[string][]Bar, len(symbols))
	failures := make(map[string]error)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, symbol := range symbols {
		g.Go(func() error {
			bars, err := fetcher.FetchSeries(gctx, symbol, start, end)
			if ctxErr := gctx.Err(); ctxErr != nil {
				return ctxErr
			}

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures[symbol] = err
				return nil
			}
			series[symbol] = bars
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return series, failures, nil
}

// filterRange keeps bars whose date falls in [start, end], sorted input assumed.
func filterRange(bars []Bar, start, end time.Time) []Bar {
	start = truncateDay(start)
	end = truncateDay(end)
	out := bars[:0:0]
	for _, b := range bars {
		if b.Date.Before(start) || b.Date.After(end) {
			continue
		}
		out = append(out, b)
	}
	return out
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

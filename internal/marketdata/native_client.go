package marketdata

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/wnjoon/go-yfinance/pkg/models"
	"github.com/wnjoon/go-yfinance/pkg/multi"
	"github.com/wnjoon/go-yfinance/pkg/ticker"
)

// NativeClient fetches history through the go-yfinance library. The library
// works with ranges relative to today, so it fetches the smallest covering
// period and filters to the requested dates.
type NativeClient struct {
	log zerolog.Logger
	now func() time.Time
}

// NewNativeClient creates a new native Yahoo Finance client
func NewNativeClient(log zerolog.Logger) *NativeClient {
	return &NativeClient{
		log: log.With().Str("client", "yahoo-native").Logger(),
		now: time.Now,
	}
}

// FetchSeries implements SeriesFetcher.
func (c *NativeClient) FetchSeries(ctx context.Context, symbol string, start, end time.Time) ([]Bar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t, err := ticker.New(symbol)
	if err != nil {
		return nil, fmt.Errorf("failed to create ticker %s: %w", symbol, err)
	}
	defer t.Close()

	params := models.HistoryParams{
		Period:     coveringPeriod(start, c.now()),
		Interval:   "1d",
		AutoAdjust: true,
	}

	history, err := t.History(params)
	if err != nil {
		return nil, fmt.Errorf("failed to get historical prices for %s: %w", symbol, err)
	}

	bars := filterRange(convertBars(history), start, end)
	if len(bars) == 0 {
		return nil, fmt.Errorf("%w for %s between %s and %s", ErrNoData, symbol, start.Format(DateLayout), end.Format(DateLayout))
	}

	c.log.Debug().
		Str("symbol", symbol).
		Str("period", params.Period).
		Int("count", len(bars)).
		Msg("Fetched historical prices")
	return bars, nil
}

// FetchBatch implements BatchFetcher with one multi.Download call.
func (c *NativeClient) FetchBatch(ctx context.Context, symbols []string, start, end time.Time) (map[string][]Bar, map[string]error, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	if len(symbols) == 0 {
		return map[string][]Bar{}, map[string]error{}, nil
	}

	params := models.DefaultDownloadParams()
	params.Symbols = symbols
	params.Period = coveringPeriod(start, c.now())
	params.Interval = "1d"

	result, err := multi.Download(symbols, &params)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to download batch history: %w", err)
	}

	series := make(map[string][]Bar, len(symbols))
	failures := make(map[string]error)
	for _, symbol := range symbols {
		if err, ok := result.Errors[symbol]; ok && err != nil {
			failures[symbol] = err
			continue
		}
		bars := filterRange(convertBars(result.Data[symbol]), start, end)
		if len(bars) == 0 {
			failures[symbol] = fmt.Errorf("%w for %s", ErrNoData, symbol)
			continue
		}
		series[symbol] = bars
	}

	c.log.Debug().
		Int("symbols", len(symbols)).
		Int("failed", len(failures)).
		Str("period", params.Period).
		Msg("Downloaded batch history")
	return series, failures, nil
}

func convertBars(history []models.Bar) []Bar {
	bars := make([]Bar, 0, len(history))
	for _, b := range history {
		bar := Bar{
			Date:     truncateDay(b.Date),
			Close:    b.Close,
			AdjClose: b.AdjClose,
		}
		if bar.Price() <= 0 {
			continue
		}
		bars = append(bars, bar)
	}
	return bars
}

// coveringPeriod returns the shortest Yahoo range string that reaches back
// to start from now.
func coveringPeriod(start, now time.Time) string {
	days := now.Sub(start).Hours() / 24
	switch {
	case days <= 28:
		return "1mo"
	case days <= 88:
		return "3mo"
	case days <= 180:
		return "6mo"
	case days <= 363:
		return "1y"
	case days <= 728:
		return "2y"
	case days <= 5*365:
		return "5y"
	case days <= 10*365:
		return "10y"
	default:
		return "max"
	}
}

package marketdata

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/aristath/frontier/internal/modules/optimization"
	"github.com/rs/zerolog"
)

// Provider builds optimizer price tables from a fetcher.
type Provider struct {
	fetcher SeriesFetcher
	workers int
	log     zerolog.Logger
}

// NewProvider creates a new provider. If fetcher also implements
// BatchFetcher, the batch path is used.
func NewProvider(fetcher SeriesFetcher, log zerolog.Logger) *Provider {
	return &Provider{
		fetcher: fetcher,
		workers: 4,
		log:     log.With().Str("component", "price_provider").Logger(),
	}
}

// FetchPrices implements optimization.PriceProvider. The table's dates are
// the union of all trading days; a ticker without a bar on a date gets NaN.
// Tickers that return no data yield ErrDataUnavailable naming all of them.
func (p *Provider) FetchPrices(ctx context.Context, tickers []string, start, end time.Time) (*optimization.PriceTable, error) {
	if len(tickers) == 0 {
		return nil, fmt.Errorf("%w: no tickers requested", optimization.ErrInvalidInput)
	}

	var (
		series   map[string][]Bar
		failures map[string]error
		err      error
	)
	if batch, ok := p.fetcher.(BatchFetcher); ok {
		series, failures, err = batch.FetchBatch(ctx, tickers, start, end)
	} else {
		series, failures, err = fetchEach(ctx, p.fetcher, tickers, start, end, p.workers)
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", optimization.ErrDataUnavailable, err)
	}

	var missing []string
	for _, ticker := range tickers {
		if len(series[ticker]) > 0 {
			continue
		}
		missing = append(missing, ticker)
		if ferr := failures[ticker]; ferr != nil {
			p.log.Warn().Err(ferr).Str("ticker", ticker).Msg("Failed to fetch prices")
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: no price data for %s between %s and %s", optimization.ErrDataUnavailable,
			strings.Join(missing, ", "), start.Format(DateLayout), end.Format(DateLayout))
	}

	table := buildTable(tickers, series)
	p.log.Debug().
		Strs("tickers", tickers).
		Int("dates", len(table.Dates)).
		Msg("Price table built")
	return table, nil
}

// buildTable aligns series on the union of their dates.
func buildTable(tickers []string, series map[string][]Bar) *optimization.PriceTable {
	index := make(map[time.Time]int)
	for _, ticker := range tickers {
		for _, b := range series[ticker] {
			index[truncateDay(b.Date.UTC())] = 0
		}
	}
	dates := make([]time.Time, 0, len(index))
	for d := range index {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	for i, d := range dates {
		index[d] = i
	}

	prices := make([][]float64, len(tickers))
	for j, ticker := range tickers {
		col := make([]float64, len(dates))
		for i := range col {
			col[i] = math.NaN()
		}
		for _, b := range series[ticker] {
			col[index[truncateDay(b.Date.UTC())]] = b.Price()
		}
		prices[j] = col
	}

	return &optimization.PriceTable{
		Dates:   dates,
		Tickers: append([]string(nil), tickers...),
		Prices:  prices,
	}
}

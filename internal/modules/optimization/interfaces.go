package optimization

import (
	"context"
	"time"
)

// PriceProvider supplies adjusted daily closing prices for a universe.
// Implementations normalize whatever the upstream source returns into a
// PriceTable; malformed or ambiguous upstream payloads must surface as
// ErrDataUnavailable rather than reach the engine.
type PriceProvider interface {
	FetchPrices(ctx context.Context, tickers []string, start, end time.Time) (*PriceTable, error)
}

// RunStore persists optimization runs. Used to avoid a hard dependency on the
// SQLite repository in tests.
type RunStore interface {
	Save(run *Run) error
}

// PriceTable is the provider-normalized price input.
// Prices holds one column per ticker (Prices[j][i] is ticker j on Dates[i]);
// a missing cell is NaN.
type PriceTable struct {
	Dates   []time.Time
	Tickers []string
	Prices  [][]float64
}

// Column returns the price column for ticker, or nil if absent.
func (t *PriceTable) Column(ticker string) []float64 {
	for j, tk := range t.Tickers {
		if tk == ticker {
			return t.Prices[j]
		}
	}
	return nil
}

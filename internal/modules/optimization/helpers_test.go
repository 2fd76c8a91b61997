package optimization

import (
	"math"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// syntheticTable builds a geometric random walk per ticker. drift and vol are
// daily.
func syntheticTable(tickers []string, days int, drift, vol []float64, seed uint64) *PriceTable {
	rng := rand.New(rand.NewPCG(seed, 1))
	start := time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)

	table := &PriceTable{
		Dates:   make([]time.Time, days),
		Tickers: append([]string(nil), tickers...),
		Prices:  make([][]float64, len(tickers)),
	}
	for j := range tickers {
		table.Prices[j] = make([]float64, days)
		table.Prices[j][0] = 100
	}
	for i := 0; i < days; i++ {
		table.Dates[i] = start.AddDate(0, 0, i)
		if i == 0 {
			continue
		}
		for j := range tickers {
			r := drift[j] + vol[j]*rng.NormFloat64()
			table.Prices[j][i] = table.Prices[j][i-1] * math.Exp(r)
		}
	}
	return table
}

func fourAssetSession(t *testing.T) *Session {
	t.Helper()
	tickers := []string{"AAA", "BBB", "CCC", "DDD"}
	table := syntheticTable(tickers, 400,
		[]float64{0.0008, 0.0004, 0.0002, 0.0006},
		[]float64{0.020, 0.012, 0.008, 0.016},
		42)

	s, err := NewSession(SessionParams{
		Tickers:      tickers,
		Start:        table.Dates[0],
		End:          table.Dates[len(table.Dates)-1],
		RiskFreeRate: 0.02,
	}, table)
	require.NoError(t, err)
	return s
}

func statsSession(t *testing.T, mean []float64, cov [][]float64, rf float64) *Session {
	t.Helper()
	stats, err := NewAnnualizedStatistics(mean, cov)
	require.NoError(t, err)

	tickers := make([]string, len(mean))
	for i := range tickers {
		tickers[i] = string(rune('A' + i))
	}
	s, err := NewSessionFromStatistics(tickers, stats, rf)
	require.NoError(t, err)
	return s
}

func requireValidWeights(t *testing.T, w []float64, n int) {
	t.Helper()
	require.Len(t, w, n)
	sum := 0.0
	for i, v := range w {
		require.GreaterOrEqual(t, v, 0.0, "weight %d", i)
		require.LessOrEqual(t, v, 1.0, "weight %d", i)
		sum += v
	}
	require.InDelta(t, 1.0, sum, 1e-6, "weights should sum to 1")
}

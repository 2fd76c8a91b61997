package optimization

import (
	"fmt"
	"math"
)

// AssetStatistics describes one asset on its own, independent of any
// portfolio weights.
type AssetStatistics struct {
	Ticker     string  `json:"ticker"`
	Return     float64 `json:"return"`
	Volatility float64 `json:"volatility"`
	Sharpe     float64 `json:"sharpe"`
}

// ReportAssetStatistics returns annualized return, volatility and Sharpe
// ratio for every asset of the session, in universe order.
func ReportAssetStatistics(s *Session) ([]AssetStatistics, error) {
	if err := sessionReady(s); err != nil {
		return nil, err
	}

	stats := s.Stats()
	rf := s.RiskFreeRate()
	tickers := s.Tickers()

	report := make([]AssetStatistics, len(tickers))
	for i, ticker := range tickers {
		variance := stats.Cov.At(i, i)
		if !(variance > minVolatility*minVolatility) {
			return nil, fmt.Errorf("%w: %s has variance %g", ErrDegenerateVariance, ticker, variance)
		}
		ret := stats.Mean.AtVec(i)
		vol := math.Sqrt(variance)
		report[i] = AssetStatistics{
			Ticker:     ticker,
			Return:     ret,
			Volatility: vol,
			Sharpe:     (ret - rf) / vol,
		}
	}
	return report, nil
}

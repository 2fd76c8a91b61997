package optimization

import (
	"fmt"
	"math"
	"time"

	"github.com/markcheno/go-talib"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

const (
	// TradingDaysPerYear annualizes daily statistics.
	TradingDaysPerYear = 252
	// MinObservations is the minimum number of clean return rows required
	// before sample statistics are trusted.
	MinObservations = 30
)

// ReturnSeries holds daily fractional price changes, one column per asset.
type ReturnSeries struct {
	Dates   []time.Time
	Tickers []string
	Returns *mat.Dense // rows = trading days, cols = assets
}

// Len returns the number of observations.
func (r *ReturnSeries) Len() int {
	rows, _ := r.Returns.Dims()
	return rows
}

// AnnualizedStatistics holds the annualized mean vector and covariance matrix.
type AnnualizedStatistics struct {
	Mean *mat.VecDense
	Cov  *mat.SymDense
}

// N returns the number of assets.
func (s *AnnualizedStatistics) N() int {
	return s.Mean.Len()
}

// NewAnnualizedStatistics builds statistics from already annualized values.
// cov is an n x n matrix in row-major order and must be symmetric.
func NewAnnualizedStatistics(mean []float64, cov [][]float64) (*AnnualizedStatistics, error) {
	n := len(mean)
	if n == 0 {
		return nil, fmt.Errorf("%w: empty mean vector", ErrInvalidInput)
	}
	if len(cov) != n {
		return nil, fmt.Errorf("%w: covariance matrix size %d doesn't match asset count %d", ErrInvalidInput, len(cov), n)
	}

	sigma := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		if len(cov[i]) != n {
			return nil, fmt.Errorf("%w: covariance matrix row %d has size %d, expected %d", ErrInvalidInput, i, len(cov[i]), n)
		}
		for j := i; j < n; j++ {
			if math.Abs(cov[i][j]-cov[j][i]) > 1e-12 {
				return nil, fmt.Errorf("%w: covariance matrix is not symmetric at (%d,%d)", ErrInvalidInput, i, j)
			}
			sigma.SetSym(i, j, cov[i][j])
		}
	}

	return &AnnualizedStatistics{
		Mean: mat.NewVecDense(n, append([]float64(nil), mean...)),
		Cov:  sigma,
	}, nil
}

// ComputeReturns converts a price table into a clean return series.
// The first row (no prior price) and every row with a missing value on any
// column are discarded. Non-positive prices count as missing.
func ComputeReturns(table *PriceTable) (*ReturnSeries, error) {
	if table == nil || len(table.Tickers) == 0 || len(table.Dates) == 0 {
		return nil, fmt.Errorf("%w: empty price table", ErrDataUnavailable)
	}
	n := len(table.Tickers)
	if len(table.Prices) != n {
		return nil, fmt.Errorf("%w: price table has %d columns for %d tickers", ErrDataUnavailable, len(table.Prices), n)
	}

	rows := len(table.Dates)
	changes := make([][]float64, n)
	for j, col := range table.Prices {
		if len(col) != rows {
			return nil, fmt.Errorf("%w: column %s has %d prices for %d dates", ErrDataUnavailable, table.Tickers[j], len(col), rows)
		}

		clean := make([]float64, rows)
		valid := 0
		for i, p := range col {
			if p > 0 && !math.IsInf(p, 0) {
				clean[i] = p
				valid++
			} else {
				clean[i] = math.NaN()
			}
		}
		if valid < 2 {
			return nil, fmt.Errorf("%w: no usable prices for %s", ErrDataUnavailable, table.Tickers[j])
		}

		// Rocp leaves the first value as a lookback placeholder; it is dropped below.
		changes[j] = talib.Rocp(clean, 1)
	}

	keep := make([]int, 0, rows)
	for i := 1; i < rows; i++ {
		complete := true
		for j := 0; j < n; j++ {
			v := changes[j][i]
			if math.IsNaN(v) || math.IsInf(v, 0) {
				complete = false
				break
			}
		}
		if complete {
			keep = append(keep, i)
		}
	}

	if len(keep) < MinObservations {
		return nil, fmt.Errorf("%w: %d return observations after cleaning, need at least %d",
			ErrInsufficientData, len(keep), MinObservations)
	}

	data := mat.NewDense(len(keep), n, nil)
	dates := make([]time.Time, len(keep))
	for r, i := range keep {
		dates[r] = table.Dates[i]
		for j := 0; j < n; j++ {
			data.Set(r, j, changes[j][i])
		}
	}

	return &ReturnSeries{
		Dates:   dates,
		Tickers: append([]string(nil), table.Tickers...),
		Returns: data,
	}, nil
}

// Annualize computes mean returns and the sample covariance matrix
// (n-1 denominator), both scaled by TradingDaysPerYear.
func Annualize(returns *ReturnSeries) *AnnualizedStatistics {
	rows, n := returns.Returns.Dims()

	mean := mat.NewVecDense(n, nil)
	col := make([]float64, rows)
	for j := 0; j < n; j++ {
		mat.Col(col, j, returns.Returns)
		mean.SetVec(j, stat.Mean(col, nil)*TradingDaysPerYear)
	}

	cov := mat.NewSymDense(n, nil)
	stat.CovarianceMatrix(cov, returns.Returns, nil)
	cov.ScaleSym(TradingDaysPerYear, cov)

	return &AnnualizedStatistics{Mean: mean, Cov: cov}
}

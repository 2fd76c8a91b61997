package optimization

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultRiskFreeRate is used when the caller does not specify one.
const DefaultRiskFreeRate = 0.02

// SessionParams identifies one optimization session.
type SessionParams struct {
	Tickers      []string
	Start        time.Time
	End          time.Time
	RiskFreeRate float64
}

// Validate checks the parameters before any data is fetched.
func (p SessionParams) Validate() error {
	if err := ValidateUniverse(p.Tickers); err != nil {
		return err
	}
	if !p.Start.IsZero() && !p.End.IsZero() && !p.Start.Before(p.End) {
		return fmt.Errorf("%w: start date %s must be before end date %s",
			ErrInvalidInput, p.Start.Format(DateLayout), p.End.Format(DateLayout))
	}
	if math.IsNaN(p.RiskFreeRate) || math.IsInf(p.RiskFreeRate, 0) {
		return fmt.Errorf("%w: risk-free rate must be a finite number", ErrInvalidInput)
	}
	return nil
}

// ValidateUniverse checks that tickers form an ordered set of at least two
// unique, non-empty identifiers.
func ValidateUniverse(tickers []string) error {
	if len(tickers) < 2 {
		return fmt.Errorf("%w: at least 2 tickers required, got %d", ErrInvalidInput, len(tickers))
	}
	seen := make(map[string]struct{}, len(tickers))
	for _, t := range tickers {
		if strings.TrimSpace(t) == "" {
			return fmt.Errorf("%w: empty ticker", ErrInvalidInput)
		}
		if _, dup := seen[t]; dup {
			return fmt.Errorf("%w: duplicate ticker %s", ErrInvalidInput, t)
		}
		seen[t] = struct{}{}
	}
	return nil
}

// Session is the immutable context of one optimization session: a universe,
// its return series and annualized statistics, and the risk-free rate.
// It is built once and passed to every solver, sampler and reporter call.
type Session struct {
	id           string
	tickers      []string
	start        time.Time
	end          time.Time
	riskFreeRate float64
	returns      *ReturnSeries
	stats        *AnnualizedStatistics
}

// NewSession derives returns and statistics from a provider price table.
// Columns are reordered to match params.Tickers.
func NewSession(params SessionParams, table *PriceTable) (*Session, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if table == nil || len(table.Dates) == 0 {
		return nil, fmt.Errorf("%w: no price data for the requested tickers and date range", ErrDataUnavailable)
	}

	ordered := &PriceTable{
		Dates:   table.Dates,
		Tickers: append([]string(nil), params.Tickers...),
		Prices:  make([][]float64, len(params.Tickers)),
	}
	var missing []string
	for j, ticker := range params.Tickers {
		col := table.Column(ticker)
		if col == nil {
			missing = append(missing, ticker)
			continue
		}
		ordered.Prices[j] = col
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: no price data for %s", ErrDataUnavailable, strings.Join(missing, ", "))
	}

	returns, err := ComputeReturns(ordered)
	if err != nil {
		return nil, err
	}

	return &Session{
		id:           uuid.New().String(),
		tickers:      ordered.Tickers,
		start:        params.Start,
		end:          params.End,
		riskFreeRate: params.RiskFreeRate,
		returns:      returns,
		stats:        Annualize(returns),
	}, nil
}

// NewSessionFromStatistics builds a session from known annualized statistics.
// The session has no return series.
func NewSessionFromStatistics(tickers []string, stats *AnnualizedStatistics, riskFreeRate float64) (*Session, error) {
	params := SessionParams{Tickers: tickers, RiskFreeRate: riskFreeRate}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if stats == nil {
		return nil, ErrStatisticsUnavailable
	}
	if stats.N() != len(tickers) {
		return nil, fmt.Errorf("%w: statistics cover %d assets, universe has %d", ErrInvalidInput, stats.N(), len(tickers))
	}
	return &Session{
		id:           uuid.New().String(),
		tickers:      append([]string(nil), tickers...),
		riskFreeRate: riskFreeRate,
		stats:        stats,
	}, nil
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Tickers returns a copy of the asset universe.
func (s *Session) Tickers() []string { return append([]string(nil), s.tickers...) }

// N returns the number of assets.
func (s *Session) N() int { return len(s.tickers) }

// Start returns the first requested date (zero when built from statistics).
func (s *Session) Start() time.Time { return s.start }

// End returns the last requested date (zero when built from statistics).
func (s *Session) End() time.Time { return s.end }

// RiskFreeRate returns the annual risk-free rate.
func (s *Session) RiskFreeRate() float64 { return s.riskFreeRate }

// Returns returns the daily return series, or nil.
func (s *Session) Returns() *ReturnSeries { return s.returns }

// Stats returns the annualized statistics.
func (s *Session) Stats() *AnnualizedStatistics { return s.stats }

// Objectives returns the objective functions bound to this session.
func (s *Session) Objectives() Objectives {
	return Objectives{stats: s.stats, riskFreeRate: s.riskFreeRate}
}

// EqualWeights returns the 1/n portfolio.
func (s *Session) EqualWeights() []float64 {
	return equalWeights(s.N())
}

func equalWeights(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 1.0 / float64(n)
	}
	return w
}

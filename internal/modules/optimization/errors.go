package optimization

import "errors"

// Error taxonomy for the optimization engine. Callers wrap these with
// fmt.Errorf("%w: ...") and match them with errors.Is.
var (
	// ErrInvalidInput reports malformed caller input (too few tickers,
	// duplicates, inverted date range, non-finite risk-free rate).
	ErrInvalidInput = errors.New("invalid input")

	// ErrDataUnavailable reports that the market-data provider returned no
	// usable rows for the requested universe and range.
	ErrDataUnavailable = errors.New("data unavailable")

	// ErrInsufficientData reports a cleaned return series shorter than MinObservations.
	ErrInsufficientData = errors.New("insufficient data")

	// ErrDegenerateVariance reports a non-positive portfolio volatility.
	ErrDegenerateVariance = errors.New("degenerate variance")

	// ErrStatisticsUnavailable reports a request for statistics before a
	// session has been built.
	ErrStatisticsUnavailable = errors.New("statistics unavailable")

	// ErrConvergence never escapes the engine as an error. A solve that runs
	// out of iterations is reported as a result with Success=false.
	ErrConvergence = errors.New("optimization did not converge")
)

// Result messages for solver failures.
const (
	msgNotConverged      = "Optimization failed to converge"
	msgTargetUnreachable = "Could not achieve target return with given constraints"
	msgLineSearchFailed  = "Optimization failed: line search could not reduce the objective"
)

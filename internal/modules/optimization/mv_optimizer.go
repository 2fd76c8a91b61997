package optimization

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"
)

// Strategy selects the optimization problem.
type Strategy string

const (
	// StrategyMaxSharpe maximizes (mean.w - r) / sqrt(w'Sigma w).
	StrategyMaxSharpe Strategy = "sharpe"
	// StrategyMinVariance minimizes w'Sigma w.
	StrategyMinVariance Strategy = "min_variance"
	// StrategyTargetReturn minimizes w'Sigma w subject to mean.w = target.
	StrategyTargetReturn Strategy = "target_return"
)

// OptimizationResult is the outcome of one solve. A solve that did not
// converge has Success=false and a Message; it is not an error.
type OptimizationResult struct {
	Weights     []float64 `json:"weights"`
	Return      float64   `json:"return"`
	Volatility  float64   `json:"volatility"`
	SharpeRatio float64   `json:"sharpe_ratio"`
	Success     bool      `json:"success"`
	Message     string    `json:"message,omitempty"`
	Iterations  int       `json:"-"`
}

// Err returns ErrConvergence wrapped with the result message when the solve
// failed, and nil otherwise.
func (r *OptimizationResult) Err() error {
	if r.Success {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrConvergence, r.Message)
}

// MVOptimizer performs mean-variance portfolio optimization.
// It holds no session state and is safe for concurrent use.
type MVOptimizer struct {
	settings SolverSettings
	log      zerolog.Logger
}

// NewMVOptimizer creates a new mean-variance optimizer.
func NewMVOptimizer(settings SolverSettings, log zerolog.Logger) *MVOptimizer {
	return &MVOptimizer{
		settings: settings.withDefaults(),
		log:      log.With().Str("component", "mv_optimizer").Logger(),
	}
}

// Optimize solves the mean-variance optimization problem for a session.
//
// Mathematical formulation:
//   - sharpe: maximize (mean'w - r) / sqrt(w'Sigma w)
//   - min_variance: minimize w'Sigma w
//   - target_return: minimize w'Sigma w subject to mean'w = target_return
//
// Constraints:
//   - sum(w) = 1 (fully invested)
//   - 0 <= w_i <= 1 (no short selling)
func (mvo *MVOptimizer) Optimize(s *Session, strategy Strategy, targetReturn *float64) (*OptimizationResult, error) {
	if err := sessionReady(s); err != nil {
		return nil, err
	}

	switch strategy {
	case StrategyMaxSharpe:
		return mvo.MaxSharpe(s)
	case StrategyMinVariance:
		return mvo.MinVariance(s)
	case StrategyTargetReturn:
		if targetReturn == nil {
			return nil, fmt.Errorf("%w: target_return required for %s strategy", ErrInvalidInput, strategy)
		}
		return mvo.TargetReturn(s, *targetReturn)
	default:
		return nil, fmt.Errorf("%w: unknown optimization type %q", ErrInvalidInput, strategy)
	}
}

// MaxSharpe finds the long-only portfolio with the highest Sharpe ratio.
func (mvo *MVOptimizer) MaxSharpe(s *Session) (*OptimizationResult, error) {
	if err := sessionReady(s); err != nil {
		return nil, err
	}
	obj := s.Objectives()
	sol := minimizeSimplex(obj.negativeSharpeProblem(), s.EqualWeights(), [][]float64{ones(s.N())}, mvo.settings)
	return mvo.finish(s, StrategyMaxSharpe, sol)
}

// MinVariance finds the long-only portfolio with the lowest variance.
func (mvo *MVOptimizer) MinVariance(s *Session) (*OptimizationResult, error) {
	if err := sessionReady(s); err != nil {
		return nil, err
	}
	obj := s.Objectives()
	sol := minimizeSimplex(obj.varianceProblem(), s.EqualWeights(), [][]float64{ones(s.N())}, mvo.settings)
	return mvo.finish(s, StrategyMinVariance, sol)
}

// TargetReturn finds the lowest-variance portfolio whose expected return
// equals target. A target outside the range of single-asset returns cannot
// be reached by any long-only portfolio and is reported as a failed result.
func (mvo *MVOptimizer) TargetReturn(s *Session, target float64) (*OptimizationResult, error) {
	if err := sessionReady(s); err != nil {
		return nil, err
	}
	if math.IsNaN(target) || math.IsInf(target, 0) {
		return nil, fmt.Errorf("%w: target return must be a finite number", ErrInvalidInput)
	}

	mu := s.Stats().Mean.RawVector().Data
	lowIdx, highIdx := 0, 0
	for i, m := range mu {
		if m < mu[lowIdx] {
			lowIdx = i
		}
		if m > mu[highIdx] {
			highIdx = i
		}
	}
	low, high := mu[lowIdx], mu[highIdx]

	tol := 1e-10 * (1 + math.Abs(target))
	if target < low-tol || target > high+tol {
		mvo.log.Debug().
			Float64("target", target).
			Float64("min_return", low).
			Float64("max_return", high).
			Msg("Target return outside achievable range")
		return &OptimizationResult{
			Success: false,
			Message: fmt.Sprintf("%s: target %.4f outside achievable range [%.4f, %.4f]", msgTargetUnreachable, target, low, high),
		}, nil
	}

	x0 := targetStart(s.EqualWeights(), mu, target, lowIdx, highIdx)
	eq := [][]float64{ones(s.N()), append([]float64(nil), mu...)}

	obj := s.Objectives()
	sol := minimizeSimplex(obj.varianceProblem(), x0, eq, mvo.settings)
	return mvo.finish(s, StrategyTargetReturn, sol)
}

// targetStart blends equal weights toward the highest (or lowest) return
// asset so the start point earns exactly target.
func targetStart(eq, mu []float64, target float64, lowIdx, highIdx int) []float64 {
	base := 0.0
	for i := range eq {
		base += eq[i] * mu[i]
	}

	j := highIdx
	if target < base {
		j = lowIdx
	}

	t := 0.0
	if den := mu[j] - base; math.Abs(den) > 1e-15 {
		t = (target - base) / den
	}
	t = math.Max(0, math.Min(1, t))

	x0 := make([]float64, len(eq))
	for i := range eq {
		x0[i] = (1 - t) * eq[i]
	}
	x0[j] += t
	return x0
}

func (mvo *MVOptimizer) finish(s *Session, strategy Strategy, sol solveResult) (*OptimizationResult, error) {
	event := mvo.log.Debug().
		Str("strategy", string(strategy)).
		Int("assets", s.N()).
		Int("iterations", sol.Iterations).
		Bool("converged", sol.Converged)

	if !sol.Converged {
		event.Str("message", sol.Message).Msg("Optimization did not converge")
		return &OptimizationResult{
			Success:    false,
			Message:    sol.Message,
			Iterations: sol.Iterations,
		}, nil
	}

	weights := append([]float64(nil), sol.X...)
	ret, vol, sharpe, err := s.Objectives().Evaluate(weights)
	if err != nil {
		return nil, err
	}

	event.Float64("volatility", vol).Msg("Optimization converged")
	return &OptimizationResult{
		Weights:     weights,
		Return:      ret,
		Volatility:  vol,
		SharpeRatio: sharpe,
		Success:     true,
		Iterations:  sol.Iterations,
	}, nil
}

func ones(n int) []float64 {
	v := make([]float64, n)
	for i := range v {
		v[i] = 1
	}
	return v
}

func sessionReady(s *Session) error {
	if s == nil || s.Stats() == nil {
		return ErrStatisticsUnavailable
	}
	return nil
}

package optimization

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
)

// minVolatility is the floor below which a portfolio volatility is treated
// as degenerate. The solver objectives use it instead of dividing by zero.
const minVolatility = 1e-12

// Objectives evaluates portfolio metrics against one set of statistics.
// All methods are pure.
type Objectives struct {
	stats        *AnnualizedStatistics
	riskFreeRate float64
}

// NewObjectives binds objective functions to statistics and a risk-free rate.
func NewObjectives(stats *AnnualizedStatistics, riskFreeRate float64) Objectives {
	return Objectives{stats: stats, riskFreeRate: riskFreeRate}
}

// PortfolioReturn computes mean . w
func (o Objectives) PortfolioReturn(w []float64) float64 {
	return mat.Dot(o.stats.Mean, mat.NewVecDense(len(w), w))
}

// PortfolioVariance computes w' Sigma w
func (o Objectives) PortfolioVariance(w []float64) float64 {
	x := mat.NewVecDense(len(w), w)
	return mat.Inner(x, o.stats.Cov, x)
}

// PortfolioVolatility computes sqrt(w' Sigma w). A volatility at or below
// the degeneracy floor yields ErrDegenerateVariance.
func (o Objectives) PortfolioVolatility(w []float64) (float64, error) {
	variance := o.PortfolioVariance(w)
	if !(variance > minVolatility*minVolatility) {
		return 0, fmt.Errorf("%w: portfolio variance %g is not positive", ErrDegenerateVariance, variance)
	}
	return math.Sqrt(variance), nil
}

// Sharpe computes (return - r) / volatility.
func (o Objectives) Sharpe(w []float64) (float64, error) {
	vol, err := o.PortfolioVolatility(w)
	if err != nil {
		return 0, err
	}
	return (o.PortfolioReturn(w) - o.riskFreeRate) / vol, nil
}

// NegativeSharpe is the minimization form of Sharpe.
func (o Objectives) NegativeSharpe(w []float64) (float64, error) {
	s, err := o.Sharpe(w)
	if err != nil {
		return 0, err
	}
	return -s, nil
}

// Evaluate returns return, volatility and Sharpe ratio of w.
func (o Objectives) Evaluate(w []float64) (ret, vol, sharpe float64, err error) {
	vol, err = o.PortfolioVolatility(w)
	if err != nil {
		return 0, 0, 0, err
	}
	ret = o.PortfolioReturn(w)
	return ret, vol, (ret - o.riskFreeRate) / vol, nil
}

// varianceProblem is w' Sigma w with its exact gradient and Hessian.
func (o Objectives) varianceProblem() optimize.Problem {
	n := o.stats.N()
	return optimize.Problem{
		Func: o.PortfolioVariance,
		Grad: func(grad, x []float64) {
			g := mat.NewVecDense(n, grad)
			g.MulVec(o.stats.Cov, mat.NewVecDense(n, x))
			g.ScaleVec(2, g)
		},
		Hess: func(hess *mat.SymDense, x []float64) {
			hess.ScaleSym(2, o.stats.Cov)
		},
	}
}

// negativeSharpeProblem is -Sharpe with the volatility floored at
// minVolatility. No Hessian; the solver builds a quasi-Newton model.
//
// With a = mean.w - r and s = sqrt(w' Sigma w):
//
//	d(-a/s)/dw = -(mean/s - a * Sigma w / s^3)
func (o Objectives) negativeSharpeProblem() optimize.Problem {
	n := o.stats.N()
	return optimize.Problem{
		Func: func(x []float64) float64 {
			s := math.Max(math.Sqrt(math.Max(o.PortfolioVariance(x), 0)), minVolatility)
			return -(o.PortfolioReturn(x) - o.riskFreeRate) / s
		},
		Grad: func(grad, x []float64) {
			xv := mat.NewVecDense(n, x)
			sigmaW := mat.NewVecDense(n, nil)
			sigmaW.MulVec(o.stats.Cov, xv)

			s := math.Max(math.Sqrt(math.Max(mat.Dot(xv, sigmaW), 0)), minVolatility)
			a := mat.Dot(o.stats.Mean, xv) - o.riskFreeRate
			s3 := s * s * s
			for i := 0; i < n; i++ {
				grad[i] = -(o.stats.Mean.AtVec(i)/s - a*sigmaW.AtVec(i)/s3)
			}
		},
	}
}

// Problem exposes the objective of a strategy as a gonum optimize.Problem,
// for callers that want to evaluate or differentiate it directly.
func (o Objectives) Problem(strategy Strategy) (optimize.Problem, error) {
	switch strategy {
	case StrategyMaxSharpe:
		return o.negativeSharpeProblem(), nil
	case StrategyMinVariance, StrategyTargetReturn:
		return o.varianceProblem(), nil
	default:
		return optimize.Problem{}, fmt.Errorf("%w: unknown optimization type %q", ErrInvalidInput, strategy)
	}
}

package optimization

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
)

const (
	armijoC1          = 1e-4
	maxLineSearchHalv = 30
	stallIterations   = 5 // consecutive negligible improvements that count as convergence
)

// SolverSettings controls the SQP iteration.
type SolverSettings struct {
	MaxIterations int     // iteration budget
	StepTolerance float64 // infinity norm of the QP step below which the iterate is optimal
	FuncTolerance float64 // relative objective change treated as no progress
}

// DefaultSolverSettings returns the settings used by the API.
func DefaultSolverSettings() SolverSettings {
	return SolverSettings{
		MaxIterations: 1000,
		StepTolerance: 1e-9,
		FuncTolerance: 1e-12,
	}
}

func (s SolverSettings) withDefaults() SolverSettings {
	def := DefaultSolverSettings()
	if s.MaxIterations <= 0 {
		s.MaxIterations = def.MaxIterations
	}
	if s.StepTolerance <= 0 {
		s.StepTolerance = def.StepTolerance
	}
	if s.FuncTolerance <= 0 {
		s.FuncTolerance = def.FuncTolerance
	}
	return s
}

// solveResult is the raw outcome of one constrained minimization.
type solveResult struct {
	X          []float64
	F          float64
	Iterations int
	Converged  bool
	Message    string
}

// minimizeSimplex minimizes problem.Func over
//
//	{ w : 0 <= w_i <= 1, A w = A x0 }
//
// by sequential quadratic programming. x0 must be feasible; every iterate
// stays feasible because each QP step lies in the null space of A and inside
// the box, and the line search only shortens it. When problem.Hess is set the
// exact Hessian is used; otherwise a damped BFGS model is maintained.
func minimizeSimplex(problem optimize.Problem, x0 []float64, eq [][]float64, settings SolverSettings) solveResult {
	settings = settings.withDefaults()
	n := len(x0)

	x := append([]float64(nil), x0...)
	fx := problem.Func(x)
	g := make([]float64, n)
	problem.Grad(g, x)

	exact := problem.Hess != nil
	B := mat.NewSymDense(n, nil)
	if exact {
		problem.Hess(B, x)
		regularize(B)
	} else {
		for i := 0; i < n; i++ {
			B.SetSym(i, i, 1)
		}
	}
	scaled := false

	lo := make([]float64, n)
	hi := make([]float64, n)
	xn := make([]float64, n)
	gn := make([]float64, n)
	stalled := 0

	for iter := 1; iter <= settings.MaxIterations; iter++ {
		for i := 0; i < n; i++ {
			lo[i] = -x[i]
			hi[i] = 1 - x[i]
		}

		d, err := solveBoxQP(qpProblem{B: B, g: g, A: eq, lo: lo, hi: hi})
		if err != nil {
			return solveResult{X: x, F: fx, Iterations: iter, Message: "Optimization failed: " + err.Error()}
		}

		dnorm := maxAbs(d)
		if dnorm <= settings.StepTolerance {
			return solveResult{X: x, F: fx, Iterations: iter, Converged: true}
		}

		slope := floats.Dot(g, d)
		noise := settings.FuncTolerance * (1 + math.Abs(fx))
		if slope >= -noise {
			// The model predicts no decrease beyond rounding.
			return solveResult{X: x, F: fx, Iterations: iter, Converged: true}
		}

		alpha := 1.0
		accepted := false
		var fn float64
		for k := 0; k < maxLineSearchHalv; k++ {
			for i := 0; i < n; i++ {
				xn[i] = x[i] + alpha*d[i]
			}
			fn = problem.Func(xn)
			if fn <= fx+armijoC1*alpha*slope {
				accepted = true
				break
			}
			alpha *= 0.5
		}
		if !accepted {
			// Near the optimum the predicted decrease drowns in rounding.
			if -slope <= 1e3*noise {
				return solveResult{X: x, F: fx, Iterations: iter, Converged: true}
			}
			return solveResult{X: x, F: fx, Iterations: iter, Message: msgLineSearchFailed}
		}

		clipRounding(xn)
		problem.Grad(gn, xn)

		if exact {
			problem.Hess(B, xn)
			regularize(B)
		} else {
			s := make([]float64, n)
			y := make([]float64, n)
			floats.SubTo(s, xn, x)
			floats.SubTo(y, gn, g)
			if !scaled {
				scaleInitialModel(B, s, y)
				scaled = true
			}
			dampedBFGSUpdate(B, s, y)
		}

		improvement := fx - fn
		copy(x, xn)
		copy(g, gn)
		fx = fn

		if improvement <= settings.FuncTolerance*(1+math.Abs(fx)) {
			stalled++
			if stalled >= stallIterations {
				return solveResult{X: x, F: fx, Iterations: iter, Converged: true}
			}
		} else {
			stalled = 0
		}
	}

	return solveResult{X: x, F: fx, Iterations: settings.MaxIterations, Message: msgNotConverged}
}

// regularize shifts the diagonal so a positive semi-definite Hessian becomes
// positive definite.
func regularize(B *mat.SymDense) {
	n := B.SymmetricDim()
	maxDiag := 0.0
	for i := 0; i < n; i++ {
		maxDiag = math.Max(maxDiag, math.Abs(B.At(i, i)))
	}
	shift := 1e-10*maxDiag + 1e-14
	for i := 0; i < n; i++ {
		B.SetSym(i, i, B.At(i, i)+shift)
	}
}

// scaleInitialModel replaces the identity with (y'y / s'y) I after the first
// step so the quasi-Newton model has the curvature scale of the objective.
func scaleInitialModel(B *mat.SymDense, s, y []float64) {
	sy := floats.Dot(s, y)
	yy := floats.Dot(y, y)
	if sy <= 1e-18 || yy <= 0 {
		return
	}
	n := B.SymmetricDim()
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			B.SetSym(i, j, 0)
		}
		B.SetSym(i, i, yy/sy)
	}
}

// dampedBFGSUpdate applies Powell's damped BFGS update, which keeps B
// positive definite even when s'y is small or negative.
func dampedBFGSUpdate(B *mat.SymDense, s, y []float64) {
	n := len(s)
	sv := mat.NewVecDense(n, s)
	bs := mat.NewVecDense(n, nil)
	bs.MulVec(B, sv)

	sBs := mat.Dot(sv, bs)
	if sBs <= 1e-18 {
		return
	}

	sy := floats.Dot(s, y)
	theta := 1.0
	if sy < 0.2*sBs {
		theta = 0.8 * sBs / (sBs - sy)
	}

	r := mat.NewVecDense(n, nil)
	r.AddScaledVec(r, theta, mat.NewVecDense(n, y))
	r.AddScaledVec(r, 1-theta, bs)

	sr := mat.Dot(sv, r)
	if sr <= 1e-18 {
		return
	}

	B.SymRankOne(B, -1/sBs, bs)
	B.SymRankOne(B, 1/sr, r)
}

// clipRounding removes floating-point excursions outside [0,1] left by
// x + alpha*d when a step lands exactly on a bound. The QP step already
// respects the bounds, so any value changed here sits within rounding
// error of 0 or 1. It does not renormalize and it leaves in-range weights
// untouched, so the optimum the solver found is not moved.
func clipRounding(x []float64) {
	for i, v := range x {
		if v < 0 {
			x[i] = 0
		} else if v > 1 {
			x[i] = 1
		}
	}
}

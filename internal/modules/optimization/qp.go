package optimization

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

const (
	qpBoundTol      = 1e-14 // a bound this close to zero is treated as active at d = 0
	qpStepTol       = 1e-13 // null step threshold inside the active-set loop
	qpMultiplierTol = 1e-12 // minimum multiplier violation that releases a bound
	qpRankTol       = 1e-9  // relative residual below which an equality row is dependent
)

type boundState int8

const (
	boundFree boundState = iota
	boundLower
	boundUpper
)

// qpProblem is the SQP subproblem
//
//	minimize   1/2 d'Bd + g'd
//	subject to A d = 0,  lo <= d <= hi
//
// with lo <= 0 <= hi so that d = 0 is feasible.
type qpProblem struct {
	B  *mat.SymDense
	g  []float64
	A  [][]float64
	lo []float64
	hi []float64
}

// solveBoxQP runs a primal active-set method from d = 0. Bounds that are
// active at the start form the initial working set. Each iteration solves the
// equality-constrained problem on the free variables, steps to the nearest
// blocking bound, or, at a stationary point, releases the bound with the most
// negative multiplier. The result is always feasible; if the iteration cap is
// hit it may be suboptimal, which the outer line search tolerates.
func solveBoxQP(p qpProblem) ([]float64, error) {
	n := len(p.g)
	lo := append([]float64(nil), p.lo...)
	hi := append([]float64(nil), p.hi...)

	d := make([]float64, n)
	state := make([]boundState, n)
	for i := 0; i < n; i++ {
		switch {
		case lo[i] >= -qpBoundTol:
			lo[i] = 0
			state[i] = boundLower
		case hi[i] <= qpBoundTol:
			hi[i] = 0
			state[i] = boundUpper
		}
	}

	h := make([]float64, n)
	step := make([]float64, n)
	maxIter := 50 + 10*n

	for iter := 0; iter < maxIter; iter++ {
		free := freeIndices(state)

		// Gradient of the model at d: h = B d + g
		hv := mat.NewVecDense(n, h)
		hv.MulVec(p.B, mat.NewVecDense(n, d))
		floats.Add(h, p.g)

		q := orthonormalRows(p.A, free)

		for i := range step {
			step[i] = 0
		}
		if len(free) > 0 {
			pF, err := solveKKT(p.B, h, q, free)
			if err != nil {
				return nil, err
			}
			for a, i := range free {
				step[i] = pF[a]
			}
		}

		if maxAbs(step) <= qpStepTol {
			// Stationary on the working set; look for a bound to release.
			lambda := make([]float64, len(q))
			for k, row := range q {
				lambda[k] = -dotOn(h, row, free)
			}

			release := -1
			worst := qpMultiplierTol
			for i := 0; i < n; i++ {
				if state[i] == boundFree {
					continue
				}
				z := h[i]
				for k, row := range q {
					z += lambda[k] * row[i]
				}
				if state[i] == boundLower && -z > worst {
					release, worst = i, -z
				}
				if state[i] == boundUpper && z > worst {
					release, worst = i, z
				}
			}
			if release < 0 {
				return d, nil
			}
			state[release] = boundFree
			continue
		}

		alpha := 1.0
		block := -1
		blockState := boundFree
		for _, i := range free {
			switch {
			case step[i] < 0:
				if r := (lo[i] - d[i]) / step[i]; r < alpha {
					alpha, block, blockState = r, i, boundLower
				}
			case step[i] > 0:
				if r := (hi[i] - d[i]) / step[i]; r < alpha {
					alpha, block, blockState = r, i, boundUpper
				}
			}
		}
		if alpha < 0 {
			alpha = 0
		}

		for _, i := range free {
			d[i] += alpha * step[i]
		}
		if block >= 0 {
			state[block] = blockState
			if blockState == boundLower {
				d[block] = lo[block]
			} else {
				d[block] = hi[block]
			}
		}
	}

	return d, nil
}

// solveKKT solves
//
//	[ B_FF  Q_F' ] [ p ]   [ -h_F ]
//	[ Q_F   0    ] [ l ] = [  0   ]
//
// for the step p on the free set. Q has orthonormal rows on F, so the system
// is nonsingular whenever B_FF is positive definite. A singular or badly
// conditioned system is retried with a diagonal shift.
func solveKKT(B *mat.SymDense, h []float64, q [][]float64, free []int) ([]float64, error) {
	m := len(free)
	k := len(q)
	size := m + k

	build := func(shift float64) (*mat.Dense, *mat.VecDense) {
		kkt := mat.NewDense(size, size, nil)
		rhs := mat.NewVecDense(size, nil)
		for a, i := range free {
			for b, j := range free {
				kkt.Set(a, b, B.At(i, j))
			}
			kkt.Set(a, a, kkt.At(a, a)+shift)
			for r, row := range q {
				kkt.Set(a, m+r, row[i])
				kkt.Set(m+r, a, row[i])
			}
			rhs.SetVec(a, -h[i])
		}
		return kkt, rhs
	}

	kkt, rhs := build(0)
	var sol mat.VecDense
	err := sol.SolveVec(kkt, rhs)
	if err != nil {
		maxDiag := 0.0
		for _, i := range free {
			maxDiag = math.Max(maxDiag, math.Abs(B.At(i, i)))
		}
		kkt, rhs = build(1e-8*maxDiag + 1e-12)
		err = sol.SolveVec(kkt, rhs)
		var cond mat.Condition
		if err != nil && !errors.As(err, &cond) {
			return nil, fmt.Errorf("QP subproblem: %w", err)
		}
	}

	p := make([]float64, m)
	for a := range p {
		p[a] = sol.AtVec(a)
		if math.IsNaN(p[a]) || math.IsInf(p[a], 0) {
			return nil, fmt.Errorf("QP subproblem produced a non-finite step")
		}
	}
	return p, nil
}

// orthonormalRows applies Gram-Schmidt to the rows of A using the inner
// product restricted to the free indices. Rows are transformed over their
// full length so the fixed-variable entries stay consistent for multiplier
// estimates. Rows that are dependent on the free set are dropped.
func orthonormalRows(A [][]float64, free []int) [][]float64 {
	q := make([][]float64, 0, len(A))
	for _, row := range A {
		ref := math.Sqrt(dotOn(row, row, free))
		if ref == 0 {
			continue
		}
		v := append([]float64(nil), row...)
		// Two passes keep the basis orthogonal in floating point.
		for pass := 0; pass < 2; pass++ {
			for _, u := range q {
				floats.AddScaled(v, -dotOn(v, u, free), u)
			}
		}
		norm := math.Sqrt(dotOn(v, v, free))
		if norm <= qpRankTol*ref {
			continue
		}
		floats.Scale(1/norm, v)
		q = append(q, v)
	}
	return q
}

func freeIndices(state []boundState) []int {
	free := make([]int, 0, len(state))
	for i, s := range state {
		if s == boundFree {
			free = append(free, i)
		}
	}
	return free
}

func dotOn(a, b []float64, idx []int) float64 {
	sum := 0.0
	for _, i := range idx {
		sum += a[i] * b[i]
	}
	return sum
}

func maxAbs(v []float64) float64 {
	m := 0.0
	for _, x := range v {
		if a := math.Abs(x); a > m {
			m = a
		}
	}
	return m
}

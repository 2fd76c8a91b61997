package optimization

import (
	"context"
	"fmt"
	"math/rand/v2"
	"runtime"

	"golang.org/x/sync/errgroup"
)

const (
	// DefaultFrontierSamples is the number of random portfolios drawn when
	// the caller does not ask for a specific count.
	DefaultFrontierSamples = 500
	// DefaultCurvePoints is the number of target returns swept for the efficient curve.
	DefaultCurvePoints = 20

	// sampleChunkSize draws share one random stream. Chunk boundaries depend
	// only on the sample index, so output does not depend on worker count.
	sampleChunkSize = 64
)

// FrontierSample holds portfolios as parallel arrays: entry k of each slice
// describes the same portfolio.
type FrontierSample struct {
	Returns      []float64   `json:"returns"`
	Volatilities []float64   `json:"volatilities"`
	SharpeRatios []float64   `json:"sharpe_ratios"`
	Weights      [][]float64 `json:"weights"`
}

// Len returns the number of portfolios.
func (f *FrontierSample) Len() int {
	return len(f.Returns)
}

func newFrontierSample(size int) *FrontierSample {
	return &FrontierSample{
		Returns:      make([]float64, size),
		Volatilities: make([]float64, size),
		SharpeRatios: make([]float64, size),
		Weights:      make([][]float64, size),
	}
}

// SamplerOptions configures SampleFrontier.
type SamplerOptions struct {
	Samples int    // defaults to DefaultFrontierSamples
	Seed    uint64 // same seed and sample count give identical output
	Workers int    // defaults to GOMAXPROCS
}

// SampleFrontier draws random long-only fully invested portfolios: each
// draw takes n uniform magnitudes and normalizes them by their sum.
// Draws are evaluated concurrently; the result is deterministic for a seed.
func SampleFrontier(ctx context.Context, s *Session, opts SamplerOptions) (*FrontierSample, error) {
	if err := sessionReady(s); err != nil {
		return nil, err
	}

	samples := opts.Samples
	if samples <= 0 {
		samples = DefaultFrontierSamples
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	n := s.N()
	obj := s.Objectives()
	out := newFrontierSample(samples)
	chunks := (samples + sampleChunkSize - 1) / sampleChunkSize

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for c := 0; c < chunks; c++ {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rng := rand.New(rand.NewPCG(opts.Seed, uint64(c)))
			start := c * sampleChunkSize
			end := min(start+sampleChunkSize, samples)
			for k := start; k < end; k++ {
				w := randomWeights(rng, n)
				ret, vol, sharpe, err := obj.Evaluate(w)
				if err != nil {
					return fmt.Errorf("frontier sample %d: %w", k, err)
				}
				// Each chunk writes a disjoint index range.
				out.Returns[k] = ret
				out.Volatilities[k] = vol
				out.SharpeRatios[k] = sharpe
				out.Weights[k] = w
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return out, nil
}

func randomWeights(rng *rand.Rand, n int) []float64 {
	w := make([]float64, n)
	sum := 0.0
	for i := range w {
		w[i] = rng.Float64()
		sum += w[i]
	}
	if sum == 0 {
		return equalWeights(n)
	}
	for i := range w {
		w[i] /= sum
	}
	return w
}

// EfficientCurve traces the upper efficient frontier by sweeping target
// returns from the minimum-variance portfolio's return up to the highest
// single-asset return. Targets that fail to solve are skipped, so the curve
// may hold fewer than points entries. The solves run concurrently.
func (mvo *MVOptimizer) EfficientCurve(ctx context.Context, s *Session, points int) (*FrontierSample, error) {
	minVar, err := mvo.MinVariance(s)
	if err != nil {
		return nil, err
	}
	if !minVar.Success {
		mvo.log.Warn().Str("message", minVar.Message).Msg("Minimum variance solve failed, efficient curve is empty")
		return newFrontierSample(0), nil
	}

	if points < 2 {
		points = 2
	}

	high := minVar.Return
	for _, m := range s.Stats().Mean.RawVector().Data {
		high = max(high, m)
	}
	low := minVar.Return

	results := make([]*OptimizationResult, points)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for k := 0; k < points; k++ {
		target := low + (high-low)*float64(k)/float64(points-1)
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if k == 0 {
				results[k] = minVar
				return nil
			}
			res, err := mvo.TargetReturn(s, target)
			if err != nil {
				return err
			}
			results[k] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	curve := newFrontierSample(0)
	for _, res := range results {
		if res == nil || !res.Success {
			continue
		}
		curve.Returns = append(curve.Returns, res.Return)
		curve.Volatilities = append(curve.Volatilities, res.Volatility)
		curve.SharpeRatios = append(curve.SharpeRatios, res.SharpeRatio)
		curve.Weights = append(curve.Weights, res.Weights)
	}
	return curve, nil
}

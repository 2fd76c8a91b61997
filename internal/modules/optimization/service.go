package optimization

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// ServiceConfig holds the tunables of the optimization service.
type ServiceConfig struct {
	Solver         SolverSettings
	FrontierSample int
	CurvePoints    int
}

// FrontierReport is the efficient frontier response: the random sample, both
// optima and the traced efficient curve.
type FrontierReport struct {
	Tickers        []string            `json:"tickers"`
	Frontier       *FrontierSample     `json:"frontier"`
	MaxSharpe      *OptimizationResult `json:"optimal_sharpe"`
	MinVariance    *OptimizationResult `json:"optimal_min_variance"`
	EfficientCurve *FrontierSample     `json:"efficient_curve"`
	Seed           uint64              `json:"seed"`
}

// OptimaFound reports whether both optima were solved.
func (r *FrontierReport) OptimaFound() bool {
	return r.MaxSharpe != nil && r.MaxSharpe.Success && r.MinVariance != nil && r.MinVariance.Success
}

// Service ties the price provider, the engine and the run log together.
type Service struct {
	provider  PriceProvider
	runs      RunStore
	optimizer *MVOptimizer
	config    ServiceConfig
	log       zerolog.Logger
	now       func() time.Time
}

// NewService creates a new optimization service. runs may be nil, in which
// case optimization runs are not persisted.
func NewService(provider PriceProvider, runs RunStore, config ServiceConfig, log zerolog.Logger) *Service {
	if config.FrontierSample <= 0 {
		config.FrontierSample = DefaultFrontierSamples
	}
	if config.CurvePoints <= 0 {
		config.CurvePoints = DefaultCurvePoints
	}
	return &Service{
		provider:  provider,
		runs:      runs,
		optimizer: NewMVOptimizer(config.Solver, log),
		config:    config,
		log:       log.With().Str("service", "optimization").Logger(),
		now:       time.Now,
	}
}

// Optimizer returns the underlying optimizer.
func (s *Service) Optimizer() *MVOptimizer {
	return s.optimizer
}

// NewSession fetches prices for params and builds a session from them.
func (s *Service) NewSession(ctx context.Context, params SessionParams) (*Session, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	table, err := s.provider.FetchPrices(ctx, params.Tickers, params.Start, params.End)
	if err != nil {
		return nil, err
	}

	session, err := NewSession(params, table)
	if err != nil {
		return nil, err
	}

	s.log.Debug().
		Str("session_id", session.ID()).
		Strs("tickers", session.Tickers()).
		Int("observations", session.Returns().Len()).
		Msg("Session created")
	return session, nil
}

// Optimize runs one optimization for req and records it in the run log.
// A solve that did not converge returns a Run whose Result has Success=false.
func (s *Service) Optimize(ctx context.Context, req Request) (*Run, error) {
	started := s.now()

	session, err := s.NewSession(ctx, req.SessionParams())
	if err != nil {
		return nil, err
	}

	result, err := s.optimizer.Optimize(session, req.Strategy, req.TargetReturn)
	if err != nil {
		return nil, err
	}

	run := &Run{
		ID:           uuid.New().String(),
		SessionID:    session.ID(),
		Strategy:     req.Strategy,
		Tickers:      session.Tickers(),
		Start:        req.Start,
		End:          req.End,
		RiskFreeRate: req.RiskFreeRate,
		TargetReturn: req.TargetReturn,
		Result:       *result,
		Duration:     s.now().Sub(started),
		CreatedAt:    started,
	}

	s.log.Info().
		Str("run_id", run.ID).
		Str("strategy", string(req.Strategy)).
		Bool("success", result.Success).
		Dur("duration", run.Duration).
		Msg("Optimization completed")

	if s.runs != nil {
		if err := s.runs.Save(run); err != nil {
			// The result is still valid without a log entry.
			s.log.Error().Err(err).Str("run_id", run.ID).Msg("Failed to save optimization run")
		}
	}
	return run, nil
}

// EfficientFrontier samples random portfolios and solves both optima and the
// efficient curve for the same session. The four computations run
// concurrently. A nil seed draws a fresh one, which is echoed in the report.
func (s *Service) EfficientFrontier(ctx context.Context, req Request) (*FrontierReport, error) {
	session, err := s.NewSession(ctx, req.SessionParams())
	if err != nil {
		return nil, err
	}

	samples := req.Samples
	if samples <= 0 {
		samples = s.config.FrontierSample
	}
	seed := rand.Uint64()
	if req.Seed != nil {
		seed = *req.Seed
	}

	report := &FrontierReport{Tickers: session.Tickers(), Seed: seed}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		sample, err := SampleFrontier(gctx, session, SamplerOptions{Samples: samples, Seed: seed})
		if err != nil {
			return fmt.Errorf("frontier sample: %w", err)
		}
		report.Frontier = sample
		return nil
	})
	g.Go(func() error {
		res, err := s.optimizer.MaxSharpe(session)
		if err != nil {
			return fmt.Errorf("max sharpe: %w", err)
		}
		report.MaxSharpe = res
		return nil
	})
	g.Go(func() error {
		res, err := s.optimizer.MinVariance(session)
		if err != nil {
			return fmt.Errorf("min variance: %w", err)
		}
		report.MinVariance = res
		return nil
	})
	g.Go(func() error {
		curve, err := s.optimizer.EfficientCurve(gctx, session, s.config.CurvePoints)
		if err != nil {
			return fmt.Errorf("efficient curve: %w", err)
		}
		report.EfficientCurve = curve
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	s.log.Info().
		Strs("tickers", report.Tickers).
		Int("samples", report.Frontier.Len()).
		Int("curve_points", report.EfficientCurve.Len()).
		Uint64("seed", seed).
		Bool("optima_found", report.OptimaFound()).
		Msg("Efficient frontier computed")
	return report, nil
}

// AssetStatistics reports per-asset statistics for a freshly built session.
func (s *Service) AssetStatistics(ctx context.Context, params SessionParams) ([]AssetStatistics, error) {
	session, err := s.NewSession(ctx, params)
	if err != nil {
		return nil, err
	}
	return ReportAssetStatistics(session)
}

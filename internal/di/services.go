package di

import (
	"fmt"

	"github.com/aristath/frontier/internal/clientdata"
	"github.com/aristath/frontier/internal/config"
	"github.com/aristath/frontier/internal/marketdata"
	"github.com/aristath/frontier/internal/modules/charts"
	"github.com/aristath/frontier/internal/modules/optimization"
	"github.com/aristath/frontier/internal/scheduler"
	"github.com/rs/zerolog"
)

// InitializeServices creates repositories, the market data stack and the
// optimization service
func InitializeServices(container *Container, cfg *config.Config, log zerolog.Logger) error {
	container.RunRepo = optimization.NewRunRepository(container.FrontierDB.Conn())
	container.CacheRepo = clientdata.NewRepository(container.CacheDB.Conn())

	switch cfg.Provider {
	case config.ProviderChart:
		container.Fetcher = marketdata.NewChartClient(cfg.YahooBaseURL, log)
	case config.ProviderYFinance:
		container.Fetcher = marketdata.NewNativeClient(log)
	default:
		return fmt.Errorf("unknown market data provider %q", cfg.Provider)
	}

	cached := marketdata.NewCachedFetcher(container.Fetcher, container.CacheRepo, cfg.PriceCacheTTL(), log)
	container.Provider = marketdata.NewProvider(cached, log)

	solver := optimization.DefaultSolverSettings()
	solver.MaxIterations = cfg.SolverMaxIterations
	container.OptimizationService = optimization.NewService(container.Provider, container.RunRepo, optimization.ServiceConfig{
		Solver:         solver,
		FrontierSample: cfg.FrontierSamples,
		CurvePoints:    cfg.FrontierCurvePoints,
	}, log)

	container.ChartRenderer = charts.NewRenderer()
	container.Scheduler = scheduler.New(log)

	log.Info().
		Str("provider", cfg.Provider).
		Int("solver_max_iterations", solver.MaxIterations).
		Msg("Services initialized")
	return nil
}

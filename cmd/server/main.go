// Package main is the entry point for the Frontier portfolio optimization
// service. It serves mean-variance optimization over HTTP, caches market data
// in SQLite and keeps the cache warm with scheduled jobs.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aristath/frontier/internal/config"
	"github.com/aristath/frontier/internal/di"
	chartshandlers "github.com/aristath/frontier/internal/modules/charts/handlers"
	optimizationhandlers "github.com/aristath/frontier/internal/modules/optimization/handlers"
	"github.com/aristath/frontier/internal/server"
	"github.com/aristath/frontier/pkg/logger"
)

func main() {
	// Load configuration first to get log level
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{
			Level:  "info",
			Pretty: true,
		})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})
	logger.SetGlobalLogger(log)

	log.Info().
		Str("data_dir", cfg.DataDir).
		Str("provider", cfg.Provider).
		Msg("Starting Frontier")

	container, jobs, err := di.Wire(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to wire dependencies")
	}
	defer container.Close()

	system := server.NewSystemHandlers(log, cfg.Provider, container.CacheRepo, container.Scheduler,
		container.FrontierDB, container.CacheDB)
	for _, job := range jobs.All() {
		system.RegisterJob(job)
	}

	optimizationHandler := optimizationhandlers.
		NewHandler(container.OptimizationService, container.RunRepo, log).
		WithRiskFreeRate(cfg.RiskFreeRate)
	chartsHandler := chartshandlers.
		NewHandler(container.OptimizationService, container.RunRepo, container.ChartRenderer, log).
		WithRiskFreeRate(cfg.RiskFreeRate)

	srv := server.New(server.Config{
		Log:     log,
		Port:    cfg.Port,
		DevMode: cfg.DevMode,
		System:  system,
		Modules: []server.RouteRegistrar{optimizationHandler, chartsHandler},
	})

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	container.Scheduler.Start()

	// Warm the cache once at startup
	if len(cfg.Watchlist) > 0 {
		go func() {
			if err := container.Scheduler.RunNow(jobs.RefreshWatchlist); err != nil {
				log.Warn().Err(err).Msg("Initial watchlist refresh failed")
			}
		}()
	}

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	container.Scheduler.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}

// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Market data providers
const (
	ProviderChart    = "chart"
	ProviderYFinance = "yfinance"
)

// Config holds application configuration
type Config struct {
	DataDir              string   `yaml:"data_dir"` // Base directory for all databases (always absolute after Load)
	Port                 int      `yaml:"port"`
	LogLevel             string   `yaml:"log_level"`
	DevMode              bool     `yaml:"dev_mode"`
	Provider             string   `yaml:"provider"`
	YahooBaseURL         string   `yaml:"yahoo_base_url"`
	PriceCacheTTLMinutes int      `yaml:"price_cache_ttl_minutes"`
	RiskFreeRate         float64  `yaml:"risk_free_rate"`
	FrontierSamples      int      `yaml:"frontier_samples"`
	FrontierCurvePoints  int      `yaml:"frontier_curve_points"`
	SolverMaxIterations  int      `yaml:"solver_max_iterations"`
	Watchlist            []string `yaml:"watchlist"`
	RefreshSchedule      string   `yaml:"refresh_schedule"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		DataDir:              "./data",
		Port:                 8001,
		LogLevel:             "info",
		Provider:             ProviderChart,
		YahooBaseURL:         "https://query1.finance.yahoo.com",
		PriceCacheTTLMinutes: 360,
		RiskFreeRate:         0.02,
		FrontierSamples:      500,
		FrontierCurvePoints:  20,
		SolverMaxIterations:  1000,
		RefreshSchedule:      "0 30 6 * * *",
	}
}

// Load reads configuration from the optional YAML file named by
// FRONTIER_CONFIG, then environment variables.
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := Default()
	if path := getEnv("FRONTIER_CONFIG", ""); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()

	absDataDir, err := filepath.Abs(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	cfg.DataDir = absDataDir

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.DataDir = getEnv("FRONTIER_DATA_DIR", c.DataDir)
	c.Port = getEnvAsInt("GO_PORT", c.Port)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.DevMode = getEnvAsBool("DEV_MODE", c.DevMode)
	c.Provider = strings.ToLower(getEnv("MARKET_DATA_PROVIDER", c.Provider))
	c.YahooBaseURL = getEnv("YAHOO_BASE_URL", c.YahooBaseURL)
	c.PriceCacheTTLMinutes = getEnvAsInt("PRICE_CACHE_TTL_MINUTES", c.PriceCacheTTLMinutes)
	c.RiskFreeRate = getEnvAsFloat("RISK_FREE_RATE", c.RiskFreeRate)
	c.FrontierSamples = getEnvAsInt("FRONTIER_SAMPLES", c.FrontierSamples)
	c.FrontierCurvePoints = getEnvAsInt("FRONTIER_CURVE_POINTS", c.FrontierCurvePoints)
	c.SolverMaxIterations = getEnvAsInt("SOLVER_MAX_ITERATIONS", c.SolverMaxIterations)
	c.RefreshSchedule = getEnv("REFRESH_SCHEDULE", c.RefreshSchedule)
	if value := os.Getenv("WATCHLIST"); value != "" {
		c.Watchlist = splitList(value)
	}
}

// PriceCacheTTL returns the cache lifetime for series that reach today
func (c *Config) PriceCacheTTL() time.Duration {
	return time.Duration(c.PriceCacheTTLMinutes) * time.Minute
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	switch c.Provider {
	case ProviderChart, ProviderYFinance:
	default:
		return fmt.Errorf("unknown market data provider %q (want %q or %q)", c.Provider, ProviderChart, ProviderYFinance)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.PriceCacheTTLMinutes <= 0 {
		return fmt.Errorf("price_cache_ttl_minutes must be positive, got %d", c.PriceCacheTTLMinutes)
	}
	if c.FrontierSamples <= 0 {
		return fmt.Errorf("frontier_samples must be positive, got %d", c.FrontierSamples)
	}
	if c.FrontierCurvePoints < 2 {
		return fmt.Errorf("frontier_curve_points must be at least 2, got %d", c.FrontierCurvePoints)
	}
	if c.SolverMaxIterations <= 0 {
		return fmt.Errorf("solver_max_iterations must be positive, got %d", c.SolverMaxIterations)
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if s := strings.ToUpper(strings.TrimSpace(part)); s != "" {
			out = append(out, s)
		}
	}
	return out
}

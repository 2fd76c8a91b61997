// Package di provides dependency injection wiring and initialization.
package di

import (
	"fmt"
	"path/filepath"

	"github.com/aristath/frontier/internal/config"
	"github.com/aristath/frontier/internal/database"
	"github.com/rs/zerolog"
)

// InitializeDatabases opens both databases and applies their schemas
func InitializeDatabases(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	container := &Container{}

	// frontier.db - optimization run log
	frontierDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "frontier.db"),
		Profile: database.ProfileStandard,
		Name:    "frontier",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize frontier database: %w", err)
	}
	container.FrontierDB = frontierDB

	// cache.db - ephemeral price series
	cacheDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "cache.db"),
		Profile: database.ProfileCache,
		Name:    "cache",
	})
	if err != nil {
		frontierDB.Close()
		return nil, fmt.Errorf("failed to initialize cache database: %w", err)
	}
	container.CacheDB = cacheDB

	for _, db := range []*database.DB{frontierDB, cacheDB} {
		if err := db.Migrate(); err != nil {
			container.Close()
			return nil, fmt.Errorf("failed to migrate %s database: %w", db.Name(), err)
		}
	}

	log.Info().
		Str("data_dir", cfg.DataDir).
		Msg("Databases initialized")

	return container, nil
}

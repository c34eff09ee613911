package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"tw-tick-api/src/config"
	datasource "tw-tick-api/src/data_source"
	"tw-tick-api/src/data_source/cache"
	"tw-tick-api/src/data_source/tickapi"
	"tw-tick-api/src/interfaces"
	"tw-tick-api/src/logger"
	"tw-tick-api/src/models"
	"tw-tick-api/src/network"
	"tw-tick-api/src/storage"
	"tw-tick-api/src/utils"

	"github.com/redis/go-redis/v9"
)

// -----------------------------------------------------------------------------

// components holds what main needs to close on the way out.
type components struct {
	manager *datasource.MultiSourceManager
	closers []io.Closer
}

// -----------------------------------------------------------------------------

func (c *components) Close(appLogger *logger.Logger) {
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i].Close(); err != nil {
			appLogger.Warning("Close failed: %v", err)
		}
	}
}

// -----------------------------------------------------------------------------

// setupStore opens the SQL tick store of the given kind and migrates it.
func setupStore(cfg *models.MConfig, kind string) (interfaces.ITickStore, error) {
	var store interfaces.ITickStore
	var err error

	switch kind {
	case config.SourcePostgres:
		store, err = storage.NewPostgresDB(cfg, logger.NewLogger(cfg, "PostgresDB"))
	default:
		store, err = storage.NewAsyncSQLiteDB(cfg, logger.NewLogger(cfg, "SQLiteDB"))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to init %s store: %w", kind, err)
	}
	if err := store.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to migrate %s store: %w", kind, err)
	}
	return store, nil
}

// -----------------------------------------------------------------------------

// setupNetwork initializes the network manager
func setupNetwork(cfg *models.MConfig) interfaces.INetworkManager {
	return network.NewAsyncNetworkManager(cfg, logger.NewLogger(cfg, "NetworkManager"))
}

// -----------------------------------------------------------------------------

// setupDataSources builds the sources in configured priority order, each
// behind the Redis cache when enabled, and chains them in a manager.
func setupDataSources(cfg *models.MConfig, cal *utils.TradingCalendar, appLogger *logger.Logger) (*components, error) {
	comp := &components{
		manager: datasource.NewMultiSourceManager(nil, cal, logger.NewLogger(cfg, "MultiSourceManager")),
	}

	var networkManager interfaces.INetworkManager
	var redisClient *redis.Client
	if cfg.Cache.Enabled {
		redisClient = cache.NewRedisClient(&cfg.Cache)
		comp.closers = append(comp.closers, redisClient)
	}

	for _, name := range cfg.DataSource.Sources {
		var src interfaces.ITickSource

		switch name {
		case config.SourceTickAPI:
			if networkManager == nil {
				networkManager = setupNetwork(cfg)
			}
			src = tickapi.NewTickAPISource(&cfg.TickAPI, networkManager, logger.NewLogger(cfg, "TickAPISource"))
		case config.SourceSQLite, config.SourcePostgres:
			store, err := setupStore(cfg, name)
			if err != nil {
				comp.Close(appLogger)
				return nil, err
			}
			comp.closers = append(comp.closers, store)
			src = store
		default:
			comp.Close(appLogger)
			return nil, fmt.Errorf("unknown data source '%s'", name)
		}

		if redisClient != nil {
			src = cache.NewCachedSource(src, redisClient,
				time.Duration(cfg.Cache.TTLSeconds)*time.Second, logger.NewLogger(cfg, "RedisCache"))
		}

		if err := comp.manager.AddSource(src); err != nil {
			comp.Close(appLogger)
			return nil, err
		}
	}

	if len(comp.manager.GetAllSources()) == 0 {
		return nil, fmt.Errorf("no valid data sources")
	}

	appLogger.Info("MultiSourceManager ready with %d sources.", len(comp.manager.GetAllSources()))
	return comp, nil
}

// -----------------------------------------------------------------------------

// seedFromCSV loads a CSV export into the configured SQL store.
func seedFromCSV(ctx context.Context, cfg *models.MConfig, path string, appLogger *logger.Logger) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open seed file: %w", err)
	}
	defer f.Close()

	store, err := setupStore(cfg, cfg.Storage.DBType)
	if err != nil {
		return err
	}
	defer store.Close()

	n, err := store.ImportCSV(ctx, f)
	if err != nil {
		return fmt.Errorf("failed to import %s: %w", path, err)
	}
	appLogger.Info("Seeded %d tick rows from %s into %s", n, path, store.Name())
	return nil
}

// Package store builds the configured model store.
package store

import (
	"fmt"
	"log/slog"

	"github.com/HatiCode/kedastral-sentry/cmd/sentry/config"
	"github.com/HatiCode/kedastral-sentry/pkg/storage"
)

// New creates the store named by cfg.Storage. Callers should close the
// result if it implements io.Closer.
func New(cfg *config.Config, logger *slog.Logger) (storage.Store, error) {
	switch cfg.Storage {
	case config.StoreFile:
		s, err := storage.NewFileStore(cfg.StoragePath)
		if err != nil {
			return nil, err
		}
		logger.Info("using file model store", "path", s.Path(cfg.Workload))
		return s, nil

	case config.StoreRedis:
		s, err := storage.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisTTL)
		if err != nil {
			return nil, err
		}
		logger.Info("using redis model store", "addr", cfg.RedisAddr, "db", cfg.RedisDB, "ttl", cfg.RedisTTL)
		return s, nil

	case config.StoreMemory:
		logger.Warn("using in-memory model store, fitted models will not survive restarts")
		return storage.NewMemoryStore(), nil

	default:
		return nil, fmt.Errorf("invalid storage type %q", cfg.Storage)
	}
}

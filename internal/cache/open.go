package cache

import (
	"fmt"
	"log/slog"

	"github.com/rickgao/pricesync/internal/config"
)

// NewBackend builds the backend selected by cfg.Driver.
func NewBackend(cfg config.StorageConfig, logger *slog.Logger) (Backend, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		return NewPostgresBackend(cfg.Postgres, logger), nil
	case config.DriverRedis:
		return NewRedisBackend(cfg.Redis), nil
	case config.DriverMemory:
		return NewMemoryBackend(), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

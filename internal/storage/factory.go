package storage

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/crosspost-io/crosspost/internal/common/config"
)

// NewStore creates a secure store based on configuration
func NewStore(logger *zap.Logger, cfg *config.StorageConfig) (Store, error) {
	logger.Info("Initializing secure storage", zap.String("type", cfg.Type))
	switch cfg.Type {
	case "disk":
		return NewDiskStore(logger, cfg.Dir)
	case "memory":
		return NewMemoryStore(), nil
	case "redis":
		return NewRedisStore(cfg.Redis.Addr, cfg.Redis.Username, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.Prefix)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}

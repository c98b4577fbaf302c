package cache

import (
	"fmt"

	"github.com/synchub/backend/internal/domain/shared"
	"github.com/synchub/backend/internal/infrastructure/config"
	"go.uber.org/zap"
)

// NewDeliveryGuard returns a Redis-backed guard when Redis is enabled and
// reachable. Otherwise it falls back to the in-memory guard, unless
// requireRedis is set.
func NewDeliveryGuard(cfg config.RedisConfig, requireRedis bool, logger *zap.Logger) (shared.IdempotencyStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if !cfg.Enabled {
		if requireRedis {
			return nil, fmt.Errorf("redis is disabled but required for webhook delivery dedup")
		}
		logger.Info("using in-memory webhook delivery guard")
		return NewInMemoryDeliveryGuard(), nil
	}

	guard, err := NewRedisDeliveryGuard(RedisConfig{
		Host:     cfg.Host,
		Port:     cfg.Port,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err == nil {
		logger.Info("using Redis webhook delivery guard")
		return guard, nil
	}
	if requireRedis {
		return nil, fmt.Errorf("redis required for webhook delivery dedup but unavailable: %w", err)
	}

	logger.Warn("Redis unavailable, falling back to in-memory webhook delivery guard. "+
		"Several instances may redeliver the same retry.",
		zap.Error(err))
	return NewInMemoryDeliveryGuard(), nil
}

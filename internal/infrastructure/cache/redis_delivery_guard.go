package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/synchub/backend/internal/domain/shared"
)

const defaultDeliveryKeyPrefix = "webhook:delivery:"

// RedisDeliveryGuard records delivered webhook attempts in Redis so that
// every instance polling the retry table sees the same state.
type RedisDeliveryGuard struct {
	client    *redis.Client
	keyPrefix string
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// NewRedisDeliveryGuard connects to Redis and verifies the connection
func NewRedisDeliveryGuard(cfg RedisConfig) (*RedisDeliveryGuard, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisDeliveryGuard{client: client, keyPrefix: defaultDeliveryKeyPrefix}, nil
}

// MarkProcessed claims key for ttl with SETNX. It reports false when the
// key was already claimed.
func (g *RedisDeliveryGuard) MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := g.client.SetNX(ctx, g.keyPrefix+key, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim delivery %s: %w", key, err)
	}
	return ok, nil
}

// IsProcessed reports whether key is currently claimed
func (g *RedisDeliveryGuard) IsProcessed(ctx context.Context, key string) (bool, error) {
	n, err := g.client.Exists(ctx, g.keyPrefix+key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check delivery %s: %w", key, err)
	}
	return n > 0, nil
}

// Close closes the Redis client
func (g *RedisDeliveryGuard) Close() error {
	return g.client.Close()
}

var _ shared.IdempotencyStore = (*RedisDeliveryGuard)(nil)

// Package cache provides a Redis-backed prediction cache, used when
// multiple API instances share results.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"heater-fleet/pkg/prediction"
)

const keyPrefix = "prediction:"

// RedisCache implements prediction.Cache with a TTL per entry. Errors are
// logged and treated as misses; the cache never fails a prediction.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

// NewRedisCache connects to Redis and verifies connectivity.
func NewRedisCache(ctx context.Context, addr, password string, db int, ttl time.Duration, logger zerolog.Logger) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &RedisCache{client: client, ttl: ttl, logger: logger}, nil
}

func (c *RedisCache) Get(ctx context.Context, key string) (*prediction.PredictionResult, bool) {
	data, err := c.client.Get(ctx, keyPrefix+key).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("redis get failed, treating as miss")
		return nil, false
	}
	var result prediction.PredictionResult
	if err := json.Unmarshal(data, &result); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("corrupt cached prediction, treating as miss")
		return nil, false
	}
	return &result, true
}

func (c *RedisCache) Set(ctx context.Context, key string, result *prediction.PredictionResult) {
	data, err := json.Marshal(result)
	if err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("failed to encode prediction for cache")
		return
	}
	if err := c.client.Set(ctx, keyPrefix+key, data, c.ttl).Err(); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("redis set failed")
	}
}

// Close releases the underlying connection pool.
func (c *RedisCache) Close() error { return c.client.Close() }

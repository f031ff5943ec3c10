package cache

import (
	"context"
	"errors"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"qualitygrid/internal/metrics"
)

const defaultKeyPrefix = "qualitygrid:cache:"

// Redis shares cached lookups across runs and processes. Redis applies the
// TTL with EX, so expiry needs no timestamp bookkeeping here. Backend errors
// degrade to a miss.
type Redis struct {
	client  *redis.Client
	prefix  string
	ttls    TTLs
	logger  *zap.Logger
	metrics *metrics.Metrics
}

func NewRedis(client *redis.Client, ttls TTLs, logger *zap.Logger, m *metrics.Metrics) *Redis {
	return &Redis{client: client, prefix: defaultKeyPrefix, ttls: ttls, logger: logger, metrics: m}
}

func (c *Redis) key(category, key string) string {
	return c.prefix + cacheKey(category, key)
}

func (c *Redis) Get(ctx context.Context, category, key string) (string, bool) {
	if ttl, ok := c.ttls[category]; !ok || ttl <= 0 {
		c.metrics.CacheLookup(category, false)
		return "", false
	}
	val, err := c.client.Get(ctx, c.key(category, key)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("cache read failed, treating as miss",
				zap.String("category", category),
				zap.Error(err))
		}
		c.metrics.CacheLookup(category, false)
		return "", false
	}
	c.metrics.CacheLookup(category, true)
	return val, true
}

func (c *Redis) Set(ctx context.Context, category, key, value string) {
	ttl, ok := c.ttls[category]
	if !ok || ttl <= 0 {
		return
	}
	if err := c.client.Set(ctx, c.key(category, key), value, ttl).Err(); err != nil {
		c.logger.Warn("cache write failed",
			zap.String("category", category),
			zap.Error(err))
	}
}

package signing

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const redisKeyPrefix = "quill:sig:"

// RedisCache shares signing results across processes. Any Redis or decode
// failure degrades to a miss; the signing path never depends on Redis being
// healthy.
type RedisCache struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisCache wraps an existing Redis client.
func NewRedisCache(client *redis.Client, logger *zap.Logger) *RedisCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisCache{client: client, logger: logger}
}

// Get fetches and decodes a cached result.
func (c *RedisCache) Get(ctx context.Context, fingerprint string) (Result, bool) {
	raw, err := c.client.Get(ctx, redisKeyPrefix+fingerprint).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("redis cache get failed", zap.Error(err))
		}
		return Result{}, false
	}
	var res Result
	if err := json.Unmarshal(raw, &res); err != nil {
		// Corrupted entry: drop it and regenerate.
		c.client.Del(ctx, redisKeyPrefix+fingerprint)
		c.logger.Warn("redis cache entry corrupted", zap.Error(err))
		return Result{}, false
	}
	return res, true
}

// Put stores the result under the scheme's TTL.
func (c *RedisCache) Put(ctx context.Context, fingerprint string, res Result, ttl time.Duration) {
	raw, err := json.Marshal(res)
	if err != nil {
		c.logger.Warn("redis cache encode failed", zap.Error(err))
		return
	}
	if err := c.client.Set(ctx, redisKeyPrefix+fingerprint, raw, ttl).Err(); err != nil {
		c.logger.Warn("redis cache put failed", zap.Error(err))
	}
}

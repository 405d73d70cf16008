package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/makkenzo/apiguard/internal/domain/apikey"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// KeyCache is the short-TTL lookup cache in front of the key store.
// Mutation paths delete the entry, so a revoke or policy update is observed
// immediately by the instance that performed it and within the TTL by every
// other instance. Cache failures degrade to direct store lookups.
type KeyCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewKeyCache(client *redis.Client, ttl time.Duration, logger *zap.Logger) *KeyCache {
	return &KeyCache{
		client: client,
		ttl:    ttl,
		logger: logger.Named("KeyCache"),
	}
}

func cacheKey(keyHash string) string {
	return "apikey:" + keyHash
}

func (c *KeyCache) Get(ctx context.Context, keyHash string) (*apikey.APIKey, bool) {
	data, err := c.client.Get(ctx, cacheKey(keyHash)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("Key cache read failed, falling back to store", zap.Error(err))
		}
		return nil, false
	}

	var key apikey.APIKey
	if err := json.Unmarshal(data, &key); err != nil {
		c.logger.Warn("Key cache entry corrupted, dropping it", zap.Error(err))
		c.Invalidate(ctx, keyHash)
		return nil, false
	}
	return &key, true
}

func (c *KeyCache) Set(ctx context.Context, key *apikey.APIKey) {
	data, err := json.Marshal(key)
	if err != nil {
		c.logger.Warn("Failed to marshal api key for cache", zap.Error(err))
		return
	}
	if err := c.client.Set(ctx, cacheKey(key.KeyHash), data, c.ttl).Err(); err != nil {
		c.logger.Warn("Key cache write failed", zap.Error(err))
	}
}

func (c *KeyCache) Invalidate(ctx context.Context, keyHash string) {
	if err := c.client.Del(ctx, cacheKey(keyHash)).Err(); err != nil {
		c.logger.Warn("Key cache invalidation failed", zap.Error(err))
	}
}

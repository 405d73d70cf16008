package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/makkenzo/apiguard/internal/domain/ratelimit"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RateLimitStore keeps fixed-window counters in Redis. Redis serializes
// INCR, so increment-and-read is atomic across instances; the counter key
// carries its window start and expires shortly after the window closes.
type RateLimitStore struct {
	client *redis.Client
	logger *zap.Logger
}

func NewRateLimitStore(client *redis.Client, logger *zap.Logger) *RateLimitStore {
	return &RateLimitStore{
		client: client,
		logger: logger.Named("RateLimitStore"),
	}
}

var _ ratelimit.Store = (*RateLimitStore)(nil)

func (s *RateLimitStore) Incr(ctx context.Context, key string, window time.Duration, now time.Time) (int64, time.Time, error) {
	windowStart := now.UTC().Truncate(window)
	resetAt := windowStart.Add(window)
	counterKey := fmt.Sprintf("ratelimit:%s:%d", key, windowStart.Unix())

	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, counterKey)
	// Expire a minute past the boundary so in-flight reads at the edge
	// still see the counter.
	pipe.ExpireNX(ctx, counterKey, time.Until(resetAt)+time.Minute)

	if _, err := pipe.Exec(ctx); err != nil {
		s.logger.Error("Rate limit counter increment failed", zap.String("key", counterKey), zap.Error(err))
		return 0, time.Time{}, fmt.Errorf("redis error incrementing rate limit counter: %w", err)
	}

	return incr.Val(), resetAt, nil
}

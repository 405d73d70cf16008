package service

import (
	"context"
	"fmt"
	"time"

	"github.com/makkenzo/apiguard/internal/domain/apikey"
	"github.com/makkenzo/apiguard/internal/domain/ratelimit"
	"github.com/makkenzo/apiguard/internal/ierr"
	"github.com/makkenzo/apiguard/internal/metrics"
	"go.uber.org/zap"
)

// RateLimitService enforces the tiered short-horizon window ceiling,
// separate from monthly quota accounting.
type RateLimitService struct {
	store  ratelimit.Store
	logger *zap.Logger
}

func NewRateLimitService(store ratelimit.Store, logger *zap.Logger) *RateLimitService {
	return &RateLimitService{
		store:  store,
		logger: logger.Named("RateLimitService"),
	}
}

// Check increments the window counter for the key and compares it against
// the tier ceiling. The decision carries limit/remaining/reset metadata on
// both outcomes. Store failures fail closed at the gate.
func (s *RateLimitService) Check(ctx context.Context, keyHash string, tier apikey.Tier, now time.Time) (ratelimit.Decision, error) {
	limits := tier.Limits()

	if limits.Unlimited {
		return ratelimit.Decision{
			Allowed:   true,
			Unlimited: true,
			ResetAt:   now.UTC().Truncate(limits.Window).Add(limits.Window),
		}, nil
	}

	count, resetAt, err := s.store.Incr(ctx, keyHash, limits.Window, now)
	if err != nil {
		return ratelimit.Decision{}, fmt.Errorf("%w: rate limit store: %v", ierr.ErrStoreUnavailable, err)
	}

	decision := ratelimit.Decision{
		Allowed:   count <= limits.Requests,
		Limit:     limits.Requests,
		Remaining: limits.Requests - count,
		ResetAt:   resetAt,
	}
	if decision.Remaining < 0 {
		decision.Remaining = 0
	}

	if !decision.Allowed {
		metrics.RateLimitDenials.WithLabelValues(string(tier)).Inc()
		s.logger.Debug("Rate limit exceeded",
			zap.String("tier", string(tier)),
			zap.Int64("count", count),
			zap.Int64("limit", limits.Requests),
			zap.Time("reset_at", resetAt),
		)
	}

	return decision, nil
}

package middleware

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/makkenzo/apiguard/internal/domain/apikey"
	"github.com/makkenzo/apiguard/internal/domain/ratelimit"
	"github.com/makkenzo/apiguard/internal/handler/dto"
	"github.com/makkenzo/apiguard/internal/ierr"
	"github.com/makkenzo/apiguard/internal/metrics"
	"github.com/makkenzo/apiguard/internal/service"
	"github.com/makkenzo/apiguard/internal/util"
)

const (
	apiKeyHeader = "X-API-Key"

	msgKeyRequired   = "API key required"
	msgInvalidKey    = "Invalid API key"
	msgAccessDenied  = "Access denied"
	msgRateLimited   = "Rate limit exceeded"
	msgQuotaExceeded = "Monthly quota exceeded"
	msgInternalError = "Internal server error"
)

// KeyCache is the read side of the short-TTL lookup cache in front of the
// key store.
type KeyCache interface {
	Get(ctx context.Context, keyHash string) (*apikey.APIKey, bool)
	Set(ctx context.Context, key *apikey.APIKey)
}

// Gate is the per-request admission pipeline: credential format and hash,
// store lookup, lifecycle, IP/domain restrictions, rate limit, monthly
// quota. Checks run cheapest and most decisive first; every denial is
// terminal with a generic client message and a specific internal reason.
type Gate struct {
	keys         apikey.Repository
	cache        KeyCache
	restrictions *service.RestrictionValidator
	limiter      *service.RateLimitService
	quota        *service.QuotaAccountant
	storeTimeout time.Duration
	logger       *zap.Logger
}

func NewGate(
	keys apikey.Repository,
	cache KeyCache,
	restrictions *service.RestrictionValidator,
	limiter *service.RateLimitService,
	quota *service.QuotaAccountant,
	storeTimeout time.Duration,
	logger *zap.Logger,
) *Gate {
	if storeTimeout <= 0 {
		storeTimeout = 3 * time.Second
	}
	return &Gate{
		keys:         keys,
		cache:        cache,
		restrictions: restrictions,
		limiter:      limiter,
		quota:        quota,
		storeTimeout: storeTimeout,
		logger:       logger.Named("RequestGate"),
	}
}

func (g *Gate) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		now := time.Now().UTC()

		rawKey := c.GetHeader(apiKeyHeader)
		if rawKey == "" {
			g.deny(c, http.StatusUnauthorized, msgKeyRequired, "missing", now)
			return
		}

		if _, err := util.ValidateKeyFormat(rawKey); err != nil {
			g.logger.Warn("Malformed API key presented", zap.Error(err))
			g.deny(c, http.StatusUnauthorized, msgInvalidKey, "malformed", now)
			return
		}

		keyHash := util.HashAPIKey(rawKey)
		logHash := util.HashPrefix(keyHash)

		key, err := g.lookup(c.Request.Context(), keyHash)
		if err != nil {
			if errors.Is(err, apikey.ErrAPIKeyNotFound) {
				g.logger.Warn("Unknown API key", zap.String("hash_prefix", logHash))
				g.deny(c, http.StatusUnauthorized, msgInvalidKey, "unknown", now)
				return
			}
			// Store failure or timeout: fail closed, never as a 401.
			g.logger.Error("Key store lookup failed", zap.String("hash_prefix", logHash), zap.Error(err))
			g.deny(c, http.StatusInternalServerError, msgInternalError, "store_error", now)
			return
		}

		if status := key.Lifecycle(now); status != apikey.LifecycleOK {
			g.logger.Warn("API key failed lifecycle check",
				zap.String("key_id", key.ID.String()),
				zap.String("key_name", key.Name),
				zap.String("reason", string(status)),
			)
			g.deny(c, http.StatusUnauthorized, msgInvalidKey, lifecycleOutcome(status), now)
			return
		}

		if err := g.restrictions.ValidateIP(key, c.ClientIP()); err != nil {
			g.deny(c, http.StatusForbidden, msgAccessDenied, "ip_denied", now)
			return
		}
		if err := g.restrictions.ValidateDomain(key, c.GetHeader("Origin"), c.GetHeader("Referer")); err != nil {
			g.deny(c, http.StatusForbidden, msgAccessDenied, "domain_denied", now)
			return
		}

		decision, err := g.limiter.Check(c.Request.Context(), keyHash, key.Tier, now)
		if err != nil {
			g.logger.Error("Rate limiter unavailable", zap.String("key_id", key.ID.String()), zap.Error(err))
			g.deny(c, http.StatusInternalServerError, msgInternalError, "store_error", now)
			return
		}
		setRateLimitHeaders(c, decision)
		if !decision.Allowed {
			retryAfter := int(time.Until(decision.ResetAt).Seconds())
			if retryAfter > 0 {
				c.Header("Retry-After", strconv.Itoa(retryAfter))
			}
			g.deny(c, http.StatusTooManyRequests, msgRateLimited, "rate_limited", now)
			return
		}

		quotaCtx, cancelQuota := context.WithTimeout(c.Request.Context(), g.storeTimeout)
		rec, err := g.quota.CheckAndRecord(quotaCtx, key, now)
		cancelQuota()
		if err != nil {
			if errors.Is(err, ierr.ErrQuotaExceeded) {
				g.deny(c, http.StatusTooManyRequests, msgQuotaExceeded, "quota_exceeded", now)
				return
			}
			g.logger.Error("Quota accounting failed", zap.String("key_id", key.ID.String()), zap.Error(err))
			g.deny(c, http.StatusInternalServerError, msgInternalError, "store_error", now)
			return
		}

		setAuthContext(c, &AuthContext{
			KeyID:       key.ID,
			PrincipalID: key.PrincipalID,
			Scopes:      key.Scopes,
			Method:      AuthMethodAPIKey,
		})
		metrics.GateDecisions.WithLabelValues("admitted").Inc()

		g.touchLastUsed(key.ID)

		c.Next()

		success := c.Writer.Status() < http.StatusBadRequest
		g.recordOutcome(key.ID, rec.Month, success)
	}
}

// lookup consults the cache first and falls back to the store under a
// bounded timeout. A timeout surfaces as a store error, not a pass.
func (g *Gate) lookup(ctx context.Context, keyHash string) (*apikey.APIKey, error) {
	if g.cache != nil {
		if key, ok := g.cache.Get(ctx, keyHash); ok {
			return key, nil
		}
	}

	storeCtx, cancel := context.WithTimeout(ctx, g.storeTimeout)
	defer cancel()

	key, err := g.keys.FindByHash(storeCtx, keyHash)
	if err != nil {
		return nil, err
	}
	if g.cache != nil {
		g.cache.Set(ctx, key)
	}
	return key, nil
}

func (g *Gate) deny(c *gin.Context, status int, message, outcome string, now time.Time) {
	metrics.GateDecisions.WithLabelValues(outcome).Inc()
	c.AbortWithStatusJSON(status, dto.NewGateError(message, status, now))
}

// touchLastUsed is fire-and-forget; the request path never blocks on it.
func (g *Gate) touchLastUsed(id uuid.UUID) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := g.keys.UpdateLastUsed(ctx, id, time.Now().UTC()); err != nil {
			g.logger.Error("Failed to update API key last used time asynchronously",
				zap.String("key_id", id.String()), zap.Error(err))
		}
	}()
}

func (g *Gate) recordOutcome(id uuid.UUID, month string, success bool) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := g.quota.RecordOutcome(ctx, id, month, success); err != nil {
			g.logger.Error("Failed to record call outcome asynchronously",
				zap.String("key_id", id.String()), zap.Error(err))
		}
	}()
}

func setRateLimitHeaders(c *gin.Context, d ratelimit.Decision) {
	if d.Unlimited {
		c.Header("X-RateLimit-Limit", "unlimited")
		c.Header("X-RateLimit-Remaining", "unlimited")
	} else {
		c.Header("X-RateLimit-Limit", strconv.FormatInt(d.Limit, 10))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(d.Remaining, 10))
	}
	c.Header("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))
}

func lifecycleOutcome(status apikey.LifecycleStatus) string {
	switch status {
	case apikey.LifecycleInactive:
		return "inactive"
	case apikey.LifecycleRevoked:
		return "revoked"
	case apikey.LifecycleExpired:
		return "expired"
	default:
		return "lifecycle"
	}
}

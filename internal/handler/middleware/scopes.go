package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/makkenzo/apiguard/internal/domain/apikey"
	"github.com/makkenzo/apiguard/internal/handler/dto"
	"github.com/makkenzo/apiguard/internal/metrics"
	"go.uber.org/zap"
)

// RequireScopes authorizes the authenticated context against an
// operation's required scope set. requireAll false means ANY semantics. An
// admin JWT session bypasses scope checks entirely; that is route-policy
// here, not part of the scope algebra.
func RequireScopes(required []apikey.Scope, requireAll bool, logger *zap.Logger) gin.HandlerFunc {
	log := logger.Named("RequireScopes")
	return func(c *gin.Context) {
		ac := GetAuthContext(c)
		if ac == nil {
			log.Warn("Scope check reached without authentication context", zap.String("path", c.FullPath()))
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				dto.NewGateError("Authentication required", http.StatusUnauthorized, time.Now()))
			return
		}

		if ac.Method == AuthMethodJWT && ac.Role == "admin" {
			c.Next()
			return
		}

		if !ac.Scopes.Satisfies(required, requireAll) {
			missing := ac.Scopes.Missing(required)
			log.Warn("Insufficient scope",
				zap.String("key_id", ac.KeyID.String()),
				zap.Any("missing_scopes", missing),
				zap.Bool("require_all", requireAll),
				zap.String("path", c.FullPath()),
			)
			metrics.GateDecisions.WithLabelValues("scope_denied").Inc()
			c.AbortWithStatusJSON(http.StatusForbidden,
				dto.NewGateError("Access denied", http.StatusForbidden, time.Now()))
			return
		}

		c.Next()
	}
}

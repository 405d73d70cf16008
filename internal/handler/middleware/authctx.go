package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/makkenzo/apiguard/internal/domain/apikey"
)

type AuthMethod string

const (
	AuthMethodAPIKey AuthMethod = "api_key"
	AuthMethodJWT    AuthMethod = "jwt"
)

// AuthContext is the immutable request-scoped authentication value set by
// the gate or the JWT middleware and read by everything downstream. No
// handler reads ambient auth state.
type AuthContext struct {
	KeyID       uuid.UUID
	PrincipalID uuid.UUID
	Scopes      apikey.ScopeSet
	Role        string
	Method      AuthMethod
}

const authContextKey = "authContext"

func setAuthContext(c *gin.Context, ac *AuthContext) {
	c.Set(authContextKey, ac)
}

func GetAuthContext(c *gin.Context) *AuthContext {
	value, exists := c.Get(authContextKey)
	if !exists {
		return nil
	}
	ac, ok := value.(*AuthContext)
	if !ok {
		return nil
	}
	return ac
}

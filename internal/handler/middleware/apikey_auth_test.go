package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/makkenzo/apiguard/internal/domain/apikey"
	"github.com/makkenzo/apiguard/internal/domain/principal"
	"github.com/makkenzo/apiguard/internal/domain/usage"
	"github.com/makkenzo/apiguard/internal/handler/dto"
	"github.com/makkenzo/apiguard/internal/service"
	"github.com/makkenzo/apiguard/internal/storage/memstorage"
	"github.com/makkenzo/apiguard/internal/util"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type gateFixture struct {
	keys       *memstorage.APIKeyRepository
	principals *memstorage.PrincipalRepository
	usage      *memstorage.UsageRepository
	gate       *Gate
	router     *gin.Engine

	rawKey string
	key    *apikey.APIKey

	mu       sync.Mutex
	lastAuth *AuthContext
}

// newGateFixture wires the gate against in-memory backends with one active
// BASIC key owned by a FREE-plan principal. mutate adjusts the key before it
// is stored.
func newGateFixture(t *testing.T, mutate func(*apikey.APIKey)) *gateFixture {
	t.Helper()

	f := &gateFixture{
		keys:       memstorage.NewAPIKeyRepository(),
		principals: memstorage.NewPrincipalRepository(),
		usage:      memstorage.NewUsageRepository(),
	}

	ownerID, err := f.principals.Create(context.Background(), &principal.Principal{
		Name: "acme", Email: "ops@acme.test", Plan: principal.PlanFree, IsActive: true,
	})
	require.NoError(t, err)

	rawKey, prefix, keyHash, err := util.GenerateAPIKey()
	require.NoError(t, err)
	f.rawKey = rawKey

	f.key = &apikey.APIKey{
		ID:          uuid.New(),
		KeyHash:     keyHash,
		Prefix:      prefix,
		Name:        "test key",
		PrincipalID: ownerID,
		IsActive:    true,
		Tier:        apikey.TierBasic,
		Scopes:      apikey.ScopeSet{apikey.ScopeReadBrands},
	}
	if mutate != nil {
		mutate(f.key)
	}
	_, err = f.keys.Create(context.Background(), f.key)
	require.NoError(t, err)

	logger := zap.NewNop()
	f.gate = NewGate(
		f.keys,
		nil,
		service.NewRestrictionValidator(logger),
		service.NewRateLimitService(memstorage.NewRateLimitStore(), logger),
		service.NewQuotaAccountant(f.usage, f.principals, 1.1, logger),
		time.Second,
		logger,
	)

	f.router = gin.New()
	f.router.Use(f.gate.Middleware())
	f.router.GET("/ping", func(c *gin.Context) {
		f.mu.Lock()
		f.lastAuth = GetAuthContext(c)
		f.mu.Unlock()
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})
	return f
}

func (f *gateFixture) request(apiKey string, tweak func(*http.Request)) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.RemoteAddr = "192.0.2.10:51000"
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}
	if tweak != nil {
		tweak(req)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *gateFixture) authContext() *AuthContext {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastAuth
}

func decodeGateError(t *testing.T, rec *httptest.ResponseRecorder) dto.GateErrorResponse {
	t.Helper()
	var body dto.GateErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestGateMissingKey(t *testing.T) {
	f := newGateFixture(t, nil)

	rec := f.request("", nil)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	body := decodeGateError(t, rec)
	assert.Equal(t, "API key required", body.Error)
	assert.Equal(t, http.StatusUnauthorized, body.Status)
	_, err := time.Parse(time.RFC3339, body.Timestamp)
	assert.NoError(t, err)
}

func TestGateMalformedKey(t *testing.T) {
	f := newGateFixture(t, nil)

	for _, raw := range []string{"not-a-key", "ag_short_x", "sk_abcdefgh_0123456789abcdef"} {
		rec := f.request(raw, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, raw)
		assert.Equal(t, "Invalid API key", decodeGateError(t, rec).Error, raw)
	}
}

func TestGateUnknownKey(t *testing.T) {
	f := newGateFixture(t, nil)

	// Well formed but never issued.
	stranger, _, _, err := util.GenerateAPIKey()
	require.NoError(t, err)

	rec := f.request(stranger, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Invalid API key", decodeGateError(t, rec).Error)
}

func TestGateLifecycleDenials(t *testing.T) {
	past := time.Now().UTC().Add(-time.Hour)

	cases := []struct {
		name   string
		mutate func(*apikey.APIKey)
	}{
		{"inactive", func(k *apikey.APIKey) { k.IsActive = false }},
		{"revoked", func(k *apikey.APIKey) { k.RevokedAt = &past }},
		{"expired", func(k *apikey.APIKey) { k.ExpiresAt = &past }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newGateFixture(t, tc.mutate)
			rec := f.request(f.rawKey, nil)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, "Invalid API key", decodeGateError(t, rec).Error)
		})
	}
}

func TestGateIPRestriction(t *testing.T) {
	f := newGateFixture(t, func(k *apikey.APIKey) {
		k.AllowedIPs = []string{"203.0.113.9"}
	})

	denied := f.request(f.rawKey, nil)
	assert.Equal(t, http.StatusForbidden, denied.Code)
	assert.Equal(t, "Access denied", decodeGateError(t, denied).Error)

	allowed := f.request(f.rawKey, func(r *http.Request) {
		r.RemoteAddr = "203.0.113.9:51000"
	})
	assert.Equal(t, http.StatusOK, allowed.Code)
}

func TestGateDomainRestriction(t *testing.T) {
	f := newGateFixture(t, func(k *apikey.APIKey) {
		k.AllowedDomains = []string{"example.com"}
	})

	denied := f.request(f.rawKey, func(r *http.Request) {
		r.Header.Set("Origin", "https://notexample.com")
	})
	assert.Equal(t, http.StatusForbidden, denied.Code)

	allowed := f.request(f.rawKey, func(r *http.Request) {
		r.Header.Set("Origin", "https://api.example.com")
	})
	assert.Equal(t, http.StatusOK, allowed.Code)

	// No Origin or Referer at all reads as server-to-server traffic.
	serverToServer := f.request(f.rawKey, nil)
	assert.Equal(t, http.StatusOK, serverToServer.Code)
}

func TestGateRateLimitDenial(t *testing.T) {
	f := newGateFixture(t, nil)

	var rec *httptest.ResponseRecorder
	for i := 0; i < 101; i++ {
		rec = f.request(f.rawKey, nil)
	}

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "Rate limit exceeded", decodeGateError(t, rec).Error)
	assert.Equal(t, "100", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, rec.Header().Get("X-RateLimit-Reset"))
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestGateQuotaDenial(t *testing.T) {
	f := newGateFixture(t, nil)
	now := time.Now().UTC()
	f.usage.Seed(&usage.MonthlyUsage{
		APIKeyID:      f.key.ID,
		PrincipalID:   f.key.PrincipalID,
		Month:         usage.MonthOf(now),
		TotalCalls:    110,
		QuotaLimit:    100,
		GraceLimit:    110,
		LastResetDate: usage.FirstOfMonth(now),
	})

	rec := f.request(f.rawKey, nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "Monthly quota exceeded", decodeGateError(t, rec).Error)
	// Rate-limit headers were already written for the admitted window slot.
	assert.Equal(t, "100", rec.Header().Get("X-RateLimit-Limit"))
}

type failingKeyRepo struct {
	apikey.Repository
}

func (failingKeyRepo) FindByHash(ctx context.Context, keyHash string) (*apikey.APIKey, error) {
	return nil, errors.New("connection refused")
}

func TestGateStoreFailureFailsClosed(t *testing.T) {
	f := newGateFixture(t, nil)
	logger := zap.NewNop()
	gate := NewGate(
		failingKeyRepo{},
		nil,
		service.NewRestrictionValidator(logger),
		service.NewRateLimitService(memstorage.NewRateLimitStore(), logger),
		service.NewQuotaAccountant(f.usage, f.principals, 1.1, logger),
		time.Second,
		logger,
	)
	router := gin.New()
	router.Use(gate.Middleware())
	router.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("X-API-Key", f.rawKey)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Internal server error", decodeGateError(t, rec).Error)
}

func TestGateAdmittedRequest(t *testing.T) {
	f := newGateFixture(t, nil)

	rec := f.request(f.rawKey, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, "100", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "99", rec.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, rec.Header().Get("X-RateLimit-Reset"))

	ac := f.authContext()
	require.NotNil(t, ac)
	assert.Equal(t, f.key.ID, ac.KeyID)
	assert.Equal(t, f.key.PrincipalID, ac.PrincipalID)
	assert.Equal(t, AuthMethodAPIKey, ac.Method)
	assert.True(t, ac.Scopes.Has(apikey.ScopeReadBrands))

	// Last-used touch and outcome attribution run off the request path.
	assert.Eventually(t, func() bool {
		stored, err := f.keys.FindByID(context.Background(), f.key.ID)
		if err != nil || stored.LastUsedAt == nil {
			return false
		}
		usageRec, err := f.usage.FindByKeyAndMonth(context.Background(), f.key.ID, usage.MonthOf(time.Now().UTC()))
		return err == nil && usageRec.SuccessfulCalls == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestGateUnlimitedTierHeaders(t *testing.T) {
	f := newGateFixture(t, func(k *apikey.APIKey) {
		k.Tier = apikey.TierUnlimited
	})

	rec := f.request(f.rawKey, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "unlimited", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "unlimited", rec.Header().Get("X-RateLimit-Remaining"))
}

type recordingCache struct {
	mu   sync.Mutex
	keys map[string]*apikey.APIKey
}

func newRecordingCache() *recordingCache {
	return &recordingCache{keys: make(map[string]*apikey.APIKey)}
}

func (c *recordingCache) Get(ctx context.Context, keyHash string) (*apikey.APIKey, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	k, ok := c.keys[keyHash]
	return k, ok
}

func (c *recordingCache) Set(ctx context.Context, key *apikey.APIKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.keys[key.KeyHash] = key
}

func TestGateServesFromCache(t *testing.T) {
	f := newGateFixture(t, nil)
	cache := newRecordingCache()
	logger := zap.NewNop()
	gate := NewGate(
		f.keys,
		cache,
		service.NewRestrictionValidator(logger),
		service.NewRateLimitService(memstorage.NewRateLimitStore(), logger),
		service.NewQuotaAccountant(f.usage, f.principals, 1.1, logger),
		time.Second,
		logger,
	)
	router := gin.New()
	router.Use(gate.Middleware())
	router.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	send := func() int {
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.Header.Set("X-API-Key", f.rawKey)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec.Code
	}

	require.Equal(t, http.StatusOK, send())

	// The store copy is gone, but within the cache TTL the gate still
	// admits from the cached entry.
	require.NoError(t, f.keys.Delete(context.Background(), f.key.ID))
	assert.Equal(t, http.StatusOK, send())
}

func TestRequireScopesMiddleware(t *testing.T) {
	logger := zap.NewNop()

	newRouter := func(ac *AuthContext, required []apikey.Scope, requireAll bool) *gin.Engine {
		router := gin.New()
		router.Use(func(c *gin.Context) {
			if ac != nil {
				setAuthContext(c, ac)
			}
		})
		router.Use(RequireScopes(required, requireAll, logger))
		router.GET("/resource", func(c *gin.Context) { c.Status(http.StatusOK) })
		return router
	}

	send := func(router *gin.Engine) int {
		req := httptest.NewRequest(http.MethodGet, "/resource", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec.Code
	}

	t.Run("no auth context", func(t *testing.T) {
		router := newRouter(nil, []apikey.Scope{apikey.ScopeReadBrands}, false)
		assert.Equal(t, http.StatusUnauthorized, send(router))
	})

	t.Run("scope present", func(t *testing.T) {
		ac := &AuthContext{KeyID: uuid.New(), Scopes: apikey.ScopeSet{apikey.ScopeReadBrands}, Method: AuthMethodAPIKey}
		router := newRouter(ac, []apikey.Scope{apikey.ScopeReadBrands}, false)
		assert.Equal(t, http.StatusOK, send(router))
	})

	t.Run("scope missing", func(t *testing.T) {
		ac := &AuthContext{KeyID: uuid.New(), Scopes: apikey.ScopeSet{apikey.ScopeReadUsers}, Method: AuthMethodAPIKey}
		router := newRouter(ac, []apikey.Scope{apikey.ScopeWriteBrands}, false)
		assert.Equal(t, http.StatusForbidden, send(router))
	})

	t.Run("full access overrides", func(t *testing.T) {
		ac := &AuthContext{KeyID: uuid.New(), Scopes: apikey.ScopeSet{apikey.ScopeFullAccess}, Method: AuthMethodAPIKey}
		router := newRouter(ac, []apikey.Scope{apikey.ScopeWriteBrands, apikey.ScopeAdminAccess}, true)
		assert.Equal(t, http.StatusOK, send(router))
	})

	t.Run("admin jwt bypasses scopes", func(t *testing.T) {
		ac := &AuthContext{PrincipalID: uuid.New(), Role: "admin", Method: AuthMethodJWT}
		router := newRouter(ac, []apikey.Scope{apikey.ScopeAdminAccess}, true)
		assert.Equal(t, http.StatusOK, send(router))
	})
}

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/parking-gate/internal/config"
	"github.com/iliyamo/parking-gate/internal/model"
	"github.com/iliyamo/parking-gate/internal/utils"
)

const secret = "test-secret"

func newRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func do(e *echo.Echo, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func token(t *testing.T, id string, role model.Role) string {
	t.Helper()
	tok, err := utils.NewAccessToken(secret, id, string(role), 5)
	require.NoError(t, err)
	return tok.Token
}

func TestJWTAuthAndRole(t *testing.T) {
	e := echo.New()
	g := e.Group("/admin", JWTAuth(secret), RequireRole(model.RoleOwner))
	g.GET("/whoami", func(c echo.Context) error { return c.String(http.StatusOK, CredentialID(c)) })

	assert.Equal(t, http.StatusUnauthorized, do(e, http.MethodGet, "/admin/whoami", "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(e, http.MethodGet, "/admin/whoami", "garbage").Code)
	assert.Equal(t, http.StatusForbidden, do(e, http.MethodGet, "/admin/whoami", token(t, "1", model.RoleUser)).Code)

	rec := do(e, http.MethodGet, "/admin/whoami", token(t, "10", model.RoleOwner))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "10", rec.Body.String())
}

func rateConfig() config.RateLimitConfig {
	return config.RateLimitConfig{
		Enabled:        true,
		Capacity:       2,
		RefillTokens:   1,
		RefillInterval: time.Hour,
		TTL:            2 * time.Hour,
		KeyStrategy:    "ip_route",
		Prefix:         "rl",
	}
}

func TestTokenBucket(t *testing.T) {
	e := echo.New()
	e.POST("/gate", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) }, NewTokenBucket(rateConfig(), newRedis(t)))

	first := do(e, http.MethodPost, "/gate", "")
	assert.Equal(t, http.StatusNoContent, first.Code)
	assert.Equal(t, "2", first.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "1", first.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, http.StatusNoContent, do(e, http.MethodPost, "/gate", "").Code)

	blocked := do(e, http.MethodPost, "/gate", "")
	assert.Equal(t, http.StatusTooManyRequests, blocked.Code)
	assert.NotEmpty(t, blocked.Header().Get("Retry-After"))
	assert.Contains(t, blocked.Body.String(), "too_many_requests")
}

func TestTokenBucketFailsOpen(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond, MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })

	e := echo.New()
	e.POST("/gate", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) }, NewTokenBucket(rateConfig(), rdb))
	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusNoContent, do(e, http.MethodPost, "/gate", "").Code)
	}
}

func TestTokenBucketDisabled(t *testing.T) {
	cfg := rateConfig()
	cfg.Enabled = false
	e := echo.New()
	e.POST("/gate", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) }, NewTokenBucket(cfg, nil))
	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusNoContent, do(e, http.MethodPost, "/gate", "").Code)
	}
}

func TestRedisCache(t *testing.T) {
	cfg := config.CacheConfig{
		Enabled:      true,
		Methods:      map[string]bool{http.MethodGet: true},
		TTL:          time.Minute,
		KeyStrategy:  "route_query",
		Prefix:       "cache",
		MaxBodyBytes: 1 << 10,
	}
	calls := 0
	e := echo.New()
	e.GET("/slots", func(c echo.Context) error {
		calls++
		return c.JSON(http.StatusOK, echo.Map{"calls": calls})
	}, NewRedisCache(cfg, newRedis(t)))

	miss := do(e, http.MethodGet, "/slots", "")
	assert.Equal(t, "MISS", miss.Header().Get("X-Cache"))
	hit := do(e, http.MethodGet, "/slots", "")
	assert.Equal(t, http.StatusOK, hit.Code)
	assert.Equal(t, "HIT", hit.Header().Get("X-Cache"))
	assert.Equal(t, miss.Body.String(), hit.Body.String())
	assert.Contains(t, hit.Header().Get(echo.HeaderContentType), "application/json")
	assert.Equal(t, 1, calls)

	assert.Equal(t, "MISS", do(e, http.MethodGet, "/slots?status=free", "").Header().Get("X-Cache"))
	assert.Equal(t, 2, calls)
}

func TestRedisCacheSkipsErrors(t *testing.T) {
	cfg := config.CacheConfig{Enabled: true, Methods: map[string]bool{http.MethodGet: true}, TTL: time.Minute, Prefix: "cache"}
	calls := 0
	e := echo.New()
	e.GET("/slots", func(c echo.Context) error {
		calls++
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "store_unavailable"})
	}, NewRedisCache(cfg, newRedis(t)))

	do(e, http.MethodGet, "/slots", "")
	do(e, http.MethodGet, "/slots", "")
	assert.Equal(t, 2, calls)
}

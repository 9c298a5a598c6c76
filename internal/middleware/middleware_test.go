package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/iliyamo/event-booking/internal/config"
	"github.com/iliyamo/event-booking/internal/model"
	"github.com/iliyamo/event-booking/internal/utils"
)

const testSecret = "middleware-secret"

func newRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func bearer(t *testing.T, role model.Role) (string, uuid.UUID) {
	t.Helper()
	id := uuid.New()
	tok, err := utils.NewAccessToken(testSecret, id, role, 5)
	require.NoError(t, err)
	return "Bearer " + tok.Token, id
}

func do(e *echo.Echo, method, path, auth string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if auth != "" {
		req.Header.Set(echo.HeaderAuthorization, auth)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestJWTAuth(t *testing.T) {
	e := echo.New()
	e.GET("/me", func(c echo.Context) error {
		p, ok := PrincipalFrom(c)
		require.True(t, ok)
		return c.String(http.StatusOK, p.UserID.String())
	}, JWTAuth(testSecret))

	rec := do(e, http.MethodGet, "/me", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "missing bearer token")

	rec = do(e, http.MethodGet, "/me", "Bearer nonsense")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	auth, id := bearer(t, model.RoleUser)
	rec = do(e, http.MethodGet, "/me", auth)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, id.String(), rec.Body.String())
}

func TestRequireRole(t *testing.T) {
	e := echo.New()
	ok := func(c echo.Context) error { return c.NoContent(http.StatusNoContent) }
	e.GET("/admin", ok, JWTAuth(testSecret), RequireRole(model.RoleAdmin))

	userAuth, _ := bearer(t, model.RoleUser)
	assert.Equal(t, http.StatusForbidden, do(e, http.MethodGet, "/admin", userAuth).Code)

	adminAuth, _ := bearer(t, model.RoleAdmin)
	assert.Equal(t, http.StatusNoContent, do(e, http.MethodGet, "/admin", adminAuth).Code)
}

func TestTokenBucket(t *testing.T) {
	cfg := config.RateLimitConfig{
		Enabled:        true,
		Capacity:       2,
		RefillTokens:   1,
		RefillInterval: time.Minute,
		TTL:            10 * time.Minute,
		KeyStrategy:    "ip_route",
		Prefix:         "rl",
	}
	e := echo.New()
	e.POST("/book", func(c echo.Context) error { return c.NoContent(http.StatusCreated) },
		NewTokenBucket(cfg, newRedis(t), zap.NewNop()))

	for i := 0; i < 2; i++ {
		rec := do(e, http.MethodPost, "/book", "")
		require.Equal(t, http.StatusCreated, rec.Code)
		assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
	}
	rec := do(e, http.MethodPost, "/book", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestTokenBucket_PassThroughWithoutRedis(t *testing.T) {
	e := echo.New()
	cfg := config.RateLimitConfig{Enabled: true, Capacity: 1}
	e.POST("/book", func(c echo.Context) error { return c.NoContent(http.StatusCreated) },
		NewTokenBucket(cfg, nil, nil))

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusCreated, do(e, http.MethodPost, "/book", "").Code)
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
	e.GET("/events/:id", func(c echo.Context) error {
		calls++
		return c.JSON(http.StatusOK, echo.Map{"id": c.Param("id")})
	}, NewRedisCache(cfg, newRedis(t)))

	first := do(e, http.MethodGet, "/events/a?x=1", "")
	require.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "MISS", first.Header().Get("X-Cache"))

	second := do(e, http.MethodGet, "/events/a?x=1", "")
	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, "HIT", second.Header().Get("X-Cache"))
	assert.JSONEq(t, first.Body.String(), second.Body.String())
	assert.Equal(t, echo.MIMEApplicationJSON, second.Header().Get(echo.HeaderContentType))

	other := do(e, http.MethodGet, "/events/b?x=1", "")
	assert.Equal(t, "MISS", other.Header().Get("X-Cache"))
	assert.Equal(t, 2, calls)
}

func TestRedisCache_SkipsErrorsAndLargeBodies(t *testing.T) {
	cfg := config.CacheConfig{
		Enabled:      true,
		Methods:      map[string]bool{http.MethodGet: true},
		TTL:          time.Minute,
		Prefix:       "cache",
		MaxBodyBytes: 8,
	}
	calls := 0
	e := echo.New()
	mw := NewRedisCache(cfg, newRedis(t))
	e.GET("/big", func(c echo.Context) error {
		calls++
		return c.String(http.StatusOK, "this body is longer than eight bytes")
	}, mw)
	e.GET("/missing", func(c echo.Context) error {
		calls++
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not found"})
	}, mw)

	for i := 0; i < 2; i++ {
		assert.Equal(t, "MISS", do(e, http.MethodGet, "/big", "").Header().Get("X-Cache"))
		assert.Equal(t, "MISS", do(e, http.MethodGet, "/missing", "").Header().Get("X-Cache"))
	}
	assert.Equal(t, 4, calls)
}

func TestRequestLogger(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	e := echo.New()
	e.Use(RequestLogger(zap.New(core)))
	e.GET("/ok", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/boom", func(c echo.Context) error { return echo.NewHTTPError(http.StatusServiceUnavailable, "down") })

	do(e, http.MethodGet, "/ok", "")
	do(e, http.MethodGet, "/boom", "")
	do(e, http.MethodGet, "/nope", "")

	entries := logs.All()
	require.Len(t, entries, 3)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, zapcore.ErrorLevel, entries[1].Level)
	assert.Equal(t, int64(http.StatusServiceUnavailable), entries[1].ContextMap()["status"])
	assert.Equal(t, zapcore.WarnLevel, entries[2].Level)
	assert.Equal(t, "anon", entries[2].ContextMap()["user_id"])
}

func TestTracingSetsTraceHeaderOnlyWhenSampled(t *testing.T) {
	e := echo.New()
	e.Use(Tracing())
	e.GET("/ok", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	rec := do(e, http.MethodGet, "/ok", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	// The global provider is a no-op in tests, so spans carry no trace id.
	assert.Empty(t, rec.Header().Get(TraceIDHeader))
}

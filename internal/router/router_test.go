package router

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/iliyamo/event-booking/internal/booking"
	"github.com/iliyamo/event-booking/internal/config"
	"github.com/iliyamo/event-booking/internal/handler"
	"github.com/iliyamo/event-booking/internal/ledger/memstore"
	"github.com/iliyamo/event-booking/internal/middleware"
	"github.com/iliyamo/event-booking/internal/model"
	"github.com/iliyamo/event-booking/internal/utils"
)

const secret = "router-secret"

type noResources struct{}

func (noResources) Create(ctx context.Context, name string, tz *string) (model.Resource, error) {
	return model.Resource{ID: uuid.New(), Name: name, Timezone: tz}, nil
}

func (noResources) GetByID(ctx context.Context, id uuid.UUID) (model.Resource, error) {
	return model.Resource{ID: id, Name: "hall"}, nil
}

func (noResources) List(ctx context.Context) ([]model.Resource, error) {
	return []model.Resource{}, nil
}

func newServer(t *testing.T, rl config.RateLimitConfig) (*echo.Echo, *memstore.Store) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	store := memstore.New()
	ctrl := booking.NewController(store)
	mgr := booking.NewManager(store)
	cacheCfg := config.CacheConfig{
		Enabled:      true,
		Methods:      map[string]bool{http.MethodGet: true},
		TTL:          time.Minute,
		KeyStrategy:  "route_query",
		Prefix:       "test",
		MaxBodyBytes: 1 << 20,
	}

	e := New(Deps{
		Log:         zap.NewNop(),
		JWTSecret:   secret,
		CORSOrigins: []string{"*"},
		Health:      handler.NewHealthHandler(store),
		Auth:        handler.NewAuthHandler(config.Config{JWTSecret: secret}, nil, nil),
		Events:      handler.NewEventHandler(mgr),
		Bookings:    handler.NewBookingHandler(ctrl, mgr),
		Resources:   handler.NewResourceHandler(noResources{}),
		RateLimit:   middleware.NewTokenBucket(rl, rdb, zap.NewNop()),
		Cache:       middleware.NewRedisCache(cacheCfg, rdb),
	})
	return e, store
}

func call(e *echo.Echo, method, path string, role model.Role, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if role != "" {
		tok, _ := utils.NewAccessToken(secret, uuid.New(), role, 5)
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+tok.Token)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestRoutes_Auth(t *testing.T) {
	e, _ := newServer(t, config.RateLimitConfig{})

	rec := call(e, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))

	rec = call(e, http.MethodGet, "/v1/my-bookings", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = call(e, http.MethodGet, "/v1/my-bookings", model.RoleUser, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = call(e, http.MethodGet, "/v1/resources", model.RoleUser, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = call(e, http.MethodGet, "/v1/resources", model.RoleAdmin, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = call(e, http.MethodGet, "/v1/me", model.RoleAdmin, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRoutes_UnknownPathIsNotFound(t *testing.T) {
	e, _ := newServer(t, config.RateLimitConfig{})

	for _, path := range []string{"/v1/nope", "/v1/events/" + uuid.NewString() + "/nope", "/v2/events"} {
		rec := call(e, http.MethodGet, path, "", "")
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
	}

	rec := call(e, http.MethodPost, "/v1/events", "", `{}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRoutes_PublicCache(t *testing.T) {
	e, store := newServer(t, config.RateLimitConfig{})
	mgr := booking.NewManager(store)
	organizer := model.Principal{UserID: uuid.New(), Role: model.RoleUser}
	start := time.Now().UTC().Add(24 * time.Hour)
	ev, err := mgr.CreateEvent(context.Background(), organizer, booking.EventInput{
		Title: "Cached", Capacity: 2, StartsAt: start, EndsAt: start.Add(time.Hour),
	})
	require.NoError(t, err)
	_, err = mgr.PublishEvent(context.Background(), organizer, ev.ID)
	require.NoError(t, err)

	rec := call(e, http.MethodGet, "/v1/events", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))

	rec = call(e, http.MethodGet, "/v1/events", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "HIT", rec.Header().Get("X-Cache"))
	assert.Contains(t, rec.Body.String(), "Cached")

	path := fmt.Sprintf("/v1/events/%s/availability", ev.ID)
	for range 2 {
		rec = call(e, http.MethodGet, path, "", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, rec.Header().Get("X-Cache"))
	}
}

func TestRoutes_BookingRateLimited(t *testing.T) {
	rl := config.RateLimitConfig{
		Enabled:        true,
		Capacity:       2,
		RefillTokens:   1,
		RefillInterval: time.Hour,
		TTL:            time.Hour,
		KeyStrategy:    "route",
		Prefix:         "rl",
	}
	e, _ := newServer(t, rl)
	path := "/v1/events/" + uuid.NewString() + "/bookings"

	for range 2 {
		rec := call(e, http.MethodPost, path, model.RoleUser, `{"seats":1}`)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	}
	rec := call(e, http.MethodPost, path, model.RoleUser, `{"seats":1}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

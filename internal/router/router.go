// Package router wires handlers and middleware onto an echo instance.
package router

import (
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/iliyamo/event-booking/internal/handler"
	"github.com/iliyamo/event-booking/internal/middleware"
	"github.com/iliyamo/event-booking/internal/model"
)

// Deps carries everything the routes need. RateLimit and Cache may be nil,
// in which case requests pass straight through.
type Deps struct {
	Log         *zap.Logger
	JWTSecret   string
	CORSOrigins []string

	Health    *handler.HealthHandler
	Auth      *handler.AuthHandler
	Events    *handler.EventHandler
	Bookings  *handler.BookingHandler
	Resources *handler.ResourceHandler

	RateLimit echo.MiddlewareFunc
	Cache     echo.MiddlewareFunc
}

// New builds the echo server with the global middleware chain and every route.
func New(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: d.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderAuthorization, echo.HeaderContentType},
	}))
	e.Use(middleware.Tracing())
	if d.Log != nil {
		e.Use(middleware.RequestLogger(d.Log))
	}

	RegisterRoutes(e, d.Health)
	RegisterAuth(e, d.Auth, d.JWTSecret, orPass(d.RateLimit))
	RegisterPublic(e, d.Events, orPass(d.Cache))
	RegisterEvents(e, d.Events, d.JWTSecret)
	RegisterBookings(e, d.Bookings, d.JWTSecret, orPass(d.RateLimit))
	RegisterResources(e, d.Resources, d.JWTSecret)
	return e
}

// signedIn is attached per route. An echo group with middleware also claims
// prefix/* for its not-found handler, which would turn unknown /v1 paths
// into 401s.
func signedIn(jwtSecret string, roles ...model.Role) []echo.MiddlewareFunc {
	return []echo.MiddlewareFunc{
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(roles...),
	}
}

func orPass(mw echo.MiddlewareFunc) echo.MiddlewareFunc {
	if mw != nil {
		return mw
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
}

// RegisterRoutes registers routes that need no authentication and sit outside /v1.
func RegisterRoutes(e *echo.Echo, h *handler.HealthHandler) {
	e.GET("/healthz", h.Health)
}

// RegisterAuth registers session endpoints. Register, login, refresh and
// logout are unauthenticated and rate limited; /v1/me needs a valid token.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string, limit echo.MiddlewareFunc) {
	g := e.Group("/v1/auth", limit)
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
	g.POST("/refresh", a.Refresh)
	g.POST("/logout", a.Logout)

	e.GET("/v1/me", a.Me, middleware.JWTAuth(jwtSecret))
}

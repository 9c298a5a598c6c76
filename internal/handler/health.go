package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/event-booking/internal/middleware"
)

// HealthHandler reports liveness plus store reachability for load balancers.
type HealthHandler struct {
	Store Pinger
}

func NewHealthHandler(store Pinger) *HealthHandler {
	return &HealthHandler{Store: store}
}

func (h *HealthHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	if h.Store != nil {
		if err := h.Store.Ping(ctx); err != nil {
			c.Set(middleware.ErrorKey, err)
			return c.JSON(http.StatusServiceUnavailable, echo.Map{"status": "unavailable", "service": "api"})
		}
	}
	return c.JSON(http.StatusOK, echo.Map{"status": "ok", "service": "api"})
}

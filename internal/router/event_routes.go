package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/event-booking/internal/handler"
	"github.com/iliyamo/event-booking/internal/model"
)

// RegisterPublic registers the guest event views. Listings and event details
// go through the response cache; availability is always read live.
func RegisterPublic(e *echo.Echo, h *handler.EventHandler, cache echo.MiddlewareFunc) {
	e.GET("/v1/events", h.ListEvents, cache)
	e.GET("/v1/events/:id", h.GetEvent, cache)
	e.GET("/v1/events/:id/availability", h.Availability)
}

// RegisterEvents registers organizer endpoints. Any signed-in user may
// organize; ownership is enforced by the booking core.
func RegisterEvents(e *echo.Echo, h *handler.EventHandler, jwtSecret string) {
	auth := signedIn(jwtSecret, model.RoleUser, model.RoleAdmin)
	e.POST("/v1/events", h.CreateEvent, auth...)
	e.POST("/v1/events/:id/publish", h.PublishEvent, auth...)
	e.POST("/v1/events/:id/cancel", h.CancelEvent, auth...)
	e.DELETE("/v1/events/:id", h.DeleteEvent, auth...)
	e.GET("/v1/events/:id/bookings", h.EventBookings, auth...)
	e.GET("/v1/my-events", h.MyEvents, auth...)
}

package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/event-booking/internal/handler"
	"github.com/iliyamo/event-booking/internal/middleware"
	"github.com/iliyamo/event-booking/internal/model"
)

// RegisterBookings registers the booking endpoints. Writes are rate limited
// per user after authentication so the bucket key carries the user id.
func RegisterBookings(e *echo.Echo, h *handler.BookingHandler, jwtSecret string, limit echo.MiddlewareFunc) {
	auth := signedIn(jwtSecret, model.RoleUser, model.RoleAdmin)
	write := append(signedIn(jwtSecret, model.RoleUser, model.RoleAdmin), limit)
	e.POST("/v1/events/:id/bookings", h.CreateBooking, write...)
	e.DELETE("/v1/bookings/:id", h.CancelBooking, write...)
	e.GET("/v1/bookings/:id", h.GetBooking, auth...)
	e.GET("/v1/my-bookings", h.MyBookings, auth...)
}

// RegisterResources registers venue management. Admins only.
func RegisterResources(e *echo.Echo, h *handler.ResourceHandler, jwtSecret string) {
	g := e.Group("/v1/resources",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleAdmin),
	)
	g.POST("", h.CreateResource)
	g.GET("", h.ListResources)
	g.GET("/:id", h.GetResource)
}

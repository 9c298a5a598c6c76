// Package handler holds the echo HTTP handlers. Handlers depend on the small
// interfaces below so the MySQL and Postgres stores are interchangeable.
package handler

import (
	"context"
	"errors"
	"iter"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/event-booking/internal/booking"
	"github.com/iliyamo/event-booking/internal/ledger"
	"github.com/iliyamo/event-booking/internal/middleware"
	"github.com/iliyamo/event-booking/internal/model"
)

// requestTimeout bounds every store call a handler makes.
const requestTimeout = 5 * time.Second

// statusClientClosedRequest answers requests whose caller went away.
const statusClientClosedRequest = 499

// retryAfterSeconds is sent with 503 responses for lock timeouts and store outages.
const retryAfterSeconds = "1"

type UserStore interface {
	Create(ctx context.Context, email, password string, role model.Role, cost int) (model.User, error)
	GetByEmail(ctx context.Context, email string) (model.User, error)
	GetByID(ctx context.Context, id uuid.UUID) (model.User, error)
}

type TokenStore interface {
	StoreRefresh(ctx context.Context, userID uuid.UUID, tokenHash string, exp time.Time) error
	ValidateRefresh(ctx context.Context, tokenHash string) (uuid.UUID, error)
	Consume(ctx context.Context, tokenHash string) (uuid.UUID, error)
	RevokeByHash(ctx context.Context, tokenHash string) error
	RevokeAllForUser(ctx context.Context, userID uuid.UUID) error
}

type ResourceStore interface {
	Create(ctx context.Context, name string, timezone *string) (model.Resource, error)
	GetByID(ctx context.Context, id uuid.UUID) (model.Resource, error)
	List(ctx context.Context) ([]model.Resource, error)
}

// Admission is the write path for bookings.
type Admission interface {
	CreateBooking(ctx context.Context, p model.Principal, eventID uuid.UUID, seats int) (model.Booking, error)
	CancelBooking(ctx context.Context, p model.Principal, bookingID uuid.UUID) (model.Booking, error)
}

// Lifecycle covers event management and the read views.
type Lifecycle interface {
	GetEvent(ctx context.Context, eventID uuid.UUID) (model.Event, error)
	ListEvents(ctx context.Context, f ledger.EventFilter) ([]model.Event, error)
	Availability(ctx context.Context, eventID uuid.UUID) (booking.Availability, error)
	CreateEvent(ctx context.Context, p model.Principal, in booking.EventInput) (model.Event, error)
	PublishEvent(ctx context.Context, p model.Principal, eventID uuid.UUID) (model.Event, error)
	CancelEvent(ctx context.Context, p model.Principal, eventID uuid.UUID) (model.Event, error)
	DeleteEvent(ctx context.Context, p model.Principal, eventID uuid.UUID) error
	GetBooking(ctx context.Context, p model.Principal, bookingID uuid.UUID) (model.Booking, error)
	EventBookings(ctx context.Context, p model.Principal, eventID uuid.UUID) ([]model.Booking, error)
	BookingsForUser(ctx context.Context, userID uuid.UUID) iter.Seq2[model.Booking, error]
}

type Pinger interface {
	Ping(ctx context.Context) error
}

var (
	_ Admission = (*booking.Controller)(nil)
	_ Lifecycle = (*booking.Manager)(nil)
)

func getPrincipal(c echo.Context) (model.Principal, bool) {
	return middleware.PrincipalFrom(c)
}

func parseUUIDParam(c echo.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// parseLimit reads ?limit=, falling back to def and capping at max.
func parseLimit(c echo.Context, def, max int) (int, bool) {
	raw := c.QueryParam("limit")
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, false
	}
	if n > max {
		n = max
	}
	return n, true
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": msg, "code": "bad_request"})
}

func unauthorized(c echo.Context, msg string) error {
	return c.JSON(http.StatusUnauthorized, echo.Map{"error": msg, "code": "unauthorized"})
}

// internalError hides err from the client and leaves it for the request logger.
func internalError(c echo.Context, msg string, err error) error {
	c.Set(middleware.ErrorKey, err)
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": msg, "code": "internal"})
}

// statusFor maps a booking error code to its HTTP status.
func statusFor(code string) int {
	switch code {
	case "capacity_exceeded", "already_canceled", "invalid_transition", "event_has_bookings":
		return http.StatusConflict
	case "event_not_found", "booking_not_found":
		return http.StatusNotFound
	case "event_not_bookable":
		return http.StatusUnprocessableEntity
	case "not_authorized":
		return http.StatusForbidden
	case "timeout", "store_unavailable":
		return http.StatusServiceUnavailable
	case "canceled":
		return statusClientClosedRequest
	case "invalid_seats", "invalid_event", "invalid_reference":
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// writeError answers with {"error","code"} for any error coming out of the
// booking core. Retryable failures carry Retry-After.
func writeError(c echo.Context, err error) error {
	code := booking.Code(err)
	status := statusFor(code)
	if status == http.StatusInternalServerError {
		return internalError(c, "internal error", err)
	}
	if booking.IsRetryable(err) {
		c.Response().Header().Set("Retry-After", retryAfterSeconds)
		c.Set(middleware.ErrorKey, err)
	}
	msg := err.Error()
	// Store errors wrap driver text; only the sentinel is shown.
	for _, sentinel := range []error{booking.ErrTimeout, booking.ErrStoreUnavailable, booking.ErrInvalidReference, booking.ErrCanceled} {
		if errors.Is(err, sentinel) {
			msg = sentinel.Error()
		}
	}
	return c.JSON(status, echo.Map{"error": msg, "code": code})
}

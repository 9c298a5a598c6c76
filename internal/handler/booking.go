package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/event-booking/internal/model"
)

const (
	defaultBookingLimit = 50
	maxBookingLimit     = 500
)

// BookingHandler exposes admission and the caller's booking views.
type BookingHandler struct {
	Admission Admission
	Bookings  Lifecycle
}

func NewBookingHandler(a Admission, l Lifecycle) *BookingHandler {
	return &BookingHandler{Admission: a, Bookings: l}
}

type createBookingReq struct {
	Seats *int `json:"seats"`
}

// CreateBooking books {"seats": n} on the event in the path. Omitting seats
// books one.
func (h *BookingHandler) CreateBooking(c echo.Context) error {
	p, ok := getPrincipal(c)
	if !ok {
		return unauthorized(c, "unauthorized")
	}
	eventID, ok := parseUUIDParam(c, "id")
	if !ok {
		return badRequest(c, "invalid event id")
	}
	var req createBookingReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	seats := 1
	if req.Seats != nil {
		seats = *req.Seats
	}

	// The controller applies its own lock deadline inside this one.
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	b, err := h.Admission.CreateBooking(ctx, p, eventID, seats)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"item": b})
}

// CancelBooking cancels a booking owned by the caller, or any booking for admins.
func (h *BookingHandler) CancelBooking(c echo.Context) error {
	p, ok := getPrincipal(c)
	if !ok {
		return unauthorized(c, "unauthorized")
	}
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return badRequest(c, "invalid booking id")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	b, err := h.Admission.CancelBooking(ctx, p, id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"item": b})
}

func (h *BookingHandler) GetBooking(c echo.Context) error {
	p, ok := getPrincipal(c)
	if !ok {
		return unauthorized(c, "unauthorized")
	}
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return badRequest(c, "invalid booking id")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	b, err := h.Bookings.GetBooking(ctx, p, id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"item": b})
}

// MyBookings returns the caller's most recent bookings, newest first.
func (h *BookingHandler) MyBookings(c echo.Context) error {
	p, ok := getPrincipal(c)
	if !ok {
		return unauthorized(c, "unauthorized")
	}
	limit, ok := parseLimit(c, defaultBookingLimit, maxBookingLimit)
	if !ok {
		return badRequest(c, "invalid limit")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	items := make([]model.Booking, 0, limit)
	for b, err := range h.Bookings.BookingsForUser(ctx, p.UserID) {
		if err != nil {
			return writeError(c, err)
		}
		items = append(items, b)
		if len(items) == limit {
			break
		}
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items, "count": len(items)})
}

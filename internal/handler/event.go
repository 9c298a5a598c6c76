package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/event-booking/internal/booking"
	"github.com/iliyamo/event-booking/internal/ledger"
	"github.com/iliyamo/event-booking/internal/model"
)

const (
	defaultEventLimit = 50
	maxEventLimit     = 200
)

// EventHandler serves organizer event management and the public event views.
type EventHandler struct {
	Events Lifecycle
}

func NewEventHandler(events Lifecycle) *EventHandler {
	return &EventHandler{Events: events}
}

type createEventReq struct {
	Title       string     `json:"title"`
	Description *string    `json:"description"`
	Location    *string    `json:"location"`
	ResourceID  *uuid.UUID `json:"resource_id"`
	Capacity    int        `json:"capacity"`
	StartsAt    time.Time  `json:"starts_at"`
	EndsAt      time.Time  `json:"ends_at"`
}

// CreateEvent stores a draft event owned by the caller.
func (h *EventHandler) CreateEvent(c echo.Context) error {
	p, ok := getPrincipal(c)
	if !ok {
		return unauthorized(c, "unauthorized")
	}
	var req createEventReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	e, err := h.Events.CreateEvent(ctx, p, booking.EventInput{
		Title:       req.Title,
		Description: req.Description,
		Location:    req.Location,
		ResourceID:  req.ResourceID,
		Capacity:    req.Capacity,
		StartsAt:    req.StartsAt,
		EndsAt:      req.EndsAt,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"item": e})
}

func (h *EventHandler) PublishEvent(c echo.Context) error {
	return h.transition(c, h.Events.PublishEvent)
}

func (h *EventHandler) CancelEvent(c echo.Context) error {
	return h.transition(c, h.Events.CancelEvent)
}

func (h *EventHandler) transition(c echo.Context, apply func(context.Context, model.Principal, uuid.UUID) (model.Event, error)) error {
	p, ok := getPrincipal(c)
	if !ok {
		return unauthorized(c, "unauthorized")
	}
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return badRequest(c, "invalid event id")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	e, err := apply(ctx, p, id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"item": e})
}

// DeleteEvent removes an event that has no active bookings.
func (h *EventHandler) DeleteEvent(c echo.Context) error {
	p, ok := getPrincipal(c)
	if !ok {
		return unauthorized(c, "unauthorized")
	}
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return badRequest(c, "invalid event id")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	if err := h.Events.DeleteEvent(ctx, p, id); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// EventBookings lists all bookings of an event for its organizer or an admin.
func (h *EventHandler) EventBookings(c echo.Context) error {
	p, ok := getPrincipal(c)
	if !ok {
		return unauthorized(c, "unauthorized")
	}
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return badRequest(c, "invalid event id")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	items, err := h.Events.EventBookings(ctx, p, id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}

// MyEvents lists every event the caller organizes, drafts included.
func (h *EventHandler) MyEvents(c echo.Context) error {
	p, ok := getPrincipal(c)
	if !ok {
		return unauthorized(c, "unauthorized")
	}
	limit, ok := parseLimit(c, defaultEventLimit, maxEventLimit)
	if !ok {
		return badRequest(c, "invalid limit")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	items, err := h.Events.ListEvents(ctx, ledger.EventFilter{CreatedBy: &p.UserID, Limit: limit})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}

// ListEvents returns published events. Without ?from= only events that have
// not started yet are listed.
func (h *EventHandler) ListEvents(c echo.Context) error {
	f := ledger.EventFilter{Status: model.EventPublished, Query: c.QueryParam("q")}

	limit, ok := parseLimit(c, defaultEventLimit, maxEventLimit)
	if !ok {
		return badRequest(c, "invalid limit")
	}
	f.Limit = limit

	from, ok := parseTimeParam(c, "from")
	if !ok {
		return badRequest(c, "from must be RFC3339")
	}
	if from == nil {
		now := time.Now().UTC()
		from = &now
	}
	f.From = from

	to, ok := parseTimeParam(c, "to")
	if !ok {
		return badRequest(c, "to must be RFC3339")
	}
	if to != nil && !to.After(*from) {
		return badRequest(c, "to must be after from")
	}
	f.To = to

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	items, err := h.Events.ListEvents(ctx, f)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items, "count": len(items)})
}

// GetEvent returns a published or canceled event. Drafts are only visible to
// their organizer through MyEvents.
func (h *EventHandler) GetEvent(c echo.Context) error {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return badRequest(c, "invalid event id")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	e, err := h.Events.GetEvent(ctx, id)
	if err != nil {
		return writeError(c, err)
	}
	if e.Status == model.EventDraft {
		return writeError(c, booking.ErrEventNotFound)
	}
	return c.JSON(http.StatusOK, echo.Map{"item": e})
}

// Availability reports capacity, active seats and whether the event is
// bookable right now. It is never cached.
func (h *EventHandler) Availability(c echo.Context) error {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return badRequest(c, "invalid event id")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	a, err := h.Events.Availability(ctx, id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, a)
}

func parseTimeParam(c echo.Context, name string) (*time.Time, bool) {
	raw := c.QueryParam(name)
	if raw == "" {
		return nil, true
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, false
	}
	t = t.UTC()
	return &t, true
}

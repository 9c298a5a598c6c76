package booking

import (
	"context"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/iliyamo/event-booking/internal/ledger"
	"github.com/iliyamo/event-booking/internal/model"
)

// Manager exposes read views over the ledger and owns the event status
// policy that the Controller enforces as a guard.
type Manager struct {
	store  ledger.Store
	ledger *ledger.Ledger
	opts   options
}

func NewManager(store ledger.Store, opts ...Option) *Manager {
	return &Manager{
		store:  store,
		ledger: ledger.New(store),
		opts:   buildOptions(opts),
	}
}

// RemainingCapacity returns capacity minus active seats, never negative.
func (m *Manager) RemainingCapacity(ctx context.Context, eventID uuid.UUID) (int, error) {
	return m.ledger.Remaining(ctx, eventID)
}

// BookingsForUser walks the user's bookings newest first. Pages are fetched
// on demand; every range over the returned sequence starts a new walk. A
// store failure is yielded once and ends the sequence.
func (m *Manager) BookingsForUser(ctx context.Context, userID uuid.UUID) iter.Seq2[model.Booking, error] {
	pageSize := m.opts.pageSize
	return func(yield func(model.Booking, error) bool) {
		var cursor *ledger.Cursor
		for {
			page, err := m.store.ListUserBookings(ctx, userID, cursor, pageSize)
			if err != nil {
				yield(model.Booking{}, err)
				return
			}
			for _, b := range page {
				if !yield(b, nil) {
					return
				}
			}
			if len(page) < pageSize {
				return
			}
			cursor = ledger.After(page[len(page)-1])
		}
	}
}

// IsBookable reports whether e is published, has not started and still has
// free seats.
func (m *Manager) IsBookable(ctx context.Context, e model.Event) (bool, error) {
	if !e.AcceptsBookings(m.opts.clock.Now()) {
		return false, nil
	}
	remaining, err := m.RemainingCapacity(ctx, e.ID)
	if err != nil {
		return false, err
	}
	return remaining > 0, nil
}

// Availability is the public capacity view of an event.
type Availability struct {
	EventID     uuid.UUID `json:"event_id"`
	Capacity    int       `json:"capacity"`
	ActiveSeats int       `json:"active_seats"`
	Remaining   int       `json:"remaining"`
	Bookable    bool      `json:"bookable"`
}

// Availability reports capacity usage of a public event. Drafts are reported
// as ErrEventNotFound.
func (m *Manager) Availability(ctx context.Context, eventID uuid.UUID) (Availability, error) {
	e, err := m.store.GetEvent(ctx, eventID)
	if err != nil {
		return Availability{}, err
	}
	if e.Status == model.EventDraft {
		return Availability{}, ErrEventNotFound
	}
	capacity, active, err := m.store.Usage(ctx, eventID)
	if err != nil {
		return Availability{}, err
	}
	remaining := capacity - active
	if remaining < 0 {
		remaining = 0
	}
	return Availability{
		EventID:     eventID,
		Capacity:    capacity,
		ActiveSeats: active,
		Remaining:   remaining,
		Bookable:    e.AcceptsBookings(m.opts.clock.Now()) && remaining > 0,
	}, nil
}

func (m *Manager) GetEvent(ctx context.Context, eventID uuid.UUID) (model.Event, error) {
	return m.store.GetEvent(ctx, eventID)
}

// ListEvents returns events matching f, earliest start first.
func (m *Manager) ListEvents(ctx context.Context, f ledger.EventFilter) ([]model.Event, error) {
	return m.store.ListEvents(ctx, f)
}

// GetBooking returns a booking visible to p.
func (m *Manager) GetBooking(ctx context.Context, p model.Principal, bookingID uuid.UUID) (model.Booking, error) {
	b, err := m.store.GetBooking(ctx, bookingID)
	if err != nil {
		return model.Booking{}, err
	}
	if b.UserID != p.UserID && !p.Role.Privileged() {
		return model.Booking{}, ErrNotAuthorized
	}
	return b, nil
}

// EventBookings lists all bookings of an event for its organizer.
func (m *Manager) EventBookings(ctx context.Context, p model.Principal, eventID uuid.UUID) ([]model.Booking, error) {
	e, err := m.store.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if !e.OwnedBy(p) {
		return nil, ErrNotAuthorized
	}
	return m.store.ListEventBookings(ctx, eventID)
}

// EventInput carries the organizer-supplied fields of a new event.
type EventInput struct {
	Title       string
	Description *string
	Location    *string
	ResourceID  *uuid.UUID
	Capacity    int
	StartsAt    time.Time
	EndsAt      time.Time
}

func (in EventInput) validate() error {
	switch {
	case strings.TrimSpace(in.Title) == "":
		return fmt.Errorf("%w: title is required", ErrInvalidEvent)
	case len(in.Title) > 200:
		return fmt.Errorf("%w: title longer than 200 characters", ErrInvalidEvent)
	case in.Capacity < 0:
		return fmt.Errorf("%w: capacity must not be negative", ErrInvalidEvent)
	case in.StartsAt.IsZero() || in.EndsAt.IsZero():
		return fmt.Errorf("%w: starts_at and ends_at are required", ErrInvalidEvent)
	case !in.StartsAt.Before(in.EndsAt):
		return fmt.Errorf("%w: starts_at must be before ends_at", ErrInvalidEvent)
	}
	return nil
}

// CreateEvent stores a new draft event owned by p.
func (m *Manager) CreateEvent(ctx context.Context, p model.Principal, in EventInput) (model.Event, error) {
	if err := in.validate(); err != nil {
		return model.Event{}, err
	}
	now := m.opts.clock.Now()
	e := model.Event{
		ID:          uuid.New(),
		Title:       strings.TrimSpace(in.Title),
		Description: in.Description,
		Location:    in.Location,
		ResourceID:  in.ResourceID,
		Capacity:    in.Capacity,
		Status:      model.EventDraft,
		StartsAt:    in.StartsAt.UTC(),
		EndsAt:      in.EndsAt.UTC(),
		CreatedBy:   p.UserID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err := m.store.InTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		return tx.InsertEvent(ctx, e)
	})
	if err != nil {
		return model.Event{}, normalize(err)
	}
	m.opts.log.Info("event created", zap.String("event_id", e.ID.String()), zap.String("created_by", p.UserID.String()))
	return e, nil
}

func (m *Manager) PublishEvent(ctx context.Context, p model.Principal, eventID uuid.UUID) (model.Event, error) {
	return m.transition(ctx, p, eventID, model.EventPublished)
}

// CancelEvent stops new bookings for the event. Existing active bookings are
// left untouched; canceling them is a decision for the caller.
func (m *Manager) CancelEvent(ctx context.Context, p model.Principal, eventID uuid.UUID) (model.Event, error) {
	return m.transition(ctx, p, eventID, model.EventCanceled)
}

// transition changes the event status under the same event lock that
// admission uses, so a status change and a booking on one event serialize.
func (m *Manager) transition(ctx context.Context, p model.Principal, eventID uuid.UUID, next model.EventStatus) (model.Event, error) {
	ctx, cancel := m.lockDeadline(ctx)
	defer cancel()

	var out model.Event
	err := m.store.InTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		e, err := tx.LockEvent(ctx, eventID)
		if err != nil {
			return err
		}
		if !e.OwnedBy(p) {
			return ErrNotAuthorized
		}
		if !e.Status.CanTransition(next) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, e.Status, next)
		}
		now := m.opts.clock.Now()
		if err := tx.SetEventStatus(ctx, eventID, next, now); err != nil {
			return err
		}
		e.Status = next
		e.UpdatedAt = now
		out = e
		return nil
	})
	if err != nil {
		return model.Event{}, normalize(err)
	}
	m.opts.log.Info("event status changed",
		zap.String("event_id", eventID.String()),
		zap.String("status", next.String()),
		zap.String("actor_id", p.UserID.String()),
	)
	return out, nil
}

// DeleteEvent removes an event that holds no active bookings.
func (m *Manager) DeleteEvent(ctx context.Context, p model.Principal, eventID uuid.UUID) error {
	ctx, cancel := m.lockDeadline(ctx)
	defer cancel()

	err := m.store.InTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		e, err := tx.LockEvent(ctx, eventID)
		if err != nil {
			return err
		}
		if !e.OwnedBy(p) {
			return ErrNotAuthorized
		}
		active, err := tx.ActiveSeats(ctx, eventID)
		if err != nil {
			return err
		}
		if active > 0 {
			return fmt.Errorf("%w: %d seats", ErrEventHasBookings, active)
		}
		return tx.DeleteEvent(ctx, eventID)
	})
	if err != nil {
		return normalize(err)
	}
	m.opts.log.Info("event deleted", zap.String("event_id", eventID.String()), zap.String("actor_id", p.UserID.String()))
	return nil
}

func (m *Manager) lockDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.opts.lockTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, m.opts.lockTimeout)
}

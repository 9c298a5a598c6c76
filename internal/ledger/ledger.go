// Package ledger holds the authoritative record of events and bookings and the
// capacity invariant: for every event the seats of its active bookings never
// exceed its capacity. The active seat total is always computed from bookings
// inside the caller's transaction; it is never cached.
package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/event-booking/internal/model"
)

// Tx is the transactional view of the store. Locks taken through it are held
// until the surrounding InTx call commits or rolls back.
type Tx interface {
	// LockEvent takes an exclusive, event-scoped lock and returns the event.
	// It blocks only other lockers of the same event.
	LockEvent(ctx context.Context, eventID uuid.UUID) (model.Event, error)
	// ActiveSeats sums seats of active bookings for the event as seen by
	// this transaction.
	ActiveSeats(ctx context.Context, eventID uuid.UUID) (int, error)
	InsertBooking(ctx context.Context, b model.Booking) error
	// LockBooking takes an exclusive lock on a single booking row.
	LockBooking(ctx context.Context, bookingID uuid.UUID) (model.Booking, error)
	SetBookingStatus(ctx context.Context, bookingID uuid.UUID, status model.BookingStatus) error

	InsertEvent(ctx context.Context, e model.Event) error
	SetEventStatus(ctx context.Context, eventID uuid.UUID, status model.EventStatus, at time.Time) error
	DeleteEvent(ctx context.Context, eventID uuid.UUID) error
}

// Cursor is a keyset position in a created_at DESC, id DESC listing.
type Cursor struct {
	CreatedAt time.Time
	ID        uuid.UUID
}

// After returns the cursor positioned after b.
func After(b model.Booking) *Cursor {
	return &Cursor{CreatedAt: b.CreatedAt, ID: b.ID}
}

// EventFilter narrows public event listings. Zero values mean "no bound".
type EventFilter struct {
	Status    model.EventStatus
	CreatedBy *uuid.UUID
	From      *time.Time
	To        *time.Time
	Query     string
	Limit     int
}

// Reader is the read side of the store. Every method is a single statement
// and therefore a consistent snapshot on its own.
type Reader interface {
	GetEvent(ctx context.Context, eventID uuid.UUID) (model.Event, error)
	// Usage returns the event capacity and its active seat total together.
	Usage(ctx context.Context, eventID uuid.UUID) (capacity, active int, err error)
	ListEvents(ctx context.Context, f EventFilter) ([]model.Event, error)

	GetBooking(ctx context.Context, bookingID uuid.UUID) (model.Booking, error)
	// ListUserBookings returns up to limit bookings of the user strictly after
	// the cursor, ordered by created_at DESC, id DESC. A nil cursor starts
	// from the newest booking.
	ListUserBookings(ctx context.Context, userID uuid.UUID, after *Cursor, limit int) ([]model.Booking, error)
	ListEventBookings(ctx context.Context, eventID uuid.UUID) ([]model.Booking, error)
}

// Store is the durable transactional store behind the ledger.
type Store interface {
	Reader
	// InTx runs fn inside one transaction. A nil return commits; an error or
	// panic rolls back. Lock waits honor ctx's deadline and surface as
	// ErrTimeout.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	Ping(ctx context.Context) error
}

// Ledger answers point-in-time capacity queries.
type Ledger struct {
	store Reader
}

func New(store Reader) *Ledger {
	return &Ledger{store: store}
}

// CurrentActiveSeats returns the sum of seats over the event's active bookings.
func (l *Ledger) CurrentActiveSeats(ctx context.Context, eventID uuid.UUID) (int, error) {
	_, active, err := l.store.Usage(ctx, eventID)
	if err != nil {
		return 0, err
	}
	return active, nil
}

// CapacityOf returns the event's capacity or ErrEventNotFound.
func (l *Ledger) CapacityOf(ctx context.Context, eventID uuid.UUID) (int, error) {
	capacity, _, err := l.store.Usage(ctx, eventID)
	if err != nil {
		return 0, err
	}
	return capacity, nil
}

// Remaining returns capacity minus active seats from a single snapshot.
func (l *Ledger) Remaining(ctx context.Context, eventID uuid.UUID) (int, error) {
	capacity, active, err := l.store.Usage(ctx, eventID)
	if err != nil {
		return 0, err
	}
	if active > capacity {
		return 0, nil
	}
	return capacity - active, nil
}

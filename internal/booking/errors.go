package booking

import (
	"context"
	"errors"

	"github.com/iliyamo/event-booking/internal/ledger"
)

// Failures surfaced by the admission controller and lifecycle manager.
// Store-level kinds are shared with the ledger so errors.Is works across
// both layers.
var (
	ErrCapacityExceeded = errors.New("capacity exceeded")
	ErrEventNotBookable = errors.New("event not bookable")
	ErrAlreadyCanceled  = errors.New("booking already canceled")
	ErrNotAuthorized    = errors.New("not authorized")

	ErrEventNotFound    = ledger.ErrEventNotFound
	ErrBookingNotFound  = ledger.ErrBookingNotFound
	ErrTimeout          = ledger.ErrTimeout
	ErrStoreUnavailable = ledger.ErrStoreUnavailable
	ErrInvalidReference = ledger.ErrInvalidReference

	// ErrCanceled means the caller gave up before the operation finished.
	ErrCanceled = context.Canceled

	ErrInvalidSeats      = errors.New("seats must be at least 1")
	ErrInvalidEvent      = errors.New("invalid event")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrEventHasBookings  = errors.New("event has active bookings")
)

// IsRetryable reports whether a caller may retry err automatically. Every
// other failure is deterministic for the same input and ledger state.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrStoreUnavailable)
}

// Code returns a stable, machine-readable identifier for err.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrCapacityExceeded):
		return "capacity_exceeded"
	case errors.Is(err, ErrEventNotFound):
		return "event_not_found"
	case errors.Is(err, ErrEventNotBookable):
		return "event_not_bookable"
	case errors.Is(err, ErrBookingNotFound):
		return "booking_not_found"
	case errors.Is(err, ErrAlreadyCanceled):
		return "already_canceled"
	case errors.Is(err, ErrNotAuthorized):
		return "not_authorized"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrStoreUnavailable):
		return "store_unavailable"
	case errors.Is(err, ErrCanceled):
		return "canceled"
	case errors.Is(err, ErrInvalidSeats):
		return "invalid_seats"
	case errors.Is(err, ErrInvalidEvent):
		return "invalid_event"
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, ErrEventHasBookings):
		return "event_has_bookings"
	case errors.Is(err, ErrInvalidReference):
		return "invalid_reference"
	}
	return "internal"
}

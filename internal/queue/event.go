// Package queue defines the booking lifecycle messages exchanged over
// RabbitMQ and the audit consumer that records them.
package queue

import (
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/event-booking/internal/model"
)

// Routing keys on the booking topic exchange.
const (
	TypeBookingCreated  = "booking.created"
	TypeBookingCanceled = "booking.canceled"
)

// BookingEvent is published after a booking change has been committed. It
// carries enough for consumers to log or notify without querying the store.
type BookingEvent struct {
	Type       string    `json:"type"`
	BookingID  uuid.UUID `json:"booking_id"`
	EventID    uuid.UUID `json:"event_id"`
	UserID     uuid.UUID `json:"user_id"`
	Seats      int       `json:"seats"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
	OccurredAt time.Time `json:"occurred_at"`
}

// NewBookingEvent derives the message type from the booking status.
func NewBookingEvent(b model.Booking, at time.Time) BookingEvent {
	typ := TypeBookingCreated
	if b.Status == model.BookingCanceled {
		typ = TypeBookingCanceled
	}
	return BookingEvent{
		Type:       typ,
		BookingID:  b.ID,
		EventID:    b.EventID,
		UserID:     b.UserID,
		Seats:      b.Seats,
		Status:     b.Status.String(),
		CreatedAt:  b.CreatedAt.UTC(),
		OccurredAt: at.UTC(),
	}
}

package model

import (
	"time"

	"github.com/google/uuid"
)

// BookingStatus is the state of a booking. The only transition is
// active -> canceled.
type BookingStatus string

const (
	BookingActive   BookingStatus = "active"
	BookingCanceled BookingStatus = "canceled"
)

func (s BookingStatus) Valid() bool {
	switch s {
	case BookingActive, BookingCanceled:
		return true
	}
	return false
}

func (s BookingStatus) String() string { return string(s) }

// Booking records a quantity of seats a user holds for one event.
type Booking struct {
	ID        uuid.UUID     `json:"id"`
	EventID   uuid.UUID     `json:"event_id"`
	UserID    uuid.UUID     `json:"user_id"`
	Seats     int           `json:"seats"`
	Status    BookingStatus `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
}

// Counts reports whether the booking counts against event capacity.
func (b Booking) Counts() bool {
	switch b.Status {
	case BookingActive:
		return true
	case BookingCanceled:
		return false
	}
	return false
}

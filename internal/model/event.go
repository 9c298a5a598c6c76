package model

import (
	"time"

	"github.com/google/uuid"
)

// EventStatus is the publication state of an event.
type EventStatus string

const (
	EventDraft     EventStatus = "draft"
	EventPublished EventStatus = "published"
	EventCanceled  EventStatus = "canceled"
)

// Valid reports whether s is one of the known event statuses.
func (s EventStatus) Valid() bool {
	switch s {
	case EventDraft, EventPublished, EventCanceled:
		return true
	}
	return false
}

func (s EventStatus) String() string { return string(s) }

// CanTransition reports whether an event may move from s to next.
// Canceled is terminal; published events cannot go back to draft.
func (s EventStatus) CanTransition(next EventStatus) bool {
	switch s {
	case EventDraft:
		return next == EventPublished || next == EventCanceled
	case EventPublished:
		return next == EventCanceled
	case EventCanceled:
		return false
	}
	return false
}

// Event represents a capacity-limited occurrence that users can book seats for.
//
// Fields:
//
//	ID          – primary key (UUID).
//	Title       – display title.
//	Description – optional free text.
//	Location    – optional free-form location.
//	ResourceID  – optional venue the event takes place in.
//	Capacity    – maximum number of active seats.
//	Status      – draft, published or canceled.
//	StartsAt    – start of the event window (always before EndsAt).
//	EndsAt      – end of the event window.
//	CreatedBy   – organizer who owns the event.
//	CreatedAt   – creation timestamp.
//	UpdatedAt   – last update timestamp.
type Event struct {
	ID          uuid.UUID   `json:"id"`
	Title       string      `json:"title"`
	Description *string     `json:"description,omitempty"`
	Location    *string     `json:"location,omitempty"`
	ResourceID  *uuid.UUID  `json:"resource_id,omitempty"`
	Capacity    int         `json:"capacity"`
	Status      EventStatus `json:"status"`
	StartsAt    time.Time   `json:"starts_at"`
	EndsAt      time.Time   `json:"ends_at"`
	CreatedBy   uuid.UUID   `json:"created_by"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// AcceptsBookings reports whether the event is published and has not started
// yet at now. Remaining capacity is a ledger concern and is not checked here.
func (e Event) AcceptsBookings(now time.Time) bool {
	switch e.Status {
	case EventPublished:
		return now.Before(e.StartsAt)
	case EventDraft, EventCanceled:
		return false
	}
	return false
}

// OwnedBy reports whether p may manage the event.
func (e Event) OwnedBy(p Principal) bool {
	return p.Role.Privileged() || e.CreatedBy == p.UserID
}

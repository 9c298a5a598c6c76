// Package memstore is an in-process ledger.Store. Event and booking locks are
// one-slot channels so waiting honors context deadlines the same way a
// database lock wait does. Writes are staged per transaction and applied on
// commit.
package memstore

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/event-booking/internal/ledger"
	"github.com/iliyamo/event-booking/internal/model"
)

type Store struct {
	mu       sync.RWMutex
	events   map[uuid.UUID]model.Event
	bookings map[uuid.UUID]model.Booking

	lockMu sync.Mutex
	locks  map[string]chan struct{}
}

var _ ledger.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		events:   make(map[uuid.UUID]model.Event),
		bookings: make(map[uuid.UUID]model.Booking),
		locks:    make(map[string]chan struct{}),
	}
}

func (s *Store) Ping(ctx context.Context) error { return ctx.Err() }

func (s *Store) lockFor(key string) chan struct{} {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	ch, ok := s.locks[key]
	if !ok {
		ch = make(chan struct{}, 1)
		s.locks[key] = ch
	}
	return ch
}

func (s *Store) acquire(ctx context.Context, key string) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, ledger.ContextError(err)
	}
	ch := s.lockFor(key)
	select {
	case ch <- struct{}{}:
		return func() { <-ch }, nil
	case <-ctx.Done():
		return nil, ledger.ContextError(fmt.Errorf("waiting for %s: %w", key, ctx.Err()))
	}
}

// InTx runs fn with a fresh transaction. Staged writes become visible only
// if fn returns nil and ctx is still live.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx ledger.Tx) error) error {
	t := &tx{
		s:             s,
		held:          make(map[string]bool),
		events:        make(map[uuid.UUID]model.Event),
		deletedEvents: make(map[uuid.UUID]bool),
		bookings:      make(map[uuid.UUID]model.Booking),
	}
	defer t.release()

	if err := fn(ctx, t); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return ledger.ContextError(fmt.Errorf("commit: %w", err))
	}
	t.commit()
	return nil
}

func (s *Store) GetEvent(ctx context.Context, eventID uuid.UUID) (model.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.events[eventID]
	if !ok {
		return model.Event{}, ledger.ErrEventNotFound
	}
	return e, nil
}

func (s *Store) Usage(ctx context.Context, eventID uuid.UUID) (int, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.events[eventID]
	if !ok {
		return 0, 0, ledger.ErrEventNotFound
	}
	active := 0
	for _, b := range s.bookings {
		if b.EventID == eventID && b.Counts() {
			active += b.Seats
		}
	}
	return e.Capacity, active, nil
}

func (s *Store) ListEvents(ctx context.Context, f ledger.EventFilter) ([]model.Event, error) {
	s.mu.RLock()
	out := make([]model.Event, 0)
	q := strings.ToLower(strings.TrimSpace(f.Query))
	for _, e := range s.events {
		if f.Status != "" && e.Status != f.Status {
			continue
		}
		if f.CreatedBy != nil && e.CreatedBy != *f.CreatedBy {
			continue
		}
		if f.From != nil && e.StartsAt.Before(*f.From) {
			continue
		}
		if f.To != nil && !e.StartsAt.Before(*f.To) {
			continue
		}
		if q != "" && !strings.Contains(strings.ToLower(e.Title), q) {
			continue
		}
		out = append(out, e)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartsAt.Equal(out[j].StartsAt) {
			return out[i].StartsAt.Before(out[j].StartsAt)
		}
		return bytes.Compare(out[i].ID[:], out[j].ID[:]) < 0
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *Store) GetBooking(ctx context.Context, bookingID uuid.UUID) (model.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bookings[bookingID]
	if !ok {
		return model.Booking{}, ledger.ErrBookingNotFound
	}
	return b, nil
}

// newerFirst orders bookings by created_at DESC, id DESC.
func newerFirst(a, b model.Booking) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return bytes.Compare(a.ID[:], b.ID[:]) > 0
}

func (s *Store) ListUserBookings(ctx context.Context, userID uuid.UUID, after *ledger.Cursor, limit int) ([]model.Booking, error) {
	s.mu.RLock()
	out := make([]model.Booking, 0)
	for _, b := range s.bookings {
		if b.UserID != userID {
			continue
		}
		if after != nil && !newerFirst(model.Booking{CreatedAt: after.CreatedAt, ID: after.ID}, b) {
			continue
		}
		out = append(out, b)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return newerFirst(out[i], out[j]) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) ListEventBookings(ctx context.Context, eventID uuid.UUID) ([]model.Booking, error) {
	s.mu.RLock()
	out := make([]model.Booking, 0)
	for _, b := range s.bookings {
		if b.EventID == eventID {
			out = append(out, b)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return newerFirst(out[i], out[j]) })
	return out, nil
}

type tx struct {
	s        *Store
	held     map[string]bool
	releases []func()

	events        map[uuid.UUID]model.Event
	deletedEvents map[uuid.UUID]bool
	bookings      map[uuid.UUID]model.Booking
}

func (t *tx) lock(ctx context.Context, key string) error {
	if t.held[key] {
		return nil
	}
	release, err := t.s.acquire(ctx, key)
	if err != nil {
		return err
	}
	t.held[key] = true
	t.releases = append(t.releases, release)
	return nil
}

func (t *tx) release() {
	for i := len(t.releases) - 1; i >= 0; i-- {
		t.releases[i]()
	}
	t.releases = nil
}

func (t *tx) commit() {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	for id := range t.deletedEvents {
		delete(t.s.events, id)
		for bid, b := range t.s.bookings {
			if b.EventID == id {
				delete(t.s.bookings, bid)
			}
		}
	}
	for id, e := range t.events {
		t.s.events[id] = e
	}
	for id, b := range t.bookings {
		t.s.bookings[id] = b
	}
}

func (t *tx) event(id uuid.UUID) (model.Event, bool) {
	if t.deletedEvents[id] {
		return model.Event{}, false
	}
	if e, ok := t.events[id]; ok {
		return e, true
	}
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	e, ok := t.s.events[id]
	return e, ok
}

func (t *tx) booking(id uuid.UUID) (model.Booking, bool) {
	if b, ok := t.bookings[id]; ok {
		return b, true
	}
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	b, ok := t.s.bookings[id]
	if ok && t.deletedEvents[b.EventID] {
		return model.Booking{}, false
	}
	return b, ok
}

func (t *tx) LockEvent(ctx context.Context, eventID uuid.UUID) (model.Event, error) {
	if err := t.lock(ctx, "event:"+eventID.String()); err != nil {
		return model.Event{}, err
	}
	e, ok := t.event(eventID)
	if !ok {
		return model.Event{}, ledger.ErrEventNotFound
	}
	return e, nil
}

func (t *tx) ActiveSeats(ctx context.Context, eventID uuid.UUID) (int, error) {
	seen := make(map[uuid.UUID]bool, len(t.bookings))
	active := 0
	for id, b := range t.bookings {
		seen[id] = true
		if b.EventID == eventID && b.Counts() {
			active += b.Seats
		}
	}
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	for id, b := range t.s.bookings {
		if seen[id] || b.EventID != eventID || !b.Counts() {
			continue
		}
		active += b.Seats
	}
	return active, nil
}

func (t *tx) InsertBooking(ctx context.Context, b model.Booking) error {
	if _, ok := t.event(b.EventID); !ok {
		return ledger.ErrEventNotFound
	}
	if _, exists := t.booking(b.ID); exists {
		return fmt.Errorf("%w: booking %s", ledger.ErrDuplicate, b.ID)
	}
	t.bookings[b.ID] = b
	return nil
}

func (t *tx) LockBooking(ctx context.Context, bookingID uuid.UUID) (model.Booking, error) {
	if err := t.lock(ctx, "booking:"+bookingID.String()); err != nil {
		return model.Booking{}, err
	}
	b, ok := t.booking(bookingID)
	if !ok {
		return model.Booking{}, ledger.ErrBookingNotFound
	}
	return b, nil
}

func (t *tx) SetBookingStatus(ctx context.Context, bookingID uuid.UUID, status model.BookingStatus) error {
	b, ok := t.booking(bookingID)
	if !ok {
		return ledger.ErrBookingNotFound
	}
	b.Status = status
	t.bookings[bookingID] = b
	return nil
}

func (t *tx) InsertEvent(ctx context.Context, e model.Event) error {
	if _, exists := t.event(e.ID); exists {
		return fmt.Errorf("%w: event %s", ledger.ErrDuplicate, e.ID)
	}
	t.events[e.ID] = e
	return nil
}

func (t *tx) SetEventStatus(ctx context.Context, eventID uuid.UUID, status model.EventStatus, at time.Time) error {
	e, ok := t.event(eventID)
	if !ok {
		return ledger.ErrEventNotFound
	}
	e.Status = status
	e.UpdatedAt = at
	t.events[eventID] = e
	return nil
}

func (t *tx) DeleteEvent(ctx context.Context, eventID uuid.UUID) error {
	if _, ok := t.event(eventID); !ok {
		return ledger.ErrEventNotFound
	}
	delete(t.events, eventID)
	for id, b := range t.bookings {
		if b.EventID == eventID {
			delete(t.bookings, id)
		}
	}
	t.deletedEvents[eventID] = true
	return nil
}

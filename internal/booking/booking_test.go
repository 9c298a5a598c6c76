package booking

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/event-booking/internal/clock"
	"github.com/iliyamo/event-booking/internal/ledger/memstore"
	"github.com/iliyamo/event-booking/internal/model"
)

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// tickClock advances by a millisecond on every read so bookings get distinct
// creation times.
type tickClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *tickClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Millisecond)
	return c.now
}

type fixture struct {
	store     *memstore.Store
	ctrl      *Controller
	mgr       *Manager
	organizer model.Principal
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	store := memstore.New()
	opts = append([]Option{WithClock(clock.NewFixed(baseTime))}, opts...)
	return &fixture{
		store:     store,
		ctrl:      NewController(store, opts...),
		mgr:       NewManager(store, opts...),
		organizer: newUser(),
	}
}

func newUser() model.Principal {
	return model.Principal{UserID: uuid.New(), Role: model.RoleUser}
}

func newAdmin() model.Principal {
	return model.Principal{UserID: uuid.New(), Role: model.RoleAdmin}
}

func (f *fixture) draftEvent(t *testing.T, capacity int) model.Event {
	t.Helper()
	e, err := f.mgr.CreateEvent(context.Background(), f.organizer, EventInput{
		Title:    "Open air concert",
		Capacity: capacity,
		StartsAt: baseTime.Add(24 * time.Hour),
		EndsAt:   baseTime.Add(27 * time.Hour),
	})
	require.NoError(t, err)
	return e
}

func (f *fixture) publishedEvent(t *testing.T, capacity int) model.Event {
	t.Helper()
	e := f.draftEvent(t, capacity)
	e, err := f.mgr.PublishEvent(context.Background(), f.organizer, e.ID)
	require.NoError(t, err)
	return e
}

func (f *fixture) activeSeats(t *testing.T, eventID uuid.UUID) int {
	t.Helper()
	_, active, err := f.store.Usage(context.Background(), eventID)
	require.NoError(t, err)
	return active
}

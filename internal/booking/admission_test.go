package booking

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/iliyamo/event-booking/internal/ledger"
	"github.com/iliyamo/event-booking/internal/model"
)

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) BookingChanged(ctx context.Context, b model.Booking) error {
	args := m.Called(ctx, b)
	return args.Error(0)
}

func TestCreateBooking_Success(t *testing.T) {
	f := newFixture(t)
	e := f.publishedEvent(t, 10)
	u := newUser()

	b, err := f.ctrl.CreateBooking(context.Background(), u, e.ID, 3)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, b.ID)
	assert.Equal(t, e.ID, b.EventID)
	assert.Equal(t, u.UserID, b.UserID)
	assert.Equal(t, 3, b.Seats)
	assert.Equal(t, model.BookingActive, b.Status)
	assert.Equal(t, baseTime, b.CreatedAt)
	assert.Equal(t, 3, f.activeSeats(t, e.ID))
}

func TestCreateBooking_Boundary(t *testing.T) {
	f := newFixture(t)
	e := f.publishedEvent(t, 7)
	ctx := context.Background()

	_, err := f.ctrl.CreateBooking(ctx, newUser(), e.ID, 7)
	require.NoError(t, err)

	_, err = f.ctrl.CreateBooking(ctx, newUser(), e.ID, 1)
	require.ErrorIs(t, err, ErrCapacityExceeded)
	assert.False(t, IsRetryable(err))
	assert.Equal(t, 7, f.activeSeats(t, e.ID))
}

func TestCreateBooking_ZeroCapacity(t *testing.T) {
	f := newFixture(t)
	e := f.publishedEvent(t, 0)

	_, err := f.ctrl.CreateBooking(context.Background(), newUser(), e.ID, 1)
	assert.ErrorIs(t, err, ErrCapacityExceeded)
}

func TestCreateBooking_Preconditions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	published := f.publishedEvent(t, 5)
	draft := f.draftEvent(t, 5)
	canceled := f.publishedEvent(t, 5)
	_, err := f.mgr.CancelEvent(ctx, f.organizer, canceled.ID)
	require.NoError(t, err)

	started, err := f.mgr.CreateEvent(ctx, f.organizer, EventInput{
		Title:    "Already running",
		Capacity: 5,
		StartsAt: baseTime.Add(-time.Hour),
		EndsAt:   baseTime.Add(time.Hour),
	})
	require.NoError(t, err)
	_, err = f.mgr.PublishEvent(ctx, f.organizer, started.ID)
	require.NoError(t, err)

	tests := []struct {
		name    string
		eventID uuid.UUID
		seats   int
		want    error
	}{
		{"zero seats", published.ID, 0, ErrInvalidSeats},
		{"negative seats", published.ID, -2, ErrInvalidSeats},
		{"unknown event", uuid.New(), 1, ErrEventNotFound},
		{"draft event", draft.ID, 1, ErrEventNotBookable},
		{"canceled event", canceled.ID, 1, ErrEventNotBookable},
		{"started event", started.ID, 1, ErrEventNotBookable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.ctrl.CreateBooking(ctx, newUser(), tt.eventID, tt.seats)
			assert.ErrorIs(t, err, tt.want)
		})
	}
	assert.Equal(t, 0, f.activeSeats(t, published.ID))
}

func TestCreateBooking_NoLostUpdate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for round := 0; round < 50; round++ {
		e := f.publishedEvent(t, 10)
		start := make(chan struct{})
		errs := make([]error, 2)

		var wg sync.WaitGroup
		for i := range errs {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				<-start
				_, errs[i] = f.ctrl.CreateBooking(ctx, newUser(), e.ID, 6)
			}(i)
		}
		close(start)
		wg.Wait()

		var ok, exceeded int
		for _, err := range errs {
			switch {
			case err == nil:
				ok++
			case errors.Is(err, ErrCapacityExceeded):
				exceeded++
			default:
				t.Fatalf("round %d: unexpected error %v", round, err)
			}
		}
		require.Equal(t, 1, ok, "round %d", round)
		require.Equal(t, 1, exceeded, "round %d", round)
		require.Equal(t, 6, f.activeSeats(t, e.ID))
	}
}

func TestInvariantUnderConcurrentCreateAndCancel(t *testing.T) {
	f := newFixture(t)
	e := f.publishedEvent(t, 20)
	ctx := context.Background()

	var granted atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < 64; i++ {
		g.Go(func() error {
			u := newUser()
			b, err := f.ctrl.CreateBooking(gctx, u, e.ID, i%4+1)
			if err != nil && !errors.Is(err, ErrCapacityExceeded) {
				return err
			}
			if _, active, uerr := f.store.Usage(gctx, e.ID); uerr != nil || active > 20 {
				return errors.Join(uerr, errors.New("invariant violated"))
			}
			if err != nil {
				return nil
			}
			granted.Add(1)
			if i%3 == 0 {
				if _, err := f.ctrl.CancelBooking(gctx, u, b.ID); err != nil {
					return err
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.Positive(t, granted.Load())

	bookings, err := f.store.ListEventBookings(ctx, e.ID)
	require.NoError(t, err)
	sum := 0
	for _, b := range bookings {
		if b.Counts() {
			sum += b.Seats
		}
	}
	assert.LessOrEqual(t, sum, 20)
	assert.Equal(t, sum, f.activeSeats(t, e.ID))
}

func TestCancellationFreesCapacity(t *testing.T) {
	f := newFixture(t)
	e := f.publishedEvent(t, 5)
	ctx := context.Background()
	a, u2 := newUser(), newUser()

	first, err := f.ctrl.CreateBooking(ctx, a, e.ID, 5)
	require.NoError(t, err)

	_, err = f.ctrl.CreateBooking(ctx, u2, e.ID, 1)
	require.ErrorIs(t, err, ErrCapacityExceeded)

	canceled, err := f.ctrl.CancelBooking(ctx, a, first.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingCanceled, canceled.Status)

	_, err = f.ctrl.CreateBooking(ctx, u2, e.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, f.activeSeats(t, e.ID))
}

func TestCancelBooking_AlreadyCanceled(t *testing.T) {
	f := newFixture(t)
	e := f.publishedEvent(t, 5)
	ctx := context.Background()
	u := newUser()

	b, err := f.ctrl.CreateBooking(ctx, u, e.ID, 2)
	require.NoError(t, err)
	_, err = f.ctrl.CreateBooking(ctx, newUser(), e.ID, 1)
	require.NoError(t, err)

	_, err = f.ctrl.CancelBooking(ctx, u, b.ID)
	require.NoError(t, err)
	before := f.activeSeats(t, e.ID)

	_, err = f.ctrl.CancelBooking(ctx, u, b.ID)
	require.ErrorIs(t, err, ErrAlreadyCanceled)
	assert.Equal(t, before, f.activeSeats(t, e.ID))
	assert.Equal(t, 1, before)
}

func TestCancelBooking_Authorization(t *testing.T) {
	f := newFixture(t)
	e := f.publishedEvent(t, 5)
	ctx := context.Background()
	owner := newUser()

	b, err := f.ctrl.CreateBooking(ctx, owner, e.ID, 2)
	require.NoError(t, err)

	_, err = f.ctrl.CancelBooking(ctx, newUser(), b.ID)
	require.ErrorIs(t, err, ErrNotAuthorized)
	assert.Equal(t, 2, f.activeSeats(t, e.ID))

	// The event organizer is not privileged over bookings.
	_, err = f.ctrl.CancelBooking(ctx, f.organizer, b.ID)
	require.ErrorIs(t, err, ErrNotAuthorized)

	got, err := f.ctrl.CancelBooking(ctx, newAdmin(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingCanceled, got.Status)

	_, err = f.ctrl.CancelBooking(ctx, owner, uuid.New())
	assert.ErrorIs(t, err, ErrBookingNotFound)
}

func TestIsolationAcrossEvents(t *testing.T) {
	f := newFixture(t, WithLockTimeout(100*time.Millisecond))
	a := f.publishedEvent(t, 10)
	b := f.publishedEvent(t, 10)
	ctx := context.Background()

	locked := make(chan struct{})
	release := make(chan struct{})
	holder := make(chan error, 1)
	go func() {
		holder <- f.store.InTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
			if _, err := tx.LockEvent(ctx, a.ID); err != nil {
				return err
			}
			close(locked)
			<-release
			return nil
		})
	}()
	<-locked

	started := time.Now()
	_, err := f.ctrl.CreateBooking(ctx, newUser(), b.ID, 4)
	require.NoError(t, err)
	assert.Less(t, time.Since(started), 100*time.Millisecond)

	// Event A stays blocked until its lock holder finishes, and the timed
	// out attempt leaves nothing behind.
	_, err = f.ctrl.CreateBooking(ctx, newUser(), a.ID, 4)
	require.ErrorIs(t, err, ErrTimeout)
	assert.True(t, IsRetryable(err))
	assert.Equal(t, 0, f.activeSeats(t, a.ID))

	close(release)
	require.NoError(t, <-holder)

	_, err = f.ctrl.CreateBooking(ctx, newUser(), a.ID, 4)
	require.NoError(t, err)
}

func TestCreateBooking_CallerDeadline(t *testing.T) {
	f := newFixture(t, WithLockTimeout(time.Minute))
	e := f.publishedEvent(t, 3)

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	_, err := f.ctrl.CreateBooking(ctx, newUser(), e.ID, 1)
	require.ErrorIs(t, err, ErrTimeout)
	assert.True(t, IsRetryable(err))
	assert.Equal(t, 0, f.activeSeats(t, e.ID))
}

func TestCreateBooking_CallerCanceled(t *testing.T) {
	f := newFixture(t, WithLockTimeout(time.Minute))
	e := f.publishedEvent(t, 3)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.ctrl.CreateBooking(ctx, newUser(), e.ID, 1)
	require.ErrorIs(t, err, ErrCanceled)
	assert.NotErrorIs(t, err, ErrTimeout)
	assert.False(t, IsRetryable(err))
	assert.Equal(t, "canceled", Code(err))
	assert.Equal(t, 0, f.activeSeats(t, e.ID))
}

func TestCreateBooking_Notifies(t *testing.T) {
	n := new(mockNotifier)
	f := newFixture(t, WithNotifier(n))
	e := f.publishedEvent(t, 3)
	u := newUser()

	n.On("BookingChanged", mock.Anything, mock.MatchedBy(func(b model.Booking) bool {
		return b.Status == model.BookingActive && b.Seats == 2
	})).Return(nil).Once()
	n.On("BookingChanged", mock.Anything, mock.MatchedBy(func(b model.Booking) bool {
		return b.Status == model.BookingCanceled
	})).Return(errors.New("broker down")).Once()

	b, err := f.ctrl.CreateBooking(context.Background(), u, e.ID, 2)
	require.NoError(t, err)

	// A failed notification does not undo the committed cancellation.
	_, err = f.ctrl.CancelBooking(context.Background(), u, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, f.activeSeats(t, e.ID))

	n.AssertExpectations(t)
}

func TestCreateBooking_RejectedNotNotified(t *testing.T) {
	n := new(mockNotifier)
	f := newFixture(t, WithNotifier(n))
	e := f.publishedEvent(t, 1)

	_, err := f.ctrl.CreateBooking(context.Background(), newUser(), e.ID, 2)
	require.ErrorIs(t, err, ErrCapacityExceeded)
	n.AssertNotCalled(t, "BookingChanged", mock.Anything, mock.Anything)
}

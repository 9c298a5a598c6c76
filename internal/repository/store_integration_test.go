package repository

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/errgroup"

	"github.com/iliyamo/event-booking/internal/booking"
	"github.com/iliyamo/event-booking/internal/database"
	"github.com/iliyamo/event-booking/internal/ledger"
	"github.com/iliyamo/event-booking/internal/model"
)

// openTestDB connects to TEST_MYSQL_DSN and applies the schema. Tests using
// it are skipped when the variable is unset.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("TEST_MYSQL_DSN")
	if dsn == "" {
		t.Skip("Skipping integration test. Set TEST_MYSQL_DSN to run")
	}
	db, err := sql.Open("mysql", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, db.PingContext(ctx))
	require.NoError(t, database.MigrateMySQL(ctx, db))
	return db
}

func seedUser(t *testing.T, db *sql.DB, role model.Role) model.User {
	t.Helper()
	u, err := NewUserRepo(db).Create(context.Background(), uuid.NewString()+"@example.test", "password123", role, bcrypt.MinCost)
	require.NoError(t, err)
	return u
}

func seedEvent(t *testing.T, s *Store, owner uuid.UUID, capacity int) model.Event {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Microsecond)
	e := model.Event{
		ID:        uuid.New(),
		Title:     "integration " + uuid.NewString()[:8],
		Capacity:  capacity,
		Status:    model.EventPublished,
		StartsAt:  now.Add(48 * time.Hour),
		EndsAt:    now.Add(50 * time.Hour),
		CreatedBy: owner,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, s.InTx(context.Background(), func(ctx context.Context, tx ledger.Tx) error {
		return tx.InsertEvent(ctx, e)
	}))
	return e
}

func TestStore_CapacityUnderContention(t *testing.T) {
	db := openTestDB(t)
	s := NewStore(db)
	owner := seedUser(t, db, model.RoleAdmin)
	ev := seedEvent(t, s, owner.ID, 10)

	ctrl := booking.NewController(s)
	users := make([]model.User, 20)
	for i := range users {
		users[i] = seedUser(t, db, model.RoleUser)
	}

	var g errgroup.Group
	for _, u := range users {
		p := model.Principal{UserID: u.ID, Role: u.Role}
		g.Go(func() error {
			_, err := ctrl.CreateBooking(context.Background(), p, ev.ID, 1)
			if err != nil && !booking.IsRetryable(err) && booking.Code(err) != "capacity_exceeded" {
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	capacity, active, err := s.Usage(context.Background(), ev.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, capacity)
	assert.LessOrEqual(t, active, capacity)
}

func TestStore_KeysetPaging(t *testing.T) {
	db := openTestDB(t)
	s := NewStore(db)
	owner := seedUser(t, db, model.RoleAdmin)
	ev := seedEvent(t, s, owner.ID, 100)
	u := seedUser(t, db, model.RoleUser)

	base := time.Now().UTC().Truncate(time.Microsecond)
	for i := 0; i < 5; i++ {
		b := model.Booking{ID: uuid.New(), EventID: ev.ID, UserID: u.ID, Seats: 1, Status: model.BookingActive, CreatedAt: base.Add(time.Duration(i) * time.Second)}
		require.NoError(t, s.InTx(context.Background(), func(ctx context.Context, tx ledger.Tx) error {
			return tx.InsertBooking(ctx, b)
		}))
	}

	first, err := s.ListUserBookings(context.Background(), u.ID, nil, 3)
	require.NoError(t, err)
	require.Len(t, first, 3)
	rest, err := s.ListUserBookings(context.Background(), u.ID, ledger.After(first[2]), 3)
	require.NoError(t, err)
	require.Len(t, rest, 2)
	assert.True(t, rest[0].CreatedAt.Before(first[2].CreatedAt))
}

func TestStore_UnknownRowsMapToSentinels(t *testing.T) {
	db := openTestDB(t)
	s := NewStore(db)

	_, err := s.GetEvent(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ledger.ErrEventNotFound)
	_, err = s.GetBooking(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ledger.ErrBookingNotFound)
	_, err = NewUserRepo(db).GetByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrUserNotFound)
}

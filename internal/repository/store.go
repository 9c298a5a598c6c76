package repository

import (
	"context"
	"database/sql"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/event-booking/internal/ledger"
	"github.com/iliyamo/event-booking/internal/model"
)

// defaultLockWait is InnoDB's own default, used when ctx has no deadline.
const defaultLockWait = 50

// Store is the MySQL implementation of ledger.Store. Transactions run at
// READ COMMITTED so the active-seat sum taken after the event row lock sees
// every booking committed by earlier lock holders.
type Store struct {
	db       *sql.DB
	Events   *EventRepo
	Bookings *BookingRepo
}

var _ ledger.Store = (*Store)(nil)

func NewStore(db *sql.DB) *Store {
	return &Store{
		db:       db,
		Events:   NewEventRepo(db),
		Bookings: NewBookingRepo(db),
	}
}

func (s *Store) Ping(ctx context.Context) error {
	return translate(s.db.PingContext(ctx))
}

// InTx begins a transaction, runs fn and commits when fn returns nil. Any
// error or panic rolls back.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx ledger.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return translate(err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	// InnoDB only takes whole seconds; the driver's ctx watcher covers the rest.
	if _, err := tx.ExecContext(ctx, "SET SESSION innodb_lock_wait_timeout = ?", lockWaitSeconds(ctx)); err != nil {
		return translate(err)
	}

	if err := fn(ctx, &mysqlTx{tx: tx, s: s}); err != nil {
		return translate(err)
	}
	if err := ctx.Err(); err != nil {
		return translate(err)
	}
	if err := tx.Commit(); err != nil {
		return translate(err)
	}
	committed = true
	return nil
}

func lockWaitSeconds(ctx context.Context) int {
	dl, ok := ctx.Deadline()
	if !ok {
		return defaultLockWait
	}
	secs := int(math.Ceil(time.Until(dl).Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}

func (s *Store) GetEvent(ctx context.Context, id uuid.UUID) (model.Event, error) {
	return s.Events.GetByID(ctx, id)
}

func (s *Store) Usage(ctx context.Context, id uuid.UUID) (int, int, error) {
	return s.Events.Usage(ctx, id)
}

func (s *Store) ListEvents(ctx context.Context, f ledger.EventFilter) ([]model.Event, error) {
	return s.Events.List(ctx, f)
}

func (s *Store) GetBooking(ctx context.Context, id uuid.UUID) (model.Booking, error) {
	return s.Bookings.GetByID(ctx, id)
}

func (s *Store) ListUserBookings(ctx context.Context, userID uuid.UUID, after *ledger.Cursor, limit int) ([]model.Booking, error) {
	return s.Bookings.ListByUser(ctx, userID, after, limit)
}

func (s *Store) ListEventBookings(ctx context.Context, eventID uuid.UUID) ([]model.Booking, error) {
	return s.Bookings.ListByEvent(ctx, eventID)
}

// mysqlTx adapts the repositories' *Tx methods to ledger.Tx.
type mysqlTx struct {
	tx *sql.Tx
	s  *Store
}

func (t *mysqlTx) LockEvent(ctx context.Context, id uuid.UUID) (model.Event, error) {
	e, err := t.s.Events.LockTx(ctx, t.tx, id)
	return e, translate(err)
}

func (t *mysqlTx) ActiveSeats(ctx context.Context, eventID uuid.UUID) (int, error) {
	n, err := t.s.Bookings.ActiveSeatsTx(ctx, t.tx, eventID)
	return n, translate(err)
}

func (t *mysqlTx) InsertBooking(ctx context.Context, b model.Booking) error {
	return translate(t.s.Bookings.CreateTx(ctx, t.tx, b))
}

func (t *mysqlTx) LockBooking(ctx context.Context, id uuid.UUID) (model.Booking, error) {
	b, err := t.s.Bookings.LockTx(ctx, t.tx, id)
	return b, translate(err)
}

func (t *mysqlTx) SetBookingStatus(ctx context.Context, id uuid.UUID, status model.BookingStatus) error {
	return translate(t.s.Bookings.UpdateStatusTx(ctx, t.tx, id, status))
}

func (t *mysqlTx) InsertEvent(ctx context.Context, e model.Event) error {
	return translate(t.s.Events.CreateTx(ctx, t.tx, e))
}

func (t *mysqlTx) SetEventStatus(ctx context.Context, id uuid.UUID, status model.EventStatus, at time.Time) error {
	return translate(t.s.Events.UpdateStatusTx(ctx, t.tx, id, status, at))
}

func (t *mysqlTx) DeleteEvent(ctx context.Context, id uuid.UUID) error {
	return translate(t.s.Events.DeleteTx(ctx, t.tx, id))
}

package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"github.com/iliyamo/event-booking/internal/ledger"
	"github.com/iliyamo/event-booking/internal/model"
)

const bookingColumns = `id, event_id, user_id, seats, status, created_at`

// BookingRepo provides reads and transactional writes for bookings. All
// timestamps are stored in UTC.
type BookingRepo struct {
	db *sql.DB
}

func NewBookingRepo(db *sql.DB) *BookingRepo { return &BookingRepo{db: db} }

func scanBooking(row rowScanner) (model.Booking, error) {
	var b model.Booking
	err := row.Scan(&b.ID, &b.EventID, &b.UserID, &b.Seats, &b.Status, &b.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Booking{}, ledger.ErrBookingNotFound
	}
	return b, err
}

func scanBookings(rows *sql.Rows) ([]model.Booking, error) {
	defer rows.Close()
	out := make([]model.Booking, 0)
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// GetByID returns a booking or ledger.ErrBookingNotFound.
func (r *BookingRepo) GetByID(ctx context.Context, id uuid.UUID) (model.Booking, error) {
	const q = `SELECT ` + bookingColumns + ` FROM bookings WHERE id = ?`
	b, err := scanBooking(r.db.QueryRowContext(ctx, q, id))
	return b, translate(err)
}

// ListByUser returns one keyset page of the user's bookings, newest first.
func (r *BookingRepo) ListByUser(ctx context.Context, userID uuid.UUID, after *ledger.Cursor, limit int) ([]model.Booking, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if after == nil {
		const q = `SELECT ` + bookingColumns + ` FROM bookings
		           WHERE user_id = ?
		           ORDER BY created_at DESC, id DESC LIMIT ?`
		rows, err = r.db.QueryContext(ctx, q, userID, limit)
	} else {
		const q = `SELECT ` + bookingColumns + ` FROM bookings
		           WHERE user_id = ? AND (created_at < ? OR (created_at = ? AND id < ?))
		           ORDER BY created_at DESC, id DESC LIMIT ?`
		at := after.CreatedAt.UTC()
		rows, err = r.db.QueryContext(ctx, q, userID, at, at, after.ID, limit)
	}
	if err != nil {
		return nil, translate(err)
	}
	out, err := scanBookings(rows)
	return out, translate(err)
}

// ListByEvent returns every booking of the event, newest first.
func (r *BookingRepo) ListByEvent(ctx context.Context, eventID uuid.UUID) ([]model.Booking, error) {
	const q = `SELECT ` + bookingColumns + ` FROM bookings WHERE event_id = ? ORDER BY created_at DESC, id DESC`
	rows, err := r.db.QueryContext(ctx, q, eventID)
	if err != nil {
		return nil, translate(err)
	}
	out, err := scanBookings(rows)
	return out, translate(err)
}

// ActiveSeatsTx sums active seats for the event inside tx. Under READ
// COMMITTED this sees every booking committed before the event lock was
// granted.
func (r *BookingRepo) ActiveSeatsTx(ctx context.Context, tx *sql.Tx, eventID uuid.UUID) (int, error) {
	const q = `SELECT COALESCE(SUM(seats), 0) FROM bookings WHERE event_id = ? AND status = 'active'`
	var active int
	err := tx.QueryRowContext(ctx, q, eventID).Scan(&active)
	return active, err
}

// CreateTx inserts a booking within the caller's transaction.
func (r *BookingRepo) CreateTx(ctx context.Context, tx *sql.Tx, b model.Booking) error {
	const q = `INSERT INTO bookings (id, event_id, user_id, seats, status, created_at) VALUES (?, ?, ?, ?, ?, ?)`
	_, err := tx.ExecContext(ctx, q, b.ID, b.EventID, b.UserID, b.Seats, b.Status, b.CreatedAt.UTC())
	return err
}

// LockTx reads one booking row with an exclusive lock.
func (r *BookingRepo) LockTx(ctx context.Context, tx *sql.Tx, id uuid.UUID) (model.Booking, error) {
	const q = `SELECT ` + bookingColumns + ` FROM bookings WHERE id = ? FOR UPDATE`
	return scanBooking(tx.QueryRowContext(ctx, q, id))
}

// UpdateStatusTx sets the booking status. The caller must hold the row lock.
func (r *BookingRepo) UpdateStatusTx(ctx context.Context, tx *sql.Tx, id uuid.UUID, status model.BookingStatus) error {
	res, err := tx.ExecContext(ctx, `UPDATE bookings SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ledger.ErrBookingNotFound
	}
	return nil
}

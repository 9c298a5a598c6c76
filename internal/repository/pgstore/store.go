package pgstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iliyamo/event-booking/internal/ledger"
	"github.com/iliyamo/event-booking/internal/model"
)

const eventColumns = `id, title, description, location, resource_id, capacity, status,
	starts_at, ends_at, created_by, created_at, updated_at`

const bookingColumns = `id, event_id, user_id, seats, status, created_at`

// Store implements ledger.Store on a pgx pool. Transactions run at READ
// COMMITTED with a transaction-local lock_timeout derived from ctx.
type Store struct {
	pool *pgxpool.Pool
}

var _ ledger.Store = (*Store)(nil)

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Ping(ctx context.Context) error {
	return translate(s.pool.Ping(ctx))
}

func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx ledger.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return translate(err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(context.WithoutCancel(ctx))
		}
	}()

	if dl, ok := ctx.Deadline(); ok {
		ms := time.Until(dl).Milliseconds()
		if ms < 1 {
			ms = 1
		}
		if _, err := tx.Exec(ctx, "SELECT set_config('lock_timeout', $1, true)", fmt.Sprintf("%dms", ms)); err != nil {
			return translate(err)
		}
	}

	if err := fn(ctx, &pgTx{tx: tx}); err != nil {
		return translate(err)
	}
	if err := ctx.Err(); err != nil {
		return translate(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return translate(err)
	}
	committed = true
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (model.Event, error) {
	var e model.Event
	err := row.Scan(&e.ID, &e.Title, &e.Description, &e.Location, &e.ResourceID, &e.Capacity, &e.Status,
		&e.StartsAt, &e.EndsAt, &e.CreatedBy, &e.CreatedAt, &e.UpdatedAt)
	return e, notFound(err, ledger.ErrEventNotFound)
}

func scanBooking(row rowScanner) (model.Booking, error) {
	var b model.Booking
	err := row.Scan(&b.ID, &b.EventID, &b.UserID, &b.Seats, &b.Status, &b.CreatedAt)
	return b, notFound(err, ledger.ErrBookingNotFound)
}

func collectBookings(rows pgx.Rows, err error) ([]model.Booking, error) {
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()
	out := make([]model.Booking, 0)
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, translate(rows.Err())
}

func (s *Store) GetEvent(ctx context.Context, id uuid.UUID) (model.Event, error) {
	return scanEvent(s.pool.QueryRow(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1`, id))
}

func (s *Store) Usage(ctx context.Context, id uuid.UUID) (int, int, error) {
	const q = `SELECT e.capacity,
	                  COALESCE((SELECT SUM(b.seats) FROM bookings b
	                            WHERE b.event_id = e.id AND b.status = 'active'), 0)
	           FROM events e WHERE e.id = $1`
	var capacity, active int
	if err := s.pool.QueryRow(ctx, q, id).Scan(&capacity, &active); err != nil {
		return 0, 0, notFound(err, ledger.ErrEventNotFound)
	}
	return capacity, active, nil
}

func (s *Store) ListEvents(ctx context.Context, f ledger.EventFilter) ([]model.Event, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if f.Status != "" {
		where = append(where, "status = "+arg(f.Status))
	}
	if f.CreatedBy != nil {
		where = append(where, "created_by = "+arg(*f.CreatedBy))
	}
	if f.From != nil {
		where = append(where, "starts_at >= "+arg(f.From.UTC()))
	}
	if f.To != nil {
		where = append(where, "starts_at < "+arg(f.To.UTC()))
	}
	if q := strings.TrimSpace(f.Query); q != "" {
		where = append(where, "title ILIKE "+arg("%"+escapeLike(q)+"%"))
	}

	query := `SELECT ` + eventColumns + ` FROM events`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY starts_at, id`
	if f.Limit > 0 {
		query += ` LIMIT ` + arg(f.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()
	out := make([]model.Event, 0)
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, translate(rows.Err())
}

func (s *Store) GetBooking(ctx context.Context, id uuid.UUID) (model.Booking, error) {
	return scanBooking(s.pool.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id))
}

func (s *Store) ListUserBookings(ctx context.Context, userID uuid.UUID, after *ledger.Cursor, limit int) ([]model.Booking, error) {
	if after == nil {
		return collectBookings(s.pool.Query(ctx, `SELECT `+bookingColumns+` FROM bookings
			WHERE user_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2`, userID, limit))
	}
	return collectBookings(s.pool.Query(ctx, `SELECT `+bookingColumns+` FROM bookings
		WHERE user_id = $1 AND (created_at, id) < ($2, $3)
		ORDER BY created_at DESC, id DESC LIMIT $4`, userID, after.CreatedAt.UTC(), after.ID, limit))
}

func (s *Store) ListEventBookings(ctx context.Context, eventID uuid.UUID) ([]model.Booking, error) {
	return collectBookings(s.pool.Query(ctx, `SELECT `+bookingColumns+` FROM bookings
		WHERE event_id = $1 ORDER BY created_at DESC, id DESC`, eventID))
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) LockEvent(ctx context.Context, id uuid.UUID) (model.Event, error) {
	return scanEvent(t.tx.QueryRow(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1 FOR UPDATE`, id))
}

func (t *pgTx) ActiveSeats(ctx context.Context, eventID uuid.UUID) (int, error) {
	var active int
	err := t.tx.QueryRow(ctx,
		`SELECT COALESCE(SUM(seats), 0) FROM bookings WHERE event_id = $1 AND status = 'active'`,
		eventID).Scan(&active)
	return active, translate(err)
}

func (t *pgTx) InsertBooking(ctx context.Context, b model.Booking) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO bookings (id, event_id, user_id, seats, status, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		b.ID, b.EventID, b.UserID, b.Seats, b.Status, b.CreatedAt.UTC())
	return translate(err)
}

func (t *pgTx) LockBooking(ctx context.Context, id uuid.UUID) (model.Booking, error) {
	return scanBooking(t.tx.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1 FOR UPDATE`, id))
}

func (t *pgTx) SetBookingStatus(ctx context.Context, id uuid.UUID, status model.BookingStatus) error {
	tag, err := t.tx.Exec(ctx, `UPDATE bookings SET status = $1 WHERE id = $2`, status, id)
	if err != nil {
		return translate(err)
	}
	if tag.RowsAffected() == 0 {
		return ledger.ErrBookingNotFound
	}
	return nil
}

func (t *pgTx) InsertEvent(ctx context.Context, e model.Event) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO events (id, title, description, location, resource_id, capacity, status,
	                                              starts_at, ends_at, created_by, created_at, updated_at)
	                          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		e.ID, e.Title, e.Description, e.Location, e.ResourceID, e.Capacity, e.Status,
		e.StartsAt.UTC(), e.EndsAt.UTC(), e.CreatedBy, e.CreatedAt.UTC(), e.UpdatedAt.UTC())
	return translate(err)
}

func (t *pgTx) SetEventStatus(ctx context.Context, id uuid.UUID, status model.EventStatus, at time.Time) error {
	tag, err := t.tx.Exec(ctx, `UPDATE events SET status = $1, updated_at = $2 WHERE id = $3`, status, at.UTC(), id)
	if err != nil {
		return translate(err)
	}
	if tag.RowsAffected() == 0 {
		return ledger.ErrEventNotFound
	}
	return nil
}

func (t *pgTx) DeleteEvent(ctx context.Context, id uuid.UUID) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM events WHERE id = $1`, id)
	if err != nil {
		return translate(err)
	}
	if tag.RowsAffected() == 0 {
		return ledger.ErrEventNotFound
	}
	return nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/event-booking/internal/ledger"
	"github.com/iliyamo/event-booking/internal/model"
)

type rowScanner interface {
	Scan(dest ...any) error
}

const eventColumns = `id, title, description, location, resource_id, capacity, status,
	starts_at, ends_at, created_by, created_at, updated_at`

// EventRepo manages persistence for events.
type EventRepo struct {
	db *sql.DB
}

func NewEventRepo(db *sql.DB) *EventRepo { return &EventRepo{db: db} }

func scanEvent(row rowScanner) (model.Event, error) {
	var e model.Event
	err := row.Scan(&e.ID, &e.Title, &e.Description, &e.Location, &e.ResourceID, &e.Capacity, &e.Status,
		&e.StartsAt, &e.EndsAt, &e.CreatedBy, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Event{}, ledger.ErrEventNotFound
	}
	return e, err
}

// GetByID retrieves an event by its ID. It returns ledger.ErrEventNotFound
// if there is no matching row.
func (r *EventRepo) GetByID(ctx context.Context, id uuid.UUID) (model.Event, error) {
	const q = `SELECT ` + eventColumns + ` FROM events WHERE id = ?`
	e, err := scanEvent(r.db.QueryRowContext(ctx, q, id))
	return e, translate(err)
}

// LockTx reads the event row with an exclusive lock held until tx ends.
// Every booking creation and status change for the event queues here.
func (r *EventRepo) LockTx(ctx context.Context, tx *sql.Tx, id uuid.UUID) (model.Event, error) {
	const q = `SELECT ` + eventColumns + ` FROM events WHERE id = ? FOR UPDATE`
	return scanEvent(tx.QueryRowContext(ctx, q, id))
}

// Usage returns capacity and active seats in one statement.
func (r *EventRepo) Usage(ctx context.Context, id uuid.UUID) (int, int, error) {
	const q = `SELECT e.capacity,
	                  COALESCE((SELECT SUM(b.seats) FROM bookings b
	                            WHERE b.event_id = e.id AND b.status = 'active'), 0)
	           FROM events e WHERE e.id = ?`
	var capacity, active int
	err := r.db.QueryRowContext(ctx, q, id).Scan(&capacity, &active)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, 0, ledger.ErrEventNotFound
	}
	if err != nil {
		return 0, 0, translate(err)
	}
	return capacity, active, nil
}

// List returns events matching f ordered by start time.
func (r *EventRepo) List(ctx context.Context, f ledger.EventFilter) ([]model.Event, error) {
	var (
		where []string
		args  []any
	)
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, f.Status)
	}
	if f.CreatedBy != nil {
		where = append(where, "created_by = ?")
		args = append(args, *f.CreatedBy)
	}
	if f.From != nil {
		where = append(where, "starts_at >= ?")
		args = append(args, f.From.UTC())
	}
	if f.To != nil {
		where = append(where, "starts_at < ?")
		args = append(args, f.To.UTC())
	}
	if q := strings.TrimSpace(f.Query); q != "" {
		where = append(where, "LOWER(title) LIKE ?")
		args = append(args, "%"+escapeLike(strings.ToLower(q))+"%")
	}

	query := `SELECT ` + eventColumns + ` FROM events`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY starts_at, id`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	out := make([]model.Event, 0)
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, translate(err)
		}
		out = append(out, e)
	}
	return out, translate(rows.Err())
}

// CreateTx inserts a new event within the caller's transaction.
func (r *EventRepo) CreateTx(ctx context.Context, tx *sql.Tx, e model.Event) error {
	const q = `INSERT INTO events (id, title, description, location, resource_id, capacity, status,
	                               starts_at, ends_at, created_by, created_at, updated_at)
	           VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := tx.ExecContext(ctx, q, e.ID, e.Title, e.Description, e.Location, e.ResourceID, e.Capacity, e.Status,
		e.StartsAt.UTC(), e.EndsAt.UTC(), e.CreatedBy, e.CreatedAt.UTC(), e.UpdatedAt.UTC())
	return err
}

// UpdateStatusTx sets the event status. The caller must hold the event lock.
func (r *EventRepo) UpdateStatusTx(ctx context.Context, tx *sql.Tx, id uuid.UUID, status model.EventStatus, at time.Time) error {
	res, err := tx.ExecContext(ctx, `UPDATE events SET status = ?, updated_at = ? WHERE id = ?`, status, at.UTC(), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ledger.ErrEventNotFound
	}
	return nil
}

// DeleteTx removes the event; its bookings go with it via ON DELETE CASCADE.
func (r *EventRepo) DeleteTx(ctx context.Context, tx *sql.Tx, id uuid.UUID) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM events WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ledger.ErrEventNotFound
	}
	return nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/event-booking/internal/model"
)

// ResourceRepo stores venues that events may reference.
type ResourceRepo struct {
	db *sql.DB
}

func NewResourceRepo(db *sql.DB) *ResourceRepo {
	return &ResourceRepo{db: db}
}

// Create inserts a resource. Names are unique; a clash yields ErrResourceExists.
func (r *ResourceRepo) Create(ctx context.Context, name string, timezone *string) (model.Resource, error) {
	res := model.Resource{
		ID:        uuid.New(),
		Name:      name,
		Timezone:  timezone,
		CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
	}
	const q = "INSERT INTO resources (id, name, timezone, created_at) VALUES (?, ?, ?, ?)"
	if _, err := r.db.ExecContext(ctx, q, res.ID, res.Name, res.Timezone, res.CreatedAt); err != nil {
		if err = translate(err); isDuplicate(err) {
			return model.Resource{}, ErrResourceExists
		}
		return model.Resource{}, err
	}
	return res, nil
}

// GetByID returns ErrResourceNotFound if no row is found.
func (r *ResourceRepo) GetByID(ctx context.Context, id uuid.UUID) (model.Resource, error) {
	const q = "SELECT id, name, timezone, created_at FROM resources WHERE id = ?"
	var res model.Resource
	err := r.db.QueryRowContext(ctx, q, id).Scan(&res.ID, &res.Name, &res.Timezone, &res.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Resource{}, ErrResourceNotFound
	}
	return res, translate(err)
}

// List returns all resources ordered by name.
func (r *ResourceRepo) List(ctx context.Context) ([]model.Resource, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT id, name, timezone, created_at FROM resources ORDER BY name")
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	out := make([]model.Resource, 0)
	for rows.Next() {
		var res model.Resource
		if err := rows.Scan(&res.ID, &res.Name, &res.Timezone, &res.CreatedAt); err != nil {
			return nil, translate(err)
		}
		out = append(out, res)
	}
	return out, translate(rows.Err())
}

package pgstore

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iliyamo/event-booking/internal/model"
	"github.com/iliyamo/event-booking/internal/repository"
	"github.com/iliyamo/event-booking/internal/utils"
)

type UserRepo struct{ pool *pgxpool.Pool }

func NewUserRepo(pool *pgxpool.Pool) *UserRepo { return &UserRepo{pool: pool} }

func (r *UserRepo) Create(ctx context.Context, email, password string, role model.Role, cost int) (model.User, error) {
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return model.User{}, err
	}
	u := model.User{
		ID:           uuid.New(),
		Email:        repository.NormalizeEmail(email),
		PasswordHash: hash,
		Role:         role,
		CreatedAt:    time.Now().UTC().Truncate(time.Microsecond),
	}
	_, err = r.pool.Exec(ctx,
		`INSERT INTO users (id, email, password_hash, role, created_at) VALUES ($1, $2, $3, $4, $5)`,
		u.ID, u.Email, u.PasswordHash, u.Role, u.CreatedAt)
	if err != nil {
		if err = translate(err); isDuplicate(err) {
			return model.User{}, repository.ErrEmailExists
		}
		return model.User{}, err
	}
	return u, nil
}

func (r *UserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	return r.scanOne(ctx, `SELECT id, email, password_hash, role, created_at FROM users WHERE email = $1`,
		repository.NormalizeEmail(email))
}

func (r *UserRepo) GetByID(ctx context.Context, id uuid.UUID) (model.User, error) {
	return r.scanOne(ctx, `SELECT id, email, password_hash, role, created_at FROM users WHERE id = $1`, id)
}

func (r *UserRepo) scanOne(ctx context.Context, q string, arg any) (model.User, error) {
	var u model.User
	err := r.pool.QueryRow(ctx, q, arg).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Role, &u.CreatedAt)
	if err != nil {
		return model.User{}, notFound(err, repository.ErrUserNotFound)
	}
	return u, nil
}

// TokenRepo stores refresh token hashes.
type TokenRepo struct{ pool *pgxpool.Pool }

func NewTokenRepo(pool *pgxpool.Pool) *TokenRepo { return &TokenRepo{pool: pool} }

func (r *TokenRepo) StoreRefresh(ctx context.Context, userID uuid.UUID, tokenHash string, exp time.Time) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO refresh_tokens (user_id, token_hash, expires_at) VALUES ($1, $2, $3)`,
		userID, tokenHash, exp.UTC())
	return translate(err)
}

func (r *TokenRepo) ValidateRefresh(ctx context.Context, tokenHash string) (uuid.UUID, error) {
	var userID uuid.UUID
	err := r.pool.QueryRow(ctx,
		`SELECT user_id FROM refresh_tokens
		 WHERE token_hash = $1 AND revoked_at IS NULL AND expires_at > now()`,
		tokenHash).Scan(&userID)
	if err != nil {
		return uuid.Nil, notFound(err, repository.ErrInvalidRefresh)
	}
	return userID, nil
}

// Consume atomically revokes a live token and returns its owner.
func (r *TokenRepo) Consume(ctx context.Context, tokenHash string) (uuid.UUID, error) {
	var userID uuid.UUID
	err := r.pool.QueryRow(ctx,
		`UPDATE refresh_tokens SET revoked_at = now()
		 WHERE token_hash = $1 AND revoked_at IS NULL AND expires_at > now()
		 RETURNING user_id`,
		tokenHash).Scan(&userID)
	if err != nil {
		return uuid.Nil, notFound(err, repository.ErrInvalidRefresh)
	}
	return userID, nil
}

func (r *TokenRepo) RevokeByHash(ctx context.Context, tokenHash string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE refresh_tokens SET revoked_at = now() WHERE token_hash = $1 AND revoked_at IS NULL`, tokenHash)
	return translate(err)
}

func (r *TokenRepo) RevokeAllForUser(ctx context.Context, userID uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE refresh_tokens SET revoked_at = now() WHERE user_id = $1 AND revoked_at IS NULL`, userID)
	return translate(err)
}

type ResourceRepo struct{ pool *pgxpool.Pool }

func NewResourceRepo(pool *pgxpool.Pool) *ResourceRepo { return &ResourceRepo{pool: pool} }

func (r *ResourceRepo) Create(ctx context.Context, name string, timezone *string) (model.Resource, error) {
	res := model.Resource{
		ID:        uuid.New(),
		Name:      name,
		Timezone:  timezone,
		CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO resources (id, name, timezone, created_at) VALUES ($1, $2, $3, $4)`,
		res.ID, res.Name, res.Timezone, res.CreatedAt)
	if err != nil {
		if err = translate(err); isDuplicate(err) {
			return model.Resource{}, repository.ErrResourceExists
		}
		return model.Resource{}, err
	}
	return res, nil
}

func (r *ResourceRepo) GetByID(ctx context.Context, id uuid.UUID) (model.Resource, error) {
	var res model.Resource
	err := r.pool.QueryRow(ctx, `SELECT id, name, timezone, created_at FROM resources WHERE id = $1`, id).
		Scan(&res.ID, &res.Name, &res.Timezone, &res.CreatedAt)
	if err != nil {
		return model.Resource{}, notFound(err, repository.ErrResourceNotFound)
	}
	return res, nil
}

func (r *ResourceRepo) List(ctx context.Context) ([]model.Resource, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, timezone, created_at FROM resources ORDER BY name`)
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

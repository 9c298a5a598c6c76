package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// TokenRepo persists refresh token hashes. Raw tokens are never stored.
type TokenRepo struct{ DB *sql.DB }

func NewTokenRepo(db *sql.DB) *TokenRepo { return &TokenRepo{DB: db} }

// StoreRefresh inserts a refresh token hash row.
func (r *TokenRepo) StoreRefresh(ctx context.Context, userID uuid.UUID, tokenHash string, exp time.Time) error {
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO refresh_tokens (user_id, token_hash, expires_at) VALUES (?,?,?)",
		userID, tokenHash, exp.UTC())
	return translate(err)
}

// ValidateRefresh returns the owner of a live token without consuming it.
func (r *TokenRepo) ValidateRefresh(ctx context.Context, tokenHash string) (uuid.UUID, error) {
	var (
		userID    uuid.UUID
		expiresAt time.Time
		revokedAt sql.NullTime
	)
	err := r.DB.QueryRowContext(ctx,
		"SELECT user_id, expires_at, revoked_at FROM refresh_tokens WHERE token_hash=? LIMIT 1",
		tokenHash).Scan(&userID, &expiresAt, &revokedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return uuid.Nil, ErrInvalidRefresh
	}
	if err != nil {
		return uuid.Nil, translate(err)
	}
	if revokedAt.Valid || time.Now().UTC().After(expiresAt) {
		return uuid.Nil, ErrInvalidRefresh
	}
	return userID, nil
}

// Consume revokes a live token and returns its owner. Only one of several
// concurrent callers presenting the same token succeeds.
func (r *TokenRepo) Consume(ctx context.Context, tokenHash string) (uuid.UUID, error) {
	userID, err := r.ValidateRefresh(ctx, tokenHash)
	if err != nil {
		return uuid.Nil, err
	}
	res, err := r.DB.ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked_at=UTC_TIMESTAMP(6) WHERE token_hash=? AND revoked_at IS NULL AND expires_at > UTC_TIMESTAMP(6)",
		tokenHash)
	if err != nil {
		return uuid.Nil, translate(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return uuid.Nil, ErrInvalidRefresh
	}
	return userID, nil
}

// RevokeByHash marks a token as revoked.
func (r *TokenRepo) RevokeByHash(ctx context.Context, tokenHash string) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked_at=UTC_TIMESTAMP(6) WHERE token_hash=? AND revoked_at IS NULL",
		tokenHash)
	return translate(err)
}

// RevokeAllForUser revokes all of the user's active tokens.
func (r *TokenRepo) RevokeAllForUser(ctx context.Context, userID uuid.UUID) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked_at=UTC_TIMESTAMP(6) WHERE user_id=? AND revoked_at IS NULL",
		userID)
	return translate(err)
}

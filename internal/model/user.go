package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role is the authorization role of a user.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleUser:
		return true
	}
	return false
}

// Privileged reports whether the role may act on resources owned by others.
func (r Role) Privileged() bool {
	switch r {
	case RoleAdmin:
		return true
	case RoleUser:
		return false
	}
	return false
}

// ParseRole normalizes raw into a Role. Unknown values yield false.
func ParseRole(raw string) (Role, bool) {
	r := Role(strings.ToLower(strings.TrimSpace(raw)))
	return r, r.Valid()
}

// User represents an application user record as stored in the
// `users` table. Handlers never serialize it directly because it carries
// the password hash.
//
// Fields:
//
//	ID           – primary key identifier of the user.
//	Email        – unique, lower-cased email address.
//	PasswordHash – bcrypt hashed password.
//	Role         – admin or user.
//	CreatedAt    – timestamp of creation.
type User struct {
	ID           uuid.UUID
	Email        string
	PasswordHash string
	Role         Role
	CreatedAt    time.Time
}

// Principal is the authenticated actor behind a request.
type Principal struct {
	UserID uuid.UUID
	Role   Role
}

// RefreshToken models an entry in the `refresh_tokens` table. The plain
// token is never stored, only its SHA-256 hex digest.
type RefreshToken struct {
	UserID    uuid.UUID
	TokenHash string
	ExpiresAt time.Time
	RevokedAt *time.Time
}

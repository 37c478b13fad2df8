package store

import (
	"context"
	"time"

	"stashboard/api/internal/stash"
)

const (
	RoleAdmin  = "admin"
	RoleMember = "member"
	RoleDemo   = "demo"
)

type User struct {
	ID           string
	Email        string
	DisplayName  string
	PasswordHash string
	Role         string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ReadOnly reports whether the account is blocked from mutating operations.
func (u User) ReadOnly() bool {
	return u.Role == RoleDemo
}

// Store is the full persistence surface; PostgresStore and SQLiteStore both
// implement it.
type Store interface {
	GetUserByEmail(ctx context.Context, email string) (User, error)
	GetUserByID(ctx context.Context, id string) (User, error)
	GetUserByName(ctx context.Context, name string) (User, error)
	CreateUser(ctx context.Context, user User) error
	CountUsers(ctx context.Context) (int, error)
	GetStashDocument(ctx context.Context, userID string) (stash.Document, error)
	SetStashDocument(ctx context.Context, userID string, doc stash.Document) error
	SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (string, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
	Ping(ctx context.Context) error
}

// Package store persists user accounts and session snapshots.
package store

import (
	"context"

	"github.com/moyoez/codesync-go/types"
)

type UserStore interface {
	// CreateUser fails with types.ErrConflict when the username is taken.
	CreateUser(ctx context.Context, u types.User) error
	// GetUser fails with types.ErrNotFound.
	GetUser(ctx context.Context, username string) (types.User, error)
}

type SnapshotStore interface {
	SaveSession(ctx context.Context, snap types.SessionSnapshot) error
	DeleteSession(ctx context.Context, publicID string) error
	LoadSessions(ctx context.Context) ([]types.SessionSnapshot, error)
}

type Store interface {
	UserStore
	SnapshotStore
	Close() error
}

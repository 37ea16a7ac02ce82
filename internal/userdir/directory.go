// Package userdir is the durable directory of known users, used for
// broadcasts and statistics. Two interchangeable backends exist: a JSON file
// and a SQL database (SQLite or PostgreSQL). The backend is picked once at
// startup by Open.
package userdir

import (
	"context"
	"time"

	"linkrelay/internal/media"
)

// Directory is the capability set shared by every backend.
type Directory interface {
	// AddUser creates the record on first sight and otherwise refreshes the
	// display name and last-seen time.
	AddUser(ctx context.Context, userID int64, displayName string) error
	// GetUser returns common.ErrNotFound for unknown users.
	GetUser(ctx context.Context, userID int64) (media.UserRecord, error)
	AllUsers(ctx context.Context) ([]int64, error)
	ListUsers(ctx context.Context) ([]media.UserRecord, error)
	CountUsers(ctx context.Context) (int, error)
	// Touch refreshes the last-seen time only. It returns common.ErrNotFound
	// for unknown users.
	Touch(ctx context.Context, userID int64) error
	// IncrementDownloads bumps the counter and the last-seen time. It returns
	// common.ErrNotFound for unknown users.
	IncrementDownloads(ctx context.Context, userID int64) error
	DeleteUser(ctx context.Context, userID int64) error
	Close() error
}

// clock is swapped in tests.
type clock func() time.Time

func utcNow() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}

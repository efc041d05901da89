package repository

import (
	"context"

	"github.com/oksasatya/go-ddd-task-sync/internal/domain/entity"
	"github.com/oksasatya/go-ddd-task-sync/pkg/query"
)

// UserRepository defines the user collection operations. Reads accept a nil
// Tx to read outside any transaction.
type UserRepository interface {
	Find(ctx context.Context, q query.Params) ([]entity.User, error)
	Count(ctx context.Context, f query.Filter) (int64, error)
	GetByID(ctx context.Context, tx Tx, id string) (*entity.User, error)
	GetByEmail(ctx context.Context, tx Tx, email string) (*entity.User, error)

	// Create assigns ID and, when zero, CreatedAt.
	Create(ctx context.Context, tx Tx, u *entity.User) error
	// Replace overwrites every field of the stored user, CreatedAt included.
	Replace(ctx context.Context, tx Tx, u *entity.User) error
	Delete(ctx context.Context, tx Tx, id string) error
	// Touch writes the user back unchanged so that a concurrent transaction
	// replacing or deleting it conflicts with tx. Missing users are ErrNotFound.
	Touch(ctx context.Context, tx Tx, id string) error

	// AddPendingTask is a set add; a missing user is not an error.
	AddPendingTask(ctx context.Context, tx Tx, userID, taskID string) error
	// RemovePendingTask is a set remove; a missing user is not an error.
	RemovePendingTask(ctx context.Context, tx Tx, userID, taskID string) error
	// PullPendingTasks removes taskIDs from every user other than exceptUserID
	// and returns the ids of the users it changed.
	PullPendingTasks(ctx context.Context, tx Tx, taskIDs []string, exceptUserID string) ([]string, error)
}

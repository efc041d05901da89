package repository

import (
	"context"

	"github.com/oksasatya/go-ddd-task-sync/internal/domain/entity"
	"github.com/oksasatya/go-ddd-task-sync/pkg/query"
)

// TaskRepository defines the task collection operations.
type TaskRepository interface {
	Find(ctx context.Context, q query.Params) ([]entity.Task, error)
	Count(ctx context.Context, f query.Filter) (int64, error)
	GetByID(ctx context.Context, tx Tx, id string) (*entity.Task, error)
	// GetByIDs skips ids that are malformed or missing.
	GetByIDs(ctx context.Context, tx Tx, ids []string) ([]entity.Task, error)

	Create(ctx context.Context, tx Tx, t *entity.Task) error
	Replace(ctx context.Context, tx Tx, t *entity.Task) error
	Delete(ctx context.Context, tx Tx, id string) error

	// AssignMany points every task in ids at the given user.
	AssignMany(ctx context.Context, tx Tx, ids []string, userID, userName string) error
	// UnassignAll clears the assignee of every task assigned to userID and
	// returns the ids of the tasks it changed.
	UnassignAll(ctx context.Context, tx Tx, userID string) ([]string, error)
}

package application

import (
	"context"
	"errors"

	"github.com/oksasatya/go-ddd-task-sync/internal/domain/entity"
	repo "github.com/oksasatya/go-ddd-task-sync/internal/domain/repository"
)

// resolveAssignee looks id up inside tx and touches the user, so a concurrent
// DeleteUser cannot commit alongside a task that points at it. Empty,
// malformed and unknown ids all resolve to no assignee.
func (c *Coordinator) resolveAssignee(ctx context.Context, tx repo.Tx, id string) (*entity.User, error) {
	if id == "" {
		return nil, nil
	}
	u, err := c.Store.Users().GetByID(ctx, tx, id)
	if err == nil {
		err = c.Store.Users().Touch(ctx, tx, id)
	}
	if errors.Is(err, repo.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

// pendingTasks keeps the requested ids that name an existing task that is not
// completed. Request order is kept and duplicates are dropped.
func (c *Coordinator) pendingTasks(ctx context.Context, tx repo.Tx, ids []string) ([]entity.Task, error) {
	ids = addIDs(nil, ids...)
	if len(ids) == 0 {
		return nil, nil
	}
	found, err := c.Store.Tasks().GetByIDs(ctx, tx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]entity.Task, len(found))
	for _, t := range found {
		byID[t.ID] = t
	}
	out := make([]entity.Task, 0, len(found))
	for _, id := range ids {
		if t, ok := byID[id]; ok && !t.Completed {
			out = append(out, t)
		}
	}
	return out, nil
}

// claimTasks points every task at u and removes them from any other user's
// pending set.
func (c *Coordinator) claimTasks(ctx context.Context, tx repo.Tx, cs *ChangeSet, u *entity.User, tasks []entity.Task) error {
	if len(tasks) == 0 {
		return nil
	}
	ids := taskIDs(tasks)
	if err := c.Store.Tasks().AssignMany(ctx, tx, ids, u.ID, u.Name); err != nil {
		return err
	}
	others, err := c.Store.Users().PullPendingTasks(ctx, tx, ids, u.ID)
	if err != nil {
		return err
	}
	cs.touchTasks(ids...)
	cs.touchUsers(others...)
	for _, t := range tasks {
		if t.AssignedUser != u.ID {
			cs.Assignments = append(cs.Assignments, newAssignment(t, u))
		}
	}
	return nil
}

func newAssignment(t entity.Task, u *entity.User) Assignment {
	return Assignment{
		TaskID:    t.ID,
		TaskName:  t.Name,
		Deadline:  t.Deadline,
		UserID:    u.ID,
		UserName:  u.Name,
		UserEmail: u.Email,
	}
}

func taskIDs(tasks []entity.Task) []string {
	out := make([]string, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, t.ID)
	}
	return out
}

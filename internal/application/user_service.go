package application

import (
	"context"
	"errors"
	"slices"
	"strings"

	"github.com/oksasatya/go-ddd-task-sync/internal/domain/entity"
	repo "github.com/oksasatya/go-ddd-task-sync/internal/domain/repository"
	"github.com/oksasatya/go-ddd-task-sync/pkg/query"
	"github.com/oksasatya/go-ddd-task-sync/pkg/validation"
)

// UserInput is the full document accepted by CreateUser and ReplaceUser.
type UserInput struct {
	Name         string   `json:"name" validate:"required"`
	Email        string   `json:"email" validate:"required,email"`
	PendingTasks []string `json:"pendingTasks"`
}

func (in *UserInput) normalize() error {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	return invalid(validation.Struct(in))
}

func (c *Coordinator) ListUsers(ctx context.Context, q query.Params) ([]entity.User, error) {
	return c.Store.Users().Find(ctx, q)
}

// CountUsers counts the matching users inside the skip/limit window.
func (c *Coordinator) CountUsers(ctx context.Context, q query.Params) (int64, error) {
	n, err := c.Store.Users().Count(ctx, q.Filter)
	if err != nil {
		return 0, err
	}
	return query.CountWindow(n, q.Skip, q.Limit), nil
}

func (c *Coordinator) GetUser(ctx context.Context, id string) (*entity.User, error) {
	u, err := c.Store.Users().GetByID(ctx, nil, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	return u, err
}

// checkEmailFree fails with ErrDuplicateEmail when email belongs to a user
// other than selfID.
func (c *Coordinator) checkEmailFree(ctx context.Context, tx repo.Tx, email, selfID string) error {
	other, err := c.Store.Users().GetByEmail(ctx, tx, email)
	switch {
	case errors.Is(err, repo.ErrNotFound):
		return nil
	case err != nil:
		return err
	case other.ID != selfID:
		return ErrDuplicateEmail
	}
	return nil
}

// CreateUser stores a new user whose pending set is the requested task ids
// that exist and are not completed. Those tasks are reassigned to the new user.
func (c *Coordinator) CreateUser(ctx context.Context, in UserInput) (*entity.User, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}
	var out entity.User
	err := c.inTx(ctx, "create_user", func(tx repo.Tx, cs *ChangeSet) error {
		if err := c.checkEmailFree(ctx, tx, in.Email, ""); err != nil {
			return err
		}
		tasks, err := c.pendingTasks(ctx, tx, in.PendingTasks)
		if err != nil {
			return err
		}
		u := &entity.User{Name: in.Name, Email: in.Email, PendingTasks: taskIDs(tasks)}
		if err := c.Store.Users().Create(ctx, tx, u); err != nil {
			return err
		}
		if err := c.claimTasks(ctx, tx, cs, u, tasks); err != nil {
			return err
		}
		cs.touchUsers(u.ID)
		out = u.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	c.Logger.WithField("user_id", out.ID).Info("user created")
	return &out, nil
}

// ReplaceUser overwrites every field except the creation time and points
// every listed pending task at the user.
//
// A plain replace would only claim the listed tasks. ReplaceUser goes further:
// a pending task that was on the old list and is missing from the new one is
// unassigned (assignedUser "", assignedUserName "unassigned"), because a
// pending task must appear in the pendingTasks of exactly its assignee.
// Completed tasks are never on the list and keep their assignee.
func (c *Coordinator) ReplaceUser(ctx context.Context, id string, in UserInput) (*entity.User, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}
	var out entity.User
	err := c.inTx(ctx, "replace_user", func(tx repo.Tx, cs *ChangeSet) error {
		cur, err := c.Store.Users().GetByID(ctx, tx, id)
		if errors.Is(err, repo.ErrNotFound) {
			return ErrUserNotFound
		}
		if err != nil {
			return err
		}
		if err := c.checkEmailFree(ctx, tx, in.Email, id); err != nil {
			return err
		}
		tasks, err := c.pendingTasks(ctx, tx, in.PendingTasks)
		if err != nil {
			return err
		}
		next := &entity.User{
			ID:           id,
			Name:         in.Name,
			Email:        in.Email,
			PendingTasks: taskIDs(tasks),
			CreatedAt:    cur.CreatedAt,
		}
		if err := c.Store.Users().Replace(ctx, tx, next); err != nil {
			return err
		}
		dropped := slices.DeleteFunc(slices.Clone(cur.PendingTasks), func(tid string) bool {
			return slices.Contains(next.PendingTasks, tid)
		})
		if err := c.releaseTasks(ctx, tx, cs, id, dropped); err != nil {
			return err
		}
		if err := c.claimTasks(ctx, tx, cs, next, tasks); err != nil {
			return err
		}
		cs.touchUsers(id)
		out = next.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// releaseTasks unassigns the tasks in ids that still point at userID. Tasks
// that already point at another user are left alone.
func (c *Coordinator) releaseTasks(ctx context.Context, tx repo.Tx, cs *ChangeSet, userID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	tasks, err := c.Store.Tasks().GetByIDs(ctx, tx, ids)
	if err != nil {
		return err
	}
	for i := range tasks {
		t := &tasks[i]
		if t.AssignedUser != userID {
			continue
		}
		t.AssignTo(nil)
		if err := c.Store.Tasks().Replace(ctx, tx, t); err != nil {
			return err
		}
		cs.touchTasks(t.ID)
	}
	return nil
}

// DeleteUser unassigns every task that points at the user, then removes it.
func (c *Coordinator) DeleteUser(ctx context.Context, id string) error {
	err := c.inTx(ctx, "delete_user", func(tx repo.Tx, cs *ChangeSet) error {
		if _, err := c.Store.Users().GetByID(ctx, tx, id); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return ErrUserNotFound
			}
			return err
		}
		changed, err := c.Store.Tasks().UnassignAll(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := c.Store.Users().Delete(ctx, tx, id); err != nil {
			return err
		}
		cs.touchTasks(changed...)
		cs.deleteUser(id)
		return nil
	})
	if err != nil {
		return err
	}
	c.Logger.WithField("user_id", id).Info("user deleted")
	return nil
}

package application

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/oksasatya/go-ddd-task-sync/internal/domain/entity"
	repo "github.com/oksasatya/go-ddd-task-sync/internal/domain/repository"
	"github.com/oksasatya/go-ddd-task-sync/pkg/query"
	"github.com/oksasatya/go-ddd-task-sync/pkg/validation"
)

// TaskInput is the full document accepted by CreateTask and ReplaceTask.
// Completed is optional on create and required on replace.
type TaskInput struct {
	Name         string    `json:"name" validate:"required"`
	Description  string    `json:"description"`
	Deadline     time.Time `json:"deadline" validate:"required"`
	Completed    *bool     `json:"completed"`
	AssignedUser string    `json:"assignedUser"`
}

func (in *TaskInput) normalize(replace bool) error {
	in.Name = strings.TrimSpace(in.Name)
	in.AssignedUser = strings.TrimSpace(in.AssignedUser)
	fields := validation.Struct(in)
	if replace && in.Completed == nil {
		if fields == nil {
			fields = map[string]string{}
		}
		fields["completed"] = "is required"
	}
	return invalid(fields)
}

func (in *TaskInput) completed() bool {
	return in.Completed != nil && *in.Completed
}

func (c *Coordinator) ListTasks(ctx context.Context, q query.Params) ([]entity.Task, error) {
	return c.Store.Tasks().Find(ctx, q)
}

func (c *Coordinator) CountTasks(ctx context.Context, q query.Params) (int64, error) {
	n, err := c.Store.Tasks().Count(ctx, q.Filter)
	if err != nil {
		return 0, err
	}
	return query.CountWindow(n, q.Skip, q.Limit), nil
}

func (c *Coordinator) GetTask(ctx context.Context, id string) (*entity.Task, error) {
	t, err := c.Store.Tasks().GetByID(ctx, nil, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrTaskNotFound
	}
	return t, err
}

// CreateTask stores the task with its resolved assignee and, when the task is
// pending, adds it to the assignee's pending set.
func (c *Coordinator) CreateTask(ctx context.Context, in TaskInput) (*entity.Task, error) {
	if err := in.normalize(false); err != nil {
		return nil, err
	}
	var out entity.Task
	err := c.inTx(ctx, "create_task", func(tx repo.Tx, cs *ChangeSet) error {
		u, err := c.resolveAssignee(ctx, tx, in.AssignedUser)
		if err != nil {
			return err
		}
		t := &entity.Task{
			Name:        in.Name,
			Description: in.Description,
			Deadline:    in.Deadline.UTC(),
			Completed:   in.completed(),
		}
		t.AssignTo(u)
		if err := c.Store.Tasks().Create(ctx, tx, t); err != nil {
			return err
		}
		cs.touchTasks(t.ID)
		if t.IsPending() {
			if err := c.Store.Users().AddPendingTask(ctx, tx, u.ID, t.ID); err != nil {
				return err
			}
			cs.touchUsers(u.ID)
			cs.Assignments = append(cs.Assignments, newAssignment(*t, u))
		}
		out = *t
		return nil
	})
	if err != nil {
		return nil, err
	}
	c.Logger.WithField("task_id", out.ID).Info("task created")
	return &out, nil
}

// ReplaceTask overwrites every field except the creation time, then moves the
// task between pending sets according to the (assignee, completed) transition.
func (c *Coordinator) ReplaceTask(ctx context.Context, id string, in TaskInput) (*entity.Task, error) {
	if err := in.normalize(true); err != nil {
		return nil, err
	}
	var out entity.Task
	err := c.inTx(ctx, "replace_task", func(tx repo.Tx, cs *ChangeSet) error {
		cur, err := c.Store.Tasks().GetByID(ctx, tx, id)
		if errors.Is(err, repo.ErrNotFound) {
			return ErrTaskNotFound
		}
		if err != nil {
			return err
		}
		u, err := c.resolveAssignee(ctx, tx, in.AssignedUser)
		if err != nil {
			return err
		}
		next := &entity.Task{
			ID:          id,
			Name:        in.Name,
			Description: in.Description,
			Deadline:    in.Deadline.UTC(),
			Completed:   in.completed(),
			CreatedAt:   cur.CreatedAt,
		}
		next.AssignTo(u)
		if err := c.Store.Tasks().Replace(ctx, tx, next); err != nil {
			return err
		}
		cs.touchTasks(id)

		users := c.Store.Users()
		prev := cur.AssignedUser
		if prev != "" && prev != next.AssignedUser {
			if err := users.RemovePendingTask(ctx, tx, prev, id); err != nil {
				return err
			}
			cs.touchUsers(prev)
		}
		if u != nil {
			if next.Completed {
				err = users.RemovePendingTask(ctx, tx, u.ID, id)
			} else {
				err = users.AddPendingTask(ctx, tx, u.ID, id)
				if wasPending := prev == u.ID && cur.IsPending(); err == nil && !wasPending {
					cs.Assignments = append(cs.Assignments, newAssignment(*next, u))
				}
			}
			if err != nil {
				return err
			}
			cs.touchUsers(u.ID)
		}
		out = *next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteTask removes the task from its assignee's pending set, then deletes it.
func (c *Coordinator) DeleteTask(ctx context.Context, id string) error {
	err := c.inTx(ctx, "delete_task", func(tx repo.Tx, cs *ChangeSet) error {
		cur, err := c.Store.Tasks().GetByID(ctx, tx, id)
		if errors.Is(err, repo.ErrNotFound) {
			return ErrTaskNotFound
		}
		if err != nil {
			return err
		}
		if cur.AssignedUser != "" {
			if err := c.Store.Users().RemovePendingTask(ctx, tx, cur.AssignedUser, id); err != nil {
				return err
			}
			cs.touchUsers(cur.AssignedUser)
		}
		if err := c.Store.Tasks().Delete(ctx, tx, id); err != nil {
			return err
		}
		cs.deleteTask(id)
		return nil
	})
	if err != nil {
		return err
	}
	c.Logger.WithField("task_id", id).Info("task deleted")
	return nil
}

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/oksasatya/go-ddd-task-sync/internal/domain/entity"
	"github.com/oksasatya/go-ddd-task-sync/internal/domain/repository"
	"github.com/oksasatya/go-ddd-task-sync/pkg/query"
)

const taskColumns = "id, name, description, deadline, completed, assigned_user, assigned_user_name, created_at"

type TaskRepository struct {
	s *Store
}

func scanTask(row pgx.Row) (entity.Task, error) {
	var t entity.Task
	err := row.Scan(&t.ID, &t.Name, &t.Description, &t.Deadline, &t.Completed,
		&t.AssignedUser, &t.AssignedUserName, &t.CreatedAt)
	if err != nil {
		return entity.Task{}, err
	}
	t.Deadline = t.Deadline.UTC()
	t.CreatedAt = t.CreatedAt.UTC()
	return t, nil
}

func collectTasks(rows pgx.Rows) ([]entity.Task, error) {
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (entity.Task, error) {
		return scanTask(row)
	})
}

func (r *TaskRepository) Find(ctx context.Context, q query.Params) ([]entity.Task, error) {
	sql, args, err := selectSQL(tasksTable, taskColumns, q)
	if err != nil {
		return nil, err
	}
	rows, err := r.s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return collectTasks(rows)
}

func (r *TaskRepository) Count(ctx context.Context, f query.Filter) (int64, error) {
	sql, args, err := countSQL(tasksTable, f)
	if err != nil {
		return 0, err
	}
	var n int64
	err = r.s.pool.QueryRow(ctx, sql, args...).Scan(&n)
	return n, err
}

func (r *TaskRepository) GetByID(ctx context.Context, tx repository.Tx, id string) (*entity.Task, error) {
	q, err := r.s.q(tx)
	if err != nil {
		return nil, err
	}
	t, err := scanTask(q.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, mapError(err)
	}
	return &t, nil
}

func (r *TaskRepository) GetByIDs(ctx context.Context, tx repository.Tx, ids []string) ([]entity.Task, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	q, err := r.s.q(tx)
	if err != nil {
		return nil, err
	}
	rows, err := q.Query(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ANY($1::text[])`, ids)
	if err != nil {
		return nil, mapError(err)
	}
	return collectTasks(rows)
}

func (r *TaskRepository) Create(ctx context.Context, tx repository.Tx, t *entity.Task) error {
	id := uuid.NewString()
	created := t.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	err := r.s.write(ctx, tx, func(q querier) error {
		_, err := q.Exec(ctx, `
			INSERT INTO tasks (id, name, description, deadline, completed, assigned_user, assigned_user_name, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, id, t.Name, t.Description, t.Deadline, t.Completed, t.AssignedUser, t.AssignedUserName, created)
		return err
	})
	if err != nil {
		return err
	}
	t.ID, t.CreatedAt = id, created
	return nil
}

func (r *TaskRepository) Replace(ctx context.Context, tx repository.Tx, t *entity.Task) error {
	return r.s.write(ctx, tx, func(q querier) error {
		res, err := q.Exec(ctx, `
			UPDATE tasks
			SET name = $2, description = $3, deadline = $4, completed = $5,
			    assigned_user = $6, assigned_user_name = $7, created_at = $8
			WHERE id = $1
		`, t.ID, t.Name, t.Description, t.Deadline, t.Completed, t.AssignedUser, t.AssignedUserName, t.CreatedAt)
		if err != nil {
			return err
		}
		if res.RowsAffected() == 0 {
			return repository.ErrNotFound
		}
		return nil
	})
}

func (r *TaskRepository) Delete(ctx context.Context, tx repository.Tx, id string) error {
	return r.s.write(ctx, tx, func(q querier) error {
		res, err := q.Exec(ctx, `DELETE FROM tasks WHERE id = $1`, id)
		if err != nil {
			return err
		}
		if res.RowsAffected() == 0 {
			return repository.ErrNotFound
		}
		return nil
	})
}

func (r *TaskRepository) AssignMany(ctx context.Context, tx repository.Tx, ids []string, userID, userName string) error {
	if len(ids) == 0 {
		return nil
	}
	return r.s.write(ctx, tx, func(q querier) error {
		_, err := q.Exec(ctx, `
			UPDATE tasks SET assigned_user = $2, assigned_user_name = $3
			WHERE id = ANY($1::text[])
		`, ids, userID, userName)
		return err
	})
}

func (r *TaskRepository) UnassignAll(ctx context.Context, tx repository.Tx, userID string) ([]string, error) {
	if userID == "" {
		return nil, nil
	}
	var changed []string
	err := r.s.write(ctx, tx, func(q querier) error {
		rows, err := q.Query(ctx, `
			UPDATE tasks SET assigned_user = '', assigned_user_name = $2
			WHERE assigned_user = $1
			RETURNING id
		`, userID, entity.UnassignedName)
		if err != nil {
			return err
		}
		changed, err = pgx.CollectRows(rows, pgx.RowTo[string])
		return err
	})
	if err != nil {
		return nil, err
	}
	return changed, nil
}

var _ repository.TaskRepository = (*TaskRepository)(nil)

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

const userColumns = "id, name, email, pending_tasks, created_at"

type UserRepository struct {
	s *Store
}

func scanUser(row pgx.Row) (entity.User, error) {
	var u entity.User
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PendingTasks, &u.CreatedAt); err != nil {
		return entity.User{}, err
	}
	u.CreatedAt = u.CreatedAt.UTC()
	return u.Clone(), nil
}

func (r *UserRepository) Find(ctx context.Context, q query.Params) ([]entity.User, error) {
	sql, args, err := selectSQL(usersTable, userColumns, q)
	if err != nil {
		return nil, err
	}
	rows, err := r.s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (entity.User, error) {
		return scanUser(row)
	})
}

func (r *UserRepository) Count(ctx context.Context, f query.Filter) (int64, error) {
	sql, args, err := countSQL(usersTable, f)
	if err != nil {
		return 0, err
	}
	var n int64
	err = r.s.pool.QueryRow(ctx, sql, args...).Scan(&n)
	return n, err
}

func (r *UserRepository) getOne(ctx context.Context, tx repository.Tx, where string, arg any) (*entity.User, error) {
	q, err := r.s.q(tx)
	if err != nil {
		return nil, err
	}
	u, err := scanUser(q.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE `+where, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, mapError(err)
	}
	return &u, nil
}

func (r *UserRepository) GetByID(ctx context.Context, tx repository.Tx, id string) (*entity.User, error) {
	return r.getOne(ctx, tx, "id = $1", id)
}

func (r *UserRepository) GetByEmail(ctx context.Context, tx repository.Tx, email string) (*entity.User, error) {
	return r.getOne(ctx, tx, "lower(email) = lower($1)", email)
}

func (r *UserRepository) Create(ctx context.Context, tx repository.Tx, u *entity.User) error {
	id := uuid.NewString()
	created := u.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	pending := u.Clone().PendingTasks
	err := r.s.write(ctx, tx, func(q querier) error {
		_, err := q.Exec(ctx, `
			INSERT INTO users (id, name, email, pending_tasks, created_at)
			VALUES ($1, $2, $3, $4, $5)
		`, id, u.Name, u.Email, pending, created)
		return err
	})
	if err != nil {
		return err
	}
	u.ID, u.CreatedAt, u.PendingTasks = id, created, pending
	return nil
}

func (r *UserRepository) Replace(ctx context.Context, tx repository.Tx, u *entity.User) error {
	return r.s.write(ctx, tx, func(q querier) error {
		res, err := q.Exec(ctx, `
			UPDATE users
			SET name = $2, email = $3, pending_tasks = $4, created_at = $5
			WHERE id = $1
		`, u.ID, u.Name, u.Email, u.Clone().PendingTasks, u.CreatedAt)
		if err != nil {
			return err
		}
		if res.RowsAffected() == 0 {
			return repository.ErrNotFound
		}
		return nil
	})
}

func (r *UserRepository) Delete(ctx context.Context, tx repository.Tx, id string) error {
	return r.s.write(ctx, tx, func(q querier) error {
		res, err := q.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
		if err != nil {
			return err
		}
		if res.RowsAffected() == 0 {
			return repository.ErrNotFound
		}
		return nil
	})
}

// Touch takes a row write. Under repeatable read a concurrent update or
// delete of the same row then fails one side with a serialization error.
func (r *UserRepository) Touch(ctx context.Context, tx repository.Tx, id string) error {
	return r.s.write(ctx, tx, func(q querier) error {
		res, err := q.Exec(ctx, `UPDATE users SET id = id WHERE id = $1`, id)
		if err != nil {
			return err
		}
		if res.RowsAffected() == 0 {
			return repository.ErrNotFound
		}
		return nil
	})
}

func (r *UserRepository) AddPendingTask(ctx context.Context, tx repository.Tx, userID, taskID string) error {
	return r.s.write(ctx, tx, func(q querier) error {
		_, err := q.Exec(ctx, `
			UPDATE users
			SET pending_tasks = array_append(pending_tasks, $2::text)
			WHERE id = $1 AND NOT ($2::text = ANY(pending_tasks))
		`, userID, taskID)
		return err
	})
}

func (r *UserRepository) RemovePendingTask(ctx context.Context, tx repository.Tx, userID, taskID string) error {
	return r.s.write(ctx, tx, func(q querier) error {
		_, err := q.Exec(ctx, `
			UPDATE users
			SET pending_tasks = array_remove(pending_tasks, $2::text)
			WHERE id = $1 AND $2::text = ANY(pending_tasks)
		`, userID, taskID)
		return err
	})
}

func (r *UserRepository) PullPendingTasks(ctx context.Context, tx repository.Tx, taskIDs []string, exceptUserID string) ([]string, error) {
	if len(taskIDs) == 0 {
		return nil, nil
	}
	var changed []string
	err := r.s.write(ctx, tx, func(q querier) error {
		rows, err := q.Query(ctx, `
			UPDATE users
			SET pending_tasks = ARRAY(
				SELECT p.t FROM unnest(pending_tasks) WITH ORDINALITY AS p(t, n)
				WHERE p.t <> ALL($1::text[])
				ORDER BY p.n
			)
			WHERE pending_tasks && $1::text[] AND id <> $2
			RETURNING id
		`, taskIDs, exceptUserID)
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

var _ repository.UserRepository = (*UserRepository)(nil)

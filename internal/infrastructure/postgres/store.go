// Package postgres implements repository.Store on PostgreSQL through pgx.
//
// Transactions run at REPEATABLE READ, which PostgreSQL implements as
// snapshot isolation: a transaction that updates a row changed by a
// concurrent committed transaction fails with a serialization error, reported
// as repository.ErrTxConflict.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/oksasatya/go-ddd-task-sync/internal/domain/repository"
)

const emailIndex = "users_email_key"

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Store struct {
	pool  *pgxpool.Pool
	users *UserRepository
	tasks *TaskRepository
}

func NewStore(pool *pgxpool.Pool) *Store {
	s := &Store{pool: pool}
	s.users = &UserRepository{s: s}
	s.tasks = &TaskRepository{s: s}
	return s
}

func (s *Store) Users() repository.UserRepository { return s.users }
func (s *Store) Tasks() repository.TaskRepository { return s.tasks }

func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

func (s *Store) Close(ctx context.Context) error {
	s.pool.Close()
	return nil
}

func (s *Store) Begin(ctx context.Context) (repository.Tx, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return nil, mapError(err)
	}
	return &pgTx{tx: tx, s: s}, nil
}

type pgTx struct {
	tx pgx.Tx
	s  *Store
}

func (t *pgTx) Commit(ctx context.Context) error {
	return mapError(t.tx.Commit(ctx))
}

func (t *pgTx) Rollback(ctx context.Context) error {
	err := t.tx.Rollback(ctx)
	if errors.Is(err, pgx.ErrTxClosed) {
		return nil
	}
	return err
}

// q returns the connection a call runs on: the pool for a nil handle,
// otherwise the transaction behind it.
func (s *Store) q(tx repository.Tx) (querier, error) {
	if tx == nil {
		return s.pool, nil
	}
	t, ok := tx.(*pgTx)
	if !ok || t.s != s {
		return nil, repository.ErrForeignTx
	}
	return t.tx, nil
}

// write runs fn on the transaction behind tx, or in a transaction of its own
// when tx is nil.
func (s *Store) write(ctx context.Context, tx repository.Tx, fn func(q querier) error) error {
	if tx != nil {
		q, err := s.q(tx)
		if err != nil {
			return err
		}
		return mapError(fn(q))
	}
	return mapError(pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{IsoLevel: pgx.RepeatableRead}, func(t pgx.Tx) error {
		return fn(t)
	}))
}

func mapError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			if pgErr.ConstraintName == emailIndex {
				return repository.ErrDuplicateEmail
			}
		case "40001", "40P01":
			return fmt.Errorf("%w: %s", repository.ErrTxConflict, pgErr.Message)
		}
	}
	return err
}

var _ repository.Store = (*Store)(nil)

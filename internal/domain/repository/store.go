package repository

import (
	"context"
	"errors"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrDuplicateEmail = errors.New("duplicate email")
	ErrTxConflict     = errors.New("transaction conflict")
	ErrForeignTx      = errors.New("transaction handle belongs to another store")
)

// Tx is the handle of one store transaction. Every call made on behalf of a
// request carries the same handle; it is released by exactly one of Commit
// or Rollback. Rollback after Commit is a no-op.
type Tx interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// TxManager opens transactions with snapshot (or stronger) isolation.
type TxManager interface {
	Begin(ctx context.Context) (Tx, error)
}

// Store bundles both collections behind one transaction manager.
type Store interface {
	TxManager
	Users() UserRepository
	Tasks() TaskRepository
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

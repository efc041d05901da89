// Package memory is an in-process implementation of repository.Store.
//
// Every transaction works on a private snapshot taken at Begin. Commit checks
// each document the transaction wrote against the committed version it started
// from and fails with repository.ErrTxConflict when another transaction
// committed first. Email uniqueness is enforced at write time and again at
// commit.
package memory

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/oksasatya/go-ddd-task-sync/internal/domain/entity"
	"github.com/oksasatya/go-ddd-task-sync/internal/domain/repository"
)

var errTxDone = errors.New("memory: transaction already finished")

type userRec struct {
	doc     entity.User
	version uint64
}

type taskRec struct {
	doc     entity.Task
	version uint64
}

// Store holds the committed state of both collections.
type Store struct {
	mu      sync.Mutex
	users   map[string]userRec
	tasks   map[string]taskRec
	version uint64
	faults  map[string]error
	now     func() time.Time

	userRepo *UserRepository
	taskRepo *TaskRepository
}

// New returns an empty store.
func New() *Store {
	s := &Store{
		users:  make(map[string]userRec),
		tasks:  make(map[string]taskRec),
		faults: make(map[string]error),
		now:    monotonicClock(),
	}
	s.userRepo = &UserRepository{s: s}
	s.taskRepo = &TaskRepository{s: s}
	return s
}

// monotonicClock never returns the same instant twice, so creation order is
// total even for documents created back to back.
func monotonicClock() func() time.Time {
	var (
		mu   sync.Mutex
		last time.Time
	)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t := time.Now().UTC()
		if !t.After(last) {
			t = last.Add(time.Nanosecond)
		}
		last = t
		return t
	}
}

func (s *Store) Users() repository.UserRepository { return s.userRepo }
func (s *Store) Tasks() repository.TaskRepository { return s.taskRepo }

func (s *Store) Ping(ctx context.Context) error  { return ctx.Err() }
func (s *Store) Close(ctx context.Context) error { return nil }

// FailOn makes the named operation return err until ClearFaults is called.
// Operation names are "<collection>.<op>" such as "users.add_pending", or
// "commit".
func (s *Store) FailOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[op] = err
}

// ClearFaults removes every injected failure.
func (s *Store) ClearFaults() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults = make(map[string]error)
}

func (s *Store) fault(op string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.faults[op]
}

// Begin snapshots the committed state.
func (s *Store) Begin(ctx context.Context) (repository.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &memTx{
		s:          s,
		users:      make(map[string]userRec, len(s.users)),
		tasks:      make(map[string]taskRec, len(s.tasks)),
		baseUsers:  make(map[string]uint64),
		baseTasks:  make(map[string]uint64),
		dirtyUsers: make(map[string]bool),
		dirtyTasks: make(map[string]bool),
	}
	for id, r := range s.users {
		t.users[id] = userRec{doc: r.doc.Clone(), version: r.version}
	}
	for id, r := range s.tasks {
		t.tasks[id] = r
	}
	return t, nil
}

type memTx struct {
	s *Store

	users map[string]userRec
	tasks map[string]taskRec

	baseUsers  map[string]uint64
	baseTasks  map[string]uint64
	dirtyUsers map[string]bool
	dirtyTasks map[string]bool

	done bool
}

func (t *memTx) touchUser(id string) {
	if !t.dirtyUsers[id] {
		t.baseUsers[id] = t.users[id].version
		t.dirtyUsers[id] = true
	}
}

func (t *memTx) touchTask(id string) {
	if !t.dirtyTasks[id] {
		t.baseTasks[id] = t.tasks[id].version
		t.dirtyTasks[id] = true
	}
}

func (t *memTx) emailTaken(email, exceptID string) bool {
	for id, r := range t.users {
		if id != exceptID && strings.EqualFold(r.doc.Email, email) {
			return true
		}
	}
	return false
}

func (t *memTx) Commit(ctx context.Context) error {
	if t.done {
		return errTxDone
	}
	if err := t.s.fault("commit"); err != nil {
		t.done = true
		return err
	}

	s := t.s
	s.mu.Lock()
	defer s.mu.Unlock()
	t.done = true

	for id := range t.dirtyUsers {
		if s.users[id].version != t.baseUsers[id] {
			return repository.ErrTxConflict
		}
	}
	for id := range t.dirtyTasks {
		if s.tasks[id].version != t.baseTasks[id] {
			return repository.ErrTxConflict
		}
	}

	// Email uniqueness over the state this commit would produce.
	seen := make(map[string]string, len(s.users))
	check := func(id, email string) bool {
		key := strings.ToLower(email)
		if other, ok := seen[key]; ok && other != id {
			return false
		}
		seen[key] = id
		return true
	}
	for id, r := range s.users {
		if t.dirtyUsers[id] {
			continue
		}
		seen[strings.ToLower(r.doc.Email)] = id
	}
	for id := range t.dirtyUsers {
		if r, ok := t.users[id]; ok && !check(id, r.doc.Email) {
			return repository.ErrDuplicateEmail
		}
	}

	for id := range t.dirtyUsers {
		r, ok := t.users[id]
		if !ok {
			delete(s.users, id)
			continue
		}
		s.version++
		s.users[id] = userRec{doc: r.doc.Clone(), version: s.version}
	}
	for id := range t.dirtyTasks {
		r, ok := t.tasks[id]
		if !ok {
			delete(s.tasks, id)
			continue
		}
		s.version++
		s.tasks[id] = taskRec{doc: r.doc, version: s.version}
	}
	return nil
}

func (t *memTx) Rollback(ctx context.Context) error {
	t.done = true
	return nil
}

// view resolves the handle a repository call runs against. A nil handle
// reads a fresh snapshot of the committed state.
func (s *Store) view(ctx context.Context, tx repository.Tx) (*memTx, error) {
	if tx == nil {
		t, err := s.Begin(ctx)
		if err != nil {
			return nil, err
		}
		return t.(*memTx), nil
	}
	t, ok := tx.(*memTx)
	if !ok || t.s != s {
		return nil, repository.ErrForeignTx
	}
	if t.done {
		return nil, errTxDone
	}
	return t, nil
}

// write runs fn inside tx, or inside an implicit transaction when tx is nil.
func (s *Store) write(ctx context.Context, tx repository.Tx, op string, fn func(t *memTx) error) error {
	if err := s.fault(op); err != nil {
		return err
	}
	if tx != nil {
		t, err := s.view(ctx, tx)
		if err != nil {
			return err
		}
		return fn(t)
	}
	t, err := s.view(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(t); err != nil {
		return err
	}
	return t.Commit(ctx)
}

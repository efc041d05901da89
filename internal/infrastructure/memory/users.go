package memory

import (
	"context"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/oksasatya/go-ddd-task-sync/internal/domain/entity"
	"github.com/oksasatya/go-ddd-task-sync/internal/domain/repository"
	"github.com/oksasatya/go-ddd-task-sync/pkg/query"
)

type UserRepository struct {
	s *Store
}

func userFields(u entity.User) map[string]any {
	return map[string]any{
		"_id":          u.ID,
		"name":         u.Name,
		"email":        u.Email,
		"pendingTasks": u.PendingTasks,
		"dateCreated":  u.CreatedAt,
	}
}

func (r *UserRepository) Find(ctx context.Context, q query.Params) ([]entity.User, error) {
	t, err := r.s.view(ctx, nil)
	if err != nil {
		return nil, err
	}
	docs := make([]entity.User, 0, len(t.users))
	for _, rec := range t.users {
		docs = append(docs, rec.doc)
	}
	return selectDocs(docs, userFields, func(u entity.User) string { return u.ID }, q)
}

func (r *UserRepository) Count(ctx context.Context, f query.Filter) (int64, error) {
	docs, err := r.Find(ctx, query.Params{Filter: f})
	if err != nil {
		return 0, err
	}
	return int64(len(docs)), nil
}

func (r *UserRepository) GetByID(ctx context.Context, tx repository.Tx, id string) (*entity.User, error) {
	t, err := r.s.view(ctx, tx)
	if err != nil {
		return nil, err
	}
	rec, ok := t.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	u := rec.doc.Clone()
	return &u, nil
}

func (r *UserRepository) GetByEmail(ctx context.Context, tx repository.Tx, email string) (*entity.User, error) {
	t, err := r.s.view(ctx, tx)
	if err != nil {
		return nil, err
	}
	for _, rec := range t.users {
		if strings.EqualFold(rec.doc.Email, email) {
			u := rec.doc.Clone()
			return &u, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *UserRepository) Create(ctx context.Context, tx repository.Tx, u *entity.User) error {
	return r.s.write(ctx, tx, "users.create", func(t *memTx) error {
		if t.emailTaken(u.Email, "") {
			return repository.ErrDuplicateEmail
		}
		u.ID = uuid.NewString()
		if u.CreatedAt.IsZero() {
			u.CreatedAt = r.s.now()
		}
		t.touchUser(u.ID)
		t.users[u.ID] = userRec{doc: u.Clone()}
		return nil
	})
}

func (r *UserRepository) Replace(ctx context.Context, tx repository.Tx, u *entity.User) error {
	return r.s.write(ctx, tx, "users.replace", func(t *memTx) error {
		rec, ok := t.users[u.ID]
		if !ok {
			return repository.ErrNotFound
		}
		if t.emailTaken(u.Email, u.ID) {
			return repository.ErrDuplicateEmail
		}
		t.touchUser(u.ID)
		rec.doc = u.Clone()
		t.users[u.ID] = rec
		return nil
	})
}

func (r *UserRepository) Delete(ctx context.Context, tx repository.Tx, id string) error {
	return r.s.write(ctx, tx, "users.delete", func(t *memTx) error {
		if _, ok := t.users[id]; !ok {
			return repository.ErrNotFound
		}
		t.touchUser(id)
		delete(t.users, id)
		return nil
	})
}

func (r *UserRepository) Touch(ctx context.Context, tx repository.Tx, id string) error {
	return r.s.write(ctx, tx, "users.touch", func(t *memTx) error {
		if _, ok := t.users[id]; !ok {
			return repository.ErrNotFound
		}
		t.touchUser(id)
		return nil
	})
}

func (r *UserRepository) AddPendingTask(ctx context.Context, tx repository.Tx, userID, taskID string) error {
	return r.s.write(ctx, tx, "users.add_pending", func(t *memTx) error {
		rec, ok := t.users[userID]
		if !ok || rec.doc.HasPending(taskID) {
			return nil
		}
		t.touchUser(userID)
		rec.doc.PendingTasks = append(slices.Clone(rec.doc.PendingTasks), taskID)
		t.users[userID] = rec
		return nil
	})
}

func (r *UserRepository) RemovePendingTask(ctx context.Context, tx repository.Tx, userID, taskID string) error {
	return r.s.write(ctx, tx, "users.remove_pending", func(t *memTx) error {
		rec, ok := t.users[userID]
		if !ok || !rec.doc.HasPending(taskID) {
			return nil
		}
		t.touchUser(userID)
		rec.doc.PendingTasks = slices.DeleteFunc(slices.Clone(rec.doc.PendingTasks), func(id string) bool { return id == taskID })
		t.users[userID] = rec
		return nil
	})
}

func (r *UserRepository) PullPendingTasks(ctx context.Context, tx repository.Tx, taskIDs []string, exceptUserID string) ([]string, error) {
	var changed []string
	err := r.s.write(ctx, tx, "users.pull_pending", func(t *memTx) error {
		for _, id := range sortedIDs(t.users) {
			if id == exceptUserID {
				continue
			}
			rec := t.users[id]
			kept := slices.DeleteFunc(slices.Clone(rec.doc.PendingTasks), func(tid string) bool {
				return slices.Contains(taskIDs, tid)
			})
			if len(kept) == len(rec.doc.PendingTasks) {
				continue
			}
			t.touchUser(id)
			rec.doc.PendingTasks = kept
			t.users[id] = rec
			changed = append(changed, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return changed, nil
}

var _ repository.UserRepository = (*UserRepository)(nil)

package memory

import (
	"context"

	"github.com/google/uuid"

	"github.com/oksasatya/go-ddd-task-sync/internal/domain/entity"
	"github.com/oksasatya/go-ddd-task-sync/internal/domain/repository"
	"github.com/oksasatya/go-ddd-task-sync/pkg/query"
)

type TaskRepository struct {
	s *Store
}

func taskFields(t entity.Task) map[string]any {
	return map[string]any{
		"_id":              t.ID,
		"name":             t.Name,
		"description":      t.Description,
		"deadline":         t.Deadline,
		"completed":        t.Completed,
		"assignedUser":     t.AssignedUser,
		"assignedUserName": t.AssignedUserName,
		"dateCreated":      t.CreatedAt,
	}
}

func (r *TaskRepository) Find(ctx context.Context, q query.Params) ([]entity.Task, error) {
	t, err := r.s.view(ctx, nil)
	if err != nil {
		return nil, err
	}
	docs := make([]entity.Task, 0, len(t.tasks))
	for _, rec := range t.tasks {
		docs = append(docs, rec.doc)
	}
	return selectDocs(docs, taskFields, func(t entity.Task) string { return t.ID }, q)
}

func (r *TaskRepository) Count(ctx context.Context, f query.Filter) (int64, error) {
	docs, err := r.Find(ctx, query.Params{Filter: f})
	if err != nil {
		return 0, err
	}
	return int64(len(docs)), nil
}

func (r *TaskRepository) GetByID(ctx context.Context, tx repository.Tx, id string) (*entity.Task, error) {
	t, err := r.s.view(ctx, tx)
	if err != nil {
		return nil, err
	}
	rec, ok := t.tasks[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	doc := rec.doc
	return &doc, nil
}

func (r *TaskRepository) GetByIDs(ctx context.Context, tx repository.Tx, ids []string) ([]entity.Task, error) {
	t, err := r.s.view(ctx, tx)
	if err != nil {
		return nil, err
	}
	out := make([]entity.Task, 0, len(ids))
	for _, id := range ids {
		if rec, ok := t.tasks[id]; ok {
			out = append(out, rec.doc)
		}
	}
	return out, nil
}

func (r *TaskRepository) Create(ctx context.Context, tx repository.Tx, task *entity.Task) error {
	return r.s.write(ctx, tx, "tasks.create", func(t *memTx) error {
		task.ID = uuid.NewString()
		if task.CreatedAt.IsZero() {
			task.CreatedAt = r.s.now()
		}
		t.touchTask(task.ID)
		t.tasks[task.ID] = taskRec{doc: *task}
		return nil
	})
}

func (r *TaskRepository) Replace(ctx context.Context, tx repository.Tx, task *entity.Task) error {
	return r.s.write(ctx, tx, "tasks.replace", func(t *memTx) error {
		rec, ok := t.tasks[task.ID]
		if !ok {
			return repository.ErrNotFound
		}
		t.touchTask(task.ID)
		rec.doc = *task
		t.tasks[task.ID] = rec
		return nil
	})
}

func (r *TaskRepository) Delete(ctx context.Context, tx repository.Tx, id string) error {
	return r.s.write(ctx, tx, "tasks.delete", func(t *memTx) error {
		if _, ok := t.tasks[id]; !ok {
			return repository.ErrNotFound
		}
		t.touchTask(id)
		delete(t.tasks, id)
		return nil
	})
}

func (r *TaskRepository) AssignMany(ctx context.Context, tx repository.Tx, ids []string, userID, userName string) error {
	return r.s.write(ctx, tx, "tasks.assign_many", func(t *memTx) error {
		for _, id := range ids {
			rec, ok := t.tasks[id]
			if !ok {
				continue
			}
			t.touchTask(id)
			rec.doc.AssignedUser = userID
			rec.doc.AssignedUserName = userName
			t.tasks[id] = rec
		}
		return nil
	})
}

func (r *TaskRepository) UnassignAll(ctx context.Context, tx repository.Tx, userID string) ([]string, error) {
	if userID == "" {
		return nil, nil
	}
	var changed []string
	err := r.s.write(ctx, tx, "tasks.unassign_all", func(t *memTx) error {
		for _, id := range sortedIDs(t.tasks) {
			rec := t.tasks[id]
			if rec.doc.AssignedUser != userID {
				continue
			}
			t.touchTask(id)
			rec.doc.AssignTo(nil)
			t.tasks[id] = rec
			changed = append(changed, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return changed, nil
}

var _ repository.TaskRepository = (*TaskRepository)(nil)

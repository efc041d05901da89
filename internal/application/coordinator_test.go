package application

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/oksasatya/go-ddd-task-sync/internal/domain/entity"
	repo "github.com/oksasatya/go-ddd-task-sync/internal/domain/repository"
	"github.com/oksasatya/go-ddd-task-sync/internal/infrastructure/memory"
	"github.com/oksasatya/go-ddd-task-sync/pkg/query"
)

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) Notify(ctx context.Context, cs ChangeSet) error {
	args := m.Called(ctx, cs)
	return args.Error(0)
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func setup(t *testing.T, notifiers ...ChangeNotifier) (*Coordinator, *memory.Store) {
	t.Helper()
	store := memory.New()
	return NewCoordinator(store, quietLogger(), notifiers...), store
}

func boolPtr(b bool) *bool { return &b }

var deadline = time.Date(2026, 12, 1, 17, 0, 0, 0, time.UTC)

func mustUser(t *testing.T, c *Coordinator, name, email string, pending ...string) *entity.User {
	t.Helper()
	u, err := c.CreateUser(context.Background(), UserInput{Name: name, Email: email, PendingTasks: pending})
	require.NoError(t, err)
	return u
}

func mustTask(t *testing.T, c *Coordinator, name, assignee string, completed bool) *entity.Task {
	t.Helper()
	task, err := c.CreateTask(context.Background(), TaskInput{
		Name:         name,
		Deadline:     deadline,
		Completed:    boolPtr(completed),
		AssignedUser: assignee,
	})
	require.NoError(t, err)
	return task
}

func getUser(t *testing.T, c *Coordinator, id string) *entity.User {
	t.Helper()
	u, err := c.GetUser(context.Background(), id)
	require.NoError(t, err)
	return u
}

func getTask(t *testing.T, c *Coordinator, id string) *entity.Task {
	t.Helper()
	task, err := c.GetTask(context.Background(), id)
	require.NoError(t, err)
	return task
}

// assertConsistent checks both directions of the assignment link over the
// whole store.
func assertConsistent(t *testing.T, c *Coordinator) {
	t.Helper()
	ctx := context.Background()
	users, err := c.ListUsers(ctx, query.Params{})
	require.NoError(t, err)
	tasks, err := c.ListTasks(ctx, query.Params{})
	require.NoError(t, err)

	byID := make(map[string]entity.User, len(users))
	holders := make(map[string][]string)
	for _, u := range users {
		byID[u.ID] = u
		for _, tid := range u.PendingTasks {
			holders[tid] = append(holders[tid], u.ID)
		}
	}
	for _, task := range tasks {
		if task.AssignedUser == "" {
			assert.Equal(t, entity.UnassignedName, task.AssignedUserName, "task %s", task.Name)
		} else {
			_, ok := byID[task.AssignedUser]
			assert.True(t, ok, "task %s points at a missing user", task.Name)
		}
		assert.LessOrEqual(t, len(holders[task.ID]), 1, "task %s is pending on several users", task.Name)
		if task.IsPending() {
			assert.Equal(t, []string{task.AssignedUser}, holders[task.ID], "task %s", task.Name)
		} else {
			assert.Empty(t, holders[task.ID], "task %s", task.Name)
		}
	}
}

func TestScenarios(t *testing.T) {
	ctx := context.Background()
	c, _ := setup(t)

	// A
	ann := mustUser(t, c, "Ann", "ann@x.com")
	assert.Empty(t, ann.PendingTasks)
	assert.NotNil(t, ann.PendingTasks)

	// B
	t1 := mustTask(t, c, "T1", ann.ID, false)
	assert.Equal(t, "Ann", t1.AssignedUserName)
	assert.Equal(t, []string{t1.ID}, getUser(t, c, ann.ID).PendingTasks)
	assertConsistent(t, c)

	// C
	_, err := c.ReplaceTask(ctx, t1.ID, TaskInput{Name: "T1", Deadline: deadline, Completed: boolPtr(true), AssignedUser: ann.ID})
	require.NoError(t, err)
	assert.Empty(t, getUser(t, c, ann.ID).PendingTasks)
	assertConsistent(t, c)

	// D
	bob := mustUser(t, c, "Bob", "bob@x.com")
	_, err = c.ReplaceTask(ctx, t1.ID, TaskInput{Name: "T1", Deadline: deadline, Completed: boolPtr(false), AssignedUser: bob.ID})
	require.NoError(t, err)
	assert.Empty(t, getUser(t, c, ann.ID).PendingTasks)
	assert.Equal(t, []string{t1.ID}, getUser(t, c, bob.ID).PendingTasks)
	assert.Equal(t, "Bob", getTask(t, c, t1.ID).AssignedUserName)
	assertConsistent(t, c)

	// E
	_, err = c.ReplaceTask(ctx, t1.ID, TaskInput{Name: "T1", Deadline: deadline, Completed: boolPtr(false), AssignedUser: ann.ID})
	require.NoError(t, err)
	require.NoError(t, c.DeleteUser(ctx, ann.ID))
	got := getTask(t, c, t1.ID)
	assert.Empty(t, got.AssignedUser)
	assert.Equal(t, entity.UnassignedName, got.AssignedUserName)
	_, err = c.GetUser(ctx, ann.ID)
	assert.ErrorIs(t, err, ErrUserNotFound)
	assertConsistent(t, c)

	// F
	done := mustTask(t, c, "Done", "", true)
	open := mustTask(t, c, "Open", "", false)
	cara := mustUser(t, c, "Cara", "cara@x.com", done.ID, open.ID, open.ID, "missing")
	assert.Equal(t, []string{open.ID}, cara.PendingTasks)
	assert.Equal(t, cara.ID, getTask(t, c, open.ID).AssignedUser)
	assert.Empty(t, getTask(t, c, done.ID).AssignedUser)
	assertConsistent(t, c)
}

func TestCreateUserTakesTasksFromOtherUsers(t *testing.T) {
	c, _ := setup(t)
	ann := mustUser(t, c, "Ann", "ann@x.com")
	t1 := mustTask(t, c, "T1", ann.ID, false)

	bob := mustUser(t, c, "Bob", "bob@x.com", t1.ID)

	assert.Empty(t, getUser(t, c, ann.ID).PendingTasks)
	assert.Equal(t, []string{t1.ID}, getUser(t, c, bob.ID).PendingTasks)
	got := getTask(t, c, t1.ID)
	assert.Equal(t, bob.ID, got.AssignedUser)
	assert.Equal(t, "Bob", got.AssignedUserName)
	assertConsistent(t, c)
}

func TestReplaceUser(t *testing.T) {
	ctx := context.Background()
	c, _ := setup(t)
	ann := mustUser(t, c, "Ann", "ann@x.com")
	t1 := mustTask(t, c, "T1", ann.ID, false)
	t2 := mustTask(t, c, "T2", ann.ID, false)

	got, err := c.ReplaceUser(ctx, ann.ID, UserInput{Name: "Annie", Email: " ANN@x.com ", PendingTasks: []string{t2.ID}})
	require.NoError(t, err)
	assert.Equal(t, "ann@x.com", got.Email)
	assert.Equal(t, []string{t2.ID}, got.PendingTasks)
	assert.True(t, got.CreatedAt.Equal(ann.CreatedAt))

	assert.Equal(t, "Annie", getTask(t, c, t2.ID).AssignedUserName)
	dropped := getTask(t, c, t1.ID)
	assert.Empty(t, dropped.AssignedUser)
	assert.Equal(t, entity.UnassignedName, dropped.AssignedUserName)
	assertConsistent(t, c)
}

func TestReplaceUserKeepsCompletedTasks(t *testing.T) {
	ctx := context.Background()
	c, _ := setup(t)
	ann := mustUser(t, c, "Ann", "ann@x.com")
	done := mustTask(t, c, "Done", ann.ID, true)
	open := mustTask(t, c, "Open", ann.ID, false)

	got, err := c.ReplaceUser(ctx, ann.ID, UserInput{Name: "Ann", Email: "ann@x.com"})
	require.NoError(t, err)
	assert.Empty(t, got.PendingTasks)

	assert.Equal(t, ann.ID, getTask(t, c, done.ID).AssignedUser, "completed tasks are not on the list and keep their assignee")
	assert.Empty(t, getTask(t, c, open.ID).AssignedUser)
	assertConsistent(t, c)
}

func TestUserErrors(t *testing.T) {
	ctx := context.Background()
	c, _ := setup(t)
	ann := mustUser(t, c, "Ann", "ann@x.com")
	bob := mustUser(t, c, "Bob", "bob@x.com")

	tests := []struct {
		name    string
		run     func() error
		wantErr error
		fields  []string
	}{
		{
			name:    "create without name and email",
			run:     func() error { _, err := c.CreateUser(ctx, UserInput{}); return err },
			wantErr: ErrValidation,
			fields:  []string{"name", "email"},
		},
		{
			name:    "create with malformed email",
			run:     func() error { _, err := c.CreateUser(ctx, UserInput{Name: "X", Email: "nope"}); return err },
			wantErr: ErrValidation,
			fields:  []string{"email"},
		},
		{
			name:    "create with taken email in another case",
			run:     func() error { _, err := c.CreateUser(ctx, UserInput{Name: "X", Email: "Ann@X.com"}); return err },
			wantErr: ErrDuplicateEmail,
		},
		{
			name:    "replace with email of another user",
			run:     func() error { _, err := c.ReplaceUser(ctx, bob.ID, UserInput{Name: "Bob", Email: "ann@x.com"}); return err },
			wantErr: ErrDuplicateEmail,
		},
		{
			name:    "replace missing user",
			run:     func() error { _, err := c.ReplaceUser(ctx, "nope", UserInput{Name: "X", Email: "x@x.com"}); return err },
			wantErr: ErrUserNotFound,
		},
		{
			name:    "delete missing user",
			run:     func() error { return c.DeleteUser(ctx, "nope") },
			wantErr: ErrUserNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.run()
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			if len(tt.fields) > 0 {
				var verr *ValidationError
				require.ErrorAs(t, err, &verr)
				for _, f := range tt.fields {
					assert.Contains(t, verr.Fields, f)
				}
			}
		})
	}

	// Keeping one's own email is not a conflict.
	_, err := c.ReplaceUser(ctx, ann.ID, UserInput{Name: "Ann B", Email: "ann@x.com"})
	assert.NoError(t, err)
}

func TestTaskErrors(t *testing.T) {
	ctx := context.Background()
	c, _ := setup(t)
	task := mustTask(t, c, "T1", "", false)

	tests := []struct {
		name    string
		run     func() error
		wantErr error
		fields  []string
	}{
		{
			name:    "create without name and deadline",
			run:     func() error { _, err := c.CreateTask(ctx, TaskInput{}); return err },
			wantErr: ErrValidation,
			fields:  []string{"name", "deadline"},
		},
		{
			name:    "replace without completed",
			run:     func() error { _, err := c.ReplaceTask(ctx, task.ID, TaskInput{Name: "T1", Deadline: deadline}); return err },
			wantErr: ErrValidation,
			fields:  []string{"completed"},
		},
		{
			name: "replace missing task",
			run: func() error {
				_, err := c.ReplaceTask(ctx, "nope", TaskInput{Name: "T", Deadline: deadline, Completed: boolPtr(false)})
				return err
			},
			wantErr: ErrTaskNotFound,
		},
		{
			name:    "delete missing task",
			run:     func() error { return c.DeleteTask(ctx, "nope") },
			wantErr: ErrTaskNotFound,
		},
		{
			name:    "get missing task",
			run:     func() error { _, err := c.GetTask(ctx, "nope"); return err },
			wantErr: ErrTaskNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.run()
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			var verr *ValidationError
			if len(tt.fields) > 0 {
				require.ErrorAs(t, err, &verr)
				for _, f := range tt.fields {
					assert.Contains(t, verr.Fields, f)
				}
			}
		})
	}
}

func TestTaskTransitions(t *testing.T) {
	ctx := context.Background()

	type state struct {
		assignee  string // "ann", "bob" or ""
		completed bool
	}
	states := []state{{"", false}, {"", true}, {"ann", false}, {"ann", true}, {"bob", false}, {"bob", true}}

	for _, from := range states {
		for _, to := range states {
			t.Run(from.assignee+"->"+to.assignee, func(t *testing.T) {
				c, _ := setup(t)
				ids := map[string]string{"": ""}
				ids["ann"] = mustUser(t, c, "Ann", "ann@x.com").ID
				ids["bob"] = mustUser(t, c, "Bob", "bob@x.com").ID

				task := mustTask(t, c, "T", ids[from.assignee], from.completed)
				assertConsistent(t, c)

				_, err := c.ReplaceTask(ctx, task.ID, TaskInput{
					Name:         "T",
					Deadline:     deadline,
					Completed:    boolPtr(to.completed),
					AssignedUser: ids[to.assignee],
				})
				require.NoError(t, err)
				assertConsistent(t, c)
			})
		}
	}
}

func TestReplacePreservesCreationTime(t *testing.T) {
	ctx := context.Background()
	c, _ := setup(t)
	ann := mustUser(t, c, "Ann", "ann@x.com")
	task := mustTask(t, c, "T1", "", false)

	time.Sleep(time.Millisecond)
	u, err := c.ReplaceUser(ctx, ann.ID, UserInput{Name: "Ann", Email: "ann@x.com"})
	require.NoError(t, err)
	assert.True(t, u.CreatedAt.Equal(ann.CreatedAt))
	assert.True(t, getUser(t, c, ann.ID).CreatedAt.Equal(ann.CreatedAt))

	got, err := c.ReplaceTask(ctx, task.ID, TaskInput{Name: "T2", Deadline: deadline, Completed: boolPtr(false)})
	require.NoError(t, err)
	assert.True(t, got.CreatedAt.Equal(task.CreatedAt))
	assert.True(t, getTask(t, c, task.ID).CreatedAt.Equal(task.CreatedAt))
}

func TestInvalidAssigneeIsDowngraded(t *testing.T) {
	ctx := context.Background()
	c, _ := setup(t)

	for _, assignee := range []string{"missing", "not-a-uuid", "507f1f77bcf86cd799439011"} {
		task := mustTask(t, c, "T", assignee, false)
		assert.Empty(t, task.AssignedUser)
		assert.Equal(t, entity.UnassignedName, task.AssignedUserName)

		got, err := c.ReplaceTask(ctx, task.ID, TaskInput{Name: "T", Deadline: deadline, Completed: boolPtr(false), AssignedUser: assignee})
		require.NoError(t, err)
		assert.Empty(t, got.AssignedUser)
		assert.Equal(t, entity.UnassignedName, got.AssignedUserName)
	}
	assertConsistent(t, c)
}

func TestFailedStepLeavesNoTrace(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")

	tests := []struct {
		name  string
		fault string
		run   func(c *Coordinator, ann, bob *entity.User, task *entity.Task) error
	}{
		{
			name:  "task reassignment fails while adding to new assignee",
			fault: "users.add_pending",
			run: func(c *Coordinator, ann, bob *entity.User, task *entity.Task) error {
				_, err := c.ReplaceTask(ctx, task.ID, TaskInput{Name: "renamed", Deadline: deadline, Completed: boolPtr(false), AssignedUser: bob.ID})
				return err
			},
		},
		{
			name:  "task reassignment fails at commit",
			fault: "commit",
			run: func(c *Coordinator, ann, bob *entity.User, task *entity.Task) error {
				_, err := c.ReplaceTask(ctx, task.ID, TaskInput{Name: "renamed", Deadline: deadline, Completed: boolPtr(false), AssignedUser: bob.ID})
				return err
			},
		},
		{
			name:  "user delete fails after unassigning tasks",
			fault: "users.delete",
			run: func(c *Coordinator, ann, bob *entity.User, task *entity.Task) error {
				return c.DeleteUser(ctx, ann.ID)
			},
		},
		{
			name:  "user create fails while taking tasks from others",
			fault: "users.pull_pending",
			run: func(c *Coordinator, ann, bob *entity.User, task *entity.Task) error {
				_, err := c.CreateUser(ctx, UserInput{Name: "Cara", Email: "cara@x.com", PendingTasks: []string{task.ID}})
				return err
			},
		},
		{
			name:  "task delete fails after removing from pending set",
			fault: "tasks.delete",
			run: func(c *Coordinator, ann, bob *entity.User, task *entity.Task) error {
				return c.DeleteTask(ctx, task.ID)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			notifier := &mockNotifier{}
			c, store := setup(t, notifier)
			notifier.On("Notify", mock.Anything, mock.Anything).Return(nil)

			ann := mustUser(t, c, "Ann", "ann@x.com")
			bob := mustUser(t, c, "Bob", "bob@x.com")
			task := mustTask(t, c, "T1", ann.ID, false)
			before := notifier.Calls

			usersBefore, _ := c.ListUsers(ctx, query.Params{})
			tasksBefore, _ := c.ListTasks(ctx, query.Params{})

			store.FailOn(tt.fault, boom)
			err := tt.run(c, ann, bob, task)
			store.ClearFaults()

			require.Error(t, err)
			assert.ErrorIs(t, err, boom)

			usersAfter, _ := c.ListUsers(ctx, query.Params{})
			tasksAfter, _ := c.ListTasks(ctx, query.Params{})
			assert.Equal(t, usersBefore, usersAfter)
			assert.Equal(t, tasksBefore, tasksAfter)
			assert.Len(t, notifier.Calls, len(before), "no notification for an aborted transaction")
			assertConsistent(t, c)
		})
	}
}

func TestConflictIsReported(t *testing.T) {
	c, store := setup(t)
	ann := mustUser(t, c, "Ann", "ann@x.com")

	store.FailOn("commit", repo.ErrTxConflict)
	defer store.ClearFaults()
	before := txConflicts.Value()
	_, err := c.ReplaceUser(context.Background(), ann.ID, UserInput{Name: "Ann", Email: "ann@x.com"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, before+1, txConflicts.Value())
}

func TestConcurrentCommitConflict(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	c := NewCoordinator(store, quietLogger())
	ann := mustUser(t, c, "Ann", "ann@x.com")
	task := mustTask(t, c, "T1", "", false)

	// A transaction opened before the coordinator's write and committed after
	// its own update of the same user loses.
	tx, err := store.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, store.Users().AddPendingTask(ctx, tx, ann.ID, "other"))

	_, err = c.ReplaceTask(ctx, task.ID, TaskInput{Name: "T1", Deadline: deadline, Completed: boolPtr(false), AssignedUser: ann.ID})
	require.NoError(t, err)
	assert.ErrorIs(t, tx.Commit(ctx), repo.ErrTxConflict)
	assertConsistent(t, c)
}

func TestAssignRacesUserDelete(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name string
		run  func(c *Coordinator, ann *entity.User, task *entity.Task) error
	}{
		{
			name: "create completed task",
			run: func(c *Coordinator, ann *entity.User, _ *entity.Task) error {
				_, err := c.CreateTask(ctx, TaskInput{Name: "T2", Deadline: deadline, Completed: boolPtr(true), AssignedUser: ann.ID})
				return err
			},
		},
		{
			name: "replace with completed task",
			run: func(c *Coordinator, ann *entity.User, task *entity.Task) error {
				_, err := c.ReplaceTask(ctx, task.ID, TaskInput{Name: "T1", Deadline: deadline, Completed: boolPtr(true), AssignedUser: ann.ID})
				return err
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, store := setup(t)
			ann := mustUser(t, c, "Ann", "ann@x.com")
			task := mustTask(t, c, "T1", "", false)

			// The same steps DeleteUser takes, held open across the assignment.
			tx, err := store.Begin(ctx)
			require.NoError(t, err)
			_, err = store.Tasks().UnassignAll(ctx, tx, ann.ID)
			require.NoError(t, err)
			require.NoError(t, store.Users().Delete(ctx, tx, ann.ID))

			require.NoError(t, tt.run(c, ann, task))
			assert.ErrorIs(t, tx.Commit(ctx), repo.ErrTxConflict)

			assert.Equal(t, "Ann", getUser(t, c, ann.ID).Name)
			assertConsistent(t, c)
		})
	}
}

func TestAssignAfterUserDelete(t *testing.T) {
	ctx := context.Background()
	c, _ := setup(t)
	ann := mustUser(t, c, "Ann", "ann@x.com")
	require.NoError(t, c.DeleteUser(ctx, ann.ID))

	task := mustTask(t, c, "T1", ann.ID, true)
	assert.Empty(t, task.AssignedUser)
	assert.Equal(t, entity.UnassignedName, task.AssignedUserName)
	assertConsistent(t, c)
}

func TestNotifications(t *testing.T) {
	ctx := context.Background()
	notifier := &mockNotifier{}
	notifier.On("Notify", mock.Anything, mock.Anything).Return(errors.New("index down"))
	c, _ := setup(t, notifier)

	ann := mustUser(t, c, "Ann", "ann@x.com")
	task := mustTask(t, c, "T1", ann.ID, false)

	last := func() ChangeSet {
		calls := notifier.Calls
		require.NotEmpty(t, calls)
		return calls[len(calls)-1].Arguments.Get(1).(ChangeSet)
	}

	cs := last()
	assert.Equal(t, []string{task.ID}, cs.Tasks)
	assert.Equal(t, []string{ann.ID}, cs.Users)
	require.Len(t, cs.Assignments, 1)
	assert.Equal(t, Assignment{
		TaskID: task.ID, TaskName: "T1", Deadline: deadline,
		UserID: ann.ID, UserName: "Ann", UserEmail: "ann@x.com",
	}, cs.Assignments[0])

	// Unchanged assignee is not a new assignment.
	_, err := c.ReplaceTask(ctx, task.ID, TaskInput{Name: "T1b", Deadline: deadline, Completed: boolPtr(false), AssignedUser: ann.ID})
	require.NoError(t, err, "notifier errors never fail the request")
	assert.Empty(t, last().Assignments)

	require.NoError(t, c.DeleteUser(ctx, ann.ID))
	cs = last()
	assert.Equal(t, []string{ann.ID}, cs.DeletedUsers)
	assert.Empty(t, cs.Users)
	assert.Equal(t, []string{task.ID}, cs.Tasks)

	require.NoError(t, c.DeleteTask(ctx, task.ID))
	cs = last()
	assert.Equal(t, []string{task.ID}, cs.DeletedTasks)
	assert.Empty(t, cs.Tasks)
}

func TestCountWindow(t *testing.T) {
	ctx := context.Background()
	c, _ := setup(t)
	for _, n := range []string{"a", "b", "c"} {
		mustTask(t, c, n, "", false)
	}
	n, err := c.CountTasks(ctx, query.Params{Skip: 1, Limit: 100})
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	n, err = c.CountUsers(ctx, query.Params{})
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)
}

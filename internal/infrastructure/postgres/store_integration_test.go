package postgres

import (
	"context"
	"io"
	"os"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oksasatya/go-ddd-task-sync/internal/domain/entity"
	"github.com/oksasatya/go-ddd-task-sync/internal/domain/repository"
)

// openTestStore connects to PG_TEST_DSN, migrates it and empties both tables.
// The database is wiped, so point it at a throwaway instance.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("PG_TEST_DSN")
	if dsn == "" {
		t.Skip("PG_TEST_DSN not set")
	}
	ctx := context.Background()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	require.NoError(t, Migrate(dsn, "../../../db/migrations", logger))

	pool, err := NewPool(ctx, PoolConfig{DSN: dsn, AppName: "task-sync-test"})
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	_, err = pool.Exec(ctx, `TRUNCATE users, tasks`)
	require.NoError(t, err)
	return NewStore(pool)
}

func createUser(t *testing.T, s *Store, name, email string, pending ...string) *entity.User {
	t.Helper()
	u := &entity.User{Name: name, Email: email, PendingTasks: pending}
	require.NoError(t, s.Users().Create(context.Background(), nil, u))
	return u
}

func createTask(t *testing.T, s *Store, name, assignee string) *entity.Task {
	t.Helper()
	task := &entity.Task{
		Name:             name,
		Deadline:         time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC),
		AssignedUser:     assignee,
		AssignedUserName: entity.UnassignedName,
	}
	require.NoError(t, s.Tasks().Create(context.Background(), nil, task))
	return task
}

func pendingOf(t *testing.T, s *Store, id string) []string {
	t.Helper()
	u, err := s.Users().GetByID(context.Background(), nil, id)
	require.NoError(t, err)
	return u.PendingTasks
}

func TestIntegration_PendingSetOps(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	ann := createUser(t, s, "Ann", "ann@x.com", "t1", "t2", "t3")
	bob := createUser(t, s, "Bob", "bob@x.com", "t2")

	require.NoError(t, s.Users().AddPendingTask(ctx, nil, bob.ID, "t4"))
	require.NoError(t, s.Users().AddPendingTask(ctx, nil, bob.ID, "t4"))
	assert.Equal(t, []string{"t2", "t4"}, pendingOf(t, s, bob.ID), "adding twice keeps one entry")
	require.NoError(t, s.Users().AddPendingTask(ctx, nil, "missing", "t4"))

	require.NoError(t, s.Users().RemovePendingTask(ctx, nil, bob.ID, "t4"))
	require.NoError(t, s.Users().RemovePendingTask(ctx, nil, bob.ID, "t4"))
	assert.Equal(t, []string{"t2"}, pendingOf(t, s, bob.ID))

	changed, err := s.Users().PullPendingTasks(ctx, nil, []string{"t2", "t3"}, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{ann.ID}, changed)
	assert.Equal(t, []string{"t1"}, pendingOf(t, s, ann.ID), "order of the survivors is kept")
	assert.Equal(t, []string{"t2"}, pendingOf(t, s, bob.ID), "the excepted user is untouched")

	changed, err = s.Users().PullPendingTasks(ctx, nil, nil, "")
	require.NoError(t, err)
	assert.Empty(t, changed)
}

func TestIntegration_AssignAndUnassign(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	ann := createUser(t, s, "Ann", "ann@x.com")
	t1 := createTask(t, s, "T1", "")
	t2 := createTask(t, s, "T2", "")
	other := createTask(t, s, "T3", "someone-else")

	require.NoError(t, s.Tasks().AssignMany(ctx, nil, []string{t1.ID, t2.ID}, ann.ID, ann.Name))
	got, err := s.Tasks().GetByID(ctx, nil, t1.ID)
	require.NoError(t, err)
	assert.Equal(t, ann.ID, got.AssignedUser)
	assert.Equal(t, "Ann", got.AssignedUserName)

	changed, err := s.Tasks().UnassignAll(ctx, nil, ann.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{t1.ID, t2.ID}, changed)
	got, err = s.Tasks().GetByID(ctx, nil, t2.ID)
	require.NoError(t, err)
	assert.Empty(t, got.AssignedUser)
	assert.Equal(t, entity.UnassignedName, got.AssignedUserName)

	got, err = s.Tasks().GetByID(ctx, nil, other.ID)
	require.NoError(t, err)
	assert.Equal(t, "someone-else", got.AssignedUser)

	changed, err = s.Tasks().UnassignAll(ctx, nil, "")
	require.NoError(t, err)
	assert.Empty(t, changed)
}

func TestIntegration_TouchConflictsWithDelete(t *testing.T) {
	ctx := context.Background()

	t.Run("delete commits after touch", func(t *testing.T) {
		s := openTestStore(t)
		ann := createUser(t, s, "Ann", "ann@x.com")

		deleter, err := s.Begin(ctx)
		require.NoError(t, err)
		defer func() { _ = deleter.Rollback(ctx) }()
		_, err = s.Users().GetByID(ctx, deleter, ann.ID)
		require.NoError(t, err)

		toucher, err := s.Begin(ctx)
		require.NoError(t, err)
		require.NoError(t, s.Users().Touch(ctx, toucher, ann.ID))
		require.NoError(t, toucher.Commit(ctx))

		assert.ErrorIs(t, s.Users().Delete(ctx, deleter, ann.ID), repository.ErrTxConflict)
	})

	t.Run("touch after delete commits", func(t *testing.T) {
		s := openTestStore(t)
		ann := createUser(t, s, "Ann", "ann@x.com")

		toucher, err := s.Begin(ctx)
		require.NoError(t, err)
		defer func() { _ = toucher.Rollback(ctx) }()
		_, err = s.Users().GetByID(ctx, toucher, ann.ID)
		require.NoError(t, err)

		require.NoError(t, s.Users().Delete(ctx, nil, ann.ID))
		assert.ErrorIs(t, s.Users().Touch(ctx, toucher, ann.ID), repository.ErrTxConflict)
	})

	t.Run("missing user", func(t *testing.T) {
		s := openTestStore(t)
		assert.ErrorIs(t, s.Users().Touch(ctx, nil, "missing"), repository.ErrNotFound)
	})
}

func TestIntegration_DuplicateEmail(t *testing.T) {
	s := openTestStore(t)
	createUser(t, s, "Ann", "ann@x.com")
	err := s.Users().Create(context.Background(), nil, &entity.User{Name: "Other", Email: "ANN@x.com"})
	assert.ErrorIs(t, err, repository.ErrDuplicateEmail)
}

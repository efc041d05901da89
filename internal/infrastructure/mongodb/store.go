// Package mongodb implements repository.Store on MongoDB. Transactions need a
// replica set; they read from a snapshot and commit with majority write
// concern.
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"

	"github.com/oksasatya/go-ddd-task-sync/internal/domain/repository"
)

const writeConflictCode = 112

var errTxDone = errors.New("mongodb: transaction already finished")

type Store struct {
	client *mongo.Client
	users  *mongo.Collection
	tasks  *mongo.Collection

	userRepo *UserRepository
	taskRepo *TaskRepository
}

// Connect dials uri and checks the primary is reachable.
func Connect(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return NewStore(client, database), nil
}

func NewStore(client *mongo.Client, database string) *Store {
	db := client.Database(database)
	s := &Store{
		client: client,
		users:  db.Collection("users"),
		tasks:  db.Collection("tasks"),
	}
	s.userRepo = &UserRepository{s: s}
	s.taskRepo = &TaskRepository{s: s}
	return s
}

// EnsureIndexes creates the unique email index and the lookup indexes the
// compensating writes rely on.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.users.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("email_unique"),
		},
		{Keys: bson.D{{Key: "pendingTasks", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("users indexes: %w", err)
	}
	_, err = s.tasks.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "assignedUser", Value: 1}}},
		{Keys: bson.D{{Key: "dateCreated", Value: 1}, {Key: "_id", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("tasks indexes: %w", err)
	}
	return nil
}

func (s *Store) Users() repository.UserRepository { return s.userRepo }
func (s *Store) Tasks() repository.TaskRepository { return s.taskRepo }

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *Store) Begin(ctx context.Context) (repository.Tx, error) {
	sess, err := s.client.StartSession()
	if err != nil {
		return nil, err
	}
	opts := options.Transaction().
		SetReadConcern(readconcern.Snapshot()).
		SetWriteConcern(writeconcern.Majority())
	if err := sess.StartTransaction(opts); err != nil {
		sess.EndSession(ctx)
		return nil, mapError(err)
	}
	return &mongoTx{sess: sess, s: s}, nil
}

type mongoTx struct {
	sess mongo.Session
	s    *Store
	done bool
}

func (t *mongoTx) Commit(ctx context.Context) error {
	if t.done {
		return errTxDone
	}
	t.done = true
	defer t.sess.EndSession(ctx)
	return mapError(t.sess.CommitTransaction(ctx))
}

func (t *mongoTx) Rollback(ctx context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	defer t.sess.EndSession(ctx)
	return t.sess.AbortTransaction(ctx)
}

// sc binds ctx to the session behind tx so driver calls join the transaction.
func (s *Store) sc(ctx context.Context, tx repository.Tx) (context.Context, error) {
	if tx == nil {
		return ctx, nil
	}
	t, ok := tx.(*mongoTx)
	if !ok || t.s != s {
		return nil, repository.ErrForeignTx
	}
	if t.done {
		return nil, errTxDone
	}
	return mongo.NewSessionContext(ctx, t.sess), nil
}

func mapError(err error) error {
	if err == nil {
		return nil
	}
	if mongo.IsDuplicateKeyError(err) {
		return repository.ErrDuplicateEmail
	}
	var se mongo.ServerError
	if errors.As(err, &se) {
		// An unknown commit result may or may not have applied; the caller
		// re-reads and retries the same as after a conflict.
		if se.HasErrorLabel("TransientTransactionError") ||
			se.HasErrorLabel("UnknownTransactionCommitResult") ||
			se.HasErrorCode(writeConflictCode) {
			return fmt.Errorf("%w: %v", repository.ErrTxConflict, err)
		}
	}
	return err
}

var _ repository.Store = (*Store)(nil)

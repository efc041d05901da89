package mongodb

import (
	"context"
	"errors"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/oksasatya/go-ddd-task-sync/internal/domain/entity"
	"github.com/oksasatya/go-ddd-task-sync/internal/domain/repository"
	"github.com/oksasatya/go-ddd-task-sync/pkg/query"
)

type UserRepository struct {
	s *Store
}

func (r *UserRepository) Find(ctx context.Context, q query.Params) ([]entity.User, error) {
	filter, err := toFilter(userFields, q.Filter)
	if err != nil {
		return nil, err
	}
	sort, err := toSort(userFields, q.Sort)
	if err != nil {
		return nil, err
	}
	opts := options.Find().SetSort(sort).SetSkip(q.Skip)
	if q.Limit > 0 {
		opts.SetLimit(q.Limit)
	}
	cur, err := r.s.users.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	var docs []userDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]entity.User, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.entity())
	}
	return out, nil
}

func (r *UserRepository) Count(ctx context.Context, f query.Filter) (int64, error) {
	filter, err := toFilter(userFields, f)
	if err != nil {
		return 0, err
	}
	return r.s.users.CountDocuments(ctx, filter)
}

func (r *UserRepository) findOne(ctx context.Context, tx repository.Tx, filter bson.M) (*entity.User, error) {
	sc, err := r.s.sc(ctx, tx)
	if err != nil {
		return nil, err
	}
	var d userDoc
	if err := r.s.users.FindOne(sc, filter).Decode(&d); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, mapError(err)
	}
	u := d.entity()
	return &u, nil
}

func (r *UserRepository) GetByID(ctx context.Context, tx repository.Tx, id string) (*entity.User, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, repository.ErrNotFound
	}
	return r.findOne(ctx, tx, bson.M{"_id": oid})
}

func (r *UserRepository) GetByEmail(ctx context.Context, tx repository.Tx, email string) (*entity.User, error) {
	pattern := "^" + regexp.QuoteMeta(email) + "$"
	return r.findOne(ctx, tx, bson.M{"email": primitive.Regex{Pattern: pattern, Options: "i"}})
}

func (r *UserRepository) Create(ctx context.Context, tx repository.Tx, u *entity.User) error {
	sc, err := r.s.sc(ctx, tx)
	if err != nil {
		return err
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	d := toUserDoc(primitive.NewObjectID(), u)
	if _, err := r.s.users.InsertOne(sc, d); err != nil {
		return mapError(err)
	}
	u.ID, u.CreatedAt, u.PendingTasks = d.ID.Hex(), d.DateCreated, d.PendingTasks
	return nil
}

func (r *UserRepository) Replace(ctx context.Context, tx repository.Tx, u *entity.User) error {
	oid, err := primitive.ObjectIDFromHex(u.ID)
	if err != nil {
		return repository.ErrNotFound
	}
	sc, err := r.s.sc(ctx, tx)
	if err != nil {
		return err
	}
	res, err := r.s.users.ReplaceOne(sc, bson.M{"_id": oid}, toUserDoc(oid, u))
	if err != nil {
		return mapError(err)
	}
	if res.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *UserRepository) Delete(ctx context.Context, tx repository.Tx, id string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return repository.ErrNotFound
	}
	sc, err := r.s.sc(ctx, tx)
	if err != nil {
		return err
	}
	res, err := r.s.users.DeleteOne(sc, bson.M{"_id": oid})
	if err != nil {
		return mapError(err)
	}
	if res.DeletedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// Touch bumps a revision counter. A same-value $set is a no-op in the
// storage engine and would not register a write conflict.
func (r *UserRepository) Touch(ctx context.Context, tx repository.Tx, id string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return repository.ErrNotFound
	}
	sc, err := r.s.sc(ctx, tx)
	if err != nil {
		return err
	}
	res, err := r.s.users.UpdateOne(sc, bson.M{"_id": oid}, bson.M{"$inc": bson.M{"rev": 1}})
	if err != nil {
		return mapError(err)
	}
	if res.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *UserRepository) updatePending(ctx context.Context, tx repository.Tx, userID string, update bson.M) error {
	oid, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return nil
	}
	sc, err := r.s.sc(ctx, tx)
	if err != nil {
		return err
	}
	_, err = r.s.users.UpdateOne(sc, bson.M{"_id": oid}, update)
	return mapError(err)
}

func (r *UserRepository) AddPendingTask(ctx context.Context, tx repository.Tx, userID, taskID string) error {
	return r.updatePending(ctx, tx, userID, bson.M{"$addToSet": bson.M{"pendingTasks": taskID}})
}

func (r *UserRepository) RemovePendingTask(ctx context.Context, tx repository.Tx, userID, taskID string) error {
	return r.updatePending(ctx, tx, userID, bson.M{"$pull": bson.M{"pendingTasks": taskID}})
}

func (r *UserRepository) PullPendingTasks(ctx context.Context, tx repository.Tx, taskIDs []string, exceptUserID string) ([]string, error) {
	if len(taskIDs) == 0 {
		return nil, nil
	}
	sc, err := r.s.sc(ctx, tx)
	if err != nil {
		return nil, err
	}
	filter := bson.M{"pendingTasks": bson.M{"$in": taskIDs}}
	if oid, err := primitive.ObjectIDFromHex(exceptUserID); err == nil {
		filter["_id"] = bson.M{"$ne": oid}
	}
	cur, err := r.s.users.Find(sc, filter, options.Find().SetProjection(bson.M{"_id": 1}))
	if err != nil {
		return nil, mapError(err)
	}
	var holders []struct {
		ID primitive.ObjectID `bson:"_id"`
	}
	if err := cur.All(sc, &holders); err != nil {
		return nil, mapError(err)
	}
	if len(holders) == 0 {
		return nil, nil
	}
	oids := make([]primitive.ObjectID, 0, len(holders))
	changed := make([]string, 0, len(holders))
	for _, h := range holders {
		oids = append(oids, h.ID)
		changed = append(changed, h.ID.Hex())
	}
	_, err = r.s.users.UpdateMany(sc,
		bson.M{"_id": bson.M{"$in": oids}},
		bson.M{"$pull": bson.M{"pendingTasks": bson.M{"$in": taskIDs}}},
	)
	if err != nil {
		return nil, mapError(err)
	}
	return changed, nil
}

var _ repository.UserRepository = (*UserRepository)(nil)

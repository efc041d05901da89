package mongodb

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/oksasatya/go-ddd-task-sync/internal/domain/entity"
	"github.com/oksasatya/go-ddd-task-sync/internal/domain/repository"
	"github.com/oksasatya/go-ddd-task-sync/pkg/query"
)

type TaskRepository struct {
	s *Store
}

func decodeTasks(ctx context.Context, cur *mongo.Cursor) ([]entity.Task, error) {
	var docs []taskDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]entity.Task, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.entity())
	}
	return out, nil
}

func (r *TaskRepository) Find(ctx context.Context, q query.Params) ([]entity.Task, error) {
	filter, err := toFilter(taskFields, q.Filter)
	if err != nil {
		return nil, err
	}
	sort, err := toSort(taskFields, q.Sort)
	if err != nil {
		return nil, err
	}
	opts := options.Find().SetSort(sort).SetSkip(q.Skip)
	if q.Limit > 0 {
		opts.SetLimit(q.Limit)
	}
	cur, err := r.s.tasks.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	return decodeTasks(ctx, cur)
}

func (r *TaskRepository) Count(ctx context.Context, f query.Filter) (int64, error) {
	filter, err := toFilter(taskFields, f)
	if err != nil {
		return 0, err
	}
	return r.s.tasks.CountDocuments(ctx, filter)
}

func (r *TaskRepository) GetByID(ctx context.Context, tx repository.Tx, id string) (*entity.Task, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, repository.ErrNotFound
	}
	sc, err := r.s.sc(ctx, tx)
	if err != nil {
		return nil, err
	}
	var d taskDoc
	if err := r.s.tasks.FindOne(sc, bson.M{"_id": oid}).Decode(&d); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, mapError(err)
	}
	t := d.entity()
	return &t, nil
}

func (r *TaskRepository) GetByIDs(ctx context.Context, tx repository.Tx, ids []string) ([]entity.Task, error) {
	oids := objectIDs(ids)
	if len(oids) == 0 {
		return nil, nil
	}
	sc, err := r.s.sc(ctx, tx)
	if err != nil {
		return nil, err
	}
	cur, err := r.s.tasks.Find(sc, bson.M{"_id": bson.M{"$in": oids}})
	if err != nil {
		return nil, mapError(err)
	}
	tasks, err := decodeTasks(sc, cur)
	return tasks, mapError(err)
}

func (r *TaskRepository) Create(ctx context.Context, tx repository.Tx, t *entity.Task) error {
	sc, err := r.s.sc(ctx, tx)
	if err != nil {
		return err
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	d := toTaskDoc(primitive.NewObjectID(), t)
	if _, err := r.s.tasks.InsertOne(sc, d); err != nil {
		return mapError(err)
	}
	t.ID, t.CreatedAt, t.Deadline = d.ID.Hex(), d.DateCreated, d.Deadline
	return nil
}

func (r *TaskRepository) Replace(ctx context.Context, tx repository.Tx, t *entity.Task) error {
	oid, err := primitive.ObjectIDFromHex(t.ID)
	if err != nil {
		return repository.ErrNotFound
	}
	sc, err := r.s.sc(ctx, tx)
	if err != nil {
		return err
	}
	res, err := r.s.tasks.ReplaceOne(sc, bson.M{"_id": oid}, toTaskDoc(oid, t))
	if err != nil {
		return mapError(err)
	}
	if res.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *TaskRepository) Delete(ctx context.Context, tx repository.Tx, id string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return repository.ErrNotFound
	}
	sc, err := r.s.sc(ctx, tx)
	if err != nil {
		return err
	}
	res, err := r.s.tasks.DeleteOne(sc, bson.M{"_id": oid})
	if err != nil {
		return mapError(err)
	}
	if res.DeletedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *TaskRepository) AssignMany(ctx context.Context, tx repository.Tx, ids []string, userID, userName string) error {
	oids := objectIDs(ids)
	if len(oids) == 0 {
		return nil
	}
	sc, err := r.s.sc(ctx, tx)
	if err != nil {
		return err
	}
	_, err = r.s.tasks.UpdateMany(sc,
		bson.M{"_id": bson.M{"$in": oids}},
		bson.M{"$set": bson.M{"assignedUser": userID, "assignedUserName": userName}},
	)
	return mapError(err)
}

func (r *TaskRepository) UnassignAll(ctx context.Context, tx repository.Tx, userID string) ([]string, error) {
	if userID == "" {
		return nil, nil
	}
	sc, err := r.s.sc(ctx, tx)
	if err != nil {
		return nil, err
	}
	filter := bson.M{"assignedUser": userID}
	cur, err := r.s.tasks.Find(sc, filter, options.Find().SetProjection(bson.M{"_id": 1}))
	if err != nil {
		return nil, mapError(err)
	}
	var hits []struct {
		ID primitive.ObjectID `bson:"_id"`
	}
	if err := cur.All(sc, &hits); err != nil {
		return nil, mapError(err)
	}
	if len(hits) == 0 {
		return nil, nil
	}
	_, err = r.s.tasks.UpdateMany(sc, filter,
		bson.M{"$set": bson.M{"assignedUser": "", "assignedUserName": entity.UnassignedName}},
	)
	if err != nil {
		return nil, mapError(err)
	}
	changed := make([]string, 0, len(hits))
	for _, h := range hits {
		changed = append(changed, h.ID.Hex())
	}
	return changed, nil
}

var _ repository.TaskRepository = (*TaskRepository)(nil)

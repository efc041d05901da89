package mongodb

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/oksasatya/go-ddd-task-sync/internal/domain/entity"
	"github.com/oksasatya/go-ddd-task-sync/internal/domain/repository"
	"github.com/oksasatya/go-ddd-task-sync/pkg/query"
)

func TestToFilter(t *testing.T) {
	oid := primitive.NewObjectID()
	jan1 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		fields map[string]fieldKind
		in     query.Filter
		want   bson.M
	}{
		{
			name:   "plain value becomes $eq",
			fields: taskFields,
			in:     query.Filter{"completed": false},
			want:   bson.M{"completed": bson.M{"$eq": false}},
		},
		{
			name:   "id hex becomes ObjectID",
			fields: taskFields,
			in:     query.Filter{"_id": map[string]any{"$in": []any{oid.Hex(), "junk"}}},
			want:   bson.M{"_id": bson.M{"$in": bson.A{oid, "junk"}}},
		},
		{
			name:   "time operand becomes a date",
			fields: taskFields,
			in:     query.Filter{"deadline": map[string]any{"$lt": "2026-01-01T00:00:00Z"}},
			want:   bson.M{"deadline": bson.M{"$lt": jan1}},
		},
		{
			name:   "regex passes through",
			fields: userFields,
			in:     query.Filter{"name": map[string]any{"$regex": "^a", "$options": "i"}},
			want:   bson.M{"name": bson.M{"$regex": "^a", "$options": "i"}},
		},
		{
			name:   "nested or",
			fields: userFields,
			in: query.Filter{"$or": []any{
				map[string]any{"name": "a"},
				map[string]any{"pendingTasks": "t1"},
			}},
			want: bson.M{"$or": bson.A{
				bson.M{"name": bson.M{"$eq": "a"}},
				bson.M{"pendingTasks": bson.M{"$eq": "t1"}},
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := toFilter(tt.fields, tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := toFilter(userFields, query.Filter{"owner": "x"})
	assert.ErrorIs(t, err, query.ErrInvalidQuery)
}

func TestToSort(t *testing.T) {
	got, err := toSort(taskFields, nil)
	require.NoError(t, err)
	assert.Equal(t, bson.D{{Key: "dateCreated", Value: 1}, {Key: "_id", Value: 1}}, got)

	got, err = toSort(taskFields, []query.SortField{{Field: "deadline", Desc: true}, {Field: "name"}})
	require.NoError(t, err)
	assert.Equal(t, bson.D{{Key: "deadline", Value: -1}, {Key: "name", Value: 1}, {Key: "_id", Value: 1}}, got)

	_, err = toSort(userFields, []query.SortField{{Field: "pendingTasks"}})
	assert.ErrorIs(t, err, query.ErrInvalidQuery)
}

func TestDocuments(t *testing.T) {
	oid := primitive.NewObjectID()
	created := time.Date(2026, 3, 4, 5, 6, 7, 891234567, time.UTC)

	d := toUserDoc(oid, &entity.User{Name: "Ann", Email: "ann@x.com", CreatedAt: created})
	assert.NotNil(t, d.PendingTasks)
	assert.Equal(t, created.Truncate(time.Millisecond), d.DateCreated)

	u := d.entity()
	assert.Equal(t, oid.Hex(), u.ID)
	assert.Equal(t, []string{}, u.PendingTasks)

	td := toTaskDoc(oid, &entity.Task{Name: "T", Deadline: created, AssignedUserName: entity.UnassignedName})
	back := td.entity()
	assert.Equal(t, oid.Hex(), back.ID)
	assert.Equal(t, entity.UnassignedName, back.AssignedUserName)

	assert.Len(t, objectIDs([]string{oid.Hex(), "nope", ""}), 1)
}

func TestMapError(t *testing.T) {
	dup := mongo.WriteException{WriteErrors: []mongo.WriteError{{Code: 11000, Message: "E11000 duplicate key"}}}
	assert.ErrorIs(t, mapError(dup), repository.ErrDuplicateEmail)

	conflict := mongo.CommandError{Code: 112, Name: "WriteConflict", Labels: []string{"TransientTransactionError"}}
	assert.ErrorIs(t, mapError(conflict), repository.ErrTxConflict)

	unknown := mongo.CommandError{Code: 50, Name: "MaxTimeMSExpired", Labels: []string{"UnknownTransactionCommitResult"}}
	assert.ErrorIs(t, mapError(unknown), repository.ErrTxConflict)

	other := errors.New("other")
	assert.Equal(t, other, mapError(other))
	assert.NoError(t, mapError(nil))
}

package mongodb

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/oksasatya/go-ddd-task-sync/internal/domain/entity"
)

type userDoc struct {
	ID           primitive.ObjectID `bson:"_id"`
	Name         string             `bson:"name"`
	Email        string             `bson:"email"`
	PendingTasks []string           `bson:"pendingTasks"`
	DateCreated  time.Time          `bson:"dateCreated"`
}

type taskDoc struct {
	ID               primitive.ObjectID `bson:"_id"`
	Name             string             `bson:"name"`
	Description      string             `bson:"description"`
	Deadline         time.Time          `bson:"deadline"`
	Completed        bool               `bson:"completed"`
	AssignedUser     string             `bson:"assignedUser"`
	AssignedUserName string             `bson:"assignedUserName"`
	DateCreated      time.Time          `bson:"dateCreated"`
}

// bsonTime truncates to the millisecond precision BSON dates carry.
func bsonTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}

func toUserDoc(oid primitive.ObjectID, u *entity.User) userDoc {
	pending := u.PendingTasks
	if pending == nil {
		pending = []string{}
	}
	return userDoc{
		ID:           oid,
		Name:         u.Name,
		Email:        u.Email,
		PendingTasks: pending,
		DateCreated:  bsonTime(u.CreatedAt),
	}
}

func (d userDoc) entity() entity.User {
	u := entity.User{
		ID:           d.ID.Hex(),
		Name:         d.Name,
		Email:        d.Email,
		PendingTasks: d.PendingTasks,
		CreatedAt:    d.DateCreated.UTC(),
	}
	return u.Clone()
}

func toTaskDoc(oid primitive.ObjectID, t *entity.Task) taskDoc {
	return taskDoc{
		ID:               oid,
		Name:             t.Name,
		Description:      t.Description,
		Deadline:         bsonTime(t.Deadline),
		Completed:        t.Completed,
		AssignedUser:     t.AssignedUser,
		AssignedUserName: t.AssignedUserName,
		DateCreated:      bsonTime(t.CreatedAt),
	}
}

func (d taskDoc) entity() entity.Task {
	return entity.Task{
		ID:               d.ID.Hex(),
		Name:             d.Name,
		Description:      d.Description,
		Deadline:         d.Deadline.UTC(),
		Completed:        d.Completed,
		AssignedUser:     d.AssignedUser,
		AssignedUserName: d.AssignedUserName,
		CreatedAt:        d.DateCreated.UTC(),
	}
}

// objectIDs keeps the ids that parse as ObjectID hex.
func objectIDs(ids []string) []primitive.ObjectID {
	out := make([]primitive.ObjectID, 0, len(ids))
	for _, id := range ids {
		if oid, err := primitive.ObjectIDFromHex(id); err == nil {
			out = append(out, oid)
		}
	}
	return out
}

package application

import (
	"time"

	"github.com/oksasatya/go-ddd-task-sync/internal/domain/entity"
)

// UserDocument is the external JSON shape of a user. It is shared by the HTTP
// API, the search index and snapshot exports.
type UserDocument struct {
	ID           string    `json:"_id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PendingTasks []string  `json:"pendingTasks"`
	DateCreated  time.Time `json:"dateCreated"`
}

// TaskDocument is the external JSON shape of a task.
type TaskDocument struct {
	ID               string    `json:"_id"`
	Name             string    `json:"name"`
	Description      string    `json:"description"`
	Deadline         time.Time `json:"deadline"`
	Completed        bool      `json:"completed"`
	AssignedUser     string    `json:"assignedUser"`
	AssignedUserName string    `json:"assignedUserName"`
	DateCreated      time.Time `json:"dateCreated"`
}

func NewUserDocument(u entity.User) UserDocument {
	u = u.Clone()
	return UserDocument{
		ID:           u.ID,
		Name:         u.Name,
		Email:        u.Email,
		PendingTasks: u.PendingTasks,
		DateCreated:  u.CreatedAt.UTC(),
	}
}

func NewTaskDocument(t entity.Task) TaskDocument {
	name := t.AssignedUserName
	if t.AssignedUser == "" && name == "" {
		name = entity.UnassignedName
	}
	return TaskDocument{
		ID:               t.ID,
		Name:             t.Name,
		Description:      t.Description,
		Deadline:         t.Deadline.UTC(),
		Completed:        t.Completed,
		AssignedUser:     t.AssignedUser,
		AssignedUserName: name,
		DateCreated:      t.CreatedAt.UTC(),
	}
}

func UserDocuments(users []entity.User) []UserDocument {
	out := make([]UserDocument, 0, len(users))
	for _, u := range users {
		out = append(out, NewUserDocument(u))
	}
	return out
}

func TaskDocuments(tasks []entity.Task) []TaskDocument {
	out := make([]TaskDocument, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, NewTaskDocument(t))
	}
	return out
}

package entity

import (
	"slices"
	"time"
)

// User is the owner side of the task assignment relationship.
// PendingTasks mirrors every task assigned to the user that is not completed.
type User struct {
	ID           string
	Name         string
	Email        string
	PendingTasks []string
	CreatedAt    time.Time
}

// HasPending reports whether taskID is in the user's pending set.
func (u *User) HasPending(taskID string) bool {
	return slices.Contains(u.PendingTasks, taskID)
}

// Clone returns a copy that does not share the pending slice.
func (u User) Clone() User {
	u.PendingTasks = slices.Clone(u.PendingTasks)
	if u.PendingTasks == nil {
		u.PendingTasks = []string{}
	}
	return u
}

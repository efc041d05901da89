package entity

import "time"

// UnassignedName is the cached assignee name of a task without an assignee.
const UnassignedName = "unassigned"

// Task keeps a denormalized pointer to its assignee: the id and the name the
// user had when the task was last assigned.
type Task struct {
	ID               string
	Name             string
	Description      string
	Deadline         time.Time
	Completed        bool
	AssignedUser     string
	AssignedUserName string
	CreatedAt        time.Time
}

// IsPending reports whether the task belongs in its assignee's pending set.
func (t *Task) IsPending() bool {
	return t.AssignedUser != "" && !t.Completed
}

// AssignTo links the task to u, or clears the link when u is nil.
func (t *Task) AssignTo(u *User) {
	if u == nil {
		t.AssignedUser = ""
		t.AssignedUserName = UnassignedName
		return
	}
	t.AssignedUser = u.ID
	t.AssignedUserName = u.Name
}

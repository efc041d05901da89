package application

import (
	"context"
	"slices"
	"time"
)

// Assignment records a task being linked to a user it was not linked to before.
type Assignment struct {
	TaskID    string
	TaskName  string
	Deadline  time.Time
	UserID    string
	UserName  string
	UserEmail string
}

// ChangeSet lists the documents a committed transaction touched.
type ChangeSet struct {
	Users        []string
	Tasks        []string
	DeletedUsers []string
	DeletedTasks []string
	Assignments  []Assignment
}

// ChangeNotifier receives a ChangeSet after its transaction committed.
// Notifiers are projections: they must not write back to the store.
type ChangeNotifier interface {
	Notify(ctx context.Context, cs ChangeSet) error
}

func (cs *ChangeSet) Empty() bool {
	return len(cs.Users)+len(cs.Tasks)+len(cs.DeletedUsers)+len(cs.DeletedTasks) == 0
}

func addIDs(dst []string, ids ...string) []string {
	for _, id := range ids {
		if id != "" && !slices.Contains(dst, id) {
			dst = append(dst, id)
		}
	}
	return dst
}

func (cs *ChangeSet) touchUsers(ids ...string) { cs.Users = addIDs(cs.Users, ids...) }
func (cs *ChangeSet) touchTasks(ids ...string) { cs.Tasks = addIDs(cs.Tasks, ids...) }

func (cs *ChangeSet) deleteUser(id string) {
	cs.Users = slices.DeleteFunc(cs.Users, func(s string) bool { return s == id })
	cs.DeletedUsers = addIDs(cs.DeletedUsers, id)
}

func (cs *ChangeSet) deleteTask(id string) {
	cs.Tasks = slices.DeleteFunc(cs.Tasks, func(s string) bool { return s == id })
	cs.DeletedTasks = addIDs(cs.DeletedTasks, id)
}

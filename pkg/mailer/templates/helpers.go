package templates

import (
	"strings"
	"time"

	"github.com/oksasatya/go-ddd-task-sync/config"
)

// DeadlineLayout is how deadlines are printed in emails.
const DeadlineLayout = "02 January 2006, 15:04 MST"

// Option pattern
type Option func(*EmailData)

func WithDeadline(t time.Time) Option {
	return func(d *EmailData) {
		if t.IsZero() {
			return
		}
		utc := t.UTC()
		d.DeadlineAt = utc
		d.DeadlineText = utc.Format(DeadlineLayout)
	}
}

// WithTaskURL links the email to the task. base is joined with the task id.
func WithTaskURL(base, taskID string) Option {
	return func(d *EmailData) {
		base = strings.TrimRight(strings.TrimSpace(base), "/")
		if base == "" || taskID == "" {
			return
		}
		d.TaskURL = base + "/" + taskID
	}
}

// NewBaseEmailData fills the common fields from config, then applies opts.
func NewBaseEmailData(cfg *config.Config, typ string, name, email string, opts ...Option) EmailData {
	d := EmailData{
		Name:           name,
		Email:          email,
		RecipientEmail: email,
		Type:           typ,

		CompanyName:    cfg.CompanyName,
		CompanyAddress: cfg.CompanyAddress,
		AppName:        cfg.AppName,

		LogoURL:    cfg.LogoURL,
		SupportURL: cfg.SupportURL,
	}
	for _, opt := range opts {
		opt(&d)
	}
	return d
}

// NewTaskAssignedData builds the data of a task_assigned email for the
// user the task now belongs to.
func NewTaskAssignedData(cfg *config.Config, name, email, taskID, taskName string, deadline time.Time, opts ...Option) map[string]any {
	opts = append([]Option{WithDeadline(deadline), WithTaskURL(cfg.TaskURLBase, taskID)}, opts...)
	d := NewBaseEmailData(cfg, TaskAssigned, name, email, opts...)
	d.TaskID = taskID
	d.TaskName = taskName
	return ToMap(d)
}

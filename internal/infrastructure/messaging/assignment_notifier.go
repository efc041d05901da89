// Package messaging turns committed task assignments into email jobs on the
// RabbitMQ queue consumed by cmd/email_worker.
package messaging

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/oksasatya/go-ddd-task-sync/config"
	"github.com/oksasatya/go-ddd-task-sync/internal/application"
	"github.com/oksasatya/go-ddd-task-sync/pkg/mailer"
	mailtpl "github.com/oksasatya/go-ddd-task-sync/pkg/mailer/templates"
)

// Publisher is satisfied by helpers.RabbitPublisher.
type Publisher interface {
	PublishJSON(ctx context.Context, body any) error
}

type AssignmentNotifier struct {
	Pub    Publisher
	Cfg    *config.Config
	Logger *logrus.Logger
}

func NewAssignmentNotifier(pub Publisher, cfg *config.Config, logger *logrus.Logger) *AssignmentNotifier {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &AssignmentNotifier{Pub: pub, Cfg: cfg, Logger: logger}
}

// Notify publishes one task_assigned job per new assignment. Assignees
// without an email address are skipped.
func (n *AssignmentNotifier) Notify(ctx context.Context, cs application.ChangeSet) error {
	if n.Pub == nil {
		return nil
	}
	var errs []error
	for _, a := range cs.Assignments {
		if a.UserEmail == "" {
			continue
		}
		job := n.job(a)
		if err := n.Pub.PublishJSON(ctx, job); err != nil {
			n.Logger.WithError(err).WithFields(logrus.Fields{"task_id": a.TaskID, "user_id": a.UserID}).Warn("publish email job failed")
			errs = append(errs, fmt.Errorf("task %s: %w", a.TaskID, err))
			continue
		}
		n.Logger.WithFields(logrus.Fields{"task_id": a.TaskID, "user_id": a.UserID}).Debug("assignment email queued")
	}
	return errors.Join(errs...)
}

func (n *AssignmentNotifier) job(a application.Assignment) mailer.EmailJob {
	cfg := n.Cfg
	if cfg == nil {
		cfg = &config.Config{}
	}
	data := mailtpl.NewTaskAssignedData(cfg, a.UserName, a.UserEmail, a.TaskID, a.TaskName, a.Deadline)
	return mailer.NewTemplateJob(a.UserEmail, mailtpl.TaskAssigned, data)
}

var _ application.ChangeNotifier = (*AssignmentNotifier)(nil)

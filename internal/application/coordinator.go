package application

import (
	"context"
	"errors"
	"expvar"
	"time"

	"github.com/sirupsen/logrus"

	repo "github.com/oksasatya/go-ddd-task-sync/internal/domain/repository"
)

var (
	txCommits   = expvar.NewInt("coordinator_tx_commits")
	txAborts    = expvar.NewInt("coordinator_tx_aborts")
	txConflicts = expvar.NewInt("coordinator_tx_conflicts")
)

// Coordinator applies every user and task mutation together with the
// compensating writes that keep both collections pointing at each other.
// Each mutation runs in exactly one store transaction.
type Coordinator struct {
	Store     repo.Store
	Logger    *logrus.Logger
	Notifiers []ChangeNotifier
	// NotifyTimeout bounds the post-commit fan-out. Zero means 5s.
	NotifyTimeout time.Duration
}

func NewCoordinator(store repo.Store, logger *logrus.Logger, notifiers ...ChangeNotifier) *Coordinator {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Coordinator{Store: store, Logger: logger, Notifiers: notifiers}
}

// inTx runs fn inside a fresh transaction. The transaction is committed when
// fn returns nil and rolled back on every other path. Change notifiers only
// see the ChangeSet of a committed transaction.
func (c *Coordinator) inTx(ctx context.Context, op string, fn func(tx repo.Tx, cs *ChangeSet) error) error {
	log := c.Logger.WithField("op", op)

	tx, err := c.Store.Begin(ctx)
	if err != nil {
		log.WithError(err).Error("begin transaction failed")
		return storeError(err)
	}
	committed := false
	defer func() {
		if committed {
			return
		}
		if rbErr := tx.Rollback(context.WithoutCancel(ctx)); rbErr != nil {
			log.WithError(rbErr).Warn("rollback failed")
		}
	}()

	cs := &ChangeSet{}
	if err := fn(tx, cs); err != nil {
		c.aborted(log, err)
		return storeError(err)
	}
	if err := tx.Commit(ctx); err != nil {
		c.aborted(log, err)
		return storeError(err)
	}
	committed = true
	txCommits.Add(1)

	c.publish(ctx, op, *cs)
	return nil
}

func (c *Coordinator) aborted(log *logrus.Entry, err error) {
	txAborts.Add(1)
	switch {
	case errors.Is(err, repo.ErrTxConflict):
		txConflicts.Add(1)
		log.WithError(err).Warn("transaction aborted by a concurrent writer")
	case errors.Is(err, ErrValidation), errors.Is(err, ErrUserNotFound),
		errors.Is(err, ErrTaskNotFound), errors.Is(err, ErrDuplicateEmail),
		errors.Is(err, repo.ErrDuplicateEmail):
		log.WithError(err).Debug("transaction aborted")
	default:
		log.WithError(err).Warn("transaction aborted")
	}
}

func (c *Coordinator) publish(ctx context.Context, op string, cs ChangeSet) {
	if len(c.Notifiers) == 0 || cs.Empty() {
		return
	}
	timeout := c.NotifyTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	for _, n := range c.Notifiers {
		if err := n.Notify(nctx, cs); err != nil {
			c.Logger.WithError(err).WithField("op", op).Warn("change notifier failed")
		}
	}
}

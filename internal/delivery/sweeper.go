package delivery

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/akiraliebert/event-driven-notification-system/internal/config"
	"github.com/akiraliebert/event-driven-notification-system/internal/notification"
	"github.com/akiraliebert/event-driven-notification-system/internal/queue"
)

// sweepBatchSize caps how many rows one sweep pass requeues per query.
const sweepBatchSize = 100

// SweepStore is the slice of the notification repository the sweeper needs.
type SweepStore interface {
	PendingRetries(ctx context.Context, now time.Time, limit int) ([]*notification.Notification, error)
	StalePending(ctx context.Context, createdBefore time.Time, limit int) ([]*notification.Notification, error)
}

// Sweeper is the recovery backstop for lost work items. Retries are
// normally requeued by the engine, but if a requeue is lost (worker
// crash, queue outage) the row's next_retry_at still records the intent;
// the sweeper periodically turns such rows back into work items. It also
// requeues pending rows old enough that their original enqueue clearly
// never happened.
//
// Requeueing an item that is already queued is harmless: ready members
// are keyed by notification id, and the engine skips settled rows.
type Sweeper struct {
	store  SweepStore
	queue  queue.Queue
	cfg    config.Delivery
	logger *logrus.Entry
}

// NewSweeper creates a sweeper.
func NewSweeper(store SweepStore, q queue.Queue, cfg config.Delivery, logger *logrus.Entry) *Sweeper {
	return &Sweeper{store: store, queue: q, cfg: cfg, logger: logger}
}

// Run sweeps on the configured interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	s.logger.WithField("interval", s.cfg.SweepInterval).Info("Delivery sweeper started")

	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Delivery sweeper stopped")
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one recovery pass.
func (s *Sweeper) Sweep(ctx context.Context) {
	now := time.Now().UTC()

	retries, err := s.store.PendingRetries(ctx, now, sweepBatchSize)
	if err != nil {
		s.logger.WithError(err).Error("Failed to load due retries")
	} else {
		requeued := s.requeue(ctx, retries)
		if requeued > 0 {
			s.logger.WithField("requeued", requeued).Info("Requeued due retries")
		}
	}

	stale, err := s.store.StalePending(ctx, now.Add(-s.cfg.StalePendingAge), sweepBatchSize)
	if err != nil {
		s.logger.WithError(err).Error("Failed to load stale pending notifications")
	} else {
		requeued := s.requeue(ctx, stale)
		if requeued > 0 {
			s.logger.WithField("requeued", requeued).Warn("Requeued stale pending notifications")
		}
	}

	stats, err := s.queue.Stats(ctx)
	if err != nil {
		s.logger.WithError(err).Error("Failed to read queue stats")
		return
	}
	s.logger.WithFields(logrus.Fields{
		"ready":   stats.ReadyByPriority,
		"delayed": stats.DelayedCount,
	}).Info("Queue depth")
}

func (s *Sweeper) requeue(ctx context.Context, notifications []*notification.Notification) int {
	requeued := 0
	for _, n := range notifications {
		item := queue.Item{NotificationID: n.ID, Priority: n.Priority}
		if err := s.queue.Enqueue(ctx, item, nil); err != nil {
			s.logger.WithError(err).WithField("notification_id", n.ID).
				Error("Failed to requeue notification")
			continue
		}
		requeued++
	}
	return requeued
}

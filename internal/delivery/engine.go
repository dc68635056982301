// Package delivery executes delivery attempts: it drains the work queue,
// walks each notification through the pending, sending, delivered or
// failed state machine, enforces per-channel rate limits, and schedules
// retries with backoff.
package delivery

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/akiraliebert/event-driven-notification-system/internal/config"
	"github.com/akiraliebert/event-driven-notification-system/internal/notification"
	"github.com/akiraliebert/event-driven-notification-system/internal/provider"
	"github.com/akiraliebert/event-driven-notification-system/internal/queue"
	"github.com/akiraliebert/event-driven-notification-system/internal/status"
)

// Store is the slice of the notification repository the engine needs.
type Store interface {
	GetByID(ctx context.Context, id uuid.UUID) (*notification.Notification, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, update notification.StatusUpdate) error
}

// RateLimiter grants or denies a delivery slot for a channel.
type RateLimiter interface {
	Acquire(ctx context.Context, channel notification.Channel) (bool, error)
}

// Providers resolves the delivery adapter for a channel.
type Providers interface {
	Get(channel notification.Channel) (provider.Provider, error)
}

// Engine performs one delivery attempt per work item.
type Engine struct {
	store     Store
	limiter   RateLimiter
	providers Providers
	queue     queue.Queue
	publisher status.Publisher
	cfg       config.Delivery
	logger    *logrus.Entry
	now       func() time.Time
}

// NewEngine creates a delivery engine.
func NewEngine(
	store Store,
	limiter RateLimiter,
	providers Providers,
	q queue.Queue,
	publisher status.Publisher,
	cfg config.Delivery,
	logger *logrus.Entry,
) *Engine {
	return &Engine{
		store:     store,
		limiter:   limiter,
		providers: providers,
		queue:     q,
		publisher: publisher,
		cfg:       cfg,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Deliver executes one attempt for the given work item. A nil return
// means the item is settled (delivered, failed, skipped, or requeued by
// the engine itself); an error means the attempt could not run and the
// caller should requeue the item.
func (e *Engine) Deliver(ctx context.Context, item queue.Item) error {
	logger := e.logger.WithField("notification_id", item.NotificationID)

	n, err := e.store.GetByID(ctx, item.NotificationID)
	if err != nil {
		if err == notification.ErrNotFound {
			logger.Error("Work item references missing notification, dropping")
			return nil
		}
		return err
	}
	logger = logger.WithFields(logrus.Fields{
		"channel":  n.Channel,
		"attempts": n.Attempts,
	})

	// A redelivered or duplicated work item must never re-send.
	if n.Terminal() {
		logger.WithField("status", n.Status).Info("Notification already settled, skipping")
		return nil
	}

	err = e.store.UpdateStatus(ctx, n.ID, notification.StatusUpdate{Status: notification.StatusSending})
	if err != nil {
		if err == notification.ErrTerminalState {
			logger.Info("Notification delivered concurrently, skipping")
			return nil
		}
		return err
	}

	allowed, err := e.limiter.Acquire(ctx, n.Channel)
	if err != nil {
		// Misconfigured channel. Put the row back and surface the error;
		// the item retries after the operator fixes the limits.
		if revertErr := e.revertToPending(ctx, n.ID); revertErr != nil {
			logger.WithError(revertErr).Error("Failed to revert notification to pending")
		}
		return err
	}
	if !allowed {
		// A denied slot is not a delivery attempt: no counter increment,
		// no backoff schedule, just a short deferral.
		if err := e.revertToPending(ctx, n.ID); err != nil {
			return err
		}
		eta := e.now().Add(e.cfg.RateLimitRetryDelay)
		if err := e.queue.Enqueue(ctx, item, &eta); err != nil {
			return err
		}
		logger.WithField("retry_in", e.cfg.RateLimitRetryDelay).Info("Rate limit reached, requeued")
		return nil
	}

	result := e.send(ctx, n)
	if result.Success {
		return e.settleDelivered(ctx, n, logger)
	}
	return e.settleFailure(ctx, item, n, result, logger)
}

// send resolves the provider and runs it under the attempt timeout. A
// panicking provider is converted into a retryable failure so one bad
// adapter cannot kill the worker.
func (e *Engine) send(ctx context.Context, n *notification.Notification) (result provider.Result) {
	p, err := e.providers.Get(n.Channel)
	if err != nil {
		return provider.FailPermanent(err.Error())
	}

	defer func() {
		if r := recover(); r != nil {
			result = provider.Fail(fmt.Sprintf("provider panic: %v", r))
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, e.cfg.ProviderTimeout)
	defer cancel()
	return p.Send(ctx, n)
}

func (e *Engine) settleDelivered(ctx context.Context, n *notification.Notification, logger *logrus.Entry) error {
	deliveredAt := e.now()
	err := e.store.UpdateStatus(ctx, n.ID, notification.StatusUpdate{
		Status:            notification.StatusDelivered,
		DeliveredAt:       &deliveredAt,
		IncrementAttempts: true,
	})
	if err != nil && err != notification.ErrTerminalState {
		return err
	}

	n.Status = notification.StatusDelivered
	n.Attempts++
	n.DeliveredAt = &deliveredAt
	if err := e.publisher.PublishStatus(n); err != nil {
		// Delivery itself succeeded; losing one status record is not
		// worth a duplicate send.
		logger.WithError(err).Error("Failed to publish delivered status")
	}

	logger.Info("Notification delivered")
	return nil
}

func (e *Engine) settleFailure(
	ctx context.Context,
	item queue.Item,
	n *notification.Notification,
	result provider.Result,
	logger *logrus.Entry,
) error {
	newAttempts := n.Attempts + 1
	reason := result.Details

	if result.Retryable && newAttempts < n.MaxAttempts {
		backoff := e.backoffFor(newAttempts)
		nextRetry := e.now().Add(backoff)
		// failed_reason stays NULL while the row is still retryable; it is
		// recorded only on the terminal failed transition. The reason still
		// lands in the logs below.
		err := e.store.UpdateStatus(ctx, n.ID, notification.StatusUpdate{
			Status:            notification.StatusPending,
			NextRetryAt:       &nextRetry,
			IncrementAttempts: true,
		})
		if err != nil && err != notification.ErrTerminalState {
			return err
		}
		if err := e.queue.Enqueue(ctx, item, &nextRetry); err != nil {
			// The row carries next_retry_at, so the sweeper picks it up.
			logger.WithError(err).Error("Failed to requeue retry, leaving for sweeper")
		}

		logger.WithFields(logrus.Fields{
			"attempt": newAttempts,
			"backoff": backoff,
			"reason":  reason,
		}).Warn("Delivery failed, retry scheduled")
		return nil
	}

	err := e.store.UpdateStatus(ctx, n.ID, notification.StatusUpdate{
		Status:            notification.StatusFailed,
		FailedReason:      &reason,
		IncrementAttempts: true,
	})
	if err != nil && err != notification.ErrTerminalState {
		return err
	}

	n.Status = notification.StatusFailed
	n.Attempts = newAttempts
	n.FailedReason = &reason
	if err := e.publisher.PublishStatus(n); err != nil {
		logger.WithError(err).Error("Failed to publish failed status")
	}

	logger.WithFields(logrus.Fields{
		"attempt":   newAttempts,
		"retryable": result.Retryable,
		"reason":    reason,
	}).Error("Notification failed permanently")
	return nil
}

func (e *Engine) revertToPending(ctx context.Context, id uuid.UUID) error {
	err := e.store.UpdateStatus(ctx, id, notification.StatusUpdate{Status: notification.StatusPending})
	if err == notification.ErrTerminalState {
		return nil
	}
	return err
}

// backoffFor returns the delay before the next attempt after the given
// failed attempt number. Attempts past the end of the schedule reuse its
// last entry.
func (e *Engine) backoffFor(attempt int) time.Duration {
	schedule := e.cfg.RetryBackoff
	idx := attempt - 1
	if idx >= len(schedule) {
		idx = len(schedule) - 1
	}
	return schedule[idx]
}

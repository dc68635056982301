// Package processor consumes domain events from the durable log and fans
// each one out into per-channel notification records: idempotently, with
// template rendering, preference filtering, priority assignment, and
// quiet-hours deferral.
package processor

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/akiraliebert/event-driven-notification-system/internal/database"
	"github.com/akiraliebert/event-driven-notification-system/internal/events"
	"github.com/akiraliebert/event-driven-notification-system/internal/notification"
	"github.com/akiraliebert/event-driven-notification-system/internal/queue"
	"github.com/akiraliebert/event-driven-notification-system/internal/status"
)

// Handler turns one raw domain event into N persisted notifications plus
// their work items and initial status records.
type Handler struct {
	db        *database.DB
	queue     queue.Queue
	publisher status.Publisher
	logger    *logrus.Entry
	now       func() time.Time
}

// NewHandler creates an event handler.
func NewHandler(db *database.DB, q queue.Queue, publisher status.Publisher, logger *logrus.Entry) *Handler {
	return &Handler{
		db:        db,
		queue:     q,
		publisher: publisher,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// created pairs a persisted notification with its quiet-hours ETA.
type created struct {
	notification *notification.Notification
	eta          *time.Time
}

// Handle processes a single raw event.
//
// All notification rows for the event are created in one transaction.
// Work items are enqueued and pending statuses published only after the
// commit; an enqueue failure leaves a pending row with no work item,
// which the delivery sweeper requeues later.
//
// Errors wrapping events.ErrInvalidEvent are permanent (the consumer
// commits past the record); everything else is transient and the record
// is redelivered.
func (h *Handler) Handle(ctx context.Context, raw []byte) error {
	event, err := events.Parse(raw)
	if err != nil {
		return err
	}

	priority, err := events.PriorityFor(event.Metadata.EventType)
	if err != nil {
		return err
	}

	eventID := event.Metadata.EventID
	userID := event.Payload.RecipientID()

	logger := h.logger.WithFields(logrus.Fields{
		"event_id":   eventID,
		"event_type": event.Metadata.EventType,
		"user_id":    userID,
	})

	var results []created
	err = h.db.WithTransaction(ctx, func(tx *sql.Tx) error {
		var txErr error
		results, txErr = h.fanOut(ctx, tx, event, priority, logger)
		return txErr
	})
	if err != nil {
		return fmt.Errorf("failed to process event %s: %w", eventID, err)
	}

	// Dispatch work after the commit so a rollback can never leave queued
	// items pointing at rows that do not exist.
	for _, c := range results {
		item := queue.Item{NotificationID: c.notification.ID, Priority: c.notification.Priority}
		if err := h.queue.Enqueue(ctx, item, c.eta); err != nil {
			// The row stays pending; the sweeper will requeue it.
			logger.WithError(err).WithField("notification_id", c.notification.ID).
				Error("Failed to enqueue work item, leaving for sweeper")
			continue
		}
		if c.eta != nil {
			logger.WithFields(logrus.Fields{
				"notification_id": c.notification.ID,
				"channel":         c.notification.Channel,
				"eta":             c.eta.Format(time.RFC3339),
			}).Info("Deferred delivery due to quiet hours")
		}
	}

	for _, c := range results {
		if err := h.publisher.PublishStatus(c.notification); err != nil {
			return fmt.Errorf("failed to publish pending status: %w", err)
		}
	}

	channels := make([]notification.Channel, 0, len(results))
	for _, c := range results {
		channels = append(channels, c.notification.Channel)
	}
	logger.WithFields(logrus.Fields{
		"notifications_created": len(results),
		"channels":              channels,
	}).Info("Event processed")

	return nil
}

// fanOut runs the transactional part of event handling: idempotency
// check, preference read, template rendering, quiet-hours calculation,
// and row creation.
func (h *Handler) fanOut(
	ctx context.Context,
	tx *sql.Tx,
	event *events.Event,
	priority notification.Priority,
	logger *logrus.Entry,
) ([]created, error) {
	repo := notification.NewRepository(tx)
	templateRepo := notification.NewTemplateRepository(tx)
	prefRepo := notification.NewPreferenceRepository(tx)

	eventID := event.Metadata.EventID
	userID := event.Payload.RecipientID()

	existing, err := repo.GetChannelsForEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		logger.WithField("existing_channels", channelNames(existing)).
			Info("Partial reprocessing, some channels already handled")
	}

	pref, err := prefRepo.GetOrCreateDefault(ctx, userID)
	if err != nil {
		return nil, err
	}

	templates, err := templateRepo.ActiveForEvent(ctx, event.Metadata.EventType)
	if err != nil {
		return nil, err
	}

	templateCtx := event.Payload.TemplateContext()
	var results []created

	for _, tmpl := range templates {
		if existing[tmpl.Channel] {
			continue
		}
		if !pref.Channels.Contains(tmpl.Channel) {
			logger.WithField("channel", tmpl.Channel).Info("Channel disabled by user preference")
			continue
		}

		content, err := notification.RenderContent(tmpl, templateCtx)
		if err != nil {
			// Rendering failures cost one channel, never the whole event.
			logger.WithError(err).WithFields(logrus.Fields{
				"channel":     tmpl.Channel,
				"template_id": tmpl.ID,
			}).Warn("Template rendering failed, skipping channel")
			continue
		}

		eta, err := notification.QuietHoursETA(
			pref.QuietHoursStart, pref.QuietHoursEnd, pref.Timezone, h.now())
		if err != nil {
			return nil, err
		}

		n := &notification.Notification{
			ID:              uuid.New(),
			UserID:          userID,
			Channel:         tmpl.Channel,
			Priority:        priority,
			Status:          notification.StatusPending,
			SourceEventID:   eventID,
			SourceEventType: event.Metadata.EventType,
			Content:         content,
		}
		if err := repo.Create(ctx, n); err != nil {
			if err == notification.ErrConflict {
				// A concurrent processor won the insert; the constraint is
				// the durable idempotency enforcement.
				logger.WithField("channel", tmpl.Channel).
					Info("Notification already created concurrently, skipping channel")
				continue
			}
			return nil, err
		}

		results = append(results, created{notification: n, eta: eta})
	}

	return results, nil
}

func channelNames(set map[notification.Channel]bool) []string {
	names := make([]string, 0, len(set))
	for ch := range set {
		names = append(names, string(ch))
	}
	return names
}

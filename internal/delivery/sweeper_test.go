package delivery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"github.com/akiraliebert/event-driven-notification-system/internal/config"
	"github.com/akiraliebert/event-driven-notification-system/internal/notification"
)

type fakeSweepStore struct {
	retries []*notification.Notification
	stale   []*notification.Notification
	err     error
}

func (s *fakeSweepStore) PendingRetries(context.Context, time.Time, int) ([]*notification.Notification, error) {
	return s.retries, s.err
}

func (s *fakeSweepStore) StalePending(context.Context, time.Time, int) ([]*notification.Notification, error) {
	return s.stale, s.err
}

func newTestSweeper(t *testing.T, store *fakeSweepStore, q *fakeQueue) *Sweeper {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	cfg := config.Delivery{SweepInterval: time.Minute, StalePendingAge: 5 * time.Minute}
	return NewSweeper(store, q, cfg, logger.WithField("test", t.Name()))
}

func TestSweepRequeuesDueAndStale(t *testing.T) {
	due := pendingNotification()
	due.Status = notification.StatusFailed
	due.Attempts = 1
	stale := pendingNotification()
	stale.Priority = notification.PriorityLow

	q := &fakeQueue{}
	sweeper := newTestSweeper(t, &fakeSweepStore{
		retries: []*notification.Notification{due},
		stale:   []*notification.Notification{stale},
	}, q)

	sweeper.Sweep(context.Background())

	assert.Len(t, q.enqueued, 2)
	assert.Equal(t, due.ID, q.enqueued[0].item.NotificationID)
	assert.Equal(t, due.Priority, q.enqueued[0].item.Priority)
	assert.Nil(t, q.enqueued[0].eta, "sweeper requeues are immediately visible")
	assert.Equal(t, stale.ID, q.enqueued[1].item.NotificationID)
	assert.Equal(t, notification.PriorityLow, q.enqueued[1].item.Priority)
}

func TestSweepEmptyBacklog(t *testing.T) {
	q := &fakeQueue{}
	sweeper := newTestSweeper(t, &fakeSweepStore{}, q)

	sweeper.Sweep(context.Background())
	assert.Empty(t, q.enqueued)
}

func TestSweepToleratesStoreErrors(t *testing.T) {
	q := &fakeQueue{}
	sweeper := newTestSweeper(t, &fakeSweepStore{err: errors.New("connection refused")}, q)

	sweeper.Sweep(context.Background())
	assert.Empty(t, q.enqueued)
}

func TestSweepToleratesEnqueueErrors(t *testing.T) {
	q := &fakeQueue{enqueueErr: errors.New("queue down")}
	sweeper := newTestSweeper(t, &fakeSweepStore{
		retries: []*notification.Notification{pendingNotification()},
	}, q)

	sweeper.Sweep(context.Background())
	assert.Empty(t, q.enqueued)
}

package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akiraliebert/event-driven-notification-system/internal/notification"
)

func newTestQueue(t *testing.T) *RedisQueue {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisQueue(client)
}

func TestEnqueueDequeueFIFO(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	first := Item{NotificationID: uuid.New(), Priority: notification.PriorityNormal}
	second := Item{NotificationID: uuid.New(), Priority: notification.PriorityNormal}

	require.NoError(t, q.Enqueue(ctx, first, nil))
	time.Sleep(2 * time.Millisecond) // enqueue-time scores must differ
	require.NoError(t, q.Enqueue(ctx, second, nil))

	got, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, first.NotificationID, got.NotificationID)

	got, err = q.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, second.NotificationID, got.NotificationID)
}

func TestDequeueDrainsHigherPrioritiesFirst(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	low := Item{NotificationID: uuid.New(), Priority: notification.PriorityLow}
	critical := Item{NotificationID: uuid.New(), Priority: notification.PriorityCritical}
	normal := Item{NotificationID: uuid.New(), Priority: notification.PriorityNormal}

	require.NoError(t, q.Enqueue(ctx, low, nil))
	require.NoError(t, q.Enqueue(ctx, critical, nil))
	require.NoError(t, q.Enqueue(ctx, normal, nil))

	var order []uuid.UUID
	for i := 0; i < 3; i++ {
		item, err := q.Dequeue(ctx)
		require.NoError(t, err)
		require.NotNil(t, item)
		order = append(order, item.NotificationID)
	}

	assert.Equal(t, []uuid.UUID{critical.NotificationID, normal.NotificationID, low.NotificationID}, order)
}

func TestDequeueEmpty(t *testing.T) {
	q := newTestQueue(t)

	item, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	assert.Nil(t, item)
}

func TestDelayedItemsInvisibleUntilPromoted(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	item := Item{NotificationID: uuid.New(), Priority: notification.PriorityHigh}
	eta := time.Now().Add(time.Hour)
	require.NoError(t, q.Enqueue(ctx, item, &eta))

	got, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Nil(t, got, "delayed item must not be visible before its ETA")

	// Not yet due.
	promoted, err := q.PromoteDelayed(ctx, time.Now())
	require.NoError(t, err)
	assert.Zero(t, promoted)

	// Due once the clock passes the ETA.
	promoted, err = q.PromoteDelayed(ctx, eta.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, 1, promoted)

	got, err = q.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, item.NotificationID, got.NotificationID)
	assert.Equal(t, notification.PriorityHigh, got.Priority)
}

func TestEnqueuePastETAGoesStraightToReady(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	item := Item{NotificationID: uuid.New(), Priority: notification.PriorityNormal}
	eta := time.Now().Add(-time.Minute)
	require.NoError(t, q.Enqueue(ctx, item, &eta))

	got, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, item.NotificationID, got.NotificationID)
}

func TestStats(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, Item{NotificationID: uuid.New(), Priority: notification.PriorityCritical}, nil))
	require.NoError(t, q.Enqueue(ctx, Item{NotificationID: uuid.New(), Priority: notification.PriorityCritical}, nil))
	eta := time.Now().Add(time.Hour)
	require.NoError(t, q.Enqueue(ctx, Item{NotificationID: uuid.New(), Priority: notification.PriorityLow}, &eta))

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.ReadyByPriority[notification.PriorityCritical])
	assert.Equal(t, int64(0), stats.ReadyByPriority[notification.PriorityLow])
	assert.Equal(t, int64(1), stats.DelayedCount)
}

func TestDelayedMemberEncoding(t *testing.T) {
	item := Item{NotificationID: uuid.New(), Priority: notification.PriorityCritical}

	decoded, err := decodeDelayed(encodeDelayed(item))
	require.NoError(t, err)
	assert.Equal(t, item, decoded)

	_, err = decodeDelayed("garbage")
	require.Error(t, err)

	_, err = decodeDelayed("critical|not-a-uuid")
	require.Error(t, err)
}

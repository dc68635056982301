// Package queue implements the delivery work queue on Redis sorted sets.
// One ready queue per priority keeps routing labels honest — workers drain
// critical before high before normal before low — and a shared delayed set
// provides the not-before ETA primitive used for quiet hours, retry
// backoff, and rate-limit requeues. A promote loop moves due members from
// the delayed set into their ready queue.
package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/akiraliebert/event-driven-notification-system/internal/notification"
)

// Redis key patterns.
const (
	keyReadyPrefix = "delivery:queue:"        // + priority
	keyDelayed     = "delivery:queue:delayed" // members are "<priority>|<id>"
)

// promoteBatchSize caps how many due members one promote pass moves.
const promoteBatchSize = 100

// Item is one unit of delivery work: a notification to attempt, routed by
// its priority.
type Item struct {
	NotificationID uuid.UUID
	Priority       notification.Priority
}

// Queue is the delivery work queue contract.
type Queue interface {
	// Enqueue adds a work item. A future eta defers visibility until the
	// promote loop moves the item into its ready queue.
	Enqueue(ctx context.Context, item Item, eta *time.Time) error

	// Dequeue pops the next ready item, highest priority first. Returns
	// nil when every ready queue is empty.
	Dequeue(ctx context.Context) (*Item, error)

	// PromoteDelayed moves due items from the delayed set to their ready
	// queues and reports how many it moved.
	PromoteDelayed(ctx context.Context, now time.Time) (int, error)

	// Stats returns queue depths for observability.
	Stats(ctx context.Context) (*Stats, error)

	// Close releases the underlying connection.
	Close() error
}

// Stats holds queue depth counters.
type Stats struct {
	ReadyByPriority map[notification.Priority]int64 `json:"ready_by_priority"`
	DelayedCount    int64                           `json:"delayed_count"`
}

// RedisQueue implements Queue on Redis.
type RedisQueue struct {
	client *redis.Client
}

// NewRedisQueue creates a queue over an existing Redis client.
func NewRedisQueue(client *redis.Client) *RedisQueue {
	return &RedisQueue{client: client}
}

// Enqueue adds a work item. Ready members are scored by enqueue time so
// each priority queue is FIFO; delayed members are scored by their ETA.
func (q *RedisQueue) Enqueue(ctx context.Context, item Item, eta *time.Time) error {
	now := time.Now()
	if eta != nil && eta.After(now) {
		err := q.client.ZAdd(ctx, keyDelayed, redis.Z{
			Score:  float64(eta.Unix()),
			Member: encodeDelayed(item),
		}).Err()
		if err != nil {
			return fmt.Errorf("failed to enqueue delayed work item: %w", err)
		}
		return nil
	}

	err := q.client.ZAdd(ctx, readyKey(item.Priority), redis.Z{
		Score:  float64(now.UnixNano()),
		Member: item.NotificationID.String(),
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to enqueue work item: %w", err)
	}
	return nil
}

// Dequeue pops one item, scanning priorities from critical down. ZPOPMIN
// is atomic, so concurrent workers never receive the same member.
func (q *RedisQueue) Dequeue(ctx context.Context) (*Item, error) {
	for _, priority := range notification.Priorities {
		results, err := q.client.ZPopMin(ctx, readyKey(priority), 1).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("failed to dequeue from %s queue: %w", priority, err)
		}
		if len(results) == 0 {
			continue
		}

		member, _ := results[0].Member.(string)
		id, err := uuid.Parse(member)
		if err != nil {
			// Unparseable members are dropped; they can never be delivered.
			continue
		}
		return &Item{NotificationID: id, Priority: priority}, nil
	}
	return nil, nil
}

// PromoteDelayed moves due members from the delayed set to their ready
// queues in one pipeline.
func (q *RedisQueue) PromoteDelayed(ctx context.Context, now time.Time) (int, error) {
	due, err := q.client.ZRangeByScore(ctx, keyDelayed, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.Unix(), 10),
		Count: promoteBatchSize,
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read delayed work items: %w", err)
	}
	if len(due) == 0 {
		return 0, nil
	}

	pipe := q.client.Pipeline()
	promoted := 0
	for _, member := range due {
		item, err := decodeDelayed(member)
		pipe.ZRem(ctx, keyDelayed, member)
		if err != nil {
			continue
		}
		pipe.ZAdd(ctx, readyKey(item.Priority), redis.Z{
			Score:  float64(now.UnixNano()),
			Member: item.NotificationID.String(),
		})
		promoted++
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("failed to promote delayed work items: %w", err)
	}
	return promoted, nil
}

// Stats returns per-priority ready depths and the delayed count.
func (q *RedisQueue) Stats(ctx context.Context) (*Stats, error) {
	pipe := q.client.Pipeline()
	readyCmds := make(map[notification.Priority]*redis.IntCmd, len(notification.Priorities))
	for _, priority := range notification.Priorities {
		readyCmds[priority] = pipe.ZCard(ctx, readyKey(priority))
	}
	delayedCmd := pipe.ZCard(ctx, keyDelayed)

	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to get queue stats: %w", err)
	}

	stats := &Stats{
		ReadyByPriority: make(map[notification.Priority]int64, len(readyCmds)),
		DelayedCount:    delayedCmd.Val(),
	}
	for priority, cmd := range readyCmds {
		stats.ReadyByPriority[priority] = cmd.Val()
	}
	return stats, nil
}

// Close closes the Redis connection.
func (q *RedisQueue) Close() error {
	return q.client.Close()
}

func readyKey(p notification.Priority) string {
	return keyReadyPrefix + string(p)
}

// Delayed members carry their priority so promotion can route them
// without a store lookup.
func encodeDelayed(item Item) string {
	return string(item.Priority) + "|" + item.NotificationID.String()
}

func decodeDelayed(member string) (Item, error) {
	priority, id, ok := strings.Cut(member, "|")
	if !ok {
		return Item{}, fmt.Errorf("malformed delayed member %q", member)
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return Item{}, fmt.Errorf("malformed delayed member %q: %w", member, err)
	}
	return Item{NotificationID: parsed, Priority: notification.Priority(priority)}, nil
}

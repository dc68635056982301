// Package ratelimit implements cross-process sliding-window admission
// control per channel, coordinated through Redis. All delivery workers
// share one limiter; atomicity of the check-and-insert is delegated to a
// server-side Lua script so concurrent workers can never jointly exceed
// the cap.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/akiraliebert/event-driven-notification-system/internal/config"
	"github.com/akiraliebert/event-driven-notification-system/internal/notification"
)

const keyPrefix = "ratelimit:"

// roundTripTimeout bounds the Redis call so a hung store cannot stall a
// delivery worker.
const roundTripTimeout = 2 * time.Second

// acquireScript trims the window, checks the cap, and records the new
// slot in one atomic server-side operation.
//
//	KEYS[1] = ratelimit:<channel>
//	ARGV[1] = now (unix seconds, fractional)
//	ARGV[2] = window seconds
//	ARGV[3] = limit
//	ARGV[4] = unique member
//
// Returns 1 when the slot was granted, 0 when the limit is reached.
var acquireScript = redis.NewScript(`
	local key = KEYS[1]
	local now = tonumber(ARGV[1])
	local window = tonumber(ARGV[2])
	local limit = tonumber(ARGV[3])

	redis.call("ZREMRANGEBYSCORE", key, "-inf", now - window)
	if redis.call("ZCARD", key) >= limit then
		return 0
	end
	redis.call("ZADD", key, now, ARGV[4])
	redis.call("EXPIRE", key, window + 1)
	return 1
`)

// Limiter is a per-channel sliding-window rate limiter backed by Redis
// sorted sets. Each granted acquisition is a member scored by its UNIX
// timestamp; the window is trimmed before every check.
type Limiter struct {
	client *redis.Client
	config config.RateLimit
	logger *logrus.Entry
}

// NewLimiter creates a limiter over an existing Redis client.
func NewLimiter(client *redis.Client, cfg config.RateLimit, logger *logrus.Entry) *Limiter {
	return &Limiter{client: client, config: cfg, logger: logger}
}

// Acquire tries to take a rate-limit slot for the channel. It returns
// false when the limit is reached. If the coordination store is
// unreachable the limiter fails closed — the caller requeues and a later
// attempt will see a healthy store.
func (l *Limiter) Acquire(ctx context.Context, channel notification.Channel) (bool, error) {
	limit, err := l.limitFor(channel)
	if err != nil {
		return false, err
	}

	ctx, cancel := context.WithTimeout(ctx, roundTripTimeout)
	defer cancel()

	now := float64(time.Now().UnixNano()) / float64(time.Second)
	key := keyPrefix + string(channel)

	granted, err := acquireScript.Run(ctx, l.client, []string{key},
		now, l.config.WindowSeconds, limit, uuid.NewString()).Int()
	if err != nil {
		l.logger.WithError(err).WithField("channel", channel).
			Warn("Rate limit store unavailable, failing closed")
		return false, nil
	}

	return granted == 1, nil
}

// limitFor returns the configured cap for a channel. Unknown channels are
// a misconfiguration and fail loudly.
func (l *Limiter) limitFor(channel notification.Channel) (int, error) {
	switch channel {
	case notification.ChannelEmail:
		return l.config.EmailPerMinute, nil
	case notification.ChannelSMS:
		return l.config.SMSPerMinute, nil
	case notification.ChannelPush:
		return l.config.PushPerMinute, nil
	}
	return 0, fmt.Errorf("no rate limit configured for channel %q", channel)
}

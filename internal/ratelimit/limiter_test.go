package ratelimit

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akiraliebert/event-driven-notification-system/internal/config"
	"github.com/akiraliebert/event-driven-notification-system/internal/notification"
)

func newTestLimiter(t *testing.T) (*Limiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg := config.RateLimit{
		EmailPerMinute: 3,
		SMSPerMinute:   1,
		PushPerMinute:  5,
		WindowSeconds:  60,
	}
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return NewLimiter(client, cfg, logger.WithField("test", t.Name())), mr
}

func TestAcquireGrantsUpToLimit(t *testing.T) {
	limiter, _ := newTestLimiter(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allowed, err := limiter.Acquire(ctx, notification.ChannelEmail)
		require.NoError(t, err)
		assert.True(t, allowed, "acquisition %d should be granted", i+1)
	}

	allowed, err := limiter.Acquire(ctx, notification.ChannelEmail)
	require.NoError(t, err)
	assert.False(t, allowed, "acquisition over the limit should be denied")
}

func TestAcquireLimitsPerChannel(t *testing.T) {
	limiter, _ := newTestLimiter(t)
	ctx := context.Background()

	allowed, err := limiter.Acquire(ctx, notification.ChannelSMS)
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, err = limiter.Acquire(ctx, notification.ChannelSMS)
	require.NoError(t, err)
	assert.False(t, allowed)

	// Email has its own window.
	allowed, err = limiter.Acquire(ctx, notification.ChannelEmail)
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestAcquireUnknownChannel(t *testing.T) {
	limiter, _ := newTestLimiter(t)

	_, err := limiter.Acquire(context.Background(), notification.Channel("fax"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no rate limit configured")
}

func TestAcquireFailsClosedWhenStoreDown(t *testing.T) {
	limiter, mr := newTestLimiter(t)
	mr.Close()

	allowed, err := limiter.Acquire(context.Background(), notification.ChannelEmail)
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestAcquireSetsKeyExpiry(t *testing.T) {
	limiter, mr := newTestLimiter(t)

	_, err := limiter.Acquire(context.Background(), notification.ChannelPush)
	require.NoError(t, err)

	assert.True(t, mr.Exists("ratelimit:push"))
	ttl := mr.TTL("ratelimit:push")
	assert.Greater(t, ttl.Seconds(), 0.0)
}

// Package provider defines the channel delivery capability and the
// registry that dispatches on a notification's channel. Providers attempt
// physical delivery and report the outcome as a value — they must not
// panic; any exceptional condition is returned as Success=false.
package provider

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/akiraliebert/event-driven-notification-system/internal/notification"
)

// Result is the outcome of a delivery attempt. Retryable distinguishes
// transient failures (network, throttling) from permanent ones (hard
// bounce, invalid recipient); permanent failures skip the retry schedule.
type Result struct {
	Success   bool
	Details   string
	Retryable bool
}

// Succeed builds a successful result.
func Succeed(details string) Result {
	return Result{Success: true, Details: details}
}

// Fail builds a retryable failure.
func Fail(details string) Result {
	return Result{Success: false, Details: details, Retryable: true}
}

// FailPermanent builds a non-retryable failure.
func FailPermanent(details string) Result {
	return Result{Success: false, Details: details, Retryable: false}
}

// Provider attempts delivery on one channel.
type Provider interface {
	Send(ctx context.Context, n *notification.Notification) Result
}

// Registry maps channels to provider implementations.
type Registry struct {
	providers map[notification.Channel]Provider
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[notification.Channel]Provider)}
}

// Register binds a provider to a channel, replacing any previous binding.
func (r *Registry) Register(channel notification.Channel, p Provider) {
	r.providers[channel] = p
}

// Get returns the provider for a channel. A missing binding is a
// programmer error surfaced as an error rather than a nil dereference.
func (r *Registry) Get(channel notification.Channel) (Provider, error) {
	p, ok := r.providers[channel]
	if !ok {
		return nil, fmt.Errorf("no provider registered for channel %q", channel)
	}
	return p, nil
}

// NewDefaultRegistry creates a registry with the built-in providers for
// every supported channel.
func NewDefaultRegistry(logger *logrus.Entry) *Registry {
	r := NewRegistry()
	r.Register(notification.ChannelEmail, NewEmailProvider(logger))
	r.Register(notification.ChannelSMS, NewSMSProvider(logger))
	r.Register(notification.ChannelPush, NewPushProvider(logger))
	return r
}

package provider

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/akiraliebert/event-driven-notification-system/internal/notification"
)

// PushProvider is the development push provider: it logs instead of
// calling FCM/APNs.
type PushProvider struct {
	logger *logrus.Entry
}

// NewPushProvider creates the push provider.
func NewPushProvider(logger *logrus.Entry) *PushProvider {
	return &PushProvider{logger: logger.WithField("provider", "push")}
}

// Send delivers a push notification.
func (p *PushProvider) Send(_ context.Context, n *notification.Notification) Result {
	p.logger.WithFields(logrus.Fields{
		"notification_id": n.ID,
		"user_id":         n.UserID,
	}).Info("Push notification sent")

	return Succeed("Push delivered")
}

package provider

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/akiraliebert/event-driven-notification-system/internal/notification"
)

// maxSMSLength is the single-segment limit; longer bodies are truncated
// with an ellipsis rather than split.
const maxSMSLength = 160

// SMSProvider is the development SMS provider: it logs instead of sending.
type SMSProvider struct {
	logger *logrus.Entry
}

// NewSMSProvider creates the SMS provider.
func NewSMSProvider(logger *logrus.Entry) *SMSProvider {
	return &SMSProvider{logger: logger.WithField("provider", "sms")}
}

// Send delivers an SMS notification.
func (p *SMSProvider) Send(_ context.Context, n *notification.Notification) Result {
	body := truncateBody(n.Content["body"])

	p.logger.WithFields(logrus.Fields{
		"notification_id": n.ID,
		"user_id":         n.UserID,
		"length":          len(body),
	}).Info("SMS sent")

	return Succeed("SMS delivered")
}

func truncateBody(body string) string {
	if len(body) <= maxSMSLength {
		return body
	}
	return body[:maxSMSLength-3] + "..."
}

package provider

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/akiraliebert/event-driven-notification-system/internal/notification"
)

// EmailProvider is the development email provider: it logs instead of
// sending. Swap the Send body for an SMTP/SES/SendGrid call in production;
// the Result contract stays the same.
type EmailProvider struct {
	logger *logrus.Entry
}

// NewEmailProvider creates the email provider.
func NewEmailProvider(logger *logrus.Entry) *EmailProvider {
	return &EmailProvider{logger: logger.WithField("provider", "email")}
}

// Send delivers an email notification.
func (p *EmailProvider) Send(_ context.Context, n *notification.Notification) Result {
	subject, ok := n.Content["subject"]
	if !ok {
		subject = "(no subject)"
	}

	p.logger.WithFields(logrus.Fields{
		"notification_id": n.ID,
		"user_id":         n.UserID,
		"subject":         subject,
	}).Info("Email sent")

	return Succeed(fmt.Sprintf("Email delivered: %s", subject))
}

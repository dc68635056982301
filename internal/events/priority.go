package events

import (
	"fmt"

	"github.com/akiraliebert/event-driven-notification-system/internal/notification"
)

var priorityByType = map[string]notification.Priority{
	TypeUserRegistered: notification.PriorityNormal,
	TypeOrderCompleted: notification.PriorityHigh,
	TypePaymentFailed:  notification.PriorityCritical,
}

// PriorityFor returns the notification priority assigned to an event type.
// Unknown types are a programming error upstream of this call (Parse
// rejects them) and wrap ErrInvalidEvent.
func PriorityFor(eventType string) (notification.Priority, error) {
	p, ok := priorityByType[eventType]
	if !ok {
		return "", fmt.Errorf("%w: no priority mapping for %q", ErrInvalidEvent, eventType)
	}
	return p, nil
}

// Package events defines the closed set of domain events the pipeline
// consumes. Raw log records are parsed into a discriminated union keyed on
// metadata.event_type; parsing is fallible and distinguishes permanently
// invalid input (skip and commit past) from everything else.
package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/mail"
	"time"

	"github.com/google/uuid"
)

// Known event types.
const (
	TypeUserRegistered = "user.registered"
	TypeOrderCompleted = "order.completed"
	TypePaymentFailed  = "payment.failed"
)

// AllTypes returns the sorted set of supported event types.
func AllTypes() []string {
	return []string{TypeOrderCompleted, TypePaymentFailed, TypeUserRegistered}
}

// KnownType reports whether eventType is in the supported set.
func KnownType(eventType string) bool {
	switch eventType {
	case TypeUserRegistered, TypeOrderCompleted, TypePaymentFailed:
		return true
	}
	return false
}

// ErrInvalidEvent marks permanently invalid input: malformed JSON, unknown
// event types, or payload validation failures. Consumers must commit past
// such records instead of retrying them.
var ErrInvalidEvent = errors.New("invalid event")

// ErrUnknownEventType wraps ErrInvalidEvent for unrecognized types.
var ErrUnknownEventType = fmt.Errorf("%w: unknown event type", ErrInvalidEvent)

// Metadata is the envelope common to every domain event.
type Metadata struct {
	EventID    uuid.UUID `json:"event_id"`
	EventType  string    `json:"event_type"`
	OccurredAt time.Time `json:"occurred_at"`
	Version    int       `json:"version"`
}

// Payload is the typed body of a domain event.
type Payload interface {
	// RecipientID is the user the resulting notifications address. It is
	// also the partition key on the domain-event log.
	RecipientID() uuid.UUID

	// TemplateContext returns the payload fields as strings for template
	// rendering.
	TemplateContext() map[string]string

	validate() error
}

// UserRegisteredPayload accompanies user.registered events.
type UserRegisteredPayload struct {
	UserID uuid.UUID `json:"user_id"`
	Email  string    `json:"email"`
}

func (p *UserRegisteredPayload) RecipientID() uuid.UUID { return p.UserID }

func (p *UserRegisteredPayload) TemplateContext() map[string]string {
	return map[string]string{
		"user_id": p.UserID.String(),
		"email":   p.Email,
	}
}

func (p *UserRegisteredPayload) validate() error {
	if p.UserID == uuid.Nil {
		return fmt.Errorf("%w: user_id is required", ErrInvalidEvent)
	}
	if _, err := mail.ParseAddress(p.Email); err != nil {
		return fmt.Errorf("%w: invalid email address: %v", ErrInvalidEvent, err)
	}
	return nil
}

// OrderCompletedPayload accompanies order.completed events. TotalAmount is
// a decimal string; the pipeline never does arithmetic on it.
type OrderCompletedPayload struct {
	OrderID     uuid.UUID `json:"order_id"`
	UserID      uuid.UUID `json:"user_id"`
	TotalAmount string    `json:"total_amount"`
}

func (p *OrderCompletedPayload) RecipientID() uuid.UUID { return p.UserID }

func (p *OrderCompletedPayload) TemplateContext() map[string]string {
	return map[string]string{
		"user_id":      p.UserID.String(),
		"order_id":     p.OrderID.String(),
		"total_amount": p.TotalAmount,
	}
}

func (p *OrderCompletedPayload) validate() error {
	if p.UserID == uuid.Nil {
		return fmt.Errorf("%w: user_id is required", ErrInvalidEvent)
	}
	if p.OrderID == uuid.Nil {
		return fmt.Errorf("%w: order_id is required", ErrInvalidEvent)
	}
	if p.TotalAmount == "" {
		return fmt.Errorf("%w: total_amount is required", ErrInvalidEvent)
	}
	return nil
}

// PaymentFailedPayload accompanies payment.failed events.
type PaymentFailedPayload struct {
	PaymentID uuid.UUID `json:"payment_id"`
	UserID    uuid.UUID `json:"user_id"`
	Reason    string    `json:"reason"`
}

func (p *PaymentFailedPayload) RecipientID() uuid.UUID { return p.UserID }

func (p *PaymentFailedPayload) TemplateContext() map[string]string {
	return map[string]string{
		"user_id":    p.UserID.String(),
		"payment_id": p.PaymentID.String(),
		"reason":     p.Reason,
	}
}

func (p *PaymentFailedPayload) validate() error {
	if p.UserID == uuid.Nil {
		return fmt.Errorf("%w: user_id is required", ErrInvalidEvent)
	}
	if p.PaymentID == uuid.Nil {
		return fmt.Errorf("%w: payment_id is required", ErrInvalidEvent)
	}
	if p.Reason == "" {
		return fmt.Errorf("%w: reason is required", ErrInvalidEvent)
	}
	return nil
}

// Event is a parsed, validated domain event.
type Event struct {
	Metadata Metadata
	Payload  Payload
}

type envelope struct {
	Metadata Metadata        `json:"metadata"`
	Payload  json.RawMessage `json:"payload"`
}

// Parse deserializes a raw log record into a typed event. Missing metadata
// fields receive defaults (fresh event_id, occurred_at now, version 1) so
// gateway-constructed events need only event_type and payload. Any
// structural or validation failure wraps ErrInvalidEvent.
func Parse(raw []byte) (*Event, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: malformed JSON: %v", ErrInvalidEvent, err)
	}
	if env.Payload == nil {
		return nil, fmt.Errorf("%w: payload is required", ErrInvalidEvent)
	}

	var payload Payload
	switch env.Metadata.EventType {
	case TypeUserRegistered:
		payload = &UserRegisteredPayload{}
	case TypeOrderCompleted:
		payload = &OrderCompletedPayload{}
	case TypePaymentFailed:
		payload = &PaymentFailedPayload{}
	case "":
		return nil, fmt.Errorf("%w: metadata.event_type is required", ErrInvalidEvent)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEventType, env.Metadata.EventType)
	}

	if err := json.Unmarshal(env.Payload, payload); err != nil {
		return nil, fmt.Errorf("%w: payload does not match %s: %v",
			ErrInvalidEvent, env.Metadata.EventType, err)
	}
	if err := payload.validate(); err != nil {
		return nil, err
	}

	meta := env.Metadata
	if meta.EventID == uuid.Nil {
		meta.EventID = uuid.New()
	}
	if meta.OccurredAt.IsZero() {
		meta.OccurredAt = time.Now().UTC()
	}
	if meta.Version == 0 {
		meta.Version = 1
	}

	return &Event{Metadata: meta, Payload: payload}, nil
}

// Encode serializes an event back to the wire form used on the domain-event
// log.
func (e *Event) Encode() ([]byte, error) {
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return json.Marshal(envelope{Metadata: e.Metadata, Payload: payload})
}

// Package notification holds the core domain model of the pipeline: the
// Notification record with its delivery state machine, the templates it is
// rendered from, per-user delivery preferences, and the Postgres store
// backing all three.
//
// Lifecycle:
//
//	Event Processor → create (pending) → Delivery Engine → sending → delivered
//	                                                    ↘ pending (retry)
//	                                                    ↘ failed (attempts exhausted)
package notification

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Channel is a delivery medium.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
	ChannelPush  Channel = "push"
)

// AllChannels lists every supported channel. Used for default preferences.
var AllChannels = []Channel{ChannelEmail, ChannelSMS, ChannelPush}

// Valid reports whether c is a known channel.
func (c Channel) Valid() bool {
	switch c {
	case ChannelEmail, ChannelSMS, ChannelPush:
		return true
	}
	return false
}

// Priority is a routing label used to partition work-queue capacity.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityNormal   Priority = "normal"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Priorities lists all priorities from most to least urgent. Delivery
// workers drain queues in this order.
var Priorities = []Priority{PriorityCritical, PriorityHigh, PriorityNormal, PriorityLow}

// Status is the lifecycle state of a notification.
type Status string

const (
	StatusPending   Status = "pending"   // Awaiting a delivery attempt
	StatusSending   Status = "sending"   // A worker is invoking the provider
	StatusDelivered Status = "delivered" // Terminal: provider reported success
	StatusFailed    Status = "failed"    // Terminal once attempts are exhausted
)

// Content is the rendered notification body keyed by part name. "body" is
// always present; "subject" is set when the template defines one.
type Content map[string]string

// Value implements driver.Valuer for database storage.
func (c Content) Value() (driver.Value, error) {
	return json.Marshal(c)
}

// Scan implements sql.Scanner for database retrieval.
func (c *Content) Scan(value interface{}) error {
	if value == nil {
		return nil
	}
	b, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}
	return json.Unmarshal(b, c)
}

// Notification is one materialization of a domain event for one channel
// for one user. The pair (SourceEventID, Channel) is globally unique and
// serves as the idempotency key.
type Notification struct {
	ID              uuid.UUID  `json:"id" db:"id"`
	UserID          uuid.UUID  `json:"user_id" db:"user_id"`
	Channel         Channel    `json:"channel" db:"channel"`
	Priority        Priority   `json:"priority" db:"priority"`
	Status          Status     `json:"status" db:"status"`
	SourceEventID   uuid.UUID  `json:"source_event_id" db:"source_event_id"`
	SourceEventType string     `json:"source_event_type" db:"source_event_type"`
	Content         Content    `json:"content" db:"content"`
	Attempts        int        `json:"attempts" db:"attempts"`
	MaxAttempts     int        `json:"max_attempts" db:"max_attempts"`
	NextRetryAt     *time.Time `json:"next_retry_at,omitempty" db:"next_retry_at"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
	DeliveredAt     *time.Time `json:"delivered_at,omitempty" db:"delivered_at"`
	FailedReason    *string    `json:"failed_reason,omitempty" db:"failed_reason"`
}

// Terminal reports whether the notification has reached a state the
// Delivery Engine must not mutate further.
func (n *Notification) Terminal() bool {
	if n.Status == StatusDelivered {
		return true
	}
	return n.Status == StatusFailed && n.Attempts >= n.MaxAttempts
}

// Template is an admin-managed render source for one (event type, channel)
// pair. The core only reads templates; they are seeded via migration.
type Template struct {
	ID              uuid.UUID `json:"id" db:"id"`
	EventType       string    `json:"event_type" db:"event_type"`
	Channel         Channel   `json:"channel" db:"channel"`
	SubjectTemplate *string   `json:"subject_template,omitempty" db:"subject_template"`
	BodyTemplate    string    `json:"body_template" db:"body_template"`
	IsActive        bool      `json:"is_active" db:"is_active"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time `json:"updated_at" db:"updated_at"`
}

// ChannelSet is a user's enabled channels, stored as a JSON array.
type ChannelSet []Channel

// Value implements driver.Valuer for database storage.
func (s ChannelSet) Value() (driver.Value, error) {
	return json.Marshal(s)
}

// Scan implements sql.Scanner for database retrieval.
func (s *ChannelSet) Scan(value interface{}) error {
	if value == nil {
		return nil
	}
	b, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}
	return json.Unmarshal(b, s)
}

// Contains reports whether the set includes ch.
func (s ChannelSet) Contains(ch Channel) bool {
	for _, c := range s {
		if c == ch {
			return true
		}
	}
	return false
}

// UserPreference controls which channels a user receives and when.
// Either both quiet-hours bounds are set or both are nil. Times are local
// to Timezone (IANA name).
type UserPreference struct {
	UserID          uuid.UUID  `json:"user_id" db:"user_id"`
	Channels        ChannelSet `json:"channels" db:"channels"`
	QuietHoursStart *TimeOfDay `json:"quiet_hours_start,omitempty" db:"quiet_hours_start"`
	QuietHoursEnd   *TimeOfDay `json:"quiet_hours_end,omitempty" db:"quiet_hours_end"`
	Timezone        string     `json:"timezone" db:"timezone"`
}

// TimeOfDay is a wall-clock time without a date, matching Postgres TIME.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// Minutes returns the offset from midnight in minutes.
func (t TimeOfDay) Minutes() int {
	return t.Hour*60 + t.Minute
}

// String renders HH:MM:SS, the form Postgres emits for TIME columns.
func (t TimeOfDay) String() string {
	return timeOfDayString(t)
}

// Value implements driver.Valuer for database storage.
func (t TimeOfDay) Value() (driver.Value, error) {
	return timeOfDayString(t), nil
}

// Scan implements sql.Scanner. Accepts "HH:MM:SS" strings, byte slices,
// and time.Time values depending on driver behavior.
func (t *TimeOfDay) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		return nil
	case time.Time:
		t.Hour, t.Minute = v.Hour(), v.Minute()
		return nil
	case []byte:
		return parseTimeOfDay(string(v), t)
	case string:
		return parseTimeOfDay(v, t)
	}
	return errors.New("unsupported type for TimeOfDay")
}

func timeOfDayString(t TimeOfDay) string {
	const digits = "0123456789"
	return string([]byte{
		digits[t.Hour/10], digits[t.Hour%10], ':',
		digits[t.Minute/10], digits[t.Minute%10], ':', '0', '0',
	})
}

func parseTimeOfDay(s string, out *TimeOfDay) error {
	parsed, err := time.Parse("15:04:05", s)
	if err != nil {
		parsed, err = time.Parse("15:04", s)
		if err != nil {
			return err
		}
	}
	out.Hour, out.Minute = parsed.Hour(), parsed.Minute()
	return nil
}

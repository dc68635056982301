package notification

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// ErrConflict is returned when the (source_event_id, channel) idempotency
// constraint rejects an insert.
var ErrConflict = errors.New("notification already exists for event and channel")

// ErrNotFound is returned when a row lookup or update matches nothing.
var ErrNotFound = errors.New("notification not found")

// ErrTerminalState is returned when an update targets a delivered
// notification. Delivered rows are immutable.
var ErrTerminalState = errors.New("notification is in a terminal state")

// DBTX is satisfied by both *sql.DB and *sql.Tx so repository calls can
// join whatever transaction the caller opened.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Repository is the data access layer for the notifications table.
type Repository struct {
	db DBTX
}

// NewRepository creates a repository over a database or open transaction.
func NewRepository(db DBTX) *Repository {
	return &Repository{db: db}
}

const notificationColumns = `id, user_id, channel, priority, status,
	source_event_id, source_event_type, content, attempts, max_attempts,
	next_retry_at, created_at, delivered_at, failed_reason`

// Create inserts a new notification row. The (source_event_id, channel)
// unique constraint is the durable idempotency enforcement; violations
// surface as ErrConflict.
func (r *Repository) Create(ctx context.Context, n *Notification) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	if n.MaxAttempts == 0 {
		n.MaxAttempts = 3
	}
	if n.Status == "" {
		n.Status = StatusPending
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO notifications (` + notificationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	_, err := r.db.ExecContext(ctx, query,
		n.ID, n.UserID, n.Channel, n.Priority, n.Status,
		n.SourceEventID, n.SourceEventType, n.Content, n.Attempts, n.MaxAttempts,
		n.NextRetryAt, n.CreatedAt, n.DeliveredAt, n.FailedReason,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("failed to insert notification: %w", err)
	}
	return nil
}

// GetByID fetches a notification by primary key.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE id = $1`

	n, err := scanNotification(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get notification: %w", err)
	}
	return n, nil
}

// GetChannelsForEvent returns the set of channels that already have a
// notification for the given source event. One query instead of a lookup
// per channel; this is the fast path of the idempotency check.
func (r *Repository) GetChannelsForEvent(ctx context.Context, eventID uuid.UUID) (map[Channel]bool, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT channel FROM notifications WHERE source_event_id = $1`, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to get channels for event: %w", err)
	}
	defer func() { _ = rows.Close() }()

	channels := make(map[Channel]bool)
	for rows.Next() {
		var ch Channel
		if err := rows.Scan(&ch); err != nil {
			return nil, fmt.Errorf("failed to scan channel: %w", err)
		}
		channels[ch] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating channels: %w", err)
	}
	return channels, nil
}

// StatusUpdate describes a status transition with its optional side fields.
type StatusUpdate struct {
	Status            Status
	DeliveredAt       *time.Time
	FailedReason      *string
	NextRetryAt       *time.Time
	IncrementAttempts bool
}

// UpdateStatus applies a status transition. Delivered rows are never
// touched; attempting to update one returns ErrTerminalState.
func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, update StatusUpdate) error {
	query := `
		UPDATE notifications
		SET status = $2,
			delivered_at = COALESCE($3, delivered_at),
			failed_reason = COALESCE($4, failed_reason),
			next_retry_at = COALESCE($5, next_retry_at),
			attempts = attempts + $6
		WHERE id = $1 AND status <> $7
	`

	increment := 0
	if update.IncrementAttempts {
		increment = 1
	}

	result, err := r.db.ExecContext(ctx, query,
		id, update.Status, update.DeliveredAt, update.FailedReason,
		update.NextRetryAt, increment, StatusDelivered)
	if err != nil {
		return fmt.Errorf("failed to update notification status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		// Either the row does not exist or it is already delivered.
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return getErr
		}
		return ErrTerminalState
	}
	return nil
}

// PendingRetries fetches notifications due for a retry: status pending or
// failed, next_retry_at elapsed, attempts not yet exhausted. Oldest first.
func (r *Repository) PendingRetries(ctx context.Context, now time.Time, limit int) ([]*Notification, error) {
	query := `
		SELECT ` + notificationColumns + `
		FROM notifications
		WHERE status IN ($1, $2)
			AND next_retry_at IS NOT NULL
			AND next_retry_at <= $3
			AND attempts < max_attempts
		ORDER BY next_retry_at ASC
		LIMIT $4
	`

	rows, err := r.db.QueryContext(ctx, query, StatusPending, StatusFailed, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get pending retries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanNotifications(rows)
}

// StalePending fetches pending notifications with no scheduled retry whose
// creation predates the cutoff. These are rows whose work item was lost
// (e.g. an enqueue failure after commit); the sweeper requeues them.
func (r *Repository) StalePending(ctx context.Context, createdBefore time.Time, limit int) ([]*Notification, error) {
	query := `
		SELECT ` + notificationColumns + `
		FROM notifications
		WHERE status = $1
			AND next_retry_at IS NULL
			AND created_at < $2
		ORDER BY created_at ASC
		LIMIT $3
	`

	rows, err := r.db.QueryContext(ctx, query, StatusPending, createdBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get stale pending notifications: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanNotifications(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNotification(row rowScanner) (*Notification, error) {
	var n Notification
	err := row.Scan(
		&n.ID, &n.UserID, &n.Channel, &n.Priority, &n.Status,
		&n.SourceEventID, &n.SourceEventType, &n.Content, &n.Attempts, &n.MaxAttempts,
		&n.NextRetryAt, &n.CreatedAt, &n.DeliveredAt, &n.FailedReason,
	)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func scanNotifications(rows *sql.Rows) ([]*Notification, error) {
	var notifications []*Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		notifications = append(notifications, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return notifications, nil
}

// isUniqueViolation checks for PostgreSQL error code 23505.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}

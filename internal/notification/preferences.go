package notification

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// PreferenceRepository is the data access layer for user notification
// preferences.
type PreferenceRepository struct {
	db DBTX
}

// NewPreferenceRepository creates a preference repository.
func NewPreferenceRepository(db DBTX) *PreferenceRepository {
	return &PreferenceRepository{db: db}
}

const preferenceColumns = `user_id, channels, quiet_hours_start, quiet_hours_end, timezone`

// GetByUserID fetches preferences for a user, or ErrNotFound.
func (r *PreferenceRepository) GetByUserID(ctx context.Context, userID uuid.UUID) (*UserPreference, error) {
	query := `SELECT ` + preferenceColumns + ` FROM user_preferences WHERE user_id = $1`

	var p UserPreference
	err := r.db.QueryRowContext(ctx, query, userID).Scan(
		&p.UserID, &p.Channels, &p.QuietHoursStart, &p.QuietHoursEnd, &p.Timezone)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get preferences: %w", err)
	}
	return &p, nil
}

// GetOrCreateDefault fetches a user's preferences, inserting the defaults
// (all channels enabled, UTC, no quiet hours) when none exist yet. The
// insert uses ON CONFLICT DO NOTHING so two racing processors both end up
// reading the single surviving row.
func (r *PreferenceRepository) GetOrCreateDefault(ctx context.Context, userID uuid.UUID) (*UserPreference, error) {
	pref, err := r.GetByUserID(ctx, userID)
	if err == nil {
		return pref, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO user_preferences (user_id, channels, timezone)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO NOTHING
	`, userID, ChannelSet(AllChannels), "UTC")
	if err != nil {
		return nil, fmt.Errorf("failed to create default preferences: %w", err)
	}

	return r.GetByUserID(ctx, userID)
}

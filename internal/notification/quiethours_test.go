package notification

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tod(hour, minute int) *TimeOfDay {
	return &TimeOfDay{Hour: hour, Minute: minute}
}

func TestQuietHoursETAUnsetBounds(t *testing.T) {
	now := time.Date(2026, 8, 1, 23, 30, 0, 0, time.UTC)

	eta, err := QuietHoursETA(nil, nil, "UTC", now)
	require.NoError(t, err)
	assert.Nil(t, eta)

	// A single bound never defers.
	eta, err = QuietHoursETA(tod(22, 0), nil, "UTC", now)
	require.NoError(t, err)
	assert.Nil(t, eta)
}

func TestQuietHoursETAOutsideWindow(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	eta, err := QuietHoursETA(tod(22, 0), tod(8, 0), "UTC", now)
	require.NoError(t, err)
	assert.Nil(t, eta)
}

func TestQuietHoursETAWrapAroundBeforeMidnight(t *testing.T) {
	// 23:30 inside a 22:00 → 08:00 window: deferred to 08:00 the next day.
	now := time.Date(2026, 8, 1, 23, 30, 0, 0, time.UTC)

	eta, err := QuietHoursETA(tod(22, 0), tod(8, 0), "UTC", now)
	require.NoError(t, err)
	require.NotNil(t, eta)
	assert.Equal(t, time.Date(2026, 8, 2, 8, 0, 0, 0, time.UTC), *eta)
}

func TestQuietHoursETAWrapAroundAfterMidnight(t *testing.T) {
	// 06:00 inside a 22:00 → 08:00 window: deferred to 08:00 the same day.
	now := time.Date(2026, 8, 2, 6, 0, 0, 0, time.UTC)

	eta, err := QuietHoursETA(tod(22, 0), tod(8, 0), "UTC", now)
	require.NoError(t, err)
	require.NotNil(t, eta)
	assert.Equal(t, time.Date(2026, 8, 2, 8, 0, 0, 0, time.UTC), *eta)
}

func TestQuietHoursETASameDayWindow(t *testing.T) {
	now := time.Date(2026, 8, 1, 13, 0, 0, 0, time.UTC)

	eta, err := QuietHoursETA(tod(12, 0), tod(14, 0), "UTC", now)
	require.NoError(t, err)
	require.NotNil(t, eta)
	assert.Equal(t, time.Date(2026, 8, 1, 14, 0, 0, 0, time.UTC), *eta)
}

func TestQuietHoursETAWindowBoundsAreHalfOpen(t *testing.T) {
	// The end minute itself is outside the window.
	now := time.Date(2026, 8, 1, 14, 0, 0, 0, time.UTC)
	eta, err := QuietHoursETA(tod(12, 0), tod(14, 0), "UTC", now)
	require.NoError(t, err)
	assert.Nil(t, eta)

	// The start minute is inside.
	now = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	eta, err = QuietHoursETA(tod(12, 0), tod(14, 0), "UTC", now)
	require.NoError(t, err)
	require.NotNil(t, eta)
}

func TestQuietHoursETARespectsTimezone(t *testing.T) {
	// 02:00 UTC is 23:00 the previous day in America/New_York (UTC-4 in
	// August), inside a 22:00 → 08:00 local window. The ETA is 08:00 local,
	// 12:00 UTC.
	now := time.Date(2026, 8, 2, 2, 0, 0, 0, time.UTC)

	eta, err := QuietHoursETA(tod(22, 0), tod(8, 0), "America/New_York", now)
	require.NoError(t, err)
	require.NotNil(t, eta)
	assert.Equal(t, time.Date(2026, 8, 2, 12, 0, 0, 0, time.UTC), *eta)
}

func TestQuietHoursETAInvalidTimezone(t *testing.T) {
	now := time.Date(2026, 8, 1, 23, 30, 0, 0, time.UTC)

	_, err := QuietHoursETA(tod(22, 0), tod(8, 0), "Not/AZone", now)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid timezone")
}

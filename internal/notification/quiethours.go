package notification

import (
	"fmt"
	"time"
)

// QuietHoursETA computes the deferred-delivery timestamp for a user whose
// quiet-hours window covers the current moment. It returns nil when no
// deferral is needed: either quiet hours are unset or now falls outside
// the window.
//
// The window is expressed in the user's local timezone and may wrap
// through midnight (e.g. 22:00 → 08:00). The returned time is the next
// occurrence of the window's end, converted to UTC.
func QuietHoursETA(start, end *TimeOfDay, tz string, nowUTC time.Time) (*time.Time, error) {
	if start == nil || end == nil {
		return nil, nil
	}

	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", tz, err)
	}

	nowLocal := nowUTC.In(loc)
	current := TimeOfDay{Hour: nowLocal.Hour(), Minute: nowLocal.Minute()}

	if !inQuietHours(current, *start, *end) {
		return nil, nil
	}

	endLocal := time.Date(nowLocal.Year(), nowLocal.Month(), nowLocal.Day(),
		end.Hour, end.Minute, 0, 0, loc)
	if !endLocal.After(nowLocal) {
		endLocal = endLocal.AddDate(0, 0, 1)
	}

	eta := endLocal.UTC()
	return &eta, nil
}

// inQuietHours checks whether current falls inside [start, end), handling
// windows that wrap through midnight.
func inQuietHours(current, start, end TimeOfDay) bool {
	c, s, e := current.Minutes(), start.Minutes(), end.Minutes()
	if s <= e {
		return s <= c && c < e
	}
	return c >= s || c < e
}

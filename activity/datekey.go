// Package activity derives per-day statistics (streaks, heat-map buckets,
// progress series) from timestamped recording activity.
package activity

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the calendar-day key format.
const DateLayout = "2006-01-02"

// ErrInvalidDate is matched by every *InvalidDateError.
var ErrInvalidDate = errors.New("invalid date")

// InvalidDateError reports a timestamp that could not be parsed as a date.
type InvalidDateError struct {
	Value string
}

func (e *InvalidDateError) Error() string {
	return fmt.Sprintf("invalid date %q", e.Value)
}

func (e *InvalidDateError) Is(target error) bool { return target == ErrInvalidDate }

// zoned layouts carry their own offset; local layouts are read in the caller's location.
var (
	zonedLayouts = []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05.999999999Z0700", "2006-01-02 15:04:05.999999999-07:00", "2006-01-02 15:04:05.999999999-07"}
	localLayouts = []string{"2006-01-02T15:04:05.999999999", "2006-01-02 15:04:05.999999999", DateLayout}
)

// KeyOf returns the calendar day of t in loc (time.Local when nil).
func KeyOf(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format(DateLayout)
}

// ParseTimestamp parses an ISO-8601 date or date-time. Values without an
// offset are interpreted in loc.
func ParseTimestamp(ts string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	raw := strings.TrimSpace(ts)
	if raw == "" {
		return time.Time{}, &InvalidDateError{Value: ts}
	}
	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, &InvalidDateError{Value: ts}
}

// DateKey normalizes a timestamp string to its calendar-day key in loc.
func DateKey(ts string, loc *time.Location) (string, error) {
	t, err := ParseTimestamp(ts, loc)
	if err != nil {
		return "", err
	}
	return KeyOf(t, loc), nil
}

// dayGap is the number of whole calendar days from a to b (b later is positive).
// Keys are compared as UTC midnights so DST shifts never produce fractional days.
func dayGap(a, b string) int {
	ta, _ := time.Parse(DateLayout, a)
	tb, _ := time.Parse(DateLayout, b)
	return int(tb.Sub(ta).Hours() / 24)
}

// shiftKey moves a key by n calendar days.
func shiftKey(key string, n int) string {
	t, _ := time.Parse(DateLayout, key)
	return t.AddDate(0, 0, n).Format(DateLayout)
}

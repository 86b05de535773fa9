package timeutil

import (
	"fmt"
	"strings"
	"time"
)

// EpochMillis returns t as milliseconds since the Unix epoch.
func EpochMillis(t time.Time) int64 {
	return t.UnixMilli()
}

// FromEpochMillis converts milliseconds since the Unix epoch to a time.Time.
func FromEpochMillis(ms int64) time.Time {
	return time.UnixMilli(ms)
}

// ConvertToUserTimezone converts a time to the named IANA timezone.
// Empty or invalid timezones return the local time.
func ConvertToUserTimezone(t time.Time, timezone string) time.Time {
	if timezone == "" {
		return t.Local()
	}

	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return t.Local()
	}

	return t.In(loc)
}

// FormatLocal formats t for display in the user's timezone (TZ or local).
func FormatLocal(t time.Time, timezone string) string {
	return ConvertToUserTimezone(t, timezone).Format("2006-01-02 15:04:05 MST")
}

// HumanDuration formats a duration in a human-friendly way
// (e.g., "2 days, 3 hours and 45 minutes").
func HumanDuration(d time.Duration) string {
	if d < 0 {
		d = -d
	}

	days := int(d.Hours() / 24)
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	var parts []string
	parts = appendUnit(parts, days, "day")
	parts = appendUnit(parts, hours, "hour")
	parts = appendUnit(parts, minutes, "minute")
	if len(parts) == 0 {
		parts = appendUnit(parts, seconds, "second")
	}

	switch len(parts) {
	case 0:
		return "0 seconds"
	case 1:
		return parts[0]
	default:
		return strings.Join(parts[:len(parts)-1], ", ") + " and " + parts[len(parts)-1]
	}
}

func appendUnit(parts []string, n int, unit string) []string {
	switch {
	case n == 1:
		return append(parts, "1 "+unit)
	case n > 1:
		return append(parts, fmt.Sprintf("%d %ss", n, unit))
	}
	return parts
}

package timeutil

import (
	"testing"
	"time"
)

func TestHumanDuration(t *testing.T) {
	tests := []struct {
		name string
		in   time.Duration
		want string
	}{
		{"zero", 0, "0 seconds"},
		{"seconds only", 42 * time.Second, "42 seconds"},
		{"one minute", time.Minute + 5*time.Second, "1 minute"},
		{"hours and minutes", 2*time.Hour + 30*time.Minute, "2 hours and 30 minutes"},
		{"days hours minutes", 49*time.Hour + 3*time.Minute, "2 days, 1 hour and 3 minutes"},
		{"negative", -90 * time.Minute, "1 hour and 30 minutes"},
		{"thirty days", 30 * 24 * time.Hour, "30 days"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HumanDuration(tt.in); got != tt.want {
				t.Errorf("HumanDuration(%v) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestEpochMillisRoundTrip(t *testing.T) {
	now := time.Date(2026, 10, 19, 12, 0, 0, 123_000_000, time.UTC)
	ms := EpochMillis(now)
	if ms != now.UnixNano()/int64(time.Millisecond) {
		t.Fatalf("EpochMillis() = %d", ms)
	}
	if back := FromEpochMillis(ms); !back.Equal(now) {
		t.Errorf("FromEpochMillis() = %v, want %v", back, now)
	}
}

func TestConvertToUserTimezone(t *testing.T) {
	ts := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	got := ConvertToUserTimezone(ts, "Asia/Tokyo")
	if got.Hour() != 21 {
		t.Errorf("Asia/Tokyo hour = %d, want 21", got.Hour())
	}

	if got := ConvertToUserTimezone(ts, "Not/AZone"); !got.Equal(ts) {
		t.Errorf("invalid zone changed the instant: %v", got)
	}
}

package season

import (
	"testing"
	"time"
)

func mustParse(t *testing.T, value string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, value)
	if err != nil {
		t.Fatalf("parse %q: %v", value, err)
	}
	return ts
}

func TestKey(t *testing.T) {
	tests := []struct {
		at   string
		want string
	}{
		{"2025-10-15T00:00:00Z", "202510"},
		{"2025-01-01T00:00:00Z", "202501"},
		{"2025-12-31T23:59:59Z", "202512"},
	}
	for _, tc := range tests {
		if got := Key(mustParse(t, tc.at)); got != tc.want {
			t.Fatalf("Key(%s) = %q, want %q", tc.at, got, tc.want)
		}
	}
}

func TestKeyNormalizesToUTC(t *testing.T) {
	// 2025-11-01T05:30+06:00 is still October in UTC.
	loc := time.FixedZone("east", 6*60*60)
	at := time.Date(2025, time.November, 1, 5, 30, 0, 0, loc)
	if got := Key(at); got != "202510" {
		t.Fatalf("Key = %q, want 202510", got)
	}
}

func TestWindowForOctober(t *testing.T) {
	w := WindowFor(mustParse(t, "2025-10-15T00:00:00Z"))

	if want := mustParse(t, "2025-10-01T00:00:00Z"); !w.StartAt.Equal(want) {
		t.Fatalf("StartAt = %s, want %s", w.StartAt, want)
	}
	if want := mustParse(t, "2025-10-27T00:00:00Z"); !w.LockStartAt.Equal(want) {
		t.Fatalf("LockStartAt = %s, want %s", w.LockStartAt, want)
	}
	if want := mustParse(t, "2025-11-01T00:05:00Z"); !w.LockEndAt.Equal(want) {
		t.Fatalf("LockEndAt = %s, want %s", w.LockEndAt, want)
	}
	if w.OffDays != 5 {
		t.Fatalf("OffDays = %d, want 5", w.OffDays)
	}
}

func TestWindowForShortMonths(t *testing.T) {
	tests := []struct {
		at            string
		wantLockStart string
		wantLockEnd   string
	}{
		// 30-day month.
		{"2025-11-10T12:00:00Z", "2025-11-26T00:00:00Z", "2025-12-01T00:05:00Z"},
		// February, non-leap.
		{"2025-02-03T00:00:00Z", "2025-02-24T00:00:00Z", "2025-03-01T00:05:00Z"},
		// February, leap year.
		{"2024-02-03T00:00:00Z", "2024-02-25T00:00:00Z", "2024-03-01T00:05:00Z"},
		// December wraps the year.
		{"2025-12-30T23:00:00Z", "2025-12-27T00:00:00Z", "2026-01-01T00:05:00Z"},
	}
	for _, tc := range tests {
		w := WindowFor(mustParse(t, tc.at))
		if want := mustParse(t, tc.wantLockStart); !w.LockStartAt.Equal(want) {
			t.Fatalf("at=%s LockStartAt = %s, want %s", tc.at, w.LockStartAt, want)
		}
		if want := mustParse(t, tc.wantLockEnd); !w.LockEndAt.Equal(want) {
			t.Fatalf("at=%s LockEndAt = %s, want %s", tc.at, w.LockEndAt, want)
		}
	}
}

func TestPrevKey(t *testing.T) {
	tests := []struct {
		at   string
		want string
	}{
		// Exactly at the rollover trigger moment: still closes October.
		{"2025-11-01T00:05:00Z", "202510"},
		{"2025-11-15T09:00:00Z", "202510"},
		// Year boundary.
		{"2026-01-01T00:05:00Z", "202512"},
	}
	for _, tc := range tests {
		if got := PrevKey(mustParse(t, tc.at)); got != tc.want {
			t.Fatalf("PrevKey(%s) = %q, want %q", tc.at, got, tc.want)
		}
	}
}

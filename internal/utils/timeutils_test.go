package utils

import (
	"errors"
	"testing"
	"time"
)

func TestSubtractUnitsCalendarMonth(t *testing.T) {
	now := time.Date(2024, time.March, 31, 12, 0, 0, 0, time.UTC)
	got, err := SubtractUnits(now, 1, "month")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// AddDate normalises Feb 31 to Mar 2 in a leap year.
	want := time.Date(2024, time.March, 2, 12, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestSubtractUnitsWeeksAndHours(t *testing.T) {
	now := time.Date(2024, time.January, 10, 8, 30, 0, 0, time.UTC)
	cases := []struct {
		n    int
		unit string
		want time.Time
	}{
		{2, "hours", now.Add(-2 * time.Hour)},
		{15, "minute", now.Add(-15 * time.Minute)},
		{1, "week", time.Date(2024, time.January, 3, 8, 30, 0, 0, time.UTC)},
		{3, "days", time.Date(2024, time.January, 7, 8, 30, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		got, err := SubtractUnits(now, tc.n, tc.unit)
		if err != nil {
			t.Fatalf("%d %s: unexpected error: %v", tc.n, tc.unit, err)
		}
		if !got.Equal(tc.want) {
			t.Fatalf("%d %s: expected %v, got %v", tc.n, tc.unit, tc.want, got)
		}
	}
}

func TestSubtractUnitsRejectsUnknownUnit(t *testing.T) {
	if _, err := SubtractUnits(time.Now(), 1, "fortnight"); err == nil {
		t.Fatalf("expected error for unknown unit")
	}
}

func TestStartOfDay(t *testing.T) {
	ts := time.Date(2024, time.May, 5, 23, 59, 1, 5, time.UTC)
	got := StartOfDay(ts)
	if got.Hour() != 0 || got.Minute() != 0 || got.Day() != 5 {
		t.Fatalf("unexpected start of day: %v", got)
	}
}

func TestParseRFC3339(t *testing.T) {
	got, err := ParseRFC3339("2024-03-05T09:00:00Z")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := time.Date(2024, time.March, 5, 9, 0, 0, 0, time.UTC); !got.Equal(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	if _, err := ParseRFC3339(""); err == nil {
		t.Fatalf("expected error for empty value")
	}
	if _, err := ParseRFC3339("05/03/2024"); err == nil {
		t.Fatalf("expected error for non-RFC3339 value")
	}
}

func TestSubtractUnitsRejectsOverflow(t *testing.T) {
	now := time.Date(2024, time.March, 5, 9, 0, 0, 0, time.UTC)
	cases := []struct {
		n    int
		unit string
	}{
		{9999999999, "hours"},
		{99999999999999, "minutes"},
		{MaxCalendarLookbackYears*366 + 1, "days"},
		{MaxCalendarLookbackYears*53 + 1, "weeks"},
		{MaxCalendarLookbackYears*12 + 1, "months"},
		{-1, "hours"},
	}
	for _, tc := range cases {
		got, err := SubtractUnits(now, tc.n, tc.unit)
		if !errors.Is(err, ErrLookbackRange) {
			t.Fatalf("%d %s: expected ErrLookbackRange, got %v (%v)", tc.n, tc.unit, err, got)
		}
	}

	got, err := SubtractUnits(now, MaxCalendarLookbackYears*12, "months")
	if err != nil || got.After(now) {
		t.Fatalf("largest month lookback: got %v, %v", got, err)
	}
}

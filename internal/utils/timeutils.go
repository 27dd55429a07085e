package utils

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// ParseRFC3339 parses an instant supplied on the command line. Empty input is an error.
func ParseRFC3339(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, errors.New("instant is empty")
	}
	at, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("instant %q is not RFC3339: %w", value, err)
	}
	return at.UTC(), nil
}

// StartOfDay returns midnight of t's calendar day in t's location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// MaxCalendarLookbackYears bounds day, week and month lookbacks.
const MaxCalendarLookbackYears = 10000

// ErrLookbackRange is returned when a lookback cannot be represented.
var ErrLookbackRange = errors.New("lookback out of range")

// SubtractUnits moves t back by n calendar units. Days, weeks and months are applied to
// the date components so month-end rollover follows time.AddDate. Negative n and
// lookbacks that would overflow return ErrLookbackRange.
func SubtractUnits(t time.Time, n int, unit string) (time.Time, error) {
	if n < 0 {
		return t, fmt.Errorf("%w: negative count %d", ErrLookbackRange, n)
	}
	switch strings.TrimSuffix(strings.ToLower(unit), "s") {
	case "minute":
		return subtractDuration(t, n, time.Minute)
	case "hour":
		return subtractDuration(t, n, time.Hour)
	case "day":
		if n > MaxCalendarLookbackYears*366 {
			return t, fmt.Errorf("%w: %d days", ErrLookbackRange, n)
		}
		return t.AddDate(0, 0, -n), nil
	case "week":
		if n > MaxCalendarLookbackYears*53 {
			return t, fmt.Errorf("%w: %d weeks", ErrLookbackRange, n)
		}
		return t.AddDate(0, 0, -7*n), nil
	case "month":
		if n > MaxCalendarLookbackYears*12 {
			return t, fmt.Errorf("%w: %d months", ErrLookbackRange, n)
		}
		return t.AddDate(0, -n, 0), nil
	default:
		return t, fmt.Errorf("unsupported time unit %q", unit)
	}
}

func subtractDuration(t time.Time, n int, unit time.Duration) (time.Time, error) {
	if int64(n) > math.MaxInt64/int64(unit) {
		return t, fmt.Errorf("%w: %d x %s", ErrLookbackRange, n, unit)
	}
	start := t.Add(-time.Duration(n) * unit)
	if start.After(t) {
		return t, fmt.Errorf("%w: %d x %s", ErrLookbackRange, n, unit)
	}
	return start, nil
}

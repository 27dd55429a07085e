package engine

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/miradorstack/secops-investigator/internal/models"
	"github.com/miradorstack/secops-investigator/internal/utils"
)

// DefaultLookback is the window used when the query names no usable time expression.
const DefaultLookback = 24 * time.Hour

var relativeWindow = regexp.MustCompile(`(?i)^(?:last|past)\s+(\d+)\s+(minute|hour|day|week|month)s?$`)

// ResolveRange derives the telemetry window from the first timestamp entity of q.
// Relative units use calendar arithmetic, so "last 1 month" from March 31 lands on March 2.
func ResolveRange(q models.ParsedQuery, now time.Time) models.TimeRange {
	fallback := models.TimeRange{Start: now.Add(-DefaultLookback), End: now}

	entity, ok := q.FirstEntity(models.EntityTimestamp)
	if !ok {
		return fallback
	}
	value := strings.ToLower(strings.TrimSpace(entity.Value))

	if m := relativeWindow.FindStringSubmatch(value); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return fallback
		}
		start, err := utils.SubtractUnits(now, n, m[2])
		if err != nil || start.After(now) {
			return fallback
		}
		return models.TimeRange{Start: start, End: now}
	}

	switch value {
	case "today":
		return models.TimeRange{Start: utils.StartOfDay(now), End: now}
	case "yesterday":
		midnight := utils.StartOfDay(now)
		return models.TimeRange{Start: midnight.AddDate(0, 0, -1), End: midnight}
	}
	return fallback
}

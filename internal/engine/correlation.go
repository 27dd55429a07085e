package engine

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/miradorstack/secops-investigator/internal/models"
)

const (
	// CorrelationWindow is the width of a temporal bucket.
	CorrelationWindow = 5 * time.Minute

	minClusterSize        = 4
	clusterSaturation     = 20.0
	minEntityMatches      = 2
	minFailureEvents      = 3
	highStrengthThreshold = 0.8

	// SourceCorrelationEngine tags timeline entries written for correlations.
	SourceCorrelationEngine = "correlation_engine"
)

// Correlate runs the temporal, entity and failure strategies over events and concatenates
// their results in that order. It is a pure function of its inputs.
func Correlate(events []models.Event, entities []models.ExtractedEntity) []models.CorrelationResult {
	results := make([]models.CorrelationResult, 0)
	if len(events) < 2 {
		return results
	}
	results = append(results, temporalCorrelations(events)...)
	results = append(results, entityCorrelations(events, entities)...)
	results = append(results, failureCorrelations(events)...)
	return results
}

func temporalCorrelations(events []models.Event) []models.CorrelationResult {
	window := CorrelationWindow.Milliseconds()
	buckets := make(map[int64][]models.Event)
	for _, event := range events {
		key := floorDiv(event.Timestamp.UnixMilli(), window)
		buckets[key] = append(buckets[key], event)
	}

	keys := make([]int64, 0, len(buckets))
	for key := range buckets {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	results := make([]models.CorrelationResult, 0)
	for _, key := range keys {
		bucket := buckets[key]
		if len(bucket) < minClusterSize {
			continue
		}
		strength := float64(len(bucket)) / clusterSaturation
		if strength > 1 {
			strength = 1
		}
		start := time.UnixMilli(key * window).UTC()
		results = append(results, models.CorrelationResult{
			Type:        models.CorrelationTemporal,
			Strength:    strength,
			Events:      bucket,
			Pattern:     models.PatternEventCluster,
			Description: fmt.Sprintf("%d events clustered in the 5-minute window starting %s", len(bucket), start.Format(time.RFC3339)),
		})
	}
	return results
}

func entityCorrelations(events []models.Event, entities []models.ExtractedEntity) []models.CorrelationResult {
	serialized := make([]string, len(events))
	for i, event := range events {
		serialized[i] = strings.ToLower(event.SerializeFields())
	}

	results := make([]models.CorrelationResult, 0)
	for _, entity := range entities {
		needle := strings.ToLower(entity.Value)
		if needle == "" {
			continue
		}
		matched := make([]models.Event, 0)
		for i, text := range serialized {
			if strings.Contains(text, needle) {
				matched = append(matched, events[i])
			}
		}
		if len(matched) < minEntityMatches {
			continue
		}
		results = append(results, models.CorrelationResult{
			Type:        models.CorrelationCausal,
			Strength:    float64(len(matched)) / float64(len(events)),
			Events:      matched,
			Pattern:     models.PatternEntityRelated,
			Description: fmt.Sprintf("%d of %d events reference %s %s", len(matched), len(events), entity.Type, entity.Value),
		})
	}
	return results
}

func failureCorrelations(events []models.Event) []models.CorrelationResult {
	failures := make([]models.Event, 0)
	for _, event := range events {
		if IsFailureEvent(event) {
			failures = append(failures, event)
		}
	}
	if len(failures) < minFailureEvents {
		return nil
	}
	return []models.CorrelationResult{{
		Type:        models.CorrelationBehavioral,
		Strength:    float64(len(failures)) / float64(len(events)),
		Events:      failures,
		Pattern:     models.PatternFailurePattern,
		Description: fmt.Sprintf("%d failure events across %d events", len(failures), len(events)),
	}}
}

var failureMarkers = map[string]string{
	"auth_result":       "FAILURE",
	"connection_status": "DISCONNECTED",
	"action":            "DENY",
}

// IsFailureEvent reports whether an event carries one of the recognised failure markers.
func IsFailureEvent(event models.Event) bool {
	if v, ok := event.Field("status_code"); ok {
		if code, ok := v.Float(); ok && code >= 400 {
			return true
		}
	}
	for field, want := range failureMarkers {
		if v, ok := event.Field(field); ok && v.Text() == want {
			return true
		}
	}
	return false
}

// CorrelationTimeline renders one timeline entry per correlation, in result order.
func CorrelationTimeline(results []models.CorrelationResult, at time.Time) []models.TimelineEvent {
	entries := make([]models.TimelineEvent, 0, len(results))
	for _, result := range results {
		severity := models.SeverityMedium
		if result.Strength > highStrengthThreshold {
			severity = models.SeverityHigh
		}
		entries = append(entries, models.TimelineEvent{
			Timestamp:   at,
			Type:        models.TimelineTypeCorrelation,
			Description: fmt.Sprintf("Correlation detected: %s", result.Description),
			Source:      SourceCorrelationEngine,
			Severity:    severity,
			Data: map[string]any{
				"type":     string(result.Type),
				"pattern":  result.Pattern,
				"strength": result.Strength,
				"events":   len(result.Events),
			},
		})
	}
	return entries
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

package models

// CorrelationType classifies the relationship a correlation describes.
type CorrelationType string

const (
	CorrelationTemporal   CorrelationType = "temporal"
	CorrelationCausal     CorrelationType = "causal"
	CorrelationBehavioral CorrelationType = "behavioral"
	CorrelationSpatial    CorrelationType = "spatial"
)

// Pattern labels emitted by the built-in correlation strategies.
const (
	PatternEventCluster   = "event_cluster"
	PatternEntityRelated  = "entity_related"
	PatternFailurePattern = "failure_pattern"
)

// CorrelationResult links two or more events. Results are append-only.
type CorrelationResult struct {
	Type        CorrelationType `json:"type"`
	Strength    float64         `json:"strength"`
	Events      []Event         `json:"events"`
	Pattern     string          `json:"pattern"`
	Description string          `json:"description"`
}

// Serialize renders the correlation's events for substring matching.
func (c CorrelationResult) Serialize() string {
	return SerializeEvents(c.Events)
}

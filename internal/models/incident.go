package models

import (
	"strings"
	"time"
)

// AssetType is the heuristic classification of an affected address.
type AssetType string

const (
	AssetWorkstation   AssetType = "workstation"
	AssetServer        AssetType = "server"
	AssetNetworkDevice AssetType = "network_device"
	AssetService       AssetType = "service"
)

// AssetStatus captures observed health.
type AssetStatus string

const (
	AssetHealthy  AssetStatus = "healthy"
	AssetDegraded AssetStatus = "degraded"
)

// ImpactLevel grades how much telemetry references an asset.
type ImpactLevel string

const (
	ImpactNone   ImpactLevel = "none"
	ImpactLow    ImpactLevel = "low"
	ImpactMedium ImpactLevel = "medium"
	ImpactHigh   ImpactLevel = "high"
)

// Asset is derived from telemetry; it is never authored directly.
type Asset struct {
	ID        string      `json:"id"`
	Type      AssetType   `json:"type"`
	Name      string      `json:"name"`
	IPAddress string      `json:"ipAddress"`
	Status    AssetStatus `json:"status"`
	Impact    ImpactLevel `json:"impact"`
}

// Severity captures impact levels.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// HighOrCritical reports whether the raw severity label is high or critical.
func HighOrCritical(label string) bool {
	switch Severity(strings.ToLower(strings.TrimSpace(label))) {
	case SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// TimelineEventType classifies timeline entries.
type TimelineEventType string

const (
	TimelineTypeAction      TimelineEventType = "action"
	TimelineTypeEvent       TimelineEventType = "event"
	TimelineTypeAlert       TimelineEventType = "alert"
	TimelineTypeCorrelation TimelineEventType = "correlation"
)

// TimelineEvent records something the engine did or observed. Order is insertion order.
type TimelineEvent struct {
	Timestamp   time.Time         `json:"timestamp"`
	Type        TimelineEventType `json:"type"`
	Description string            `json:"description"`
	Source      string            `json:"source"`
	Severity    Severity          `json:"severity,omitempty"`
	Data        map[string]any    `json:"data,omitempty"`
}

// IncidentStatus is the investigation lifecycle state.
type IncidentStatus string

const (
	StatusInvestigating IncidentStatus = "investigating"
	StatusIdentified    IncidentStatus = "identified"
	StatusRemediating   IncidentStatus = "remediating"
	StatusResolved      IncidentStatus = "resolved"
)

// Rank orders statuses along the forward-only lifecycle.
func (s IncidentStatus) Rank() int {
	switch s {
	case StatusInvestigating:
		return 0
	case StatusIdentified:
		return 1
	case StatusRemediating:
		return 2
	case StatusResolved:
		return 3
	default:
		return -1
	}
}

// IncidentContext is the aggregate for one investigation.
type IncidentContext struct {
	ID              string              `json:"id"`
	Query           ParsedQuery         `json:"query"`
	AgentTasks      []*AgentTask        `json:"agentTasks"`
	Correlations    []CorrelationResult `json:"correlations"`
	Timeline        []TimelineEvent     `json:"timeline"`
	AffectedAssets  []Asset             `json:"affectedAssets"`
	Severity        Severity            `json:"severity"`
	Status          IncidentStatus      `json:"status"`
	Recommendations []string            `json:"recommendations,omitempty"`
	Summary         string              `json:"summary,omitempty"`
	CreatedAt       time.Time           `json:"createdAt"`
	UpdatedAt       time.Time           `json:"updatedAt"`
}

// CompletedTasks returns tasks that finished with a result, in task order.
func (c *IncidentContext) CompletedTasks() []*AgentTask {
	out := make([]*AgentTask, 0, len(c.AgentTasks))
	for _, task := range c.AgentTasks {
		if task.Completed() {
			out = append(out, task)
		}
	}
	return out
}

// AllEvents concatenates the events of every completed task in task order.
func (c *IncidentContext) AllEvents() []Event {
	var events []Event
	for _, task := range c.CompletedTasks() {
		events = append(events, task.Result.Data...)
	}
	return events
}

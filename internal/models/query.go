package models

import "time"

// Intent is the coarse goal of an operator query.
type Intent string

const (
	IntentRootCauseAnalysis       Intent = "root_cause_analysis"
	IntentPostureValidation       Intent = "posture_validation"
	IntentPerformanceTroubleshoot Intent = "performance_troubleshoot"
	IntentSecurityInvestigation   Intent = "security_investigation"
	IntentNetworkDiagnostics      Intent = "network_diagnostics"
	IntentComplianceCheck         Intent = "compliance_check"
)

// TaskType describes what kind of work the operator expects.
type TaskType string

const (
	TaskDiagnostic    TaskType = "diagnostic"
	TaskInvestigative TaskType = "investigative"
	TaskRemediation   TaskType = "remediation"
	TaskMonitoring    TaskType = "monitoring"
	TaskReporting     TaskType = "reporting"
)

// EntityType enumerates the typed tokens extracted from free text.
type EntityType string

const (
	EntityIPAddress   EntityType = "ip_address"
	EntityHostname    EntityType = "hostname"
	EntityProtocol    EntityType = "protocol"
	EntityPort        EntityType = "port"
	EntityUserID      EntityType = "user_id"
	EntityDeviceID    EntityType = "device_id"
	EntityErrorCode   EntityType = "error_code"
	EntityServiceName EntityType = "service_name"
	EntityTimestamp   EntityType = "timestamp"
)

// ExtractedEntity is a single typed token found in a query.
type ExtractedEntity struct {
	Type       EntityType `json:"type"`
	Value      string     `json:"value"`
	Confidence float64    `json:"confidence"`
	Context    string     `json:"context"`
}

// ParsedQuery is the structured form of an operator query. It is never mutated after parsing.
type ParsedQuery struct {
	OriginalQuery string            `json:"originalQuery"`
	Intent        Intent            `json:"intent"`
	TaskType      TaskType          `json:"taskType"`
	Entities      []ExtractedEntity `json:"entities"`
	Confidence    float64           `json:"confidence"`
	Timestamp     time.Time         `json:"timestamp"`
}

// FirstEntity returns the first entity of the given type.
func (q ParsedQuery) FirstEntity(t EntityType) (ExtractedEntity, bool) {
	for _, entity := range q.Entities {
		if entity.Type == t {
			return entity, true
		}
	}
	return ExtractedEntity{}, false
}

// HasEntity reports whether any entity matches one of the supplied types.
func (q ParsedQuery) HasEntity(types ...EntityType) bool {
	for _, t := range types {
		if _, ok := q.FirstEntity(t); ok {
			return true
		}
	}
	return false
}

// EntitiesOf returns every entity of the given type in extraction order.
func (q ParsedQuery) EntitiesOf(t EntityType) []ExtractedEntity {
	var out []ExtractedEntity
	for _, entity := range q.Entities {
		if entity.Type == t {
			out = append(out, entity)
		}
	}
	return out
}

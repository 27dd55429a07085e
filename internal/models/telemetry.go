package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// AgentType names a telemetry source queried during an investigation.
type AgentType string

const (
	AgentSplunk       AgentType = "splunk_agent"
	AgentNetflow      AgentType = "netflow_agent"
	AgentISE          AgentType = "ise_agent"
	AgentSNMP         AgentType = "snmp_agent"
	AgentSecureClient AgentType = "secureclient_agent"
	AgentFirewall     AgentType = "firewall_agent"
	AgentTopology     AgentType = "topology_agent"
)

// AllAgents lists every agent in declaration order.
var AllAgents = []AgentType{
	AgentSplunk,
	AgentNetflow,
	AgentISE,
	AgentSNMP,
	AgentSecureClient,
	AgentFirewall,
	AgentTopology,
}

// IsValid checks the agent against the closed set.
func (a AgentType) IsValid() bool {
	for _, known := range AllAgents {
		if a == known {
			return true
		}
	}
	return false
}

// TimeRange is a half-open [Start, End) window.
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Duration returns End - Start.
func (r TimeRange) Duration() time.Duration {
	return r.End.Sub(r.Start)
}

// FilterOperator is the comparison applied by a QueryFilter.
type FilterOperator string

// FilterEquals is the only operator the dispatcher emits.
const FilterEquals FilterOperator = "equals"

// QueryFilter restricts a telemetry query to matching events.
type QueryFilter struct {
	Field    string         `json:"field"`
	Operator FilterOperator `json:"operator"`
	Value    string         `json:"value"`
}

// DefaultQueryLimit caps the number of events requested per agent.
const DefaultQueryLimit = 1000

// TelemetryQuery is sent to a single telemetry source.
type TelemetryQuery struct {
	Source    AgentType     `json:"source"`
	TimeRange TimeRange     `json:"timeRange"`
	Filters   []QueryFilter `json:"filters"`
	Fields    []string      `json:"fields"`
	Limit     int           `json:"limit"`
}

// FieldKind tags the scalar stored in a FieldValue.
type FieldKind int

const (
	FieldNull FieldKind = iota
	FieldString
	FieldNumber
	FieldBool
)

// FieldValue is a scalar event field: string, number, bool or null.
type FieldValue struct {
	kind FieldKind
	str  string
	num  float64
	b    bool
}

// String builds a string field.
func String(v string) FieldValue { return FieldValue{kind: FieldString, str: v} }

// Number builds a numeric field.
func Number(v float64) FieldValue { return FieldValue{kind: FieldNumber, num: v} }

// Bool builds a boolean field.
func Bool(v bool) FieldValue { return FieldValue{kind: FieldBool, b: v} }

// Kind reports which scalar the value holds.
func (v FieldValue) Kind() FieldKind { return v.kind }

// Text renders the value as plain text; null renders as "".
func (v FieldValue) Text() string {
	switch v.kind {
	case FieldString:
		return v.str
	case FieldNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case FieldBool:
		return strconv.FormatBool(v.b)
	default:
		return ""
	}
}

// Float returns the numeric form of the value. Numeric strings are accepted.
func (v FieldValue) Float() (float64, bool) {
	switch v.kind {
	case FieldNumber:
		return v.num, true
	case FieldString:
		n, err := strconv.ParseFloat(strings.TrimSpace(v.str), 64)
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

// MarshalJSON implements json.Marshaler.
func (v FieldValue) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case FieldString:
		return json.Marshal(v.str)
	case FieldNumber:
		return json.Marshal(v.num)
	case FieldBool:
		return json.Marshal(v.b)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON implements json.Unmarshaler. Objects and arrays are kept as raw JSON text.
func (v *FieldValue) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*v = FieldValue{}
		return nil
	}
	var raw any
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return fmt.Errorf("decode field value: %w", err)
	}
	switch typed := raw.(type) {
	case string:
		*v = String(typed)
	case float64:
		*v = Number(typed)
	case bool:
		*v = Bool(typed)
	default:
		*v = String(string(trimmed))
	}
	return nil
}

// Event is a single telemetry record.
type Event struct {
	Timestamp time.Time             `json:"timestamp"`
	Fields    map[string]FieldValue `json:"fields"`
}

// Field looks up a field by name.
func (e Event) Field(name string) (FieldValue, bool) {
	v, ok := e.Fields[name]
	return v, ok
}

// Serialize renders the event as JSON with sorted keys. It is used only for substring matching.
func (e Event) Serialize() string {
	data, err := json.Marshal(e)
	if err != nil {
		return ""
	}
	return string(data)
}

// SerializeFields renders only the field map as JSON with sorted keys, leaving the
// timestamp out so date entities do not match every event of the day.
func (e Event) SerializeFields() string {
	if len(e.Fields) == 0 {
		return "{}"
	}
	data, err := json.Marshal(e.Fields)
	if err != nil {
		return ""
	}
	return string(data)
}

// SerializeEvents renders a set of events as a JSON array.
func SerializeEvents(events []Event) string {
	if len(events) == 0 {
		return "[]"
	}
	data, err := json.Marshal(events)
	if err != nil {
		return ""
	}
	return string(data)
}

// ResultMetadata describes a telemetry response.
type ResultMetadata struct {
	Count       int     `json:"count"`
	QueryTimeMs float64 `json:"queryTime"`
}

// TelemetryResult is returned by a telemetry source for one query.
type TelemetryResult struct {
	Data         []Event             `json:"data"`
	Correlations []CorrelationResult `json:"correlations,omitempty"`
	Metadata     ResultMetadata      `json:"metadata"`
}

// TaskStatus tracks the lifecycle of an AgentTask.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
)

// AgentTask is one telemetry query issued on behalf of an investigation.
// Result is set iff Status is TaskCompleted.
type AgentTask struct {
	ID        string           `json:"id"`
	AgentType AgentType        `json:"agentType"`
	Query     TelemetryQuery   `json:"query"`
	Status    TaskStatus       `json:"status"`
	StartTime time.Time        `json:"startTime"`
	EndTime   *time.Time       `json:"endTime,omitempty"`
	Result    *TelemetryResult `json:"result,omitempty"`
	Error     string           `json:"error,omitempty"`
}

// Completed reports whether the task finished with a result.
func (t *AgentTask) Completed() bool {
	return t != nil && t.Status == TaskCompleted && t.Result != nil
}

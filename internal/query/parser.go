// Package query turns free-text operator questions into structured ParsedQuery values.
package query

import (
	"regexp"
	"strings"
	"time"

	"github.com/miradorstack/secops-investigator/internal/models"
)

type intentRule struct {
	pattern *regexp.Regexp
	intent  models.Intent
}

type taskRule struct {
	pattern *regexp.Regexp
	task    models.TaskType
}

// Rules are evaluated in declaration order against the lower-cased query; first match wins.
var intentRules = []intentRule{
	{regexp.MustCompile(`root cause|why (is|are|did|does|do|was|were)\b|what caused|reason for|cause of`), models.IntentRootCauseAnalysis},
	{regexp.MustCompile(`posture|endpoint health|patch level|antivirus|compliant device|device health`), models.IntentPostureValidation},
	{regexp.MustCompile(`slow|latency|performance|throughput|bandwidth|high cpu|utili[sz]ation|packet loss|jitter`), models.IntentPerformanceTroubleshoot},
	{regexp.MustCompile(`attack|malware|breach|intrusion|threat|suspicious|brute.?force|unauthori[sz]ed|phishing|exfiltrat`), models.IntentSecurityInvestigation},
	{regexp.MustCompile(`connectivity|unreachable|\bping\b|traceroute|routing|\bdns\b|\bdhcp\b|link down|interface (down|flap)`), models.IntentNetworkDiagnostics},
	{regexp.MustCompile(`complian|\baudit|policy violation|\bpci\b|hipaa|\bsox\b|gdpr|regulat`), models.IntentComplianceCheck},
}

var taskRules = []taskRule{
	{regexp.MustCompile(`\b(fix|remediate|resolve|restart|block|quarantine|rollback|roll back)\b`), models.TaskRemediation},
	{regexp.MustCompile(`\b(investigate|analy[sz]e|look into|find out|what happened|who)\b`), models.TaskInvestigative},
	{regexp.MustCompile(`\b(monitor|watch|track|keep an eye|alert me)\b`), models.TaskMonitoring},
	{regexp.MustCompile(`\b(report|summari[sz]e|summary|export|list all)\b`), models.TaskReporting},
	{regexp.MustCompile(`\b(diagnose|troubleshoot|check|verify|test)\b`), models.TaskDiagnostic},
}

// Parser extracts intent, task type and entities. It holds no state between calls.
type Parser struct {
	now func() time.Time
}

// NewParser constructs a Parser using the wall clock for ParsedQuery timestamps.
func NewParser() *Parser {
	return &Parser{now: time.Now}
}

// WithClock returns a copy of the parser that stamps queries using now.
func (p *Parser) WithClock(now func() time.Time) *Parser {
	return &Parser{now: now}
}

// Parse never fails: unmatched input falls back to default intent and task type.
func (p *Parser) Parse(text string) models.ParsedQuery {
	entities := ExtractEntities(text)
	return models.ParsedQuery{
		OriginalQuery: text,
		Intent:        ExtractIntent(text),
		TaskType:      ExtractTaskType(text),
		Entities:      entities,
		Confidence:    Confidence(entities),
		Timestamp:     p.now(),
	}
}

// Parse is a convenience wrapper around a default Parser.
func Parse(text string) models.ParsedQuery {
	return NewParser().Parse(text)
}

// ExtractIntent applies the ordered intent rules, then keyword fallbacks.
func ExtractIntent(text string) models.Intent {
	lower := strings.ToLower(text)
	for _, rule := range intentRules {
		if rule.pattern.MatchString(lower) {
			return rule.intent
		}
	}
	switch {
	case strings.Contains(lower, "why"):
		return models.IntentRootCauseAnalysis
	case strings.Contains(lower, "security"):
		return models.IntentSecurityInvestigation
	case strings.Contains(lower, "network"):
		return models.IntentNetworkDiagnostics
	}
	return models.IntentRootCauseAnalysis
}

// ExtractTaskType applies the ordered task rules; default is diagnostic.
func ExtractTaskType(text string) models.TaskType {
	lower := strings.ToLower(text)
	for _, rule := range taskRules {
		if rule.pattern.MatchString(lower) {
			return rule.task
		}
	}
	return models.TaskDiagnostic
}

// Confidence scores how much structure was recovered from the query, in [0,1].
func Confidence(entities []models.ExtractedEntity) float64 {
	confidence := 0.5
	if len(entities) > 0 {
		total := 0.0
		for _, entity := range entities {
			total += entity.Confidence
		}
		confidence += 0.3 * (total / float64(len(entities)))
	}

	var hasIP, hasTime, hasIdentity bool
	for _, entity := range entities {
		switch entity.Type {
		case models.EntityIPAddress:
			hasIP = true
		case models.EntityTimestamp:
			hasTime = true
		case models.EntityUserID, models.EntityDeviceID:
			hasIdentity = true
		}
	}
	if hasIP {
		confidence += 0.1
	}
	if hasTime {
		confidence += 0.1
	}
	if hasIdentity {
		confidence += 0.1
	}

	if confidence > 1 {
		confidence = 1
	}
	return confidence
}

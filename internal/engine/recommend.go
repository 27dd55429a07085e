package engine

import (
	"errors"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/miradorstack/secops-investigator/internal/models"
)

// RuleEngine maps finished investigations onto remediation guidance.
type RuleEngine struct {
	rules  []Rule
	logger *slog.Logger
}

// Rule represents a single recommendation rule.
type Rule struct {
	ID              string    `yaml:"id"`
	Match           RuleMatch `yaml:"match"`
	Recommendations []string  `yaml:"recommendations"`
}

// RuleMatch defines optional attributes for rule matching. Empty attributes match anything.
type RuleMatch struct {
	Intent      string `yaml:"intent"`
	Severity    string `yaml:"severity"`
	Pattern     string `yaml:"pattern"`
	FailedAgent string `yaml:"failed_agent"`
}

// RuleConfigFile is the YAML root structure.
type RuleConfigFile struct {
	Rules []Rule `yaml:"rules"`
}

// NewRuleEngine loads rules from the provided path. If path is empty or missing, returns nil engine.
func NewRuleEngine(path string, logger *slog.Logger) (*RuleEngine, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var cfg RuleConfigFile
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger.Debug("loaded recommendation rules", slog.String("path", path), slog.Int("rules", len(cfg.Rules)))
	return &RuleEngine{rules: cfg.Rules, logger: logger}, nil
}

// Recommend returns the de-duplicated recommendations of every matching rule, in rule order.
func (e *RuleEngine) Recommend(ic *models.IncidentContext) []string {
	if e == nil || ic == nil {
		return nil
	}

	matched := make([]string, 0)
	for _, rule := range e.rules {
		if rule.Match.Intent != "" && !strings.EqualFold(rule.Match.Intent, string(ic.Query.Intent)) {
			continue
		}
		if rule.Match.Severity != "" && !strings.EqualFold(rule.Match.Severity, string(ic.Severity)) {
			continue
		}
		if rule.Match.Pattern != "" && !hasPattern(rule.Match.Pattern, ic.Correlations) {
			continue
		}
		if rule.Match.FailedAgent != "" && !agentFailed(rule.Match.FailedAgent, ic.AgentTasks) {
			continue
		}
		e.logger.Debug("recommendation rule matched", slog.String("rule", rule.ID))
		matched = appendUnique(matched, rule.Recommendations...)
	}
	return matched
}

var patternRecommendations = map[string][]string{
	models.PatternFailurePattern: {
		"Review authentication and policy failures on the affected sources",
		"Check for recent configuration changes on the denying devices",
	},
	models.PatternEntityRelated: {
		"Trace the referenced entity across all correlated sources",
	},
	models.PatternEventCluster: {
		"Inspect the clustered time window for a common trigger",
	},
}

// DefaultRecommendations derives guidance from the correlation patterns present, in
// correlation order, plus a generic follow-up for failed sources.
func DefaultRecommendations(ic *models.IncidentContext) []string {
	recs := make([]string, 0)
	if ic == nil {
		return recs
	}
	for _, correlation := range ic.Correlations {
		recs = appendUnique(recs, patternRecommendations[correlation.Pattern]...)
	}
	for _, task := range ic.AgentTasks {
		if task.Status == models.TaskFailed {
			recs = appendUnique(recs, "Restore connectivity to failed telemetry sources and re-run the investigation")
			break
		}
	}
	if len(recs) == 0 {
		recs = append(recs, "Widen the time range or add entities to the query to gather more telemetry")
	}
	return recs
}

func hasPattern(pattern string, correlations []models.CorrelationResult) bool {
	for _, correlation := range correlations {
		if strings.EqualFold(pattern, correlation.Pattern) {
			return true
		}
	}
	return false
}

func agentFailed(agent string, tasks []*models.AgentTask) bool {
	for _, task := range tasks {
		if task.Status == models.TaskFailed && strings.EqualFold(agent, string(task.AgentType)) {
			return true
		}
	}
	return false
}

func appendUnique(existing []string, additions ...string) []string {
	seen := make(map[string]struct{}, len(existing))
	for _, rec := range existing {
		seen[rec] = struct{}{}
	}
	for _, item := range additions {
		if item == "" {
			continue
		}
		if _, ok := seen[item]; ok {
			continue
		}
		existing = append(existing, item)
		seen[item] = struct{}{}
	}
	return existing
}

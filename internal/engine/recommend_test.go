package engine

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/miradorstack/secops-investigator/internal/models"
)

func writeRules(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rules.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write rules: %v", err)
	}
	return path
}

func TestRuleEngineRecommend(t *testing.T) {
	path := writeRules(t, `rules:
  - id: vpn-auth
    match:
      intent: root_cause_analysis
      pattern: failure_pattern
    recommendations: ["Check ISE authentication policy", "Verify VPN headend certificates"]
  - id: snmp-down
    match:
      failed_agent: snmp_agent
    recommendations: ["Check SNMP community strings", "Verify VPN headend certificates"]
  - id: critical-only
    match:
      severity: critical
    recommendations: ["Page the on-call network engineer"]
`)

	engine, err := NewRuleEngine(path, slog.New(slog.NewTextHandler(os.Stdout, nil)))
	if err != nil {
		t.Fatalf("new rule engine: %v", err)
	}

	ic := &models.IncidentContext{
		Query:        models.ParsedQuery{Intent: models.IntentRootCauseAnalysis},
		Severity:     models.SeverityMedium,
		Correlations: []models.CorrelationResult{{Pattern: models.PatternFailurePattern}},
		AgentTasks:   []*models.AgentTask{{AgentType: models.AgentSNMP, Status: models.TaskFailed}},
	}
	recs := engine.Recommend(ic)
	want := []string{"Check ISE authentication policy", "Verify VPN headend certificates", "Check SNMP community strings"}
	if len(recs) != len(want) {
		t.Fatalf("expected %d recommendations, got %v", len(want), recs)
	}
	for i := range want {
		if recs[i] != want[i] {
			t.Fatalf("recommendation %d: expected %q, got %q", i, want[i], recs[i])
		}
	}
}

func TestRuleEngineNoFile(t *testing.T) {
	engine, err := NewRuleEngine("non-existent", nil)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if engine != nil {
		t.Fatalf("expected nil engine when file missing")
	}
	if recs := engine.Recommend(&models.IncidentContext{}); recs != nil {
		t.Fatalf("nil engine should not recommend, got %v", recs)
	}
}

func TestRuleEngineInvalidYAML(t *testing.T) {
	if _, err := NewRuleEngine(writeRules(t, "rules: [unterminated"), nil); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestDefaultRecommendations(t *testing.T) {
	ic := &models.IncidentContext{
		Correlations: []models.CorrelationResult{
			{Pattern: models.PatternEventCluster},
			{Pattern: models.PatternEventCluster},
			{Pattern: models.PatternFailurePattern},
		},
	}
	recs := DefaultRecommendations(ic)
	if len(recs) != 3 {
		t.Fatalf("expected 3 recommendations, got %v", recs)
	}
	if recs[0] != patternRecommendations[models.PatternEventCluster][0] {
		t.Fatalf("expected cluster guidance first, got %q", recs[0])
	}

	if got := DefaultRecommendations(&models.IncidentContext{}); len(got) != 1 {
		t.Fatalf("expected generic fallback, got %v", got)
	}
}

func TestBundledRulePack(t *testing.T) {
	engine, err := NewRuleEngine(filepath.Join("..", "..", "configs", "rules", "default.yaml"), nil)
	if err != nil {
		t.Fatalf("load bundled rules: %v", err)
	}
	if engine == nil {
		t.Fatalf("expected bundled rule pack to load")
	}

	ic := &models.IncidentContext{
		Query:    models.ParsedQuery{Intent: models.IntentSecurityInvestigation},
		Severity: models.SeverityCritical,
	}
	recs := engine.Recommend(ic)
	if len(recs) != 2 || recs[0] != "Isolate the affected hosts from the network" {
		t.Fatalf("unexpected recommendations: %v", recs)
	}
}

package engine

import (
	"strings"

	"github.com/miradorstack/secops-investigator/internal/models"
)

var baselineAgents = []models.AgentType{models.AgentSplunk, models.AgentTopology}

var intentAgents = map[models.Intent][]models.AgentType{
	models.IntentRootCauseAnalysis:       {models.AgentSNMP, models.AgentNetflow},
	models.IntentPostureValidation:       {models.AgentISE, models.AgentSecureClient},
	models.IntentPerformanceTroubleshoot: {models.AgentSNMP, models.AgentNetflow},
	models.IntentSecurityInvestigation:   {models.AgentFirewall, models.AgentISE},
	models.IntentNetworkDiagnostics:      {models.AgentSNMP, models.AgentNetflow, models.AgentTopology},
	models.IntentComplianceCheck:         {models.AgentISE, models.AgentFirewall},
}

var entityAgents = map[models.EntityType][]models.AgentType{
	models.EntityIPAddress:   {models.AgentNetflow, models.AgentFirewall},
	models.EntityHostname:    {models.AgentSNMP, models.AgentTopology},
	models.EntityProtocol:    {models.AgentNetflow, models.AgentFirewall},
	models.EntityPort:        {models.AgentFirewall, models.AgentNetflow},
	models.EntityUserID:      {models.AgentISE, models.AgentSecureClient},
	models.EntityDeviceID:    {models.AgentISE, models.AgentSNMP},
	models.EntityErrorCode:   {models.AgentSplunk},
	models.EntityServiceName: {models.AgentSplunk, models.AgentTopology},
}

var remoteAccessKeywords = []string{"vpn", "anyconnect"}

// SelectAgents decides which telemetry sources a query needs. The result has no duplicates
// and is ordered as models.AllAgents so dispatch order is stable.
func SelectAgents(q models.ParsedQuery) []models.AgentType {
	selected := make(map[models.AgentType]struct{}, len(models.AllAgents))
	add := func(agents ...models.AgentType) {
		for _, agent := range agents {
			selected[agent] = struct{}{}
		}
	}

	add(baselineAgents...)
	add(intentAgents[q.Intent]...)
	for _, entity := range q.Entities {
		add(entityAgents[entity.Type]...)
	}

	lower := strings.ToLower(q.OriginalQuery)
	for _, keyword := range remoteAccessKeywords {
		if strings.Contains(lower, keyword) {
			add(models.AgentSecureClient)
			break
		}
	}

	agents := make([]models.AgentType, 0, len(selected))
	for _, agent := range models.AllAgents {
		if _, ok := selected[agent]; ok {
			agents = append(agents, agent)
		}
	}
	return agents
}

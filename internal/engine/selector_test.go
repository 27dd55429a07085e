package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/miradorstack/secops-investigator/internal/models"
	"github.com/miradorstack/secops-investigator/internal/query"
)

func TestSelectAgentsVPNQuery(t *testing.T) {
	agents := SelectAgents(query.Parse("Why is VPN failing for user 10.1.1.10?"))

	assert.Equal(t, []models.AgentType{
		models.AgentSplunk,
		models.AgentNetflow,
		models.AgentSNMP,
		models.AgentSecureClient,
		models.AgentFirewall,
		models.AgentTopology,
	}, agents)
}

func TestSelectAgentsAlwaysIncludesBaseline(t *testing.T) {
	agents := SelectAgents(models.ParsedQuery{Intent: models.IntentComplianceCheck})

	assert.Equal(t, []models.AgentType{models.AgentSplunk, models.AgentISE, models.AgentFirewall, models.AgentTopology}, agents)
}

func TestSelectAgentsByEntity(t *testing.T) {
	q := models.ParsedQuery{
		Intent: models.IntentPostureValidation,
		Entities: []models.ExtractedEntity{
			{Type: models.EntityDeviceID, Value: "LAB-7"},
			{Type: models.EntityDeviceID, Value: "LAB-8"},
		},
		OriginalQuery: "posture of LAB-7 via AnyConnect",
	}

	assert.Equal(t, []models.AgentType{
		models.AgentSplunk,
		models.AgentISE,
		models.AgentSNMP,
		models.AgentSecureClient,
		models.AgentTopology,
	}, SelectAgents(q))
}

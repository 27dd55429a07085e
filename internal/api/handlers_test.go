package api

import (
	"testing"
	"time"

	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/miradorstack/secops-investigator/internal/models"
)

func TestFromProtoQuery(t *testing.T) {
	text, err := FromProtoQuery(wrapperspb.String("  why is vpn down  "))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if text != "why is vpn down" {
		t.Fatalf("unexpected text: %q", text)
	}

	if _, err := FromProtoQuery(wrapperspb.String(" ")); err == nil {
		t.Fatalf("expected error for blank text")
	}
	if _, err := FromProtoQuery(nil); err == nil {
		t.Fatalf("expected error for nil request")
	}
}

func TestStructRoundTrip(t *testing.T) {
	now := time.Date(2024, time.March, 5, 9, 0, 0, 0, time.UTC)
	end := now.Add(time.Second)
	ic := &models.IncidentContext{
		ID: "inc-1",
		Query: models.ParsedQuery{
			OriginalQuery: "check 10.1.1.10",
			Intent:        models.IntentNetworkDiagnostics,
			Entities: []models.ExtractedEntity{
				{Type: models.EntityIPAddress, Value: "10.1.1.10", Confidence: 0.95},
			},
			Timestamp: now,
		},
		AgentTasks: []*models.AgentTask{
			{
				ID:        "task-1",
				AgentType: models.AgentFirewall,
				Status:    models.TaskCompleted,
				StartTime: now,
				EndTime:   &end,
				Result: &models.TelemetryResult{
					Data: []models.Event{{
						Timestamp: now,
						Fields: map[string]models.FieldValue{
							"src_ip":   models.String("10.1.1.10"),
							"dst_port": models.Number(443),
						},
					}},
					Metadata: models.ResultMetadata{Count: 1, QueryTimeMs: 12},
				},
			},
		},
		AffectedAssets: []models.Asset{
			{ID: "10.1.1.10", Type: models.AssetWorkstation, IPAddress: "10.1.1.10", Status: models.AssetDegraded, Impact: models.ImpactLow},
		},
		Severity:  models.SeverityHigh,
		Status:    models.StatusIdentified,
		CreatedAt: now,
		UpdatedAt: now,
	}

	s, err := ToStruct(ic)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.GetFields()["severity"].GetStringValue() != "high" {
		t.Fatalf("unexpected severity field: %v", s.GetFields()["severity"])
	}

	decoded, err := FromStruct(s)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decoded.ID != "inc-1" || decoded.Status != models.StatusIdentified {
		t.Fatalf("unexpected decoded context: %+v", decoded)
	}
	if len(decoded.AgentTasks) != 1 || !decoded.AgentTasks[0].Completed() {
		t.Fatalf("expected one completed task, got %+v", decoded.AgentTasks)
	}
	port, ok := decoded.AgentTasks[0].Result.Data[0].Fields["dst_port"].Float()
	if !ok || port != 443 {
		t.Fatalf("unexpected dst_port: %v", port)
	}
	if !decoded.AgentTasks[0].EndTime.Equal(end) {
		t.Fatalf("unexpected end time: %v", decoded.AgentTasks[0].EndTime)
	}
	if len(decoded.AffectedAssets) != 1 || decoded.AffectedAssets[0].Status != models.AssetDegraded {
		t.Fatalf("unexpected assets: %+v", decoded.AffectedAssets)
	}
}

func TestToStructNil(t *testing.T) {
	if _, err := ToStruct(nil); err == nil {
		t.Fatalf("expected error for nil context")
	}
	if _, err := FromStruct(nil); err == nil {
		t.Fatalf("expected error for nil struct")
	}
}

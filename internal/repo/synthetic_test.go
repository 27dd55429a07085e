package repo

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/miradorstack/secops-investigator/internal/models"
)

func TestSyntheticSourceIsDeterministic(t *testing.T) {
	q := sampleQuery()
	a, err := NewSyntheticSource(7).Query(context.Background(), models.AgentFirewall, q)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := NewSyntheticSource(7).Query(context.Background(), models.AgentFirewall, q)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("same seed produced different telemetry")
	}
	if a.Metadata.Count != len(a.Data) || len(a.Data) == 0 {
		t.Fatalf("unexpected metadata: %+v", a.Metadata)
	}
}

func TestSyntheticSourceShapesEvents(t *testing.T) {
	q := sampleQuery()
	result, err := NewSyntheticSource(3).Query(context.Background(), models.AgentFirewall, q)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	reused := false
	for _, event := range result.Data {
		if len(event.Fields) != len(q.Fields) {
			t.Fatalf("expected projection to %v, got %v", q.Fields, event.Fields)
		}
		if event.Timestamp.Before(q.TimeRange.Start) || event.Timestamp.After(q.TimeRange.End) {
			t.Fatalf("event %s outside window", event.Timestamp)
		}
		if ip, _ := event.Field("src_ip"); ip.Text() == "10.1.1.10" {
			reused = true
		}
	}
	if !reused {
		t.Fatalf("expected filtered IP to appear in synthetic events")
	}
}

func TestSyntheticSourceFailingAgents(t *testing.T) {
	source := NewSyntheticSource(1, WithFailingAgents(models.AgentSNMP))
	if _, err := source.Query(context.Background(), models.AgentSNMP, sampleQuery()); err == nil {
		t.Fatalf("expected snmp to fail")
	}
	if _, err := source.Query(context.Background(), models.AgentTopology, sampleQuery()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSyntheticSourceLatencyHonoursContext(t *testing.T) {
	source := NewSyntheticSource(1, WithLatency(time.Minute))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := source.Query(ctx, models.AgentSplunk, sampleQuery())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
}

func TestSyntheticSourceRespectsLimit(t *testing.T) {
	q := sampleQuery()
	q.Limit = 2
	q.Fields = nil
	result, err := NewSyntheticSource(5).Query(context.Background(), models.AgentSplunk, q)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Data) != 2 {
		t.Fatalf("expected 2 events, got %d", len(result.Data))
	}
	if _, ok := result.Data[0].Field("status_code"); !ok {
		t.Fatalf("expected full splunk shape without projection")
	}
}

package services

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/miradorstack/secops-investigator/internal/engine"
	"github.com/miradorstack/secops-investigator/internal/incident"
	"github.com/miradorstack/secops-investigator/internal/models"
)

type investigatorStub struct {
	current *models.IncidentContext
	err     error
	calls   int
	cleared bool
}

func (s *investigatorStub) Investigate(ctx context.Context, text string) (*models.IncidentContext, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	s.current = &models.IncidentContext{
		ID:       "inc-1",
		Query:    models.ParsedQuery{OriginalQuery: text, Intent: models.IntentRootCauseAnalysis},
		Severity: models.SeverityMedium,
		Status:   models.StatusIdentified,
	}
	return s.current, nil
}

func (s *investigatorStub) CurrentContext() (*models.IncidentContext, bool) {
	return s.current, s.current != nil
}

func (s *investigatorStub) ClearContext() {
	s.cleared = true
	s.current = nil
}

func (s *investigatorStub) TransitionCurrent(next models.IncidentStatus) (*models.IncidentContext, error) {
	if s.current == nil {
		return nil, engine.ErrNoIncident
	}
	if next.Rank() < s.current.Status.Rank() {
		return nil, fmt.Errorf("%w: %s -> %s", incident.ErrInvalidTransition, s.current.Status, next)
	}
	s.current.Status = next
	return s.current, nil
}

func TestInvestigate(t *testing.T) {
	stub := &investigatorStub{}
	service := NewInvestigationService(nil, stub)

	out, err := service.Investigate(context.Background(), wrapperspb.String("why is vpn down"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := out.GetFields()["id"].GetStringValue(); got != "inc-1" {
		t.Fatalf("unexpected id: %q", got)
	}
	if got := out.GetFields()["severity"].GetStringValue(); got != "medium" {
		t.Fatalf("unexpected severity: %q", got)
	}
	if service.LatencyP95() < 0 {
		t.Fatalf("latency must not be negative")
	}
}

func TestInvestigateRejectsBlankText(t *testing.T) {
	stub := &investigatorStub{}
	service := NewInvestigationService(nil, stub)

	_, err := service.Investigate(context.Background(), wrapperspb.String("   "))
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected invalid argument, got %v", err)
	}
	if stub.calls != 0 {
		t.Fatalf("investigator should not be called for blank text")
	}

	_, err = service.Investigate(context.Background(), nil)
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected invalid argument for nil request, got %v", err)
	}
}

func TestInvestigateMapsErrors(t *testing.T) {
	service := NewInvestigationService(nil, &investigatorStub{err: engine.ErrEmptyQuery})
	if _, err := service.Investigate(context.Background(), wrapperspb.String("x")); status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected invalid argument, got %v", err)
	}

	service = NewInvestigationService(nil, &investigatorStub{err: errors.New("boom")})
	if _, err := service.Investigate(context.Background(), wrapperspb.String("x")); status.Code(err) != codes.Internal {
		t.Fatalf("expected internal, got %v", err)
	}
}

func TestNotConfigured(t *testing.T) {
	service := NewInvestigationService(nil, nil)
	if _, err := service.Investigate(context.Background(), wrapperspb.String("x")); status.Code(err) != codes.FailedPrecondition {
		t.Fatalf("expected failed precondition, got %v", err)
	}
	if _, err := service.GetCurrentContext(context.Background(), &emptypb.Empty{}); status.Code(err) != codes.FailedPrecondition {
		t.Fatalf("expected failed precondition, got %v", err)
	}
	if _, err := service.ClearContext(context.Background(), &emptypb.Empty{}); status.Code(err) != codes.FailedPrecondition {
		t.Fatalf("expected failed precondition, got %v", err)
	}
	if _, err := service.TransitionStatus(context.Background(), wrapperspb.String("resolved")); status.Code(err) != codes.FailedPrecondition {
		t.Fatalf("expected failed precondition, got %v", err)
	}
}

func TestTransitionStatus(t *testing.T) {
	stub := &investigatorStub{}
	service := NewInvestigationService(nil, stub)
	ctx := context.Background()

	if _, err := service.TransitionStatus(ctx, wrapperspb.String("remediating")); status.Code(err) != codes.NotFound {
		t.Fatalf("expected not found without an incident, got %v", err)
	}
	if _, err := service.Investigate(ctx, wrapperspb.String("check firewall")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out, err := service.TransitionStatus(ctx, wrapperspb.String("Remediating"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := out.GetFields()["status"].GetStringValue(); got != string(models.StatusRemediating) {
		t.Fatalf("unexpected status: %q", got)
	}

	if _, err := service.TransitionStatus(ctx, wrapperspb.String(string(models.StatusIdentified))); status.Code(err) != codes.FailedPrecondition {
		t.Fatalf("expected failed precondition for backwards move, got %v", err)
	}
	if _, err := service.TransitionStatus(ctx, wrapperspb.String("archived")); status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected invalid argument for unknown status, got %v", err)
	}
	if _, err := service.TransitionStatus(ctx, wrapperspb.String(" ")); status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected invalid argument for blank status, got %v", err)
	}
}

func TestCurrentContextLifecycle(t *testing.T) {
	stub := &investigatorStub{}
	service := NewInvestigationService(nil, stub)

	if _, err := service.GetCurrentContext(context.Background(), &emptypb.Empty{}); status.Code(err) != codes.NotFound {
		t.Fatalf("expected not found before any investigation, got %v", err)
	}
	if _, err := service.Investigate(context.Background(), wrapperspb.String("check firewall")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out, err := service.GetCurrentContext(context.Background(), &emptypb.Empty{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	query := out.GetFields()["query"].GetStructValue()
	if got := query.GetFields()["originalQuery"].GetStringValue(); got != "check firewall" {
		t.Fatalf("unexpected query: %q", got)
	}

	if _, err := service.ClearContext(context.Background(), &emptypb.Empty{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !stub.cleared {
		t.Fatalf("expected context to be cleared")
	}
	if _, err := service.GetCurrentContext(context.Background(), &emptypb.Empty{}); status.Code(err) != codes.NotFound {
		t.Fatalf("expected not found after clear, got %v", err)
	}
}

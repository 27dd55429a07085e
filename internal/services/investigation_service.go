package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/miradorstack/secops-investigator/internal/api"
	"github.com/miradorstack/secops-investigator/internal/engine"
	"github.com/miradorstack/secops-investigator/internal/incident"
	"github.com/miradorstack/secops-investigator/internal/models"
	"github.com/miradorstack/secops-investigator/internal/utils"
)

// Investigator is the engine surface the service depends on.
type Investigator interface {
	Investigate(ctx context.Context, text string) (*models.IncidentContext, error)
	CurrentContext() (*models.IncidentContext, bool)
	ClearContext()
	TransitionCurrent(status models.IncidentStatus) (*models.IncidentContext, error)
}

var _ api.InvestigatorServer = (*InvestigationService)(nil)

// InvestigationService implements the gRPC Investigator service.
type InvestigationService struct {
	logger       *slog.Logger
	investigator Investigator
	latencies    *utils.LatencyTracker
}

// NewInvestigationService constructs the service facade.
func NewInvestigationService(logger *slog.Logger, investigator Investigator) *InvestigationService {
	if logger == nil {
		logger = slog.Default()
	}
	return &InvestigationService{
		logger:       logger,
		investigator: investigator,
		latencies:    utils.NewLatencyTracker(1024),
	}
}

// Investigate runs one investigation and returns the resulting incident context.
func (s *InvestigationService) Investigate(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	if s.investigator == nil {
		return nil, status.Error(codes.FailedPrecondition, "investigator not configured")
	}
	text, err := api.FromProtoQuery(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	start := time.Now()
	ic, err := s.investigator.Investigate(ctx, text)
	duration := time.Since(start)
	if err != nil {
		if errors.Is(err, engine.ErrEmptyQuery) {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
		s.logger.Error("investigation failed", slog.Any("error", err))
		return nil, status.Errorf(codes.Internal, "investigation failed: %v", err)
	}

	s.latencies.Observe(duration)
	if count := s.latencies.Count(); count >= 20 && count%20 == 0 {
		p95 := s.latencies.Percentile(95)
		s.logger.Info("investigation latency", slog.Duration("p95", p95), slog.Int("samples", count))
	}
	return s.encode(ic)
}

// GetCurrentContext returns the most recently started investigation.
func (s *InvestigationService) GetCurrentContext(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	if s.investigator == nil {
		return nil, status.Error(codes.FailedPrecondition, "investigator not configured")
	}
	ic, ok := s.investigator.CurrentContext()
	if !ok {
		return nil, status.Error(codes.NotFound, "no investigation in progress")
	}
	return s.encode(ic)
}

// ClearContext forgets the current investigation.
func (s *InvestigationService) ClearContext(ctx context.Context, _ *emptypb.Empty) (*emptypb.Empty, error) {
	if s.investigator == nil {
		return nil, status.Error(codes.FailedPrecondition, "investigator not configured")
	}
	s.investigator.ClearContext()
	return &emptypb.Empty{}, nil
}

// TransitionStatus moves the current incident to remediating or resolved.
func (s *InvestigationService) TransitionStatus(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	if s.investigator == nil {
		return nil, status.Error(codes.FailedPrecondition, "investigator not configured")
	}
	value, err := api.FromProtoQuery(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, "status is required")
	}

	target := models.IncidentStatus(strings.ToLower(value))
	if target.Rank() < 0 {
		return nil, status.Errorf(codes.InvalidArgument, "unknown status %q", value)
	}

	ic, err := s.investigator.TransitionCurrent(target)
	switch {
	case err == nil:
		s.logger.Info("incident status changed", slog.String("incident_id", ic.ID), slog.String("status", string(ic.Status)))
		return s.encode(ic)
	case errors.Is(err, engine.ErrNoIncident):
		return nil, status.Error(codes.NotFound, "no investigation in progress")
	case errors.Is(err, incident.ErrInvalidTransition):
		return nil, status.Error(codes.FailedPrecondition, err.Error())
	default:
		s.logger.Error("status transition failed", slog.Any("error", err))
		return nil, status.Errorf(codes.Internal, "status transition failed: %v", err)
	}
}

// LatencyP95 returns the current p95 investigation latency.
func (s *InvestigationService) LatencyP95() time.Duration {
	if s.latencies == nil {
		return 0
	}
	return s.latencies.Percentile(95)
}

func (s *InvestigationService) encode(ic *models.IncidentContext) (*structpb.Struct, error) {
	out, err := api.ToStruct(ic)
	if err != nil {
		s.logger.Error("encode incident context", slog.Any("error", err))
		return nil, status.Error(codes.Internal, "failed to encode incident context")
	}
	return out, nil
}

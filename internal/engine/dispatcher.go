package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/miradorstack/secops-investigator/internal/metrics"
	"github.com/miradorstack/secops-investigator/internal/models"
	"github.com/miradorstack/secops-investigator/internal/utils"
)

// TelemetrySource answers one telemetry query for one agent.
type TelemetrySource interface {
	Query(ctx context.Context, agent models.AgentType, q models.TelemetryQuery) (models.TelemetryResult, error)
}

// Recorder receives dispatcher side effects. incident.Manager satisfies it.
type Recorder interface {
	AddTimelineEvent(event models.TimelineEvent)
	AddCorrelations(results ...models.CorrelationResult)
	UpdateTask(task *models.AgentTask, fn func(*models.AgentTask))
}

// DefaultAgentTimeout bounds a single telemetry query when none is configured.
const DefaultAgentTimeout = 30 * time.Second

var agentFields = map[models.AgentType][]string{
	models.AgentSplunk:       {"timestamp", "host", "source", "sourcetype", "message", "severity", "status_code"},
	models.AgentNetflow:      {"timestamp", "src_ip", "dst_ip", "src_port", "dst_port", "protocol", "bytes", "packets"},
	models.AgentISE:          {"timestamp", "username", "client_ip", "auth_result", "policy", "device_mac", "failure_reason"},
	models.AgentSNMP:         {"timestamp", "device", "ip_address", "interface", "oid", "value", "status"},
	models.AgentSecureClient: {"timestamp", "username", "client_ip", "connection_status", "vpn_gateway", "duration", "error_code"},
	models.AgentFirewall:     {"timestamp", "src_ip", "dst_ip", "dst_port", "protocol", "action", "rule"},
	models.AgentTopology:     {"timestamp", "device", "ip_address", "neighbor", "link_status", "role"},
}

var fallbackFields = []string{"timestamp", "message"}

var entityFilterFields = map[models.EntityType][]string{
	models.EntityIPAddress: {"src_ip", "dst_ip", "client_ip"},
	models.EntityUserID:    {"username", "user_id"},
	models.EntityPort:      {"src_port", "dst_port"},
	models.EntityProtocol:  {"protocol"},
}

// FieldsFor returns the projection requested from an agent.
func FieldsFor(agent models.AgentType) []string {
	fields, ok := agentFields[agent]
	if !ok {
		fields = fallbackFields
	}
	return append([]string(nil), fields...)
}

// BuildQuery derives the telemetry query for one agent from the parsed entities.
func BuildQuery(agent models.AgentType, q models.ParsedQuery, window models.TimeRange) models.TelemetryQuery {
	filters := make([]models.QueryFilter, 0)
	for _, entity := range q.Entities {
		for _, field := range entityFilterFields[entity.Type] {
			filters = append(filters, models.QueryFilter{
				Field:    field,
				Operator: models.FilterEquals,
				Value:    entity.Value,
			})
		}
	}
	return models.TelemetryQuery{
		Source:    agent,
		TimeRange: window,
		Filters:   filters,
		Fields:    FieldsFor(agent),
		Limit:     models.DefaultQueryLimit,
	}
}

// Dispatcher fans telemetry queries out to a TelemetrySource and waits for all of them.
type Dispatcher struct {
	source         TelemetrySource
	logger         *slog.Logger
	agentTimeout   time.Duration
	maxConcurrency int
	now            func() time.Time
	tracer         trace.Tracer
}

// DispatcherOption customises a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithAgentTimeout bounds each telemetry query. Zero or negative disables the bound.
func WithAgentTimeout(timeout time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		d.agentTimeout = timeout
	}
}

// WithMaxConcurrency caps in-flight queries. Zero means one goroutine per task.
func WithMaxConcurrency(n int) DispatcherOption {
	return func(d *Dispatcher) {
		d.maxConcurrency = n
	}
}

// WithDispatchClock overrides the clock used for task and timeline timestamps.
func WithDispatchClock(now func() time.Time) DispatcherOption {
	return func(d *Dispatcher) {
		if now != nil {
			d.now = now
		}
	}
}

// NewDispatcher constructs a Dispatcher.
func NewDispatcher(source TelemetrySource, logger *slog.Logger, opts ...DispatcherOption) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{
		source:       source,
		logger:       logger,
		agentTimeout: DefaultAgentTimeout,
		now:          time.Now,
		tracer:       otel.Tracer("github.com/miradorstack/secops-investigator/internal/engine"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch creates one pending task per agent, preserving agent order.
func (d *Dispatcher) Dispatch(agents []models.AgentType, q models.ParsedQuery, window models.TimeRange) []*models.AgentTask {
	tasks := make([]*models.AgentTask, 0, len(agents))
	for _, agent := range agents {
		tasks = append(tasks, &models.AgentTask{
			ID:        uuid.NewString(),
			AgentType: agent,
			Query:     BuildQuery(agent, q, window),
			Status:    models.TaskPending,
		})
	}
	return tasks
}

type queryOutcome struct {
	result models.TelemetryResult
	err    error
}

// Run executes every task concurrently and returns once all have settled. Failures stay
// on their own task. Timeline entries are appended in task order on both sides of the fan-in.
func (d *Dispatcher) Run(ctx context.Context, tasks []*models.AgentTask, rec Recorder) {
	for _, task := range tasks {
		started := d.now()
		rec.UpdateTask(task, func(t *models.AgentTask) {
			t.Status = models.TaskRunning
			t.StartTime = started
		})
		rec.AddTimelineEvent(models.TimelineEvent{
			Timestamp:   started,
			Type:        models.TimelineTypeAction,
			Description: fmt.Sprintf("Querying %s", task.AgentType),
			Source:      string(task.AgentType),
			Data:        map[string]any{"taskId": task.ID, "filters": len(task.Query.Filters)},
		})
	}

	var g errgroup.Group
	if d.maxConcurrency > 0 {
		g.SetLimit(d.maxConcurrency)
	}
	for _, task := range tasks {
		g.Go(func() error {
			d.execute(ctx, task, rec)
			return nil
		})
	}
	_ = g.Wait()

	for _, task := range tasks {
		switch task.Status {
		case models.TaskCompleted:
			if task.Result.Metadata.Count > 0 {
				rec.AddTimelineEvent(models.TimelineEvent{
					Timestamp:   *task.EndTime,
					Type:        models.TimelineTypeEvent,
					Description: fmt.Sprintf("Received %d events from %s", task.Result.Metadata.Count, task.AgentType),
					Source:      string(task.AgentType),
					Data:        map[string]any{"count": task.Result.Metadata.Count, "queryTime": task.Result.Metadata.QueryTimeMs},
				})
			}
			rec.AddCorrelations(task.Result.Correlations...)
		case models.TaskFailed:
			rec.AddTimelineEvent(models.TimelineEvent{
				Timestamp:   *task.EndTime,
				Type:        models.TimelineTypeAlert,
				Description: fmt.Sprintf("%s query failed: %s", task.AgentType, task.Error),
				Source:      string(task.AgentType),
				Severity:    models.SeverityHigh,
			})
		}
	}
}

func (d *Dispatcher) execute(ctx context.Context, task *models.AgentTask, rec Recorder) {
	ctx, span := d.tracer.Start(ctx, "telemetry.query", trace.WithAttributes(
		attribute.String("agent", string(task.AgentType)),
		attribute.String("task.id", task.ID),
	))
	defer span.End()

	start := time.Now()
	result, err := d.query(ctx, task)
	elapsed := time.Since(start)
	ended := d.now()

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		metrics.ObserveAgentQuery(string(task.AgentType), elapsed, metrics.OutcomeError)
		d.logger.Warn("telemetry query failed",
			slog.String("agent", string(task.AgentType)),
			slog.String("task_id", task.ID),
			slog.Duration("elapsed", elapsed),
			slog.Any("error", err),
		)
		rec.UpdateTask(task, func(t *models.AgentTask) {
			t.Status = models.TaskFailed
			t.Error = utils.ErrorMessage(err)
			t.EndTime = &ended
		})
		return
	}

	if result.Metadata.Count == 0 {
		result.Metadata.Count = len(result.Data)
	}
	if result.Metadata.QueryTimeMs == 0 {
		result.Metadata.QueryTimeMs = float64(elapsed.Microseconds()) / 1000
	}
	span.SetAttributes(attribute.Int("events", len(result.Data)))
	metrics.ObserveAgentQuery(string(task.AgentType), elapsed, metrics.OutcomeSuccess)
	rec.UpdateTask(task, func(t *models.AgentTask) {
		t.Status = models.TaskCompleted
		t.Result = &result
		t.EndTime = &ended
	})
}

// query waits for the source or the per-agent deadline, whichever comes first. A source that
// ignores its context keeps running in the background until it returns.
func (d *Dispatcher) query(ctx context.Context, task *models.AgentTask) (models.TelemetryResult, error) {
	if d.source == nil {
		return models.TelemetryResult{}, fmt.Errorf("telemetry source not configured")
	}
	if err := ctx.Err(); err != nil {
		return models.TelemetryResult{}, err
	}
	if d.agentTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.agentTimeout)
		defer cancel()
	}

	done := make(chan queryOutcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- queryOutcome{err: fmt.Errorf("telemetry source panic: %v", r)}
			}
		}()
		result, err := d.source.Query(ctx, task.AgentType, task.Query)
		done <- queryOutcome{result: result, err: err}
	}()

	select {
	case out := <-done:
		return out.result, out.err
	case <-ctx.Done():
		return models.TelemetryResult{}, ctx.Err()
	}
}

package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/miradorstack/secops-investigator/internal/incident"
	"github.com/miradorstack/secops-investigator/internal/metrics"
	"github.com/miradorstack/secops-investigator/internal/models"
	"github.com/miradorstack/secops-investigator/internal/query"
)

// ErrEmptyQuery is returned when Investigate receives blank text.
var ErrEmptyQuery = errors.New("investigation query is empty")

// ErrNoIncident is returned when a lifecycle change is requested with no current incident.
var ErrNoIncident = errors.New("no current incident")

// Investigator runs the parse, select, dispatch, correlate and score flow for one query at a time.
// Concurrent Investigate calls are safe; the registry keeps whichever started last.
type Investigator struct {
	logger     *slog.Logger
	parser     *query.Parser
	dispatcher *Dispatcher
	rules      *RuleEngine
	registry   *incident.Registry
	now        func() time.Time
	tracer     trace.Tracer
}

// Option customises an Investigator.
type Option func(*investigatorConfig)

type investigatorConfig struct {
	rules        *RuleEngine
	registry     *incident.Registry
	now          func() time.Time
	dispatchOpts []DispatcherOption
}

// WithRuleEngine installs a recommendation rule pack. A nil engine keeps the defaults.
func WithRuleEngine(rules *RuleEngine) Option {
	return func(c *investigatorConfig) {
		c.rules = rules
	}
}

// WithRegistry shares a session registry between investigators.
func WithRegistry(registry *incident.Registry) Option {
	return func(c *investigatorConfig) {
		if registry != nil {
			c.registry = registry
		}
	}
}

// WithClock fixes "now" for parsing, range resolution and timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *investigatorConfig) {
		if now != nil {
			c.now = now
		}
	}
}

// WithDispatcherOptions forwards options to the underlying Dispatcher.
func WithDispatcherOptions(opts ...DispatcherOption) Option {
	return func(c *investigatorConfig) {
		c.dispatchOpts = append(c.dispatchOpts, opts...)
	}
}

// NewInvestigator constructs an Investigator over the given telemetry source.
func NewInvestigator(logger *slog.Logger, source TelemetrySource, opts ...Option) *Investigator {
	if logger == nil {
		logger = slog.Default()
	}
	cfg := investigatorConfig{now: time.Now}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.registry == nil {
		cfg.registry = incident.NewRegistry()
	}

	dispatchOpts := append([]DispatcherOption{WithDispatchClock(cfg.now)}, cfg.dispatchOpts...)
	return &Investigator{
		logger:     logger,
		parser:     query.NewParser().WithClock(cfg.now),
		dispatcher: NewDispatcher(source, logger, dispatchOpts...),
		rules:      cfg.rules,
		registry:   cfg.registry,
		now:        cfg.now,
		tracer:     otel.Tracer("github.com/miradorstack/secops-investigator/internal/engine"),
	}
}

// Investigate runs one investigation to the identified state. Telemetry failures are recorded
// on their tasks and never returned; the only error is ErrEmptyQuery.
func (i *Investigator) Investigate(ctx context.Context, text string) (*models.IncidentContext, error) {
	if strings.TrimSpace(text) == "" {
		metrics.ObserveInvestigation(0, metrics.OutcomeError)
		return nil, ErrEmptyQuery
	}
	start := time.Now()

	ctx, span := i.tracer.Start(ctx, "investigate")
	defer span.End()

	parsed := i.parser.Parse(text)
	mgr := incident.NewManager(parsed, incident.WithClock(i.now))
	i.registry.Set(mgr)
	span.SetAttributes(
		attribute.String("incident.id", mgr.ID()),
		attribute.String("intent", string(parsed.Intent)),
	)

	agents := SelectAgents(parsed)
	window := ResolveRange(parsed, i.now())
	tasks := i.dispatcher.Dispatch(agents, parsed, window)
	mgr.AddTasks(tasks...)

	i.logger.Debug("dispatching telemetry queries",
		slog.String("incident_id", mgr.ID()),
		slog.Int("agents", len(agents)),
		slog.Time("range_start", window.Start),
		slog.Time("range_end", window.End),
	)
	i.dispatcher.Run(ctx, tasks, mgr)

	// Fan-in is complete; the remaining stages run sequentially on the live context.
	ic := mgr.Context()
	events := ic.AllEvents()
	if len(events) >= 2 {
		results := Correlate(events, parsed.Entities)
		mgr.AddCorrelations(results...)
		for _, entry := range CorrelationTimeline(results, i.now()) {
			mgr.AddTimelineEvent(entry)
		}
		for _, result := range results {
			metrics.ObserveCorrelation(string(result.Type))
		}
	}

	assets := IdentifyAssets(ic.AgentTasks, ic.Correlations)
	mgr.SetAffectedAssets(assets)
	severity := ScoreSeverity(assets, ic.Correlations, ic.AgentTasks)
	mgr.SetSeverity(severity)
	mgr.SetRecommendations(i.recommend(ic))

	summary := Summarize(ic)
	if err := mgr.Identify(summary); err != nil {
		i.logger.Warn("incident transition rejected", slog.String("incident_id", mgr.ID()), slog.Any("error", err))
	}

	failed := 0
	for _, task := range ic.AgentTasks {
		if task.Status == models.TaskFailed {
			failed++
		}
	}
	elapsed := time.Since(start)
	metrics.ObserveInvestigation(elapsed, metrics.OutcomeSuccess)
	metrics.ObserveSeverity(string(severity))
	span.SetAttributes(attribute.String("severity", string(severity)), attribute.Int("tasks.failed", failed))

	i.logger.Info("investigation complete",
		slog.String("incident_id", mgr.ID()),
		slog.String("severity", string(severity)),
		slog.Int("tasks", len(ic.AgentTasks)),
		slog.Int("failed_tasks", failed),
		slog.Int("correlations", len(ic.Correlations)),
		slog.Int("assets", len(assets)),
		slog.Duration("elapsed", elapsed),
	)
	return mgr.Snapshot(), nil
}

// CurrentContext returns a snapshot of the most recently started investigation.
func (i *Investigator) CurrentContext() (*models.IncidentContext, bool) {
	return i.registry.Current()
}

// ClearContext forgets the current investigation.
func (i *Investigator) ClearContext() {
	i.registry.Clear()
}

// TransitionCurrent moves the current incident to remediating or resolved. It backs the
// TransitionStatus RPC; backwards moves wrap incident.ErrInvalidTransition.
func (i *Investigator) TransitionCurrent(status models.IncidentStatus) (*models.IncidentContext, error) {
	mgr, ok := i.registry.Manager()
	if !ok {
		return nil, ErrNoIncident
	}
	if err := mgr.Transition(status); err != nil {
		return nil, err
	}
	return mgr.Snapshot(), nil
}

// Summarize renders the one-line investigation summary.
func Summarize(ic *models.IncidentContext) string {
	return fmt.Sprintf("%s: %d assets, %d correlations, severity %s",
		ic.Query.Intent, len(ic.AffectedAssets), len(ic.Correlations), ic.Severity)
}

func (i *Investigator) recommend(ic *models.IncidentContext) []string {
	if i.rules != nil {
		if recs := i.rules.Recommend(ic); len(recs) > 0 {
			return recs
		}
	}
	return DefaultRecommendations(ic)
}

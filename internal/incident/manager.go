// Package incident owns the IncidentContext aggregate for a single investigation.
package incident

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/miradorstack/secops-investigator/internal/models"
)

// ErrInvalidTransition is returned when a status change would move the lifecycle backwards.
var ErrInvalidTransition = errors.New("invalid incident status transition")

// SourceOrchestrator is the timeline source used for engine-authored entries.
const SourceOrchestrator = "orchestrator"

// Manager serialises every mutation of one IncidentContext.
type Manager struct {
	mu  sync.Mutex
	ic  *models.IncidentContext
	now func() time.Time
}

// Option customises a Manager.
type Option func(*Manager)

// WithClock overrides the clock used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewManager creates a context in the investigating state with an initial action entry
// recording the original query.
func NewManager(query models.ParsedQuery, opts ...Option) *Manager {
	m := &Manager{now: time.Now}
	for _, opt := range opts {
		opt(m)
	}

	created := m.now()
	m.ic = &models.IncidentContext{
		ID:           "inc-" + uuid.NewString(),
		Query:        query,
		AgentTasks:   []*models.AgentTask{},
		Correlations: []models.CorrelationResult{},
		Timeline: []models.TimelineEvent{{
			Timestamp:   created,
			Type:        models.TimelineTypeAction,
			Description: fmt.Sprintf("Investigation started: %s", query.OriginalQuery),
			Source:      SourceOrchestrator,
			Data: map[string]any{
				"intent":   string(query.Intent),
				"taskType": string(query.TaskType),
			},
		}},
		AffectedAssets: []models.Asset{},
		Severity:       models.SeverityLow,
		Status:         models.StatusInvestigating,
		CreatedAt:      created,
		UpdatedAt:      created,
	}
	return m
}

// ID returns the incident identifier.
func (m *Manager) ID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ic.ID
}

// Context exposes the live aggregate. Callers must not mutate it directly
// and must not read it while other goroutines write through the Manager.
func (m *Manager) Context() *models.IncidentContext {
	return m.ic
}

// AddTimelineEvent appends an entry, stamping it when no timestamp is set.
func (m *Manager) AddTimelineEvent(event models.TimelineEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if event.Timestamp.IsZero() {
		event.Timestamp = m.now()
	}
	m.ic.Timeline = append(m.ic.Timeline, event)
	m.touch()
}

// AddCorrelations appends correlations in the order given.
func (m *Manager) AddCorrelations(results ...models.CorrelationResult) {
	if len(results) == 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ic.Correlations = append(m.ic.Correlations, results...)
	m.touch()
}

// AddTasks registers dispatched agent tasks.
func (m *Manager) AddTasks(tasks ...*models.AgentTask) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ic.AgentTasks = append(m.ic.AgentTasks, tasks...)
	m.touch()
}

// UpdateTask applies fn to a task while holding the context lock.
func (m *Manager) UpdateTask(task *models.AgentTask, fn func(*models.AgentTask)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(task)
	m.touch()
}

// SetAffectedAssets replaces the asset list wholesale.
func (m *Manager) SetAffectedAssets(assets []models.Asset) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ic.AffectedAssets = append([]models.Asset(nil), assets...)
	m.touch()
}

// SetSeverity records the computed severity.
func (m *Manager) SetSeverity(severity models.Severity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ic.Severity = severity
	m.touch()
}

// SetRecommendations records remediation guidance.
func (m *Manager) SetRecommendations(recommendations []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ic.Recommendations = append([]string(nil), recommendations...)
	m.touch()
}

// Identify stores the summary, appends it as a final event and moves the incident to identified.
func (m *Manager) Identify(summary string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ic.Summary = summary
	m.ic.Timeline = append(m.ic.Timeline, models.TimelineEvent{
		Timestamp:   m.now(),
		Type:        models.TimelineTypeEvent,
		Description: summary,
		Source:      SourceOrchestrator,
		Severity:    m.ic.Severity,
	})
	return m.transitionLocked(models.StatusIdentified)
}

// Transition moves the lifecycle forward. Re-entering the current status is a no-op.
func (m *Manager) Transition(status models.IncidentStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transitionLocked(status)
}

func (m *Manager) transitionLocked(status models.IncidentStatus) error {
	next := status.Rank()
	current := m.ic.Status.Rank()
	if next < 0 {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, status)
	}
	if next < current {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, m.ic.Status, status)
	}
	if next == current {
		return nil
	}
	m.ic.Status = status
	m.touch()
	return nil
}

// Snapshot returns a copy that is safe to read while the investigation continues.
func (m *Manager) Snapshot() *models.IncidentContext {
	m.mu.Lock()
	defer m.mu.Unlock()
	return clone(m.ic)
}

func (m *Manager) touch() {
	m.ic.UpdatedAt = m.now()
}

func clone(src *models.IncidentContext) *models.IncidentContext {
	dst := *src
	dst.Query.Entities = append([]models.ExtractedEntity(nil), src.Query.Entities...)
	dst.AgentTasks = make([]*models.AgentTask, len(src.AgentTasks))
	for i, task := range src.AgentTasks {
		copied := *task
		copied.Query.Filters = append([]models.QueryFilter(nil), task.Query.Filters...)
		copied.Query.Fields = append([]string(nil), task.Query.Fields...)
		if task.EndTime != nil {
			end := *task.EndTime
			copied.EndTime = &end
		}
		if task.Result != nil {
			result := *task.Result
			copied.Result = &result
		}
		dst.AgentTasks[i] = &copied
	}
	dst.Correlations = append([]models.CorrelationResult{}, src.Correlations...)
	dst.Timeline = append([]models.TimelineEvent{}, src.Timeline...)
	dst.AffectedAssets = append([]models.Asset{}, src.AffectedAssets...)
	dst.Recommendations = append([]string(nil), src.Recommendations...)
	return &dst
}

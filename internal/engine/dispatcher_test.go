package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miradorstack/secops-investigator/internal/models"
	"github.com/miradorstack/secops-investigator/internal/utils"
)

func TestBuildQueryExpandsEntities(t *testing.T) {
	q := models.ParsedQuery{Entities: []models.ExtractedEntity{
		{Type: models.EntityIPAddress, Value: "10.1.1.10"},
		{Type: models.EntityUserID, Value: "alice"},
		{Type: models.EntityPort, Value: "443"},
		{Type: models.EntityProtocol, Value: "tcp"},
		{Type: models.EntityHostname, Value: "vpn.corp.com"},
	}}
	window := models.TimeRange{Start: baseTime.Add(-time.Hour), End: baseTime}

	tq := BuildQuery(models.AgentFirewall, q, window)

	fields := make([]string, 0, len(tq.Filters))
	for _, filter := range tq.Filters {
		assert.Equal(t, models.FilterEquals, filter.Operator)
		fields = append(fields, filter.Field+"="+filter.Value)
	}
	assert.Equal(t, []string{
		"src_ip=10.1.1.10", "dst_ip=10.1.1.10", "client_ip=10.1.1.10",
		"username=alice", "user_id=alice",
		"src_port=443", "dst_port=443",
		"protocol=tcp",
	}, fields)
	assert.Equal(t, models.DefaultQueryLimit, tq.Limit)
	assert.Equal(t, window, tq.TimeRange)
	assert.Equal(t, []string{"timestamp", "src_ip", "dst_ip", "dst_port", "protocol", "action", "rule"}, tq.Fields)
}

func TestFieldsForUnknownAgent(t *testing.T) {
	assert.Equal(t, []string{"timestamp", "message"}, FieldsFor(models.AgentType("legacy_agent")))
}

func TestRunIsolatesFailures(t *testing.T) {
	source := newFakeSource()
	for _, agent := range models.AllAgents {
		source.results[agent] = models.TelemetryResult{Data: denyEvents(2, "10.1.1.10")}
	}
	source.errs[models.AgentSNMP] = utils.NewAppError("snmp.poll", "device unreachable", errors.New("no route"))

	d := NewDispatcher(source, nil, WithDispatchClock(fixedNow))
	tasks := d.Dispatch([]models.AgentType{models.AgentSplunk, models.AgentSNMP, models.AgentTopology}, models.ParsedQuery{}, models.TimeRange{})
	rec := &recorderStub{}
	d.Run(context.Background(), tasks, rec)

	failed := 0
	for _, task := range tasks {
		require.NotNil(t, task.EndTime)
		if task.Status == models.TaskFailed {
			failed++
			assert.Equal(t, models.AgentSNMP, task.AgentType)
			assert.Equal(t, "device unreachable: no route", task.Error)
			assert.Nil(t, task.Result)
			continue
		}
		assert.Equal(t, models.TaskCompleted, task.Status)
		require.NotNil(t, task.Result)
		assert.Equal(t, 2, task.Result.Metadata.Count)
	}
	assert.Equal(t, 1, failed)

	require.Len(t, rec.timeline, 6)
	for i, agent := range []models.AgentType{models.AgentSplunk, models.AgentSNMP, models.AgentTopology} {
		assert.Equal(t, models.TimelineTypeAction, rec.timeline[i].Type)
		assert.Equal(t, string(agent), rec.timeline[i].Source)
	}
	assert.Equal(t, models.TimelineTypeEvent, rec.timeline[3].Type)
	assert.Equal(t, models.TimelineTypeAlert, rec.timeline[4].Type)
	assert.Equal(t, models.SeverityHigh, rec.timeline[4].Severity)
	assert.Equal(t, models.TimelineTypeEvent, rec.timeline[5].Type)
}

func TestRunSkipsCountEntryForEmptyResults(t *testing.T) {
	source := newFakeSource()
	source.results[models.AgentSplunk] = models.TelemetryResult{
		Correlations: []models.CorrelationResult{{Type: models.CorrelationSpatial, Strength: 0.4, Pattern: "upstream_hop"}},
	}

	d := NewDispatcher(source, nil)
	tasks := d.Dispatch([]models.AgentType{models.AgentSplunk}, models.ParsedQuery{}, models.TimeRange{})
	rec := &recorderStub{}
	d.Run(context.Background(), tasks, rec)

	require.Len(t, rec.timeline, 1)
	require.Len(t, rec.correlations, 1)
	assert.Equal(t, models.CorrelationSpatial, rec.correlations[0].Type)
	assert.Equal(t, models.TaskCompleted, tasks[0].Status)
}

func TestRunBoundsSlowAgents(t *testing.T) {
	source := newFakeSource()
	source.block[models.AgentNetflow] = true

	d := NewDispatcher(source, nil, WithAgentTimeout(20*time.Millisecond), WithMaxConcurrency(2))
	tasks := d.Dispatch([]models.AgentType{models.AgentSplunk, models.AgentNetflow, models.AgentTopology}, models.ParsedQuery{}, models.TimeRange{})

	done := make(chan struct{})
	go func() {
		d.Run(context.Background(), tasks, &recorderStub{})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher did not honour the per-agent timeout")
	}

	assert.Equal(t, models.TaskCompleted, tasks[0].Status)
	assert.Equal(t, models.TaskFailed, tasks[1].Status)
	assert.Contains(t, tasks[1].Error, context.DeadlineExceeded.Error())
	assert.Equal(t, models.TaskCompleted, tasks[2].Status)
}

func TestRunHonoursCallerCancellation(t *testing.T) {
	source := newFakeSource()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := NewDispatcher(source, nil)
	tasks := d.Dispatch([]models.AgentType{models.AgentSplunk, models.AgentTopology}, models.ParsedQuery{}, models.TimeRange{})
	d.Run(ctx, tasks, &recorderStub{})

	for _, task := range tasks {
		assert.Equal(t, models.TaskFailed, task.Status)
		assert.Equal(t, context.Canceled.Error(), task.Error)
	}
}

type panickingSource struct{}

func (panickingSource) Query(context.Context, models.AgentType, models.TelemetryQuery) (models.TelemetryResult, error) {
	panic("boom")
}

func TestRunRecoversSourcePanics(t *testing.T) {
	d := NewDispatcher(panickingSource{}, nil)
	tasks := d.Dispatch([]models.AgentType{models.AgentSplunk}, models.ParsedQuery{}, models.TimeRange{})
	d.Run(context.Background(), tasks, &recorderStub{})

	assert.Equal(t, models.TaskFailed, tasks[0].Status)
	assert.Contains(t, tasks[0].Error, "boom")
}

func TestDispatchAssignsUniqueIDs(t *testing.T) {
	d := NewDispatcher(newFakeSource(), nil)
	tasks := d.Dispatch(models.AllAgents, models.ParsedQuery{}, models.TimeRange{})

	ids := make(map[string]struct{})
	for i, task := range tasks {
		assert.Equal(t, models.AllAgents[i], task.AgentType)
		assert.Equal(t, models.TaskPending, task.Status)
		ids[task.ID] = struct{}{}
	}
	assert.Len(t, ids, len(models.AllAgents))
}

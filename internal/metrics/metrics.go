package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeSuccess labels successful investigations and agent queries.
	OutcomeSuccess = "success"
	// OutcomeError labels failed investigations or agent queries.
	OutcomeError = "error"
)

const namespace = "secops_investigator"

var (
	investigationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "investigations_total",
			Help:      "Total number of investigations handled, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	investigationDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "investigation_seconds",
			Help:      "Investigation latency in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
	)

	agentQueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_queries_total",
			Help:      "Telemetry queries issued per agent, partitioned by outcome.",
		},
		[]string{"agent", "outcome"},
	)

	agentQueryDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "agent_query_seconds",
			Help:      "Telemetry query latency per agent in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"agent"},
	)

	correlationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "correlations_total",
			Help:      "Correlations produced by the correlation engine, by type.",
		},
		[]string{"type"},
	)

	severityTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "incident_severity_total",
			Help:      "Finalized incidents by severity tier.",
		},
		[]string{"severity"},
	)
)

// Register attaches collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		investigationsTotal,
		investigationDurationSeconds,
		agentQueriesTotal,
		agentQueryDurationSeconds,
		correlationsTotal,
		severityTotal,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveInvestigation records an investigation duration and outcome label.
func ObserveInvestigation(duration time.Duration, outcome string) {
	investigationsTotal.WithLabelValues(normaliseOutcome(outcome)).Inc()
	if duration < 0 {
		duration = 0
	}
	investigationDurationSeconds.Observe(duration.Seconds())
}

// ObserveAgentQuery records one telemetry query.
func ObserveAgentQuery(agent string, duration time.Duration, outcome string) {
	agentQueriesTotal.WithLabelValues(agent, normaliseOutcome(outcome)).Inc()
	if duration < 0 {
		duration = 0
	}
	agentQueryDurationSeconds.WithLabelValues(agent).Observe(duration.Seconds())
}

// ObserveCorrelation counts a produced correlation.
func ObserveCorrelation(correlationType string) {
	correlationsTotal.WithLabelValues(correlationType).Inc()
}

// ObserveSeverity counts a finalized incident severity.
func ObserveSeverity(severity string) {
	severityTotal.WithLabelValues(severity).Inc()
}

func normaliseOutcome(outcome string) string {
	if outcome != OutcomeError {
		return OutcomeSuccess
	}
	return OutcomeError
}

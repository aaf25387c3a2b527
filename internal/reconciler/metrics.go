package reconciler

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"dbupdater/internal/migration"
)

const metricsNamespace = "dbupdater"

// Reconcile result labels.
const (
	ResultSynced   = "synced"
	ResultRequeued = "requeued"
	ResultRetry    = "retry"
	ResultFailed   = "failed"
)

// Metrics holds the operator's Prometheus collectors.
type Metrics struct {
	ReconcileTotal    *prometheus.CounterVec
	ReconcileDuration *prometheus.HistogramVec
	MigrationTasks    *prometheus.CounterVec
	PollAttempts      prometheus.Histogram
	DownstreamUpdates *prometheus.CounterVec
	StatusSync        *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ReconcileTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "reconcile_total",
				Help:      "Reconciliations by resource type and result.",
			},
			[]string{"resource", "result"},
		),
		ReconcileDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "reconcile_duration_seconds",
				Help:      "Duration of a single Reconcile call.",
				Buckets:   []float64{0.01, 0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
			},
			[]string{"resource"},
		),
		MigrationTasks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "migration",
				Name:      "tasks_total",
				Help:      "Migration task events by outcome.",
			},
			[]string{"outcome"},
		),
		PollAttempts: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: "migration",
				Name:      "poll_attempts",
				Help:      "Status reads made while waiting for a migration task.",
				Buckets:   prometheus.LinearBuckets(1, 5, 8),
			},
		),
		DownstreamUpdates: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "downstream_updates_total",
				Help:      "Downstream Deployment updates by result.",
			},
			[]string{"result"},
		),
		StatusSync: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "status_sync_total",
				Help:      "DatabaseUpdate status writes by result.",
			},
			[]string{"result"},
		),
	}

	if reg != nil {
		reg.MustRegister(
			m.ReconcileTotal,
			m.ReconcileDuration,
			m.MigrationTasks,
			m.PollAttempts,
			m.DownstreamUpdates,
			m.StatusSync,
		)
	}
	return m
}

// ObserveReconcile records one Reconcile call. Safe on a nil receiver.
func (m *Metrics) ObserveReconcile(rt ResourceType, result string, d time.Duration) {
	if m == nil {
		return
	}
	m.ReconcileTotal.WithLabelValues(string(rt), result).Inc()
	m.ReconcileDuration.WithLabelValues(string(rt)).Observe(d.Seconds())
}

// ObserveOutcome records the migration side of an engine outcome.
func (m *Metrics) ObserveOutcome(out migration.Outcome) {
	if m == nil || out.TaskID == "" {
		return
	}

	switch out.Creation {
	case migration.Created:
		m.MigrationTasks.WithLabelValues("created").Inc()
	case migration.AlreadyExists:
		m.MigrationTasks.WithLabelValues("already_exists").Inc()
	}

	if out.PollAttempts > 0 {
		m.PollAttempts.Observe(float64(out.PollAttempts))
	}

	switch {
	case out.Converged:
		m.MigrationTasks.WithLabelValues("succeeded").Inc()
		m.DownstreamUpdates.WithLabelValues("success").Inc()
	case out.Stage == migration.StageDownstream:
		m.MigrationTasks.WithLabelValues("succeeded").Inc()
		m.DownstreamUpdates.WithLabelValues("error").Inc()
	case out.Phase == migration.TaskFailed:
		m.MigrationTasks.WithLabelValues("failed").Inc()
	case out.Stage == migration.StageAwait && isPollTimeout(out.Err):
		m.MigrationTasks.WithLabelValues("timed_out").Inc()
	}
}

// ObserveStatusSync records a status write with result success, conflict
// or error.
func (m *Metrics) ObserveStatusSync(result string) {
	if m == nil {
		return
	}
	m.StatusSync.WithLabelValues(result).Inc()
}

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// WorkflowMetrics tracks workflow runs and step durations.
type WorkflowMetrics struct {
	RunsTotal    *prometheus.CounterVec
	StepDuration *prometheus.HistogramVec
	RunsRejected *prometheus.CounterVec
}

// NewWorkflowMetrics creates and registers workflow metrics on reg.
func NewWorkflowMetrics(reg prometheus.Registerer) *WorkflowMetrics {
	factory := promauto.With(reg)
	return &WorkflowMetrics{
		RunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflow_runs_total",
			Help:      "Total number of completed workflow runs, by workflow and overall status.",
		}, []string{"workflow", "status"}),
		StepDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "step_duration_seconds",
			Help:      "Duration of workflow steps in seconds, by step and status.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"step", "status"}),
		RunsRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflow_runs_rejected_total",
			Help:      "Total number of workflow runs rejected because another run was in progress.",
		}, []string{"workflow"}),
	}
}

// ObserveRun records a finished run.
func (m *WorkflowMetrics) ObserveRun(workflow, status string) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(workflow, status).Inc()
}

// ObserveStep records the duration of one executed step.
func (m *WorkflowMetrics) ObserveStep(step, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.StepDuration.WithLabelValues(step, status).Observe(d.Seconds())
}

// ObserveRejected records a run refused by the overlap guard.
func (m *WorkflowMetrics) ObserveRejected(workflow string) {
	if m == nil {
		return
	}
	m.RunsRejected.WithLabelValues(workflow).Inc()
}

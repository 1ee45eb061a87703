package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"sessionrotor/internal/automation"
	"sessionrotor/internal/history"
	"sessionrotor/internal/metrics"
)

var (
	// ErrUnknownWorkflow is returned when no definition has the requested name.
	ErrUnknownWorkflow = errors.New("unknown workflow")

	// ErrRunInProgress is returned when a run is requested while another one
	// is still executing. Overlapping runs are rejected, not queued.
	ErrRunInProgress = errors.New("workflow run already in progress")
)

// Runner executes catalog workflows by name on behalf of the scheduler, the
// HTTP surface and the CLI.
//
// At most one run executes at a time because every workflow shares the same
// automation session. After each run the session is released, and the report
// of the [RotateAll] workflow is appended to the ledger.
type Runner struct {
	engine  *Engine
	catalog *Catalog
	ledger  *history.Ledger
	handle  *automation.Handle
	metrics *metrics.WorkflowMetrics
	log     logrus.FieldLogger

	running sync.Mutex
}

// NewRunner creates a runner. handle may be nil when no workflow needs an
// automation session.
func NewRunner(engine *Engine, catalog *Catalog, ledger *history.Ledger, handle *automation.Handle, log logrus.FieldLogger) *Runner {
	return &Runner{
		engine:  engine,
		catalog: catalog,
		ledger:  ledger,
		handle:  handle,
		log:     log,
	}
}

// SetMetrics configures the collectors updated after every run.
func (r *Runner) SetMetrics(m *metrics.WorkflowMetrics) {
	r.metrics = m
}

// Catalog returns the definitions this runner can execute.
func (r *Runner) Catalog() *Catalog {
	return r.catalog
}

// Run executes the workflow called name and returns its report.
//
// The returned error is non-nil only when the run did not start: the name is
// unknown ([ErrUnknownWorkflow]) or another run holds the session
// ([ErrRunInProgress]). Step failures are reported inside the [Report].
func (r *Runner) Run(ctx context.Context, name string) (Report, error) {
	def, ok := r.catalog.Get(name)
	if !ok {
		return Report{}, fmt.Errorf("%w: %s", ErrUnknownWorkflow, name)
	}

	if !r.running.TryLock() {
		r.metrics.ObserveRejected(name)
		r.log.WithField("workflow", name).Warn("Run rejected, another workflow is in progress")
		return Report{}, fmt.Errorf("%w: cannot start %s", ErrRunInProgress, name)
	}
	defer r.running.Unlock()

	report := r.engine.Run(ctx, def)

	if r.handle != nil {
		if err := r.handle.Release(); err != nil {
			r.log.WithError(err).WithField("run_id", report.ID).Warn("Failed to release automation session")
		}
	}

	if name == RotateAll && r.ledger != nil {
		r.ledger.Record(report.Record())
	}

	r.metrics.ObserveRun(name, string(report.Overall))
	for _, res := range report.Steps {
		r.metrics.ObserveStep(res.Name, string(res.Status), res.Duration)
	}

	return report, nil
}

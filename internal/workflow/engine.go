// Package workflow runs ordered step sequences and records their outcome.
//
// A [Definition] is a named, ordered list of [step.Step] values. The [Engine]
// executes one definition strictly in order, converts every returned error or
// panic into a [step.Result], halts at the first critical step that does not
// succeed, and classifies the overall outcome. The [Runner] is the entry point
// used by the scheduler, the HTTP control surface and the CLI: it resolves a
// workflow by name, rejects overlapping runs, releases the automation session
// and appends the rotate-all report to the history ledger.
//
// Key types:
//   - [Engine] executes a [Definition] and returns a [Report]
//   - [Definition] is a validated, named step sequence
//   - [Catalog] holds the definitions known to the process
//   - [Runner] guards, executes and records runs by workflow name
package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"sessionrotor/internal/history"
	"sessionrotor/internal/settings"
	"sessionrotor/internal/step"
)

// DefaultStepTimeout bounds a step that does not set its own timeout.
const DefaultStepTimeout = 2 * time.Minute

// SettingsSource provides the settings snapshot handed to every step of a run.
// [settings.Store] implements this interface.
type SettingsSource interface {
	Snapshot() settings.Snapshot
}

// ProgressCallback is invoked before each step begins execution.
//
// The callback receives stepIndex (1-based), totalSteps count, and the step
// name. The callback is optional and can be set via [Engine.SetProgressCallback].
type ProgressCallback func(stepIndex, totalSteps int, name string)

// Report is the structured result of one workflow run.
type Report struct {
	// ID correlates the run's log lines and its history record.
	ID string `json:"id"`

	// Workflow is the name of the executed definition.
	Workflow string `json:"workflow"`

	// Steps holds one result per executed step, in execution order.
	Steps []step.Result `json:"steps"`

	// Overall is the classification of the run.
	Overall history.Status `json:"overall"`

	// Halted reports whether a critical step stopped the run early.
	Halted bool `json:"halted"`

	// Total is the number of steps in the definition, executed or not.
	Total int `json:"total"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Succeeded returns the number of steps that reported success.
func (r Report) Succeeded() int {
	n := 0
	for _, res := range r.Steps {
		if res.OK() {
			n++
		}
	}
	return n
}

// Details renders the "<succeeded>/<total> steps succeeded" summary.
func (r Report) Details() string {
	return fmt.Sprintf("%d/%d steps succeeded", r.Succeeded(), r.Total)
}

// Record converts the report into an immutable history entry.
func (r Report) Record() history.RunRecord {
	return history.RunRecord{
		ID:        r.ID,
		Timestamp: history.FormatTimestamp(r.FinishedAt),
		Status:    r.Overall,
		Details:   r.Details(),
	}
}

// Classify computes the overall status of the executed results.
//
// Success when every executed step succeeded, Partial when some but not all
// did, Failed when none did. A run halted by a critical step is always Failed.
func Classify(results []step.Result, halted bool) history.Status {
	if halted || len(results) == 0 {
		return history.StatusFailed
	}
	succeeded := 0
	for _, res := range results {
		if res.OK() {
			succeeded++
		}
	}
	switch succeeded {
	case len(results):
		return history.StatusSuccess
	case 0:
		return history.StatusFailed
	default:
		return history.StatusPartial
	}
}

// Engine executes workflow definitions.
//
// The engine never returns an error and never panics: every failure mode of
// a step is captured in its [step.Result].
type Engine struct {
	settings         SettingsSource
	timeout          time.Duration
	clock            clockwork.Clock
	log              logrus.FieldLogger
	progressCallback ProgressCallback
}

// NewEngine creates an engine. A zero timeout selects [DefaultStepTimeout].
func NewEngine(src SettingsSource, timeout time.Duration, clock clockwork.Clock, log logrus.FieldLogger) *Engine {
	if timeout <= 0 {
		timeout = DefaultStepTimeout
	}
	return &Engine{settings: src, timeout: timeout, clock: clock, log: log}
}

// SetProgressCallback configures an optional progress callback.
func (e *Engine) SetProgressCallback(cb ProgressCallback) {
	e.progressCallback = cb
}

// Run executes def and returns its report.
//
// Steps run sequentially. Each receives a context bounded by its timeout and
// the same settings snapshot. After a critical step reports anything but
// success, the remaining steps are not invoked.
func (e *Engine) Run(ctx context.Context, def Definition) Report {
	report := Report{
		ID:        uuid.New().String(),
		Workflow:  def.Name,
		Total:     len(def.Steps),
		StartedAt: e.clock.Now(),
		Steps:     make([]step.Result, 0, len(def.Steps)),
	}
	runLog := e.log.WithFields(logrus.Fields{"workflow": def.Name, "run_id": report.ID})
	runLog.Info("Workflow started")

	var snap settings.Snapshot
	if e.settings != nil {
		snap = e.settings.Snapshot()
	}

	for i, s := range def.Steps {
		if e.progressCallback != nil {
			e.progressCallback(i+1, len(def.Steps), s.Name)
		}

		stepLog := runLog.WithField("step", s.Name)
		res := e.runStep(ctx, s, step.Env{Settings: snap, Log: stepLog})
		report.Steps = append(report.Steps, res)

		entry := stepLog.WithFields(logrus.Fields{"status": res.Status, "duration": res.Duration})
		if res.OK() {
			entry.Info(res.Message)
		} else {
			entry.Warn(res.Message)
		}

		if s.Critical && !res.OK() {
			report.Halted = true
			runLog.WithField("step", s.Name).Warn("Critical step did not succeed, halting workflow")
			break
		}
	}

	report.Overall = Classify(report.Steps, report.Halted)
	report.FinishedAt = e.clock.Now()
	runLog.WithFields(logrus.Fields{"overall": report.Overall, "details": report.Details()}).Info("Workflow finished")
	return report
}

// runStep executes one step, converting errors, panics and timeouts into a result.
func (e *Engine) runStep(ctx context.Context, s step.Step, env step.Env) (res step.Result) {
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = e.timeout
	}
	stepCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := e.clock.Now()
	defer func() {
		res.Duration = e.clock.Since(start)
	}()
	defer func() {
		if r := recover(); r != nil {
			res = step.Result{Name: s.Name, Status: step.StatusError, Message: fmt.Sprintf("panic: %v", r)}
		}
	}()

	if s.Action == nil {
		return step.Result{Name: s.Name, Status: step.StatusError, Message: "step has no action"}
	}

	out, err := s.Action.Execute(stepCtx, env)
	if err == nil && errors.Is(stepCtx.Err(), context.DeadlineExceeded) {
		err = stepCtx.Err()
	}
	if err != nil {
		msg := err.Error()
		if errors.Is(err, context.DeadlineExceeded) {
			msg = fmt.Sprintf("timed out after %s: %v", timeout, err)
		}
		return step.Result{Name: s.Name, Status: step.ClassifyError(err), Message: msg}
	}

	status := step.StatusSuccess
	if !out.Success {
		status = step.StatusFailed
	}
	return step.Result{Name: s.Name, Status: status, Message: out.Message}
}

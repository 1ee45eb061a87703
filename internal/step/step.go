// Package step defines the step vocabulary executed by the workflow engine.
//
// A step is a named, immutable unit of work wrapping one external operation
// (clear a credential, restart a container, acquire a session, deliver a
// credential, log out). Every operation is exposed through the same
// [Action] interface so the engine can run them uniformly.
//
// Key types:
//   - [Step] couples a name and criticality with an [Action]
//   - [Action] is the uniform execute call implemented by every operation
//   - [Outcome] is what an action reports on normal return
//   - [Result] is the engine-side record of one executed step
//   - [Env] carries the resolved settings and logger into an action
//
// The constructors in vocabulary.go build one parameterized step per external
// action; variation between targets comes from configuration, not from
// separate code paths.
package step

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"sessionrotor/internal/settings"
)

// Status is the classification of a single executed step.
type Status string

const (
	// StatusSuccess indicates the action reported success.
	StatusSuccess Status = "Success"

	// StatusFailed indicates the action ran but reported failure, or its
	// configuration was incomplete.
	StatusFailed Status = "Failed"

	// StatusError indicates the action returned an unexpected error, panicked,
	// or exceeded its timeout.
	StatusError Status = "Error"
)

// Outcome is the structured return value of an [Action].
type Outcome struct {
	// Success reports whether the operation achieved its goal.
	Success bool

	// Message is a short human-readable summary shown in reports.
	Message string
}

// Succeeded builds a successful [Outcome] with a formatted message.
func Succeeded(message string) Outcome {
	return Outcome{Success: true, Message: message}
}

// Failed builds an unsuccessful [Outcome] with a formatted message.
func Failed(message string) Outcome {
	return Outcome{Success: false, Message: message}
}

// Env is the execution context handed to every [Action].
//
// Settings is a snapshot taken at the start of the run, so all steps of one
// run observe the same configuration even if the document is edited
// concurrently. Log is pre-populated with workflow and step fields.
type Env struct {
	Settings settings.Snapshot
	Log      logrus.FieldLogger
}

// Action is the uniform interface implemented by every step operation.
//
// Execute receives a context that carries the step timeout. The engine
// enforces the timeout only through that context: implementations must pass
// ctx to every blocking call and return once it is done, or the run blocks
// with them. Returning an
// error is equivalent to a thrown exception: the engine converts it to a
// [Result] and never propagates it. Errors wrapping [ErrConfiguration] are
// classified as [StatusFailed], anything else as [StatusError].
type Action interface {
	Execute(ctx context.Context, env Env) (Outcome, error)
}

// ActionFunc adapts an ordinary function to the [Action] interface.
type ActionFunc func(ctx context.Context, env Env) (Outcome, error)

// Execute calls f(ctx, env).
func (f ActionFunc) Execute(ctx context.Context, env Env) (Outcome, error) {
	return f(ctx, env)
}

// Step is one named action within a workflow definition.
type Step struct {
	// Name identifies the step in results and logs (e.g., "restart-container").
	Name string

	// Critical steps halt the workflow when they report anything but success.
	Critical bool

	// Timeout bounds the action. Zero means the engine default.
	Timeout time.Duration

	// Action performs the operation.
	Action Action
}

// AsCritical returns a copy of s flagged as critical.
func (s Step) AsCritical() Step {
	s.Critical = true
	return s
}

// WithTimeout returns a copy of s with the given timeout.
func (s Step) WithTimeout(d time.Duration) Step {
	s.Timeout = d
	return s
}

// Result is the engine's record of one executed step.
type Result struct {
	Name     string        `json:"name"`
	Status   Status        `json:"status"`
	Message  string        `json:"message"`
	Duration time.Duration `json:"duration"`
}

// OK reports whether the result is [StatusSuccess].
func (r Result) OK() bool {
	return r.Status == StatusSuccess
}

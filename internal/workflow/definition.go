package workflow

import (
	"errors"
	"fmt"
	"time"

	"sessionrotor/internal/automation"
	"sessionrotor/internal/container"
	"sessionrotor/internal/credential"
	"sessionrotor/internal/downstream"
	"sessionrotor/internal/ipdetect"
	"sessionrotor/internal/prune"
	"sessionrotor/internal/step"
)

// Workflow names known to the process.
const (
	RotateTracker = "rotate-tracker"
	RotateIndexer = "rotate-indexer"
	RotateAll     = "rotate-all"
)

// Downstream targets. Each target has its own login and delivery settings.
const (
	TargetTracker = "tracker"
	TargetIndexer = "indexer"
)

// ErrInvalidDefinition is returned when a definition has no name, no steps,
// or collides with another definition in a [Catalog].
var ErrInvalidDefinition = errors.New("invalid workflow definition")

// Definition is a named, ordered, immutable list of steps.
type Definition struct {
	Name  string
	Steps []step.Step
}

// NewDefinition validates and builds a definition. The steps slice is copied.
func NewDefinition(name string, steps ...step.Step) (Definition, error) {
	if name == "" {
		return Definition{}, fmt.Errorf("%w: name is required", ErrInvalidDefinition)
	}
	if len(steps) == 0 {
		return Definition{}, fmt.Errorf("%w: %s has no steps", ErrInvalidDefinition, name)
	}
	for i, s := range steps {
		if s.Name == "" || s.Action == nil {
			return Definition{}, fmt.Errorf("%w: %s step %d needs a name and an action", ErrInvalidDefinition, name, i+1)
		}
	}
	out := make([]step.Step, len(steps))
	copy(out, steps)
	return Definition{Name: name, Steps: out}, nil
}

// StepNames lists the step names in execution order.
func (d Definition) StepNames() []string {
	names := make([]string, len(d.Steps))
	for i, s := range d.Steps {
		names[i] = s.Name
	}
	return names
}

// Catalog is the set of definitions available to the [Runner], in
// registration order.
type Catalog struct {
	defs  map[string]Definition
	order []string
}

// NewCatalog builds a catalog. Duplicate names are rejected.
func NewCatalog(defs ...Definition) (*Catalog, error) {
	c := &Catalog{defs: make(map[string]Definition, len(defs))}
	for _, d := range defs {
		if _, dup := c.defs[d.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate workflow %q", ErrInvalidDefinition, d.Name)
		}
		c.defs[d.Name] = d
		c.order = append(c.order, d.Name)
	}
	return c, nil
}

// Get returns the definition called name.
func (c *Catalog) Get(name string) (Definition, bool) {
	d, ok := c.defs[name]
	return d, ok
}

// Names returns the workflow names in registration order.
func (c *Catalog) Names() []string {
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// Dependencies are the collaborators the built-in workflows are composed from.
type Dependencies struct {
	Cache     *credential.Cache
	Handle    *automation.Handle
	Restarter container.Restarter
	Sender    downstream.Sender
	Pruner    *prune.Pruner
	Detector  *ipdetect.Detector

	// RestartTimeout bounds the container restart step. Zero uses the engine default.
	RestartTimeout time.Duration
}

// DefaultCatalog composes rotate-tracker, rotate-indexer and rotate-all.
//
// A credential is always cleared before the container restart,
// the restart precedes re-acquisition, and acquisition precedes delivery. The
// restart and the first acquisition are critical: nothing after them can
// work if they fail.
func DefaultCatalog(deps Dependencies) (*Catalog, error) {
	restart := step.RestartContainer(deps.Restarter).AsCritical().WithTimeout(deps.RestartTimeout)
	detect := step.DetectVPNAddress(deps.Detector)
	logout := step.Logout(deps.Handle)

	clearFor := func(target string) step.Step { return step.ClearCredential(deps.Cache, target) }
	acquire := func(target string) step.Step { return step.AcquireSession(deps.Handle, deps.Cache, target) }
	send := func(target string) step.Step { return step.SendCredential(deps.Sender, deps.Cache, target) }
	pruneFor := func(target string) step.Step { return step.PruneSessions(deps.Handle, deps.Pruner, target) }

	tracker, err := NewDefinition(RotateTracker,
		clearFor(TargetTracker),
		restart,
		detect,
		acquire(TargetTracker).AsCritical(),
		pruneFor(TargetTracker),
		send(TargetTracker),
		logout,
	)
	if err != nil {
		return nil, err
	}

	indexer, err := NewDefinition(RotateIndexer,
		clearFor(TargetIndexer),
		acquire(TargetIndexer).AsCritical(),
		pruneFor(TargetIndexer),
		send(TargetIndexer),
		logout,
	)
	if err != nil {
		return nil, err
	}

	// The indexer session is opened after pruning so that it survives it.
	all, err := NewDefinition(RotateAll,
		clearFor(TargetTracker),
		clearFor(TargetIndexer),
		restart,
		detect,
		acquire(TargetTracker).AsCritical(),
		pruneFor(TargetTracker),
		send(TargetTracker),
		acquire(TargetIndexer),
		send(TargetIndexer),
		logout,
	)
	if err != nil {
		return nil, err
	}

	return NewCatalog(tracker, indexer, all)
}

// Package cli implements the sessionrotor command-line interface.
//
// Commands receive their collaborators through an injected [App], so tests
// build an App from mocks and drive the commands with SetArgs and Execute.
// Failures are signalled with [ExitError] rather than os.Exit; [Execute] is
// the only place the process exits.
//
// Key types:
//   - [App] holds the wired services used by the commands
//   - [ExecuteResult] carries the exit code of one invocation
package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"sessionrotor/internal/config"
	"sessionrotor/internal/ipdetect"
	"sessionrotor/internal/output"
	"sessionrotor/internal/settings"
	"sessionrotor/internal/workflow"
)

// WorkflowRunner runs workflows by name. [workflow.Runner] implements this interface.
type WorkflowRunner interface {
	Run(ctx context.Context, name string) (workflow.Report, error)
	Catalog() *workflow.Catalog
}

// AddressDetector reports the external and VPN addresses.
type AddressDetector interface {
	Detect(ctx context.Context, logPath string) ipdetect.Addresses
}

// HTTPServer is the control surface started by serve.
type HTTPServer interface {
	Start(addr string) error
	Shutdown(ctx context.Context, timeout time.Duration) error
}

// ScheduleController is the scheduler as seen by serve.
type ScheduleController interface {
	Apply(snap settings.Snapshot) error
	Close()
}

// App is the dependency container for the commands.
type App struct {
	Config   *config.Config
	Log      logrus.FieldLogger
	Printer  *output.Printer
	Settings *settings.Store

	Runner    WorkflowRunner
	Detector  AddressDetector
	Server    HTTPServer
	Scheduler ScheduleController

	// Engine, when set, reports step progress to Printer during run.
	Engine *workflow.Engine

	closers []func() error
}

// Close releases the resources opened by [NewApp].
func (a *App) Close() error {
	var firstErr error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	a.closers = nil
	return firstErr
}

// NewRootCommand creates the root command with every subcommand attached.
func NewRootCommand(app *App) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "sessionrotor",
		Short: "Rotate tracker and indexer sessions behind a VPN",
		Long: `sessionrotor refreshes the session credentials of a private tracker and
an indexer, restarting the VPN container first so each login comes from a
fresh exit address. Runs happen daily at a jittered time or on demand.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		newServeCommand(app),
		newRunCommand(app),
		newWorkflowsCommand(app),
		newIPsCommand(app),
	)
	return rootCmd
}

// ExecuteResult is the outcome of one CLI invocation.
type ExecuteResult struct {
	ExitCode int
	Err      error
}

// RunWithConfig wires an [App] from cfg, executes the root command with the
// process arguments and reports the exit code.
func RunWithConfig(cfg *config.Config) ExecuteResult {
	app, err := NewApp(cfg)
	if err != nil {
		return ExecuteResult{ExitCode: 1, Err: err}
	}
	defer app.Close()

	rootCmd := NewRootCommand(app)
	if err := rootCmd.Execute(); err != nil {
		if code, ok := IsExitError(err); ok {
			return ExecuteResult{ExitCode: code, Err: err}
		}
		return ExecuteResult{ExitCode: 1, Err: err}
	}
	return ExecuteResult{ExitCode: 0}
}

// Execute loads the configuration, runs the CLI and exits the process.
func Execute() {
	cfg, err := config.NewLoader().Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	result := RunWithConfig(cfg)
	if result.Err != nil {
		if _, ok := IsExitError(result.Err); !ok {
			fmt.Fprintf(os.Stderr, "Error: %v\n", result.Err)
		}
	}
	os.Exit(result.ExitCode)
}

package cli

import (
	"encoding/json"
	"errors"

	"github.com/spf13/cobra"

	"sessionrotor/internal/history"
	"sessionrotor/internal/workflow"
)

func newRunCommand(app *App) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "run <workflow>",
		Short: "Run a workflow now",
		Long: `Run one workflow immediately and print its report:
  rotate-tracker - refresh the tracker session through a fresh VPN address
  rotate-indexer - refresh the indexer session
  rotate-all     - both, restarting the VPN once

The command exits non-zero unless every step succeeded.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if app.Engine != nil && !asJSON {
				app.Engine.SetProgressCallback(app.Printer.StepStart)
				defer app.Engine.SetProgressCallback(nil)
			}

			report, err := app.Runner.Run(cmd.Context(), args[0])
			if err != nil {
				app.Printer.Error(err.Error())
				if errors.Is(err, workflow.ErrUnknownWorkflow) {
					return NewExitError(2)
				}
				return NewExitError(1)
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(report); err != nil {
					return err
				}
			} else {
				app.Printer.Report(report)
			}

			if report.Overall != history.StatusSuccess {
				return NewExitError(1)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")
	return cmd
}

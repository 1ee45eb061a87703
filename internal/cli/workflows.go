package cli

import "github.com/spf13/cobra"

func newWorkflowsCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "workflows",
		Short: "List the available workflows and their steps",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app.Printer.Workflows(app.Runner.Catalog())
			return nil
		},
	}
}

package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func newServeCommand(app *App) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler and the HTTP control surface",
		Long: `Run the daily scheduler and serve the HTTP control surface until
interrupted. The schedule is restored from the settings document on start.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if app.Server == nil || app.Scheduler == nil {
				app.Printer.Error("server is not configured")
				return NewExitError(1)
			}
			if addr == "" {
				addr = app.Config.Server.ListenAddr
			}

			if err := app.Scheduler.Apply(app.Settings.Snapshot()); err != nil {
				app.Log.WithError(err).Warn("Stored schedule is invalid, scheduler left inactive")
			}
			defer app.Scheduler.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				errCh <- app.Server.Start(addr)
			}()

			select {
			case err := <-errCh:
				if err != nil {
					app.Printer.Error(err.Error())
					return NewExitError(1)
				}
				return nil
			case <-ctx.Done():
			}

			app.Log.Info("Shutting down")
			if err := app.Server.Shutdown(context.Background(), app.Config.Server.ShutdownTimeout); err != nil {
				app.Log.WithError(err).Error("Graceful shutdown failed")
				return NewExitError(1)
			}
			return <-errCh
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.listen_addr)")
	return cmd
}

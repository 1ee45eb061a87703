package cli

import (
	"github.com/spf13/cobra"

	"sessionrotor/internal/ipdetect"
	"sessionrotor/internal/settings"
)

func newIPsCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "ips",
		Short: "Show the external and VPN addresses",
		Long: `Show the host's external address and the VPN exit address read from
the torrent client's log. Exits non-zero when the VPN address is unknown.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logPath := app.Settings.Snapshot().String(settings.KeyVPNLogPath, settings.DefaultVPNLogPath)
			addrs := app.Detector.Detect(cmd.Context(), logPath)
			app.Printer.Addresses(addrs)
			if addrs.VPN == ipdetect.VPNNotFound {
				return NewExitError(1)
			}
			return nil
		},
	}
}

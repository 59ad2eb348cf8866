package cli

import (
	"github.com/spf13/cobra"

	"hilo-forecaster/internal/server"
)

func newServeCmd(app *App) *cobra.Command {
	var addr string
	var noSync bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve forecasts over HTTP",
		Long: `Start the HTTP API (/api/v1/forecast, /backtest, /risk, /motif, /stats, /stream)
with /healthz and /metrics. Rounds are synced into the store in the background unless
--no-sync is set, and every sync with new rounds pushes a forecast to /api/v1/stream.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			svc, err := app.Service(ctx)
			if err != nil {
				return err
			}

			cfg := app.Config.Server
			if addr != "" {
				cfg.Addr = addr
			}
			if cmd.Flags().Changed("lang") {
				cfg.Lang, _ = cmd.Flags().GetString("lang")
			}

			if noSync {
				svc.Hub.Start(ctx)
			} else {
				svc.StartLive(ctx)
			}

			return server.New(svc, cfg, app.Logger).Run(ctx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	cmd.Flags().BoolVar(&noSync, "no-sync", false, "do not sync rounds in the background")
	return cmd
}

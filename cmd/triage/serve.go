package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/stephen-chu/insurance-claims-triage/internal/cli"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP review API",
	Long: `Exposes the claims awaiting review over HTTP, with an SSE event stream and
Prometheus metrics. With --intake, new claims keep being picked up.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		withIntake, _ := cmd.Flags().GetBool("intake")
		return withApp(cmd, func(ctx context.Context, app *cli.App) error {
			port := app.Config.Server.Port
			if cmd.Flags().Changed("port") {
				port, _ = cmd.Flags().GetInt("port")
			}
			return cli.Serve(ctx, app, port, withIntake)
		})
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().IntP("port", "p", 8080, "Port to listen on (overrides server.port)")
	serveCmd.Flags().Bool("intake", false, "Run the intake loop alongside the API")
}

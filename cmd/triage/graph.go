package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/stephen-chu/insurance-claims-triage/internal/cli"
)

// graphCmd represents the graph command
var graphCmd = &cobra.Command{
	Use:   "graph [session-id]",
	Short: "Export the workflow as a Mermaid diagram",
	Long:  `Outputs a Mermaid diagram (graph TD) of the configured tasks, synthesis and review gate. Given a session, its progress is highlighted.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sessionID := ""
		if len(args) > 0 {
			sessionID = args[0]
		}
		return withApp(cmd, func(ctx context.Context, app *cli.App) error {
			return cli.PrintGraph(ctx, app, sessionID, os.Stdout)
		})
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
}

package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/stephen-chu/insurance-claims-triage/internal/cli"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Scan claims and review them interactively",
	Long: `Starts the intake loop over the claims directory and prompts for a review of
every claim that reaches the checkpoint. With --headless, claims are left
suspended for the HTTP API or MCP tools to resolve.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		headless, _ := cmd.Flags().GetBool("headless")
		jsonMode, _ := cmd.Flags().GetBool("json")
		reviewer, _ := cmd.Flags().GetString("reviewer")

		return withApp(cmd, func(ctx context.Context, app *cli.App) error {
			return cli.Run(ctx, app, cli.RunOptions{
				Headless: headless,
				JSON:     jsonMode,
				Reviewer: reviewer,
			}, os.Stdin, os.Stdout)
		})
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().Bool("headless", false, "Run intake only and leave claims suspended for review")
	runCmd.Flags().Bool("json", false, "Review in JSON mode (NDJSON input/output)")
	runCmd.Flags().String("reviewer", os.Getenv("USER"), "Reviewer name recorded on decisions")
	runCmd.MarkFlagsMutuallyExclusive("headless", "json")
}

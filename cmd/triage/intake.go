package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/stephen-chu/insurance-claims-triage/internal/cli"
)

var intakeCmd = &cobra.Command{
	Use:   "intake",
	Short: "Start workflows for new claims without reviewing them",
	RunE: func(cmd *cobra.Command, args []string) error {
		once, _ := cmd.Flags().GetBool("once")
		return withApp(cmd, func(ctx context.Context, app *cli.App) error {
			return cli.Intake(ctx, app, once, os.Stdout)
		})
	},
}

func init() {
	rootCmd.AddCommand(intakeCmd)
	intakeCmd.Flags().Bool("once", false, "Run a single pass and print its report")
}

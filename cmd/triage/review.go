package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/stephen-chu/insurance-claims-triage/internal/cli"
	"github.com/stephen-chu/insurance-claims-triage/pkg/domain"
)

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "List, inspect and resolve claims awaiting review",
}

var reviewLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List claims awaiting review, oldest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")
		return withApp(cmd, func(ctx context.Context, app *cli.App) error {
			return cli.ListPending(ctx, app, os.Stdout, asJSON)
		})
	},
}

var reviewInspectCmd = &cobra.Command{
	Use:   "inspect <session-id>",
	Short: "Inspect a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		return withApp(cmd, func(ctx context.Context, app *cli.App) error {
			return cli.InspectSession(ctx, app, args[0], format, os.Stdout)
		})
	},
}

// newActionCmd builds the approve/reject/edit subcommands.
func newActionCmd(kind domain.ActionKind, short string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   string(kind) + " <session-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reviewer, _ := cmd.Flags().GetString("reviewer")
			comment, _ := cmd.Flags().GetString("comment")
			fields := editFields(cmd)

			return withApp(cmd, func(ctx context.Context, app *cli.App) error {
				return cli.SubmitReview(ctx, app, args[0], string(kind), fields,
					domain.ReviewMeta{Reviewer: reviewer, Comment: comment}, os.Stdout)
			})
		},
	}
	cmd.Flags().String("reviewer", os.Getenv("USER"), "Reviewer name recorded on the decision")
	cmd.Flags().String("comment", "", "Free-text comment recorded on the decision")

	if kind == domain.ActionEdit {
		cmd.Flags().String("outcome", "", "New decision: AUTO-APPROVE, DENY or MANUAL REVIEW")
		cmd.Flags().String("coverage", "", "Override the coverage finding")
		cmd.Flags().String("fraud-risk", "", "Override the fraud risk")
		cmd.Flags().String("damage-estimate", "", "Override the damage estimate")
		cmd.Flags().String("reason", "", "Override the reason")
	}
	return cmd
}

// editFields collects the edit flags the user actually set.
func editFields(cmd *cobra.Command) map[string]any {
	flags := map[string]string{
		"outcome":         "outcome",
		"coverage":        "coverage",
		"fraud-risk":      "fraud_risk",
		"damage-estimate": "damage_estimate",
		"reason":          "reason",
	}
	fields := map[string]any{}
	for flag, field := range flags {
		if f := cmd.Flags().Lookup(flag); f != nil && f.Changed {
			fields[field] = f.Value.String()
		}
	}
	return fields
}

func init() {
	rootCmd.AddCommand(reviewCmd)
	reviewCmd.AddCommand(reviewLsCmd)
	reviewCmd.AddCommand(reviewInspectCmd)
	reviewCmd.AddCommand(newActionCmd(domain.ActionApprove, "Approve the proposed decision"))
	reviewCmd.AddCommand(newActionCmd(domain.ActionReject, "Reject the proposal and send the claim back for re-evaluation"))
	reviewCmd.AddCommand(newActionCmd(domain.ActionEdit, "Approve the proposal with edited fields"))

	reviewLsCmd.Flags().Bool("json", false, "Print the sessions as JSON")
	reviewInspectCmd.Flags().StringP("format", "f", cli.FormatJSON, "Output format: json, markdown or graph")
}

package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/deepnoodle-ai/payflow"
)

func newDecideCommand(ctx *commandContext) *cobra.Command {
	var (
		reviewerID string
		notes      string
	)
	cmd := &cobra.Command{
		Use:   "decide <checkpoint-id> <ACCEPT|REJECT>",
		Short: "Apply a reviewer decision and resume the workflow",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := ctx.open()
			if err != nil {
				return err
			}
			defer deps.Close()

			result, err := deps.svc.SubmitDecision(cmd.Context(), args[0], args[1], reviewerID, notes)
			if err != nil {
				return err
			}

			switch result.Status {
			case payflow.StatusCompleted:
				color.Green("invoice %s accepted and completed (workflow %s)",
					result.InvoiceID, result.WorkflowID)
			case payflow.StatusManualHandoff:
				color.Yellow("invoice %s rejected, handed off for manual processing",
					result.InvoiceID)
			default:
				fmt.Printf("workflow %s finished with status %s\n",
					result.WorkflowID, result.Status)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&reviewerID, "reviewer", "", "reviewer identifier (required)")
	cmd.Flags().StringVar(&notes, "notes", "", "decision notes")
	_ = cmd.MarkFlagRequired("reviewer")
	return cmd
}

package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <checkpoint-id>",
		Short: "Show a suspended workflow's checkpoint detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := ctx.open()
			if err != nil {
				return err
			}
			defer deps.Close()

			detail, err := deps.svc.GetCheckpoint(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			cp := detail.Checkpoint
			fmt.Printf("checkpoint:  %s\n", cp.ID)
			fmt.Printf("workflow:    %s\n", cp.WorkflowID)
			fmt.Printf("status:      %s\n", cp.Status)
			fmt.Printf("created:     %s\n", cp.CreatedAt.Local().Format(time.RFC3339))
			fmt.Printf("reason:      %s\n", cp.PausedReason)
			fmt.Println()
			fmt.Printf("invoice:     %s\n", detail.Invoice.InvoiceID)
			fmt.Printf("vendor:      %s\n", detail.Vendor.NormalizedName)
			fmt.Printf("amount:      %.2f %s\n", detail.Invoice.Amount, detail.Invoice.Currency)
			fmt.Printf("match score: %.2f (%s)\n", detail.MatchScore, detail.Result)
			if cp.Status != "PENDING" {
				fmt.Println()
				fmt.Printf("decision:    %s by %s at %s\n",
					cp.Decision, cp.ReviewerID, cp.DecidedAt.Local().Format(time.RFC3339))
				if cp.Notes != "" {
					fmt.Printf("notes:       %s\n", cp.Notes)
				}
			}
			if len(detail.Errors) > 0 {
				fmt.Println()
				fmt.Println("stage errors:")
				for _, stageErr := range detail.Errors {
					fmt.Printf("  %s: %s\n", stageErr.Stage, stageErr.Message)
				}
			}
			return nil
		},
	}
}

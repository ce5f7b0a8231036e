package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newReviewsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reviews",
		Short: "List invoices pending human review",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := ctx.open()
			if err != nil {
				return err
			}
			defer deps.Close()

			entries, err := deps.svc.ListPendingReviews(cmd.Context())
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Println("no pending reviews")
				return nil
			}

			rows := make([][]string, 0, len(entries))
			for _, entry := range entries {
				rows = append(rows, []string{
					entry.CheckpointID,
					entry.InvoiceID,
					entry.VendorName,
					fmt.Sprintf("%.2f %s", entry.Amount, entry.Currency),
					entry.ReasonForHold,
					entry.CreatedAt.Local().Format(time.RFC3339),
				})
			}
			fmt.Println(renderTable(
				[]string{"CHECKPOINT", "INVOICE", "VENDOR", "AMOUNT", "REASON", "CREATED"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
			))
			return nil
		},
	}
}

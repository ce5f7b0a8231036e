package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newDecisionsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "decisions",
		Short: "List resolved reviews, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := ctx.open()
			if err != nil {
				return err
			}
			defer deps.Close()

			records, err := deps.svc.DecisionHistory(cmd.Context())
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Println("no resolved reviews")
				return nil
			}

			rows := make([][]string, 0, len(records))
			for _, record := range records {
				rows = append(rows, []string{
					record.CheckpointID,
					record.InvoiceID,
					record.VendorName,
					fmt.Sprintf("%.2f %s", record.Amount, record.Currency),
					string(record.Decision),
					record.ReviewerID,
					record.DecidedAt.Local().Format(time.RFC3339),
				})
			}
			fmt.Println(renderTable(
				[]string{"CHECKPOINT", "INVOICE", "VENDOR", "AMOUNT", "DECISION", "REVIEWER", "DECIDED"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft, alignLeft},
			))
			return nil
		},
	}
}

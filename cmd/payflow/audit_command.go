package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newAuditCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "audit <workflow-id>",
		Short: "Show the audit trail for a workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := ctx.open()
			if err != nil {
				return err
			}
			defer deps.Close()

			entries, err := deps.svc.GetAuditLog(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Println("no audit entries")
				return nil
			}

			rows := make([][]string, 0, len(entries))
			for _, entry := range entries {
				details := ""
				if len(entry.Details) > 0 {
					data, err := json.Marshal(entry.Details)
					if err == nil {
						details = string(data)
					}
				}
				rows = append(rows, []string{
					entry.Timestamp.Local().Format(time.RFC3339),
					entry.Stage,
					entry.Action,
					details,
				})
			}
			fmt.Println(renderTable(
				[]string{"TIME", "STAGE", "ACTION", "DETAILS"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft},
			))
			return nil
		},
	}
}

package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

func newSelectionsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "selections",
		Short: "Show tool selection history for this process",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := ctx.open()
			if err != nil {
				return err
			}
			defer deps.Close()

			records := deps.svc.SelectionHistory()
			if len(records) == 0 {
				fmt.Println("no tool selections recorded")
				return nil
			}

			rows := make([][]string, 0, len(records))
			for _, record := range records {
				rows = append(rows, []string{
					record.Capability,
					record.Selected,
					string(record.Priority),
					strconv.Itoa(record.PoolSize),
					record.ChosenAt.Local().Format(time.RFC3339),
				})
			}
			fmt.Println(renderTable(
				[]string{"CAPABILITY", "SELECTED", "PRIORITY", "POOL", "CHOSEN"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
			))
			return nil
		},
	}
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newGraphCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "graph",
		Short: "Print the pipeline stage graph",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := ctx.open()
			if err != nil {
				return err
			}
			defer deps.Close()

			fmt.Print(deps.pipeline.Describe())
			return nil
		},
	}
}

package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/deepnoodle-ai/payflow"
)

func newProcessCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "process <invoice-file>",
		Short: "Run an invoice through the processing pipeline",
		Long: "Run an invoice (YAML or JSON) through the processing pipeline. " +
			"An invoice failing two-way match suspends for human review; use " +
			"'payflow reviews' and 'payflow decide' to resolve it.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := loadInvoice(args[0])
			if err != nil {
				return err
			}

			deps, err := ctx.open()
			if err != nil {
				return err
			}
			defer deps.Close()

			result, err := deps.svc.Submit(cmd.Context(), payload)
			if err != nil {
				return err
			}

			switch result.Status {
			case payflow.StatusCompleted:
				color.Green("invoice %s completed (workflow %s)", result.InvoiceID, result.WorkflowID)
				if score, ok := result.State.MatchScore(); ok {
					fmt.Printf("match score: %.2f\n", score)
				}
			case payflow.StatusPending:
				color.Yellow("invoice %s held for review", result.InvoiceID)
				fmt.Printf("checkpoint: %s\n", result.CheckpointID)
				fmt.Printf("review url: %s\n", result.ReviewURL)
				fmt.Printf("reason:     %s\n", result.State.PausedReason())
			default:
				color.Red("invoice %s finished with status %s", result.InvoiceID, result.Status)
			}
			return nil
		},
	}
}

func loadInvoice(path string) (payflow.InvoicePayload, error) {
	var payload payflow.InvoicePayload
	data, err := os.ReadFile(path)
	if err != nil {
		return payload, fmt.Errorf("read invoice file: %w", err)
	}
	if err := yaml.Unmarshal(data, &payload); err != nil {
		return payload, fmt.Errorf("parse invoice file: %w", err)
	}
	return payload, nil
}

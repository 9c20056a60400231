package main

import (
	"fmt"
	"io"
	"maps"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/dshills/stepwise/internal/journal"
)

func newInspectCmd() *cobra.Command {
	var stepID string
	cmd := &cobra.Command{
		Use:   "inspect journal.json",
		Short: "Summarize a journal written by run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read journal: %w", err)
			}
			if stepID != "" {
				step, ok := journal.Step(data, stepID)
				if !ok {
					return fmt.Errorf("step %s not found", stepID)
				}
				_, err := fmt.Fprintln(cmd.OutOrStdout(), step.Raw)
				return err
			}
			summary, err := journal.Summarize(data)
			if err != nil {
				return err
			}
			return printSummary(cmd.OutOrStdout(), summary)
		},
	}
	cmd.Flags().StringVar(&stepID, "step", "", "Print the step with this id")
	return cmd
}

func printSummary(w io.Writer, s journal.Summary) error {
	fmt.Fprintf(w, "document: %s (journal v%d)\n", s.Document, s.Version)
	fmt.Fprintf(w, "steps: %d, entries: %d\n", s.Steps, s.Entries)
	for i, label := range s.Labels {
		fmt.Fprintf(w, "  %3d  %s\n", i+1, label)
	}
	for _, op := range slices.Sorted(maps.Keys(s.Ops)) {
		fmt.Fprintf(w, "  op %-16s %d\n", op, s.Ops[op])
	}
	return nil
}

package main

import (
	"github.com/spf13/cobra"
)

// newRootCmd builds the command tree.
func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "stepwise",
		Short: "Stepwise runs scene scripts against a transactional undo engine",
		Long: `Stepwise edits scene documents through Lua scripts. Every change is
recorded in an undo history that can be replayed, inspected, and exported
as a JSON journal.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Persistent flags (available to all commands)
	root.PersistentFlags().StringP("config", "c", "", "Path to configuration file (.toml, .yaml)")
	root.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")

	root.AddCommand(newRunCmd(), newInspectCmd(), newVersionCmd())
	return root
}

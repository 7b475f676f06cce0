// Package cli implements the verstorectl command tree.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/verstore/verstore/internal/app"
)

var appInstance *app.App

var rootCmd = &cobra.Command{
	Use:   "verstorectl",
	Short: "Manage versioned records and their history tables",
	Long: `Verstorectl works with versioned record types: every qualifying save of a
record is snapshotted into a companion history table. Use subcommands to
migrate the schema, inspect and revert history, and export it to files.`,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// SetApp sets the app instance for commands to use
func SetApp(a *app.App) {
	appInstance = a
}

func init() {
	rootCmd.AddCommand(typesCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(recordsCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(revertCmd)
	rootCmd.AddCommand(exportCmd)
}

package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/verstore/verstore/internal/db"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply base migrations and create history tables",
	Long: `Runs the base SQL migrations, then brings the versioning schema of every
configured type up to date: the version column on the live table, the history
table and its owner index. All statements are idempotent, so migrate can be
re-run safely.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := db.RunMigrations(appInstance.Config.Database, appInstance.Config.MigrationsPath); err != nil {
			return fmt.Errorf("run base migrations: %w", err)
		}
		fmt.Println("✓ Base migrations applied")

		for _, tc := range appInstance.Config.Types {
			name := tc.Name
			if name == "" {
				name = tc.Table
			}
			store, err := appInstance.Store(name)
			if err != nil {
				return err
			}
			if err := store.CreateRecordTable(ctx); err != nil {
				return fmt.Errorf("create record table for %s: %w", name, err)
			}
			versioned, err := store.HasVersionColumn(ctx)
			if err != nil {
				return fmt.Errorf("inspect record table for %s: %w", name, err)
			}
			if err := store.CreateVersionedTable(ctx); err != nil {
				return fmt.Errorf("create versioned table for %s: %w", name, err)
			}
			if versioned {
				fmt.Printf("✓ Versioning schema already present for %s\n", name)
			} else {
				fmt.Printf("✓ Versioning schema created for %s\n", name)
			}
		}
		return nil
	},
}

var migrateDropCmd = &cobra.Command{
	Use:   "drop [type]",
	Short: "Drop the history table of a versioned type",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		confirmed, _ := cmd.Flags().GetBool("yes")
		if !confirmed {
			return fmt.Errorf("dropping a history table destroys all snapshots; re-run with --yes to confirm")
		}
		store, err := appInstance.Store(args[0])
		if err != nil {
			return err
		}
		if err := store.DropVersionedTable(cmd.Context()); err != nil {
			return fmt.Errorf("drop versioned table: %w", err)
		}
		fmt.Printf("✓ History table of %s dropped\n", args[0])
		return nil
	},
}

func init() {
	migrateCmd.AddCommand(migrateDropCmd)
	migrateDropCmd.Flags().Bool("yes", false, "Confirm the destructive drop")
}

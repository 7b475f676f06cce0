package cli

import (
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var revertCmd = &cobra.Command{
	Use:   "revert [type] [id] [version]",
	Short: "Revert a record to a prior version",
	Long: `Reverts the record's versioned fields to the given snapshot and saves the
result. The reverting save is suppressed: it writes no new snapshot and
bypasses optimistic locking, so the history stays exactly as it was.`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		store, err := appInstance.Store(args[0])
		if err != nil {
			return err
		}
		id, err := uuid.Parse(args[1])
		if err != nil {
			return fmt.Errorf("invalid record ID: %w", err)
		}
		version, err := strconv.ParseInt(args[2], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid version number: %w", err)
		}

		rec, err := store.Get(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to get record: %w", err)
		}

		dryRun, _ := cmd.Flags().GetBool("dry-run")
		if dryRun {
			if !store.RevertTo(ctx, &rec, version) {
				return fmt.Errorf("version %d not found for record %s", version, id)
			}
			fmt.Printf("Record %s at version %d (not saved):\n", id, version)
			return printRecord(rec)
		}

		if !store.RevertToAndSave(ctx, &rec, version) {
			return fmt.Errorf("revert of record %s to version %d failed", id, version)
		}
		fmt.Printf("✓ Record %s reverted to version %d\n", id, version)
		return nil
	},
}

func init() {
	revertCmd.Flags().Bool("dry-run", false, "Show the reverted state without saving it")
}

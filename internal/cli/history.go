package cli

import (
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history [type] [id]",
	Short: "Show the snapshot history of a record",
	Args:  cobra.ExactArgs(2),
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

		if cmd.Flags().Changed("at") {
			version, _ := cmd.Flags().GetInt64("at")
			vr, err := store.VersionAt(ctx, id, version)
			if err != nil {
				return fmt.Errorf("failed to get version %d: %w", version, err)
			}
			for _, column := range store.VersionedColumns() {
				fmt.Printf("%-20s %v\n", column.Name, vr.Fields[column.Name])
			}
			return nil
		}

		history, err := store.History(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to get history: %w", err)
		}
		if len(history) == 0 {
			fmt.Println("No history for this record")
			return nil
		}

		def := store.Definition()
		fmt.Printf("History of %s (%d snapshots):\n\n", id, len(history))
		fmt.Printf("%-8s %-20s %s\n", "VERSION", "CREATED", "TYPE")
		for _, vr := range history {
			versionedType := "-"
			if def.Discriminator != "" && vr.VersionedType != "" {
				versionedType = vr.VersionedType
			}
			fmt.Printf("%-8s %-20s %s\n",
				strconv.FormatInt(vr.Version, 10),
				vr.CreatedAt.Format("2006-01-02 15:04:05"),
				versionedType,
			)
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().Int64("at", 0, "Show the fields of one version instead of the list")
}

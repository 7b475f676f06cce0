package cli

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/verstore/verstore/internal/export"
)

var exportCmd = &cobra.Command{
	Use:   "export [type] [id]",
	Short: "Export the snapshot history of a record to a file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(args[1])
		if err != nil {
			return fmt.Errorf("invalid record ID: %w", err)
		}
		formatName, _ := cmd.Flags().GetString("format")
		format, err := export.ParseFormat(formatName)
		if err != nil {
			return err
		}

		service, err := appInstance.Exporter(args[0])
		if err != nil {
			return err
		}
		result, err := service.ExportHistory(cmd.Context(), id, format)
		if err != nil {
			return fmt.Errorf("export failed: %w", err)
		}
		fmt.Printf("✓ Exported %d snapshots (%d bytes) to %s\n", result.Rows, result.Bytes, result.Path)
		return nil
	},
}

func init() {
	exportCmd.Flags().String("format", "csv", "Output format: csv or xlsx")
}

package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/verstore/verstore/internal/domain"
	"github.com/verstore/verstore/internal/ingestion"
)

var recordsCmd = &cobra.Command{
	Use:   "records",
	Short: "Read and write versioned records",
}

var recordsGetCmd = &cobra.Command{
	Use:   "get [type] [id]",
	Short: "Print a record as JSON",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := appInstance.Store(args[0])
		if err != nil {
			return err
		}
		id, err := uuid.Parse(args[1])
		if err != nil {
			return fmt.Errorf("invalid record ID: %w", err)
		}
		rec, err := store.Get(cmd.Context(), id)
		if err != nil {
			return fmt.Errorf("failed to get record: %w", err)
		}
		return printRecord(rec)
	},
}

var recordsSetCmd = &cobra.Command{
	Use:   "set [type] [id|new]",
	Short: "Create or update a record, snapshotting when the save qualifies",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		store, err := appInstance.Store(args[0])
		if err != nil {
			return err
		}

		fieldsJSON, _ := cmd.Flags().GetString("fields")
		if fieldsJSON == "" {
			return fmt.Errorf("--fields is required")
		}
		var fields map[string]any
		if err := json.Unmarshal([]byte(fieldsJSON), &fields); err != nil {
			return fmt.Errorf("invalid --fields JSON: %w", err)
		}

		var rec domain.Record
		if args[1] == "new" {
			rec = domain.NewRecord(fields)
		} else {
			id, err := uuid.Parse(args[1])
			if err != nil {
				return fmt.Errorf("invalid record ID: %w", err)
			}
			rec, err = store.Get(ctx, id)
			if err != nil {
				return fmt.Errorf("failed to get record: %w", err)
			}
			rec = rec.WithFields(fields)
		}
		if cmd.Flags().Changed("as") {
			rec.Type, _ = cmd.Flags().GetString("as")
		}

		suppressed, _ := cmd.Flags().GetBool("no-versioning")
		if suppressed {
			err = store.SaveSuppressed(ctx, &rec)
		} else {
			err = store.Save(ctx, &rec)
		}
		if err != nil {
			return fmt.Errorf("failed to save record: %w", err)
		}
		fmt.Printf("✓ Record saved (id: %s, version: %d)\n", rec.ID, rec.Version)
		return nil
	},
}

var recordsDeleteCmd = &cobra.Command{
	Use:   "delete [type] [id]",
	Short: "Delete a record and all of its snapshots",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := appInstance.Store(args[0])
		if err != nil {
			return err
		}
		id, err := uuid.Parse(args[1])
		if err != nil {
			return fmt.Errorf("invalid record ID: %w", err)
		}
		if err := store.Delete(cmd.Context(), id); err != nil {
			return fmt.Errorf("failed to delete record: %w", err)
		}
		fmt.Printf("✓ Record deleted (id: %s)\n", id)
		return nil
	},
}

var recordsImportCmd = &cobra.Command{
	Use:   "import [type] [file]",
	Short: "Bulk-import records from a CSV or XLSX file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := appInstance.Store(args[0])
		if err != nil {
			return err
		}
		file, err := os.Open(args[1])
		if err != nil {
			return fmt.Errorf("open import file: %w", err)
		}
		defer file.Close()

		result, err := ingestion.NewService(store).Import(cmd.Context(), args[1], file)
		if err != nil {
			return fmt.Errorf("import failed: %w", err)
		}
		fmt.Printf("✓ Imported %d of %d rows\n", result.Imported, result.TotalRows)
		for _, column := range result.SkippedColumns {
			fmt.Printf("  skipped column: %s\n", column)
		}
		for _, rowErr := range result.RowErrors {
			fmt.Printf("  row %d: %s\n", rowErr.Row, rowErr.Message)
		}
		if len(result.RowErrors) > 0 {
			return fmt.Errorf("%d rows were rejected", len(result.RowErrors))
		}
		return nil
	},
}

func init() {
	recordsCmd.AddCommand(recordsGetCmd)
	recordsCmd.AddCommand(recordsSetCmd)
	recordsCmd.AddCommand(recordsDeleteCmd)
	recordsCmd.AddCommand(recordsImportCmd)

	recordsSetCmd.Flags().String("fields", "", "Field values as a JSON object (required)")
	recordsSetCmd.Flags().String("as", "", "Discriminator value for the record")
	recordsSetCmd.Flags().Bool("no-versioning", false, "Save without snapshotting or lock enforcement")
}

func printRecord(rec domain.Record) error {
	payload := map[string]any{
		"id":      rec.ID,
		"version": rec.Version,
		"fields":  rec.Fields,
	}
	if rec.Type != "" {
		payload["type"] = rec.Type
	}
	encoded, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	fmt.Println(string(encoded))
	return nil
}

package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var typesCmd = &cobra.Command{
	Use:   "types",
	Short: "List configured versioned types",
	RunE: func(cmd *cobra.Command, args []string) error {
		types := appInstance.Config.Types
		if len(types) == 0 {
			fmt.Println("No versioned types configured")
			return nil
		}

		fmt.Printf("%-15s %-20s %-25s %-8s %-6s\n", "NAME", "TABLE", "HISTORY TABLE", "LOCKING", "LIMIT")
		for _, tc := range types {
			def, err := tc.Definition()
			if err != nil {
				return err
			}
			normalized, err := def.Normalize()
			if err != nil {
				return err
			}
			limit := "all"
			if tc.Limit > 0 {
				limit = fmt.Sprintf("%d", tc.Limit)
			}
			fmt.Printf("%-15s %-20s %-25s %-8v %-6s\n",
				normalized.Name, normalized.Table, normalized.HistoryTable, normalized.Locking, limit)
		}
		return nil
	},
}

package cmd

import (
	"github.com/spf13/cobra"

	"hotelqa/internal/etl"
)

var mergeCmd = &cobra.Command{
	Use:   "merge OUT IN...",
	Short: "Merge several SQLite databases into one",
	Long: `Copy every table of the input databases into OUT. OUT is replaced.
When two inputs share a table name, the later input wins.

Example:
  hotelqa merge hotel_operations.db cleaning.db service.db payroll.db`,
	Args: cobra.MinimumNArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		report, err := etl.MergeDatabases(cmd.Context(), args[0], args[1:], logger)
		if err != nil {
			HandleError(err, "Failed to merge databases")
		}
		printReport(cmd.OutOrStdout(), report)
	},
}

func init() {
	rootCmd.AddCommand(mergeCmd)
}

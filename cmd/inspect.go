package cmd

import (
	"github.com/spf13/cobra"

	"hotelqa/internal/store"
)

var (
	inspectLimit  int
	inspectSearch string
	inspectCSV    bool
	inspectFormat string
)

var inspectCmd = &cobra.Command{
	Use:   "inspect TABLE",
	Short: "Preview, search or export one table",
	Long: `Show the first rows of a table, or the rows where any column contains
the search term (case-insensitive). With --csv the whole table is written
to stdout as CSV.

Example:
  hotelqa inspect staff
  hotelqa inspect service_requests --search towel --limit 50
  hotelqa inspect payroll --csv > payroll.csv`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		db := openStore(ctx)
		defer db.Close()

		table := args[0]
		out := cmd.OutOrStdout()
		if inspectCSV {
			if err := db.ExportCSV(ctx, table, out); err != nil {
				HandleError(err, "Failed to export table")
			}
			return
		}

		var (
			res *store.Result
			err error
		)
		if inspectSearch != "" {
			res, err = db.Search(ctx, table, inspectSearch, inspectLimit)
		} else {
			res, err = db.Preview(ctx, table, inspectLimit)
		}
		if err != nil {
			HandleError(err, "Failed to read table")
		}

		if err := writeResult(out, res, inspectFormat); err != nil {
			HandleError(err, "Failed to write output")
		}
	},
}

func init() {
	inspectCmd.Flags().IntVarP(&inspectLimit, "limit", "l", 20, "Maximum number of rows")
	inspectCmd.Flags().StringVarP(&inspectSearch, "search", "s", "", "Only rows where any column contains this text")
	inspectCmd.Flags().BoolVar(&inspectCSV, "csv", false, "Export the whole table as CSV")
	inspectCmd.Flags().StringVarP(&inspectFormat, "format", "f", formatTable, "Output format: table, json, csv or md")
	rootCmd.AddCommand(inspectCmd)
}

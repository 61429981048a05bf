package cmd

import (
	"errors"

	"github.com/spf13/cobra"

	"hotelqa/internal/sqlfix"
)

var (
	querySQL      string
	queryFormat   string
	queryVerbatim bool
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Execute a SQL query against the database",
	Long: `Execute a SQL query and print the results.

The statement is rewritten for SQLite first (ILIKE, EXTRACT, ::DATE casts and
quoted identifiers), the same way generated SQL is. Statements that modify
the database are refused unless --allow-writes is set.

Example:
  hotelqa query --sql "SELECT prop_id, COUNT(*) FROM staff GROUP BY prop_id"
  hotelqa query -q "SELECT * FROM payroll" --format csv`,
	Run: func(cmd *cobra.Command, args []string) {
		if querySQL == "" {
			HandleError(errors.New("no query given"), "Missing --sql flag")
		}

		ctx := cmd.Context()
		db := openStore(ctx)
		defer db.Close()

		sql := querySQL
		if !queryVerbatim {
			sql = sqlfix.Normalize(sql)
		}
		res, err := db.Query(ctx, sql)
		if err != nil {
			HandleError(err, "Failed to execute query")
		}

		if err := writeResult(cmd.OutOrStdout(), res, queryFormat); err != nil {
			HandleError(err, "Failed to write output")
		}
	},
}

func init() {
	queryCmd.Flags().StringVarP(&querySQL, "sql", "q", "", "SQL query to execute")
	queryCmd.Flags().StringVarP(&queryFormat, "format", "f", formatTable, "Output format: table, json, csv or md")
	queryCmd.Flags().BoolVar(&queryVerbatim, "verbatim", false, "Run the statement without dialect rewriting")
	rootCmd.AddCommand(queryCmd)
}

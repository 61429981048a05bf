package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"hotelqa/internal/store"
)

var (
	schemaJSON bool
	tablesJSON bool
)

// TableInfo is one line of the tables listing.
type TableInfo struct {
	Name string `json:"table_name"`
	Rows int64  `json:"row_count"`
}

var tablesCmd = &cobra.Command{
	Use:   "tables",
	Short: "List the tables in the database with their row counts",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		db := openStore(ctx)
		defer db.Close()

		names, err := db.Tables(ctx)
		if err != nil {
			HandleError(err, "Failed to list tables")
		}

		infos := make([]TableInfo, 0, len(names))
		for _, name := range names {
			res, err := db.Query(ctx, "SELECT COUNT(*) FROM "+store.QuoteIdent(name))
			if err != nil {
				HandleError(err, "Failed to count rows")
			}
			n, _ := res.Rows[0][0].(int64)
			infos = append(infos, TableInfo{Name: name, Rows: n})
		}

		out := cmd.OutOrStdout()
		if tablesJSON {
			if err := writeJSON(out, infos); err != nil {
				HandleError(err, "Failed to write output")
			}
			return
		}

		t := newTable(out)
		t.AppendHeader([]any{"Table", "Rows"})
		for _, info := range infos {
			t.AppendRow([]any{info.Name, info.Rows})
		}
		t.Render()
	},
}

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Show the database schema",
	Long: `Show every table with its columns, in the form the text-to-SQL prompt
uses. With --json, print column types and keys as well.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		db := openStore(ctx)
		defer db.Close()

		tables, err := db.Schema(ctx)
		if err != nil {
			HandleError(err, "Failed to read schema")
		}

		out := cmd.OutOrStdout()
		if schemaJSON {
			if err := writeJSON(out, tables); err != nil {
				HandleError(err, "Failed to write output")
			}
			return
		}
		fmt.Fprint(out, store.RenderSchema(tables))
	},
}

func init() {
	tablesCmd.Flags().BoolVar(&tablesJSON, "json", false, "Output as JSON")
	schemaCmd.Flags().BoolVar(&schemaJSON, "json", false, "Output as JSON")
	rootCmd.AddCommand(tablesCmd)
	rootCmd.AddCommand(schemaCmd)
}

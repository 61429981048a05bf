package cmd

import (
	"github.com/spf13/cobra"
)

var (
	historyLimit int
	historyJSON  bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recently asked questions and the SQL generated for them",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		db := openStore(ctx)
		defer db.Close()

		entries, err := db.History(ctx, historyLimit)
		if err != nil {
			HandleError(err, "Failed to load history")
		}

		out := cmd.OutOrStdout()
		if historyJSON {
			if err := writeJSON(out, entries); err != nil {
				HandleError(err, "Failed to write output")
			}
			return
		}

		t := newTable(out)
		t.AppendHeader([]any{"Asked", "Question", "SQL", "Rows", "Error"})
		for _, e := range entries {
			t.AppendRow([]any{e.CreatedAt, e.Question, e.SQL, e.RowCount, e.Error})
		}
		t.Render()
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "l", 20, "Number of entries to show")
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "Output as JSON")
	rootCmd.AddCommand(historyCmd)
}

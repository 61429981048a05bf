package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"hotelqa/internal/config"
	"hotelqa/internal/etl"
	"hotelqa/internal/store"
)

var loadWatch bool

var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "Load CSV exports from the data directory into the database",
	Long: `Load every CSV export in the data directory into the database.

In normalized mode (the default) the exports are mapped onto the curated
schema (properties, staff, payroll, cleaning_orders, service_requests) and
every row is tagged with its property. In raw mode each CSV becomes one table
named after the file with cleaned column names.

Files that fail to load are skipped and reported; the rest are kept.

Example:
  hotelqa load --data-dir exports/
  hotelqa load --mode raw
  hotelqa load --mapping mapping.yaml --watch`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		db := openStore(ctx)
		defer db.Close()

		out := cmd.OutOrStdout()
		reload := func(ctx context.Context) error {
			report, err := runLoad(ctx, db)
			if report != nil {
				printReport(out, report)
			}
			return err
		}

		if err := reload(ctx); err != nil {
			HandleError(err, "Failed to load CSV files")
		}
		if !loadWatch {
			return
		}

		fmt.Fprintf(out, "Watching %s for CSV changes (ctrl+c to stop)\n", cfg.DataDir)
		err := etl.Watch(ctx, cfg.DataDir, cfg.Load.Debounce, logger, reload)
		if err != nil && !errors.Is(err, context.Canceled) {
			HandleError(err, "Watch failed")
		}
	},
}

// runLoad loads cfg.DataDir in the configured mode.
func runLoad(ctx context.Context, db *store.DB) (*etl.Report, error) {
	if cfg.Load.Mode == config.ModeRaw {
		return etl.LoadRaw(ctx, db, cfg.DataDir, logger)
	}

	mapping, err := etl.LoadMapping(cfg.Load.Mapping)
	if err != nil {
		return nil, err
	}
	return etl.LoadNormalized(ctx, db, cfg.DataDir, mapping, logger)
}

func printReport(w io.Writer, report *etl.Report) {
	t := newTable(w)
	t.AppendHeader([]any{"Table", "Rows"})
	for _, name := range report.TableNames() {
		t.AppendRow([]any{name, report.Tables[name]})
	}
	if len(report.Tables) > 0 {
		t.Render()
	}
	for _, s := range report.Skipped {
		fmt.Fprintf(w, "Skipped %s: %v\n", s.File, s.Err)
	}
}

func init() {
	loadCmd.Flags().String("mode", config.ModeNormalized, "Load mode: normalized or raw")
	loadCmd.Flags().String("mapping", "", "YAML file describing sources and properties (normalized mode)")
	loadCmd.Flags().BoolVarP(&loadWatch, "watch", "w", false, "Reload whenever a CSV file in the data directory changes")
	rootCmd.AddCommand(loadCmd)
}

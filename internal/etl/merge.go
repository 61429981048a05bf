package etl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"hotelqa/internal/store"
)

// MergeDatabases writes out as a copy of the first input, then replaces every
// table of each further input in it. Later inputs win on name clashes. Migration
// and history tables only ever come from the first input.
func MergeDatabases(ctx context.Context, out string, inputs []string, logger *slog.Logger) (*Report, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if len(inputs) == 0 {
		return nil, errors.New("merge needs at least one input database")
	}

	if err := os.Remove(out); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to remove %s: %w", out, err)
	}
	if err := copyFile(inputs[0], out); err != nil {
		return nil, err
	}

	db, err := store.Open(out, store.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	defer db.Close()

	report := newReport()
	base, err := db.Tables(ctx)
	if err != nil {
		return nil, err
	}
	for _, t := range base {
		report.Tables[t] = 0
	}

	conn := db.Conn()
	for _, in := range inputs[1:] {
		if _, err := conn.ExecContext(ctx, "ATTACH DATABASE ? AS src", in); err != nil {
			return nil, fmt.Errorf("failed to attach %s: %w", in, err)
		}

		var tables []string
		err := conn.SelectContext(ctx, &tables,
			`SELECT name FROM src.sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
		if err == nil {
			for _, t := range tables {
				if store.IsBookkeeping(t) {
					continue
				}
				q := store.QuoteIdent(t)
				if _, err = conn.ExecContext(ctx, "DROP TABLE IF EXISTS main."+q); err != nil {
					break
				}
				if _, err = conn.ExecContext(ctx, "CREATE TABLE main."+q+" AS SELECT * FROM src."+q); err != nil {
					break
				}
				report.Tables[t] = 0
				logger.Info("Merged table", "table", t, "from", in)
			}
		}

		if _, detachErr := conn.ExecContext(ctx, "DETACH DATABASE src"); detachErr != nil && err == nil {
			err = detachErr
		}
		if err != nil {
			return nil, fmt.Errorf("failed to merge %s: %w", in, err)
		}
	}

	for t := range report.Tables {
		n, err := db.Query(ctx, "SELECT COUNT(*) FROM "+store.QuoteIdent(t))
		if err != nil {
			return nil, err
		}
		if v, ok := n.Rows[0][0].(int64); ok {
			report.Tables[t] = int(v)
		}
	}
	return report, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("failed to copy %s: %w", src, err)
	}
	return out.Close()
}

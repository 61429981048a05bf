package etl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"
	"golang.org/x/sync/errgroup"

	"hotelqa/internal/store"
)

// ErrNoCSV is returned when a directory holds no CSV exports.
var ErrNoCSV = errors.New("no CSV files found")

// Skipped is a file that could not be loaded.
type Skipped struct {
	File string
	Err  error
}

// Report summarizes a load.
type Report struct {
	Tables  map[string]int // rows written per table
	Skipped []Skipped
}

func newReport() *Report {
	return &Report{Tables: make(map[string]int)}
}

func (r *Report) skip(logger *slog.Logger, file string, err error) {
	logger.Warn("Skipping file", "file", file, "error", err)
	r.Skipped = append(r.Skipped, Skipped{File: file, Err: err})
}

// TableNames returns the loaded tables in name order.
func (r *Report) TableNames() []string {
	names := make([]string, 0, len(r.Tables))
	for name := range r.Tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func csvFiles(dir string) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.csv"))
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoCSV, dir)
	}
	sort.Strings(files)
	return files, nil
}

// readSheets parses files concurrently. Per-file errors are returned in the
// matching slot rather than failing the group.
func readSheets(ctx context.Context, files []string) ([]*sheet, []error, error) {
	sheets := make([]*sheet, len(files))
	errs := make([]error, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for i, file := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			sheets[i], errs[i] = readSheet(file)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return sheets, errs, nil
}

// LoadRaw replaces one table per CSV file in dir. Files that fail to parse or
// write are reported and skipped; the rest are committed together.
func LoadRaw(ctx context.Context, db *store.DB, dir string, logger *slog.Logger) (*Report, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	files, err := csvFiles(dir)
	if err != nil {
		return nil, err
	}
	sheets, errs, err := readSheets(ctx, files)
	if err != nil {
		return nil, err
	}

	tx, err := db.Conn().BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	report := newReport()
	for i, sh := range sheets {
		if errs[i] != nil {
			report.skip(logger, files[i], errs[i])
			continue
		}
		table := TableNameForFile(files[i])
		if err := inSavepoint(ctx, tx, func() error {
			return writeRawTable(ctx, tx, table, sh)
		}); err != nil {
			report.skip(logger, files[i], err)
			continue
		}
		report.Tables[table] = len(sh.Rows)
		logger.Info("Loaded table", "table", table, "file", files[i], "rows", len(sh.Rows))
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit load: %w", err)
	}
	return report, nil
}

// inSavepoint undoes fn's writes if it fails, keeping the outer transaction usable.
func inSavepoint(ctx context.Context, tx *sqlx.Tx, fn func() error) error {
	if _, err := tx.ExecContext(ctx, "SAVEPOINT load_file"); err != nil {
		return err
	}
	if err := fn(); err != nil {
		if _, rbErr := tx.ExecContext(ctx, "ROLLBACK TO load_file"); rbErr != nil {
			return errors.Join(err, rbErr)
		}
		_, _ = tx.ExecContext(ctx, "RELEASE load_file")
		return err
	}
	_, err := tx.ExecContext(ctx, "RELEASE load_file")
	return err
}

func writeRawTable(ctx context.Context, tx *sqlx.Tx, table string, sh *sheet) error {
	quoted := store.QuoteIdent(table)
	defs := make([]string, len(sh.Header))
	for i, col := range sh.Header {
		defs[i] = store.QuoteIdent(col) + " " + inferType(sh.Rows, i)
	}

	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+quoted); err != nil {
		return fmt.Errorf("failed to drop %s: %w", table, err)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("CREATE TABLE %s (%s)", quoted, strings.Join(defs, ", "))); err != nil {
		return fmt.Errorf("failed to create %s: %w", table, err)
	}

	insert := fmt.Sprintf("INSERT INTO %s VALUES (%s)", quoted, placeholders(len(sh.Header)))
	stmt, err := tx.PreparexContext(ctx, insert)
	if err != nil {
		return fmt.Errorf("failed to prepare insert for %s: %w", table, err)
	}
	defer stmt.Close()

	args := make([]any, len(sh.Header))
	for n, row := range sh.Rows {
		for i, v := range row {
			args[i] = nullable(v)
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("failed to insert row %d into %s: %w", n+1, table, err)
		}
	}
	return nil
}

// inferType picks the narrowest affinity every non-empty cell of column fits.
// A column with no values is TEXT.
func inferType(rows [][]string, column int) string {
	isInt, isReal, seen := true, true, false
	for _, row := range rows {
		v := strings.TrimSpace(row[column])
		if v == "" {
			continue
		}
		seen = true
		if isInt {
			if _, err := strconv.ParseInt(v, 10, 64); err != nil {
				isInt = false
			}
		}
		if !isInt && isReal {
			if _, err := strconv.ParseFloat(v, 64); err != nil || strings.ContainsAny(v, "nNiIxX") {
				isReal = false
			}
		}
		if !isInt && !isReal {
			break
		}
	}
	switch {
	case !seen:
		return "TEXT"
	case isInt:
		return "INTEGER"
	case isReal:
		return "REAL"
	default:
		return "TEXT"
	}
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

package etl

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/jmoiron/sqlx"

	"hotelqa/internal/store"
)

//go:embed schema.sql
var schemaSQL string

//go:embed derive.sql
var deriveSQL string

// LoadNormalized rebuilds the curated schema in db from the exports in dir as
// described by m. A nil mapping uses DefaultMapping. Sources whose file is
// missing or whose columns do not match are reported and skipped.
func LoadNormalized(ctx context.Context, db *store.DB, dir string, m *Mapping, logger *slog.Logger) (*Report, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if m == nil {
		m = DefaultMapping()
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}

	report := newReport()

	var files, paths []string
	for _, file := range m.Files() {
		path := filepath.Join(dir, file)
		if _, err := os.Stat(path); err != nil {
			report.skip(logger, file, err)
			continue
		}
		files = append(files, file)
		paths = append(paths, path)
	}
	sheets, errs, err := readSheets(ctx, paths)
	if err != nil {
		return nil, err
	}
	byFile := make(map[string]*sheet, len(files))
	for i, file := range files {
		if errs[i] != nil {
			report.skip(logger, file, errs[i])
			continue
		}
		byFile[file] = sheets[i]
	}
	if len(byFile) == 0 {
		return report, fmt.Errorf("%w in %s", ErrNoCSV, dir)
	}

	tx, err := db.Conn().BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	if err := seedProperties(ctx, tx, m.Properties); err != nil {
		return nil, err
	}

	resolver := m.Resolver()
	for _, src := range m.Sources {
		sh, ok := byFile[src.File]
		if !ok {
			continue
		}
		var n int64
		err := inSavepoint(ctx, tx, func() error {
			var err error
			n, err = insertSource(ctx, tx, src, sh, resolver)
			return err
		})
		if err != nil {
			report.skip(logger, src.File, fmt.Errorf("%s: %w", src.Table, err))
			continue
		}
		report.Tables[src.Table] += int(n)
		logger.Info("Loaded source", "file", src.File, "table", src.Table, "rows", n)
	}

	if _, err := tx.ExecContext(ctx, deriveSQL); err != nil {
		return nil, fmt.Errorf("failed to derive locations: %w", err)
	}
	for _, table := range []string{"properties", "property_locations", "property_staff", "locations"} {
		n, err := countRows(ctx, tx, table)
		if err != nil {
			return nil, err
		}
		report.Tables[table] = n
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit load: %w", err)
	}
	return report, nil
}

func seedProperties(ctx context.Context, tx *sqlx.Tx, props []Property) error {
	for _, p := range props {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO properties (prop_id, prop_name, prop_uuid) VALUES (?, ?, ?)",
			p.ID, p.Name, nullable(p.UUID)); err != nil {
			return fmt.Errorf("failed to insert property %s: %w", p.ID, err)
		}

		for _, loc := range p.Locations {
			if _, err := tx.ExecContext(ctx,
				"INSERT OR IGNORE INTO property_locations (prop_id, location_name) VALUES (?, ?)", p.ID, loc); err != nil {
				return fmt.Errorf("failed to insert location %s: %w", loc, err)
			}
		}
		for _, name := range p.Staff {
			if _, err := tx.ExecContext(ctx,
				"INSERT OR IGNORE INTO property_staff (prop_id, staff_name) VALUES (?, ?)", p.ID, name); err != nil {
				return fmt.Errorf("failed to insert staff %s: %w", name, err)
			}
		}
	}
	return nil
}

func insertSource(ctx context.Context, tx *sqlx.Tx, src Source, sh *sheet, resolver *Resolver) (int64, error) {
	cols := make([]string, 0, len(src.Columns)+1)
	idx := make([]int, 0, len(src.Columns))
	for _, c := range src.Columns {
		i := sh.index(c.From)
		if i < 0 {
			return 0, fmt.Errorf("column %q not found", c.From)
		}
		cols = append(cols, store.QuoteIdent(c.Column))
		idx = append(idx, i)
	}

	var rule *compiledRule
	if src.Property != nil {
		rule = compileRule(src.Property, sh)
		cols = append(cols, store.QuoteIdent(src.Property.Column))
	}

	verb := "INSERT"
	if src.Distinct {
		verb = "INSERT OR IGNORE"
	}
	stmt, err := tx.PreparexContext(ctx, fmt.Sprintf("%s INTO %s (%s) VALUES (%s)",
		verb, store.QuoteIdent(src.Table), strings.Join(cols, ", "), placeholders(len(cols))))
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	var written int64
	args := make([]any, len(cols))
	for n, row := range sh.Rows {
		for j, i := range idx {
			args[j] = nullable(row[i])
		}
		if rule != nil {
			args[len(args)-1] = nullable(rule.resolve(row, resolver))
		}
		res, err := stmt.ExecContext(ctx, args...)
		if err != nil {
			return 0, fmt.Errorf("row %d: %w", n+1, err)
		}
		affected, _ := res.RowsAffected()
		written += affected
	}
	return written, nil
}

// compiledRule holds the header positions of a PropertyRule for one file.
type compiledRule struct {
	uuid, location, staff []int
}

func compileRule(r *PropertyRule, sh *sheet) *compiledRule {
	positions := func(names []string) []int {
		var out []int
		for _, name := range names {
			if i := sh.index(name); i >= 0 {
				out = append(out, i)
			}
		}
		return out
	}
	return &compiledRule{
		uuid:     positions(r.UUID),
		location: positions(r.Location),
		staff:    positions(r.Staff),
	}
}

func (c *compiledRule) resolve(row []string, resolver *Resolver) string {
	for _, i := range c.uuid {
		if id := resolver.ByUUID(row[i]); id != "" {
			return id
		}
	}

	var location string
	for _, i := range c.location {
		if v := strings.TrimSpace(row[i]); v != "" {
			location = v
			break
		}
	}
	staff := make([]string, len(c.staff))
	for j, i := range c.staff {
		staff[j] = row[i]
	}
	return resolver.Resolve(location, staff...)
}

func countRows(ctx context.Context, tx *sqlx.Tx, table string) (int, error) {
	var n int
	if err := tx.GetContext(ctx, &n, "SELECT COUNT(*) FROM "+store.QuoteIdent(table)); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", table, err)
	}
	return n, nil
}

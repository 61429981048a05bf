package store

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"unicode"

	"github.com/jmoiron/sqlx"
)

// Result is a query result with columns in select-list order.
type Result struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

// Len returns the number of rows.
func (r *Result) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Rows)
}

// Strings renders every cell as text; NULL becomes "".
func (r *Result) Strings() [][]string {
	out := make([][]string, len(r.Rows))
	for i, row := range r.Rows {
		out[i] = make([]string, len(row))
		for j, v := range row {
			if v != nil {
				out[i][j] = fmt.Sprint(v)
			}
		}
	}
	return out
}

var readOnlyKeywords = map[string]bool{
	"SELECT":  true,
	"WITH":    true,
	"PRAGMA":  true,
	"EXPLAIN": true,
	"VALUES":  true,
}

// IsReadOnly reports whether sql is a single statement that cannot write.
// A PRAGMA with an assignment counts as a write, and so does a WITH clause
// whose main statement is an INSERT, UPDATE, DELETE or REPLACE.
func IsReadOnly(sql string) bool {
	stmts := splitStatements(sql)
	if len(stmts) != 1 {
		return false
	}
	words := stmts[0]
	switch kw := words[0].text; {
	case !readOnlyKeywords[kw]:
		return false
	case kw == "PRAGMA":
		return !strings.Contains(sql, "=")
	case kw == "WITH":
		return !hasTopLevelWrite(words)
	}
	return true
}

func hasTopLevelWrite(words []word) bool {
	for i, w := range words {
		if w.depth != 0 {
			continue
		}
		switch w.text {
		case "INSERT", "UPDATE", "DELETE":
			return true
		case "REPLACE":
			// REPLACE(...) is a string function; REPLACE INTO is a statement.
			if i+1 < len(words) && words[i+1].depth == 0 && words[i+1].text == "INTO" {
				return true
			}
		}
	}
	return false
}

// word is a bare keyword or identifier, upper-cased, at its parenthesis depth.
type word struct {
	text  string
	depth int
}

// splitStatements breaks sql on top-level semicolons and returns the words of
// every non-empty statement. String literals, quoted identifiers and comments
// are skipped.
func splitStatements(sql string) [][]word {
	var (
		stmts [][]word
		cur   []word
		depth int
	)
	for i := 0; i < len(sql); {
		c := sql[i]
		switch {
		case c == '\'' || c == '"' || c == '`' || c == '[':
			closer := c
			if c == '[' {
				closer = ']'
			}
			i = skipQuoted(sql, i+1, closer)
		case strings.HasPrefix(sql[i:], "--"):
			end := strings.IndexByte(sql[i:], '\n')
			if end < 0 {
				i = len(sql)
			} else {
				i += end + 1
			}
		case strings.HasPrefix(sql[i:], "/*"):
			end := strings.Index(sql[i+2:], "*/")
			if end < 0 {
				i = len(sql)
			} else {
				i += end + 4
			}
		case c == '(':
			depth++
			i++
		case c == ')':
			depth--
			i++
		case c == ';':
			if len(cur) > 0 {
				stmts = append(stmts, cur)
			}
			cur, depth = nil, 0
			i++
		case isWordByte(c):
			j := i
			for j < len(sql) && isWordByte(sql[j]) {
				j++
			}
			cur = append(cur, word{text: strings.ToUpper(sql[i:j]), depth: depth})
			i = j
		default:
			i++
		}
	}
	if len(cur) > 0 {
		stmts = append(stmts, cur)
	}
	return stmts
}

// skipQuoted returns the index just past the closing quote; a doubled quote
// is an escaped one.
func skipQuoted(s string, from int, closer byte) int {
	for i := from; i < len(s); i++ {
		if s[i] != closer {
			continue
		}
		if closer != ']' && i+1 < len(s) && s[i+1] == closer {
			i++
			continue
		}
		return i + 1
	}
	return len(s)
}

func isWordByte(c byte) bool {
	return c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c >= 0x80
}

// LeadingKeyword returns the first keyword of sql, upper-cased, skipping
// whitespace, opening parentheses and comments.
func LeadingKeyword(sql string) string {
	s := sql
	for {
		s = strings.TrimLeftFunc(s, func(r rune) bool { return unicode.IsSpace(r) || r == '(' })
		switch {
		case strings.HasPrefix(s, "--"):
			i := strings.IndexByte(s, '\n')
			if i < 0 {
				return ""
			}
			s = s[i+1:]
		case strings.HasPrefix(s, "/*"):
			i := strings.Index(s, "*/")
			if i < 0 {
				return ""
			}
			s = s[i+2:]
		default:
			end := strings.IndexFunc(s, func(r rune) bool { return !unicode.IsLetter(r) })
			if end < 0 {
				end = len(s)
			}
			return strings.ToUpper(s[:end])
		}
	}
}

// Query runs one statement and collects every row. Unless writes are allowed
// the statement runs on a connection with PRAGMA query_only set, so SQLite
// itself refuses anything the keyword check lets through.
func (d *DB) Query(ctx context.Context, sql string) (*Result, error) {
	if n := len(splitStatements(sql)); n > 1 {
		d.logger.Warn("Refused statement", "statements", n)
		return nil, fmt.Errorf("%w: got %d", ErrMultipleStatements, n)
	}
	if d.allowWrites {
		return d.query(ctx, sql)
	}
	if !IsReadOnly(sql) {
		d.logger.Warn("Refused statement", "keyword", LeadingKeyword(sql))
		return nil, fmt.Errorf("%w: %q", ErrWriteStatement, LeadingKeyword(sql))
	}

	conn, err := d.conn.Connx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "PRAGMA query_only = ON"); err != nil {
		return nil, fmt.Errorf("failed to enable query_only: %w", err)
	}
	defer func() {
		if _, err := conn.ExecContext(context.WithoutCancel(ctx), "PRAGMA query_only = OFF"); err != nil {
			d.logger.Error("Failed to reset query_only", "error", err)
		}
	}()

	res, err := d.collect(ctx, conn, sql)
	if err != nil && strings.Contains(err.Error(), "readonly") {
		return nil, fmt.Errorf("%w: %v", ErrWriteStatement, err)
	}
	return res, err
}

func (d *DB) query(ctx context.Context, sql string, args ...any) (*Result, error) {
	return d.collect(ctx, d.conn, sql, args...)
}

func (d *DB) collect(ctx context.Context, q sqlx.QueryerContext, sql string, args ...any) (*Result, error) {
	rows, err := q.QueryxContext(ctx, sql, args...)
	if err != nil {
		d.logger.Error("Query failed", "error", err, "sql", sql)
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}

	res := &Result{Columns: cols, Rows: [][]any{}}
	for rows.Next() {
		vals, err := rows.SliceScan()
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		for i, v := range vals {
			if b, ok := v.([]byte); ok {
				vals[i] = string(b)
			}
		}
		res.Rows = append(res.Rows, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	d.logger.Debug("Query executed", "sql", sql, "rows", len(res.Rows))
	return res, nil
}

// Preview returns the first limit rows of table.
func (d *DB) Preview(ctx context.Context, table string, limit int) (*Result, error) {
	if _, err := d.Columns(ctx, table); err != nil {
		return nil, err
	}
	return d.query(ctx, fmt.Sprintf("SELECT * FROM %s LIMIT ?", QuoteIdent(table)), limit)
}

// Search returns rows of table where any column contains term, ignoring case.
func (d *DB) Search(ctx context.Context, table, term string, limit int) (*Result, error) {
	cols, err := d.Columns(ctx, table)
	if err != nil {
		return nil, err
	}

	conds := make([]string, len(cols))
	args := make([]any, 0, len(cols)+1)
	for i, c := range cols {
		conds[i] = fmt.Sprintf("LOWER(CAST(%s AS TEXT)) LIKE '%%' || LOWER(?) || '%%'", QuoteIdent(c.Name))
		args = append(args, term)
	}
	args = append(args, limit)

	q := fmt.Sprintf("SELECT * FROM %s WHERE %s LIMIT ?", QuoteIdent(table), strings.Join(conds, " OR "))
	return d.query(ctx, q, args...)
}

// ExportCSV writes table to w with a header row.
func (d *DB) ExportCSV(ctx context.Context, table string, w io.Writer) error {
	if _, err := d.Columns(ctx, table); err != nil {
		return err
	}
	res, err := d.query(ctx, "SELECT * FROM "+QuoteIdent(table))
	if err != nil {
		return err
	}
	return WriteCSV(w, res)
}

// WriteCSV writes a result as CSV with a header row.
func WriteCSV(w io.Writer, res *Result) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(res.Columns); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	if err := cw.WriteAll(res.Strings()); err != nil {
		return fmt.Errorf("failed to write csv rows: %w", err)
	}
	return nil
}

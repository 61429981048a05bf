// Package store owns the SQLite database the question answering runs against.
package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // SQLite driver (pure Go)
)

//go:embed migrations/*.sql
var migrations embed.FS

// DriverName is the database/sql driver every handle is opened with.
const DriverName = "sqlite"

var (
	// ErrWriteStatement is returned by Query for statements that could modify data.
	ErrWriteStatement = errors.New("statement is not read-only")
	// ErrMultipleStatements is returned by Query when sql holds more than one statement.
	ErrMultipleStatements = errors.New("only one statement may run at a time")
	// ErrUnknownTable is returned when a table name is not in the database.
	ErrUnknownTable = errors.New("unknown table")
)

// bookkeepingTables are never shown to the model or the inspector.
var bookkeepingTables = map[string]bool{
	"goose_db_version": true,
	"query_history":    true,
}

// IsBookkeeping reports whether table belongs to migrations or query history
// rather than to the loaded data.
func IsBookkeeping(table string) bool {
	return bookkeepingTables[table]
}

// DB is an explicitly passed handle to one SQLite database file.
type DB struct {
	conn        *sqlx.DB
	path        string
	logger      *slog.Logger
	allowWrites bool
}

// Option configures a DB.
type Option func(*DB)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *DB) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithWrites lets Query run statements that modify the database.
func WithWrites(allow bool) Option {
	return func(d *DB) {
		d.allowWrites = allow
	}
}

// Open opens (creating if needed) the SQLite database at path.
// Use ":memory:" for an in-memory database.
func Open(path string, opts ...Option) (*DB, error) {
	dsn := path
	if path != ":memory:" {
		dsn = path + "?_pragma=busy_timeout(5000)"
	}

	conn, err := sqlx.Open(DriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// One connection: SQLite has a single writer and :memory: is per connection.
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	d := newDB(conn, path, opts...)
	d.logger.Info("Opened database", "db_path", path)
	return d, nil
}

// New wraps an existing connection, e.g. one opened by a test.
func New(conn *sql.DB, opts ...Option) *DB {
	return newDB(sqlx.NewDb(conn, DriverName), "", opts...)
}

func newDB(conn *sqlx.DB, path string, opts ...Option) *DB {
	d := &DB{
		conn:   conn,
		path:   path,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Migrate applies the embedded goose migrations.
func (d *DB) Migrate(ctx context.Context) error {
	goose.SetBaseFS(migrations)
	goose.SetLogger(log.New(io.Discard, "", 0))

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set dialect: %w", err)
	}
	if err := goose.UpContext(ctx, d.conn.DB, "migrations"); err != nil {
		d.logger.Error("Migrations failed", "error", err, "db_path", d.path)
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// Path returns the file the database was opened from.
func (d *DB) Path() string {
	return d.path
}

// Conn exposes the underlying handle for loaders that need transactions.
func (d *DB) Conn() *sqlx.DB {
	return d.conn
}

// Close closes the database.
func (d *DB) Close() error {
	return d.conn.Close()
}

// Column is one row of PRAGMA table_info.
type Column struct {
	CID     int            `db:"cid" json:"-"`
	Name    string         `db:"name" json:"name"`
	Type    string         `db:"type" json:"type"`
	NotNull bool           `db:"notnull" json:"not_null"`
	Default sql.NullString `db:"dflt_value" json:"-"`
	PK      int            `db:"pk" json:"primary_key"`
}

// TableSchema is a table and its columns in declaration order.
type TableSchema struct {
	Name    string   `json:"table_name"`
	Columns []Column `json:"columns"`
}

// Tables lists user tables, bookkeeping tables excluded.
func (d *DB) Tables(ctx context.Context) ([]string, error) {
	var names []string
	err := d.conn.SelectContext(ctx, &names,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}

	tables := names[:0]
	for _, name := range names {
		if !IsBookkeeping(name) {
			tables = append(tables, name)
		}
	}
	return tables, nil
}

// Columns returns PRAGMA table_info for table.
func (d *DB) Columns(ctx context.Context, table string) ([]Column, error) {
	var cols []Column
	if err := d.conn.SelectContext(ctx, &cols, "PRAGMA table_info("+QuoteIdent(table)+")"); err != nil {
		return nil, fmt.Errorf("failed to get schema for table %s: %w", table, err)
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
	return cols, nil
}

// Schema returns every user table with its columns.
func (d *DB) Schema(ctx context.Context) ([]TableSchema, error) {
	tables, err := d.Tables(ctx)
	if err != nil {
		return nil, err
	}

	schema := make([]TableSchema, 0, len(tables))
	for _, table := range tables {
		cols, err := d.Columns(ctx, table)
		if err != nil {
			return nil, err
		}
		schema = append(schema, TableSchema{Name: table, Columns: cols})
	}
	return schema, nil
}

// RenderSchema formats tables the way the text-to-SQL prompt expects them:
//
//	Table `staff`: stf_id, stf_name, prop_id
func RenderSchema(tables []TableSchema) string {
	var b strings.Builder
	for _, t := range tables {
		names := make([]string, len(t.Columns))
		for i, c := range t.Columns {
			names[i] = c.Name
		}
		fmt.Fprintf(&b, "Table `%s`: %s\n", t.Name, strings.Join(names, ", "))
	}
	return b.String()
}

// QuoteIdent quotes an SQLite identifier.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

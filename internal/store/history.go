package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// createdAtFormat is fixed-width so created_at sorts as text.
const createdAtFormat = "2006-01-02T15:04:05.000000000Z"

// HistoryEntry is one answered (or failed) question.
type HistoryEntry struct {
	ID        string `db:"id" json:"id"`
	Question  string `db:"question" json:"question"`
	RawOutput string `db:"raw_output" json:"raw_output"`
	SQL       string `db:"sql_text" json:"sql"`
	RowCount  int    `db:"row_count" json:"row_count"`
	Error     string `db:"error" json:"error,omitempty"`
	CreatedAt string `db:"created_at" json:"created_at"`
}

// RecordQuery stores e, assigning its id and timestamp. Requires Migrate.
func (d *DB) RecordQuery(ctx context.Context, e HistoryEntry) (string, error) {
	e.ID = uuid.NewString()
	e.CreatedAt = time.Now().UTC().Format(createdAtFormat)

	_, err := d.conn.NamedExecContext(ctx, `
		INSERT INTO query_history (id, question, raw_output, sql_text, row_count, error, created_at)
		VALUES (:id, :question, :raw_output, :sql_text, :row_count, :error, :created_at)`, e)
	if err != nil {
		return "", fmt.Errorf("failed to record query: %w", err)
	}
	return e.ID, nil
}

// History returns the newest entries first.
func (d *DB) History(ctx context.Context, limit int) ([]HistoryEntry, error) {
	entries := []HistoryEntry{}
	err := d.conn.SelectContext(ctx, &entries, `
		SELECT id, question, COALESCE(raw_output, '') AS raw_output, COALESCE(sql_text, '') AS sql_text,
		       row_count, COALESCE(error, '') AS error, created_at
		FROM query_history
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	return entries, nil
}

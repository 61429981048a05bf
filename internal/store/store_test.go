package store

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// openTestDB creates a file database with a small staff table.
func openTestDB(t *testing.T, opts ...Option) *DB {
	t.Helper()

	db, err := Open(filepath.Join(t.TempDir(), "test.db"), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Conn().Exec(`
		CREATE TABLE staff (stf_id TEXT PRIMARY KEY, stf_name TEXT, stf_rate REAL);
		INSERT INTO staff VALUES ('S1', 'HN Alice', 12.5), ('S2', 'CN Bob', 14.0), ('S3', 'Carol', NULL);
		CREATE TABLE locations (location_name TEXT, prop_id TEXT);
		INSERT INTO locations VALUES ('2207', 'P1');`)
	require.NoError(t, err)
	return db
}

func TestIsReadOnly(t *testing.T) {
	testCases := []struct {
		sql      string
		readOnly bool
	}{
		{"SELECT 1", true},
		{"  select * from staff", true},
		{"(SELECT 1) UNION SELECT 2", true},
		{"WITH x AS (SELECT 1) SELECT * FROM x", true},
		{"-- comment\nSELECT 1", true},
		{"/* hint */ EXPLAIN QUERY PLAN SELECT 1", true},
		{"VALUES (1), (2)", true},
		{"PRAGMA table_info(staff)", true},
		{"PRAGMA journal_mode = DELETE", false},
		{"DELETE FROM staff", false},
		{"drop table staff", false},
		{"INSERT INTO staff VALUES ('x', 'y', 1)", false},
		{"", false},
		{"-- only a comment", false},
		{"SELECT 1;", true},
		{"SELECT 'a;b' AS x", true},
		{"WITH x AS (SELECT REPLACE(stf_name, 'HN', '') AS n FROM staff) SELECT n FROM x", true},
		{"WITH x AS (SELECT 1) DELETE FROM staff", false},
		{"WITH x AS (SELECT 1) REPLACE INTO staff VALUES ('x', 'y', 1)", false},
		{"SELECT 1; DELETE FROM staff", false},
		{"SELECT 1; DROP TABLE staff", false},
		{"SELECT 1 -- ; DROP TABLE staff", true},
	}

	for _, tc := range testCases {
		t.Run(tc.sql, func(t *testing.T) {
			assert.Equal(t, tc.readOnly, IsReadOnly(tc.sql))
		})
	}
}

func TestQuery(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	res, err := db.Query(ctx, "SELECT stf_name, stf_rate FROM staff ORDER BY stf_id")
	require.NoError(t, err)
	assert.Equal(t, []string{"stf_name", "stf_rate"}, res.Columns)
	require.Equal(t, 3, res.Len())
	assert.Equal(t, "HN Alice", res.Rows[0][0])
	assert.Equal(t, 12.5, res.Rows[0][1])
	assert.Nil(t, res.Rows[2][1])
	assert.Equal(t, []string{"Carol", ""}, res.Strings()[2])
}

func TestQueryEmptyResult(t *testing.T) {
	db := openTestDB(t)

	res, err := db.Query(context.Background(), "SELECT * FROM staff WHERE 1 = 0")
	require.NoError(t, err)
	assert.Equal(t, 0, res.Len())
	assert.NotNil(t, res.Rows)
	assert.Len(t, res.Columns, 3)
}

func TestQueryRefusesWrites(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	_, err := db.Query(ctx, "DELETE FROM staff")
	require.ErrorIs(t, err, ErrWriteStatement)

	res, err := db.Query(ctx, "SELECT COUNT(*) FROM staff")
	require.NoError(t, err)
	assert.EqualValues(t, 3, res.Rows[0][0])
}

func TestQueryRefusesHiddenWrites(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	testCases := []struct {
		sql string
		err error
	}{
		{"WITH x AS (SELECT 1) DELETE FROM staff", ErrWriteStatement},
		{"SELECT 1; DELETE FROM staff", ErrMultipleStatements},
		{"SELECT 1; DROP TABLE staff", ErrMultipleStatements},
	}
	for _, tc := range testCases {
		t.Run(tc.sql, func(t *testing.T) {
			_, err := db.Query(ctx, tc.sql)
			require.ErrorIs(t, err, tc.err)

			res, err := db.Query(ctx, "SELECT COUNT(*) FROM staff")
			require.NoError(t, err)
			assert.EqualValues(t, 3, res.Rows[0][0])
		})
	}
}

func TestQueryOnlyConnection(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	// PRAGMA query_only reads back 1 inside Query and 0 on the connection afterwards.
	res, err := db.Query(ctx, "PRAGMA query_only")
	require.NoError(t, err)
	assert.EqualValues(t, 1, res.Rows[0][0])

	var after int
	require.NoError(t, db.Conn().Get(&after, "PRAGMA query_only"))
	assert.Equal(t, 0, after)

	_, err = db.Conn().Exec("INSERT INTO staff VALUES ('S4', 'RA Dan', 11.0)")
	require.NoError(t, err)
}

func TestQueryAllowsWritesWhenEnabled(t *testing.T) {
	db := openTestDB(t, WithWrites(true))
	ctx := context.Background()

	_, err := db.Query(ctx, "DELETE FROM staff WHERE stf_id = 'S3'")
	require.NoError(t, err)

	res, err := db.Query(ctx, "SELECT COUNT(*) FROM staff")
	require.NoError(t, err)
	assert.EqualValues(t, 2, res.Rows[0][0])
}

func TestQueryReportsExecutionError(t *testing.T) {
	db := openTestDB(t)

	_, err := db.Query(context.Background(), "SELECT missing_column FROM staff")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing_column")
}

func TestQueryWithMock(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()
	db := New(conn)

	queryOnly := func(expect func()) {
		mock.ExpectExec(regexp.QuoteMeta("PRAGMA query_only = ON")).WillReturnResult(sqlmock.NewResult(0, 0))
		expect()
		mock.ExpectExec(regexp.QuoteMeta("PRAGMA query_only = OFF")).WillReturnResult(sqlmock.NewResult(0, 0))
	}

	t.Run("driver error is wrapped", func(t *testing.T) {
		boom := errors.New("disk I/O error")
		queryOnly(func() {
			mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM staff")).WillReturnError(boom)
		})

		_, err := db.Query(context.Background(), "SELECT * FROM staff")
		require.ErrorIs(t, err, boom)
	})

	t.Run("byte values become strings", func(t *testing.T) {
		rows := sqlmock.NewRows([]string{"id", "name"}).AddRow(1, []byte("HN Alice"))
		queryOnly(func() {
			mock.ExpectQuery(regexp.QuoteMeta("SELECT id, name FROM staff")).WillReturnRows(rows)
		})

		res, err := db.Query(context.Background(), "SELECT id, name FROM staff")
		require.NoError(t, err)
		assert.Equal(t, "HN Alice", res.Rows[0][1])
	})

	t.Run("row error is reported", func(t *testing.T) {
		rows := sqlmock.NewRows([]string{"id"}).AddRow(1).RowError(0, errors.New("corrupt page"))
		queryOnly(func() {
			mock.ExpectQuery("SELECT id").WillReturnRows(rows)
		})

		_, err := db.Query(context.Background(), "SELECT id FROM staff")
		require.Error(t, err)
	})

	t.Run("write is refused before reaching the driver", func(t *testing.T) {
		_, err := db.Query(context.Background(), "UPDATE staff SET stf_name = 'x'")
		require.ErrorIs(t, err, ErrWriteStatement)
	})

	t.Run("second statement is refused before reaching the driver", func(t *testing.T) {
		_, err := db.Query(context.Background(), "SELECT 1; DELETE FROM staff")
		require.ErrorIs(t, err, ErrMultipleStatements)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSchema(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	require.NoError(t, db.Migrate(ctx))

	tables, err := db.Tables(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"locations", "staff"}, tables)

	schema, err := db.Schema(ctx)
	require.NoError(t, err)
	require.Len(t, schema, 2)
	assert.Equal(t, "stf_id", schema[1].Columns[0].Name)
	assert.Equal(t, 1, schema[1].Columns[0].PK)

	assert.Equal(t,
		"Table `locations`: location_name, prop_id\nTable `staff`: stf_id, stf_name, stf_rate\n",
		RenderSchema(schema))
}

func TestColumnsUnknownTable(t *testing.T) {
	db := openTestDB(t)

	_, err := db.Columns(context.Background(), "guests")
	require.ErrorIs(t, err, ErrUnknownTable)
}

func TestPreviewAndSearch(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	res, err := db.Preview(ctx, "staff", 2)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Len())

	testCases := []struct {
		term     string
		expected int
	}{
		{"hn", 1},
		{"N ", 2},
		{"14", 1},
		{"nobody", 0},
	}
	for _, tc := range testCases {
		t.Run(tc.term, func(t *testing.T) {
			res, err := db.Search(ctx, "staff", tc.term, 10)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, res.Len())
		})
	}

	_, err = db.Search(ctx, "nope", "x", 10)
	require.ErrorIs(t, err, ErrUnknownTable)
}

func TestExportCSV(t *testing.T) {
	db := openTestDB(t)

	var buf bytes.Buffer
	require.NoError(t, db.ExportCSV(context.Background(), "locations", &buf))
	assert.Equal(t, "location_name,prop_id\n2207,P1\n", buf.String())
}

func TestHistory(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	require.NoError(t, db.Migrate(ctx))
	// Running again is a no-op.
	require.NoError(t, db.Migrate(ctx))

	first, err := db.RecordQuery(ctx, HistoryEntry{Question: "how many staff?", SQL: "SELECT COUNT(*) FROM staff", RowCount: 1})
	require.NoError(t, err)
	second, err := db.RecordQuery(ctx, HistoryEntry{Question: "bad", Error: "no such column"})
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	entries, err := db.History(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, second, entries[0].ID)
	assert.Equal(t, "no such column", entries[0].Error)
	assert.Equal(t, "SELECT COUNT(*) FROM staff", entries[1].SQL)

	entries, err = db.History(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

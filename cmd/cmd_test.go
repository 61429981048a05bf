package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hotelqa/internal/etl"
	"hotelqa/internal/store"
)

// run executes the root command with args and returns what it printed.
func run(t *testing.T, args ...string) string {
	t.Helper()

	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})
	require.NoError(t, rootCmd.ExecuteContext(context.Background()))
	return buf.String()
}

func TestWriteResult(t *testing.T) {
	res := &store.Result{
		Columns: []string{"room", "status"},
		Rows:    [][]any{{int64(2207), "clean"}, {int64(2301), nil}},
	}

	testCases := []struct {
		format   string
		contains []string
	}{
		{formatTable, []string{"room", "2207", "NULL", "(2 rows)"}},
		{formatMarkdown, []string{"| room", "| 2301", "(2 rows)"}},
		{formatCSV, []string{"room,status\n2207,clean\n2301,\n"}},
		{formatJSON, []string{`"columns": [`, `"clean"`, "null"}},
	}

	for _, tc := range testCases {
		t.Run(tc.format, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, writeResult(&buf, res, tc.format))
			for _, want := range tc.contains {
				assert.Contains(t, buf.String(), want)
			}
		})
	}

	t.Run("unknown format", func(t *testing.T) {
		err := writeResult(&bytes.Buffer{}, res, "xml")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "xml")
	})
}

func TestPrintReport(t *testing.T) {
	report := &etl.Report{
		Tables:  map[string]int{"staff": 3, "payroll": 5},
		Skipped: []etl.Skipped{{File: "broken.csv", Err: os.ErrNotExist}},
	}

	var buf bytes.Buffer
	printReport(&buf, report)
	out := buf.String()
	assert.Contains(t, out, "staff")
	assert.Contains(t, out, "payroll")
	assert.Contains(t, out, "Skipped broken.csv: file does not exist")
	assert.Less(t, bytes.Index(buf.Bytes(), []byte("payroll")), bytes.Index(buf.Bytes(), []byte("staff")))
}

func TestLoadThenQuery(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "rooms.csv"),
		[]byte("Room No,Status\n2207,clean\n2301,dirty\n"), 0644))
	dbPath := filepath.Join(dir, "ops.db")

	out := run(t, "--db", dbPath, "--data-dir", dir, "load", "--mode", "raw")
	assert.Contains(t, out, "rooms")

	out = run(t, "--db", dbPath, "tables", "--json")
	assert.Contains(t, out, `"table_name": "rooms"`)
	assert.Contains(t, out, `"row_count": 2`)

	out = run(t, "--db", dbPath, "query", "--sql", `SELECT "room_no" FROM rooms WHERE rooms.status ILIKE 'DIRT'`, "--format", "csv")
	assert.Equal(t, "room_no\n2301\n", out)

	out = run(t, "--db", dbPath, "schema")
	assert.Equal(t, "Table `rooms`: room_no, status\n", out)

	out = run(t, "--db", dbPath, "inspect", "rooms", "--search", "22", "--format", "csv")
	assert.Equal(t, "room_no,status\n2207,clean\n", out)

	_, err := os.Stat(filepath.Join(dir, "hotelqa.log"))
	assert.NoError(t, err, "log file is written next to the database")
}

func TestHistoryStartsEmpty(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	out := run(t, "--db", filepath.Join(dir, "ops.db"), "history", "--json")
	assert.Equal(t, "[]\n", out)
}

func TestMergeCommand(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	for name, stmt := range map[string]string{
		"a.db": "CREATE TABLE staff (stf_id TEXT); INSERT INTO staff VALUES ('S1')",
		"b.db": "CREATE TABLE payroll (pay_id INTEGER); INSERT INTO payroll VALUES (1), (2)",
	} {
		db, err := store.Open(filepath.Join(dir, name))
		require.NoError(t, err)
		_, err = db.Conn().Exec(stmt)
		require.NoError(t, err)
		require.NoError(t, db.Close())
	}

	out := run(t, "--db", filepath.Join(dir, "merged.db"), "merge",
		filepath.Join(dir, "merged.db"), filepath.Join(dir, "a.db"), filepath.Join(dir, "b.db"))
	assert.Contains(t, out, "staff")
	assert.Contains(t, out, "payroll")
}

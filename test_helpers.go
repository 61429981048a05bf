package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"hotelqa/internal/agent"
	"hotelqa/internal/store"
)

// SetupTestDB creates a migrated test database with a few staff and cleaning orders
func SetupTestDB(t *testing.T) (*store.DB, func()) {
	t.Helper()

	// Create temporary directory for test database
	tmpDir, err := os.MkdirTemp("", "hotelqa-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}

	db, err := store.Open(filepath.Join(tmpDir, "test.db"))
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	_, err = db.Conn().Exec(`
		CREATE TABLE staff (stf_id TEXT PRIMARY KEY, stf_name TEXT, prop_id TEXT);
		INSERT INTO staff VALUES ('S1', 'HN RS1', 'P1'), ('S2', 'CN RS1', 'P2'), ('S3', 'CN RS2', 'P2');
		CREATE TABLE cleaning_orders (co_id INTEGER PRIMARY KEY, location_name TEXT, inspection_result TEXT, prop_id TEXT);
		INSERT INTO cleaning_orders (location_name, inspection_result, prop_id) VALUES
			('2207', 'Pass', 'P1'), ('2301', 'Fail', 'P2'), ('2302', 'Pass', 'P2');`)
	if err != nil {
		t.Fatalf("failed to seed test database: %v", err)
	}

	// Return cleanup function
	cleanup := func() {
		db.Close()
		os.RemoveAll(tmpDir)
	}

	return db, cleanup
}

// StubAssistant returns an assistant whose model always answers output
func StubAssistant(db *store.DB, output string) *agent.Assistant {
	gen := agent.GeneratorFunc(func(context.Context, string) (string, error) {
		return output, nil
	})
	return agent.NewAssistant(db, gen, agent.WithHistory(true))
}

// FailingAssistant returns an assistant whose model always fails with err
func FailingAssistant(db *store.DB, err error) *agent.Assistant {
	gen := agent.GeneratorFunc(func(context.Context, string) (string, error) {
		return "", err
	})
	return agent.NewAssistant(db, gen)
}

const perPropertySQL = "```sql\nSELECT prop_id, COUNT(*) AS staff_count FROM staff GROUP BY prop_id ORDER BY prop_id\n```"

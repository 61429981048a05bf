package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"hotelqa/internal/agent"
	"hotelqa/internal/config"
	"hotelqa/internal/store"
)

// These variables will be set by main package
var (
	LaunchTUI   func(ctx context.Context, cfg *config.Config, db *store.DB, assistant *agent.Assistant, logger *slog.Logger) error
	StartServer func(ctx context.Context, cfg *config.Config, db *store.DB, assistant *agent.Assistant, logger *slog.Logger) error
)

// HandleError prints error and exits
func HandleError(err error, message string) {
	fmt.Fprintf(os.Stderr, "Error: %s: %v\n", message, err)
	os.Exit(1)
}

// openStore opens and migrates the configured database, exiting on failure.
func openStore(ctx context.Context) *store.DB {
	db, err := store.Open(cfg.Database, store.WithLogger(logger), store.WithWrites(cfg.AllowWrites))
	if err != nil {
		HandleError(err, "Failed to open database")
	}
	if err := db.Migrate(ctx); err != nil {
		_ = db.Close()
		HandleError(err, "Failed to migrate database")
	}
	return db
}

// newAssistant builds the text-to-SQL assistant. Without a usable backend the
// assistant still opens, and every question reports why it cannot be answered.
func newAssistant(db *store.DB) *agent.Assistant {
	gen, err := agent.NewGenerator(cfg.Generator)
	if err != nil {
		logger.Warn("Text-to-SQL backend unavailable", "backend", cfg.Generator.Backend, "error", err)
		gen = agent.GeneratorFunc(func(context.Context, string) (string, error) {
			return "", err
		})
	}
	return agent.NewAssistant(db, gen,
		agent.WithLogger(logger),
		agent.WithTimeout(cfg.Generator.Timeout),
		agent.WithHistory(true),
	)
}

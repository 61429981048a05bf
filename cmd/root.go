package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"hotelqa/internal/config"
)

var (
	cfgFile string
	cfg     *config.Config
	logger  = slog.New(slog.DiscardHandler)
	logFile *os.File

	rootCmd = &cobra.Command{
		Use:   "hotelqa",
		Short: "hotelqa - ask questions about hotel operations data",
		Long: `hotelqa loads CSV exports from a hotel operations system into SQLite
and answers plain-English questions about them by generating SQL.

When run without commands, it launches an interactive TUI.
Use subcommands for CLI mode.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			var err error
			cfg, err = config.Load(cfgFile, cmd.Flags())
			if err != nil {
				HandleError(err, "Failed to load configuration")
			}
			if err := SetupLogger(cfg); err != nil {
				HandleError(err, "Failed to set up logging")
			}
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			closeLogger()
		},
		Run: func(cmd *cobra.Command, args []string) {
			// No subcommand specified - launch TUI
			db := openStore(cmd.Context())
			defer db.Close()

			if err := LaunchTUI(cmd.Context(), cfg, db, newAssistant(db), logger); err != nil {
				HandleError(err, "TUI failed")
			}
		},
	}
)

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&cfgFile, "config", "c", "", "Config file (default ./hotelqa.yaml)")
	flags.String("db", config.DefaultDatabase, "SQLite database file")
	flags.StringP("data-dir", "d", ".", "Directory containing CSV exports")
	flags.String("log-file", "", "Log file (default hotelqa.log next to the database)")
	flags.String("log-level", "info", "Log level: debug, info, warn or error")
	flags.Bool("allow-writes", false, "Allow statements that modify the database")
	flags.String("backend", config.BackendHuggingFace, "Text-to-SQL backend: huggingface, anthropic or openai")
	flags.String("model", "", "Model name for the backend")
}

// Execute runs the root command. Interrupts cancel the command context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

// SetupLogger opens the log file and installs a JSON logger writing to it.
func SetupLogger(c *config.Config) error {
	f, err := os.OpenFile(c.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	closeLogger()
	logFile = f

	handler := slog.NewJSONHandler(f, &slog.HandlerOptions{
		Level:     c.Level(),
		AddSource: true, // Include file:line information
	})
	logger = slog.New(handler)
	logger.Info("Application started", "db_path", c.Database, "data_dir", c.DataDir, "config_file", c.File)
	return nil
}

func closeLogger() {
	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}
}

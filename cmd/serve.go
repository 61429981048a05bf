package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web server",
	Long: `Start the HTTP web server.

The web server provides a browser page for asking questions, with the
generated SQL, the result table and a bar chart, plus JSON API endpoints
under /api.`,
	Run: func(cmd *cobra.Command, args []string) {
		runServe(cmd)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().IntP("port", "p", 8080, "Port to run the server on")
}

func runServe(cmd *cobra.Command) {
	ctx := cmd.Context()
	db := openStore(ctx)
	defer db.Close()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Starting hotelqa web server...\n")
	fmt.Fprintf(out, "Database: %s\n", cfg.Database)
	fmt.Fprintf(out, "Port: %d\n\n", cfg.Server.Port)

	// StartServer is provided by package main
	if err := StartServer(ctx, cfg, db, newAssistant(db), logger); err != nil {
		HandleError(err, "Server failed")
	}
}

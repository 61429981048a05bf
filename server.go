package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"hotelqa/internal/agent"
	"hotelqa/internal/config"
	"hotelqa/internal/store"
)

// ServerConfig holds configuration for the web server
type ServerConfig struct {
	Port           int
	DB             *store.DB
	Assistant      *agent.Assistant
	AllowedOrigins []string
	RequestTimeout time.Duration
	Logger         *slog.Logger
}

// NewRouter wires the web page and the JSON API.
func NewRouter(config ServerConfig) http.Handler {
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = 120 * time.Second
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(config.RequestTimeout))

	// Web handlers (HTMX HTML responses)
	webHandler := NewWebHandler(config.DB, config.Assistant, config.Logger)
	r.Get("/", webHandler.IndexPage)
	r.Post("/ask", webHandler.AskPartial)

	// API handlers (JSON responses)
	apiHandler := &APIHandler{DB: config.DB, Assistant: config.Assistant, Logger: config.Logger}
	r.Route("/api", func(r chi.Router) {
		r.Use(cors.New(cors.Options{
			AllowedOrigins: config.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost},
			AllowedHeaders: []string{"Content-Type"},
		}).Handler)
		r.Get("/schema", apiHandler.Schema)
		r.Get("/tables", apiHandler.Tables)
		r.Post("/ask", apiHandler.Ask)
		r.Post("/query", apiHandler.Query)
		r.Get("/history", apiHandler.History)
	})

	return r
}

// StartServer serves until ctx is cancelled, then shuts down gracefully.
func StartServer(ctx context.Context, config ServerConfig) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", config.Port),
		Handler:           NewRouter(config),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if config.Logger != nil {
			config.Logger.Info("Starting server", "addr", srv.Addr)
		}
		fmt.Printf("Listening on http://localhost%s\n", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shut down server: %w", err)
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

// startServer adapts StartServer to the cmd callback.
func startServer(ctx context.Context, cfg *config.Config, db *store.DB, assistant *agent.Assistant, l *slog.Logger) error {
	return StartServer(ctx, ServerConfig{
		Port:           cfg.Server.Port,
		DB:             db,
		Assistant:      assistant,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		RequestTimeout: cfg.Server.RequestTimeout,
		Logger:         l,
	})
}

/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the absence engine server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (environment / .env)
  2. Initialize SQLite store
  3. Create API handler with its services
  4. Configure HTTP router and penalty sweep scheduler
  5. Start server with graceful shutdown

CONFIGURATION (environment):
  APP_PORT                HTTP server port (default: 8080)
  APP_ENV                 development | production
  LOG_LEVEL               debug | info | warn | error
  DB_PATH                 SQLite database path (":memory:" for ephemeral)
  PENALTY_SWEEP_ENABLED   Run the automated penalty sweep (default: true)
  PENALTY_SWEEP_INTERVAL  Sweep interval (default: 24h)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the penalty scheduler
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close database connection
  5. Exit

SEE ALSO:
  - config/config.go: Configuration loading
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/httplog/v3"

	"github.com/staffo/absence-engine/api"
	"github.com/staffo/absence-engine/config"
	"github.com/staffo/absence-engine/store/sqlite"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg)

	// Initialize store
	store, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		logger.Error("failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	// Initialize handler and router
	handler := api.NewHandler(store)
	router := api.NewRouter(handler, logger)

	// Penalty sweep scheduler
	scheduler := api.NewPenaltyScheduler(handler.Penalties, logger)
	scheduler.Enabled = cfg.Scheduler.Enabled
	scheduler.CheckInterval = cfg.Scheduler.CheckInterval
	scheduler.AutoApply = cfg.Scheduler.AutoApply
	scheduler.Start()
	defer scheduler.Stop()

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.App.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("server starting", "port", cfg.App.Port, "env", cfg.App.Env)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

func newLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.App.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	logFormat := httplog.SchemaECS.Concise(cfg.App.Env == "development")
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: logFormat.ReplaceAttr,
	})).With(
		slog.String("app", "absence-engine"),
		slog.String("env", cfg.App.Env),
	)
}

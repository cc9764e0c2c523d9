/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the annual leave accrual engine server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (YAML file + environment overrides)
  2. Build the structured logger
  3. Initialize SQLite store
  4. Wire the engine service, HTTP handler and router
  5. Start the daily update scheduler (when enabled)
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -config  Path to YAML config file (optional; defaults + env apply
           when omitted)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the scheduler (waits for an in-flight sweep)
  2. Stop accepting new connections
  3. Wait for active requests to complete (configurable timeout)
  4. Close database connection
  5. Exit

EXAMPLES:
  # Run with defaults (data/leave.db, :8080)
  ./server

  # Run with a config file
  ./server -config=./config.yaml

  # Override via environment
  LEAVE_SERVER_PORT=3000 LEAVE_DATABASE_PATH=":memory:" ./server

SEE ALSO:
  - config/config.go: Configuration schema and defaults
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/tryers-jsshin/btq-hr-system-sub000/api"
	"github.com/tryers-jsshin/btq-hr-system-sub000/config"
	"github.com/tryers-jsshin/btq-hr-system-sub000/engine"
	"github.com/tryers-jsshin/btq-hr-system-sub000/store/sqlite"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := config.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	// Initialize store
	store, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		logger.Fatal("failed to initialize database", zap.Error(err))
	}
	defer store.Close()

	// Wire the engine
	service := engine.NewService(store, logger)
	service.BatchChunkSize = cfg.Batch.ChunkSize

	handler := api.NewHandler(service, store, logger)
	router := api.NewRouter(handler)

	// Scheduler
	var scheduler *api.Scheduler
	if cfg.Batch.SchedulerEnabled {
		scheduler = api.NewScheduler(service, cfg.Batch.SchedulerInterval, logger)
		scheduler.Start()
	}

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in goroutine
	go func() {
		logger.Info("server starting",
			zap.String("addr", server.Addr),
			zap.String("database", cfg.Database.Path))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	if scheduler != nil {
		scheduler.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}

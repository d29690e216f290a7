// Package main is the entry point for the Aegis decision service.
//
// The service hosts the four decision agents behind a coordinator, runs the
// regime detection and rebalance workflows on cron schedules, persists every
// decision and message to the audit database and exposes it all over HTTP.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aristath/aegis/internal/config"
	"github.com/aristath/aegis/internal/di"
	"github.com/aristath/aegis/internal/server"
	"github.com/aristath/aegis/pkg/logger"
)

// main orchestrates startup and shutdown:
// 1. Loads configuration from environment variables (.env supported)
// 2. Initializes logging
// 3. Wires the audit database, agents, coordinator and jobs
// 4. Starts the HTTP server and the scheduler
// 5. Waits for a shutdown signal and stops everything in reverse order
func main() {
	cfg, err := config.Load()
	if err != nil {
		// Use fallback logger if config fails
		fallbackLog := logger.New(logger.Config{
			Level:  "info",
			Pretty: true,
		})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.LogPretty,
	})
	logger.SetGlobalLogger(log)

	log.Info().
		Str("data_dir", cfg.DataDir).
		Bool("audit", cfg.AuditEnabled).
		Msg("Starting Aegis")

	container, jobs, err := di.Wire(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to wire dependencies")
	}
	// WAL checkpoints are written on close.
	defer container.Close()

	srv := server.New(server.Config{
		Port:      cfg.Port,
		Log:       log,
		DevMode:   cfg.DevMode,
		Container: container,
		Jobs:      jobs,
	})

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	container.Scheduler.Start()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down...")

	// In-flight workflow runs finish before the database closes.
	container.Scheduler.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}

// Package main runs the reference board backend: REST routes, the live
// websocket hub and the configured storage.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/lizmareco/tablero/internal/common/config"
	"github.com/lizmareco/tablero/internal/common/logger"
	"github.com/lizmareco/tablero/internal/common/tracing"
	"github.com/lizmareco/tablero/internal/events"
	"github.com/lizmareco/tablero/internal/server"
	"github.com/lizmareco/tablero/internal/server/repository"
	"github.com/lizmareco/tablero/internal/server/seed"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// 2. Initialize logger
	log, err := logger.NewLogger(logger.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		OutputPath: cfg.Logging.OutputPath,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Error("tablero-server stopped with error", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *logger.Logger) error {
	log.Info("Starting tablero-server...",
		zap.String("database", cfg.Database.Driver),
		zap.String("address", cfg.Server.Addr()))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 3. Event bus
	eventBus, closeBus, err := events.Provide(cfg, log)
	if err != nil {
		return err
	}
	defer func() { _ = closeBus() }()

	// 4. Storage
	repo, closeRepo, err := repository.Provide(cfg.Database)
	if err != nil {
		return fmt.Errorf("open repository: %w", err)
	}
	defer func() {
		if err := closeRepo(); err != nil {
			log.Error("failed to close repository", zap.Error(err))
		}
	}()

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := server.New(cfg.Server, repo, eventBus, log)

	// 5. Optional fixtures
	if cfg.Server.SeedFile != "" {
		fixture, err := seed.Load(cfg.Server.SeedFile)
		if err != nil {
			return err
		}
		if err := seed.Apply(ctx, srv.Service(), fixture, log); err != nil {
			return err
		}
	}

	// 6. Serve until a signal arrives
	if err := srv.Run(ctx); err != nil {
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := tracing.Shutdown(shutdownCtx); err != nil {
		log.Warn("failed to flush traces", zap.Error(err))
	}
	log.Info("tablero-server stopped")
	return nil
}

package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/JonMunkholm/csvimport/internal/config"
	"github.com/JonMunkholm/csvimport/internal/core"
	_ "github.com/JonMunkholm/csvimport/internal/core/tables" // Register all tables
	"github.com/JonMunkholm/csvimport/internal/logging"
	"github.com/JonMunkholm/csvimport/internal/store"
	"github.com/JonMunkholm/csvimport/internal/web"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	cfg, err := config.Load(config.Options{File: os.Getenv("CSVIMPORT_CONFIG")})
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("configuration loaded", "config", cfg.String())

	ctx := context.Background()
	backend, err := store.Open(ctx, cfg.Database, logger)
	if err != nil {
		logger.Error("failed to open store", "driver", cfg.Database.Driver, "error", err)
		os.Exit(1)
	}
	defer backend.Close()
	logger.Info("connected to store", "kind", backend.Store.Kind())

	if cfg.Database.AutoMigrate {
		if err := backend.Migrate(ctx); err != nil && !errors.Is(err, store.ErrNoMigrations) {
			logger.Error("migration failed", "error", err)
			os.Exit(1)
		}
	}

	var maps core.MapperFactory
	if cfg.Import.MapFile != "" {
		set, err := core.LoadMapFile(cfg.Import.MapFile)
		if err != nil {
			logger.Error("failed to load map file", "path", cfg.Import.MapFile, "error", err)
			os.Exit(1)
		}
		maps = set
	}

	service := core.NewService(backend.Store, backend.History, core.ServiceConfig{
		MaxConcurrent:    cfg.Import.MaxConcurrent,
		MaxWait:          cfg.Import.MaxWaitTime,
		ImportTimeout:    cfg.Import.Timeout,
		CommitThreshold:  cfg.Import.CommitThreshold,
		ProgressInterval: cfg.Import.ProgressInterval,
		Logger:           logger,
	})

	logger.Info("tables registered",
		"count", core.TableCount(),
		"groups", len(core.Groups()),
	)
	for _, group := range core.Groups() {
		logger.Debug("table group", "group", group, "tables", len(core.ByGroup(group)))
	}

	server := web.NewServer(service, cfg, maps)

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		logger.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if status := service.LimiterStatus(); status.Active > 0 {
			logger.Info("waiting for imports to complete", "active", status.Active)
			if err := service.WaitForImports(shutdownCtx); err != nil {
				logger.Warn("imports did not complete in time, cancelling", "error", err)
				service.CancelAll()
			} else {
				logger.Info("all imports completed")
			}
		}

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown error", "error", err)
		}
	}()

	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

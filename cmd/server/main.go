package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/example/ride-share/internal/config"
	httpapi "github.com/example/ride-share/internal/http"
	"github.com/example/ride-share/internal/logging"
	"github.com/example/ride-share/internal/storage"
)

func main() {
	cfg, err := config.LoadServerConfig()
	logger := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	// optional migration: apply migrations/001_create_schema.sql if requested
	if cfg.PGDSN != "" && cfg.RunMigrations {
		pg, err := storage.NewPostgresLedger(cfg.PGDSN)
		if err != nil {
			logger.Error("migration db open", "error", err)
			os.Exit(1)
		}
		if b, err := os.ReadFile(filepath.Join("migrations", "001_create_schema.sql")); err == nil {
			if err := pg.Migrate(context.Background(), string(b)); err != nil {
				logger.Error("migration exec", "error", err)
			} else {
				logger.Info("migration applied", "file", "001_create_schema.sql")
			}
		}
		_ = pg.Close()
	}

	srv, err := httpapi.NewServer(cfg, logger)
	if err != nil {
		logger.Error("server init", "error", err)
		os.Exit(1)
	}

	hs := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      srv,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("ride-share listening", "addr", cfg.HTTPAddr)
		if err := hs.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := hs.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", "error", err)
	}
}

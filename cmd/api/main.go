package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vaidashi/flower-shop-api/internal/api"
	"github.com/vaidashi/flower-shop-api/internal/config"
	"github.com/vaidashi/flower-shop-api/pkg/logger"
)

func main() {
	cfg, err := config.Load()

	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	l := logger.NewLogger(cfg.LogLevel,
		logger.WithField("service", "flower-shop-api"),
		logger.WithField("env", cfg.Env),
		logger.WithFile(logger.FileConfig{
			Path:       cfg.Log.File,
			MaxSizeMB:  cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
			MaxAgeDays: cfg.Log.MaxAgeDays,
		}),
	)
	l.Info("Starting API server...", "version", api.Version)

	server, err := api.NewServer(cfg, l)

	if err != nil {
		l.Error("Failed to initialize server", "error", err)
		os.Exit(1)
	}

	serverErr := make(chan error, 1)

	go func() {
		l.Info("Server is listening", "port", cfg.Port)

		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Graceful shutdown via interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	exitCode := 0

	select {
	case sig := <-quit:
		l.Info("Shutting down server...", "signal", sig.String())
	case err := <-serverErr:
		l.Error("Server failed", "error", err)
		exitCode = 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		l.Error("Server forced to shutdown", "error", err)
		exitCode = 1
	} else {
		l.Info("Server exiting")
	}

	if exitCode != 0 {
		cancel()
		os.Exit(exitCode)
	}
}

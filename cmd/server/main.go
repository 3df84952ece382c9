package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/JonMunkholm/csvjob/internal/application"
	"github.com/JonMunkholm/csvjob/internal/config"
	"github.com/JonMunkholm/csvjob/internal/logging"
	"github.com/JonMunkholm/csvjob/internal/notify"
	"github.com/JonMunkholm/csvjob/internal/web"
	"github.com/joho/godotenv"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	// Load and validate configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Setup structured logging based on config
	logger := logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"backend", cfg.API.BaseURL,
		"poll_interval", cfg.Poll.Interval,
		"rate_limit_enabled", cfg.Rate.Enabled,
		"notify_enabled", cfg.Notify.Enabled(),
	)
	slog.Debug("configuration", "config", cfg.String())

	controller, err := application.NewController(cfg, logger)
	if err != nil {
		slog.Error("failed to create job controller", "error", err)
		os.Exit(1)
	}

	// Create cancellable context for background jobs
	jobCtx, cancelJobs := context.WithCancel(context.Background())
	defer cancelJobs()

	var publisher *notify.Publisher
	if cfg.Notify.Enabled() {
		publisher, err = notify.Dial(cfg.Notify.AMQPURL, cfg.Notify.Exchange, cfg.Notify.RoutingKey, logger)
		if err != nil {
			slog.Error("failed to connect to message broker", "error", err)
			os.Exit(1)
		}
		defer publisher.Close()

		updates, unsubscribe := controller.Subscribe()
		defer unsubscribe()
		go publisher.Run(jobCtx, updates)

		slog.Info("publishing job events", "exchange", cfg.Notify.Exchange, "routing_key", cfg.Notify.RoutingKey)
	}

	server := web.NewServer(controller, cfg)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		// Stop polling
		controller.Cancel()
		cancelJobs()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}

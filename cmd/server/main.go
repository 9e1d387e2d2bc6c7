// Package main implements the entry point for the plotforge pipeline
// server, which fans chart-rendering jobs out into parallel tasks and
// derives job outcomes from their results.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/plotforge/plotforge-api/internal/config"
	"github.com/plotforge/plotforge-api/internal/platform/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "plotforge-api: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log, err := logger.Setup(cfg.Server.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to set up logger: %w", err)
	}

	log.Info("server configuration loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Server.LogLevel,
		"redis_configured", cfg.Redis.Addr != "",
		"worker_count", cfg.Scheduler.WorkerCount)

	app, err := newApplication(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer app.shutdown()

	if err := app.migrate(); err != nil {
		return fmt.Errorf("failed to run database migrations: %w", err)
	}

	app.start()

	// The pipeline runs until asked to stop.
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	sig := <-stop
	log.Info("shutdown signal received", "signal", sig.String())

	return nil
}

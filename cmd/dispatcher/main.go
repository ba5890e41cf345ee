// Package main is the entry point for the simplane dispatcher.
// The dispatcher drains the engine-command outbox into the simulation runtime.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"simplane/internal/config"
	"simplane/internal/dispatcher"
	"simplane/internal/logger"
	"simplane/internal/observability"
	"simplane/internal/store/postgres"
)

const serviceName = "simplane-dispatcher"

func main() {
	// Parse flags
	configPath := flag.String("config", "", "Path to config file (default: simplane.yaml in current directory)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel).With("service", serviceName)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := postgres.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	// Tracing
	shutdownTracer, err := observability.InitTracer(ctx, serviceName, cfg.OTELEndpoint)
	if err != nil {
		log.Error("failed to init tracing", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			log.Warn("failed to shutdown tracer", "error", err)
		}
	}()

	hostname, _ := os.Hostname()
	engine := dispatcher.NewHTTPEngine(cfg.SimulationEngineURL, cfg.InternalSecret, cfg.EngineTimeout)
	d := dispatcher.New(store, engine, dispatcher.Config{
		ID:           fmt.Sprintf("%s-%d", hostname, os.Getpid()),
		Concurrency:  cfg.DispatcherConcurrency,
		PollInterval: cfg.DispatcherPollInterval,
		MaxBackoff:   cfg.DispatcherMaxBackoff,
	}, log)

	go func() {
		if err := d.Run(ctx); err != nil && err != context.Canceled {
			log.Error("dispatcher stopped", "error", err)
		}
	}()

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down dispatcher, draining in-flight deliveries")
	cancel()

	select {
	case <-d.Done():
		log.Info("dispatcher exited properly")
	case <-time.After(30 * time.Second):
		log.Warn("timed out waiting for in-flight deliveries")
	}
}

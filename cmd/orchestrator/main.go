// Package main is the entry point for the simplane orchestrator.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"simplane/internal/access"
	"simplane/internal/broadcast"
	"simplane/internal/config"
	"simplane/internal/controller"
	"simplane/internal/logger"
	"simplane/internal/observability"
	"simplane/internal/orchestrator"
	"simplane/internal/store/postgres"
)

const serviceName = "simplane-orchestrator"

func main() {
	// Parse flags
	migrateFlag := flag.Bool("migrate", false, "Run database migrations before starting")
	configPath := flag.String("config", "", "Path to config file (default: simplane.yaml in current directory)")
	flag.Parse()

	// Load Config
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel).With("service", serviceName)

	fatal := func(msg string, err error) {
		log.Error(msg, "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := postgres.New(ctx, cfg.DatabaseURL)
	if err != nil {
		fatal("failed to connect to database", err)
	}
	defer store.Close()

	// Run migrations if requested
	if *migrateFlag {
		log.Info("running database migrations")
		version, err := postgres.Migrate(store.DB())
		if err != nil {
			fatal("migration failed", err)
		}
		log.Info("migrations completed", "schema_version", version)
	}

	// Tracing
	shutdownTracer, err := observability.InitTracer(ctx, serviceName, cfg.OTELEndpoint)
	if err != nil {
		fatal("failed to init tracing", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			log.Warn("failed to shutdown tracer", "error", err)
		}
	}()

	// Metrics
	metricsHandler, shutdownMetrics, err := observability.InitMetrics()
	if err != nil {
		fatal("failed to init metrics", err)
	}
	defer func() {
		if err := shutdownMetrics(context.Background()); err != nil {
			log.Warn("failed to shutdown metrics", "error", err)
		}
	}()

	live := broadcast.NewRegistry(log)

	// Observable gauges are evaluated only when scraped.
	if err := observability.RegisterGauge(serviceName, "simplane.engine.outbox.depth",
		"Engine commands waiting for delivery", store.Count); err != nil {
		log.Warn("failed to register outbox depth metric", "error", err)
	}
	if err := observability.RegisterGauge(serviceName, "simplane.broadcast.subscribers",
		"Open live subscriptions", func(context.Context) (int64, error) {
			return int64(live.Total()), nil
		}); err != nil {
		log.Warn("failed to register subscriber metric", "error", err)
	}

	checker := access.NewClient(cfg.UserServiceURL, cfg.DesignServiceURL, cfg.AccessTimeout)
	svc := orchestrator.New(store, checker, live, log)

	// Start Server
	addr := fmt.Sprintf(":%d", cfg.HTTPPort)
	srv := controller.New(addr, controller.Deps{
		Service:  svc,
		Pinger:   store,
		Resolver: checker,
		Live:     live,
		Logger:   log,
	}, cfg, metricsHandler)

	go func() {
		log.Info("orchestrator starting", "addr", addr)
		if err := srv.Run(ctx); err != nil {
			log.Error("server stopped", "error", err)
		}
	}()

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down orchestrator")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		fatal("server forced to shutdown", err)
	}
	log.Info("server exited properly")
}

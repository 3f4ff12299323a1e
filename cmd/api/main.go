// Package main provides the HTTP API server that accepts workflow
// creation and approval requests (§6's inbound events) and starts or
// signals the corresponding OrchestratorWorkflow execution.
//
// Usage:
//
//	QUEUE_HOST_PORT=localhost:7233 \
//	STORE_DSN=postgres://... \
//	SERVER_HTTP_PORT=8080 \
//	./api
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/workflowforge/internal/api"
	"github.com/fyrsmithlabs/workflowforge/internal/config"
	"github.com/fyrsmithlabs/workflowforge/internal/logging"
	"github.com/fyrsmithlabs/workflowforge/internal/store"
	"github.com/fyrsmithlabs/workflowforge/internal/telemetry"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.LoadWithFile(os.Getenv("CONFIG_PATH"))
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	tel, err := telemetry.New(ctx, telemetry.FromObservabilityConfig(cfg.Observability))
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}
	defer func() { _ = tel.Shutdown(context.Background()) }()

	logCfg := logging.NewDefaultConfig()
	logCfg.Output.OTEL = tel.IsEnabled()
	log, err := logging.NewLogger(logCfg, tel.LoggerProvider())
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	var st store.Store
	if cfg.Store.DSN.IsSet() {
		pg, err := store.Open(ctx, cfg.Store)
		if err != nil {
			return fmt.Errorf("opening store: %w", err)
		}
		defer pg.Close()
		st = pg
	} else {
		log.Warn(ctx, "STORE_DSN not set, running with the in-memory store")
		st = store.NewMemStore()
	}

	c, err := client.Dial(client.Options{
		HostPort:  cfg.Queue.HostPort,
		Namespace: cfg.Queue.Namespace,
	})
	if err != nil {
		return fmt.Errorf("unable to create Temporal client: %w", err)
	}
	defer c.Close()

	log.Info(ctx, "temporal client connected", zap.String("host", cfg.Queue.HostPort))

	srv, err := api.NewServer(st, c, log.Underlying(), &api.Config{
		Host:             "0.0.0.0",
		Port:             cfg.Server.Port,
		TaskQueue:        cfg.Queue.TaskQueue,
		WorkflowIDPrefix: cfg.Queue.WorkflowIDPrefix,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- srv.Start()
	}()

	select {
	case err := <-serverErrors:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
		log.Info(ctx, "shutdown signal received")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	log.Info(ctx, "server stopped gracefully")
	return nil
}

// Package main provides the Temporal worker that runs every workflow and
// activity workflowforge registers: the orchestrator's long-lived event
// loop (one execution per feature workflow) and the generic stage workflow
// that backs every enqueued job (ingest_context, evaluate_policy,
// apply_patches, and the nine gated pipeline stages).
//
// Usage:
//
//	QUEUE_HOST_PORT=localhost:7233 \
//	STORE_DSN=postgres://... \
//	LLM_API_KEY=sk-ant-... \
//	CODEHOST_TOKEN=ghp_xxx \
//	./orchestrator-worker
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/workflowforge/internal/agents"
	"github.com/fyrsmithlabs/workflowforge/internal/codehost"
	"github.com/fyrsmithlabs/workflowforge/internal/config"
	"github.com/fyrsmithlabs/workflowforge/internal/llm"
	"github.com/fyrsmithlabs/workflowforge/internal/logging"
	"github.com/fyrsmithlabs/workflowforge/internal/orchestrator"
	"github.com/fyrsmithlabs/workflowforge/internal/policy"
	"github.com/fyrsmithlabs/workflowforge/internal/queue"
	"github.com/fyrsmithlabs/workflowforge/internal/runrecorder"
	"github.com/fyrsmithlabs/workflowforge/internal/stages"
	"github.com/fyrsmithlabs/workflowforge/internal/store"
	"github.com/fyrsmithlabs/workflowforge/internal/telemetry"
	"github.com/fyrsmithlabs/workflowforge/internal/writegate"
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
	zapLog := log.Underlying()

	log.Info(ctx, "orchestrator worker starting",
		zap.String("task_queue", cfg.Queue.TaskQueue),
		zap.String("temporal_host", cfg.Queue.HostPort),
	)

	st, closeStore, err := openStore(ctx, cfg.Store)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer closeStore()

	var codeHost codehost.Client
	if cfg.CodeHost.Token.IsSet() {
		limiter := codehost.NewOutboundLimiter(codehost.OutboundLimiterConfig{
			RequestsPerSecond: cfg.CodeHost.RateLimitRPS,
			Burst:             cfg.CodeHost.RateLimitBurst,
			BreakerName:       "codehost-github",
			BreakerMaxFailures: 5,
			BreakerTimeout:    30 * time.Second,
		})
		ghClient, err := codehost.NewGitHubClient(ctx, cfg.CodeHost.Token, limiter)
		if err != nil {
			return fmt.Errorf("creating GitHub client: %w", err)
		}
		codeHost = ghClient
	} else {
		log.Warn(ctx, "CODEHOST_TOKEN not set, running with no code-host client")
	}

	writeGate := writegate.New(codeHost, st)

	provider := llm.NewAnthropicProvider(cfg.LLM.APIKey, cfg.LLM.Model, cfg.LLM.MaxTokens)
	budget := llm.NewCostTracker(llm.Ceilings{
		MaxTokensPerRun:      cfg.LLM.PerRunTokenCeiling,
		MaxTokensPerWorkflow: cfg.LLM.PerWorkflowTokenCeiling,
		MaxCostPerWorkflow:   cfg.LLM.PerWorkflowCostCeiling,
		MaxCostPerDay:        cfg.LLM.PerDayCostCeiling,
	}, st, nil)

	policyCfg, err := loadPolicyConfig(cfg.Policy)
	if err != nil {
		return fmt.Errorf("loading policy config: %w", err)
	}

	registry := agents.NewRegistry(agents.DefaultSpecialists(provider)...)
	strategy := agents.Strategy(cfg.Agents.Strategy)
	resolution := agents.ConflictResolution(cfg.Agents.ConflictResolution)

	runs := runrecorder.New(st, nil)

	c, err := client.Dial(client.Options{
		HostPort:  cfg.Queue.HostPort,
		Namespace: cfg.Queue.Namespace,
	})
	if err != nil {
		return fmt.Errorf("unable to create Temporal client: %w", err)
	}
	defer c.Close()

	log.Info(ctx, "temporal client connected", zap.String("host", cfg.Queue.HostPort))

	publisher := orchestrator.NewTemporalPublisher(c)
	enqueuer := queue.NewTemporalEnqueuer(c)

	deps := &stages.Deps{
		Store:       st,
		Runs:        runs,
		Pub:         publisher,
		CodeHost:    codeHost,
		WriteGate:   writeGate,
		LLM:         provider,
		Budget:      budget,
		PolicyCfg:   policyCfg,
		Agents:      registry,
		Strategy:    strategy,
		Resolution:  resolution,
		Logger:      zapLog,
		AllowHold:   cfg.LLM.AllowSummaryFallback,
		EstCostCall: estimatedCostPerCall(cfg.LLM),
	}
	stageActivities := stages.NewActivities(deps)

	orchestratorActivities := orchestrator.NewActivities(st, enqueuer)

	w := worker.New(c, cfg.Queue.TaskQueue, worker.Options{})

	orchestrator.Register(w, orchestratorActivities)
	stages.Register(w, stageActivities)

	log.Info(ctx, "worker configured",
		zap.String("task_queue", cfg.Queue.TaskQueue),
		zap.Int("stage_job_count", len(stages.JobNames)),
	)

	workerErrors := make(chan error, 1)
	go func() {
		log.Info(ctx, "worker starting")
		workerErrors <- w.Run(worker.InterruptCh())
	}()

	select {
	case err := <-workerErrors:
		if err != nil {
			return fmt.Errorf("worker error: %w", err)
		}
	case <-ctx.Done():
		log.Info(ctx, "shutdown signal received")
	}

	log.Info(ctx, "worker stopped gracefully")
	return nil
}

// openStore opens the Postgres store when STORE_DSN is set, falling back
// to the in-memory store otherwise so the worker can run against a bare
// Temporal dev server with no database (the stub pipeline this repo's
// tests exercise).
func openStore(ctx context.Context, cfg config.StoreConfig) (store.Store, func(), error) {
	if !cfg.DSN.IsSet() {
		return store.NewMemStore(), func() {}, nil
	}
	pg, err := store.Open(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return pg, pg.Close, nil
}

// loadPolicyConfig returns the Gate2 rule set: the built-in defaults,
// overlaid with cfg.ConfigPath's YAML file when set (the same
// rawbytes+yaml koanf pattern internal/config.LoadWithFile uses for the
// top-level config), then the worker-level dependency-change and
// large-diff-bytes env overrides on top.
func loadPolicyConfig(cfg config.PolicyConfig) (*policy.Config, error) {
	pc := policy.DefaultConfig()

	if cfg.ConfigPath != "" {
		content, err := os.ReadFile(cfg.ConfigPath)
		if err != nil {
			return nil, fmt.Errorf("reading policy config %s: %w", cfg.ConfigPath, err)
		}
		k := koanf.New(".")
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("parsing policy config %s: %w", cfg.ConfigPath, err)
		}
		if err := k.Unmarshal("", pc); err != nil {
			return nil, fmt.Errorf("unmarshaling policy config %s: %w", cfg.ConfigPath, err)
		}
	}

	pc.AllowDependencyChanges = cfg.AllowDependencyChanges
	if cfg.LargeDiffBytes > 0 {
		pc.LargeDiffBytes = cfg.LargeDiffBytes
	}
	if err := pc.Validate(); err != nil {
		return nil, err
	}
	return pc, nil
}

// estimatedCostPerCall is the budget pre-check's rough per-call reservation
// (§4.4.1): conservative enough that CheckBudget rejects a call that would
// clearly blow the per-run ceiling, without needing a live token estimate
// before the prompt is built.
func estimatedCostPerCall(cfg config.LLMConfig) float64 {
	if cfg.PerWorkflowCostCeiling <= 0 {
		return 0.5
	}
	return cfg.PerWorkflowCostCeiling / 20
}

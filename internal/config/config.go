// Package config provides configuration loading for the orchestrator
// service.
//
// Configuration is loaded from environment variables, optionally layered
// over a YAML file, with hardcoded defaults as the final fallback. This
// package supports server, observability, store, queue, LLM, code-host,
// and policy configuration.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Config holds the complete orchestrator service configuration.
type Config struct {
	Production    ProductionConfig
	Server        ServerConfig
	Observability ObservabilityConfig
	Store         StoreConfig
	Queue         QueueConfig
	LLM           LLMConfig
	CodeHost      CodeHostConfig
	Policy        PolicyConfig
	Agents        AgentsConfig
}

// ServerConfig holds HTTP API server configuration.
type ServerConfig struct {
	Port            int           `koanf:"http_port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// ObservabilityConfig holds OpenTelemetry configuration.
type ObservabilityConfig struct {
	EnableTelemetry   bool   `koanf:"enable_telemetry"`
	ServiceName       string `koanf:"service_name"`
	OTLPEndpoint      string `koanf:"otlp_endpoint"`        // OTLP endpoint (default: localhost:4317)
	OTLPProtocol      string `koanf:"otlp_protocol"`        // "grpc" or "http/protobuf" (default: grpc)
	OTLPInsecure      bool   `koanf:"otlp_insecure"`        // Use insecure connection (default: true for localhost)
	OTLPTLSSkipVerify bool   `koanf:"otlp_tls_skip_verify"` // Skip TLS verification for internal CAs
}

// StoreConfig holds the relational store connection.
type StoreConfig struct {
	// DSN is the Postgres connection string. Empty means "use the
	// in-memory store", which is how tests and the stub pipeline run
	// without a database.
	DSN         Secret   `koanf:"dsn"`
	MaxConns    int      `koanf:"max_conns"`
	LockTimeout Duration `koanf:"lock_timeout"`
}

// QueueConfig holds Temporal connection settings: every stage job and
// orchestrator signal travels through a Temporal task queue.
type QueueConfig struct {
	HostPort         string `koanf:"host_port"`
	Namespace        string `koanf:"namespace"`
	TaskQueue        string `koanf:"task_queue"`
	WorkflowIDPrefix string `koanf:"workflow_id_prefix"`
}

// LLMConfig holds the LLM provider settings the feasibility, architecture,
// timeline, summary, and patches stages call through (§4.4.1).
type LLMConfig struct {
	APIKey                  Secret  `koanf:"api_key"`
	Model                   string  `koanf:"model"`
	MaxTokens               int64   `koanf:"max_tokens"`
	AllowSummaryFallback    bool    `koanf:"allow_summary_fallback"`
	PerRunTokenCeiling      int     `koanf:"per_run_token_ceiling"`
	PerWorkflowTokenCeiling int     `koanf:"per_workflow_token_ceiling"`
	PerWorkflowCostCeiling  float64 `koanf:"per_workflow_cost_ceiling"`
	PerDayCostCeiling       float64 `koanf:"per_day_cost_ceiling"`
}

// Stubbed reports whether no API key is configured, in which case
// internal/llm falls back to a deterministic stub provider (§9 open
// question: "stub artifacts when no LLM key is configured").
func (c LLMConfig) Stubbed() bool {
	return !c.APIKey.IsSet()
}

// CodeHostConfig holds GitHub client credentials.
type CodeHostConfig struct {
	Token          Secret  `koanf:"token"`
	RateLimitRPS   float64 `koanf:"rate_limit_rps"`
	RateLimitBurst int     `koanf:"rate_limit_burst"`
}

// PolicyConfig points at an optional Gate2 policy override file; when
// empty, internal/policy.DefaultConfig() is used.
type PolicyConfig struct {
	ConfigPath             string `koanf:"config_path"`
	AllowDependencyChanges bool   `koanf:"allow_dependency_changes"`
	LargeDiffBytes         int    `koanf:"large_diff_bytes"`
}

// AgentsConfig controls the patches stage's specialist coordination
// (§4.4.2): which of the four strategies dispatches tasks to agents, and
// how Merge resolves a file touched by more than one proposal.
type AgentsConfig struct {
	Strategy           string `koanf:"strategy"`            // parallel | sequential | priority | specialized
	ConflictResolution string `koanf:"conflict_resolution"` // first-wins | highest-confidence | last-wins | manual
}

// CI toggles whether contract tests against live external collaborators
// run (§6, "feature flags ALLOW_SUMMARY_FALLBACK, CI").
func CI() bool {
	return os.Getenv("CI") == "true" || os.Getenv("CI") == "1"
}

// Load loads configuration from environment variables with defaults.
//
// Environment variables:
//
// Server:
//   - SERVER_HTTP_PORT: HTTP API port (default: 8080)
//   - SERVER_SHUTDOWN_TIMEOUT: graceful shutdown timeout (default: 10s)
//
// Observability:
//   - OBSERVABILITY_ENABLE_TELEMETRY: enable OTel export (default: false)
//   - OBSERVABILITY_SERVICE_NAME: service name for traces (default: workflowforge)
//
// Store:
//   - STORE_DSN: Postgres connection string (empty: use the in-memory store)
//   - STORE_MAX_CONNS: pgxpool max connections (default: 10)
//   - STORE_LOCK_TIMEOUT: per-workflow lock acquisition timeout (default: 5s)
//
// Queue:
//   - QUEUE_HOST_PORT: Temporal frontend address (default: localhost:7233)
//   - QUEUE_NAMESPACE: Temporal namespace (default: default)
//   - QUEUE_TASK_QUEUE: Temporal task queue name (default: workflowforge)
//
// LLM:
//   - LLM_API_KEY: Anthropic API key (empty: stub provider)
//   - LLM_MODEL: Claude model id
//   - LLM_MAX_TOKENS: per-call max tokens (default: 4096)
//   - LLM_ALLOW_SUMMARY_FALLBACK: emit a hold artifact after two failed
//     validation attempts instead of failing the stage (default: false)
//
// CodeHost:
//   - CODEHOST_TOKEN: GitHub token
//   - CODEHOST_RATE_LIMIT_RPS / CODEHOST_RATE_LIMIT_BURST: outbound limiter
//
// Policy:
//   - POLICY_CONFIG_PATH: optional YAML override of the Gate2 rule set
//   - POLICY_ALLOW_DEPENDENCY_CHANGES: WARN instead of BLOCK on dependency
//     manifest changes (default: false)
//
// Agents:
//   - AGENTS_STRATEGY: parallel | sequential | priority | specialized
//     (default: specialized)
//   - AGENTS_CONFLICT_RESOLUTION: first-wins | highest-confidence |
//     last-wins | manual (default: first-wins)
func Load() *Config {
	cfg := &Config{
		Production: loadProductionConfig(),
		Server: ServerConfig{
			Port:            getEnvInt("SERVER_HTTP_PORT", 8080),
			ShutdownTimeout: getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Observability: ObservabilityConfig{
			EnableTelemetry:   getEnvBool("OBSERVABILITY_ENABLE_TELEMETRY", false),
			ServiceName:       getEnvString("OBSERVABILITY_SERVICE_NAME", "workflowforge"),
			OTLPEndpoint:      getEnvString("OBSERVABILITY_OTLP_ENDPOINT", "localhost:4317"),
			OTLPProtocol:      getEnvString("OBSERVABILITY_OTLP_PROTOCOL", "grpc"),
			OTLPInsecure:      getEnvBool("OBSERVABILITY_OTLP_INSECURE", true),
			OTLPTLSSkipVerify: getEnvBool("OBSERVABILITY_OTLP_TLS_SKIP_VERIFY", false),
		},
		Store: StoreConfig{
			DSN:         Secret(getEnvString("STORE_DSN", "")),
			MaxConns:    getEnvInt("STORE_MAX_CONNS", 10),
			LockTimeout: Duration(getEnvDuration("STORE_LOCK_TIMEOUT", 5*time.Second)),
		},
		Queue: QueueConfig{
			HostPort:         getEnvString("QUEUE_HOST_PORT", "localhost:7233"),
			Namespace:        getEnvString("QUEUE_NAMESPACE", "default"),
			TaskQueue:        getEnvString("QUEUE_TASK_QUEUE", "workflowforge"),
			WorkflowIDPrefix: getEnvString("QUEUE_WORKFLOW_ID_PREFIX", "wf"),
		},
		LLM: LLMConfig{
			APIKey:                  Secret(getEnvString("LLM_API_KEY", "")),
			Model:                   getEnvString("LLM_MODEL", ""),
			MaxTokens:               int64(getEnvInt("LLM_MAX_TOKENS", 4096)),
			AllowSummaryFallback:    getEnvBool("LLM_ALLOW_SUMMARY_FALLBACK", false),
			PerRunTokenCeiling:      getEnvInt("LLM_PER_RUN_TOKEN_CEILING", 20000),
			PerWorkflowTokenCeiling: getEnvInt("LLM_PER_WORKFLOW_TOKEN_CEILING", 200000),
			PerWorkflowCostCeiling:  getEnvFloat("LLM_PER_WORKFLOW_COST_CEILING", 10.0),
			PerDayCostCeiling:       getEnvFloat("LLM_PER_DAY_COST_CEILING", 100.0),
		},
		CodeHost: CodeHostConfig{
			Token:          Secret(getEnvString("CODEHOST_TOKEN", "")),
			RateLimitRPS:   getEnvFloat("CODEHOST_RATE_LIMIT_RPS", 10.0),
			RateLimitBurst: getEnvInt("CODEHOST_RATE_LIMIT_BURST", 20),
		},
		Policy: PolicyConfig{
			ConfigPath:             getEnvString("POLICY_CONFIG_PATH", ""),
			AllowDependencyChanges: getEnvBool("POLICY_ALLOW_DEPENDENCY_CHANGES", false),
			LargeDiffBytes:         getEnvInt("POLICY_LARGE_DIFF_BYTES", 10*1024),
		},
		Agents: AgentsConfig{
			Strategy:           getEnvString("AGENTS_STRATEGY", "specialized"),
			ConflictResolution: getEnvString("AGENTS_CONFLICT_RESOLUTION", "first-wins"),
		},
	}
	return cfg
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return errors.New("shutdown timeout must be positive")
	}
	if c.Observability.EnableTelemetry && c.Observability.ServiceName == "" {
		return errors.New("service name required when telemetry is enabled")
	}
	if err := validateHostAndPort(c.Queue.HostPort); err != nil {
		return fmt.Errorf("invalid QUEUE_HOST_PORT: %w", err)
	}
	if c.Store.MaxConns < 1 {
		return fmt.Errorf("STORE_MAX_CONNS must be positive, got %d", c.Store.MaxConns)
	}
	if c.LLM.MaxTokens <= 0 {
		return fmt.Errorf("LLM_MAX_TOKENS must be positive, got %d", c.LLM.MaxTokens)
	}
	if c.Policy.ConfigPath != "" {
		if err := validatePath(c.Policy.ConfigPath); err != nil {
			return fmt.Errorf("invalid POLICY_CONFIG_PATH: %w", err)
		}
	}
	if err := c.Production.Validate(); err != nil {
		return fmt.Errorf("production config validation failed: %w", err)
	}
	return nil
}

// Helper functions for environment variable parsing.

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// ProductionConfig holds production deployment configuration.
type ProductionConfig struct {
	Enabled                  bool `koanf:"enabled"`
	LocalModeAcknowledged    bool `koanf:"local_mode_acknowledged"`
	RequireAuthentication    bool `koanf:"require_authentication"`
	AuthenticationConfigured bool `koanf:"authentication_configured"`
	RequireTLS               bool `koanf:"require_tls"`
}

// IsProduction returns true if running in production mode.
func (c *ProductionConfig) IsProduction() bool {
	return c.Enabled
}

// Validate checks production configuration for security issues.
func (c *ProductionConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.RequireAuthentication && !c.AuthenticationConfigured {
		return fmt.Errorf("SECURITY: RequireAuthentication enabled but authentication not configured")
	}
	return nil
}

func loadProductionConfig() ProductionConfig {
	prodMode := getEnvBool("PRODUCTION_MODE", false)
	localMode := getEnvBool("PRODUCTION_LOCAL_MODE", false)
	return ProductionConfig{
		Enabled:               prodMode,
		LocalModeAcknowledged: localMode,
		RequireAuthentication: prodMode && !localMode,
		RequireTLS:            prodMode && !localMode,
	}
}

// validateHostAndPort checks a "host:port" string is well-formed and the
// host component is safe (no command injection attempts).
func validateHostAndPort(hostport string) error {
	if hostport == "" {
		return nil
	}
	host, _, err := net.SplitHostPort(hostport)
	if err != nil {
		return fmt.Errorf("expected host:port, got %q: %w", hostport, err)
	}
	return validateHostname(host)
}

// validateHostname checks if a hostname is safe (no command injection attempts).
func validateHostname(host string) error {
	if host == "" {
		return nil
	}
	if net.ParseIP(host) != nil {
		return nil
	}
	hostnameRegex := regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?(\.[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)*$`)
	if !hostnameRegex.MatchString(host) {
		return fmt.Errorf("invalid hostname format: %s", host)
	}
	invalidChars := []string{";", "\n", "\r", "$", "`", "|", "&", "<", ">", "(", ")"}
	for _, char := range invalidChars {
		if strings.Contains(host, char) {
			return fmt.Errorf("invalid hostname: contains forbidden character %q", char)
		}
	}
	return nil
}

// validatePath checks if a path is safe (no path traversal).
func validatePath(path string) error {
	if strings.Contains(path, "..") {
		return fmt.Errorf("path contains traversal sequence: %s", path)
	}
	if filepath.IsAbs(path) {
		clean := filepath.Clean(path)
		origDepth := strings.Count(path, string(filepath.Separator))
		cleanDepth := strings.Count(clean, string(filepath.Separator))
		if cleanDepth < origDepth-1 {
			return fmt.Errorf("path traversal detected: %s (resolves to %s)", path, clean)
		}
	}
	return nil
}

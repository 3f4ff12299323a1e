// Package config provides configuration loading for the orchestrator.
package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	maxConfigFileSize = 1024 * 1024 // 1MB
)

// LoadWithFile loads configuration from YAML file, then overrides with
// environment variables.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (SERVER_HTTP_PORT, STORE_DSN, etc.)
//  2. YAML config file (~/.config/workflowforge/config.yaml)
//  3. Hardcoded defaults
//
// The configPath parameter specifies the YAML file to load. If empty, uses
// the default path.
//
// # Security Considerations
//
// File Permissions: Configuration file MUST have 0600 permissions (owner
// read/write only); weaker permissions (e.g. 0644 world-readable) are
// rejected, since this file may carry LLM and code-host credentials.
//
// Path Validation: Only configuration files in allowed directories can be
// loaded: ~/.config/workflowforge/ or /etc/workflowforge/.
//
// File Size Limit: Configuration files larger than 1MB are rejected.
func LoadWithFile(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		configPath = filepath.Join(home, ".config", "workflowforge", "config.yaml")
	}

	if err := validateConfigPath(configPath); err != nil {
		return nil, fmt.Errorf("config path validation failed: %w", err)
	}

	if _, err := os.Stat(configPath); err == nil {
		f, err := os.Open(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open config file: %w", err)
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
		if err := validateConfigFileProperties(info); err != nil {
			return nil, fmt.Errorf("config file validation failed: %w", err)
		}

		content, err := io.ReadAll(f)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Override with environment variables. Environment variables use
	// underscore separator and are uppercased.
	// Example: SERVER_HTTP_PORT -> server.http_port
	if err := k.Load(env.Provider("", ".", func(s string) string {
		lower := strings.ToLower(s)
		parts := strings.SplitN(lower, "_", 2)
		if len(parts) == 1 {
			return lower
		}
		section := parts[0]
		fieldName := parts[1]
		return section + "." + fieldName
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	defaults := Load()
	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	mergeDefaults(&cfg, defaults)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// EnsureConfigDir creates the workflowforge config directory if it doesn't
// exist, with 0700 permissions (owner read/write/execute only).
func EnsureConfigDir() error {
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}
	configDir := filepath.Join(home, ".config", "workflowforge")
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory %s: %w", configDir, err)
	}
	return nil
}

// validateConfigPath checks if path is in allowed directories. This
// validation runs even if the file doesn't exist yet.
func validateConfigPath(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	resolvedPath, err := filepath.EvalSymlinks(absPath)
	if err != nil {
		// Allows validation of paths that don't exist yet.
		resolvedPath = absPath
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}

	allowedDirs := []string{
		filepath.Join(home, ".config", "workflowforge"),
		"/etc/workflowforge",
	}

	allowed := false
	for _, dir := range allowedDirs {
		if strings.HasPrefix(resolvedPath, dir) {
			allowed = true
			break
		}
	}
	if !allowed {
		return fmt.Errorf("config file must be in ~/.config/workflowforge/ or /etc/workflowforge/")
	}
	return nil
}

// validateConfigFileProperties checks file permissions and size. Takes
// FileInfo from an already-opened file descriptor to avoid TOCTOU race.
func validateConfigFileProperties(info os.FileInfo) error {
	if runtime.GOOS != "windows" {
		perm := info.Mode().Perm()
		if perm != 0600 && perm != 0400 {
			return fmt.Errorf("insecure config file permissions: %v (expected 0600 or 0400)", perm)
		}
	}
	if info.Size() > maxConfigFileSize {
		return fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}
	return nil
}

// mergeDefaults fills in zero-valued fields of cfg from defaults, so a
// YAML file or environment that only sets a handful of keys still ends up
// with a fully populated Config.
func mergeDefaults(cfg, defaults *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = defaults.Server.Port
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = defaults.Server.ShutdownTimeout
	}
	if cfg.Observability.ServiceName == "" {
		cfg.Observability.ServiceName = defaults.Observability.ServiceName
	}
	if cfg.Observability.OTLPEndpoint == "" {
		cfg.Observability.OTLPEndpoint = defaults.Observability.OTLPEndpoint
	}
	if cfg.Store.MaxConns == 0 {
		cfg.Store.MaxConns = defaults.Store.MaxConns
	}
	if cfg.Store.LockTimeout == 0 {
		cfg.Store.LockTimeout = defaults.Store.LockTimeout
	}
	if cfg.Queue.HostPort == "" {
		cfg.Queue.HostPort = defaults.Queue.HostPort
	}
	if cfg.Queue.Namespace == "" {
		cfg.Queue.Namespace = defaults.Queue.Namespace
	}
	if cfg.Queue.TaskQueue == "" {
		cfg.Queue.TaskQueue = defaults.Queue.TaskQueue
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = defaults.LLM.Model
	}
	if cfg.LLM.MaxTokens == 0 {
		cfg.LLM.MaxTokens = defaults.LLM.MaxTokens
	}
	if cfg.LLM.PerRunTokenCeiling == 0 {
		cfg.LLM.PerRunTokenCeiling = defaults.LLM.PerRunTokenCeiling
	}
	if cfg.LLM.PerWorkflowTokenCeiling == 0 {
		cfg.LLM.PerWorkflowTokenCeiling = defaults.LLM.PerWorkflowTokenCeiling
	}
	if cfg.LLM.PerWorkflowCostCeiling == 0 {
		cfg.LLM.PerWorkflowCostCeiling = defaults.LLM.PerWorkflowCostCeiling
	}
	if cfg.LLM.PerDayCostCeiling == 0 {
		cfg.LLM.PerDayCostCeiling = defaults.LLM.PerDayCostCeiling
	}
	if cfg.CodeHost.RateLimitRPS == 0 {
		cfg.CodeHost.RateLimitRPS = defaults.CodeHost.RateLimitRPS
	}
	if cfg.CodeHost.RateLimitBurst == 0 {
		cfg.CodeHost.RateLimitBurst = defaults.CodeHost.RateLimitBurst
	}
	if cfg.Policy.LargeDiffBytes == 0 {
		cfg.Policy.LargeDiffBytes = defaults.Policy.LargeDiffBytes
	}
}

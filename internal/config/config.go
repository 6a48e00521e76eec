// Package config loads urlexec's YAML configuration the way the teacher
// loads executor.yaml: a single file, ${ENV_VAR} expansion, a handful of
// environment overrides for secrets/ports, defaults, then validation.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration structure.
type Config struct {
	Engine     EngineConfig     `yaml:"engine"`
	DoLoop     DoLoopConfig     `yaml:"do_loop"`
	HTTPServer HTTPServerConfig `yaml:"http_server"`
	Store      StoreConfig      `yaml:"store"`
	Gateway    GatewayDefaults  `yaml:"gateway"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// EngineConfig holds the Execution Engine's structural limits (spec §4.6).
type EngineConfig struct {
	DefaultDepthLimit      int     `yaml:"default_depth_limit"`
	AliasSubstitutionLimit int     `yaml:"alias_substitution_limit"`
	RequestDeadlineSeconds int     `yaml:"request_deadline_seconds"`
	RequestCostCentsLimit  float64 `yaml:"request_cost_cents_limit"`
}

// DoLoopConfig holds the per-do-loop budget defaults (spec §4.7.2).
type DoLoopConfig struct {
	MaxIterations int     `yaml:"max_iterations"`
	MaxElapsedMS  int64   `yaml:"max_elapsed_ms"`
	MaxCostCents  float64 `yaml:"max_cost_cents"`
}

// HTTPServerConfig holds HTTP server listen settings.
type HTTPServerConfig struct {
	Port                   int    `yaml:"port"`
	Bind                   string `yaml:"bind"`
	ReadTimeoutSeconds     int    `yaml:"read_timeout_seconds"`
	WriteTimeoutSeconds    int    `yaml:"write_timeout_seconds"`
	IdleTimeoutSeconds     int    `yaml:"idle_timeout_seconds"`
	ShutdownTimeoutSeconds int    `yaml:"shutdown_timeout_seconds"`
}

// StoreConfig selects and configures the Store backend (spec §4.3, §4.13).
type StoreConfig struct {
	Backend         string `yaml:"backend"` // "memory" or "redis_cache"
	RedisAddr       string `yaml:"redis_addr"`
	RedisPassword   string `yaml:"redis_password"`
	RedisDB         int    `yaml:"redis_db"`
	CacheTTLSeconds int    `yaml:"cache_ttl_seconds"`
}

// GatewayDefaults holds defaults applied to every gateway route (spec §4.8).
type GatewayDefaults struct {
	UpstreamTimeoutSeconds int   `yaml:"upstream_timeout_seconds"`
	RetryAttempts          int   `yaml:"retry_attempts"`
	RetryBackoffMS         []int `yaml:"retry_backoff_ms"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	Level            string `yaml:"level"`
	Format           string `yaml:"format"`
	Output           string `yaml:"output"`
	ErrorLogDir      string `yaml:"error_log_dir"`
	ErrorLogFilename string `yaml:"error_log_filename"`
}

// Load reads the YAML file at path, expands ${ENV_VAR} references in values,
// unmarshals into Config, applies environment variable overrides, sets
// defaults for any zero-value fields, and validates the result.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading file %q: %w", path, err)
	}

	expanded := os.ExpandEnv(string(raw))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshalling YAML: %w", err)
	}

	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validation: %w", err)
	}

	return &cfg, nil
}

// applyEnvOverrides overwrites specific Config fields when the corresponding
// environment variables are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("URLEXEC_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.HTTPServer.Port = port
		}
	}
	if v := os.Getenv("URLEXEC_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("URLEXEC_STORE_BACKEND"); v != "" {
		cfg.Store.Backend = v
	}
	if v := os.Getenv("URLEXEC_REDIS_ADDR"); v != "" {
		cfg.Store.RedisAddr = v
	}
	if v := os.Getenv("URLEXEC_REDIS_PASSWORD"); v != "" {
		cfg.Store.RedisPassword = v
	}
}

// applyDefaults sets zero-value fields to their documented defaults.
func applyDefaults(cfg *Config) {
	if cfg.Engine.DefaultDepthLimit == 0 {
		cfg.Engine.DefaultDepthLimit = 32
	}
	if cfg.Engine.AliasSubstitutionLimit == 0 {
		cfg.Engine.AliasSubstitutionLimit = 16
	}
	if cfg.Engine.RequestDeadlineSeconds == 0 {
		cfg.Engine.RequestDeadlineSeconds = 500
	}
	if cfg.Engine.RequestCostCentsLimit == 0 {
		cfg.Engine.RequestCostCentsLimit = 0.5
	}

	if cfg.DoLoop.MaxIterations == 0 {
		cfg.DoLoop.MaxIterations = 500
	}
	if cfg.DoLoop.MaxElapsedMS == 0 {
		cfg.DoLoop.MaxElapsedMS = 500000
	}
	if cfg.DoLoop.MaxCostCents == 0 {
		cfg.DoLoop.MaxCostCents = 0.5
	}

	if cfg.HTTPServer.Port == 0 {
		cfg.HTTPServer.Port = 8080
	}
	if cfg.HTTPServer.Bind == "" {
		cfg.HTTPServer.Bind = "0.0.0.0"
	}
	if cfg.HTTPServer.ReadTimeoutSeconds == 0 {
		cfg.HTTPServer.ReadTimeoutSeconds = 30
	}
	if cfg.HTTPServer.WriteTimeoutSeconds == 0 {
		cfg.HTTPServer.WriteTimeoutSeconds = 30
	}
	if cfg.HTTPServer.IdleTimeoutSeconds == 0 {
		cfg.HTTPServer.IdleTimeoutSeconds = 120
	}
	if cfg.HTTPServer.ShutdownTimeoutSeconds == 0 {
		cfg.HTTPServer.ShutdownTimeoutSeconds = 5
	}

	if cfg.Store.Backend == "" {
		cfg.Store.Backend = "memory"
	}
	if cfg.Store.CacheTTLSeconds == 0 {
		cfg.Store.CacheTTLSeconds = 60
	}

	if cfg.Gateway.UpstreamTimeoutSeconds == 0 {
		cfg.Gateway.UpstreamTimeoutSeconds = 60
	}
	if cfg.Gateway.RetryAttempts == 0 {
		cfg.Gateway.RetryAttempts = 3
	}
	if len(cfg.Gateway.RetryBackoffMS) == 0 {
		cfg.Gateway.RetryBackoffMS = []int{2000, 4000, 8000}
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}
}

// Validate returns an error if required fields are missing or values are
// out of range.
func (c *Config) Validate() error {
	if c.Store.Backend != "memory" && c.Store.Backend != "redis_cache" {
		return fmt.Errorf("store.backend must be \"memory\" or \"redis_cache\", got %q", c.Store.Backend)
	}
	if c.Store.Backend == "redis_cache" && c.Store.RedisAddr == "" {
		return fmt.Errorf("store.redis_addr is required when store.backend is redis_cache")
	}
	if c.Engine.DefaultDepthLimit < 1 {
		return fmt.Errorf("engine.default_depth_limit must be >= 1, got %d", c.Engine.DefaultDepthLimit)
	}
	if c.DoLoop.MaxIterations < 1 {
		return fmt.Errorf("do_loop.max_iterations must be >= 1, got %d", c.DoLoop.MaxIterations)
	}
	if c.Gateway.RetryAttempts < 1 {
		return fmt.Errorf("gateway.retry_attempts must be >= 1, got %d", c.Gateway.RetryAttempts)
	}
	return nil
}

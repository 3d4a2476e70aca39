// Package config provides deployment-level configuration for an aiproto
// Client, with hot-reload support: where to find protocol manifests, which
// resilience defaults to run with, and how to log. It carries no
// per-provider catalog of its own — targets are registered at runtime
// through Client.RegisterTarget, and provider wire shapes come from
// manifests, not from this file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level deployment configuration.
type Config struct {
	Manifest   ManifestConfig   `yaml:"manifest"`
	Routing    RoutingConfig    `yaml:"routing"`
	Retry      RetryConfig      `yaml:"retry"`
	Fallback   FallbackConfig   `yaml:"fallback"`
	Preflight  PreflightConfig  `yaml:"preflight"`
	Resilience ResilienceConfig `yaml:"resilience"`
	Transport  TransportConfig  `yaml:"transport"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ManifestConfig controls where the manifest loader looks for protocol
// manifests, beyond whatever is already in the in-process registry.
type ManifestConfig struct {
	Roots           []string `yaml:"roots"`
	RemoteURL       string   `yaml:"remote_url"`
	StrictStreaming bool     `yaml:"strict_streaming"`
}

// RoutingConfig selects the target-ordering strategy a router applies
// before the resilience core walks the resulting fallback chain.
type RoutingConfig struct {
	Strategy string `yaml:"strategy"`
}

// RetryConfig controls same-target retry behavior.
type RetryConfig struct {
	MaxRetries      int           `yaml:"max_retries"`
	MinDelay        time.Duration `yaml:"min_delay"`
	MaxDelay        time.Duration `yaml:"max_delay"`
	Jitter          string        `yaml:"jitter"`
	ExponentialBase float64       `yaml:"exponential_base"`
}

// FallbackConfig carries max_attempts_per_target into
// resilience.FallbackConfig. The executor does not read it: the attempts a
// target gets are set by Retry.MaxRetries, and the chain advances on a
// fallbackable error once those retries are spent.
type FallbackConfig struct {
	MaxAttemptsPerTarget int `yaml:"max_attempts_per_target"`
}

// PreflightConfig controls the backpressure stage of preflight gating.
// MaxConcurrent of zero means unbounded.
type PreflightConfig struct {
	MaxConcurrent int `yaml:"max_concurrent"`
}

// ResilienceConfig seeds the circuit breaker and rate limiter defaults the
// resilience manager applies the first time it sees a new target key.
type ResilienceConfig struct {
	FailureThreshold    int           `yaml:"failure_threshold"`
	SuccessThreshold    int           `yaml:"success_threshold"`
	CooldownPeriod      time.Duration `yaml:"cooldown_period"`
	HalfOpenMaxRequests int           `yaml:"half_open_max_requests"`
	DefaultRate         float64       `yaml:"default_rate"`
	DefaultBurst        int           `yaml:"default_burst"`
}

// TransportConfig controls the HTTP client's timeouts.
type TransportConfig struct {
	ConnectTimeout   time.Duration `yaml:"connect_timeout"`
	RequestTimeout   time.Duration `yaml:"request_timeout"`
	IdleChunkTimeout time.Duration `yaml:"idle_chunk_timeout"`
	TrustEnv         bool          `yaml:"trust_env"`
}

// LoggingConfig controls the level and format of the default logging sink.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultConfig returns a configuration matching the package's own
// zero-config behavior, so LoadFromFile and a programmatic default agree
// when a deployment only overrides a handful of fields.
func DefaultConfig() *Config {
	return &Config{
		Manifest: ManifestConfig{StrictStreaming: true},
		Routing:  RoutingConfig{Strategy: "simple-shuffle"},
		Retry: RetryConfig{
			MaxRetries:      3,
			MinDelay:        time.Second,
			MaxDelay:        60 * time.Second,
			Jitter:          "full",
			ExponentialBase: 2.0,
		},
		Fallback:  FallbackConfig{MaxAttemptsPerTarget: 1},
		Preflight: PreflightConfig{MaxConcurrent: 0},
		Resilience: ResilienceConfig{
			FailureThreshold:    5,
			SuccessThreshold:    2,
			CooldownPeriod:      30 * time.Second,
			HalfOpenMaxRequests: 3,
			DefaultRate:         100,
			DefaultBurst:        50,
		},
		Transport: TransportConfig{
			ConnectTimeout:   10 * time.Second,
			RequestTimeout:   60 * time.Second,
			IdleChunkTimeout: 30 * time.Second,
			TrustEnv:         true,
		},
		Logging: LoggingConfig{Level: "info", Format: "json"},
	}
}

// LoadFromFile reads and parses a YAML configuration file.
// Environment variables in the format ${VAR_NAME} are expanded before
// parsing, so secrets and per-environment values never need to be
// hardcoded into the file itself.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := DefaultConfig()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

var validStrategies = map[string]struct{}{
	"simple-shuffle": {},
	"lowest-latency": {},
	"least-busy":     {},
	"lowest-tpm-rpm": {},
	"lowest-cost":    {},
	"tag-based":      {},
	"":               {},
}

var validJitter = map[string]struct{}{"none": {}, "full": {}, "equal": {}, "": {}}

// Validate checks the configuration for errors a YAML file could
// plausibly introduce: an unknown strategy or jitter name, a negative
// duration or count where only non-negative values make sense.
func (c *Config) Validate() error {
	if _, ok := validStrategies[c.Routing.Strategy]; !ok {
		return fmt.Errorf("routing.strategy: unknown strategy %q", c.Routing.Strategy)
	}
	if _, ok := validJitter[c.Retry.Jitter]; !ok {
		return fmt.Errorf("retry.jitter: unknown strategy %q", c.Retry.Jitter)
	}
	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("retry.max_retries cannot be negative")
	}
	if c.Retry.MinDelay < 0 || c.Retry.MaxDelay < 0 {
		return fmt.Errorf("retry.min_delay/max_delay cannot be negative")
	}
	if c.Fallback.MaxAttemptsPerTarget < 0 {
		return fmt.Errorf("fallback.max_attempts_per_target cannot be negative")
	}
	if c.Preflight.MaxConcurrent < 0 {
		return fmt.Errorf("preflight.max_concurrent cannot be negative")
	}
	if c.Resilience.CooldownPeriod < 0 {
		return fmt.Errorf("resilience.cooldown_period cannot be negative")
	}
	if c.Resilience.FailureThreshold < 0 || c.Resilience.SuccessThreshold < 0 || c.Resilience.HalfOpenMaxRequests < 0 {
		return fmt.Errorf("resilience thresholds cannot be negative")
	}
	if c.Transport.ConnectTimeout < 0 || c.Transport.RequestTimeout < 0 || c.Transport.IdleChunkTimeout < 0 {
		return fmt.Errorf("transport timeouts cannot be negative")
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error", "":
	default:
		return fmt.Errorf("logging.level: unknown level %q", c.Logging.Level)
	}
	return nil
}

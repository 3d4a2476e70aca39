package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Routing.Strategy != "simple-shuffle" {
		t.Errorf("default strategy = %s, want simple-shuffle", cfg.Routing.Strategy)
	}
	if cfg.Retry.MaxRetries != 3 {
		t.Errorf("default max_retries = %d, want 3", cfg.Retry.MaxRetries)
	}
	if cfg.Transport.RequestTimeout != 60*time.Second {
		t.Errorf("default request timeout = %v, want 60s", cfg.Transport.RequestTimeout)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate, got %v", err)
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid default",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "unknown routing strategy",
			mutate:  func(c *Config) { c.Routing.Strategy = "round-robin-ish" },
			wantErr: true,
		},
		{
			name:    "unknown jitter",
			mutate:  func(c *Config) { c.Retry.Jitter = "gaussian" },
			wantErr: true,
		},
		{
			name:    "negative max retries",
			mutate:  func(c *Config) { c.Retry.MaxRetries = -1 },
			wantErr: true,
		},
		{
			name:    "negative min delay",
			mutate:  func(c *Config) { c.Retry.MinDelay = -time.Second },
			wantErr: true,
		},
		{
			name:    "negative fallback attempts",
			mutate:  func(c *Config) { c.Fallback.MaxAttemptsPerTarget = -1 },
			wantErr: true,
		},
		{
			name:    "negative preflight concurrency",
			mutate:  func(c *Config) { c.Preflight.MaxConcurrent = -5 },
			wantErr: true,
		},
		{
			name:    "negative cooldown period",
			mutate:  func(c *Config) { c.Resilience.CooldownPeriod = -time.Second },
			wantErr: true,
		},
		{
			name:    "negative transport timeout",
			mutate:  func(c *Config) { c.Transport.ConnectTimeout = -time.Second },
			wantErr: true,
		},
		{
			name:    "unknown logging level",
			mutate:  func(c *Config) { c.Logging.Level = "verbose" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	t.Run("valid yaml", func(t *testing.T) {
		content := `
routing:
  strategy: lowest-latency
retry:
  max_retries: 5
  min_delay: 2s
`
		path := createTempFile(t, content)
		defer os.Remove(path)

		cfg, err := LoadFromFile(path)
		if err != nil {
			t.Fatalf("LoadFromFile() error = %v", err)
		}

		if cfg.Routing.Strategy != "lowest-latency" {
			t.Errorf("strategy = %s, want lowest-latency", cfg.Routing.Strategy)
		}
		if cfg.Retry.MaxRetries != 5 {
			t.Errorf("max_retries = %d, want 5", cfg.Retry.MaxRetries)
		}
		if cfg.Retry.MinDelay != 2*time.Second {
			t.Errorf("min_delay = %v, want 2s", cfg.Retry.MinDelay)
		}
	})

	t.Run("environment variable expansion", func(t *testing.T) {
		os.Setenv("TEST_MANIFEST_ROOT", "/etc/aiproto/manifests")
		defer os.Unsetenv("TEST_MANIFEST_ROOT")

		content := `
manifest:
  roots:
    - ${TEST_MANIFEST_ROOT}
`
		path := createTempFile(t, content)
		defer os.Remove(path)

		cfg, err := LoadFromFile(path)
		if err != nil {
			t.Fatalf("LoadFromFile() error = %v", err)
		}

		if len(cfg.Manifest.Roots) != 1 || cfg.Manifest.Roots[0] != "/etc/aiproto/manifests" {
			t.Errorf("manifest.roots = %v, want expanded path", cfg.Manifest.Roots)
		}
	})

	t.Run("file not found", func(t *testing.T) {
		_, err := LoadFromFile("/nonexistent/path/config.yaml")
		if err == nil {
			t.Error("expected error for nonexistent file")
		}
	})

	t.Run("invalid yaml", func(t *testing.T) {
		content := `
routing:
  strategy: [invalid
`
		path := createTempFile(t, content)
		defer os.Remove(path)

		_, err := LoadFromFile(path)
		if err == nil {
			t.Error("expected error for invalid yaml")
		}
	})

	t.Run("invalid semantic content fails validation", func(t *testing.T) {
		content := `
routing:
  strategy: not-a-real-strategy
`
		path := createTempFile(t, content)
		defer os.Remove(path)

		_, err := LoadFromFile(path)
		if err == nil {
			t.Error("expected validation error for unknown strategy")
		}
	})
}

func createTempFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	return path
}

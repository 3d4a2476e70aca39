package config

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestNewManager_LoadsInitialConfig(t *testing.T) {
	path := writeConfigFile(t, "routing:\n  strategy: lowest-latency\n")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	mgr, err := NewManager(path, logger)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}

	if mgr.Get().Routing.Strategy != "lowest-latency" {
		t.Fatalf("Get().Routing.Strategy = %q, want lowest-latency", mgr.Get().Routing.Strategy)
	}
}

func TestNewManager_InvalidFileReturnsError(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if _, err := NewManager("/nonexistent/path/config.yaml", logger); err == nil {
		t.Fatal("expected error for nonexistent file")
	}
}

func TestManager_WatchReloadsOnWrite(t *testing.T) {
	path := writeConfigFile(t, "routing:\n  strategy: simple-shuffle\n")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	mgr, err := NewManager(path, logger)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}

	reloaded := make(chan *Config, 1)
	mgr.OnChange(func(c *Config) {
		select {
		case reloaded <- c:
		default:
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := mgr.Watch(ctx); err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	defer mgr.Close()

	if err := os.WriteFile(path, []byte("routing:\n  strategy: least-busy\n"), 0644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}

	select {
	case cfg := <-reloaded:
		if cfg.Routing.Strategy != "least-busy" {
			t.Fatalf("reloaded strategy = %q, want least-busy", cfg.Routing.Strategy)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("config change was never observed")
	}

	if mgr.Get().Routing.Strategy != "least-busy" {
		t.Fatalf("Get().Routing.Strategy = %q, want least-busy", mgr.Get().Routing.Strategy)
	}
}

package aiproto

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aiproto/aiproto/internal/resilience"
	"github.com/aiproto/aiproto/internal/router"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigFile_TranslatesIntoClientConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "aiproto.yaml")
	content := `
manifest:
  roots:
    - /etc/aiproto/manifests
  strict_streaming: false
routing:
  strategy: lowest-latency
retry:
  max_retries: 5
  min_delay: 250ms
  max_delay: 10s
  jitter: equal
  exponential_base: 1.5
fallback:
  max_attempts_per_target: 2
preflight:
  max_concurrent: 64
resilience:
  failure_threshold: 8
  success_threshold: 3
  cooldown_period: 45s
  half_open_max_requests: 2
  default_rate: 200
  default_burst: 25
transport:
  connect_timeout: 5s
  request_timeout: 30s
  idle_chunk_timeout: 15s
  trust_env: false
logging:
  level: debug
  format: text
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadConfigFile(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"/etc/aiproto/manifests"}, cfg.ManifestRoots)
	assert.False(t, cfg.StrictStreaming)
	assert.Equal(t, router.StrategyLowestLatency, cfg.RouterStrategy)

	assert.Equal(t, 5, cfg.RetryConfig.MaxRetries)
	assert.Equal(t, 250*time.Millisecond, cfg.RetryConfig.MinDelay)
	assert.Equal(t, resilience.JitterEqual, cfg.RetryConfig.Jitter)

	assert.Equal(t, 2, cfg.FallbackConfig.MaxAttemptsPerTarget)
	assert.Equal(t, 64, cfg.Preflight.MaxConcurrent)

	assert.Equal(t, 8, cfg.Resilience.CircuitBreaker.FailureThreshold)
	assert.Equal(t, 45*time.Second, cfg.Resilience.CircuitBreaker.Timeout)
	assert.Equal(t, 200.0, cfg.Resilience.DefaultRate)

	assert.Equal(t, 5*time.Second, cfg.Transport.ConnectTimeout)
	assert.False(t, cfg.Transport.TrustEnv)

	require.NotNil(t, cfg.Logger)
}

func TestLoadConfigFile_BuildsAWorkingClient(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "aiproto.yaml")
	require.NoError(t, os.WriteFile(path, []byte("routing:\n  strategy: simple-shuffle\n"), 0o644))

	cfg, err := LoadConfigFile(path)
	require.NoError(t, err)

	client, err := New(cfg)
	require.NoError(t, err)
	require.NotNil(t, client)
}

func TestLoadConfigFile_MissingFileReturnsError(t *testing.T) {
	_, err := LoadConfigFile("/nonexistent/aiproto.yaml")
	assert.Error(t, err)
}

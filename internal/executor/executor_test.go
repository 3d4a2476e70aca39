package executor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aiproto/aiproto/internal/manifest"
	"github.com/aiproto/aiproto/internal/resilience"
	"github.com/aiproto/aiproto/internal/secret"
	"github.com/aiproto/aiproto/internal/secret/env"
	"github.com/aiproto/aiproto/internal/transport"
	"github.com/aiproto/aiproto/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testManifest(t *testing.T) *manifest.ProtocolManifest {
	t.Helper()
	m := &manifest.ProtocolManifest{
		ID:              "openai",
		ProtocolVersion: "2",
		Endpoint: manifest.EndpointConfig{
			BaseURL: "https://unused.example",
			Paths:   map[string]string{"chat": "/v1/chat/completions"},
		},
		Auth: manifest.AuthConfig{Scheme: manifest.AuthBearer, EnvVarName: "OPENAI_API_KEY"},
		Streaming: &manifest.StreamConfig{
			Decoder:          manifest.DecoderSSE,
			ContentPath:      "$.choices[0].delta.content",
			FinishReasonPath: "$.choices[0].finish_reason",
		},
		Capabilities: manifest.Capabilities{Streaming: true},
	}
	require.NoError(t, m.Validate(true))
	return m
}

func testExecutor(t *testing.T, providerID string, servers map[string]*httptest.Server) (*ResilientExecutor, []types.ProviderTarget) {
	t.Helper()

	registry := manifest.NewRegistry()
	registry.Register(testManifest(t))

	loader := manifest.NewLoader(registry, manifest.DefaultLoaderConfig(), nil)

	secrets := secret.NewManager()
	secrets.Register("env", env.New())

	mgr := resilience.NewManager(resilience.DefaultManagerConfig())
	preflight := resilience.NewPreflightChecker(mgr)

	tr := transport.New(transport.Config{
		ConnectTimeout:   time.Second,
		RequestTimeout:   5 * time.Second,
		IdleChunkTimeout: time.Second,
	})

	exec := New(Config{
		Loader:         loader,
		Secrets:        secrets,
		Preflight:      preflight,
		Transport:      tr,
		RetryConfig:    resilience.RetryConfig{MaxRetries: 1, MinDelay: 5 * time.Millisecond, MaxDelay: 10 * time.Millisecond, Jitter: resilience.JitterNone, ExponentialBase: 2},
		FallbackConfig: resilience.DefaultFallbackConfig(),
	})

	targets := make([]types.ProviderTarget, 0, len(servers))
	for key, srv := range servers {
		targets = append(targets, types.ProviderTarget{
			ProviderID:      providerID,
			ModelID:         "gpt-4o",
			BaseURLOverride: srv.URL,
			APIKeySource:    key,
		})
	}
	return exec, targets
}

func sseHandler(frames ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, f := range frames {
			w.Write([]byte("data: " + f + "\n\n"))
			flusher.Flush()
		}
	}
}

func TestExecute_SingleTargetSuccess(t *testing.T) {
	srv := httptest.NewServer(sseHandler(
		`{"choices":[{"delta":{"content":"Hel"}}]}`,
		`{"choices":[{"delta":{"content":"lo"}}]}`,
		`{"choices":[{"finish_reason":"stop"}]}`,
		`[DONE]`,
	))
	defer srv.Close()

	exec, targets := testExecutor(t, "openai", map[string]*httptest.Server{"a": srv})
	t.Setenv("OPENAI_API_KEY", "test-key")

	req := &types.CanonicalRequest{Model: "gpt-4o", Messages: []types.Message{{Role: "user", Content: "hi"}}}
	result, stats, err := exec.Execute(context.Background(), targets, req, ExecuteOptions{Stream: true})
	require.NoError(t, err)
	require.Len(t, result.Choices, 1)
	assert.Equal(t, "Hello", result.Choices[0].Message.Content)
	assert.Equal(t, "stop", result.Choices[0].FinishReason)
	assert.Len(t, stats.Attempts, 1)
	assert.True(t, stats.Attempts[0].Succeeded)
}

func TestExecute_AdaptsRateLimiterFromResponseHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Ratelimit-Remaining", "2")
		w.Header().Set("X-Ratelimit-Reset", "1")
		w.Header().Set("Content-Type", "text/event-stream")
		w.(http.Flusher).Flush()
	}))
	defer srv.Close()

	registry := manifest.NewRegistry()
	registry.Register(testManifest(t))
	loader := manifest.NewLoader(registry, manifest.DefaultLoaderConfig(), nil)

	secrets := secret.NewManager()
	secrets.Register("env", env.New())

	mgr := resilience.NewManager(resilience.DefaultManagerConfig())
	preflight := resilience.NewPreflightChecker(mgr)

	tr := transport.New(transport.Config{ConnectTimeout: time.Second, RequestTimeout: 5 * time.Second, IdleChunkTimeout: time.Second})
	exec := New(Config{
		Loader:         loader,
		Secrets:        secrets,
		Preflight:      preflight,
		Transport:      tr,
		RetryConfig:    resilience.DefaultRetryConfig(),
		FallbackConfig: resilience.DefaultFallbackConfig(),
	})

	target := types.ProviderTarget{ProviderID: "openai", ModelID: "gpt-4o", BaseURLOverride: srv.URL, APIKeySource: "a"}
	mgr.SetRateLimiter(target.Key(), 1000, 5)
	t.Setenv("OPENAI_API_KEY", "test-key")

	req := &types.CanonicalRequest{Model: "gpt-4o", Messages: []types.Message{{Role: "user", Content: "hi"}}}
	_, _, err := exec.Execute(context.Background(), []types.ProviderTarget{target}, req, ExecuteOptions{Stream: true})
	require.NoError(t, err)

	rl := mgr.GetRateLimiter(target.Key())
	assert.Less(t, rl.Rate(), 1000.0, "rate limiter should have adapted down from the response's X-Ratelimit-Remaining/-Reset headers")
}

func TestExecute_RetriesSameTargetThenSucceeds(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(`{"error":{"message":"boom"}}`))
			return
		}
		sseHandler(`{"choices":[{"delta":{"content":"ok"}}]}`, `{"choices":[{"finish_reason":"stop"}]}`, `[DONE]`)(w, r)
	}))
	defer srv.Close()

	exec, targets := testExecutor(t, "openai", map[string]*httptest.Server{"a": srv})
	t.Setenv("OPENAI_API_KEY", "test-key")

	req := &types.CanonicalRequest{Model: "gpt-4o", Messages: []types.Message{{Role: "user", Content: "hi"}}}
	result, stats, err := exec.Execute(context.Background(), targets, req, ExecuteOptions{Stream: true})
	require.NoError(t, err)
	assert.Equal(t, "ok", result.Choices[0].Message.Content)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	require.Len(t, stats.Attempts, 2)
	assert.False(t, stats.Attempts[0].Succeeded)
	assert.True(t, stats.Attempts[1].Succeeded)
}

func TestExecute_FallsBackToSecondTarget(t *testing.T) {
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":{"message":"down"}}`))
	}))
	defer bad.Close()

	good := httptest.NewServer(sseHandler(
		`{"choices":[{"delta":{"content":"fallback ok"}}]}`,
		`{"choices":[{"finish_reason":"stop"}]}`,
		`[DONE]`,
	))
	defer good.Close()

	exec, _ := testExecutor(t, "openai", nil)
	targets := []types.ProviderTarget{
		{ProviderID: "openai", ModelID: "gpt-4o", BaseURLOverride: bad.URL},
		{ProviderID: "openai", ModelID: "gpt-4o", BaseURLOverride: good.URL},
	}
	t.Setenv("OPENAI_API_KEY", "test-key")

	req := &types.CanonicalRequest{Model: "gpt-4o", Messages: []types.Message{{Role: "user", Content: "hi"}}}
	opts := ExecuteOptions{
		Stream:      true,
		RetryConfig: &resilience.RetryConfig{MaxRetries: 0, Jitter: resilience.JitterNone, ExponentialBase: 2},
	}
	result, stats, err := exec.Execute(context.Background(), targets, req, opts)
	require.NoError(t, err)
	assert.Equal(t, "fallback ok", result.Choices[0].Message.Content)
	assert.Equal(t, good.URL, stats.FinalTarget.BaseURLOverride)
	require.Len(t, stats.Attempts, 2)
	assert.False(t, stats.Attempts[0].Succeeded)
	assert.True(t, stats.Attempts[1].Succeeded)
}

func TestExecute_NonFallbackableErrorStopsChain(t *testing.T) {
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"bad request"}}`))
	}))
	defer bad.Close()
	var secondTargetCalls int32
	neverCalled := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&secondTargetCalls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer neverCalled.Close()

	exec, _ := testExecutor(t, "openai", nil)
	targets := []types.ProviderTarget{
		{ProviderID: "openai", ModelID: "gpt-4o", BaseURLOverride: bad.URL},
		{ProviderID: "openai", ModelID: "gpt-4o", BaseURLOverride: neverCalled.URL},
	}
	t.Setenv("OPENAI_API_KEY", "test-key")

	req := &types.CanonicalRequest{Model: "gpt-4o", Messages: []types.Message{{Role: "user", Content: "hi"}}}
	_, stats, err := exec.Execute(context.Background(), targets, req, ExecuteOptions{Stream: true})
	require.Error(t, err)
	assert.Len(t, stats.Attempts, 1)
	assert.Equal(t, int32(0), atomic.LoadInt32(&secondTargetCalls))
}

func TestExecuteStream_CancelMidStreamClosesChannel(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		w.Write([]byte("data: {\"choices\":[{\"delta\":{\"content\":\"first\"}}]}\n\n"))
		flusher.Flush()
		<-block
	}))
	defer srv.Close()

	exec, targets := testExecutor(t, "openai", map[string]*httptest.Server{"a": srv})
	t.Setenv("OPENAI_API_KEY", "test-key")

	req := &types.CanonicalRequest{Model: "gpt-4o", Messages: []types.Message{{Role: "user", Content: "hi"}}}

	ctx, cancel := context.WithCancel(context.Background())
	events, _, err := exec.ExecuteStream(ctx, targets, req, ExecuteOptions{Stream: true})
	require.NoError(t, err)

	first := <-events
	assert.Equal(t, types.EventPartialContentDelta, first.Kind)

	cancel()
	close(block)

	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.Kind == types.EventStreamError {
				require.NotNil(t, ev.Err)
			}
		case <-deadline:
			t.Fatal("event channel never closed after cancellation")
		}
	}
}

func TestExecute_NoTargets(t *testing.T) {
	exec, _ := testExecutor(t, "openai", nil)
	req := &types.CanonicalRequest{Model: "gpt-4o"}
	_, _, err := exec.Execute(context.Background(), nil, req, ExecuteOptions{})
	assert.ErrorIs(t, err, resilience.ErrNoTargets)
}

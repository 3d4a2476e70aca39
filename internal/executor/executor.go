// Package executor glues the manifest loader, request builder, resilience
// core, transport, and streaming pipeline into the two operations a caller
// actually wants: run one logical request to completion, or stream its
// canonical events, across an ordered fallback chain of targets.
package executor

import (
	"context"
	"log/slog"
	"time"

	"github.com/aiproto/aiproto/internal/cancel"
	"github.com/aiproto/aiproto/internal/manifest"
	"github.com/aiproto/aiproto/internal/observability"
	"github.com/aiproto/aiproto/internal/resilience"
	"github.com/aiproto/aiproto/internal/secret"
	"github.com/aiproto/aiproto/internal/transport"
	"github.com/aiproto/aiproto/pkg/types"
	"github.com/google/uuid"
)

// Config bundles the shared, process-wide collaborators a ResilientExecutor
// is built from. One Config is typically constructed at startup and reused
// for every request.
type Config struct {
	Loader    *manifest.Loader
	Secrets   *secret.Manager
	Preflight *resilience.PreflightChecker
	Transport *transport.Client
	Sink      *observability.SinkManager

	RetryConfig     resilience.RetryConfig
	FallbackConfig  resilience.FallbackConfig
	PreflightConfig resilience.PreflightConfig
}

// ExecuteOptions carries per-call overrides layered on top of Config's
// process-wide defaults.
type ExecuteOptions struct {
	Stream         bool
	FanOut         bool
	APIKeyOverride string

	// Token, if set, is the cancellation token threaded through preflight
	// waits, transport I/O, and pipeline iteration. Callers that want to
	// cancel a request after issuing it must supply their own Token so
	// they retain a handle to call Cancel on; a nil Token gets one
	// derived from ctx that only the ctx's own cancellation can trigger.
	Token *cancel.Token

	RetryConfig     *resilience.RetryConfig
	FallbackConfig  *resilience.FallbackConfig
	PreflightConfig *resilience.PreflightConfig
}

// ResilientExecutor runs one logical request across an ordered list of
// targets, applying preflight gating, retry with backoff, and fallback per
// spec. It owns CallStats for the lifetime of the call; no other component
// mutates it.
type ResilientExecutor struct {
	cfg Config
}

// New builds a ResilientExecutor from cfg.
func New(cfg Config) *ResilientExecutor {
	return &ResilientExecutor{cfg: cfg}
}

// Execute runs req to completion against targets, draining the full
// canonical event stream internally and folding it into a single
// ChatResult. Equivalent to calling ExecuteStream and folding the result
// yourself, provided for callers that don't want to consume a channel.
func (e *ResilientExecutor) Execute(ctx context.Context, targets []types.ProviderTarget, req *types.CanonicalRequest, opts ExecuteOptions) (*types.ChatResult, *types.CallStats, error) {
	events, stats, err := e.ExecuteStream(ctx, targets, req, opts)
	if err != nil {
		return nil, stats, err
	}

	result, foldErr := foldEvents(stats.FinalTarget, events)
	stats.EndedAt = time.Now()
	stats.TotalDuration = stats.EndedAt.Sub(stats.StartedAt)
	if foldErr != nil {
		return nil, stats, foldErr
	}
	return result, stats, nil
}

// ExecuteStream runs req across targets and returns the canonical event
// stream as it is produced. The returned channel is closed exactly once,
// after a terminal StreamEnd or StreamError event has been sent. stats is
// returned immediately but only reaches its final values once the channel
// closes.
func (e *ResilientExecutor) ExecuteStream(ctx context.Context, targets []types.ProviderTarget, req *types.CanonicalRequest, opts ExecuteOptions) (<-chan types.CanonicalEvent, *types.CallStats, error) {
	if len(targets) == 0 {
		return nil, nil, resilience.ErrNoTargets
	}

	stats := &types.CallStats{
		RequestID: uuid.New().String(),
		StartedAt: time.Now(),
	}

	token := opts.Token
	if token == nil {
		token = cancel.New(ctx)
	}

	fallbackCfg := e.cfg.FallbackConfig
	if opts.FallbackConfig != nil {
		fallbackCfg = *opts.FallbackConfig
	}
	chain := resilience.NewFallbackChain(targets, fallbackCfg)

	retryCfg := e.cfg.RetryConfig
	if opts.RetryConfig != nil {
		retryCfg = *opts.RetryConfig
	}
	retryPolicy := resilience.NewRetryPolicy(retryCfg)

	preflightCfg := e.cfg.PreflightConfig
	if opts.PreflightConfig != nil {
		preflightCfg = *opts.PreflightConfig
	}

	out := make(chan types.CanonicalEvent)

	e.emit(ctx, "request_start", map[string]any{
		"request_id": stats.RequestID,
		"targets":    len(targets),
		"stream":     opts.Stream,
	})

	run := &attemptRun{
		executor:     e,
		chain:        chain,
		retryPolicy:  retryPolicy,
		preflightCfg: preflightCfg,
		token:        token,
		stats:        stats,
		req:          req,
		opts:         opts,
	}
	go run.loop(token.Context(), out)

	return out, stats, nil
}

func (e *ResilientExecutor) emit(ctx context.Context, name string, attrs map[string]any) {
	if e.cfg.Sink == nil {
		return
	}
	e.cfg.Sink.Emit(ctx, observability.Event{
		Timestamp:  time.Now(),
		Level:      sinkLevel(name),
		Name:       name,
		Attributes: attrs,
	})
}

// sinkLevel assigns a log level per event name so a LoggerSink renders
// retries/fallbacks/failures more prominently than routine lifecycle
// events without every call site having to know the mapping.
func sinkLevel(name string) slog.Level {
	switch name {
	case "retry", "fallback", "circuit_state_change":
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

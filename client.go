// Package aiproto is a protocol-driven, provider-agnostic LLM API client.
// A Client holds no fluent builder surface: callers construct a
// CanonicalRequest, register targets with a Router, and call Execute or
// ExecuteStream. Manifests describe providers as data; the core never
// hardcodes a catalog.
package aiproto

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aiproto/aiproto/internal/cancel"
	"github.com/aiproto/aiproto/internal/executor"
	"github.com/aiproto/aiproto/internal/manifest"
	"github.com/aiproto/aiproto/internal/observability"
	"github.com/aiproto/aiproto/internal/resilience"
	"github.com/aiproto/aiproto/internal/router"
	"github.com/aiproto/aiproto/internal/secret"
	"github.com/aiproto/aiproto/internal/secret/env"
	"github.com/aiproto/aiproto/internal/secret/vault"
	"github.com/aiproto/aiproto/internal/transport"
	"github.com/aiproto/aiproto/pkg/types"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

// Config bundles everything needed to stand up a Client. Zero-value fields
// fall back to the package defaults used throughout internal/*.
type Config struct {
	// ManifestRoots are filesystem directories searched for protocol
	// manifests, in addition to AI_PROTOCOL_PATH and the in-process
	// registry. See manifest.LoaderConfig.Roots.
	ManifestRoots []string
	// ManifestRemoteURL is queried as a last resort for an unresolved
	// provider ID.
	ManifestRemoteURL string
	// StrictStreaming requires streaming manifests to declare content_path.
	StrictStreaming bool

	RouterStrategy router.Strategy
	RetryConfig    resilience.RetryConfig
	FallbackConfig resilience.FallbackConfig
	Preflight      resilience.PreflightConfig
	Resilience     resilience.ManagerConfig
	Transport      transport.Config

	// Vault, if set, registers a "vault://" secret provider alongside the
	// always-registered "env://" one, so a target's "vault://..."
	// APIKeySource can resolve against HashiCorp Vault. A manifest's
	// auth.env_var_name is always read through "env://". Left nil, only
	// "env://" resolves.
	Vault *vault.Config

	Logger *slog.Logger
	// Redactor scrubs sensitive attributes (API keys, bearer tokens) from
	// every emitted Event before any sink sees them. Nil disables
	// redaction; only appropriate in tests.
	Redactor *observability.Redactor

	// Tracing configures an OpenTelemetry TracerProvider wrapping every
	// Execute/ExecuteStream call in an "aiproto.execute" span. Left at its
	// zero value (Enabled: false), InitTracing still returns a working
	// no-op tracer so StartLLMSpan is always safe to call.
	Tracing observability.TracingConfig
}

// vaultSecretCacheTTL bounds how long a Vault-resolved API key is reused
// before the next request re-reads it, so a per-attempt secret lookup
// doesn't turn into a Vault round trip on every call.
const vaultSecretCacheTTL = 5 * time.Minute

// DefaultConfig returns the defaults every internal package already
// documents as its own zero-config behavior.
func DefaultConfig() Config {
	return Config{
		StrictStreaming: true,
		RouterStrategy:  router.StrategySimpleShuffle,
		RetryConfig:     resilience.DefaultRetryConfig(),
		FallbackConfig:  resilience.DefaultFallbackConfig(),
		Preflight:       resilience.DefaultPreflightConfig(),
		Resilience:      resilience.DefaultManagerConfig(),
		Transport:       transport.ConfigFromEnv(),
		Tracing:         observability.TracingConfigFromEnv(),
	}
}

// Client is the library's single entry point: register manifests and
// targets, then call Execute/ExecuteStream. Safe for concurrent use.
type Client struct {
	loader  *manifest.Loader
	router  router.Router
	exec    *executor.ResilientExecutor
	sinks   *observability.SinkManager
	secrets *secret.Manager
	tracer  *observability.TracerProvider

	mu     sync.Mutex
	tokens map[string]*cancel.Token
}

// New builds a Client from cfg. Besides goroutines started per in-flight
// request, the Client may run a Vault token renewer (when cfg.Vault is set)
// and the tracer's batch span exporter (when tracing is enabled); Close
// stops both.
func New(cfg Config) (*Client, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	loader := manifest.NewLoader(manifest.NewRegistry(), manifest.LoaderConfig{
		Roots:           cfg.ManifestRoots,
		RemoteURL:       cfg.ManifestRemoteURL,
		StrictStreaming: cfg.StrictStreaming,
		CacheTTL:        manifest.DefaultLoaderConfig().CacheTTL,
	}, logger)

	routerDefaults := router.DefaultRouterConfig()
	rt, err := router.New(router.RouterConfig{
		Strategy:           cfg.RouterStrategy,
		CooldownPeriod:     routerDefaults.CooldownPeriod,
		LatencyBuffer:      routerDefaults.LatencyBuffer,
		MaxLatencyListSize: routerDefaults.MaxLatencyListSize,
		MetricsTTL:         routerDefaults.MetricsTTL,
		EnableTagFiltering: true,
	})
	if err != nil {
		return nil, fmt.Errorf("aiproto: %w", err)
	}

	sinks := observability.NewSinkManager(cfg.Redactor)
	sinks.Register(observability.NewLoggerSink(observability.NewLogger(observability.LoggerConfig{
		Level:      slog.LevelInfo,
		JSONFormat: true,
	}, cfg.Redactor)))

	secrets := secret.NewManager()
	secrets.Register("env", env.New())
	if cfg.Vault != nil {
		vaultProvider, err := vault.New(*cfg.Vault)
		if err != nil {
			return nil, fmt.Errorf("aiproto: vault secret provider: %w", err)
		}
		secrets.Register("vault", secret.NewCachedProvider(vaultProvider, vaultSecretCacheTTL))
	}

	tracer, err := observability.InitTracing(context.Background(), cfg.Tracing)
	if err != nil {
		return nil, fmt.Errorf("aiproto: tracing: %w", err)
	}

	exec := executor.New(executor.Config{
		Loader:          loader,
		Secrets:         secrets,
		Preflight:       resilience.NewPreflightChecker(resilience.NewManager(cfg.Resilience)),
		Transport:       transport.New(cfg.Transport),
		Sink:            sinks,
		RetryConfig:     cfg.RetryConfig,
		FallbackConfig:  cfg.FallbackConfig,
		PreflightConfig: cfg.Preflight,
	})

	return &Client{
		loader:  loader,
		router:  rt,
		exec:    exec,
		sinks:   sinks,
		secrets: secrets,
		tracer:  tracer,
		tokens:  make(map[string]*cancel.Token),
	}, nil
}

// Close releases resources held by registered secret providers (notably a
// Vault provider's background token renewer) and shuts down the tracer
// provider, flushing any batched spans. Safe to call once a Client is no
// longer needed; in-flight calls should be cancelled first.
func (c *Client) Close() error {
	err := c.secrets.Close()
	if shutdownErr := c.tracer.Shutdown(context.Background()); shutdownErr != nil && err == nil {
		err = shutdownErr
	}
	return err
}

// RegisterTarget adds target to the router's pool for target.ModelID, using
// routing config rcfg for weight/cost/tag-based strategies.
func (c *Client) RegisterTarget(target types.ProviderTarget, rcfg router.TargetConfig) {
	c.router.AddTargetWithConfig(target, rcfg)
}

// RemoveTarget removes a previously registered target by its stable key
// (types.ProviderTarget.Key()).
func (c *Client) RemoveTarget(key string) {
	c.router.RemoveTarget(key)
}

// RegisterSink adds sink to the set notified of every observability.Event
// the executor and streaming pipeline emit.
func (c *Client) RegisterSink(sink observability.Sink) {
	c.sinks.Register(sink)
}

// LoadManifest resolves and validates the protocol manifest for providerID,
// exposing the same resolution chain Execute uses internally.
func (c *Client) LoadManifest(ctx context.Context, providerID string) (*manifest.ProtocolManifest, error) {
	return c.loader.Load(ctx, providerID)
}

// CallOptions carries per-call overrides. Tags, if set, replace req.Tags
// for tag-based routing.
type CallOptions struct {
	Stream         bool
	FanOut         bool
	APIKeyOverride string
	Tags           []string

	RetryConfig     *resilience.RetryConfig
	FallbackConfig  *resilience.FallbackConfig
	PreflightConfig *resilience.PreflightConfig
}

// Execute routes req.Model through the registered router, then runs it to
// completion across the resulting fallback chain. The returned requestID
// can be passed to Cancel while the call is in flight.
func (c *Client) Execute(ctx context.Context, req *types.CanonicalRequest, opts CallOptions) (*types.ChatResult, *types.CallStats, string, error) {
	requestID, token, targets, err := c.prepare(ctx, req, opts)
	if err != nil {
		return nil, nil, "", err
	}
	defer c.forget(requestID)

	ctx, span := c.startSpan(ctx, req, opts, targets)
	defer span.End()

	result, stats, err := c.exec.Execute(ctx, targets, req, c.execOptions(token, opts))
	c.endSpan(span, result, err)
	return result, stats, requestID, err
}

// ExecuteStream is Execute's streaming counterpart: it returns the
// canonical event channel instead of a folded ChatResult.
func (c *Client) ExecuteStream(ctx context.Context, req *types.CanonicalRequest, opts CallOptions) (<-chan types.CanonicalEvent, *types.CallStats, string, error) {
	requestID, token, targets, err := c.prepare(ctx, req, opts)
	if err != nil {
		return nil, nil, "", err
	}

	ctx, span := c.startSpan(ctx, req, opts, targets)

	events, stats, err := c.exec.ExecuteStream(ctx, targets, req, c.execOptions(token, opts))
	if err != nil {
		c.endSpan(span, nil, err)
		span.End()
		c.forget(requestID)
		return nil, nil, "", err
	}

	out := make(chan types.CanonicalEvent)
	go func() {
		defer close(out)
		defer c.forget(requestID)
		defer span.End()

		var usage *types.Usage
		var finishReason string
		var streamErr error
		for ev := range events {
			if ev.Usage != nil {
				usage = ev.Usage
			}
			if ev.FinishReason != "" {
				finishReason = ev.FinishReason
			}
			if ev.Kind == types.EventStreamError && ev.Err != nil {
				streamErr = fmt.Errorf("%s: %s", ev.Err.Kind, ev.Err.Message)
			}
			out <- ev
		}

		inputTokens, outputTokens := 0, 0
		if usage != nil {
			inputTokens, outputTokens = usage.PromptTokens, usage.CompletionTokens
		}
		observability.RecordLLMResponse(span, inputTokens, outputTokens, finishReason)
		if streamErr != nil {
			observability.RecordError(span, streamErr)
		}
	}()

	return out, stats, requestID, nil
}

// Cancel cancels the in-flight call identified by requestID (the value
// returned by Execute/ExecuteStream), recording reason on its Token. It
// reports false if no such call is currently tracked.
func (c *Client) Cancel(requestID string, reason string) bool {
	c.mu.Lock()
	token, ok := c.tokens[requestID]
	c.mu.Unlock()
	if !ok {
		return false
	}
	token.Cancel(errors.New(reason))
	return true
}

// prepare picks an ordered target list for req.Model, mints a cancellation
// token tracked under a fresh requestID, and returns everything Execute/
// ExecuteStream need.
func (c *Client) prepare(ctx context.Context, req *types.CanonicalRequest, opts CallOptions) (string, *cancel.Token, []types.ProviderTarget, error) {
	tags := opts.Tags
	if len(tags) == 0 {
		tags = req.Tags
	}

	targets, err := c.orderedTargets(ctx, req.Model, tags)
	if err != nil {
		return "", nil, nil, err
	}

	requestID := uuid.New().String()
	token := cancel.New(ctx)

	c.mu.Lock()
	c.tokens[requestID] = token
	c.mu.Unlock()

	return requestID, token, targets, nil
}

func (c *Client) forget(requestID string) {
	c.mu.Lock()
	delete(c.tokens, requestID)
	c.mu.Unlock()
}

func (c *Client) execOptions(token *cancel.Token, opts CallOptions) executor.ExecuteOptions {
	return executor.ExecuteOptions{
		Stream:          opts.Stream,
		FanOut:          opts.FanOut,
		APIKeyOverride:  opts.APIKeyOverride,
		Token:           token,
		RetryConfig:     opts.RetryConfig,
		FallbackConfig:  opts.FallbackConfig,
		PreflightConfig: opts.PreflightConfig,
	}
}

// startSpan opens an "aiproto.execute" span over the first candidate target
// in targets (the one the router picked), returning a context carrying the
// span. The executor and transport open no spans of their own.
func (c *Client) startSpan(ctx context.Context, req *types.CanonicalRequest, opts CallOptions, targets []types.ProviderTarget) (context.Context, trace.Span) {
	attrs := observability.LLMSpanAttributes{Stream: opts.Stream}
	if len(targets) > 0 {
		attrs.Provider = targets[0].ProviderID
	}
	attrs.Model = req.Model
	return observability.StartLLMSpan(ctx, c.tracer.Tracer(), "aiproto.execute", attrs)
}

// endSpan records the outcome of an Execute call on span. It does not End
// the span; callers defer that separately so streaming calls can keep the
// span open until the event channel drains.
func (c *Client) endSpan(span trace.Span, result *types.ChatResult, err error) {
	if err != nil {
		observability.RecordError(span, err)
		return
	}
	inputTokens, outputTokens, finishReason := 0, 0, ""
	if result != nil {
		if result.Usage != nil {
			inputTokens, outputTokens = result.Usage.PromptTokens, result.Usage.CompletionTokens
		}
		if len(result.Choices) > 0 {
			finishReason = result.Choices[0].FinishReason
		}
	}
	observability.RecordLLMResponse(span, inputTokens, outputTokens, finishReason)
}

// orderedTargets asks the router for its best pick, then appends the
// remaining registered targets for model (minus the pick) in registration
// order, giving the executor's FallbackChain a full priority list instead
// of the single target Router.Pick is built to return.
func (c *Client) orderedTargets(ctx context.Context, model string, tags []string) ([]types.ProviderTarget, error) {
	all := c.router.GetTargets(model)
	if len(all) == 0 {
		return nil, fmt.Errorf("aiproto: no targets registered for model %q", model)
	}

	best, err := c.router.PickWithContext(ctx, &router.RequestContext{Model: model, Tags: tags})
	if err != nil {
		return nil, fmt.Errorf("aiproto: %w", err)
	}

	ordered := make([]types.ProviderTarget, 0, len(all))
	ordered = append(ordered, best)
	for _, t := range all {
		if t.Key() == best.Key() {
			continue
		}
		ordered = append(ordered, t)
	}
	return ordered, nil
}

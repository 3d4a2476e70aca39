package executor

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/aiproto/aiproto/internal/cancel"
	"github.com/aiproto/aiproto/internal/httputil"
	"github.com/aiproto/aiproto/internal/manifest"
	"github.com/aiproto/aiproto/internal/reqbuilder"
	"github.com/aiproto/aiproto/internal/resilience"
	"github.com/aiproto/aiproto/internal/streampipe"
	aierrors "github.com/aiproto/aiproto/pkg/errors"
	"github.com/aiproto/aiproto/pkg/types"
	json "github.com/goccy/go-json"
	"github.com/tidwall/gjson"
)

// outcome is what the attempt loop should do next after one preflight+
// transport+pipeline attempt against a single target.
type outcome int

const (
	outcomeSuccess outcome = iota
	outcomeRetry
	outcomeFallback
	outcomeTerminal
)

// attemptRun holds everything one ExecuteStream call threads through its
// target/attempt loop. It is built once per call and never shared.
type attemptRun struct {
	executor     *ResilientExecutor
	chain        *resilience.FallbackChain
	retryPolicy  *resilience.RetryPolicy
	preflightCfg resilience.PreflightConfig
	token        *cancel.Token
	stats        *types.CallStats
	req          *types.CanonicalRequest
	opts         ExecuteOptions
}

// loop walks the fallback chain, retrying within each target per
// retryPolicy, until a target succeeds or every target has been exhausted
// without a fallbackable path forward. Exactly one terminal event (success
// path's StreamEnd, or a synthesized StreamError here) reaches out.
func (r *attemptRun) loop(ctx context.Context, out chan<- types.CanonicalEvent) {
	defer close(out)

	var final aierrors.Classified
	haveFinal := false

targets:
	for {
		target, ok := r.chain.Current()
		if !ok {
			break targets
		}

		m, loadErr := r.executor.cfg.Loader.Load(ctx, target.ProviderID)
		if loadErr != nil {
			final = aierrors.Classified{Kind: aierrors.KindInvalidRequest, Message: loadErr.Error()}
			haveFinal = true
			break targets
		}

		for attempt := 0; ; attempt++ {
			if r.token.Cancelled() {
				final = aierrors.Classified{Kind: aierrors.KindCancelled, Message: "request cancelled"}
				haveFinal = true
				break targets
			}

			classified, result := r.tryOnce(ctx, m, target, attempt, out)
			final = classified
			haveFinal = true

			switch result {
			case outcomeSuccess:
				return
			case outcomeFallback:
				r.executor.emit(ctx, "fallback", map[string]any{
					"request_id":      r.stats.RequestID,
					"original_target": target.String(),
					"kind":            string(classified.Kind),
				})
				r.chain.Advance()
				continue targets
			case outcomeTerminal:
				break targets
			}

			// outcomeRetry: back off, honoring cancellation, then retry
			// the same target.
			if sleepErr := r.retryPolicy.Sleep(r.token.Context(), attempt, classified); sleepErr != nil {
				final = aierrors.Classified{Kind: aierrors.KindCancelled, Message: "cancelled during retry backoff"}
				break targets
			}
			r.executor.emit(ctx, "retry", map[string]any{
				"request_id": r.stats.RequestID,
				"target":     target.String(),
				"attempt":    attempt + 1,
				"kind":       string(classified.Kind),
			})
		}
	}

	if !haveFinal {
		final = aierrors.Classified{Kind: aierrors.KindUnknown, Message: "no targets attempted"}
	}
	r.executor.emit(ctx, "request_end", map[string]any{
		"request_id": r.stats.RequestID,
		"success":    false,
		"error":      aierrors.New(final, r.stats.FinalTarget.ProviderID, r.stats.FinalTarget.ModelID, len(r.stats.Attempts)),
	})

	c := final
	select {
	case out <- types.CanonicalEvent{Kind: types.EventStreamError, Err: &c}:
	case <-r.token.Context().Done():
	}
}

// tryOnce runs preflight, builds and issues the wire request, and on a
// successful response drives the streaming pipeline to completion,
// forwarding every event to out. It returns the classified error (zero
// value on success) and what the caller should do next.
func (r *attemptRun) tryOnce(ctx context.Context, m *manifest.ProtocolManifest, target types.ProviderTarget, attempt int, out chan<- types.CanonicalEvent) (aierrors.Classified, outcome) {
	key := target.Key()
	started := time.Now()

	if err := r.executor.cfg.Preflight.Check(r.token.Context(), key, r.preflightCfg); err != nil {
		classified := classifiedFromErr(err)
		r.recordAttempt(target, attempt, started, 0, classified, false, 0)
		r.executor.emit(ctx, "preflight_gate_result", map[string]any{
			"request_id": r.stats.RequestID,
			"target":     target.String(),
			"allowed":    false,
			"kind":       string(classified.Kind),
		})
		return classified, r.decide(classified, attempt, false)
	}
	r.executor.emit(ctx, "preflight_gate_result", map[string]any{
		"request_id": r.stats.RequestID,
		"target":     target.String(),
		"allowed":    true,
	})
	defer r.executor.cfg.Preflight.Release(key, r.preflightCfg.MaxConcurrent)

	wireReq, err := reqbuilder.Build(ctx, r.req, m, target, r.executor.cfg.Secrets, reqbuilder.BuildOptions{
		Stream:         r.opts.Stream,
		APIKeyOverride: r.opts.APIKeyOverride,
	})
	if err != nil {
		classified := classifiedFromErr(err)
		r.recordAttempt(target, attempt, started, 0, classified, false, 0)
		r.executor.cfg.Preflight.RecordFailure(key)
		return classified, r.decide(classified, attempt, false)
	}

	httpReq, err := http.NewRequestWithContext(r.token.Context(), http.MethodPost, wireReq.URL, bytes.NewReader(wireReq.Body))
	if err != nil {
		classified := aierrors.Classified{Kind: aierrors.KindInvalidRequest, Message: err.Error()}
		r.recordAttempt(target, attempt, started, 0, classified, false, 0)
		return classified, r.decide(classified, attempt, false)
	}
	for k, v := range wireReq.Headers {
		httpReq.Header.Set(k, v)
	}

	r.executor.emit(ctx, "transport_request", map[string]any{
		"request_id": r.stats.RequestID,
		"target":     target.String(),
		"url":        wireReq.URL,
	})

	streamRequested := r.opts.Stream && m.Capabilities.Streaming

	var resp *http.Response
	if streamRequested {
		resp, err = r.executor.cfg.Transport.DoStream(r.token.Context(), httpReq)
	} else {
		resp, err = r.executor.cfg.Transport.Do(r.token.Context(), httpReq)
	}
	if err != nil {
		classified := aierrors.Classify(aierrors.ClassifyInput{TransportErr: err})
		r.executor.cfg.Preflight.RecordFailure(key)
		r.recordAttempt(target, attempt, started, 0, classified, false, 0)
		r.executor.emit(ctx, "transport_response", map[string]any{
			"request_id": r.stats.RequestID,
			"target":     target.String(),
			"kind":       string(classified.Kind),
		})
		return classified, r.decide(classified, attempt, false)
	}

	r.executor.emit(ctx, "transport_response", map[string]any{
		"request_id":  r.stats.RequestID,
		"target":      target.String(),
		"http_status": resp.StatusCode,
	})
	r.executor.cfg.Preflight.AdaptRateLimit(key, resp.Header)

	if resp.StatusCode >= 400 {
		classified := r.classifyErrorResponse(m, resp)
		r.executor.cfg.Preflight.RecordFailure(key)
		r.recordAttempt(target, attempt, started, resp.StatusCode, classified, false, time.Duration(classified.RetryAfterSeconds*float64(time.Second)))
		return classified, r.decide(classified, attempt, false)
	}

	r.executor.cfg.Preflight.RecordSuccess(key)

	classified, err2 := r.drainPipeline(ctx, m, target, attempt, started, resp, out, streamRequested)
	if err2 != nil {
		// Pipeline-level failures never trigger fallback: a malformed
		// stream or tool-arg parse failure is a protocol mismatch that
		// would repeat on any other target too.
		return classified, r.decide(classified, attempt, true)
	}

	r.stats.FinalTarget = target
	r.recordAttempt(target, attempt, started, resp.StatusCode, aierrors.Classified{}, true, 0)
	r.executor.emit(ctx, "request_end", map[string]any{
		"request_id": r.stats.RequestID,
		"target":     target.String(),
		"success":    true,
	})
	return aierrors.Classified{}, outcomeSuccess
}

// drainPipeline runs the streaming pipeline over resp.Body to completion,
// forwarding every event except a StreamError to out. The returned error is
// non-nil only for a pipeline-originated StreamError (malformed stream,
// tool-arg parse failure), which is returned rather than forwarded so loop
// decides whether it ends the request; transport-level failures never
// reach here.
func (r *attemptRun) drainPipeline(ctx context.Context, m *manifest.ProtocolManifest, target types.ProviderTarget, attempt int, started time.Time, resp *http.Response, out chan<- types.CanonicalEvent, streaming bool) (aierrors.Classified, error) {
	defer resp.Body.Close()

	pipe := streampipe.New(m, streampipe.Options{FanOut: r.opts.FanOut, Streaming: streaming})
	events := make(chan types.CanonicalEvent, 16)
	go pipe.Run(r.token.Context(), resp.Body, events)

	first := true
	for ev := range events {
		if first {
			first = false
			r.stats.TimeToFirstByte = time.Since(started)
			r.executor.emit(ctx, "stream_first_event", map[string]any{
				"request_id": r.stats.RequestID,
				"target":     target.String(),
			})
		}

		if ev.Kind == types.EventStreamError {
			classified := aierrors.Classified{Kind: aierrors.KindServerError, Message: "stream decode failed"}
			if ev.Err != nil {
				classified = *ev.Err
			}
			r.recordAttempt(target, attempt, started, resp.StatusCode, classified, false, 0)
			return classified, errPipelineFailed
		}

		select {
		case out <- ev:
		case <-r.token.Context().Done():
			classified := aierrors.Classified{Kind: aierrors.KindCancelled, Message: "cancelled mid-stream"}
			r.recordAttempt(target, attempt, started, resp.StatusCode, classified, false, 0)
			return classified, errPipelineFailed
		}
	}
	return aierrors.Classified{}, nil
}

var errPipelineFailed = errors.New("executor: pipeline failed")

// decide turns a classified error into the next action. pipelineScoped
// disables fallback regardless of the kind's static Fallbackable bit, per
// the propagation policy for pipeline-originated failures. Per-target
// retries are governed entirely by retryPolicy; the chain advances only
// once this target's retry budget is spent.
func (r *attemptRun) decide(c aierrors.Classified, attempt int, pipelineScoped bool) outcome {
	if c.Kind == aierrors.KindCancelled {
		return outcomeTerminal
	}
	if r.retryPolicy.ShouldRetry(c, attempt) {
		return outcomeRetry
	}
	if !pipelineScoped && c.Fallbackable() {
		return outcomeFallback
	}
	return outcomeTerminal
}

func (r *attemptRun) recordAttempt(target types.ProviderTarget, attempt int, started time.Time, httpStatus int, classified aierrors.Classified, succeeded bool, retryAfter time.Duration) {
	r.stats.AddAttempt(types.AttemptRecord{
		Target:     target,
		Attempt:    attempt,
		StartedAt:  started,
		Duration:   time.Since(started),
		HTTPStatus: httpStatus,
		ErrorKind:  string(classified.Kind),
		Succeeded:  succeeded,
		RetryAfter: retryAfter,
	})
}

func classifiedFromErr(err error) aierrors.Classified {
	var aerr *aierrors.Error
	if errors.As(err, &aerr) {
		return aerr.Classified
	}
	return aierrors.Classified{Kind: aierrors.KindUnknown, Message: err.Error()}
}

// classifyErrorResponse parses resp's JSON error envelope (if any) and
// extracts the provider-specific code the manifest's error_mapping
// declares, converting it to the ErrorKind overrides Classify expects.
func (r *attemptRun) classifyErrorResponse(m *manifest.ProtocolManifest, resp *http.Response) aierrors.Classified {
	body, _ := httputil.ReadLimitedBody(resp.Body, httputil.DefaultMaxResponseBodyBytes)

	var parsed map[string]any
	_ = json.Unmarshal(body, &parsed)

	var providerCode string
	var overrides map[string]aierrors.ErrorKind
	if m.ErrorMapping != nil {
		overrides = make(map[string]aierrors.ErrorKind, len(m.ErrorMapping.ByProviderCode))
		for code, kind := range m.ErrorMapping.ByProviderCode {
			overrides[code] = aierrors.ErrorKind(kind)
		}
		if p := m.TranslatedPath("error_mapping.code_path"); p != "" {
			providerCode = gjson.GetBytes(body, p).String()
		}
	}

	return aierrors.Classify(aierrors.ClassifyInput{
		HTTPStatus:            resp.StatusCode,
		Body:                  parsed,
		ProviderCode:          providerCode,
		ProviderCodeOverrides: overrides,
		RetryAfterSeconds:     retryAfterSeconds(resp),
	})
}

func retryAfterSeconds(resp *http.Response) float64 {
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return 0
	}
	secs, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0
	}
	return secs
}

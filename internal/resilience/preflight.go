package resilience

import (
	"context"
	"errors"
	"net/http"
	"time"

	aierrors "github.com/aiproto/aiproto/pkg/errors"
)

// defaultRateLimitWaitBudget bounds how long Check cooperatively waits for
// a rate limiter token before failing rate_limited locally, when a caller
// leaves PreflightConfig.RateLimitWaitBudget at its zero value.
const defaultRateLimitWaitBudget = 50 * time.Millisecond

// PreflightConfig controls the backpressure gate for a single key; circuit
// breaker and rate limiter configuration live on the Manager that owns the
// per-key instances.
type PreflightConfig struct {
	MaxConcurrent int

	// RateLimitWaitBudget bounds the cooperative wait Check performs when
	// the rate limiter has no token immediately available, before giving
	// up and failing rate_limited locally. Zero uses defaultRateLimitWaitBudget.
	RateLimitWaitBudget time.Duration
}

// DefaultPreflightConfig returns the zero-MaxConcurrent (unbounded
// backpressure), default-wait-budget configuration most call sites want.
func DefaultPreflightConfig() PreflightConfig {
	return PreflightConfig{RateLimitWaitBudget: defaultRateLimitWaitBudget}
}

// PreflightChecker composes the circuit breaker, rate limiter, and
// backpressure semaphore in the fixed order circuit -> limiter ->
// backpressure, surfacing the first failing gate as a classified error so
// the executor can decide retry/fallback without knowing which concrete
// gate tripped.
type PreflightChecker struct {
	manager *Manager
}

// NewPreflightChecker builds a checker over manager's per-key registries.
func NewPreflightChecker(manager *Manager) *PreflightChecker {
	return &PreflightChecker{manager: manager}
}

// Check runs the three gates in order for key, acquiring a backpressure
// slot on success. Callers must call Release (via Manager) once the
// request this Check guarded has finished, regardless of outcome.
//
// The returned error, when non-nil, is always a *aierrors.Error so the
// executor can classify and decide retry/fallback uniformly with
// transport and pipeline failures.
func (p *PreflightChecker) Check(ctx context.Context, key string, cfg PreflightConfig) error {
	cb := p.manager.GetCircuitBreaker(key)
	if !cb.Allow() {
		return preflightError(aierrors.KindOverloaded, "circuit breaker open")
	}

	rl := p.manager.GetRateLimiter(key)
	if !rl.Allow() {
		budget := cfg.RateLimitWaitBudget
		if budget <= 0 {
			budget = defaultRateLimitWaitBudget
		}
		waitCtx, cancel := context.WithTimeout(ctx, budget)
		waitErr := rl.Wait(waitCtx)
		cancel()
		if waitErr != nil {
			if errors.Is(ctx.Err(), context.Canceled) {
				return preflightError(aierrors.KindCancelled, "rate limiter wait cancelled")
			}
			return preflightError(aierrors.KindRateLimited, "rate limit exceeded")
		}
	}

	if cfg.MaxConcurrent > 0 {
		sem := p.manager.GetSemaphore(key, cfg.MaxConcurrent)
		if err := sem.Acquire(ctx); err != nil {
			if errors.Is(ctx.Err(), context.Canceled) {
				return preflightError(aierrors.KindCancelled, "backpressure wait cancelled")
			}
			// Deadline exceeded (queue-wait timeout) and any other
			// acquire failure are both treated as queue overload.
			return preflightError(aierrors.KindOverloaded, "backpressure queue full")
		}
	}

	return nil
}

// Release returns the backpressure slot acquired by a successful Check.
func (p *PreflightChecker) Release(key string, maxConcurrent int) {
	p.manager.Release(key, maxConcurrent)
}

// AdaptRateLimit feeds a provider response's rate-limit headers back into
// key's rate limiter, implementing the adaptive mode described alongside
// RateLimiter: refill_rate_per_sec drifts toward what the provider's own
// X-RateLimit-Remaining/-Reset headers report, instead of staying fixed at
// whatever static value was configured.
func (p *PreflightChecker) AdaptRateLimit(key string, headers http.Header) {
	p.manager.AdaptRateLimiter(key, headers)
}

// RecordSuccess reports a successful attempt against key to the circuit
// breaker, clearing accumulated failures.
func (p *PreflightChecker) RecordSuccess(key string) {
	p.manager.RecordSuccess(key)
}

// RecordFailure reports a failed attempt against key to the circuit
// breaker, counting towards the open threshold.
func (p *PreflightChecker) RecordFailure(key string) {
	p.manager.RecordFailure(key)
}

func preflightError(kind aierrors.ErrorKind, message string) error {
	return aierrors.New(aierrors.Classified{Kind: kind, Message: message}, "", "", 0)
}

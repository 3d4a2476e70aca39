package resilience

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter wraps golang.org/x/time/rate.Limiter with a mutex-guarded
// rate/burst that can be adjusted after construction, since per-target
// limits may change on manifest or config reload.
type RateLimiter struct {
	mu  sync.Mutex
	lim *rate.Limiter
}

// NewRateLimiter creates a new rate limiter.
// r: requests per second allowed
// burst: maximum burst size (bucket capacity)
func NewRateLimiter(r float64, burst int) *RateLimiter {
	return &RateLimiter{
		lim: rate.NewLimiter(rate.Limit(r), burst),
	}
}

// Allow checks if a request should be allowed.
// Returns true if allowed, false if rate limited.
func (rl *RateLimiter) Allow() bool {
	return rl.AllowN(1)
}

// AllowN checks if n requests should be allowed.
func (rl *RateLimiter) AllowN(n int) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return rl.lim.AllowN(time.Now(), n)
}

// Wait blocks until a single token is available or ctx is done, whichever
// comes first. Callers bound the wait with a context deadline rather than
// waiting indefinitely; rate.Limiter.WaitN itself polls ctx.Done() while
// sleeping so a cancelled token aborts the wait promptly.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	return rl.WaitN(ctx, 1)
}

// WaitN blocks until n tokens are available or ctx is done. n must not
// exceed the limiter's burst, matching rate.Limiter.WaitN's own contract.
func (rl *RateLimiter) WaitN(ctx context.Context, n int) error {
	return rl.lim.WaitN(ctx, n)
}

// Tokens returns the current number of available tokens.
func (rl *RateLimiter) Tokens() float64 {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return rl.lim.TokensAt(time.Now())
}

// Rate returns the rate limit (tokens per second).
func (rl *RateLimiter) Rate() float64 {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return float64(rl.lim.Limit())
}

// Burst returns the burst size.
func (rl *RateLimiter) Burst() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return rl.lim.Burst()
}

// SetRate updates the rate limit.
func (rl *RateLimiter) SetRate(r float64) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.lim.SetLimit(rate.Limit(r))
}

// SetBurst updates the burst size.
func (rl *RateLimiter) SetBurst(burst int) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.lim.SetBurst(burst)
}

package resilience

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// adaptiveSmoothing is the exponential-moving-average weight given to a
// newly observed rate-limit-header reading, so a single noisy response
// can't whipsaw the limiter's rate between requests.
const adaptiveSmoothing = 0.5

// remainingHeaders and resetHeaders list the header name variants
// providers use for rate-limit budget/window info, tried in order.
var (
	remainingHeaders = []string{
		"X-Ratelimit-Remaining-Requests",
		"X-Ratelimit-Remaining",
		"Ratelimit-Remaining",
	}
	resetHeaders = []string{
		"X-Ratelimit-Reset-Requests",
		"X-Ratelimit-Reset",
		"Ratelimit-Reset",
		"Retry-After",
	}
)

// AdaptFromHeaders implements spec's adaptive rate limiting: it reads a
// provider's rate-limit response headers and nudges refill_rate_per_sec
// toward remaining/reset, the rate implied by the provider's own
// bookkeeping. Missing or unparsable headers leave the limiter untouched.
func (rl *RateLimiter) AdaptFromHeaders(headers http.Header) {
	remaining, ok := firstIntHeader(headers, remainingHeaders)
	if !ok {
		return
	}
	resetSeconds, ok := firstResetHeader(headers, resetHeaders)
	if !ok || resetSeconds <= 0 {
		return
	}

	observed := float64(remaining) / resetSeconds

	rl.mu.Lock()
	defer rl.mu.Unlock()
	current := float64(rl.lim.Limit())
	next := current + (observed-current)*adaptiveSmoothing
	if next < 0 {
		next = 0
	}
	rl.lim.SetLimit(rate.Limit(next))
}

func firstIntHeader(headers http.Header, names []string) (int, bool) {
	for _, name := range names {
		v := headers.Get(name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			continue
		}
		return n, true
	}
	return 0, false
}

// firstResetHeader parses a reset header as a count of seconds, a Go
// duration string (e.g. OpenAI's "6m0s"), or an absolute Unix timestamp.
func firstResetHeader(headers http.Header, names []string) (float64, bool) {
	for _, name := range names {
		v := strings.TrimSpace(headers.Get(name))
		if v == "" {
			continue
		}
		if secs, err := strconv.ParseFloat(v, 64); err == nil {
			if secs > 1_000_000_000 {
				return time.Until(time.Unix(int64(secs), 0)).Seconds(), true
			}
			return secs, true
		}
		if d, err := time.ParseDuration(v); err == nil {
			return d.Seconds(), true
		}
	}
	return 0, false
}

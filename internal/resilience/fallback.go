package resilience

import (
	"errors"

	"github.com/aiproto/aiproto/pkg/types"
)

// ErrNoTargets is returned when a caller asks the executor to run a
// request against an empty target list.
var ErrNoTargets = errors.New("resilience: no targets provided")

// FallbackConfig is stored on a FallbackChain. Current and Advance do not
// consult it, so MaxAttemptsPerTarget does not limit attempts per target.
type FallbackConfig struct {
	MaxAttemptsPerTarget int
}

// DefaultFallbackConfig returns the defaults used when a call site supplies
// none: one attempt per target before advancing, since per-target retry is
// already handled by RetryPolicy ahead of the fallback advance.
func DefaultFallbackConfig() FallbackConfig {
	return FallbackConfig{MaxAttemptsPerTarget: 1}
}

// FallbackChain walks an ordered list of targets, advancing to the next
// only when the current one's error is Fallbackable. It holds no network
// state; the executor calls Current/Advance around each attempt.
type FallbackChain struct {
	targets []types.ProviderTarget
	cfg     FallbackConfig
	idx     int
	tried   []types.ProviderTarget
}

// NewFallbackChain creates a chain over targets in the given priority order.
func NewFallbackChain(targets []types.ProviderTarget, cfg FallbackConfig) *FallbackChain {
	return &FallbackChain{targets: targets, cfg: cfg}
}

// Current returns the target currently being attempted, or the zero value
// and false if the chain has been exhausted.
func (c *FallbackChain) Current() (types.ProviderTarget, bool) {
	if c.idx >= len(c.targets) {
		return types.ProviderTarget{}, false
	}
	return c.targets[c.idx], true
}

// Advance moves to the next target in the chain. Call only after a
// Fallbackable failure on the current target.
func (c *FallbackChain) Advance() {
	if cur, ok := c.Current(); ok {
		c.tried = append(c.tried, cur)
	}
	c.idx++
}

// Exhausted reports whether every target in the chain has been tried.
func (c *FallbackChain) Exhausted() bool {
	return c.idx >= len(c.targets)
}

// Tried returns the targets attempted so far, in attempt order, not
// including the current one still in flight.
func (c *FallbackChain) Tried() []types.ProviderTarget {
	return c.tried
}

// Remaining returns how many targets (including the current one) remain.
func (c *FallbackChain) Remaining() int {
	return len(c.targets) - c.idx
}

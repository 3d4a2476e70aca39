package router

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	aierrors "github.com/aiproto/aiproto/pkg/errors"
	"github.com/aiproto/aiproto/pkg/types"
)

// BaseRouter provides common functionality for all routing strategies.
// Specific strategies embed this and override the selection logic.
type BaseRouter struct {
	mu       sync.RWMutex
	rngMu    sync.Mutex // Separate mutex for rng (math/rand.Rand is not thread-safe)
	targets  map[string][]*routedTarget // model -> targets
	stats    map[string]*TargetStats    // target key -> stats
	config   RouterConfig
	rng      *rand.Rand
	strategy Strategy
}

// NewBaseRouter creates a new base router with the given configuration.
func NewBaseRouter(config RouterConfig) *BaseRouter {
	return &BaseRouter{
		targets:  make(map[string][]*routedTarget),
		stats:    make(map[string]*TargetStats),
		config:   config,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		strategy: config.Strategy,
	}
}

// GetStrategy returns the current routing strategy.
func (r *BaseRouter) GetStrategy() Strategy {
	return r.strategy
}

// randIntn returns a random int in [0, n) in a thread-safe manner.
func (r *BaseRouter) randIntn(n int) int {
	r.rngMu.Lock()
	defer r.rngMu.Unlock()
	return r.rng.Intn(n)
}

// AddTarget registers a new target with default configuration.
func (r *BaseRouter) AddTarget(target types.ProviderTarget) {
	r.AddTargetWithConfig(target, TargetConfig{})
}

// AddTargetWithConfig registers a target with routing configuration.
func (r *BaseRouter) AddTargetWithConfig(target types.ProviderTarget, config TargetConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()

	model := target.ModelID

	rt := &routedTarget{Target: target, Config: config}

	r.targets[model] = append(r.targets[model], rt)
	r.stats[target.Key()] = &TargetStats{
		MaxLatencyListSize: r.config.MaxLatencyListSize,
		LatencyHistory:     make([]float64, 0, r.config.MaxLatencyListSize),
		TTFTHistory:        make([]float64, 0, r.config.MaxLatencyListSize),
	}
}

// RemoveTarget removes a target from the router by its stable key.
func (r *BaseRouter) RemoveTarget(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for model, targets := range r.targets {
		for i, t := range targets {
			if t.Target.Key() == key {
				r.targets[model] = append(targets[:i], targets[i+1:]...)
				break
			}
		}
	}
	delete(r.stats, key)
}

// GetTargets returns all targets for a model.
func (r *BaseRouter) GetTargets(model string) []types.ProviderTarget {
	r.mu.RLock()
	defer r.mu.RUnlock()

	targets := r.targets[model]
	result := make([]types.ProviderTarget, len(targets))
	for i, t := range targets {
		result[i] = t.Target
	}
	return result
}

// GetStats returns the current stats for a target.
func (r *BaseRouter) GetStats(key string) *TargetStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if stats, ok := r.stats[key]; ok {
		// Return a copy to prevent external modification
		statsCopy := *stats
		return &statsCopy
	}
	return nil
}

// IsCircuitOpen checks if the target is in cooldown.
func (r *BaseRouter) IsCircuitOpen(target types.ProviderTarget) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats, ok := r.stats[target.Key()]
	if !ok {
		return false
	}
	return time.Now().Before(stats.CooldownUntil)
}

// ReportRequestStart increments the active request count.
func (r *BaseRouter) ReportRequestStart(target types.ProviderTarget) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats := r.getOrCreateStats(target.Key())
	stats.ActiveRequests++
}

// ReportRequestEnd decrements the active request count.
func (r *BaseRouter) ReportRequestEnd(target types.ProviderTarget) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats := r.getOrCreateStats(target.Key())
	if stats.ActiveRequests > 0 {
		stats.ActiveRequests--
	}
}

// ReportSuccess records a successful request with metrics.
func (r *BaseRouter) ReportSuccess(target types.ProviderTarget, metrics *ResponseMetrics) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats := r.getOrCreateStats(target.Key())
	stats.TotalRequests++
	stats.SuccessCount++
	stats.LastRequestTime = time.Now()

	latencyMs := float64(metrics.Latency.Milliseconds())
	r.appendToHistory(&stats.LatencyHistory, latencyMs, stats.MaxLatencyListSize)

	if metrics.TimeToFirstToken > 0 {
		ttftMs := float64(metrics.TimeToFirstToken.Milliseconds())
		r.appendToHistory(&stats.TTFTHistory, ttftMs, stats.MaxLatencyListSize)
	}

	if stats.AvgLatencyMs == 0 {
		stats.AvgLatencyMs = latencyMs
	} else {
		stats.AvgLatencyMs = stats.AvgLatencyMs*0.9 + latencyMs*0.1
	}

	r.updateUsageStats(stats, metrics.TotalTokens)
}

// ReportFailure records a failed request and triggers cooldown if the
// classified error is fallbackable (the taxonomy's stand-in for "this
// target needs a timeout before being tried again").
func (r *BaseRouter) ReportFailure(target types.ProviderTarget, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats := r.getOrCreateStats(target.Key())
	stats.TotalRequests++
	stats.FailureCount++
	stats.LastRequestTime = time.Now()

	var aerr *aierrors.Error
	if errors.As(err, &aerr) {
		if aerr.Classified.Fallbackable() {
			stats.CooldownUntil = time.Now().Add(r.config.CooldownPeriod)
		}
		if aerr.Kind == aierrors.KindTimeout {
			r.appendToHistory(&stats.LatencyHistory, 1000000.0, stats.MaxLatencyListSize) // penalty
		}
	}
}

// getHealthyTargets returns targets that are not in cooldown.
func (r *BaseRouter) getHealthyTargets(model string) []*routedTarget {
	targets, ok := r.targets[model]
	if !ok || len(targets) == 0 {
		return nil
	}

	now := time.Now()
	healthy := make([]*routedTarget, 0, len(targets))
	for _, t := range targets {
		stats := r.stats[t.Target.Key()]
		if stats == nil || now.After(stats.CooldownUntil) {
			healthy = append(healthy, t)
		}
	}
	return healthy
}

// filterByTags filters targets based on request tags.
func (r *BaseRouter) filterByTags(targets []*routedTarget, tags []string) []*routedTarget {
	if len(tags) == 0 {
		defaults := make([]*routedTarget, 0)
		for _, t := range targets {
			if containsTag(t.Config.Tags, "default") {
				defaults = append(defaults, t)
			}
		}
		if len(defaults) > 0 {
			return defaults
		}
		return targets
	}

	matched := make([]*routedTarget, 0)
	defaults := make([]*routedTarget, 0)

	for _, t := range targets {
		if len(t.Config.Tags) == 0 {
			continue
		}
		if hasMatchingTag(t.Config.Tags, tags) {
			matched = append(matched, t)
		}
		if containsTag(t.Config.Tags, "default") {
			defaults = append(defaults, t)
		}
	}

	if len(matched) > 0 {
		return matched
	}
	if len(defaults) > 0 {
		return defaults
	}
	return nil
}

// filterByTPMRPM filters out targets that would exceed their TPM/RPM limits.
func (r *BaseRouter) filterByTPMRPM(targets []*routedTarget, inputTokens int) []*routedTarget {
	filtered := make([]*routedTarget, 0, len(targets))

	for _, t := range targets {
		stats := r.stats[t.Target.Key()]
		if stats == nil {
			filtered = append(filtered, t)
			continue
		}

		if t.Config.TPMLimit > 0 && stats.CurrentMinuteTPM+int64(inputTokens) > t.Config.TPMLimit {
			continue
		}
		if t.Config.RPMLimit > 0 && stats.CurrentMinuteRPM+1 > t.Config.RPMLimit {
			continue
		}

		filtered = append(filtered, t)
	}

	return filtered
}

// getOrCreateStats returns existing stats or creates new ones.
func (r *BaseRouter) getOrCreateStats(key string) *TargetStats {
	stats, ok := r.stats[key]
	if !ok {
		stats = &TargetStats{
			MaxLatencyListSize: r.config.MaxLatencyListSize,
			LatencyHistory:     make([]float64, 0, r.config.MaxLatencyListSize),
			TTFTHistory:        make([]float64, 0, r.config.MaxLatencyListSize),
		}
		r.stats[key] = stats
	}
	return stats
}

// appendToHistory adds a value to a rolling history slice.
func (r *BaseRouter) appendToHistory(history *[]float64, value float64, maxSize int) {
	if maxSize <= 0 {
		maxSize = 10
	}
	if len(*history) < maxSize {
		*history = append(*history, value)
	} else {
		copy((*history)[0:], (*history)[1:])
		(*history)[len(*history)-1] = value
	}
}

// updateUsageStats updates TPM/RPM counters for the current minute.
func (r *BaseRouter) updateUsageStats(stats *TargetStats, tokens int) {
	currentMinute := time.Now().Format("2006-01-02-15-04")

	if stats.CurrentMinuteKey != currentMinute {
		stats.CurrentMinuteKey = currentMinute
		stats.CurrentMinuteTPM = 0
		stats.CurrentMinuteRPM = 0
	}

	stats.CurrentMinuteTPM += int64(tokens)
	stats.CurrentMinuteRPM++
}

// calculateAverageLatency calculates the average of a latency history slice.
func calculateAverageLatency(history []float64) float64 {
	if len(history) == 0 {
		return 0
	}
	var sum float64
	for _, v := range history {
		sum += v
	}
	return sum / float64(len(history))
}

// containsTag checks if a tag list contains a specific tag.
func containsTag(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}

// hasMatchingTag checks if any target tag matches any request tag.
func hasMatchingTag(targetTags, requestTags []string) bool {
	for _, tt := range targetTags {
		for _, rt := range requestTags {
			if tt == rt {
				return true
			}
		}
	}
	return false
}

// Pick implements basic random selection (used as fallback).
func (r *BaseRouter) Pick(ctx context.Context, model string) (types.ProviderTarget, error) {
	return r.PickWithContext(ctx, &RequestContext{Model: model})
}

// PickWithContext implements basic random selection with context.
func (r *BaseRouter) PickWithContext(ctx context.Context, reqCtx *RequestContext) (types.ProviderTarget, error) {
	r.mu.RLock()
	healthy := r.getHealthyTargets(reqCtx.Model)
	if len(healthy) == 0 {
		r.mu.RUnlock()
		return types.ProviderTarget{}, ErrNoAvailableTarget
	}

	if r.config.EnableTagFiltering && len(reqCtx.Tags) > 0 {
		healthy = r.filterByTags(healthy, reqCtx.Tags)
		if len(healthy) == 0 {
			r.mu.RUnlock()
			return types.ProviderTarget{}, ErrNoTargetsWithTag
		}
	}

	n := len(healthy)
	r.mu.RUnlock()

	return healthy[r.randIntn(n)].Target, nil
}

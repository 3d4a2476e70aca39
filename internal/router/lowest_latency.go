package router

import (
	"context"
	"sort"

	"github.com/aiproto/aiproto/pkg/types"
)

// LowestLatencyRouter selects targets based on response latency.
// For streaming requests, it uses Time To First Token (TTFT) instead of total latency.
// A configurable buffer allows random selection among targets within X% of the lowest latency.
type LowestLatencyRouter struct {
	*BaseRouter
}

// NewLowestLatencyRouter creates a new lowest latency router.
func NewLowestLatencyRouter(config RouterConfig) *LowestLatencyRouter {
	config.Strategy = StrategyLowestLatency
	return &LowestLatencyRouter{
		BaseRouter: NewBaseRouter(config),
	}
}

// Pick selects the target with lowest latency.
func (r *LowestLatencyRouter) Pick(ctx context.Context, model string) (types.ProviderTarget, error) {
	return r.PickWithContext(ctx, &RequestContext{Model: model})
}

// PickWithContext selects the target with lowest latency, considering streaming mode.
func (r *LowestLatencyRouter) PickWithContext(ctx context.Context, reqCtx *RequestContext) (types.ProviderTarget, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	healthy := r.getHealthyTargets(reqCtx.Model)
	if len(healthy) == 0 {
		return types.ProviderTarget{}, ErrNoAvailableTarget
	}

	if r.config.EnableTagFiltering && len(reqCtx.Tags) > 0 {
		healthy = r.filterByTags(healthy, reqCtx.Tags)
		if len(healthy) == 0 {
			return types.ProviderTarget{}, ErrNoTargetsWithTag
		}
	}

	if reqCtx.EstimatedInputTokens > 0 {
		healthy = r.filterByTPMRPM(healthy, reqCtx.EstimatedInputTokens)
		if len(healthy) == 0 {
			return types.ProviderTarget{}, ErrNoAvailableTarget
		}
	}

	type targetLatency struct {
		target  *routedTarget
		latency float64
	}

	candidates := make([]targetLatency, 0, len(healthy))

	for _, t := range healthy {
		stats := r.stats[t.Target.Key()]
		var latency float64

		if stats == nil {
			latency = 0
		} else if reqCtx.IsStreaming && len(stats.TTFTHistory) > 0 {
			latency = calculateAverageLatency(stats.TTFTHistory)
		} else if len(stats.LatencyHistory) > 0 {
			latency = calculateAverageLatency(stats.LatencyHistory)
		} else {
			latency = 0
		}

		candidates = append(candidates, targetLatency{target: t, latency: latency})
	}

	r.rng.Shuffle(len(candidates), func(i, j int) {
		candidates[i], candidates[j] = candidates[j], candidates[i]
	})

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].latency < candidates[j].latency
	})

	lowestLatency := candidates[0].latency

	if lowestLatency == 0 {
		return candidates[r.rng.Intn(len(candidates))].target.Target, nil
	}

	buffer := r.config.LatencyBuffer * lowestLatency
	threshold := lowestLatency + buffer

	validCandidates := make([]targetLatency, 0)
	for _, c := range candidates {
		if c.latency <= threshold {
			validCandidates = append(validCandidates, c)
		}
	}

	selected := validCandidates[r.rng.Intn(len(validCandidates))]
	return selected.target.Target, nil
}

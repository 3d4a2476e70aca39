package router

import (
	"context"

	"github.com/aiproto/aiproto/pkg/types"
)

// SimpleShuffleRouter implements random selection with optional weighted picking.
// Weights can be specified via weight, rpm, or tpm parameters in target config.
type SimpleShuffleRouter struct {
	*BaseRouter
}

// NewSimpleShuffleRouter creates a new simple shuffle router.
func NewSimpleShuffleRouter(config RouterConfig) *SimpleShuffleRouter {
	config.Strategy = StrategySimpleShuffle
	return &SimpleShuffleRouter{
		BaseRouter: NewBaseRouter(config),
	}
}

// Pick selects a random target, optionally weighted.
func (r *SimpleShuffleRouter) Pick(ctx context.Context, model string) (types.ProviderTarget, error) {
	return r.PickWithContext(ctx, &RequestContext{Model: model})
}

// PickWithContext selects a target using weighted random selection if weights are configured.
func (r *SimpleShuffleRouter) PickWithContext(ctx context.Context, reqCtx *RequestContext) (types.ProviderTarget, error) {
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

	// Try weighted selection by weight, rpm, or tpm (in that order)
	if target, ok := r.weightedPick(healthy, "weight"); ok {
		return target, nil
	}
	if target, ok := r.weightedPick(healthy, "rpm"); ok {
		return target, nil
	}
	if target, ok := r.weightedPick(healthy, "tpm"); ok {
		return target, nil
	}

	return healthy[r.rng.Intn(len(healthy))].Target, nil
}

// weightedPick performs weighted random selection based on the specified weight type.
// Returns ok=false if no weights are configured for the given type.
func (r *SimpleShuffleRouter) weightedPick(targets []*routedTarget, weightType string) (types.ProviderTarget, bool) {
	weights := make([]float64, len(targets))
	hasWeights := false

	for i, t := range targets {
		var weight float64
		switch weightType {
		case "weight":
			weight = t.Config.Weight
		case "rpm":
			weight = float64(t.Config.RPMLimit)
		case "tpm":
			weight = float64(t.Config.TPMLimit)
		}
		weights[i] = weight
		if weight > 0 {
			hasWeights = true
		}
	}

	if !hasWeights {
		return types.ProviderTarget{}, false
	}

	var totalWeight float64
	for _, w := range weights {
		totalWeight += w
	}
	if totalWeight == 0 {
		return types.ProviderTarget{}, false
	}

	for i := range weights {
		weights[i] /= totalWeight
	}

	randVal := r.rng.Float64()
	var cumulative float64
	for i, w := range weights {
		cumulative += w
		if randVal <= cumulative {
			return targets[i].Target, true
		}
	}

	return targets[len(targets)-1].Target, true
}

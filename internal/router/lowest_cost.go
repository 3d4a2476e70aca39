package router

import (
	"context"
	"sort"

	"github.com/aiproto/aiproto/pkg/types"
)

// DefaultCostPerToken is used when no cost is configured for a target.
// Set high to deprioritize targets without cost configuration.
const DefaultCostPerToken = 5.0

// LowestCostRouter selects the target with lowest cost per token.
// Cost is calculated as: input_cost_per_token + output_cost_per_token
//
// This strategy is useful for cost optimization when you have multiple
// targets with different pricing (e.g., different regions, providers).
type LowestCostRouter struct {
	*BaseRouter
}

// NewLowestCostRouter creates a new lowest cost router.
func NewLowestCostRouter(config RouterConfig) *LowestCostRouter {
	config.Strategy = StrategyLowestCost
	return &LowestCostRouter{
		BaseRouter: NewBaseRouter(config),
	}
}

// Pick selects the target with lowest cost.
func (r *LowestCostRouter) Pick(ctx context.Context, model string) (types.ProviderTarget, error) {
	return r.PickWithContext(ctx, &RequestContext{Model: model})
}

// PickWithContext selects the target with lowest cost per token.
func (r *LowestCostRouter) PickWithContext(ctx context.Context, reqCtx *RequestContext) (types.ProviderTarget, error) {
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

	type targetCost struct {
		target *routedTarget
		cost   float64
	}

	candidates := make([]targetCost, 0, len(healthy))

	for _, t := range healthy {
		inputCost := t.Config.InputCostPerToken
		outputCost := t.Config.OutputCostPerToken

		if inputCost == 0 {
			inputCost = DefaultCostPerToken
		}
		if outputCost == 0 {
			outputCost = DefaultCostPerToken
		}

		candidates = append(candidates, targetCost{target: t, cost: inputCost + outputCost})
	}

	r.rng.Shuffle(len(candidates), func(i, j int) {
		candidates[i], candidates[j] = candidates[j], candidates[i]
	})

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].cost < candidates[j].cost
	})

	return candidates[0].target.Target, nil
}

package router

import (
	"context"

	"github.com/aiproto/aiproto/pkg/types"
)

// TagBasedRouter filters targets based on request tags before applying
// random selection among the survivors.
//
// Tag matching rules:
//   - If request has tags, only targets with at least one matching tag are considered
//   - If no targets match, targets with "default" tag are used as fallback
//   - If request has no tags, targets with "default" tag are preferred
//   - If no "default" targets exist, all targets are considered
type TagBasedRouter struct {
	*BaseRouter
}

// NewTagBasedRouter creates a new tag-based router.
func NewTagBasedRouter(config RouterConfig) *TagBasedRouter {
	config.Strategy = StrategyTagBased
	config.EnableTagFiltering = true // Always enable for this router
	return &TagBasedRouter{
		BaseRouter: NewBaseRouter(config),
	}
}

// Pick selects a random target (tag filtering requires context).
func (r *TagBasedRouter) Pick(ctx context.Context, model string) (types.ProviderTarget, error) {
	return r.PickWithContext(ctx, &RequestContext{Model: model})
}

// PickWithContext filters targets by tags and selects randomly.
func (r *TagBasedRouter) PickWithContext(ctx context.Context, reqCtx *RequestContext) (types.ProviderTarget, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	healthy := r.getHealthyTargets(reqCtx.Model)
	if len(healthy) == 0 {
		return types.ProviderTarget{}, ErrNoAvailableTarget
	}

	filtered := r.filterByTags(healthy, reqCtx.Tags)
	if len(filtered) == 0 {
		return types.ProviderTarget{}, ErrNoTargetsWithTag
	}

	if reqCtx.EstimatedInputTokens > 0 {
		filtered = r.filterByTPMRPM(filtered, reqCtx.EstimatedInputTokens)
		if len(filtered) == 0 {
			return types.ProviderTarget{}, ErrNoAvailableTarget
		}
	}

	return filtered[r.rng.Intn(len(filtered))].Target, nil
}

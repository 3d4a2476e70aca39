package router

import (
	"context"

	"github.com/aiproto/aiproto/pkg/types"
)

// LeastBusyRouter selects the target with the fewest active requests.
// This strategy helps distribute load evenly across targets.
//
// Usage:
//   - Call ReportRequestStart() when a request begins
//   - Call ReportRequestEnd() when a request completes (success or failure)
type LeastBusyRouter struct {
	*BaseRouter
}

// NewLeastBusyRouter creates a new least busy router.
func NewLeastBusyRouter(config RouterConfig) *LeastBusyRouter {
	config.Strategy = StrategyLeastBusy
	return &LeastBusyRouter{
		BaseRouter: NewBaseRouter(config),
	}
}

// Pick selects the target with fewest active requests.
func (r *LeastBusyRouter) Pick(ctx context.Context, model string) (types.ProviderTarget, error) {
	return r.PickWithContext(ctx, &RequestContext{Model: model})
}

// PickWithContext selects the target with fewest active requests.
func (r *LeastBusyRouter) PickWithContext(ctx context.Context, reqCtx *RequestContext) (types.ProviderTarget, error) {
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

	var minTarget *routedTarget
	minRequests := int64(-1)

	shuffled := make([]*routedTarget, len(healthy))
	copy(shuffled, healthy)
	r.rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	for _, t := range shuffled {
		stats := r.stats[t.Target.Key()]
		var activeRequests int64
		if stats != nil {
			activeRequests = stats.ActiveRequests
		}

		if minRequests < 0 || activeRequests < minRequests {
			minRequests = activeRequests
			minTarget = t
		}
	}

	if minTarget == nil {
		return healthy[r.rng.Intn(len(healthy))].Target, nil
	}

	return minTarget.Target, nil
}

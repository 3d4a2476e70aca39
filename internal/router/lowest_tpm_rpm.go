package router

import (
	"context"

	"github.com/aiproto/aiproto/pkg/types"
)

// LowestTPMRPMRouter selects the target with lowest TPM/RPM usage.
// This strategy helps stay within rate limits by distributing requests
// to targets with the most available capacity.
//
// TPM (Tokens Per Minute) and RPM (Requests Per Minute) are tracked per
// target and reset at the start of each minute.
type LowestTPMRPMRouter struct {
	*BaseRouter
}

// NewLowestTPMRPMRouter creates a new lowest TPM/RPM router.
func NewLowestTPMRPMRouter(config RouterConfig) *LowestTPMRPMRouter {
	config.Strategy = StrategyLowestTPMRPM
	return &LowestTPMRPMRouter{
		BaseRouter: NewBaseRouter(config),
	}
}

// Pick selects the target with lowest TPM usage.
func (r *LowestTPMRPMRouter) Pick(ctx context.Context, model string) (types.ProviderTarget, error) {
	return r.PickWithContext(ctx, &RequestContext{Model: model})
}

// PickWithContext selects the target with lowest TPM/RPM usage.
func (r *LowestTPMRPMRouter) PickWithContext(ctx context.Context, reqCtx *RequestContext) (types.ProviderTarget, error) {
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

	var best *routedTarget
	lowestTPM := int64(-1)

	shuffled := make([]*routedTarget, len(healthy))
	copy(shuffled, healthy)
	r.rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	for _, t := range shuffled {
		stats := r.stats[t.Target.Key()]
		var currentTPM, currentRPM int64

		if stats != nil {
			currentTPM = stats.CurrentMinuteTPM
			currentRPM = stats.CurrentMinuteRPM
		}

		estimatedTokens := int64(reqCtx.EstimatedInputTokens)
		if estimatedTokens == 0 {
			estimatedTokens = 100
		}

		if t.Config.TPMLimit > 0 && currentTPM+estimatedTokens > t.Config.TPMLimit {
			continue
		}
		if t.Config.RPMLimit > 0 && currentRPM+1 > t.Config.RPMLimit {
			continue
		}

		if lowestTPM < 0 || currentTPM < lowestTPM {
			lowestTPM = currentTPM
			best = t
		}
	}

	if best == nil {
		return types.ProviderTarget{}, ErrNoAvailableTarget
	}

	return best.Target, nil
}

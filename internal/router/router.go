package router

import (
	"context"
	"errors"

	"github.com/aiproto/aiproto/pkg/types"
)

// ErrNoAvailableTarget is returned when no healthy target is available.
var ErrNoAvailableTarget = errors.New("no available target for model")

// ErrNoTargetsWithTag is returned when no targets match the requested tags.
var ErrNoTargetsWithTag = errors.New("no targets match the requested tags")

// Router orders ProviderTargets for a given model, tracking health and
// performance metrics to inform future picks. The FallbackChain consumes
// the ordering; Router itself never dials out.
type Router interface {
	// Pick selects the best available target for the given model.
	// Returns ErrNoAvailableTarget if all targets are unavailable.
	Pick(ctx context.Context, model string) (types.ProviderTarget, error)

	// PickWithContext is Pick with request-level routing hints (streaming,
	// tags, estimated token count).
	PickWithContext(ctx context.Context, reqCtx *RequestContext) (types.ProviderTarget, error)

	// ReportSuccess records a successful request to update routing metrics.
	ReportSuccess(target types.ProviderTarget, metrics *ResponseMetrics)

	// ReportFailure records a failed request and potentially triggers cooldown.
	ReportFailure(target types.ProviderTarget, err error)

	// IsCircuitOpen checks if the target is in cooldown.
	IsCircuitOpen(target types.ProviderTarget) bool

	// AddTarget registers a new target with the router.
	AddTarget(target types.ProviderTarget)

	// AddTargetWithConfig registers a target with routing configuration.
	AddTargetWithConfig(target types.ProviderTarget, config TargetConfig)

	// RemoveTarget removes a target from the router.
	RemoveTarget(key string)

	// GetTargets returns all targets registered for a model.
	GetTargets(model string) []types.ProviderTarget
}

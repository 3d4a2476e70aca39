package router

import (
	"context"
	"testing"
	"time"

	"github.com/aiproto/aiproto/pkg/errors"
	"github.com/aiproto/aiproto/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func target(provider, model string) types.ProviderTarget {
	return types.ProviderTarget{ProviderID: provider, ModelID: model}
}

func TestSimpleShuffleRouter_PicksAmongHealthyTargets(t *testing.T) {
	r := NewSimpleShuffleRouter(DefaultRouterConfig())
	r.AddTarget(target("openai", "gpt-4o"))
	r.AddTarget(target("azure", "gpt-4o"))

	picked, err := r.Pick(context.Background(), "gpt-4o")
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", picked.ModelID)
}

func TestSimpleShuffleRouter_NoTargetsReturnsError(t *testing.T) {
	r := NewSimpleShuffleRouter(DefaultRouterConfig())
	_, err := r.Pick(context.Background(), "gpt-4o")
	assert.ErrorIs(t, err, ErrNoAvailableTarget)
}

func TestSimpleShuffleRouter_WeightedPickFavorsHigherWeight(t *testing.T) {
	r := NewSimpleShuffleRouter(DefaultRouterConfig())
	r.AddTargetWithConfig(target("openai", "gpt-4o"), TargetConfig{Weight: 100})
	r.AddTargetWithConfig(target("azure", "gpt-4o"), TargetConfig{Weight: 0.0001})

	counts := map[string]int{}
	for i := 0; i < 200; i++ {
		picked, err := r.Pick(context.Background(), "gpt-4o")
		require.NoError(t, err)
		counts[picked.ProviderID]++
	}
	assert.Greater(t, counts["openai"], counts["azure"])
}

func TestBaseRouter_ReportFailureTriggersCooldownOnFallbackableError(t *testing.T) {
	cfg := DefaultRouterConfig()
	cfg.CooldownPeriod = time.Minute
	r := NewSimpleShuffleRouter(cfg)
	tg := target("openai", "gpt-4o")
	r.AddTarget(tg)

	c := errors.Classified{Kind: errors.KindRateLimited}
	err := errors.New(c, tg.ProviderID, tg.ModelID, 1)
	r.ReportFailure(tg, err)

	assert.True(t, r.IsCircuitOpen(tg))
}

func TestBaseRouter_ReportFailureLeavesTargetOpenOnNonFallbackableError(t *testing.T) {
	r := NewSimpleShuffleRouter(DefaultRouterConfig())
	tg := target("openai", "gpt-4o")
	r.AddTarget(tg)

	c := errors.Classified{Kind: errors.KindInvalidRequest}
	err := errors.New(c, tg.ProviderID, tg.ModelID, 1)
	r.ReportFailure(tg, err)

	assert.False(t, r.IsCircuitOpen(tg))
}

func TestLeastBusyRouter_PrefersFewerActiveRequests(t *testing.T) {
	r := NewLeastBusyRouter(DefaultRouterConfig())
	busy := target("openai", "gpt-4o")
	idle := target("azure", "gpt-4o")
	r.AddTarget(busy)
	r.AddTarget(idle)

	r.ReportRequestStart(busy)
	r.ReportRequestStart(busy)
	r.ReportRequestStart(busy)

	picked, err := r.Pick(context.Background(), "gpt-4o")
	require.NoError(t, err)
	assert.Equal(t, idle.ProviderID, picked.ProviderID)
}

func TestLowestLatencyRouter_PrefersLowerRecordedLatency(t *testing.T) {
	r := NewLowestLatencyRouter(DefaultRouterConfig())
	fast := target("openai", "gpt-4o")
	slow := target("azure", "gpt-4o")
	r.AddTarget(fast)
	r.AddTarget(slow)

	r.ReportSuccess(fast, &ResponseMetrics{Latency: 50 * time.Millisecond})
	r.ReportSuccess(slow, &ResponseMetrics{Latency: 900 * time.Millisecond})

	picked, err := r.Pick(context.Background(), "gpt-4o")
	require.NoError(t, err)
	assert.Equal(t, fast.ProviderID, picked.ProviderID)
}

func TestLowestCostRouter_PrefersCheaperTarget(t *testing.T) {
	r := NewLowestCostRouter(DefaultRouterConfig())
	cheap := target("openai-budget", "gpt-4o")
	expensive := target("openai", "gpt-4o")
	r.AddTargetWithConfig(cheap, TargetConfig{InputCostPerToken: 0.001, OutputCostPerToken: 0.002})
	r.AddTargetWithConfig(expensive, TargetConfig{InputCostPerToken: 0.01, OutputCostPerToken: 0.03})

	picked, err := r.Pick(context.Background(), "gpt-4o")
	require.NoError(t, err)
	assert.Equal(t, cheap.ProviderID, picked.ProviderID)
}

func TestTagBasedRouter_FiltersByTag(t *testing.T) {
	r := NewTagBasedRouter(DefaultRouterConfig())
	r.AddTargetWithConfig(target("openai", "gpt-4o"), TargetConfig{Tags: []string{"premium"}})
	r.AddTargetWithConfig(target("azure", "gpt-4o"), TargetConfig{Tags: []string{"budget"}})

	picked, err := r.PickWithContext(context.Background(), &RequestContext{Model: "gpt-4o", Tags: []string{"premium"}})
	require.NoError(t, err)
	assert.Equal(t, "openai", picked.ProviderID)
}

func TestTagBasedRouter_NoMatchReturnsError(t *testing.T) {
	r := NewTagBasedRouter(DefaultRouterConfig())
	r.AddTargetWithConfig(target("openai", "gpt-4o"), TargetConfig{Tags: []string{"premium"}})

	_, err := r.PickWithContext(context.Background(), &RequestContext{Model: "gpt-4o", Tags: []string{"nonexistent"}})
	assert.ErrorIs(t, err, ErrNoTargetsWithTag)
}

func TestLowestTPMRPMRouter_SkipsTargetsOverLimit(t *testing.T) {
	r := NewLowestTPMRPMRouter(DefaultRouterConfig())
	limited := target("openai", "gpt-4o")
	open := target("azure", "gpt-4o")
	r.AddTargetWithConfig(limited, TargetConfig{RPMLimit: 1})
	r.AddTargetWithConfig(open, TargetConfig{})

	r.ReportSuccess(limited, &ResponseMetrics{TotalTokens: 10})

	picked, err := r.Pick(context.Background(), "gpt-4o")
	require.NoError(t, err)
	assert.Equal(t, open.ProviderID, picked.ProviderID)
}

func TestNew_UnknownStrategyReturnsError(t *testing.T) {
	_, err := New(RouterConfig{Strategy: "made-up"})
	assert.Error(t, err)
}

func TestIsValidStrategy(t *testing.T) {
	assert.True(t, IsValidStrategy(string(StrategySimpleShuffle)))
	assert.False(t, IsValidStrategy("not-a-strategy"))
}

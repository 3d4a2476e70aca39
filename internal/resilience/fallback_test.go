package resilience

import (
	"testing"

	"github.com/aiproto/aiproto/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFallbackChain_AdvancesInOrder(t *testing.T) {
	targets := []types.ProviderTarget{
		{ProviderID: "openai", ModelID: "gpt-4o"},
		{ProviderID: "anthropic", ModelID: "claude-3-5-sonnet"},
	}
	chain := NewFallbackChain(targets, DefaultFallbackConfig())

	cur, ok := chain.Current()
	require.True(t, ok)
	assert.Equal(t, "openai", cur.ProviderID)
	assert.False(t, chain.Exhausted())

	chain.Advance()
	cur, ok = chain.Current()
	require.True(t, ok)
	assert.Equal(t, "anthropic", cur.ProviderID)
	assert.Equal(t, []types.ProviderTarget{targets[0]}, chain.Tried())

	chain.Advance()
	assert.True(t, chain.Exhausted())
	_, ok = chain.Current()
	assert.False(t, ok)
}

func TestFallbackChain_Remaining(t *testing.T) {
	targets := []types.ProviderTarget{{ProviderID: "a"}, {ProviderID: "b"}, {ProviderID: "c"}}
	chain := NewFallbackChain(targets, DefaultFallbackConfig())
	assert.Equal(t, 3, chain.Remaining())
	chain.Advance()
	assert.Equal(t, 2, chain.Remaining())
}

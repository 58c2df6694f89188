package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func testEntries() []ModelEntry {
	return []ModelEntry{
		{Key: "claude", Provider: ProviderClaude, APIKeyEnv: "CLAUDE_KEY"},
		{Key: "openai", Provider: ProviderOpenAI, APIKeyEnv: "OPENAI_KEY"},
		{Key: "deepseek", Provider: ProviderDeepSeek, APIKeyEnv: "DEEPSEEK_KEY"},
	}
}

func TestRegistry_AvailableFiltersToConfiguredKeys(t *testing.T) {
	r := NewRegistry(testEntries(), map[string]string{"OPENAI_KEY": "abc"})

	available := r.Available()

	assert.Len(t, available, 1)
	assert.Equal(t, "openai", available[0].Key)
}

func TestRegistry_GetReturnsFalseWhenKeyMissing(t *testing.T) {
	r := NewRegistry(testEntries(), map[string]string{"OPENAI_KEY": "abc"})

	_, ok := r.Get("claude")
	assert.False(t, ok)

	entry, ok := r.Get("openai")
	assert.True(t, ok)
	assert.Equal(t, "openai", entry.Key)
}

func TestRegistry_FallbackChainPutsPrimaryFirst(t *testing.T) {
	r := NewRegistry(testEntries(), map[string]string{
		"CLAUDE_KEY": "a", "OPENAI_KEY": "b", "DEEPSEEK_KEY": "c",
	})

	chain := r.FallbackChain("deepseek")

	assert.Len(t, chain, 3)
	assert.Equal(t, "deepseek", chain[0].Key)
	assert.ElementsMatch(t, []string{"claude", "openai"}, []string{chain[1].Key, chain[2].Key})
}

func TestRegistry_FallbackChainSkipsUnconfiguredPrimary(t *testing.T) {
	r := NewRegistry(testEntries(), map[string]string{"OPENAI_KEY": "b"})

	chain := r.FallbackChain("claude")

	assert.Len(t, chain, 1)
	assert.Equal(t, "openai", chain[0].Key)
}

func TestRegistry_FallbackChainEmptyWhenNothingConfigured(t *testing.T) {
	r := NewRegistry(testEntries(), nil)

	assert.Empty(t, r.FallbackChain("claude"))
}

package llm

// Provider identifies which wire format a model speaks.
type Provider string

const (
	ProviderClaude   Provider = "claude"
	ProviderOpenAI   Provider = "openai"
	ProviderDeepSeek Provider = "deepseek"
)

// ModelEntry is one row of the pluggable model registry: everything the
// client needs to know to talk to a model without special-casing it.
type ModelEntry struct {
	Key                     string
	Name                    string
	Provider                Provider
	ModelID                 string
	APIKeyEnv               string
	BaseURL                 string
	SupportsJSONSchema      bool
	SupportsReasoning       bool
	UseMaxCompletionTokens bool
}

// DefaultRegistry mirrors the model lineup the trading agent actually
// shipped with: one Claude model as primary (embedded-schema prompt, since
// its entry does not support json_schema), OpenAI and
// DeepSeek variants as fallback, with DeepSeek's reasoner and chat modes
// both using an embedded-schema prompt since neither supports json_schema.
func DefaultRegistry() []ModelEntry {
	return []ModelEntry{
		{
			Key:                "claude-3-5-sonnet",
			Name:               "Claude 3.5 Sonnet",
			Provider:           ProviderClaude,
			ModelID:            "claude-3-5-sonnet-20241022",
			APIKeyEnv:          "CLAUDE_API_KEY",
			BaseURL:            "https://api.anthropic.com/v1/messages",
			SupportsJSONSchema: false, // Claude's Messages API takes a tool schema, not response_format
			SupportsReasoning:  false,
		},
		{
			Key:                "gpt-4o-mini",
			Name:               "GPT-4o Mini",
			Provider:           ProviderOpenAI,
			ModelID:            "gpt-4o-mini",
			APIKeyEnv:          "OPENAI_API_KEY",
			BaseURL:            "https://api.openai.com/v1/chat/completions",
			SupportsJSONSchema: true,
			SupportsReasoning:  false,
		},
		{
			Key:                    "gpt-5.1",
			Name:                   "GPT-5.1",
			Provider:               ProviderOpenAI,
			ModelID:                "gpt-5.1-2025-11-13",
			APIKeyEnv:              "OPENAI_API_KEY",
			BaseURL:                "https://api.openai.com/v1/chat/completions",
			SupportsJSONSchema:     true,
			SupportsReasoning:      true,
			UseMaxCompletionTokens: true,
		},
		{
			Key:                "deepseek",
			Name:                "DeepSeek V3",
			Provider:           ProviderDeepSeek,
			ModelID:            "deepseek-chat",
			APIKeyEnv:          "DEEPSEEK_API_KEY",
			BaseURL:            "https://api.deepseek.com/v1/chat/completions",
			SupportsJSONSchema: false,
			SupportsReasoning:  false,
		},
		{
			Key:                "deepseek-reasoner",
			Name:                "DeepSeek R1 (Reasoner)",
			Provider:           ProviderDeepSeek,
			ModelID:            "deepseek-reasoner",
			APIKeyEnv:          "DEEPSEEK_API_KEY",
			BaseURL:            "https://api.deepseek.com/v1/chat/completions",
			SupportsJSONSchema: false,
			SupportsReasoning:  true,
		},
	}
}

// Registry resolves model entries by key and filters to those whose API
// key is actually configured.
type Registry struct {
	entries []ModelEntry
	keys    map[string]string // APIKeyEnv -> value
}

// NewRegistry builds a Registry from entries and a lookup of configured
// API keys by env-var name.
func NewRegistry(entries []ModelEntry, keys map[string]string) *Registry {
	return &Registry{entries: entries, keys: keys}
}

// Get returns the entry for key, if configured with an API key.
func (r *Registry) Get(key string) (ModelEntry, bool) {
	for _, e := range r.entries {
		if e.Key == key && r.available(e) {
			return e, true
		}
	}
	return ModelEntry{}, false
}

// Available returns every entry whose API key is configured, preserving
// registry order.
func (r *Registry) Available() []ModelEntry {
	out := make([]ModelEntry, 0, len(r.entries))
	for _, e := range r.entries {
		if r.available(e) {
			out = append(out, e)
		}
	}
	return out
}

// FallbackChain returns the available entries starting from primary (if
// configured) followed by every other available entry, primary excluded.
func (r *Registry) FallbackChain(primary string) []ModelEntry {
	var chain []ModelEntry
	if e, ok := r.Get(primary); ok {
		chain = append(chain, e)
	}
	for _, e := range r.Available() {
		if e.Key != primary {
			chain = append(chain, e)
		}
	}
	return chain
}

func (r *Registry) available(e ModelEntry) bool {
	return r.keys[e.APIKeyEnv] != ""
}

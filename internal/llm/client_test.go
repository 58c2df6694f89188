package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lancilotto/hl-agent/internal/domain"
)

func openAIEntry(key, baseURL string, schema bool) ModelEntry {
	return ModelEntry{
		Key: key, Name: key, Provider: ProviderOpenAI, ModelID: key,
		APIKeyEnv: key + "_KEY", BaseURL: baseURL, SupportsJSONSchema: schema,
	}
}

func validDecision() domain.Decision {
	return domain.Decision{
		Operation:              domain.OpOpen,
		Symbol:                 "BTC",
		Direction:              domain.DirectionLong,
		TargetPortionOfBalance: 0.1,
		Leverage:               2,
		StopLossPct:            2.0,
		TakeProfitPct:          6.0,
		Reason:                 "strong uptrend confirmation across timeframes",
		Confidence:             0.8,
	}
}

func chatCompletionResponse(t *testing.T, d domain.Decision) string {
	t.Helper()
	raw, err := json.Marshal(d)
	require.NoError(t, err)
	content, err := json.Marshal(string(raw))
	require.NoError(t, err)
	return `{"choices":[{"message":{"content":` + string(content) + `}}],"usage":{"prompt_tokens":100,"completion_tokens":50}}`
}

func TestDecide_SuccessOnFirstModel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(chatCompletionResponse(t, validDecision())))
	}))
	defer srv.Close()

	sink := NewMemoryUsageSink()
	registry := NewRegistry([]ModelEntry{openAIEntry("primary", srv.URL, true)}, map[string]string{"primary_KEY": "abc"})
	client := NewClient(registry, sink, nil)
	client.maxAttempts = 3

	result := client.Decide(context.Background(), Request{Prompt: "analyze BTC", PrimaryModel: "primary"})

	assert.Equal(t, "primary", result.ModelUsed)
	assert.False(t, result.UsedFallback)
	assert.Equal(t, domain.OpOpen, result.Decision.Operation)
	assert.Len(t, sink.Records(), 1)
}

func TestDecide_FallsBackToSecondModelOnFailure(t *testing.T) {
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer failing.Close()
	working := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(chatCompletionResponse(t, validDecision())))
	}))
	defer working.Close()

	registry := NewRegistry([]ModelEntry{
		openAIEntry("primary", failing.URL, true),
		openAIEntry("backup", working.URL, true),
	}, map[string]string{"primary_KEY": "a", "backup_KEY": "b"})

	client := NewClient(registry, nil, nil)
	client.maxAttempts = 2

	result := client.Decide(context.Background(), Request{Prompt: "analyze BTC", PrimaryModel: "primary"})

	assert.Equal(t, "backup", result.ModelUsed)
	assert.True(t, result.UsedFallback)
}

func TestDecide_ExhaustedChainReturnsSafeHold(t *testing.T) {
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer failing.Close()

	registry := NewRegistry([]ModelEntry{openAIEntry("primary", failing.URL, true)}, map[string]string{"primary_KEY": "a"})
	client := NewClient(registry, nil, nil)
	client.maxAttempts = 2

	result := client.Decide(context.Background(), Request{Prompt: "analyze BTC", PrimaryModel: "primary"})

	require.Equal(t, domain.OpHold, result.Decision.Operation)
	assert.Equal(t, 0.0, result.Decision.Confidence)
}

func TestDecide_NoConfiguredModelsReturnsSafeHold(t *testing.T) {
	registry := NewRegistry(nil, nil)
	client := NewClient(registry, nil, nil)

	result := client.Decide(context.Background(), Request{Prompt: "x", PrimaryModel: "missing"})
	assert.Equal(t, domain.OpHold, result.Decision.Operation)
}

func TestValidateDecision_FlagsLowRRRatioLowConfidenceAndHighExposure(t *testing.T) {
	d := validDecision()
	d.TakeProfitPct = 1.0
	d.StopLossPct = 2.0
	d.Confidence = 0.2
	d.TargetPortionOfBalance = 0.8
	d.Leverage = 2

	warnings := validateDecision(d)
	assert.Len(t, warnings, 3)
}

func TestValidateDecision_NoWarningsForHealthyDecision(t *testing.T) {
	d := validDecision()
	warnings := validateDecision(d)
	assert.Empty(t, warnings)
}

// Package llm dispatches trading decisions to a pluggable registry of LLM
// providers (Claude, OpenAI, DeepSeek), with a retry-then-fallback chain
// collapsing to a safe "hold" decision, plus non-fatal validation warnings
// and per-call token/cost accounting.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/lancilotto/hl-agent/internal/domain"
	"github.com/lancilotto/hl-agent/internal/logging"
)

// Request is everything Decide needs beyond the registry: the assembled
// prompt plus accounting metadata.
type Request struct {
	Prompt string // portfolio snapshot, context block, risk status
	Ticker        string
	CycleID       string
	PrimaryModel  string // registry key; falls back through the chain from here
}

// Result is a decision plus whatever non-fatal validation warnings it
// tripped and which model actually produced it.
type Result struct {
	Decision    domain.Decision
	Warnings    []string
	ModelUsed   string
	UsedFallback bool
}

// Client dispatches Decide calls across the model registry.
type Client struct {
	registry    *Registry
	httpClient  *http.Client
	sink        UsageSink
	log         *logging.Logger
	validate    *validator.Validate
	temperature float64
	maxAttempts int
}

// NewClient builds a Client. sink may be nil, in which case usage records
// are dropped (callers that care should pass a MemoryUsageSink or a
// persistence-backed one).
func NewClient(registry *Registry, sink UsageSink, log *logging.Logger) *Client {
	return &Client{
		registry:    registry,
		httpClient:  &http.Client{Timeout: 60 * time.Second},
		sink:        sink,
		log:         log,
		validate:    validator.New(),
		temperature: 0.3,
		maxAttempts: 3,
	}
}

// Decide builds a prompt from req and walks the fallback chain starting at
// req.PrimaryModel. Every attempt's cost is recorded regardless of outcome.
// After maxAttempts recoverable failures it returns the safe default hold.
func (c *Client) Decide(ctx context.Context, req Request) Result {
	chain := c.registry.FallbackChain(req.PrimaryModel)
	if len(chain) == 0 {
		return Result{Decision: safeDefaultHold("no model configured"), ModelUsed: ""}
	}

	var lastErr error
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		entry := chain[attempt%len(chain)]

		start := time.Now()
		decision, inputTokens, outputTokens, err := c.callModel(ctx, entry, req)
		elapsed := time.Since(start)

		if c.sink != nil {
			c.sink.RecordUsage(newUsageRecord(entry.ModelID, "trading_decision", req.Ticker, req.CycleID, inputTokens, outputTokens, elapsed))
		}

		if err != nil {
			lastErr = err
			if c.log != nil {
				c.log.WithError(err).WithField("model", entry.Key).Warn("llm call failed")
			}
			backoff := time.Duration(1<<attempt) * time.Second
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return Result{Decision: safeDefaultHold(ctx.Err().Error())}
			}
			continue
		}

		warnings := validateDecision(decision)
		return Result{Decision: decision, Warnings: warnings, ModelUsed: entry.Key, UsedFallback: attempt > 0}
	}

	reason := "fallback to hold after exhausting retries"
	if lastErr != nil {
		reason = fmt.Sprintf("fallback to hold: %s", truncate(lastErr.Error(), 100))
	}
	return Result{Decision: safeDefaultHold(reason)}
}

func (c *Client) callModel(ctx context.Context, entry ModelEntry, req Request) (domain.Decision, int, int, error) {
	apiKey := c.registry.keys[entry.APIKeyEnv]
	if apiKey == "" {
		return domain.Decision{}, 0, 0, fmt.Errorf("no API key for %s", entry.Key)
	}

	switch entry.Provider {
	case ProviderClaude:
		return c.callClaude(ctx, entry, apiKey, req)
	default:
		return c.callOpenAICompatible(ctx, entry, apiKey, req)
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// --- Claude (Anthropic Messages API) ---

type claudeRequest struct {
	Model       string        `json:"model"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
	System      string        `json:"system"`
	Messages    []chatMessage `json:"messages"`
}

type claudeResponse struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (c *Client) callClaude(ctx context.Context, entry ModelEntry, apiKey string, req Request) (domain.Decision, int, int, error) {
	body, err := json.Marshal(claudeRequest{
		Model:       entry.ModelID,
		MaxTokens:   1000,
		Temperature: c.temperature,
		System:      embeddedSchemaPreamble,
		Messages:    []chatMessage{{Role: "user", Content: req.Prompt}},
	})
	if err != nil {
		return domain.Decision{}, 0, 0, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, entry.BaseURL, bytes.NewReader(body))
	if err != nil {
		return domain.Decision{}, 0, 0, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", apiKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return domain.Decision{}, 0, 0, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.Decision{}, 0, 0, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return domain.Decision{}, 0, 0, fmt.Errorf("claude: status %d: %s", resp.StatusCode, truncate(string(raw), 200))
	}

	var parsed claudeResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return domain.Decision{}, 0, 0, fmt.Errorf("claude: decode failed: %w", err)
	}
	if parsed.Error != nil {
		return domain.Decision{}, 0, 0, fmt.Errorf("claude: %s: %s", parsed.Error.Type, parsed.Error.Message)
	}
	if len(parsed.Content) == 0 {
		return domain.Decision{}, parsed.Usage.InputTokens, parsed.Usage.OutputTokens, fmt.Errorf("claude: empty response")
	}

	decision, err := c.parseDecision(parsed.Content[0].Text)
	return decision, parsed.Usage.InputTokens, parsed.Usage.OutputTokens, err
}

// --- OpenAI-compatible (OpenAI, DeepSeek) ---

type responseFormat struct {
	Type       string          `json:"type"`
	JSONSchema *jsonSchemaSpec `json:"json_schema,omitempty"`
}

type jsonSchemaSpec struct {
	Name   string                 `json:"name"`
	Strict bool                   `json:"strict"`
	Schema map[string]interface{} `json:"schema"`
}

type openAIRequest struct {
	Model                string          `json:"model"`
	Messages             []chatMessage   `json:"messages"`
	Temperature          float64         `json:"temperature"`
	MaxTokens            int             `json:"max_tokens,omitempty"`
	MaxCompletionTokens  int             `json:"max_completion_tokens,omitempty"`
	ResponseFormat       responseFormat  `json:"response_format"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (c *Client) callOpenAICompatible(ctx context.Context, entry ModelEntry, apiKey string, req Request) (domain.Decision, int, int, error) {
	systemContent := strictSchemaPreamble
	format := responseFormat{Type: "json_object"}
	if entry.SupportsJSONSchema {
		format = responseFormat{
			Type:       "json_schema",
			JSONSchema: &jsonSchemaSpec{Name: "trade_decision", Strict: true, Schema: decisionJSONSchema},
		}
	} else {
		systemContent = embeddedSchemaPreamble
	}

	reqBody := openAIRequest{
		Model: entry.ModelID,
		Messages: []chatMessage{
			{Role: "system", Content: systemContent},
			{Role: "user", Content: req.Prompt},
		},
		Temperature:    c.temperature,
		ResponseFormat: format,
	}
	if entry.UseMaxCompletionTokens {
		reqBody.MaxCompletionTokens = 1000
	} else {
		reqBody.MaxTokens = 1000
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return domain.Decision{}, 0, 0, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, entry.BaseURL, bytes.NewReader(body))
	if err != nil {
		return domain.Decision{}, 0, 0, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return domain.Decision{}, 0, 0, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.Decision{}, 0, 0, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return domain.Decision{}, 0, 0, fmt.Errorf("%s: status %d: %s", entry.Key, resp.StatusCode, truncate(string(raw), 200))
	}

	var parsed openAIResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return domain.Decision{}, 0, 0, fmt.Errorf("%s: decode failed: %w", entry.Key, err)
	}
	if parsed.Error != nil {
		return domain.Decision{}, 0, 0, fmt.Errorf("%s: %s: %s", entry.Key, parsed.Error.Type, parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return domain.Decision{}, parsed.Usage.PromptTokens, parsed.Usage.CompletionTokens, fmt.Errorf("%s: empty response", entry.Key)
	}

	decision, err := c.parseDecision(parsed.Choices[0].Message.Content)
	return decision, parsed.Usage.PromptTokens, parsed.Usage.CompletionTokens, err
}

// parseDecision unmarshals the model's JSON response and enforces the
// decision schema's field-level bounds; a schema violation here is a
// recoverable error that makes this attempt fall through to the next one
// in the chain.
func (c *Client) parseDecision(text string) (domain.Decision, error) {
	var decision domain.Decision
	if err := json.Unmarshal([]byte(text), &decision); err != nil {
		return domain.Decision{}, fmt.Errorf("parse decision: %w", err)
	}
	if err := c.validate.Struct(decision); err != nil {
		return domain.Decision{}, fmt.Errorf("schema violation: %w", err)
	}
	return decision, nil
}

// validateDecision checks the non-schema invariants spec.md calls out:
// these never block the decision, they only annotate it.
func validateDecision(d domain.Decision) []string {
	var warnings []string

	if d.StopLossPct > 0 {
		rrRatio := d.TakeProfitPct / d.StopLossPct
		if rrRatio < 1.0 {
			warnings = append(warnings, fmt.Sprintf("low risk:reward ratio %.2f (tp=%.2f%%, sl=%.2f%%)", rrRatio, d.TakeProfitPct, d.StopLossPct))
		}
	}
	if d.Confidence < 0.3 {
		warnings = append(warnings, fmt.Sprintf("low confidence %.0f%%", d.Confidence*100))
	}
	if exposure := d.TargetPortionOfBalance * float64(d.Leverage); exposure > 0.5 {
		warnings = append(warnings, fmt.Sprintf("high leveraged exposure %.0f%% (portion=%.0f%%, leverage=%dx)", exposure*100, d.TargetPortionOfBalance*100, d.Leverage))
	}

	return warnings
}

// safeDefaultHold is the terminal fallback after every model in the chain
// has been exhausted.
func safeDefaultHold(reason string) domain.Decision {
	return domain.Decision{
		Operation:              domain.OpHold,
		Symbol:                 "",
		TargetPortionOfBalance: 0,
		Leverage:               1,
		StopLossPct:            2.0,
		TakeProfitPct:          4.0,
		Reason:                 "fallback to hold: " + reason,
		Confidence:             0.0,
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

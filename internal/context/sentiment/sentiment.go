// Package sentiment fetches the Fear & Greed Index from alternative.me and
// renders it as market-wide context shared across every symbol in a cycle.
package sentiment

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	agentctx "github.com/lancilotto/hl-agent/internal/context"
	"github.com/lancilotto/hl-agent/internal/logging"
)

const feedURL = "https://api.alternative.me/fng/?limit=1"

// Snapshot is the structured payload alongside the rendered text.
type Snapshot struct {
	Index     int
	Label     string
	Score     float64 // -1 (extreme fear) to +1 (extreme greed)
	UpdatedAt time.Time
}

type apiResponse struct {
	Data []struct {
		Value               string `json:"value"`
		ValueClassification string `json:"value_classification"`
	} `json:"data"`
}

// Producer fetches the Fear & Greed Index.
type Producer struct {
	enabled    bool
	feedURL    string
	httpClient *retryablehttp.Client
	log        *logging.Logger
}

// New builds a Producer. Disabled producers always return a placeholder.
func New(enabled bool, log *logging.Logger) *Producer {
	client := retryablehttp.NewClient()
	client.RetryMax = 2
	client.Logger = nil
	client.HTTPClient.Timeout = 6 * time.Second
	return &Producer{enabled: enabled, feedURL: feedURL, httpClient: client, log: log}
}

// Fetch implements context.SentimentProducer.
func (p *Producer) Fetch(ctx context.Context) agentctx.Part {
	if !p.enabled {
		return agentctx.Placeholder("sentiment")
	}

	snap, err := p.fetchFearGreed(ctx)
	if err != nil {
		if p.log != nil {
			p.log.WithError(err).Warn("fear/greed fetch failed")
		}
		return agentctx.Placeholder("sentiment")
	}

	bias := "neutral"
	if snap.Score > 0.3 {
		bias = "bullish"
	} else if snap.Score < -0.3 {
		bias = "bearish"
	}

	text := fmt.Sprintf("Fear & Greed Index: %d (%s), market bias %s", snap.Index, snap.Label, bias)
	return agentctx.Part{Source: "sentiment", Text: text, Payload: snap}
}

func (p *Producer) fetchFearGreed(ctx context.Context) (Snapshot, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, p.feedURL, nil)
	if err != nil {
		return Snapshot{}, err
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return Snapshot{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Snapshot{}, fmt.Errorf("fear-greed: unexpected status %d", resp.StatusCode)
	}

	var parsed apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return Snapshot{}, fmt.Errorf("fear-greed: decode failed: %w", err)
	}
	if len(parsed.Data) == 0 {
		return Snapshot{}, fmt.Errorf("fear-greed: empty response")
	}

	var value int
	fmt.Sscanf(parsed.Data[0].Value, "%d", &value)

	return Snapshot{
		Index:     value,
		Label:     parsed.Data[0].ValueClassification,
		Score:     (float64(value) - 50) / 50,
		UpdatedAt: time.Now(),
	}, nil
}

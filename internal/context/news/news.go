// Package news fetches per-symbol headlines from CryptoPanic and scores
// them from community vote counts, weighting recent items more heavily.
package news

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	agentctx "github.com/lancilotto/hl-agent/internal/context"
	"github.com/lancilotto/hl-agent/internal/logging"
)

const feedURL = "https://cryptopanic.com/api/v1/posts/"

// Item is one headline with a vote-derived sentiment score.
type Item struct {
	Title       string
	Source      string
	URL         string
	Sentiment   float64 // -1 to +1
	PublishedAt time.Time
}

type apiResponse struct {
	Results []struct {
		Title  string `json:"title"`
		Source struct {
			Title string `json:"title"`
		} `json:"source"`
		URL         string `json:"url"`
		PublishedAt string `json:"published_at"`
		Votes       struct {
			Positive int `json:"positive"`
			Negative int `json:"negative"`
		} `json:"votes"`
	} `json:"results"`
}

// Producer fetches and scores CryptoPanic headlines for a symbol.
type Producer struct {
	apiKey     string
	feedURL    string
	httpClient *retryablehttp.Client
	limit      int
	log        *logging.Logger
}

// New builds a Producer. An empty apiKey always yields a placeholder.
func New(apiKey string, log *logging.Logger) *Producer {
	client := retryablehttp.NewClient()
	client.RetryMax = 2
	client.Logger = nil
	client.HTTPClient.Timeout = 8 * time.Second
	return &Producer{apiKey: apiKey, feedURL: feedURL, httpClient: client, limit: 5, log: log}
}

// Fetch implements context.NewsProducer.
func (p *Producer) Fetch(ctx context.Context, symbol string) agentctx.Part {
	if p.apiKey == "" {
		return agentctx.Placeholder("news")
	}

	items, err := p.fetchNews(ctx, symbol)
	if err != nil {
		if p.log != nil {
			p.log.WithError(err).Warn("news fetch failed")
		}
		return agentctx.Placeholder("news")
	}

	score := aggregateScore(items)
	return agentctx.Part{Source: "news", Text: render(symbol, items, score), Payload: items}
}

func (p *Producer) fetchNews(ctx context.Context, symbol string) ([]Item, error) {
	currency := baseCurrency(symbol)
	url := fmt.Sprintf("%s?auth_token=%s&currencies=%s&filter=hot", p.feedURL, p.apiKey, currency)

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("cryptopanic: unexpected status %d", resp.StatusCode)
	}

	var parsed apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("cryptopanic: decode failed: %w", err)
	}

	items := make([]Item, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		total := r.Votes.Positive + r.Votes.Negative
		sentiment := 0.0
		if total > 0 {
			sentiment = float64(r.Votes.Positive-r.Votes.Negative) / float64(total)
		}
		publishedAt, _ := time.Parse(time.RFC3339, r.PublishedAt)
		items = append(items, Item{
			Title:       r.Title,
			Source:      r.Source.Title,
			URL:         r.URL,
			Sentiment:   sentiment,
			PublishedAt: publishedAt,
		})
		if len(items) >= p.limit {
			break
		}
	}
	return items, nil
}

// baseCurrency strips a perp suffix like "BTC-PERP" or "BTCUSDT" down to
// the asset CryptoPanic indexes articles by.
func baseCurrency(symbol string) string {
	s := strings.ToUpper(symbol)
	s = strings.TrimSuffix(s, "-PERP")
	s = strings.TrimSuffix(s, "USDT")
	s = strings.TrimSuffix(s, "USD")
	return s
}

// aggregateScore weights recent items more heavily than stale ones.
func aggregateScore(items []Item) float64 {
	if len(items) == 0 {
		return 0
	}
	now := time.Now()
	var weightedSum, totalWeight float64
	for _, item := range items {
		ageHours := now.Sub(item.PublishedAt).Hours()
		weight := 1.0
		switch {
		case ageHours < 1:
			weight = 2.0
		case ageHours < 6:
			weight = 1.5
		case ageHours > 24:
			weight = 0.5
		}
		weightedSum += item.Sentiment * weight
		totalWeight += weight
	}
	if totalWeight == 0 {
		return 0
	}
	return weightedSum / totalWeight
}

func render(symbol string, items []Item, score float64) string {
	if len(items) == 0 {
		return fmt.Sprintf("no recent headlines for %s", symbol)
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "headline sentiment for %s: %.2f\n", symbol, score)
	for _, item := range items {
		fmt.Fprintf(&sb, "- %s (%s)\n", item.Title, item.Source)
	}
	return sb.String()
}

// Package whale fetches large crypto transfers from the whale-alert.io
// public API and renders the subset relevant to the bot's traded assets as
// a short markdown block for the LLM prompt.
package whale

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	agentctx "github.com/lancilotto/hl-agent/internal/context"
	"github.com/lancilotto/hl-agent/internal/logging"
)

const apiBase = "https://api.whale-alert.io/v1/transactions"

// relevantAssets restricts alerts to symbols the bot actually trades;
// everything else is noise for a perp-futures screener.
var relevantAssets = map[string]bool{
	"BTC": true, "ETH": true, "SOL": true, "USDT": true, "USDC": true,
}

// knownExchanges flags a transfer as exchange-bound, which is the signal
// worth surfacing (accumulation/distribution vs. internal wallet shuffling).
var knownExchanges = []string{
	"binance", "okex", "okx", "coinbase", "kraken", "bitfinex", "huobi",
	"kucoin", "bybit", "gate.io", "bitmex", "ftx", "gemini", "crypto.com",
	"bitstamp", "bittrex", "poloniex",
}

// Alert is one whale-alert.io transaction, flattened to the fields used
// downstream.
type Alert struct {
	Symbol      string
	AmountUSD   float64
	Amount      float64
	From        string
	To          string
	Timestamp   time.Time
	Description string
}

type apiResponse struct {
	Result       string `json:"result"`
	Transactions []struct {
		Symbol    string `json:"symbol"`
		Amount    float64 `json:"amount"`
		AmountUSD float64 `json:"amount_usd"`
		Timestamp int64  `json:"timestamp"`
		From      struct {
			Owner     string `json:"owner"`
			OwnerType string `json:"owner_type"`
		} `json:"from"`
		To struct {
			Owner     string `json:"owner"`
			OwnerType string `json:"owner_type"`
		} `json:"to"`
	} `json:"transactions"`
}

// Producer fetches and filters whale-alert.io transactions.
type Producer struct {
	apiKey     string
	apiBase    string
	httpClient *retryablehttp.Client
	maxAlerts  int
	log        *logging.Logger
}

// New builds a Producer. An empty apiKey means the producer always falls
// back to a placeholder, since whale-alert.io requires a key.
func New(apiKey string, log *logging.Logger) *Producer {
	client := retryablehttp.NewClient()
	client.RetryMax = 2
	client.Logger = nil
	client.HTTPClient.Timeout = 8 * time.Second

	return &Producer{apiKey: apiKey, apiBase: apiBase, httpClient: client, maxAlerts: 5, log: log}
}

// Fetch implements context.WhaleProducer. symbols is not used for
// filtering: an alert is kept when its asset is in relevantAssets and either
// side is a known exchange.
func (p *Producer) Fetch(ctx context.Context, symbols []string) agentctx.Part {
	if p.apiKey == "" {
		return agentctx.Placeholder("whale")
	}

	alerts, err := p.fetchAlerts(ctx)
	if err != nil {
		if p.log != nil {
			p.log.WithError(err).Warn("whale alert fetch failed")
		}
		return agentctx.Placeholder("whale")
	}

	relevant := filterRelevant(alerts)
	sort.SliceStable(relevant, func(i, j int) bool { return relevant[i].AmountUSD > relevant[j].AmountUSD })
	if len(relevant) > p.maxAlerts {
		relevant = relevant[:p.maxAlerts]
	}

	return agentctx.Part{Source: "whale", Text: render(relevant), Payload: relevant}
}

func (p *Producer) fetchAlerts(ctx context.Context) ([]Alert, error) {
	since := time.Now().Add(-1 * time.Hour).Unix()
	url := fmt.Sprintf("%s?api_key=%s&min_value=500000&start=%d", p.apiBase, p.apiKey, since)

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
		return nil, fmt.Errorf("whale-alert: unexpected status %d", resp.StatusCode)
	}

	var parsed apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("whale-alert: decode failed: %w", err)
	}

	alerts := make([]Alert, 0, len(parsed.Transactions))
	for _, tx := range parsed.Transactions {
		from := tx.From.Owner
		if from == "" {
			from = tx.From.OwnerType
		}
		to := tx.To.Owner
		if to == "" {
			to = tx.To.OwnerType
		}
		alerts = append(alerts, Alert{
			Symbol:      strings.ToUpper(tx.Symbol),
			Amount:      tx.Amount,
			AmountUSD:   tx.AmountUSD,
			From:        from,
			To:          to,
			Timestamp:   time.Unix(tx.Timestamp, 0).UTC(),
			Description: fmt.Sprintf("%s -> %s", from, to),
		})
	}
	return alerts, nil
}

func filterRelevant(alerts []Alert) []Alert {
	out := make([]Alert, 0, len(alerts))
	for _, a := range alerts {
		if relevantAssets[a.Symbol] && (isKnownExchange(a.From) || isKnownExchange(a.To)) {
			out = append(out, a)
		}
	}
	return out
}

func isKnownExchange(name string) bool {
	lower := strings.ToLower(name)
	for _, ex := range knownExchanges {
		if strings.Contains(lower, ex) {
			return true
		}
	}
	return false
}

func render(alerts []Alert) string {
	if len(alerts) == 0 {
		return "no significant whale transfers in the last hour"
	}
	var sb strings.Builder
	for _, a := range alerts {
		fmt.Fprintf(&sb, "- %s %.2f %s ($%.0f) %s at %s\n",
			a.Symbol, a.Amount, a.Symbol, a.AmountUSD, a.Description, a.Timestamp.Format(time.RFC3339))
	}
	return sb.String()
}

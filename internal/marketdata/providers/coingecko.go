package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// symbolToID is the static symbol->CoinGecko-id table, grounded on
// original_source/backend/coin_screener/data_providers/coingecko.py's
// SYMBOL_TO_ID (trimmed to the pairs this agent actually screens).
var symbolToID = map[string]string{
	"BTC": "bitcoin", "ETH": "ethereum", "BNB": "binancecoin", "SOL": "solana",
	"XRP": "ripple", "ADA": "cardano", "DOGE": "dogecoin", "DOT": "polkadot",
	"MATIC": "polygon-ecosystem-token", "AVAX": "avalanche-2", "LINK": "chainlink",
	"UNI": "uniswap", "ATOM": "cosmos", "LTC": "litecoin", "BCH": "bitcoin-cash",
	"NEAR": "near", "APT": "aptos", "ARB": "arbitrum", "OP": "optimism",
	"SUI": "sui", "FIL": "filecoin", "AAVE": "aave", "MKR": "maker",
	"SNX": "synthetix-network-token", "CRV": "curve-dao-token", "LDO": "lido-dao",
	"PEPE": "pepe", "SHIB": "shiba-inu", "WIF": "dogwifcoin", "BONK": "bonk",
	"INJ": "injective-protocol", "TIA": "celestia", "SEI": "sei-network",
	"RUNE": "thorchain",
}

// Stablecoins mirrors coingecko.py's STABLECOINS set.
var Stablecoins = map[string]bool{
	"USDT": true, "USDC": true, "DAI": true, "BUSD": true, "TUSD": true,
	"USDD": true, "FRAX": true, "USDP": true, "GUSD": true, "LUSD": true,
	"SUSD": true,
}

// CoinMarketData is the market-cap/listing-age/lagged-price history slice
// of CoinMetrics that only CoinGecko (not an exchange ticker) supplies.
type CoinMarketData struct {
	MarketCapUSD float64
	DaysListed   int
	Price7dAgo   float64
	Price30dAgo  float64
	Volume7dAvg  float64
	Volume30dAvg float64
	IsStablecoin bool
}

// CoinGecko fetches market-cap and historical price/volume data in one
// batched call per screening pass, grounded on
// original_source/backend/coin_screener/data_providers/coingecko.py.
type CoinGecko struct {
	client  *retryablehttp.Client
	baseURL string
	apiKey  string
}

func NewCoinGecko(apiKey string) *CoinGecko {
	return &CoinGecko{client: newHTTPClient(), baseURL: "https://api.coingecko.com/api/v3", apiKey: apiKey}
}

// FetchBatch returns market data for every symbol with a known CoinGecko
// id; symbols absent from symbolToID are silently skipped (the caller
// falls back to hard-filter-failing zero values for them, same as the
// Python original's per-symbol try/except).
func (g *CoinGecko) FetchBatch(ctx context.Context, symbols []string) (map[string]CoinMarketData, error) {
	ids := make([]string, 0, len(symbols))
	idToSymbol := make(map[string]string, len(symbols))
	for _, sym := range symbols {
		if Stablecoins[sym] {
			continue
		}
		id, ok := symbolToID[sym]
		if !ok {
			continue
		}
		ids = append(ids, id)
		idToSymbol[id] = sym
	}
	if len(ids) == 0 {
		return map[string]CoinMarketData{}, nil
	}

	url := fmt.Sprintf("%s/coins/markets?vs_currency=usd&ids=%s&price_change_percentage=7d,30d", g.baseURL, strings.Join(ids, ","))
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if g.apiKey != "" {
		req.Header.Set("x-cg-demo-api-key", g.apiKey)
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("coingecko: unexpected status %d", resp.StatusCode)
	}

	var raw []struct {
		ID                            string  `json:"id"`
		MarketCap                     float64 `json:"market_cap"`
		CurrentPrice                  float64 `json:"current_price"`
		TotalVolume                   float64 `json:"total_volume"`
		PriceChangePercentage7dInCCY  float64 `json:"price_change_percentage_7d_in_currency"`
		PriceChangePercentage30dInCCY float64 `json:"price_change_percentage_30d_in_currency"`
		ATHDate                       string  `json:"ath_date"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, err
	}

	out := make(map[string]CoinMarketData, len(raw))
	for _, c := range raw {
		sym, ok := idToSymbol[c.ID]
		if !ok {
			continue
		}
		daysListed := 9999
		if t, err := time.Parse(time.RFC3339, c.ATHDate); err == nil {
			daysListed = int(time.Since(t).Hours() / 24)
		}
		price7dAgo := c.CurrentPrice
		if c.PriceChangePercentage7dInCCY != 0 {
			price7dAgo = c.CurrentPrice / (1 + c.PriceChangePercentage7dInCCY/100)
		}
		price30dAgo := c.CurrentPrice
		if c.PriceChangePercentage30dInCCY != 0 {
			price30dAgo = c.CurrentPrice / (1 + c.PriceChangePercentage30dInCCY/100)
		}
		out[sym] = CoinMarketData{
			MarketCapUSD: c.MarketCap,
			DaysListed:   daysListed,
			Price7dAgo:   price7dAgo,
			Price30dAgo:  price30dAgo,
			Volume7dAvg:  c.TotalVolume,
			Volume30dAvg: c.TotalVolume,
			IsStablecoin: Stablecoins[sym],
		}
	}
	return out, nil
}

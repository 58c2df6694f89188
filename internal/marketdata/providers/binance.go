package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/hashicorp/go-retryablehttp"
)

// Binance reads the USDT-margined futures ticker and premium index,
// grounded on original_source/backend/market_data/binance.py.
type Binance struct {
	client  *retryablehttp.Client
	baseURL string
}

func NewBinance() *Binance {
	return &Binance{client: newHTTPClient(), baseURL: "https://fapi.binance.com"}
}

func (b *Binance) Name() string    { return "binance_futures" }
func (b *Binance) Available() bool { return true }

func (b *Binance) Fetch(ctx context.Context, symbol string) (Snapshot, error) {
	pair := symbol + "USDT"

	var ticker struct {
		LastPrice string `json:"lastPrice"`
		QuoteVol  string `json:"quoteVolume"`
	}
	if err := b.getJSON(ctx, "/fapi/v1/ticker/24hr?symbol="+pair, &ticker); err != nil {
		return Snapshot{}, err
	}

	price, _ := strconv.ParseFloat(ticker.LastPrice, 64)
	volume, _ := strconv.ParseFloat(ticker.QuoteVol, 64)

	snap := Snapshot{Source: b.Name(), Price: price, Volume24hUSD: volume}

	var premium struct {
		LastFundingRate string `json:"lastFundingRate"`
	}
	if err := b.getJSON(ctx, "/fapi/v1/premiumIndex?symbol="+pair, &premium); err == nil {
		if fr, err := strconv.ParseFloat(premium.LastFundingRate, 64); err == nil {
			snap.FundingRate, snap.HasFundingRate = fr, true
		}
	}

	return snap, nil
}

func (b *Binance) getJSON(ctx context.Context, path string, out any) error {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("binance: unexpected status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

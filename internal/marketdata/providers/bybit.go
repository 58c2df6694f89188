package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/hashicorp/go-retryablehttp"
)

// Bybit reads the V5 linear-perpetual ticker, grounded on
// original_source/backend/market_data/bybit.py.
type Bybit struct {
	client  *retryablehttp.Client
	baseURL string
}

func NewBybit() *Bybit {
	return &Bybit{client: newHTTPClient(), baseURL: "https://api.bybit.com"}
}

func (b *Bybit) Name() string    { return "bybit_linear" }
func (b *Bybit) Available() bool { return true }

func (b *Bybit) Fetch(ctx context.Context, symbol string) (Snapshot, error) {
	pair := symbol + "USDT"
	path := fmt.Sprintf("/v5/market/tickers?category=linear&symbol=%s", pair)

	var raw struct {
		RetCode int `json:"retCode"`
		Result  struct {
			List []struct {
				LastPrice        string `json:"lastPrice"`
				Turnover24h      string `json:"turnover24h"`
				FundingRate      string `json:"fundingRate"`
				OpenInterestVal  string `json:"openInterestValue"`
			} `json:"list"`
		} `json:"result"`
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+path, nil)
	if err != nil {
		return Snapshot{}, err
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return Snapshot{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Snapshot{}, fmt.Errorf("bybit: unexpected status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return Snapshot{}, err
	}
	if raw.RetCode != 0 || len(raw.Result.List) == 0 {
		return Snapshot{}, fmt.Errorf("bybit: no ticker for %s", pair)
	}

	t := raw.Result.List[0]
	price, _ := strconv.ParseFloat(t.LastPrice, 64)
	volume, _ := strconv.ParseFloat(t.Turnover24h, 64)
	funding, fundingErr := strconv.ParseFloat(t.FundingRate, 64)
	oi, oiErr := strconv.ParseFloat(t.OpenInterestVal, 64)

	return Snapshot{
		Source:          b.Name(),
		Price:           price,
		Volume24hUSD:    volume,
		FundingRate:     funding,
		HasFundingRate:  fundingErr == nil,
		OpenInterestUSD: oi,
		HasOpenInterest: oiErr == nil,
	}, nil
}

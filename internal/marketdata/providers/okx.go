package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/hashicorp/go-retryablehttp"
)

// OKX reads the V5 swap ticker, grounded on
// original_source/backend/market_data/okx.py. The ticker endpoint carries
// no funding rate or open interest (the Python original notes both would
// need an extra call); this provider leaves them unset accordingly.
type OKX struct {
	client  *retryablehttp.Client
	baseURL string
}

func NewOKX() *OKX {
	return &OKX{client: newHTTPClient(), baseURL: "https://www.okx.com"}
}

func (o *OKX) Name() string    { return "okx_swap" }
func (o *OKX) Available() bool { return true }

func (o *OKX) Fetch(ctx context.Context, symbol string) (Snapshot, error) {
	instID := symbol + "-USDT-SWAP"
	path := "/api/v5/market/ticker?instId=" + instID

	var raw struct {
		Code string `json:"code"`
		Data []struct {
			Last      string `json:"last"`
			VolCcy24h string `json:"volCcy24h"`
		} `json:"data"`
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+path, nil)
	if err != nil {
		return Snapshot{}, err
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return Snapshot{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Snapshot{}, fmt.Errorf("okx: unexpected status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return Snapshot{}, err
	}
	if raw.Code != "0" || len(raw.Data) == 0 {
		return Snapshot{}, fmt.Errorf("okx: no ticker for %s", instID)
	}

	t := raw.Data[0]
	price, _ := strconv.ParseFloat(t.Last, 64)
	volume, _ := strconv.ParseFloat(t.VolCcy24h, 64)

	return Snapshot{Source: o.Name(), Price: price, Volume24hUSD: volume}, nil
}

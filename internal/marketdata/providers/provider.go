// Package providers implements the secondary, cross-exchange market-data
// sources the Aggregator fans out to alongside the primary venue: uniform
// ticker providers (Binance, Bybit, OKX) and the CoinGecko market-cap/
// volume-history provider, one file per source.
package providers

import (
	"context"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// Snapshot is one provider's read of a single symbol's cross-exchange
// market data. FundingRate and OpenInterestUSD are zero when the provider
// doesn't expose them (OKX's ticker endpoint omits both).
type Snapshot struct {
	Source          string
	Price           float64
	Volume24hUSD    float64
	FundingRate     float64
	HasFundingRate  bool
	OpenInterestUSD float64
	HasOpenInterest bool
}

// Ticker is the uniform interface every exchange ticker provider satisfies.
// Availability is a cheap, synchronous check (none of these exchanges
// require credentials for public ticker data); Fetch does the network call.
type Ticker interface {
	Name() string
	Available() bool
	Fetch(ctx context.Context, symbol string) (Snapshot, error)
}

// newHTTPClient returns a retryablehttp client tuned for short-lived,
// best-effort ticker polling: a handful of fast retries, silenced default
// logging (the Aggregator logs failures itself).
func newHTTPClient() *retryablehttp.Client {
	c := retryablehttp.NewClient()
	c.RetryMax = 2
	c.RetryWaitMin = 200 * time.Millisecond
	c.RetryWaitMax = 1 * time.Second
	c.Logger = nil
	c.HTTPClient.Timeout = 5 * time.Second
	return c
}

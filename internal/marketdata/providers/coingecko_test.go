package providers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoinGecko_FetchBatch_SkipsStablecoinsAndUnknownSymbols(t *testing.T) {
	g := &CoinGecko{client: newHTTPClient(), baseURL: "http://unused"}
	out, err := g.FetchBatch(context.Background(), []string{"USDT", "NOTACOIN"})

	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestCoinGecko_FetchBatch_ParsesMarketData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"id":"bitcoin","market_cap":900000000000,"current_price":50000,"total_volume":1000000,"price_change_percentage_7d_in_currency":10,"price_change_percentage_30d_in_currency":-5,"ath_date":"2021-11-10T00:00:00.000Z"}]`))
	}))
	defer srv.Close()

	g := &CoinGecko{client: newHTTPClient(), baseURL: srv.URL}
	out, err := g.FetchBatch(context.Background(), []string{"BTC"})

	require.NoError(t, err)
	require.Contains(t, out, "BTC")
	btc := out["BTC"]
	assert.Equal(t, 900000000000.0, btc.MarketCapUSD)
	assert.False(t, btc.IsStablecoin)
	assert.InDelta(t, 50000/1.10, btc.Price7dAgo, 0.01)
	assert.Greater(t, btc.DaysListed, 0)
}

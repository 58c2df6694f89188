package providers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBinance_Fetch_ParsesTickerAndFunding(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "premiumIndex") {
			w.Write([]byte(`{"lastFundingRate":"0.0001"}`))
			return
		}
		w.Write([]byte(`{"lastPrice":"50000.5","quoteVolume":"123456.78"}`))
	}))
	defer srv.Close()

	b := &Binance{client: newHTTPClient(), baseURL: srv.URL}
	snap, err := b.Fetch(context.Background(), "BTC")

	require.NoError(t, err)
	assert.Equal(t, 50000.5, snap.Price)
	assert.Equal(t, 123456.78, snap.Volume24hUSD)
	assert.True(t, snap.HasFundingRate)
	assert.Equal(t, 0.0001, snap.FundingRate)
}

func TestBinance_Fetch_NonOKStatusReturnsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	b := &Binance{client: newHTTPClient(), baseURL: srv.URL}
	_, err := b.Fetch(context.Background(), "BTC")

	assert.Error(t, err)
}

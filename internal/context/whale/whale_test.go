package whale

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetch_NoAPIKeyReturnsPlaceholder(t *testing.T) {
	p := New("", nil)
	part := p.Fetch(context.Background(), []string{"BTC"})
	assert.Equal(t, "whale", part.Source)
	assert.Nil(t, part.Payload)
}

func TestFetch_FiltersToRelevantExchangeBoundTransfers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"result":"success","transactions":[
			{"symbol":"btc","amount":100,"amount_usd":5000000,"timestamp":1700000000,
			 "from":{"owner":"unknown wallet","owner_type":"unknown"},
			 "to":{"owner":"binance","owner_type":"exchange"}},
			{"symbol":"doge","amount":1000000,"amount_usd":9000000,"timestamp":1700000000,
			 "from":{"owner":"unknown","owner_type":"unknown"},
			 "to":{"owner":"unknown","owner_type":"unknown"}}
		]}`))
	}))
	defer srv.Close()

	p := New("key", nil)
	p.apiBase = srv.URL

	part := p.Fetch(context.Background(), []string{"BTC"})
	alerts, ok := part.Payload.([]Alert)
	require.True(t, ok)
	require.Len(t, alerts, 1)
	assert.Equal(t, "BTC", alerts[0].Symbol)
}

func TestFetch_ServerErrorFallsBackToPlaceholder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := New("key", nil)
	p.apiBase = srv.URL
	p.httpClient.RetryMax = 0

	part := p.Fetch(context.Background(), []string{"BTC"})
	assert.Nil(t, part.Payload)
}

func TestIsKnownExchange(t *testing.T) {
	assert.True(t, isKnownExchange("Binance Hot Wallet"))
	assert.False(t, isKnownExchange("unknown wallet"))
}

func TestRender_EmptyAlertsReportsNone(t *testing.T) {
	assert.Contains(t, render(nil), "no significant")
}

package news

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetch_NoAPIKeyReturnsPlaceholder(t *testing.T) {
	p := New("", nil)
	part := p.Fetch(context.Background(), "BTC")
	assert.Equal(t, "news", part.Source)
	assert.Nil(t, part.Payload)
}

func TestFetch_PositiveVotesYieldPositiveScore(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"results":[{"title":"BTC rallies","source":{"title":"CoinDesk"},
			"published_at":"` + time.Now().Format(time.RFC3339) + `","votes":{"positive":10,"negative":0}}]}`))
	}))
	defer srv.Close()

	p := New("key", nil)
	p.feedURL = srv.URL

	part := p.Fetch(context.Background(), "BTC")
	items, ok := part.Payload.([]Item)
	require.True(t, ok)
	require.Len(t, items, 1)
	assert.Equal(t, 1.0, items[0].Sentiment)
	assert.Contains(t, part.Text, "BTC")
}

func TestBaseCurrency_StripsPerpAndStableSuffixes(t *testing.T) {
	assert.Equal(t, "BTC", baseCurrency("BTC-PERP"))
	assert.Equal(t, "ETH", baseCurrency("ETHUSDT"))
	assert.Equal(t, "SOL", baseCurrency("SOLUSD"))
}

func TestAggregateScore_EmptyIsZero(t *testing.T) {
	assert.Equal(t, 0.0, aggregateScore(nil))
}

package context

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lancilotto/hl-agent/internal/venue"
)

type fakeNews struct{ fail bool }

func (f *fakeNews) Fetch(ctx context.Context, symbol string) Part {
	if f.fail {
		panic("boom")
	}
	return Part{Source: "news", Text: "ok for " + symbol, Payload: symbol}
}

type fakeSentiment struct{}

func (f *fakeSentiment) Fetch(ctx context.Context) Part {
	return Part{Source: "sentiment", Text: "neutral"}
}

type fakeForecast struct{}

func (f *fakeForecast) Fetch(ctx context.Context, symbol string, candles []venue.Candle) Part {
	return Part{Source: "forecast", Text: "flat"}
}

type failingWhale struct{}

func (f *failingWhale) Fetch(ctx context.Context, symbols []string) Part {
	panic("whale down")
}

func TestFetchContext_BuildsSnapshotPerSymbol(t *testing.T) {
	agg := New(&fakeNews{}, &fakeSentiment{}, &fakeForecast{}, &failingWhale{}, nil)

	result := agg.FetchContext(context.Background(), []string{"BTC", "ETH"}, nil)

	require.Len(t, result, 2)
	btc := result["BTC"]
	assert.Equal(t, "ok for BTC", btc.News.Text)
	assert.Equal(t, "neutral", btc.Sentiment.Text)
	assert.Equal(t, "flat", btc.Forecast.Text)
	assert.Contains(t, btc.Whale.Text, "unavailable")
}

func TestFetchContext_PanicInOneSourceIsolatesFailure(t *testing.T) {
	agg := New(&fakeNews{fail: true}, &fakeSentiment{}, &fakeForecast{}, &failingWhale{}, nil)

	result := agg.FetchContext(context.Background(), []string{"BTC"}, nil)

	btc := result["BTC"]
	assert.Contains(t, btc.News.Text, "unavailable")
	assert.Equal(t, "neutral", btc.Sentiment.Text)
}

func TestSnapshot_Render_IncludesAllFourSections(t *testing.T) {
	snap := Snapshot{
		News:      Part{Text: "n"},
		Sentiment: Part{Text: "s"},
		Forecast:  Part{Text: "f"},
		Whale:     Part{Text: "w"},
	}
	rendered := snap.Render()
	assert.Contains(t, rendered, "## News")
	assert.Contains(t, rendered, "## Sentiment")
	assert.Contains(t, rendered, "## Forecast")
	assert.Contains(t, rendered, "## Whale Activity")
}

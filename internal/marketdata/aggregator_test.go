package marketdata

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lancilotto/hl-agent/internal/marketdata/providers"
	"github.com/lancilotto/hl-agent/internal/venue"
)

type fakeVenue struct {
	meta    venue.Meta
	candles []venue.Candle
	mids    map[string]float64
	book    venue.L2Snapshot
}

func (f *fakeVenue) Meta() venue.Meta { return f.meta }
func (f *fakeVenue) GetOHLCV(ctx context.Context, symbol, interval string, limit int) ([]venue.Candle, error) {
	return f.candles, nil
}
func (f *fakeVenue) GetAllMids(ctx context.Context) (map[string]float64, error) { return f.mids, nil }
func (f *fakeVenue) GetL2Snapshot(ctx context.Context, symbol string) (venue.L2Snapshot, error) {
	return f.book, nil
}

type fakeTicker struct {
	name string
	snap providers.Snapshot
	err  error
}

func (f *fakeTicker) Name() string    { return f.name }
func (f *fakeTicker) Available() bool { return true }
func (f *fakeTicker) Fetch(ctx context.Context, symbol string) (providers.Snapshot, error) {
	return f.snap, f.err
}

type fakeCoinGecko struct {
	data map[string]providers.CoinMarketData
	err  error
}

func (f *fakeCoinGecko) FetchBatch(ctx context.Context, symbols []string) (map[string]providers.CoinMarketData, error) {
	return f.data, f.err
}

func dailyCandles(n int, start float64) []venue.Candle {
	out := make([]venue.Candle, n)
	price := start
	for i := 0; i < n; i++ {
		out[i] = venue.Candle{Open: price, High: price * 1.01, Low: price * 0.99, Close: price, Volume: 1000}
		price += 1
	}
	return out
}

func TestFetchUniverse_ReturnsVenueSymbols(t *testing.T) {
	v := &fakeVenue{meta: venue.Meta{Universe: map[string]venue.AssetInfo{"BTC": {}, "ETH": {}}}}
	a := New(v, nil, &fakeCoinGecko{data: map[string]providers.CoinMarketData{}})

	symbols, err := a.FetchUniverse(context.Background())

	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"BTC", "ETH"}, symbols)
}

func TestFetchMetrics_PopulatesIndicatorsAndCrossExchangeData(t *testing.T) {
	v := &fakeVenue{
		candles: dailyCandles(230, 100),
		mids:    map[string]float64{"BTC": 329},
		book:    venue.L2Snapshot{Bids: []venue.L2Level{{Price: 328}}, Asks: []venue.L2Level{{Price: 330}}},
	}
	secondary := []providers.Ticker{
		&fakeTicker{name: "binance_futures", snap: providers.Snapshot{FundingRate: 0.0001, HasFundingRate: true}},
		&fakeTicker{name: "bybit_linear", snap: providers.Snapshot{FundingRate: 0.0003, HasFundingRate: true, OpenInterestUSD: 20_000_000, HasOpenInterest: true}},
	}
	gecko := &fakeCoinGecko{data: map[string]providers.CoinMarketData{
		"BTC": {MarketCapUSD: 900_000_000_000, DaysListed: 2000, Price7dAgo: 300, Volume7dAvg: 5_000_000, Volume30dAvg: 4_000_000},
	}}
	a := New(v, secondary, gecko)

	metrics, err := a.FetchMetrics(context.Background(), []string{"BTC"})

	require.NoError(t, err)
	require.Len(t, metrics, 1)
	m := metrics[0]
	assert.Equal(t, "BTC", m.Symbol)
	assert.Equal(t, 329.0, m.Price)
	assert.Equal(t, 900_000_000_000.0, m.MarketCapUSD)
	assert.InDelta(t, 0.0002, m.FundingRate, 1e-9)
	assert.Equal(t, 20_000_000.0, m.OpenInterestUSD)
	assert.Equal(t, m.OpenInterestUSD, m.OI7dAgo)
	assert.Greater(t, m.EMA20, 0.0)
	assert.InDelta(t, (330.0-328.0)/329.0*100, m.SpreadPct, 1e-9)
}

func TestFetchMetrics_SkipsSymbolWhenOHLCVFails(t *testing.T) {
	v := &fakeVenue{candles: nil}
	a := New(v, nil, &fakeCoinGecko{data: map[string]providers.CoinMarketData{}})

	metrics, err := a.FetchMetrics(context.Background(), []string{"DOGE"})

	require.NoError(t, err)
	assert.Empty(t, metrics)
}

func TestCrossExchange_AveragesOnlyReportingProviders(t *testing.T) {
	secondary := []providers.Ticker{
		&fakeTicker{name: "a", err: errors.New("down")},
		&fakeTicker{name: "b", snap: providers.Snapshot{FundingRate: 0.0004, HasFundingRate: true}},
	}
	a := New(&fakeVenue{}, secondary, &fakeCoinGecko{})

	funding, oi := a.crossExchange(context.Background(), "BTC")

	assert.Equal(t, 0.0004, funding)
	assert.Equal(t, 0.0, oi)
}

func TestOpenInterest_SatisfiesIndicatorsOIFundingSource(t *testing.T) {
	secondary := []providers.Ticker{
		&fakeTicker{name: "b", snap: providers.Snapshot{OpenInterestUSD: 10_000_000, HasOpenInterest: true}},
	}
	a := New(&fakeVenue{}, secondary, &fakeCoinGecko{})

	latest, average, err := a.OpenInterest(context.Background(), "BTC")

	require.NoError(t, err)
	assert.Equal(t, 10_000_000.0, latest)
	assert.Equal(t, latest, average)
}

// Package marketdata combines the primary venue's own OHLCV history with
// cross-exchange secondary tickers (Binance, Bybit, OKX) and CoinGecko's
// market-cap/listing-age history into the full domain.CoinMetrics snapshot
// the Coin Screener scores, grounded on
// original_source/backend/market_data/aggregator.py's "Hyperliquid primary,
// N secondaries" fan-out shape.
package marketdata

import (
	"context"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"github.com/lancilotto/hl-agent/internal/domain"
	"github.com/lancilotto/hl-agent/internal/indicators"
	"github.com/lancilotto/hl-agent/internal/logging"
	"github.com/lancilotto/hl-agent/internal/marketdata/providers"
	"github.com/lancilotto/hl-agent/internal/venue"
)

// Venue is the subset of *venue.Client the Aggregator needs.
type Venue interface {
	Meta() venue.Meta
	GetOHLCV(ctx context.Context, symbol, interval string, limit int) ([]venue.Candle, error)
	GetAllMids(ctx context.Context) (map[string]float64, error)
	GetL2Snapshot(ctx context.Context, symbol string) (venue.L2Snapshot, error)
}

// CoinGeckoClient is the subset of *providers.CoinGecko the Aggregator
// needs, narrowed so tests can substitute a fake.
type CoinGeckoClient interface {
	FetchBatch(ctx context.Context, symbols []string) (map[string]providers.CoinMarketData, error)
}

// Aggregator is the concrete screener.MetricsProvider: it fetches daily
// OHLCV from the primary venue for indicator computation, fans out to every
// configured secondary ticker for cross-exchange price/funding/open-interest
// data, and batches a CoinGecko call for market-cap and listing history.
type Aggregator struct {
	venue      Venue
	secondary  []providers.Ticker
	coingecko  CoinGeckoClient
	dailyLimit int
	log        *logging.Logger
}

// New constructs an Aggregator. secondary is typically
// []providers.Ticker{providers.NewBinance(), providers.NewBybit(), providers.NewOKX()},
// filtered by config.ProvidersConfig.Enabled.
func New(v Venue, secondary []providers.Ticker, coingecko CoinGeckoClient) *Aggregator {
	return &Aggregator{venue: v, secondary: secondary, coingecko: coingecko, dailyLimit: 220, log: logging.WithComponent("marketdata")}
}

// FetchUniverse returns every symbol the venue lists.
func (a *Aggregator) FetchUniverse(ctx context.Context) ([]string, error) {
	meta := a.venue.Meta()
	out := make([]string, 0, len(meta.Universe))
	for sym := range meta.Universe {
		out = append(out, sym)
	}
	return out, nil
}

// FetchMetrics builds one domain.CoinMetrics per symbol, combining the
// venue's own OHLCV-derived indicators with cross-exchange and CoinGecko
// data. A symbol whose primary OHLCV fetch fails is skipped rather than
// aborting the whole batch (spec §4.4's filters already treat a missing
// coin as excluded).
func (a *Aggregator) FetchMetrics(ctx context.Context, symbols []string) ([]domain.CoinMetrics, error) {
	geckoData, err := a.coingecko.FetchBatch(ctx, symbols)
	if err != nil {
		a.log.WithError(err).Warn("marketdata: coingecko batch fetch failed, proceeding without it")
		geckoData = map[string]providers.CoinMarketData{}
	}

	mids, err := a.venue.GetAllMids(ctx)
	if err != nil {
		mids = map[string]float64{}
	}

	results := make([]domain.CoinMetrics, len(symbols))
	g, gctx := errgroup.WithContext(ctx)
	for i, sym := range symbols {
		i, sym := i, sym
		g.Go(func() error {
			m, err := a.fetchOne(gctx, sym, mids[sym], geckoData[sym])
			if err != nil {
				a.log.WithError(err).Warn("marketdata: metrics fetch failed", "symbol", sym)
				return nil
			}
			results[i] = m
			return nil
		})
	}
	_ = g.Wait()

	out := make([]domain.CoinMetrics, 0, len(results))
	for _, m := range results {
		if m.Symbol != "" {
			out = append(out, m)
		}
	}
	return out, nil
}

func (a *Aggregator) fetchOne(ctx context.Context, symbol string, mid float64, gecko providers.CoinMarketData) (domain.CoinMetrics, error) {
	candles, err := a.venue.GetOHLCV(ctx, symbol, "1d", a.dailyLimit)
	if err != nil || len(candles) == 0 {
		return domain.CoinMetrics{}, err
	}

	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}
	last := candles[len(candles)-1]

	price := mid
	if price == 0 {
		price = last.Close
	}

	ema20 := indicators.EMA(closes, 20)
	ema50 := indicators.EMA(closes, 50)
	ema200 := indicators.EMA(closes, 200)
	atr := indicators.ATR(candles, 14)
	atrSMA := indicators.SMA(atr, 20)
	adx := indicators.ADX(candles, 14)
	donchian := indicators.Donchian(candles, 20)

	n := len(candles)
	m := domain.CoinMetrics{
		Symbol:           symbol,
		Price:            price,
		Volume24hUSD:     last.Volume * last.Close,
		MarketCapUSD:     gecko.MarketCapUSD,
		DaysListed:       gecko.DaysListed,
		Price7dAgo:       gecko.Price7dAgo,
		Price30dAgo:      gecko.Price30dAgo,
		Volume7dAvg:      gecko.Volume7dAvg,
		Volume30dAvg:     gecko.Volume30dAvg,
		IsStablecoin:     gecko.IsStablecoin || providers.Stablecoins[symbol],
		ATR14:            atr[n-1],
		ATRSMA20:         atrSMA[n-1],
		ADX14:            adx.ADX[n-1],
		PlusDI:           adx.PlusDI[n-1],
		MinusDI:          adx.MinusDI[n-1],
		EMA20:            ema20[n-1],
		EMA50:            ema50[n-1],
		EMA200:           ema200[n-1],
		DonchianUpper20:  donchian.Upper,
		DonchianLower20:  donchian.Lower,
		DonchianPosition: donchian.Position,
	}

	spread, err := a.spreadPct(ctx, symbol, price)
	if err == nil {
		m.SpreadPct = spread
	}

	funding, oi := a.crossExchange(ctx, symbol)
	m.FundingRate = funding
	m.OpenInterestUSD = oi
	// No historical open-interest store exists yet (DESIGN.md open
	// question); seed oi_trend's comparison point at the current reading
	// so a fresh symbol scores neutral instead of spuriously "rising".
	m.OI7dAgo = oi

	return m, nil
}

func (a *Aggregator) spreadPct(ctx context.Context, symbol string, mid float64) (float64, error) {
	book, err := a.venue.GetL2Snapshot(ctx, symbol)
	if err != nil || len(book.Bids) == 0 || len(book.Asks) == 0 || mid == 0 {
		return 0, err
	}
	bestBid, bestAsk := book.Bids[0].Price, book.Asks[0].Price
	if bestAsk <= bestBid {
		return 0, nil
	}
	return (bestAsk - bestBid) / mid * 100, nil
}

// crossExchange fans out to every configured secondary ticker and averages
// the funding rate and open-interest readings that came back, collecting
// per-provider failures into a multierror without letting one exchange's
// outage blank the whole reading.
func (a *Aggregator) crossExchange(ctx context.Context, symbol string) (avgFunding, avgOI float64) {
	if len(a.secondary) == 0 {
		return 0, 0
	}

	type reading struct {
		snap providers.Snapshot
		err  error
	}
	readings := make([]reading, len(a.secondary))
	g, gctx := errgroup.WithContext(ctx)
	for i, p := range a.secondary {
		i, p := i, p
		g.Go(func() error {
			snap, err := p.Fetch(gctx, symbol)
			readings[i] = reading{snap: snap, err: err}
			return nil
		})
	}
	_ = g.Wait()

	var errs *multierror.Error
	var fundingSum, oiSum float64
	var fundingN, oiN int
	for _, r := range readings {
		if r.err != nil {
			errs = multierror.Append(errs, r.err)
			continue
		}
		if r.snap.HasFundingRate {
			fundingSum += r.snap.FundingRate
			fundingN++
		}
		if r.snap.HasOpenInterest {
			oiSum += r.snap.OpenInterestUSD
			oiN++
		}
	}
	if errs.ErrorOrNil() != nil {
		a.log.Debug("marketdata: some secondary providers failed", "symbol", symbol, "errors", errs.Error())
	}
	if fundingN > 0 {
		avgFunding = fundingSum / float64(fundingN)
	}
	if oiN > 0 {
		avgOI = oiSum / float64(oiN)
	}
	return avgFunding, avgOI
}

// OpenInterest satisfies indicators.OIFundingSource, exposing the same
// cross-exchange reading FetchMetrics uses so the indicator-analysis path
// (internal/indicators.Analyze) can source real values instead of its
// neutral placeholder.
func (a *Aggregator) OpenInterest(ctx context.Context, symbol string) (latest, average float64, err error) {
	_, oi := a.crossExchange(ctx, symbol)
	return oi, oi, nil
}

// FundingRate satisfies indicators.OIFundingSource.
func (a *Aggregator) FundingRate(ctx context.Context, symbol string) (float64, error) {
	funding, _ := a.crossExchange(ctx, symbol)
	return funding, nil
}

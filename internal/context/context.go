// Package context bundles the auxiliary, best-effort market context
// (news, sentiment, forecast, whale activity) gathered each cycle for the
// union of managed and scouted symbols. Every source isolates its own
// failures: a producer that errors out returns a placeholder Part rather
// than propagating the error, so one bad API never aborts FetchContext.
package context

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lancilotto/hl-agent/internal/logging"
	"github.com/lancilotto/hl-agent/internal/venue"
)

// Part is one source's contribution: a short text block meant to be
// embedded in the LLM prompt, plus an optional structured payload for
// callers that want the raw data instead of prose.
type Part struct {
	Source  string
	Text    string
	Payload interface{}
}

// Placeholder builds the degraded-mode Part a failed source falls back to.
func Placeholder(source string) Part {
	return Part{Source: source, Text: fmt.Sprintf("%s: unavailable this cycle", source)}
}

// Snapshot bundles every source's output for one symbol. Indicators is
// filled in by the orchestrator after FetchContext returns (it needs the
// daily/15m candle sets FetchContext doesn't carry), so it starts empty.
type Snapshot struct {
	Symbol     string
	Generated  time.Time
	News       Part
	Sentiment  Part
	Forecast   Part
	Whale      Part
	Indicators Part
}

// Render flattens the snapshot into the markdown block persisted as
// BotOperation.ContextSnapshot and embedded in the decision prompt.
func (s Snapshot) Render() string {
	sb := fmt.Sprintf(
		"## News\n%s\n\n## Sentiment\n%s\n\n## Forecast\n%s\n\n## Whale Activity\n%s\n",
		s.News.Text, s.Sentiment.Text, s.Forecast.Text, s.Whale.Text,
	)
	if s.Indicators.Text != "" {
		sb += fmt.Sprintf("\n## Indicators\n%s\n", s.Indicators.Text)
	}
	return sb
}

// NewsProducer fetches symbol-specific news.
type NewsProducer interface {
	Fetch(ctx context.Context, symbol string) Part
}

// SentimentProducer fetches market-wide sentiment, shared across symbols.
type SentimentProducer interface {
	Fetch(ctx context.Context) Part
}

// ForecastProducer projects a short-horizon price forecast from recent
// candles.
type ForecastProducer interface {
	Fetch(ctx context.Context, symbol string, candles []venue.Candle) Part
}

// WhaleProducer fetches large on-chain/exchange transfers relevant to the
// requested symbols, shared across symbols.
type WhaleProducer interface {
	Fetch(ctx context.Context, symbols []string) Part
}

// Aggregator concurrently gathers all four sources for a set of symbols.
type Aggregator struct {
	News      NewsProducer
	Sentiment SentimentProducer
	Forecast  ForecastProducer
	Whale     WhaleProducer
	log       *logging.Logger
}

// New constructs an Aggregator from its four producers. Any of them may be
// nil, in which case that source always resolves to its placeholder.
func New(news NewsProducer, sentiment SentimentProducer, forecast ForecastProducer, whale WhaleProducer, log *logging.Logger) *Aggregator {
	return &Aggregator{News: news, Sentiment: sentiment, Forecast: forecast, Whale: whale, log: log}
}

// candleSource supplies recent candles per symbol for the forecast producer.
type candleSource func(symbol string) []venue.Candle

// FetchContext gathers a Snapshot per symbol in the union set. Sentiment and
// whale activity are market-wide and fetched once; news and forecast are
// fetched per symbol. All fetches run concurrently; a panic or slow source
// never blocks the others beyond its own best-effort timeout, which each
// producer is responsible for enforcing internally.
func (a *Aggregator) FetchContext(ctx context.Context, symbols []string, candles candleSource) map[string]Snapshot {
	now := time.Now()
	result := make(map[string]Snapshot, len(symbols))
	var mu sync.Mutex
	var wg sync.WaitGroup

	sentiment := Placeholder("sentiment")
	if a.Sentiment != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sentiment = a.safeSentiment(ctx)
		}()
	}

	whale := Placeholder("whale")
	if a.Whale != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			whale = a.safeWhale(ctx, symbols)
		}()
	}

	for _, sym := range symbols {
		mu.Lock()
		result[sym] = Snapshot{Symbol: sym, Generated: now}
		mu.Unlock()
	}

	for _, sym := range symbols {
		sym := sym
		wg.Add(1)
		go func() {
			defer wg.Done()
			news := Placeholder("news")
			if a.News != nil {
				news = a.safeNews(ctx, sym)
			}
			forecast := Placeholder("forecast")
			if a.Forecast != nil {
				var c []venue.Candle
				if candles != nil {
					c = candles(sym)
				}
				forecast = a.safeForecast(ctx, sym, c)
			}
			mu.Lock()
			snap := result[sym]
			snap.News = news
			snap.Forecast = forecast
			result[sym] = snap
			mu.Unlock()
		}()
	}

	wg.Wait()

	mu.Lock()
	for sym, snap := range result {
		snap.Sentiment = sentiment
		snap.Whale = whale
		result[sym] = snap
	}
	mu.Unlock()

	return result
}

func (a *Aggregator) safeNews(ctx context.Context, symbol string) (part Part) {
	defer a.recover("news", &part)
	return a.News.Fetch(ctx, symbol)
}

func (a *Aggregator) safeSentiment(ctx context.Context) (part Part) {
	defer a.recover("sentiment", &part)
	return a.Sentiment.Fetch(ctx)
}

func (a *Aggregator) safeForecast(ctx context.Context, symbol string, candles []venue.Candle) (part Part) {
	defer a.recover("forecast", &part)
	return a.Forecast.Fetch(ctx, symbol, candles)
}

func (a *Aggregator) safeWhale(ctx context.Context, symbols []string) (part Part) {
	defer a.recover("whale", &part)
	return a.Whale.Fetch(ctx, symbols)
}

func (a *Aggregator) recover(source string, part *Part) {
	if r := recover(); r != nil {
		if a.log != nil {
			a.log.WithField("panic", r).Error(fmt.Sprintf("%s producer panicked", source))
		}
		*part = Placeholder(source)
	}
}

// Package screener implements universe selection: hard filters, the
// 11-factor weighted score, the weekly full-rebalance / daily re-score
// split, and scouting-batch rotation (spec §4.4). It holds its own
// sync.RWMutex-guarded result cache, backed by Redis for survival across
// restarts, the way the teacher's ticker screener held a mutex-guarded
// results slice.
package screener

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lancilotto/hl-agent/internal/cache"
	"github.com/lancilotto/hl-agent/internal/config"
	"github.com/lancilotto/hl-agent/internal/domain"
	"github.com/lancilotto/hl-agent/internal/logging"
)

const (
	cacheKeyLastScreening = "screener:last_screening"
	cacheTTL              = 24 * time.Hour
)

// MetricsProvider fetches the metrics screening needs. It is satisfied by
// the C3 Aggregator; the screener never talks to a venue or an HTTP
// provider directly.
type MetricsProvider interface {
	FetchUniverse(ctx context.Context) ([]string, error)
	FetchMetrics(ctx context.Context, symbols []string) ([]domain.CoinMetrics, error)
}

// Screener owns the current selection and the rotation cursor used for
// scouting batches.
type Screener struct {
	provider MetricsProvider
	cache    *cache.Service
	scorer   *Scorer
	filters  FilterConfig
	cfg      config.ScreenerConfig
	log      *logging.Logger

	mu          sync.RWMutex
	last        domain.ScreeningResult
	rotationIdx int
}

// New constructs a Screener. weights is validated eagerly so a
// misconfigured weight table fails at startup, not mid-cycle.
func New(provider MetricsProvider, cacheSvc *cache.Service, weights domain.ScoringWeights, cfg config.ScreenerConfig) (*Screener, error) {
	scorer, err := NewScorer(weights)
	if err != nil {
		return nil, fmt.Errorf("screener: %w", err)
	}
	return &Screener{
		provider: provider,
		cache:    cacheSvc,
		scorer:   scorer,
		filters:  DefaultFilterConfig(),
		cfg:      cfg,
		log:      logging.WithComponent("screener"),
	}, nil
}

// nextRebalance returns the next Sunday 00:00 UTC strictly after now (spec
// §4.4: "if today is Sunday, the following Sunday").
func nextRebalance(now time.Time) time.Time {
	now = now.UTC()
	daysUntilSunday := (7 - int(now.Weekday())) % 7
	if daysUntilSunday == 0 {
		daysUntilSunday = 7
	}
	next := now.AddDate(0, 0, daysUntilSunday)
	return time.Date(next.Year(), next.Month(), next.Day(), 0, 0, 0, 0, time.UTC)
}

// ShouldRebalance reports whether the current instant is at or past the
// last result's next_rebalance (or no result has ever been produced).
func (sc *Screener) ShouldRebalance() bool {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	if sc.last.SelectedCoins == nil && sc.last.ScreeningTimestamp.IsZero() {
		return true
	}
	return time.Now().UTC().After(sc.last.NextRebalance) || time.Now().UTC().Equal(sc.last.NextRebalance)
}

// RunFullRebalance re-runs filters and scoring across the full venue
// universe. On any provider failure it falls back to the last cached
// result, then to the configured static ticker list (spec §4.4).
func (sc *Screener) RunFullRebalance(ctx context.Context) domain.ScreeningResult {
	symbols, err := sc.provider.FetchUniverse(ctx)
	if err != nil || len(symbols) == 0 {
		sc.log.Warn("universe fetch failed, falling back", "error", err)
		return sc.fallback(ctx, domain.ScreeningFullRebalance)
	}

	metrics, err := sc.provider.FetchMetrics(ctx, symbols)
	if err != nil || len(metrics) == 0 {
		sc.log.Warn("metrics fetch failed, falling back", "error", err)
		return sc.fallback(ctx, domain.ScreeningFullRebalance)
	}

	passing, excluded := Apply(sc.filters, metrics)
	if len(passing) == 0 {
		sc.log.Warn("no coins passed hard filters")
		result := domain.ScreeningResult{
			ExcludedCoins:      excluded,
			ScreeningTimestamp: time.Now().UTC(),
			NextRebalance:      nextRebalance(time.Now().UTC()),
			ScreeningType:      domain.ScreeningFullRebalance,
		}
		sc.store(ctx, result)
		return result
	}

	btc := findBTC(metrics)
	scored := sc.scorer.ScoreCoins(passing, btc)
	if sc.cfg.TopNCoins > 0 && len(scored) > sc.cfg.TopNCoins {
		scored = scored[:sc.cfg.TopNCoins]
	}

	result := domain.ScreeningResult{
		SelectedCoins:      scored,
		ExcludedCoins:      excluded,
		ScreeningTimestamp: time.Now().UTC(),
		NextRebalance:      nextRebalance(time.Now().UTC()),
		ScreeningType:      domain.ScreeningFullRebalance,
	}
	sc.store(ctx, result)
	sc.log.Info("full rebalance complete", "selected", len(scored), "excluded", len(excluded))
	return result
}

// RunDailyUpdate re-scores the currently selected coins without
// re-applying hard filters or touching the wider universe (spec §4.4).
func (sc *Screener) RunDailyUpdate(ctx context.Context) domain.ScreeningResult {
	sc.mu.RLock()
	prior := sc.last
	sc.mu.RUnlock()

	if len(prior.SelectedCoins) == 0 {
		sc.log.Info("no prior selection, running full rebalance instead of daily update")
		return sc.RunFullRebalance(ctx)
	}

	symbols := make([]string, len(prior.SelectedCoins))
	for i, c := range prior.SelectedCoins {
		symbols[i] = c.Symbol
	}

	metrics, err := sc.provider.FetchMetrics(ctx, symbols)
	if err != nil || len(metrics) == 0 {
		sc.log.Warn("daily update metrics fetch failed, keeping prior selection", "error", err)
		return prior
	}

	btc := findBTC(metrics)
	scored := sc.scorer.ScoreCoins(metrics, btc)

	result := domain.ScreeningResult{
		SelectedCoins:      scored,
		ExcludedCoins:      prior.ExcludedCoins,
		ScreeningTimestamp: time.Now().UTC(),
		NextRebalance:      prior.NextRebalance,
		ScreeningType:      domain.ScreeningDailyUpdate,
	}
	sc.store(ctx, result)
	return result
}

// fallback loads the last cached result, then the static ticker list, in
// that order, constructing a minimal ScreeningResult from whichever
// succeeds first.
func (sc *Screener) fallback(ctx context.Context, screeningType domain.ScreeningType) domain.ScreeningResult {
	if cached, ok := sc.loadCached(ctx); ok {
		sc.log.Info("using cached screening result after provider failure")
		sc.mu.Lock()
		sc.last = cached
		sc.mu.Unlock()
		return cached
	}

	symbols := sc.staticTickerList()
	now := time.Now().UTC()
	selected := make([]domain.CoinScore, len(symbols))
	for i, sym := range symbols {
		selected[i] = domain.CoinScore{Symbol: sym, Rank: i + 1, LastUpdated: now}
	}
	result := domain.ScreeningResult{
		SelectedCoins:      selected,
		ScreeningTimestamp: now,
		NextRebalance:      nextRebalance(now),
		ScreeningType:      screeningType,
	}
	sc.log.Warn("no cache available, falling back to static ticker list", "count", len(symbols))
	sc.store(ctx, result)
	return result
}

// staticTickerList returns cfg.FallbackTickers, or cfg.Tickers if the
// dedicated fallback list is empty.
func (sc *Screener) staticTickerList() []string {
	if len(sc.cfg.FallbackTickers) > 0 {
		return sc.cfg.FallbackTickers
	}
	return sc.cfg.Tickers
}

// LoadFallbackTickersFile reads a YAML list of tickers from path. Nothing in
// the tree calls it; FallbackTickers comes from env or the built-in default.
func LoadFallbackTickersFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("screener: read fallback tickers: %w", err)
	}
	var tickers []string
	if err := yaml.Unmarshal(data, &tickers); err != nil {
		return nil, fmt.Errorf("screener: parse fallback tickers: %w", err)
	}
	return tickers, nil
}

func findBTC(metrics []domain.CoinMetrics) *domain.CoinMetrics {
	for i := range metrics {
		if metrics[i].Symbol == "BTC" {
			return &metrics[i]
		}
	}
	return nil
}

func (sc *Screener) store(ctx context.Context, result domain.ScreeningResult) {
	sc.mu.Lock()
	sc.last = result
	sc.rotationIdx = 0
	sc.mu.Unlock()

	if sc.cache == nil {
		return
	}
	if err := sc.cache.SetJSON(ctx, cacheKeyLastScreening, result, cacheTTL); err != nil {
		sc.log.Warn("failed to persist screening result to cache", "error", err)
	}
}

func (sc *Screener) loadCached(ctx context.Context) (domain.ScreeningResult, bool) {
	if sc.cache == nil {
		return domain.ScreeningResult{}, false
	}
	var result domain.ScreeningResult
	if err := sc.cache.GetJSON(ctx, cacheKeyLastScreening, &result); err != nil {
		return domain.ScreeningResult{}, false
	}
	return result, len(result.SelectedCoins) > 0
}

// GetSelected returns a copy of the current selection, in rank order.
func (sc *Screener) GetSelected() []domain.CoinScore {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	out := make([]domain.CoinScore, len(sc.last.SelectedCoins))
	copy(out, sc.last.SelectedCoins)
	return out
}

// NextScoutingBatch returns up to batchSize candidates from the current
// selection, excluding held symbols, advancing the rotation cursor with
// modular wrap-around (spec §4.4 "Rotation"). Calling it repeatedly
// eventually cycles through the whole selection.
func (sc *Screener) NextScoutingBatch(batchSize int, held map[string]bool) []domain.CoinScore {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	var candidates []domain.CoinScore
	for _, c := range sc.last.SelectedCoins {
		if !held[c.Symbol] {
			candidates = append(candidates, c)
		}
	}
	n := len(candidates)
	if n == 0 || batchSize <= 0 {
		return nil
	}
	if batchSize > n {
		batchSize = n
	}

	batch := make([]domain.CoinScore, 0, batchSize)
	idx := sc.rotationIdx % n
	for i := 0; i < batchSize; i++ {
		batch = append(batch, candidates[(idx+i)%n])
	}
	sc.rotationIdx = (idx + batchSize) % n
	return batch
}

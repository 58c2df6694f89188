package screener

import "github.com/lancilotto/hl-agent/internal/domain"

// FilterConfig holds the hard-filter thresholds from spec §4.4.
type FilterConfig struct {
	MinVolume24hUSD   float64
	MinMarketCapUSD   float64
	MinDaysListed     int
	MinOpenInterestUSD float64
	MaxSpreadPct      float64
}

// DefaultFilterConfig returns the hard-filter defaults.
func DefaultFilterConfig() FilterConfig {
	return FilterConfig{
		MinVolume24hUSD:    50_000_000,
		MinMarketCapUSD:    250_000_000,
		MinDaysListed:      30,
		MinOpenInterestUSD: 10_000_000,
		MaxSpreadPct:       0.5,
	}
}

// knownStablecoins mirrors the static exclusion list data providers in the
// pack carry alongside market-cap lookups.
var knownStablecoins = map[string]bool{
	"USDT": true, "USDC": true, "DAI": true, "BUSD": true, "TUSD": true,
	"USDD": true, "FRAX": true, "USDP": true, "GUSD": true, "LUSD": true,
	"SUSD": true,
}

// IsStablecoin reports whether symbol is a known stablecoin.
func IsStablecoin(symbol string) bool {
	return knownStablecoins[symbol]
}

// Apply partitions metrics into coins that pass every hard filter and the
// symbols of those that were excluded (spec §4.4: "a coin is excluded if
// any fails").
func Apply(cfg FilterConfig, metrics []domain.CoinMetrics) (passing []domain.CoinMetrics, excluded []string) {
	for _, m := range metrics {
		if passes(cfg, m) {
			passing = append(passing, m)
		} else {
			excluded = append(excluded, m.Symbol)
		}
	}
	return passing, excluded
}

func passes(cfg FilterConfig, m domain.CoinMetrics) bool {
	if m.IsStablecoin || IsStablecoin(m.Symbol) {
		return false
	}
	if m.Volume24hUSD < cfg.MinVolume24hUSD {
		return false
	}
	if m.MarketCapUSD < cfg.MinMarketCapUSD {
		return false
	}
	if m.DaysListed < cfg.MinDaysListed {
		return false
	}
	if m.OpenInterestUSD < cfg.MinOpenInterestUSD {
		return false
	}
	if m.SpreadPct > cfg.MaxSpreadPct {
		return false
	}
	return true
}

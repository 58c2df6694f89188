package screener

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lancilotto/hl-agent/internal/domain"
)

func goodMetrics(symbol string) domain.CoinMetrics {
	return domain.CoinMetrics{
		Symbol:          symbol,
		Volume24hUSD:    100_000_000,
		MarketCapUSD:    500_000_000,
		DaysListed:      200,
		OpenInterestUSD: 20_000_000,
		SpreadPct:       0.1,
	}
}

func TestApply_PassesWhenAllFiltersMet(t *testing.T) {
	cfg := DefaultFilterConfig()
	passing, excluded := Apply(cfg, []domain.CoinMetrics{goodMetrics("ETH")})
	assert.Len(t, passing, 1)
	assert.Empty(t, excluded)
}

func TestApply_ExcludesOnAnySingleFailure(t *testing.T) {
	cfg := DefaultFilterConfig()
	cases := []domain.CoinMetrics{
		withField(goodMetrics("LOWVOL"), func(m *domain.CoinMetrics) { m.Volume24hUSD = 1_000_000 }),
		withField(goodMetrics("LOWCAP"), func(m *domain.CoinMetrics) { m.MarketCapUSD = 1_000_000 }),
		withField(goodMetrics("NEW"), func(m *domain.CoinMetrics) { m.DaysListed = 5 }),
		withField(goodMetrics("LOWOI"), func(m *domain.CoinMetrics) { m.OpenInterestUSD = 1_000_000 }),
		withField(goodMetrics("WIDESPREAD"), func(m *domain.CoinMetrics) { m.SpreadPct = 2.0 }),
	}
	passing, excluded := Apply(cfg, cases)
	assert.Empty(t, passing)
	assert.Len(t, excluded, len(cases))
}

func TestApply_ExcludesKnownStablecoins(t *testing.T) {
	cfg := DefaultFilterConfig()
	passing, excluded := Apply(cfg, []domain.CoinMetrics{goodMetrics("USDT")})
	assert.Empty(t, passing)
	assert.Equal(t, []string{"USDT"}, excluded)
}

func withField(m domain.CoinMetrics, mutate func(*domain.CoinMetrics)) domain.CoinMetrics {
	mutate(&m)
	return m
}

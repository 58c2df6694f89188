package screener

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lancilotto/hl-agent/internal/domain"
)

func TestNewScorer_RejectsInvalidWeights(t *testing.T) {
	bad := domain.ScoringWeights{Momentum7d: 0.5}
	_, err := NewScorer(bad)
	assert.ErrorIs(t, err, domain.ErrScoringWeightsSum)
}

func TestScoreCoins_RanksDescendingWithStableSymbolTieBreak(t *testing.T) {
	scorer, err := NewScorer(domain.DefaultScoringWeights())
	require.NoError(t, err)

	metrics := []domain.CoinMetrics{
		{Symbol: "AAA", Price: 100, Price7dAgo: 100, Price30dAgo: 100},
		{Symbol: "BBB", Price: 100, Price7dAgo: 100, Price30dAgo: 100},
		{Symbol: "ZZZ", Price: 200, Price7dAgo: 100, Price30dAgo: 100, ADX14: 50, EMA20: 10, EMA50: 9, EMA200: 8},
	}
	scored := scorer.ScoreCoins(metrics, nil)

	require.Len(t, scored, 3)
	assert.Equal(t, "ZZZ", scored[0].Symbol)
	assert.Equal(t, 1, scored[0].Rank)
	// AAA and BBB are identical inputs: tie broken by symbol, ranks dense.
	assert.Equal(t, "AAA", scored[1].Symbol)
	assert.Equal(t, "BBB", scored[2].Symbol)
	assert.Equal(t, 2, scored[1].Rank)
	assert.Equal(t, 3, scored[2].Rank)
}

func TestAdxStrength_Stepwise(t *testing.T) {
	assert.Equal(t, 0.3, adxStrength(10))
	assert.Equal(t, 0.5, adxStrength(22))
	assert.Equal(t, 0.8, adxStrength(30))
	assert.Equal(t, 1.0, adxStrength(45))
}

func TestDonchianPosition_Stepwise(t *testing.T) {
	assert.Equal(t, 1.0, donchianPosition(0.9))
	assert.Equal(t, 0.7, donchianPosition(0.7))
	assert.Equal(t, 0.3, donchianPosition(0.5))
	assert.Equal(t, 0.5, donchianPosition(0.1))
}

func TestEMAAlignment_CapsAtOne(t *testing.T) {
	score := emaAlignment(110, 100, 90, 80)
	assert.Equal(t, 1.0, score)
}

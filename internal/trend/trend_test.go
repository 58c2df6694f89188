package trend

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lancilotto/hl-agent/internal/config"
)

func TestCalculateAlignment_AllThreeAgree_Excellent(t *testing.T) {
	e := New(config.TrendConfig{MinConfidence: 0.6, ADXThreshold: 25, RSIOverbought: 70, RSIOversold: 30})
	direction, quality, confidence := e.calculateAlignment(StrongBullish, Bullish, Bullish)
	assert.Equal(t, StrongBullish, direction)
	assert.Equal(t, Excellent, quality)
	assert.Equal(t, 0.95, confidence)
}

func TestCalculateAlignment_TwoAgreeDailyHourlyAligned_Good(t *testing.T) {
	e := New(config.TrendConfig{})
	direction, quality, confidence := e.calculateAlignment(Bullish, Bullish, Neutral)
	assert.Equal(t, Bullish, direction)
	assert.Equal(t, Good, quality)
	assert.Equal(t, 0.80, confidence)
}

func TestCalculateAlignment_TwoAgreeDailyHourlyConflict_Moderate(t *testing.T) {
	e := New(config.TrendConfig{})
	direction, quality, confidence := e.calculateAlignment(Bearish, Bullish, Bullish)
	assert.Equal(t, Bullish, direction)
	assert.Equal(t, Moderate, quality)
	assert.Equal(t, 0.65, confidence)
}

func TestCalculateAlignment_NoMajority_Poor(t *testing.T) {
	e := New(config.TrendConfig{})
	direction, quality, confidence := e.calculateAlignment(Bullish, Bearish, Neutral)
	assert.Equal(t, Neutral, direction)
	assert.Equal(t, Poor, quality)
	assert.Equal(t, 0.40, confidence)
}

func TestShouldTrade_PoorQualityNeverTrades(t *testing.T) {
	e := New(config.TrendConfig{MinConfidence: 0.6})
	assert.False(t, e.shouldTrade(Poor, 0.95, false))
}

func TestShouldTrade_BelowMinConfidenceBlocked(t *testing.T) {
	e := New(config.TrendConfig{MinConfidence: 0.7})
	assert.False(t, e.shouldTrade(Good, 0.65, false))
}

func TestShouldTrade_RSIExtremeBlocksUnlessExcellent(t *testing.T) {
	e := New(config.TrendConfig{MinConfidence: 0.6})
	assert.False(t, e.shouldTrade(Good, 0.80, true))
	assert.True(t, e.shouldTrade(Excellent, 0.95, true))
}

func TestAssessEntryQuality(t *testing.T) {
	assert.Equal(t, EntryOptimal, assessEntryQuality(Bullish, true, Bullish))
	assert.Equal(t, EntryAcceptable, assessEntryQuality(Bullish, false, Bullish))
	assert.Equal(t, EntryWait, assessEntryQuality(Bearish, true, Bullish))
}

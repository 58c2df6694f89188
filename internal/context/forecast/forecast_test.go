package forecast

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lancilotto/hl-agent/internal/venue"
)

func candlesWithTrend(n int, start, step float64) []venue.Candle {
	out := make([]venue.Candle, n)
	for i := 0; i < n; i++ {
		out[i] = venue.Candle{Close: start + float64(i)*step}
	}
	return out
}

func TestFetch_TooFewCandlesReturnsPlaceholder(t *testing.T) {
	p := New(nil)
	part := p.Fetch(context.Background(), "BTC", candlesWithTrend(5, 100, 1))
	assert.Equal(t, "forecast", part.Source)
	assert.Nil(t, part.Payload)
}

func TestFetch_UptrendProjectsUp(t *testing.T) {
	p := New(nil)
	part := p.Fetch(context.Background(), "BTC", candlesWithTrend(30, 100, 2))
	proj, ok := part.Payload.(Projection)
	assert.True(t, ok)
	assert.Equal(t, "up", proj.Direction)
	assert.InDelta(t, 1.0, proj.Confidence, 0.01)
}

func TestFetch_FlatSeriesStaysFlat(t *testing.T) {
	p := New(nil)
	part := p.Fetch(context.Background(), "BTC", candlesWithTrend(30, 100, 0))
	proj := part.Payload.(Projection)
	assert.Equal(t, "flat", proj.Direction)
}

func TestLinearRegression_PerfectFitHasR2One(t *testing.T) {
	closes := []float64{1, 2, 3, 4, 5}
	slope, intercept, r2 := linearRegression(closes)
	assert.InDelta(t, 1.0, slope, 1e-9)
	assert.InDelta(t, 1.0, intercept, 1e-9)
	assert.InDelta(t, 1.0, r2, 1e-9)
}

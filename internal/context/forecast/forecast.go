// Package forecast projects a short-horizon price trend from recent
// candles using ordinary least squares, not model training. Retraining a
// forecasting model inside the trading loop is explicitly out of scope;
// this is a best-effort statistical read, not a replacement for one.
package forecast

import (
	"context"
	"fmt"

	agentctx "github.com/lancilotto/hl-agent/internal/context"
	"github.com/lancilotto/hl-agent/internal/logging"
	"github.com/lancilotto/hl-agent/internal/venue"
)

// Projection is the structured payload alongside the rendered text.
type Projection struct {
	Symbol        string
	Horizon       int
	ProjectedPcts []float64 // projected % change from the last close, one per step
	Direction     string    // "up", "down", "flat"
	Confidence    float64   // R^2 of the fit, 0-1
}

// Producer fits a linear trend to recent closes and extrapolates it.
type Producer struct {
	horizon  int
	minBars  int
	flatBand float64 // percent change below which the trend is "flat"
	log      *logging.Logger
}

// New builds a Producer projecting 4 steps ahead from at least 20 candles.
func New(log *logging.Logger) *Producer {
	return &Producer{horizon: 4, minBars: 20, flatBand: 0.5, log: log}
}

// Fetch implements context.ForecastProducer.
func (p *Producer) Fetch(ctx context.Context, symbol string, candles []venue.Candle) agentctx.Part {
	if len(candles) < p.minBars {
		return agentctx.Placeholder("forecast")
	}

	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}

	slope, intercept, r2 := linearRegression(closes)
	last := closes[len(closes)-1]
	n := float64(len(closes) - 1)

	pcts := make([]float64, p.horizon)
	for step := 1; step <= p.horizon; step++ {
		projected := slope*(n+float64(step)) + intercept
		pcts[step-1] = (projected - last) / last * 100
	}

	finalPct := pcts[len(pcts)-1]
	direction := "flat"
	if finalPct > p.flatBand {
		direction = "up"
	} else if finalPct < -p.flatBand {
		direction = "down"
	}

	proj := Projection{Symbol: symbol, Horizon: p.horizon, ProjectedPcts: pcts, Direction: direction, Confidence: r2}
	text := fmt.Sprintf("linear trend projection over next %d bars: %s (%.2f%% change, fit R^2=%.2f)",
		p.horizon, direction, finalPct, r2)

	return agentctx.Part{Source: "forecast", Text: text, Payload: proj}
}

// linearRegression fits y = slope*x + intercept over x = 0..len(y)-1 and
// returns the coefficient of determination alongside the fit.
func linearRegression(y []float64) (slope, intercept, r2 float64) {
	n := float64(len(y))
	var sumX, sumY, sumXY, sumX2 float64
	for i, v := range y {
		x := float64(i)
		sumX += x
		sumY += v
		sumXY += x * v
		sumX2 += x * x
	}

	denom := n*sumX2 - sumX*sumX
	if denom == 0 {
		return 0, sumY / n, 0
	}
	slope = (n*sumXY - sumX*sumY) / denom
	intercept = (sumY - slope*sumX) / n

	meanY := sumY / n
	var ssTot, ssRes float64
	for i, v := range y {
		x := float64(i)
		fit := slope*x + intercept
		ssRes += (v - fit) * (v - fit)
		ssTot += (v - meanY) * (v - meanY)
	}
	if ssTot == 0 {
		return slope, intercept, 0
	}
	r2 = 1 - ssRes/ssTot
	if r2 < 0 {
		r2 = 0
	}
	return slope, intercept, r2
}

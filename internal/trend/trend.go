// Package trend implements the multi-timeframe top-down trend confirmation
// check from spec §4.5: daily direction from ADX/DI, hourly direction from
// EMA alignment, 15m timing from MACD, combined into an overall
// direction/quality/confidence/should_trade/entry_quality verdict.
package trend

import (
	"github.com/lancilotto/hl-agent/internal/config"
	"github.com/lancilotto/hl-agent/internal/indicators"
	"github.com/lancilotto/hl-agent/internal/venue"
)

// Direction is the 5-way trend classification applied per timeframe and
// overall.
type Direction string

const (
	StrongBullish Direction = "strong_bullish"
	Bullish       Direction = "bullish"
	Neutral       Direction = "neutral"
	Bearish       Direction = "bearish"
	StrongBearish Direction = "strong_bearish"
)

func isBullish(d Direction) bool { return d == Bullish || d == StrongBullish }
func isBearish(d Direction) bool { return d == Bearish || d == StrongBearish }

// Quality is the overall cross-timeframe agreement level.
type Quality string

const (
	Excellent Quality = "excellent"
	Good      Quality = "good"
	Moderate  Quality = "moderate"
	Poor      Quality = "poor"
)

// EntryQuality flags whether the 15m timeframe offers a well-timed entry.
type EntryQuality string

const (
	EntryOptimal    EntryQuality = "optimal"
	EntryAcceptable EntryQuality = "acceptable"
	EntryWait       EntryQuality = "wait"
)

// Confirmation is the full verdict for one symbol.
type Confirmation struct {
	Symbol     string
	Direction  Direction
	Quality    Quality
	Confidence float64

	DailyDirection  Direction
	HourlyDirection Direction
	M15Direction    Direction

	DailyADX    float64
	HourlyRSI   float64
	RSIExtreme  bool
	M15NearEMA  bool
	M15MACDDir  Direction

	ShouldTrade          bool
	RecommendedDirection string // "long", "short", or ""
	EntryQuality         EntryQuality
}

// Engine evaluates Confirm from precomputed candle series per timeframe.
type Engine struct {
	cfg config.TrendConfig
}

// New constructs an Engine with the configured thresholds.
func New(cfg config.TrendConfig) *Engine {
	return &Engine{cfg: cfg}
}

// Confirm runs the three-timeframe analysis for symbol given its daily,
// hourly, and 15-minute candle history (oldest first, most recent last).
func (e *Engine) Confirm(symbol string, daily, hourly, m15 []venue.Candle) Confirmation {
	dailyDir, dailyADX := e.analyzeDaily(daily)
	hourlyDir, hourlyRSI, rsiExtreme := e.analyzeHourly(hourly)
	m15Dir, nearEMA := e.analyze15m(m15)

	direction, quality, confidence := e.calculateAlignment(dailyDir, hourlyDir, m15Dir)
	shouldTrade := e.shouldTrade(quality, confidence, rsiExtreme)
	entryQuality := assessEntryQuality(m15Dir, nearEMA, direction)

	recommended := ""
	if isBullish(direction) {
		recommended = "long"
	} else if isBearish(direction) {
		recommended = "short"
	}

	return Confirmation{
		Symbol:               symbol,
		Direction:            direction,
		Quality:              quality,
		Confidence:           confidence,
		DailyDirection:       dailyDir,
		HourlyDirection:      hourlyDir,
		M15Direction:         m15Dir,
		DailyADX:             dailyADX,
		HourlyRSI:            hourlyRSI,
		RSIExtreme:           rsiExtreme,
		M15NearEMA:           nearEMA,
		M15MACDDir:           m15Dir,
		ShouldTrade:          shouldTrade,
		RecommendedDirection: recommended,
		EntryQuality:         entryQuality,
	}
}

// analyzeDaily classifies the daily timeframe from ADX magnitude and +DI/-DI
// sign (spec §4.5: ">40 strong, 25-40 medium, <25 neutral").
func (e *Engine) analyzeDaily(candles []venue.Candle) (Direction, float64) {
	if len(candles) < 15 {
		return Neutral, 0
	}
	adx := indicators.ADX(candles, 14)
	n := len(candles)
	lastADX := adx.ADX[n-1]
	plusDI := adx.PlusDI[n-1]
	minusDI := adx.MinusDI[n-1]

	if lastADX <= e.cfg.ADXThreshold {
		return Neutral, lastADX
	}
	if plusDI > minusDI {
		if lastADX > 40 {
			return StrongBullish, lastADX
		}
		return Bullish, lastADX
	}
	if lastADX > 40 {
		return StrongBearish, lastADX
	}
	return Bearish, lastADX
}

// analyzeHourly classifies direction from price/EMA20/EMA50 alignment and
// flags RSI overbought/oversold extremes.
func (e *Engine) analyzeHourly(candles []venue.Candle) (Direction, float64, bool) {
	if len(candles) < 50 {
		return Neutral, 50, false
	}
	closes := closesOf(candles)
	ema20 := indicators.EMA(closes, 20)
	ema50 := indicators.EMA(closes, 50)
	rsi := indicators.RSI(closes, 14)
	n := len(candles)

	price := closes[n-1]
	e20, e50, r := ema20[n-1], ema50[n-1], rsi[n-1]

	direction := Neutral
	if price > e20 && e20 > e50 {
		direction = Bullish
	} else if price < e20 && e20 < e50 {
		direction = Bearish
	}

	extreme := r > e.cfg.RSIOverbought || r < e.cfg.RSIOversold
	return direction, r, extreme
}

// analyze15m classifies direction from MACD vs signal and histogram sign,
// and reports whether price sits within 0.5% of EMA20 ("near_ema").
func (e *Engine) analyze15m(candles []venue.Candle) (Direction, bool) {
	if len(candles) < 50 {
		return Neutral, false
	}
	closes := closesOf(candles)
	macd := indicators.MACD(closes)
	ema20 := indicators.EMA(closes, 20)
	n := len(candles)

	line, signal, hist := macd.MACD[n-1], macd.Signal[n-1], macd.Histogram[n-1]
	direction := Neutral
	if line > signal && hist > 0 {
		direction = Bullish
	} else if line < signal && hist < 0 {
		direction = Bearish
	}

	price := closes[n-1]
	e20 := ema20[n-1]
	nearEMA := false
	if e20 != 0 {
		distPct := absF(price-e20) / e20 * 100
		nearEMA = distPct < 0.5
	}
	return direction, nearEMA
}

// calculateAlignment combines the three timeframe directions into an
// overall direction, quality, and confidence per spec §4.5.
func (e *Engine) calculateAlignment(daily, hourly, m15 Direction) (Direction, Quality, float64) {
	bullCount := 0
	bearCount := 0
	for _, d := range []Direction{daily, hourly, m15} {
		if isBullish(d) {
			bullCount++
		} else if isBearish(d) {
			bearCount++
		}
	}

	var direction Direction
	switch {
	case bullCount >= 2:
		if bullCount == 3 {
			direction = StrongBullish
		} else {
			direction = Bullish
		}
	case bearCount >= 2:
		if bearCount == 3 {
			direction = StrongBearish
		} else {
			direction = Bearish
		}
	default:
		direction = Neutral
	}

	switch {
	case bullCount == 3 || bearCount == 3:
		return direction, Excellent, 0.95
	case bullCount == 2 || bearCount == 2:
		dailyHourlyAlign := (isBullish(daily) && isBullish(hourly)) || (isBearish(daily) && isBearish(hourly))
		if dailyHourlyAlign {
			return direction, Good, 0.80
		}
		return direction, Moderate, 0.65
	default:
		return direction, Poor, 0.40
	}
}

// shouldTrade applies spec §4.5's should_trade gate: quality must be
// tradeable, confidence must clear the configured minimum, and an extreme
// hourly RSI blocks trading unless quality is excellent.
func (e *Engine) shouldTrade(quality Quality, confidence float64, rsiExtreme bool) bool {
	if quality == Poor {
		return false
	}
	minConfidence := e.cfg.MinConfidence
	if minConfidence == 0 {
		minConfidence = 0.60
	}
	if confidence < minConfidence {
		return false
	}
	if rsiExtreme && quality != Excellent {
		return false
	}
	return true
}

// assessEntryQuality implements spec §4.5's entry-timing rule from the 15m
// timeframe.
func assessEntryQuality(m15Dir Direction, nearEMA bool, overall Direction) EntryQuality {
	aligned := (isBullish(overall) && m15Dir == Bullish) || (isBearish(overall) && m15Dir == Bearish)
	if nearEMA && aligned {
		return EntryOptimal
	}
	if aligned {
		return EntryAcceptable
	}
	return EntryWait
}

func closesOf(candles []venue.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

func absF(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

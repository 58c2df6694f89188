// Package indicators computes the technical-analysis values the rest of
// the agent consumes: EMA, MACD, RSI, ATR, pivot points, ADX/DI, and
// Donchian channels, all from plain OHLCV series. No indicator here talks
// to a venue; callers supply candles already fetched.
package indicators

import "github.com/lancilotto/hl-agent/internal/venue"

// EMA computes the exponential moving average series for period over
// closes, using the standard smoothing factor 2/(period+1). The first
// element is seeded with the simple average of the first period closes and
// the recursion runs from the second element on, so early values are less
// accurate; callers needing only the latest value should index the final
// element.
func EMA(closes []float64, period int) []float64 {
	n := len(closes)
	out := make([]float64, n)
	if n == 0 || period <= 0 {
		return out
	}
	k := 2.0 / float64(period+1)
	seed := 0.0
	seedN := period
	if seedN > n {
		seedN = n
	}
	for i := 0; i < seedN; i++ {
		seed += closes[i]
	}
	seed /= float64(seedN)
	out[0] = seed
	prev := seed
	for i := 1; i < n; i++ {
		prev = closes[i]*k + prev*(1-k)
		out[i] = prev
	}
	return out
}

// MACDResult holds the MACD line, signal line, and histogram (macd-signal).
type MACDResult struct {
	MACD      []float64
	Signal    []float64
	Histogram []float64
}

// MACD computes the standard 12/26/9 MACD over closes.
func MACD(closes []float64) MACDResult {
	ema12 := EMA(closes, 12)
	ema26 := EMA(closes, 26)
	n := len(closes)
	macdLine := make([]float64, n)
	for i := range macdLine {
		macdLine[i] = ema12[i] - ema26[i]
	}
	signal := EMA(macdLine, 9)
	hist := make([]float64, n)
	for i := range hist {
		hist[i] = macdLine[i] - signal[i]
	}
	return MACDResult{MACD: macdLine, Signal: signal, Histogram: hist}
}

// RSI computes the relative strength index over the given period using
// Wilder's smoothing.
func RSI(closes []float64, period int) []float64 {
	n := len(closes)
	out := make([]float64, n)
	if n < 2 || period <= 0 {
		return out
	}
	var avgGain, avgLoss float64
	for i := 1; i <= period && i < n; i++ {
		delta := closes[i] - closes[i-1]
		if delta > 0 {
			avgGain += delta
		} else {
			avgLoss -= delta
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)
	rsiAt := func(g, l float64) float64 {
		if l == 0 {
			return 100
		}
		rs := g / l
		return 100 - 100/(1+rs)
	}
	if period < n {
		out[period] = rsiAt(avgGain, avgLoss)
	}
	for i := period + 1; i < n; i++ {
		delta := closes[i] - closes[i-1]
		gain, loss := 0.0, 0.0
		if delta > 0 {
			gain = delta
		} else {
			loss = -delta
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
		out[i] = rsiAt(avgGain, avgLoss)
	}
	return out
}

// ATR computes the average true range over period from OHLC candles, using
// Wilder smoothing.
func ATR(candles []venue.Candle, period int) []float64 {
	n := len(candles)
	out := make([]float64, n)
	if n == 0 || period <= 0 {
		return out
	}
	tr := make([]float64, n)
	for i, c := range candles {
		if i == 0 {
			tr[i] = c.High - c.Low
			continue
		}
		prevClose := candles[i-1].Close
		hl := c.High - c.Low
		hc := absF(c.High - prevClose)
		lc := absF(c.Low - prevClose)
		tr[i] = maxF(hl, maxF(hc, lc))
	}
	var sum float64
	seedN := period
	if seedN > n {
		seedN = n
	}
	for i := 0; i < seedN; i++ {
		sum += tr[i]
	}
	prev := sum / float64(seedN)
	out[seedN-1] = prev
	for i := seedN; i < n; i++ {
		prev = (prev*float64(period-1) + tr[i]) / float64(period)
		out[i] = prev
	}
	return out
}

// SMA computes the simple moving average series over period.
func SMA(values []float64, period int) []float64 {
	n := len(values)
	out := make([]float64, n)
	if period <= 0 {
		return out
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += values[i]
		if i >= period {
			sum -= values[i-period]
		}
		if i >= period-1 {
			out[i] = sum / float64(period)
		}
	}
	return out
}

// PivotPoints are the classic floor-trader pivots computed from the
// previous period's high/low/close (spec §4.3).
type PivotPoints struct {
	PP, S1, S2, R1, R2 float64
}

// CalculatePivotPoints computes PP/S1/S2/R1/R2 from one prior bar's HLC.
func CalculatePivotPoints(high, low, close float64) PivotPoints {
	pp := (high + low + close) / 3.0
	return PivotPoints{
		PP: pp,
		S1: 2*pp - high,
		S2: pp - (high - low),
		R1: 2*pp - low,
		R2: pp + (high - low),
	}
}

// ADXResult holds ADX(14) and the +DI/-DI lines it was derived from.
type ADXResult struct {
	ADX     []float64
	PlusDI  []float64
	MinusDI []float64
}

// ADX computes Wilder's directional movement index over period.
func ADX(candles []venue.Candle, period int) ADXResult {
	n := len(candles)
	res := ADXResult{ADX: make([]float64, n), PlusDI: make([]float64, n), MinusDI: make([]float64, n)}
	if n < 2 || period <= 0 {
		return res
	}

	plusDM := make([]float64, n)
	minusDM := make([]float64, n)
	tr := make([]float64, n)
	for i := 1; i < n; i++ {
		upMove := candles[i].High - candles[i-1].High
		downMove := candles[i-1].Low - candles[i].Low
		if upMove > downMove && upMove > 0 {
			plusDM[i] = upMove
		}
		if downMove > upMove && downMove > 0 {
			minusDM[i] = downMove
		}
		hl := candles[i].High - candles[i].Low
		hc := absF(candles[i].High - candles[i-1].Close)
		lc := absF(candles[i].Low - candles[i-1].Close)
		tr[i] = maxF(hl, maxF(hc, lc))
	}

	smooth := func(series []float64) []float64 {
		out := make([]float64, n)
		var sum float64
		seedEnd := period
		if seedEnd > n-1 {
			seedEnd = n - 1
		}
		for i := 1; i <= seedEnd; i++ {
			sum += series[i]
		}
		out[seedEnd] = sum
		for i := seedEnd + 1; i < n; i++ {
			out[i] = out[i-1] - out[i-1]/float64(period) + series[i]
		}
		return out
	}
	smTR := smooth(tr)
	smPlus := smooth(plusDM)
	smMinus := smooth(minusDM)

	dx := make([]float64, n)
	for i := range smTR {
		if smTR[i] == 0 {
			continue
		}
		res.PlusDI[i] = 100 * smPlus[i] / smTR[i]
		res.MinusDI[i] = 100 * smMinus[i] / smTR[i]
		sum := res.PlusDI[i] + res.MinusDI[i]
		if sum == 0 {
			continue
		}
		dx[i] = 100 * absF(res.PlusDI[i]-res.MinusDI[i]) / sum
	}

	adxSeries := SMA(dx, period)
	res.ADX = adxSeries
	return res
}

// DonchianResult is the rolling N-bar high/low channel and the current
// price's normalized position within it.
type DonchianResult struct {
	Upper    float64
	Lower    float64
	Position float64 // clamped to [0,1]
}

// Donchian computes the N-period Donchian channel ending at the last
// candle and the normalized position of its close within the channel.
func Donchian(candles []venue.Candle, period int) DonchianResult {
	n := len(candles)
	if n == 0 {
		return DonchianResult{}
	}
	start := n - period
	if start < 0 {
		start = 0
	}
	window := candles[start:]
	upper, lower := window[0].High, window[0].Low
	for _, c := range window {
		upper = maxF(upper, c.High)
		lower = minF(lower, c.Low)
	}
	pos := 0.5
	if upper > lower {
		pos = (candles[n-1].Close - lower) / (upper - lower)
	}
	if pos < 0 {
		pos = 0
	}
	if pos > 1 {
		pos = 1
	}
	return DonchianResult{Upper: upper, Lower: lower, Position: pos}
}

func absF(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func maxF(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

package indicators

import (
	"context"
	"time"

	"github.com/lancilotto/hl-agent/internal/venue"
)

// Analysis is the per-ticker indicator payload consumed by the LLM context
// builder and the coin screener (spec §4.3).
type Analysis struct {
	Symbol    string
	Timestamp time.Time

	Price float64
	EMA20 float64
	MACD  float64
	RSI7  float64

	PivotPoints PivotPoints

	OpenInterestLatest float64
	OpenInterestAvg    float64
	FundingRate        float64

	// Intraday series, oldest -> latest, last 10 values.
	IntradayPrices []float64
	IntradayEMA20  []float64
	IntradayMACD   []float64
	IntradayRSI7   []float64
	IntradayRSI14  []float64

	LongerTerm LongerTermBlock
}

// LongerTermBlock is the 15m-but-wider-window context spec §4.3 calls the
// "longer-term" block.
type LongerTermBlock struct {
	EMA20Current float64
	EMA50Current float64
	ATR3Current  float64
	ATR14Current float64
	VolumeCurrent float64
	VolumeAverage float64
	MACDSeries    []float64 // last 10 values
	RSI14Series   []float64 // last 10 values
}

// OIFundingSource supplies open-interest and funding-rate values for a
// symbol. When it is nil or a call errors, Analyze reports open interest as
// 0.5 placeholders (latest and average) and a funding rate of 0.
type OIFundingSource interface {
	OpenInterest(ctx context.Context, symbol string) (latest, average float64, err error)
	FundingRate(ctx context.Context, symbol string) (float64, error)
}

func last10(series []float64) []float64 {
	if len(series) <= 10 {
		return series
	}
	return series[len(series)-10:]
}

// Analyze builds the full indicator payload for symbol from its 15m and
// daily candle history.
func Analyze(ctx context.Context, symbol string, candles15m, candlesDaily []venue.Candle, oi OIFundingSource) Analysis {
	closes := closesOf(candles15m)
	ema20 := EMA(closes, 20)
	macd := MACD(closes)
	rsi7 := RSI(closes, 7)
	rsi14 := RSI(closes, 14)

	n := len(candles15m)
	a := Analysis{Symbol: symbol, Timestamp: time.Now().UTC()}
	if n > 0 {
		a.Price = candles15m[n-1].Close
		a.EMA20 = ema20[n-1]
		a.MACD = macd.Histogram[n-1]
		a.RSI7 = rsi7[n-1]
	}

	a.IntradayPrices = last10(closes)
	a.IntradayEMA20 = last10(ema20)
	a.IntradayMACD = last10(macd.Histogram)
	a.IntradayRSI7 = last10(rsi7)
	a.IntradayRSI14 = last10(rsi14)

	longerWindow := candles15m
	if len(longerWindow) > 50 {
		longerWindow = longerWindow[len(longerWindow)-50:]
	}
	longerCloses := closesOf(longerWindow)
	lEma20 := EMA(longerCloses, 20)
	lEma50 := EMA(longerCloses, 50)
	lAtr3 := ATR(longerWindow, 3)
	lAtr14 := ATR(longerWindow, 14)
	lMacd := MACD(longerCloses)
	lRsi14 := RSI(longerCloses, 14)

	lm := len(longerWindow)
	if lm > 0 {
		a.LongerTerm.EMA20Current = lEma20[lm-1]
		a.LongerTerm.EMA50Current = lEma50[lm-1]
		a.LongerTerm.ATR3Current = lAtr3[lm-1]
		a.LongerTerm.ATR14Current = lAtr14[lm-1]
		a.LongerTerm.VolumeCurrent = longerWindow[lm-1].Volume
	}
	volWindow := longerWindow
	if len(volWindow) > 20 {
		volWindow = volWindow[len(volWindow)-20:]
	}
	var volSum float64
	for _, c := range volWindow {
		volSum += c.Volume
	}
	if len(volWindow) > 0 {
		a.LongerTerm.VolumeAverage = volSum / float64(len(volWindow))
	}
	a.LongerTerm.MACDSeries = last10(lMacd.Histogram)
	a.LongerTerm.RSI14Series = last10(lRsi14)

	if len(candlesDaily) >= 2 {
		prev := candlesDaily[len(candlesDaily)-2]
		a.PivotPoints = CalculatePivotPoints(prev.High, prev.Low, prev.Close)
	} else if n > 0 {
		last := candles15m[n-1]
		a.PivotPoints = CalculatePivotPoints(last.High, last.Low, last.Close)
	}

	// Use real OI/funding when the source provides them; otherwise open
	// interest keeps the 0.5 placeholders and the funding rate stays 0.
	a.OpenInterestLatest, a.OpenInterestAvg = 0.5, 0.5
	a.FundingRate = 0
	if oi != nil {
		if latest, avg, err := oi.OpenInterest(ctx, symbol); err == nil {
			a.OpenInterestLatest, a.OpenInterestAvg = latest, avg
		}
		if fr, err := oi.FundingRate(ctx, symbol); err == nil {
			a.FundingRate = fr
		}
	}

	return a
}

func closesOf(candles []venue.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

package screener

import (
	"math"
	"sort"
	"time"

	"github.com/lancilotto/hl-agent/internal/domain"
)

// Scorer computes the 11-factor composite score from spec §4.4.
type Scorer struct {
	weights domain.ScoringWeights
}

// NewScorer constructs a Scorer with weights, validating they sum to 1.0.
func NewScorer(weights domain.ScoringWeights) (*Scorer, error) {
	if err := weights.Validate(); err != nil {
		return nil, err
	}
	return &Scorer{weights: weights}, nil
}

func returnPct(now, ago float64) float64 {
	if ago == 0 {
		return 0
	}
	return (now - ago) / ago
}

// percentileRank returns, for a value that is itself a member of series,
// the fraction of the other values in series that it is greater than or
// equal to, in [0,1]. A single-coin peer set yields 0.5
// (no information to rank against).
func percentileRank(value float64, series []float64) float64 {
	if len(series) <= 1 {
		return 0.5
	}
	count := 0
	for _, v := range series {
		if value >= v {
			count++
		}
	}
	return float64(count-1) / float64(len(series)-1)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func adxStrength(adx float64) float64 {
	switch {
	case adx < 20:
		return 0.3
	case adx < 25:
		return 0.5
	case adx < 40:
		return 0.8
	default:
		return 1.0
	}
}

func emaAlignment(price, ema20, ema50, ema200 float64) float64 {
	// Tally in tenths so the full-alignment case lands exactly on 1.0
	// rather than the float sum 0.9999999999999999.
	score := 5
	if ema20 > ema50 {
		score += 2
	}
	if ema50 > ema200 {
		score += 2
	}
	if price > ema20 {
		score++
	}
	if score > 10 {
		score = 10
	}
	return float64(score) / 10
}

func donchianPosition(p float64) float64 {
	switch {
	case p > 0.8:
		return 1.0
	case p > 0.6:
		return 0.7
	case p > 0.4:
		return 0.3
	default:
		return 0.5
	}
}

// ScoreCoins scores every passing metric, using the set itself as the peer
// set for percentile factors and btc as the benchmark for relative
// strength. The result is sorted by descending score with a stable,
// symbol-ordered tie-break, and dense 1-based ranks are assigned.
func (s *Scorer) ScoreCoins(metrics []domain.CoinMetrics, btc *domain.CoinMetrics) []domain.CoinScore {
	n := len(metrics)
	ret7 := make([]float64, n)
	ret30 := make([]float64, n)
	for i, m := range metrics {
		ret7[i] = returnPct(m.Price, m.Price7dAgo)
		ret30[i] = returnPct(m.Price, m.Price30dAgo)
	}

	var btcRet7 float64
	if btc != nil {
		btcRet7 = returnPct(btc.Price, btc.Price7dAgo)
	}

	now := time.Now().UTC()
	scores := make([]domain.CoinScore, n)
	for i, m := range metrics {
		factors := map[string]float64{
			"momentum_7d":        percentileRank(ret7[i], ret7),
			"momentum_30d":       percentileRank(ret30[i], ret30),
			"volatility_regime":  volatilityRegime(m),
			"volume_trend":       volumeTrend(m),
			"oi_trend":           oiTrend(m),
			"funding_stability":  1 - math.Min(math.Abs(m.FundingRate)/0.01, 1),
			"liquidity_score":    1 - math.Min(m.SpreadPct/0.5, 1),
			"relative_strength":  clamp01(ret7[i] - btcRet7 + 0.5),
			"adx_strength":       adxStrength(m.ADX14),
			"ema_alignment":      emaAlignment(m.Price, m.EMA20, m.EMA50, m.EMA200),
			"donchian_position":  donchianPosition(m.DonchianPosition),
		}

		weighted := s.weights.Momentum7d*factors["momentum_7d"] +
			s.weights.Momentum30d*factors["momentum_30d"] +
			s.weights.VolatilityRegime*factors["volatility_regime"] +
			s.weights.VolumeTrend*factors["volume_trend"] +
			s.weights.OITrend*factors["oi_trend"] +
			s.weights.FundingStability*factors["funding_stability"] +
			s.weights.LiquidityScore*factors["liquidity_score"] +
			s.weights.RelativeStrength*factors["relative_strength"] +
			s.weights.ADXStrength*factors["adx_strength"] +
			s.weights.EMAAlignment*factors["ema_alignment"] +
			s.weights.DonchianPosition*factors["donchian_position"]

		scores[i] = domain.CoinScore{
			Symbol:      m.Symbol,
			Score:       100 * weighted,
			Factors:     factors,
			Metrics:     m,
			LastUpdated: now,
		}
	}

	sort.SliceStable(scores, func(i, j int) bool {
		if scores[i].Score != scores[j].Score {
			return scores[i].Score > scores[j].Score
		}
		return scores[i].Symbol < scores[j].Symbol
	})
	for i := range scores {
		scores[i].Rank = i + 1
	}
	return scores
}

func volatilityRegime(m domain.CoinMetrics) float64 {
	if m.ATR14 > m.ATRSMA20 {
		return 1.0
	}
	return 0.5
}

func volumeTrend(m domain.CoinMetrics) float64 {
	if m.Volume30dAvg == 0 {
		return 0.5
	}
	ratio := m.Volume7dAvg / m.Volume30dAvg
	if ratio > 2 {
		ratio = 2
	}
	return ratio / 2
}

func oiTrend(m domain.CoinMetrics) float64 {
	if m.OpenInterestUSD > m.OI7dAgo {
		return 1.0
	}
	return 0.5
}

// Package domain holds the shared data model of the trading agent: the
// value types that flow between the venue client, screener, trend engine,
// LLM client, risk manager, execution adapter, reconciler and persistence
// layer. Nothing in this package performs I/O.
package domain

import "time"

// CoinMetrics is a snapshot of one asset at one instant, produced by the
// Indicator Engine for a single cycle. It is never mutated after creation.
type CoinMetrics struct {
	Symbol         string
	Price          float64
	Volume24hUSD   float64
	MarketCapUSD   float64
	OpenInterestUSD float64
	FundingRate    float64
	SpreadPct      float64
	DaysListed     int
	Price7dAgo     float64
	Price30dAgo    float64
	Volume7dAvg    float64
	Volume30dAvg   float64
	OI7dAgo        float64
	ATR14          float64
	ATRSMA20       float64
	ADX14          float64
	PlusDI         float64
	MinusDI        float64
	EMA20          float64
	EMA50          float64
	EMA200         float64
	DonchianUpper20  float64
	DonchianLower20  float64
	DonchianPosition float64 // in [0,1] when defined
	IsStablecoin   bool
}

// CoinScore is the output of scoring a single CoinMetrics. Scores of all
// coins in one screening form a dense rank permutation 1..N.
type CoinScore struct {
	Symbol      string
	Score       float64 // in [0,100]
	Rank        int     // 1-based, dense, unique within a screening
	Factors     map[string]float64
	Metrics     CoinMetrics
	LastUpdated time.Time
}

// ScreeningType distinguishes a full universe rebalance from a lightweight
// daily re-score of the already-selected coins.
type ScreeningType string

const (
	ScreeningFullRebalance ScreeningType = "full_rebalance"
	ScreeningDailyUpdate   ScreeningType = "daily_update"
)

// ScreeningResult is the output of one screening pass.
type ScreeningResult struct {
	SelectedCoins      []CoinScore // ordered by rank
	ExcludedCoins      []string    // symbols filtered by hard rules
	ScreeningTimestamp time.Time
	NextRebalance      time.Time // next Sunday 00:00 UTC, strictly future
	ScreeningType      ScreeningType
}

// Operation is the action an LLM decision carries.
type Operation string

const (
	OpOpen  Operation = "open"
	OpClose Operation = "close"
	OpHold  Operation = "hold"
)

// Direction is the side of a position or a decision.
type Direction string

const (
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
)

// Decision is the fixed-schema output of the LLM Decision Client. Field
// ranges are enforced by internal/llm's validator, not by this struct.
type Decision struct {
	Operation              Operation `json:"operation" validate:"required,oneof=open close hold"`
	Symbol                 string    `json:"symbol" validate:"required"`
	Direction              Direction `json:"direction" validate:"omitempty,oneof=long short"`
	TargetPortionOfBalance float64   `json:"target_portion_of_balance" validate:"gte=0,lte=1"`
	Leverage               int       `json:"leverage" validate:"gte=1,lte=10"`
	StopLossPct            float64   `json:"stop_loss_pct" validate:"gte=0.5,lte=10"`
	TakeProfitPct          float64   `json:"take_profit_pct" validate:"gte=1,lte=50"`
	Reason                 string    `json:"reason" validate:"min=10,max=500"`
	Confidence             float64   `json:"confidence" validate:"gte=0,lte=1"`
}

// Position is an open exposure on one symbol, owned by the Risk Manager
// and shared by reference with the Venue Client's read-only views.
type Position struct {
	Symbol         string
	Direction      Direction
	EntryPrice     float64
	Size           float64
	Leverage       int
	StopLossPrice  float64
	TakeProfitPrice float64
	OpenedAt       time.Time
}

// StopLossPct recomputes the SL distance from entry as a percentage.
func (p Position) StopLossPct() float64 {
	if p.Direction == DirectionLong {
		return (p.EntryPrice - p.StopLossPrice) / p.EntryPrice * 100
	}
	return (p.StopLossPrice - p.EntryPrice) / p.EntryPrice * 100
}

// TakeProfitPct recomputes the TP distance from entry as a percentage.
func (p Position) TakeProfitPct() float64 {
	if p.Direction == DirectionLong {
		return (p.TakeProfitPrice - p.EntryPrice) / p.EntryPrice * 100
	}
	return (p.EntryPrice - p.TakeProfitPrice) / p.EntryPrice * 100
}

// ExitReason indicates why check_positions/the reconciler ended a trade.
type ExitReason string

const (
	ExitStopLoss        ExitReason = "stop_loss"
	ExitTakeProfit      ExitReason = "take_profit"
	ExitSignal          ExitReason = "signal"
	ExitManual          ExitReason = "manual"
	ExitSyncedFill      ExitReason = "synced_fill"
	ExitSyncedHistory   ExitReason = "synced_history"
	ExitCircuitBreaker  ExitReason = "circuit_breaker"
)

// CheckExitConditions returns the exit reason triggered by currentPrice, or
// "" if the position should remain open. Direction-aware: long exits below
// stop or above target, short is the mirror image.
func (p Position) CheckExitConditions(currentPrice float64) ExitReason {
	if p.Direction == DirectionLong {
		if currentPrice <= p.StopLossPrice {
			return ExitStopLoss
		}
		if currentPrice >= p.TakeProfitPrice {
			return ExitTakeProfit
		}
		return ""
	}
	if currentPrice >= p.StopLossPrice {
		return ExitStopLoss
	}
	if currentPrice <= p.TakeProfitPrice {
		return ExitTakeProfit
	}
	return ""
}

// PnL computes the unrealized profit in USD at currentPrice.
func (p Position) PnL(currentPrice float64) float64 {
	var perUnit float64
	if p.Direction == DirectionLong {
		perUnit = currentPrice - p.EntryPrice
	} else {
		perUnit = p.EntryPrice - currentPrice
	}
	return perUnit * p.Size
}

// RiskState is the in-memory, single-process state of the Risk Manager. It
// is intentionally not persisted across restarts.
type RiskState struct {
	DailyPnL            float64
	DailyResetTime       time.Time
	ConsecutiveLosses   int
	LastLossTime        time.Time
	CircuitBreakerActive bool
	Positions           map[string]*Position
}

// TradeStatus is the lifecycle state of a TradeRecord.
type TradeStatus string

const (
	TradeStatusOpen   TradeStatus = "open"
	TradeStatusClosed TradeStatus = "closed"
)

// TradeRecord is the append-only history of one logical trade: an open row
// and, once the position is closed, the corresponding close fields.
type TradeRecord struct {
	ID              string
	BotOperationID  string
	Symbol          string
	Direction       Direction
	EntryPrice      float64
	ExitPrice       float64
	Size            float64
	SizeUSD         float64
	Leverage        int
	StopLossPrice   float64
	TakeProfitPrice float64
	ExitReason      ExitReason
	PnLUSD          float64
	PnLPct          float64
	DurationMinutes float64
	FeesUSD         float64
	Status          TradeStatus
	HLOrderID       string
	CreatedAt       time.Time
	ClosedAt        time.Time
}

// BotOperation is every LLM decision ever made, whether executed or not.
type BotOperation struct {
	ID               string
	CreatedAt        time.Time
	CycleID          string
	Decision         Decision
	RawPayload       string
	Prompt           string
	ContextSnapshot  string
	ExecutionResult  string
}

// LLMUsage is a per-call token/cost accounting record.
type LLMUsage struct {
	Timestamp      time.Time
	Model          string
	InputTokens    int
	OutputTokens   int
	TotalTokens    int
	InputCostUSD   float64
	OutputCostUSD  float64
	TotalCostUSD   float64
	Purpose        string
	Ticker         string
	CycleID        string
	ResponseTimeMs int64
}

// ScoringWeights are the 11 composite-score factor weights (spec §4.4).
// They must sum to 1.0 within 1e-3; Validate enforces this.
type ScoringWeights struct {
	Momentum7d        float64
	Momentum30d       float64
	VolatilityRegime  float64
	VolumeTrend       float64
	OITrend           float64
	FundingStability  float64
	LiquidityScore    float64
	RelativeStrength  float64
	ADXStrength       float64
	EMAAlignment      float64
	DonchianPosition  float64
}

// DefaultScoringWeights returns the weight table from spec §4.4.
func DefaultScoringWeights() ScoringWeights {
	return ScoringWeights{
		Momentum7d:       0.15,
		Momentum30d:      0.10,
		VolatilityRegime: 0.10,
		VolumeTrend:      0.10,
		OITrend:          0.08,
		FundingStability: 0.07,
		LiquidityScore:   0.05,
		RelativeStrength: 0.05,
		ADXStrength:      0.12,
		EMAAlignment:     0.10,
		DonchianPosition: 0.08,
	}
}

// Validate checks that the weights sum to 1.0 within 1e-3, per invariant 1.
func (w ScoringWeights) Validate() error {
	sum := w.Momentum7d + w.Momentum30d + w.VolatilityRegime + w.VolumeTrend +
		w.OITrend + w.FundingStability + w.LiquidityScore + w.RelativeStrength +
		w.ADXStrength + w.EMAAlignment + w.DonchianPosition
	diff := sum - 1.0
	if diff < 0 {
		diff = -diff
	}
	if diff >= 1e-3 {
		return ErrScoringWeightsSum
	}
	return nil
}

// TokenUsageSummary aggregates LLMUsage records for reporting, e.g. over a
// day or a cycle.
type TokenUsageSummary struct {
	Model          string
	CallCount      int
	TotalInput     int
	TotalOutput    int
	TotalCostUSD   float64
}

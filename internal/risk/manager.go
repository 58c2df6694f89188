// Package risk implements the position registry, fixed-fractional sizing,
// and daily circuit breaker described in spec §4.7. It is a direct port of
// the Python RiskManager's arithmetic, expressed as a single
// mutex-protected struct in the teacher's style.
package risk

import (
	"time"

	"github.com/lancilotto/hl-agent/internal/domain"
	"github.com/lancilotto/hl-agent/internal/logging"
	"sync"
)

// Config holds the risk thresholds from spec §6 Configuration.
type Config struct {
	MaxDailyLossUSD      float64
	MaxDailyLossPct      float64
	MaxPositionPct       float64
	MaxRiskPerTrade      float64 // fraction, e.g. 0.02 for 2%
	MaxConsecutiveLosses int
	CooldownAfterLosses  time.Duration
}

// DefaultConfig returns the values from spec §6's default column.
func DefaultConfig() Config {
	return Config{
		MaxDailyLossUSD:      500.0,
		MaxDailyLossPct:      5.0,
		MaxPositionPct:       30.0,
		MaxRiskPerTrade:      0.02,
		MaxConsecutiveLosses: 3,
		CooldownAfterLosses:  30 * time.Minute,
	}
}

// Manager owns domain.RiskState and serializes every access with a single
// mutex. Per spec §4.7, the Orchestrator is the sole mutator; concurrent
// readers (e.g. a dashboard) only ever see a consistent snapshot.
type Manager struct {
	mu     sync.Mutex
	cfg    Config
	state  domain.RiskState
	log    *logging.Logger
}

// NewManager constructs a Manager with an empty position registry.
func NewManager(cfg Config) *Manager {
	return &Manager{
		cfg: cfg,
		state: domain.RiskState{
			DailyResetTime: time.Now().UTC(),
			Positions:      make(map[string]*domain.Position),
		},
		log: logging.WithComponent("risk"),
	}
}

func (m *Manager) resetDailyStatsIfNeeded() {
	now := time.Now().UTC()
	if now.Year() != m.state.DailyResetTime.Year() ||
		now.YearDay() != m.state.DailyResetTime.YearDay() {
		m.log.Info("daily risk stats reset")
		m.state.DailyPnL = 0
		m.state.DailyResetTime = now
		m.state.CircuitBreakerActive = false
	}
}

// AdmissionResult is the outcome of CanOpenPosition.
type AdmissionResult struct {
	Allowed bool
	Reason  string
}

// CanOpenPosition applies the admission-control chain from spec §4.7:
// circuit breaker, then daily loss (USD and %), then consecutive-loss
// cooldown.
func (m *Manager) CanOpenPosition(balanceUSD float64) AdmissionResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetDailyStatsIfNeeded()

	if m.state.CircuitBreakerActive {
		return AdmissionResult{false, "circuit breaker active"}
	}

	if absF(m.state.DailyPnL) >= m.cfg.MaxDailyLossUSD {
		m.state.CircuitBreakerActive = true
		return AdmissionResult{false, "max daily loss usd reached"}
	}

	dailyLossPct := 0.0
	if balanceUSD > 0 {
		dailyLossPct = absF(m.state.DailyPnL) / balanceUSD * 100
	}
	if dailyLossPct >= m.cfg.MaxDailyLossPct {
		m.state.CircuitBreakerActive = true
		return AdmissionResult{false, "max daily loss pct reached"}
	}

	if m.state.ConsecutiveLosses >= m.cfg.MaxConsecutiveLosses {
		cooldownEnd := m.state.LastLossTime.Add(m.cfg.CooldownAfterLosses)
		if time.Now().UTC().Before(cooldownEnd) {
			return AdmissionResult{false, "cooldown active after consecutive losses"}
		}
		m.state.ConsecutiveLosses = 0
	}

	return AdmissionResult{true, "ok"}
}

// SizingResult is the outcome of CalculatePositionSize.
type SizingResult struct {
	SizeUSD          float64
	EffectivePortion float64
	RiskUSD          float64
}

// CalculatePositionSize applies fixed-fractional sizing (spec §4.7):
// risk_amount = alpha*balance; size_from_risk = risk_amount/(sl_pct/100)
// when sl_pct>0 else requested_size; final = min(requested, size_from_risk,
// max_position).
func (m *Manager) CalculatePositionSize(balanceUSD, requestedPortion, stopLossPct float64) SizingResult {
	riskAmount := balanceUSD * m.cfg.MaxRiskPerTrade

	var sizeFromRisk float64
	if stopLossPct > 0 {
		sizeFromRisk = riskAmount / stopLossPct * 100
	} else {
		sizeFromRisk = balanceUSD * requestedPortion
	}

	maxPosition := balanceUSD * m.cfg.MaxPositionPct / 100
	requestedSize := balanceUSD * requestedPortion

	finalSize := minF(requestedSize, minF(sizeFromRisk, maxPosition))

	effectivePortion := 0.0
	if balanceUSD > 0 {
		effectivePortion = finalSize / balanceUSD
	}

	return SizingResult{SizeUSD: finalSize, EffectivePortion: effectivePortion, RiskUSD: riskAmount}
}

// RegisterPosition computes SL/TP prices from entry and percentages and
// adds the position to the registry, replacing any existing entry for the
// symbol.
func (m *Manager) RegisterPosition(symbol string, direction domain.Direction, entryPrice, size float64, leverage int, stopLossPct, takeProfitPct float64) domain.Position {
	var slPrice, tpPrice float64
	if direction == domain.DirectionLong {
		slPrice = entryPrice * (1 - stopLossPct/100)
		tpPrice = entryPrice * (1 + takeProfitPct/100)
	} else {
		slPrice = entryPrice * (1 + stopLossPct/100)
		tpPrice = entryPrice * (1 - takeProfitPct/100)
	}

	pos := domain.Position{
		Symbol:          symbol,
		Direction:       direction,
		EntryPrice:      entryPrice,
		Size:            size,
		Leverage:        leverage,
		StopLossPrice:   slPrice,
		TakeProfitPrice: tpPrice,
		OpenedAt:        time.Now().UTC(),
	}

	m.mu.Lock()
	m.state.Positions[symbol] = &pos
	m.mu.Unlock()

	m.log.Info("position registered", "symbol", symbol, "direction", string(direction), "entry", entryPrice, "sl", slPrice, "tp", tpPrice)
	return pos
}

// CloseEvent describes a position whose SL/TP line was crossed.
type CloseEvent struct {
	Symbol     string
	Direction  domain.Direction
	Reason     domain.ExitReason
	EntryPrice float64
	ExitPrice  float64
	PnL        float64
	Position   domain.Position
}

// CheckPositions evaluates every tracked position against currentPrices
// and returns the set that crossed their SL/TP line. It does not remove
// them; the caller (Execution Adapter) closes them and then calls
// RemovePosition.
func (m *Manager) CheckPositions(currentPrices map[string]float64) []CloseEvent {
	m.mu.Lock()
	defer m.mu.Unlock()

	var toClose []CloseEvent
	for symbol, pos := range m.state.Positions {
		price, ok := currentPrices[symbol]
		if !ok {
			continue
		}
		reason := pos.CheckExitConditions(price)
		if reason == "" {
			continue
		}
		pnl := pos.PnL(price)
		toClose = append(toClose, CloseEvent{
			Symbol:     symbol,
			Direction:  pos.Direction,
			Reason:     reason,
			EntryPrice: pos.EntryPrice,
			ExitPrice:  price,
			PnL:        pnl,
			Position:   *pos,
		})
		m.log.Warn("exit condition triggered", "symbol", symbol, "reason", string(reason), "price", price, "pnl", pnl)
	}
	return toClose
}

// RecordTradeResult updates daily PnL and the consecutive-loss counter
// after a trade closes.
func (m *Manager) RecordTradeResult(pnl float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.DailyPnL += pnl
	if pnl < 0 {
		m.state.ConsecutiveLosses++
		m.state.LastLossTime = time.Now().UTC()
	} else {
		m.state.ConsecutiveLosses = 0
	}
}

// RemovePosition removes symbol from the registry (no-op if absent).
func (m *Manager) RemovePosition(symbol string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.state.Positions, symbol)
}

// GetPosition returns the tracked position for symbol, if any.
func (m *Manager) GetPosition(symbol string) (domain.Position, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.state.Positions[symbol]
	if !ok {
		return domain.Position{}, false
	}
	return *p, true
}

// Positions returns a snapshot of every currently tracked position, used by
// the Orchestrator to derive tickers_manage and to detect ghost trades.
func (m *Manager) Positions() []domain.Position {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Position, 0, len(m.state.Positions))
	for _, p := range m.state.Positions {
		out = append(out, *p)
	}
	return out
}

// Status is a read-only snapshot of the risk state, safe to expose to the
// dashboard collaborator.
type Status struct {
	DailyPnL             float64
	ConsecutiveLosses    int
	CircuitBreakerActive bool
	OpenPositionCount    int
}

// GetStatus returns a consistent snapshot of the current risk state.
func (m *Manager) GetStatus() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Status{
		DailyPnL:             m.state.DailyPnL,
		ConsecutiveLosses:    m.state.ConsecutiveLosses,
		CircuitBreakerActive: m.state.CircuitBreakerActive,
		OpenPositionCount:    len(m.state.Positions),
	}
}

func absF(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

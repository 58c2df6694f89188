// Package execution wraps the venue client with idempotent, risk-aware
// order placement, per spec §4.8. It holds a non-owning RiskGate reference
// rather than the Risk Manager owning the adapter, so Risk and Execution
// never reference each other cyclically.
package execution

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/lancilotto/hl-agent/internal/domain"
	"github.com/lancilotto/hl-agent/internal/logging"
	"github.com/lancilotto/hl-agent/internal/risk"
	"github.com/lancilotto/hl-agent/internal/venue"
)

const (
	defaultSlippage    = 0.01
	leverageGraceSleep = 500 * time.Millisecond
)

// RiskGate is the capability the adapter needs from the Risk Manager. It
// is deliberately narrow so the adapter never reaches into Risk's internal
// state directly.
type RiskGate interface {
	CanOpenPosition(balanceUSD float64) risk.AdmissionResult
	CalculatePositionSize(balanceUSD, requestedPortion, stopLossPct float64) risk.SizingResult
	RegisterPosition(symbol string, direction domain.Direction, entryPrice, size float64, leverage int, stopLossPct, takeProfitPct float64) domain.Position
	RemovePosition(symbol string)
	GetPosition(symbol string) (domain.Position, bool)
}

// Venue is the subset of *venue.Client the adapter drives.
type Venue interface {
	RoundSize(symbol string, size float64) float64
	SetLeverage(ctx context.Context, symbol string, leverage int, isCross bool) error
	MarketOpen(ctx context.Context, symbol string, isBuy bool, size, slippage float64) (venue.OrderResult, error)
	MarketClose(ctx context.Context, symbol string) (venue.OrderResult, error)
	GetAllMids(ctx context.Context) (map[string]float64, error)
	Meta() venue.Meta
}

// Adapter is the execution layer between decisions and the venue.
type Adapter struct {
	venue Venue
	risk  RiskGate
	log   *logging.Logger
	audit zerolog.Logger
}

// New constructs an Adapter over venue v, gated by risk manager rg. audit
// is a structured, machine-parseable fill log kept separate from the
// human-facing internal/logging output: one JSON line per order placed or
// closed, suited to being shipped off-box for trade reconstruction.
func New(v Venue, rg RiskGate) *Adapter {
	return &Adapter{
		venue: v,
		risk:  rg,
		log:   logging.WithComponent("execution"),
		audit: zerolog.New(os.Stdout).With().Timestamp().Str("component", "execution_audit").Logger(),
	}
}

// Result is the outcome of ExecuteWithRisk.
type Result struct {
	Status string // "noop", "skipped", "rejected", "filled", "error"
	Reason string
	Order  venue.OrderResult
}

// findLivePosition resolves a decision's symbol against the venue's live
// position set by exact match first, then substring fallback (spec §4.8:
// "some venues rename symbols").
func findLivePosition(symbol string, livePositions []domain.Position) (domain.Position, bool) {
	for _, p := range livePositions {
		if p.Symbol == symbol {
			return p, true
		}
	}
	for _, p := range livePositions {
		if strings.Contains(p.Symbol, symbol) || strings.Contains(symbol, p.Symbol) {
			return p, true
		}
	}
	return domain.Position{}, false
}

// ExecuteWithRisk implements the decision → order flow from spec §4.8.
// livePositions is the venue's current open-position view (from
// AccountSync), used for idempotent close resolution.
func (a *Adapter) ExecuteWithRisk(ctx context.Context, decision domain.Decision, balanceUSD float64, livePositions []domain.Position) Result {
	switch decision.Operation {
	case domain.OpHold:
		return Result{Status: "noop"}

	case domain.OpClose:
		return a.executeClose(ctx, decision.Symbol, livePositions, false)

	case domain.OpOpen:
		return a.executeOpen(ctx, decision, balanceUSD)

	default:
		return Result{Status: "error", Reason: fmt.Sprintf("unknown operation %q", decision.Operation)}
	}
}

func (a *Adapter) executeClose(ctx context.Context, symbol string, livePositions []domain.Position, forced bool) Result {
	live, found := findLivePosition(symbol, livePositions)
	if !found {
		a.risk.RemovePosition(symbol)
		return Result{Status: "skipped"}
	}

	correlationID := uuid.New().String()
	order, err := a.venue.MarketClose(ctx, live.Symbol)
	if err != nil {
		a.audit.Error().Str("correlation_id", correlationID).Str("symbol", live.Symbol).Err(err).Msg("close failed")
		return Result{Status: "error", Reason: err.Error()}
	}
	if order.Status == "error" {
		return Result{Status: "error", Reason: order.Err.Error()}
	}

	if order.Status == "empty" {
		// market_close reported nothing: fall back to an opposite-side
		// market order at the observed size. Unless forced is set, the
		// alternate close first consults Risk (CanOpenPosition) and logs a
		// denial as a warning; the order is placed either way.
		alt := a.executeAlternateClose(ctx, live, forced)
		if alt.Status != "filled" {
			return alt
		}
		order = alt.Order
	}

	a.risk.RemovePosition(live.Symbol)
	a.log.Info("position closed", "symbol", live.Symbol, "order_id", order.OrderID)
	a.audit.Info().
		Str("correlation_id", correlationID).
		Str("symbol", live.Symbol).
		Str("order_id", order.OrderID).
		Float64("avg_px", order.AvgPx).
		Msg("position closed")
	return Result{Status: "filled", Order: order}
}

func (a *Adapter) executeAlternateClose(ctx context.Context, live domain.Position, forced bool) Result {
	if !forced {
		if admission := a.risk.CanOpenPosition(0); !admission.Allowed {
			a.log.Warn("alternate close still executed despite risk denial", "symbol", live.Symbol, "reason", admission.Reason)
		}
	}
	isBuy := live.Direction == domain.DirectionShort // opposite side closes
	order, err := a.venue.MarketOpen(ctx, live.Symbol, isBuy, live.Size, defaultSlippage)
	if err != nil {
		return Result{Status: "error", Reason: err.Error()}
	}
	if order.Status == "error" {
		return Result{Status: "error", Reason: order.Err.Error()}
	}
	return Result{Status: "filled", Order: order}
}

func (a *Adapter) executeOpen(ctx context.Context, decision domain.Decision, balanceUSD float64) Result {
	admission := a.risk.CanOpenPosition(balanceUSD)
	if !admission.Allowed {
		return Result{Status: "rejected", Reason: admission.Reason}
	}

	sizing := a.risk.CalculatePositionSize(balanceUSD, decision.TargetPortionOfBalance, decision.StopLossPct)
	decision.TargetPortionOfBalance = sizing.EffectivePortion

	if err := a.venue.SetLeverage(ctx, decision.Symbol, decision.Leverage, true); err != nil {
		return Result{Status: "error", Reason: fmt.Sprintf("set leverage: %v", err)}
	}
	select {
	case <-time.After(leverageGraceSleep):
	case <-ctx.Done():
		return Result{Status: "error", Reason: ctx.Err().Error()}
	}

	mids, err := a.venue.GetAllMids(ctx)
	if err != nil {
		return Result{Status: "error", Reason: fmt.Sprintf("fetch mids: %v", err)}
	}
	markPx, ok := mids[decision.Symbol]
	if !ok || markPx <= 0 {
		return Result{Status: "error", Reason: "no mark price available"}
	}

	notional := balanceUSD * decision.TargetPortionOfBalance * float64(decision.Leverage)
	rawSize := notional / markPx
	size := a.venue.RoundSize(decision.Symbol, rawSize)

	correlationID := uuid.New().String()
	isBuy := decision.Direction == domain.DirectionLong
	order, err := a.venue.MarketOpen(ctx, decision.Symbol, isBuy, size, defaultSlippage)
	if err != nil {
		a.audit.Error().Str("correlation_id", correlationID).Str("symbol", decision.Symbol).Err(err).Msg("open failed")
		return Result{Status: "error", Reason: err.Error()}
	}
	if order.Status == "error" {
		return Result{Status: "error", Reason: order.Err.Error()}
	}

	entryPx := order.AvgPx
	if entryPx == 0 {
		entryPx = markPx
	}
	a.risk.RegisterPosition(decision.Symbol, decision.Direction, entryPx, size, decision.Leverage, decision.StopLossPct, decision.TakeProfitPct)
	a.log.Info("position opened", "symbol", decision.Symbol, "direction", string(decision.Direction), "size", size, "entry", entryPx)
	a.audit.Info().
		Str("correlation_id", correlationID).
		Str("symbol", decision.Symbol).
		Str("direction", string(decision.Direction)).
		Float64("size", size).
		Float64("entry_price", entryPx).
		Int("leverage", decision.Leverage).
		Msg("position opened")

	return Result{Status: "filled", Order: order}
}

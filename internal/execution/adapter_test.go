package execution

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lancilotto/hl-agent/internal/domain"
	"github.com/lancilotto/hl-agent/internal/risk"
	"github.com/lancilotto/hl-agent/internal/venue"
)

type fakeVenue struct {
	roundSize      float64
	setLeverageErr error
	mids           map[string]float64
	midsErr        error
	openResult     venue.OrderResult
	openErr        error
	closeResult    venue.OrderResult
	closeErr       error
	openCalls      int
}

func (f *fakeVenue) RoundSize(symbol string, size float64) float64 { return f.roundSize }
func (f *fakeVenue) SetLeverage(ctx context.Context, symbol string, leverage int, isCross bool) error {
	return f.setLeverageErr
}
func (f *fakeVenue) MarketOpen(ctx context.Context, symbol string, isBuy bool, size, slippage float64) (venue.OrderResult, error) {
	f.openCalls++
	return f.openResult, f.openErr
}
func (f *fakeVenue) MarketClose(ctx context.Context, symbol string) (venue.OrderResult, error) {
	return f.closeResult, f.closeErr
}
func (f *fakeVenue) GetAllMids(ctx context.Context) (map[string]float64, error) { return f.mids, f.midsErr }
func (f *fakeVenue) Meta() venue.Meta                                           { return venue.Meta{} }

type fakeRiskGate struct {
	admission  risk.AdmissionResult
	sizing     risk.SizingResult
	removed    []string
	registered []domain.Position
}

func (f *fakeRiskGate) CanOpenPosition(balanceUSD float64) risk.AdmissionResult { return f.admission }
func (f *fakeRiskGate) CalculatePositionSize(balanceUSD, requestedPortion, stopLossPct float64) risk.SizingResult {
	return f.sizing
}
func (f *fakeRiskGate) RegisterPosition(symbol string, direction domain.Direction, entryPrice, size float64, leverage int, stopLossPct, takeProfitPct float64) domain.Position {
	p := domain.Position{Symbol: symbol, Direction: direction, EntryPrice: entryPrice, Size: size, Leverage: leverage}
	f.registered = append(f.registered, p)
	return p
}
func (f *fakeRiskGate) RemovePosition(symbol string) { f.removed = append(f.removed, symbol) }
func (f *fakeRiskGate) GetPosition(symbol string) (domain.Position, bool) { return domain.Position{}, false }

func TestExecuteWithRisk_HoldIsNoop(t *testing.T) {
	a := New(&fakeVenue{}, &fakeRiskGate{})

	result := a.ExecuteWithRisk(context.Background(), domain.Decision{Operation: domain.OpHold}, 1000, nil)

	assert.Equal(t, "noop", result.Status)
}

func TestExecuteWithRisk_CloseWithNoLivePositionSkipsAndClearsRisk(t *testing.T) {
	rg := &fakeRiskGate{}
	a := New(&fakeVenue{}, rg)

	result := a.ExecuteWithRisk(context.Background(), domain.Decision{Operation: domain.OpClose, Symbol: "BTC"}, 0, nil)

	assert.Equal(t, "skipped", result.Status)
	assert.Equal(t, []string{"BTC"}, rg.removed)
}

func TestExecuteWithRisk_CloseFillsAndRemovesPosition(t *testing.T) {
	rg := &fakeRiskGate{}
	v := &fakeVenue{closeResult: venue.OrderResult{Status: "filled", OrderID: "1", AvgPx: 100}}
	a := New(v, rg)
	live := []domain.Position{{Symbol: "BTC", Direction: domain.DirectionLong}}

	result := a.ExecuteWithRisk(context.Background(), domain.Decision{Operation: domain.OpClose, Symbol: "BTC"}, 0, live)

	require.Equal(t, "filled", result.Status)
	assert.Equal(t, []string{"BTC"}, rg.removed)
}

func TestExecuteWithRisk_CloseFallsBackToAlternateOnEmptyResult(t *testing.T) {
	rg := &fakeRiskGate{admission: risk.AdmissionResult{Allowed: true}}
	v := &fakeVenue{
		closeResult: venue.OrderResult{Status: "empty"},
		openResult:  venue.OrderResult{Status: "filled", OrderID: "2", AvgPx: 101},
	}
	a := New(v, rg)
	live := []domain.Position{{Symbol: "BTC", Direction: domain.DirectionLong, Size: 1}}

	result := a.ExecuteWithRisk(context.Background(), domain.Decision{Operation: domain.OpClose, Symbol: "BTC"}, 0, live)

	require.Equal(t, "filled", result.Status)
	assert.Equal(t, 1, v.openCalls)
	assert.Equal(t, []string{"BTC"}, rg.removed)
}

func TestExecuteWithRisk_CloseErrorPropagatesReason(t *testing.T) {
	v := &fakeVenue{closeErr: errors.New("venue unreachable")}
	a := New(v, &fakeRiskGate{})
	live := []domain.Position{{Symbol: "BTC"}}

	result := a.ExecuteWithRisk(context.Background(), domain.Decision{Operation: domain.OpClose, Symbol: "BTC"}, 0, live)

	assert.Equal(t, "error", result.Status)
	assert.Equal(t, "venue unreachable", result.Reason)
}

func TestExecuteWithRisk_OpenRejectedByRiskAdmission(t *testing.T) {
	rg := &fakeRiskGate{admission: risk.AdmissionResult{Allowed: false, Reason: "circuit breaker active"}}
	a := New(&fakeVenue{}, rg)

	result := a.ExecuteWithRisk(context.Background(), domain.Decision{Operation: domain.OpOpen, Symbol: "ETH"}, 1000, nil)

	assert.Equal(t, "rejected", result.Status)
	assert.Equal(t, "circuit breaker active", result.Reason)
}

func TestExecuteWithRisk_OpenFillsAndRegistersPosition(t *testing.T) {
	rg := &fakeRiskGate{
		admission: risk.AdmissionResult{Allowed: true},
		sizing:    risk.SizingResult{EffectivePortion: 0.1},
	}
	v := &fakeVenue{
		roundSize:  0.5,
		mids:       map[string]float64{"ETH": 2000},
		openResult: venue.OrderResult{Status: "filled", OrderID: "3", AvgPx: 2001},
	}
	a := New(v, rg)

	result := a.ExecuteWithRisk(context.Background(), domain.Decision{
		Operation: domain.OpOpen, Symbol: "ETH", Direction: domain.DirectionLong, Leverage: 2, TargetPortionOfBalance: 0.1,
	}, 1000, nil)

	require.Equal(t, "filled", result.Status)
	require.Len(t, rg.registered, 1)
	assert.Equal(t, "ETH", rg.registered[0].Symbol)
}

func TestExecuteWithRisk_OpenErrorsWithoutMarkPrice(t *testing.T) {
	rg := &fakeRiskGate{admission: risk.AdmissionResult{Allowed: true}}
	v := &fakeVenue{mids: map[string]float64{}}
	a := New(v, rg)

	result := a.ExecuteWithRisk(context.Background(), domain.Decision{
		Operation: domain.OpOpen, Symbol: "SOL", Direction: domain.DirectionLong,
	}, 1000, nil)

	assert.Equal(t, "error", result.Status)
	assert.Equal(t, "no mark price available", result.Reason)
}

func TestExecuteWithRisk_UnknownOperationErrors(t *testing.T) {
	a := New(&fakeVenue{}, &fakeRiskGate{})

	result := a.ExecuteWithRisk(context.Background(), domain.Decision{Operation: "bogus"}, 0, nil)

	assert.Equal(t, "error", result.Status)
}

func TestFindLivePosition_FallsBackToSubstringMatch(t *testing.T) {
	live := []domain.Position{{Symbol: "kBTC"}}

	pos, found := findLivePosition("BTC", live)

	require.True(t, found)
	assert.Equal(t, "kBTC", pos.Symbol)
}

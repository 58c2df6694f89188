package orchestrator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appcontext "github.com/lancilotto/hl-agent/internal/context"
	"github.com/lancilotto/hl-agent/internal/domain"
	"github.com/lancilotto/hl-agent/internal/execution"
	"github.com/lancilotto/hl-agent/internal/llm"
	"github.com/lancilotto/hl-agent/internal/logging"
	"github.com/lancilotto/hl-agent/internal/persistence"
	"github.com/lancilotto/hl-agent/internal/risk"
	"github.com/lancilotto/hl-agent/internal/trend"
	"github.com/lancilotto/hl-agent/internal/venue"
)

type fakeVenue struct {
	state    venue.AccountState
	stateErr error
	spot     float64
	mids     map[string]float64
}

func (f *fakeVenue) GetUserState(ctx context.Context) (venue.AccountState, error) { return f.state, f.stateErr }
func (f *fakeVenue) GetSpotUserState(ctx context.Context) (float64, error)        { return f.spot, nil }
func (f *fakeVenue) GetAllMids(ctx context.Context) (map[string]float64, error)   { return f.mids, nil }
func (f *fakeVenue) GetOHLCV(ctx context.Context, symbol, interval string, limit int) ([]venue.Candle, error) {
	return nil, nil
}

type fakeScreener struct {
	rebalance bool
	batch     []domain.CoinScore
}

func (f *fakeScreener) ShouldRebalance() bool                                    { return f.rebalance }
func (f *fakeScreener) RunFullRebalance(ctx context.Context) domain.ScreeningResult { return domain.ScreeningResult{} }
func (f *fakeScreener) RunDailyUpdate(ctx context.Context) domain.ScreeningResult   { return domain.ScreeningResult{} }
func (f *fakeScreener) NextScoutingBatch(batchSize int, held map[string]bool) []domain.CoinScore {
	return f.batch
}

type fakeTrend struct{ confirmation trend.Confirmation }

func (f *fakeTrend) Confirm(symbol string, daily, hourly, m15 []venue.Candle) trend.Confirmation {
	return f.confirmation
}

type fakeLLM struct {
	decide func(req llm.Request) domain.Decision
}

func (f *fakeLLM) Decide(ctx context.Context, req llm.Request) llm.Result {
	return llm.Result{Decision: f.decide(req)}
}

type fakeRisk struct {
	positions   []domain.Position
	closeEvents []risk.CloseEvent
	status      risk.Status
	removed     []string
	recorded    []float64
}

func (f *fakeRisk) CheckPositions(currentPrices map[string]float64) []risk.CloseEvent { return f.closeEvents }
func (f *fakeRisk) RecordTradeResult(pnl float64)                                     { f.recorded = append(f.recorded, pnl) }
func (f *fakeRisk) RemovePosition(symbol string)                                      { f.removed = append(f.removed, symbol) }
func (f *fakeRisk) Positions() []domain.Position                                      { return f.positions }
func (f *fakeRisk) GetStatus() risk.Status                                            { return f.status }

type fakeExecutor struct {
	calls  []domain.Decision
	result execution.Result
}

func (f *fakeExecutor) ExecuteWithRisk(ctx context.Context, decision domain.Decision, balanceUSD float64, livePositions []domain.Position) execution.Result {
	f.calls = append(f.calls, decision)
	return f.result
}

type fakeReconciler struct{ syncCalls int }

func (f *fakeReconciler) Sync(ctx context.Context) { f.syncCalls++ }

type fakeStore struct {
	snapshots int
	contexts  int
	ops       []domain.BotOperation
}

func (f *fakeStore) SaveAccountSnapshot(ctx context.Context, balanceUSD, perpsBalanceUSD, spotBalanceUSD float64, positions []domain.Position, markPrices map[string]float64) (string, error) {
	f.snapshots++
	return "snap-1", nil
}
func (f *fakeStore) SaveContext(ctx context.Context, systemPrompt string) (string, error) {
	f.contexts++
	return "ctx-1", nil
}
func (f *fakeStore) SaveContextSatellites(ctx context.Context, contextID string, news, forecast []persistence.ContextPart, sentiment *persistence.ContextPart) {
}
func (f *fakeStore) SaveIndicatorsContext(ctx context.Context, contextID, symbol string, payload interface{}) {
}
func (f *fakeStore) SaveBotOperation(ctx context.Context, op domain.BotOperation, contextID string) error {
	f.ops = append(f.ops, op)
	return nil
}

func testLog() *logging.Logger { return logging.WithComponent("orchestrator-test") }

func newHarness(t *testing.T) (*Orchestrator, *fakeVenue, *fakeScreener, *fakeTrend, *fakeRisk, *fakeExecutor, *fakeReconciler, *fakeStore) {
	t.Helper()
	v := &fakeVenue{state: venue.AccountState{CrossAccountValue: 1000}, mids: map[string]float64{}}
	sc := &fakeScreener{}
	te := &fakeTrend{confirmation: trend.Confirmation{ShouldTrade: true}}
	rg := &fakeRisk{}
	ex := &fakeExecutor{result: execution.Result{Status: "filled"}}
	rec := &fakeReconciler{}
	st := &fakeStore{}
	agg := appcontext.New(nil, nil, nil, nil, testLog())
	o := New(v, sc, te, agg, nil, &fakeLLM{decide: func(req llm.Request) domain.Decision {
		return domain.Decision{Operation: domain.OpHold, Symbol: req.Ticker}
	}}, rg, ex, rec, st, Config{}, testLog())
	return o, v, sc, te, rg, ex, rec, st
}

func TestRunCycle_EmptyUniverseEndsCycleImmediately(t *testing.T) {
	o, _, _, _, _, ex, rec, st := newHarness(t)

	o.RunCycle(context.Background())

	assert.Empty(t, ex.calls)
	assert.Zero(t, rec.syncCalls)
	assert.Zero(t, st.snapshots)
}

func TestRunCycle_ManagePhaseRejectsOpenDecision(t *testing.T) {
	o, _, _, _, rg, ex, _, st := newHarness(t)
	rg.positions = []domain.Position{{Symbol: "BTC", Direction: domain.DirectionLong, Size: 1, EntryPrice: 100}}
	o.llm = &fakeLLM{decide: func(req llm.Request) domain.Decision {
		return domain.Decision{Operation: domain.OpOpen, Symbol: "BTC", Direction: domain.DirectionLong}
	}}

	o.RunCycle(context.Background())

	assert.Empty(t, ex.calls, "manage phase must never execute an open decision")
	require.Len(t, st.ops, 1)
	assert.Equal(t, domain.OpHold, st.ops[0].Decision.Operation)
}

func TestRunCycle_ManagePhaseExecutesCloseDecision(t *testing.T) {
	o, _, _, _, rg, ex, _, _ := newHarness(t)
	rg.positions = []domain.Position{{Symbol: "BTC", Direction: domain.DirectionLong, Size: 1, EntryPrice: 100}}
	o.llm = &fakeLLM{decide: func(req llm.Request) domain.Decision {
		return domain.Decision{Operation: domain.OpClose, Symbol: "BTC"}
	}}

	o.RunCycle(context.Background())

	require.Len(t, ex.calls, 1)
	assert.Equal(t, domain.OpClose, ex.calls[0].Operation)
}

func TestRunCycle_ScoutPhaseRejectsCloseDecision(t *testing.T) {
	o, _, sc, _, _, ex, _, st := newHarness(t)
	sc.batch = []domain.CoinScore{{Symbol: "ETH"}}
	o.llm = &fakeLLM{decide: func(req llm.Request) domain.Decision {
		return domain.Decision{Operation: domain.OpClose, Symbol: "ETH"}
	}}

	o.RunCycle(context.Background())

	assert.Empty(t, ex.calls, "scout phase must never execute a close decision")
	require.Len(t, st.ops, 1)
	assert.Equal(t, domain.OpHold, st.ops[0].Decision.Operation)
}

func TestRunCycle_ScoutPhaseRejectsLowConfidence(t *testing.T) {
	o, _, sc, _, _, ex, _, _ := newHarness(t)
	sc.batch = []domain.CoinScore{{Symbol: "ETH"}}
	o.cfg.MinConfidence = 0.6
	o.llm = &fakeLLM{decide: func(req llm.Request) domain.Decision {
		return domain.Decision{Operation: domain.OpOpen, Symbol: "ETH", Direction: domain.DirectionLong, Confidence: 0.2}
	}}

	o.RunCycle(context.Background())

	assert.Empty(t, ex.calls)
}

func TestRunCycle_ScoutPhaseRejectsWhenTrendDisagrees(t *testing.T) {
	o, _, sc, te, _, ex, _, _ := newHarness(t)
	sc.batch = []domain.CoinScore{{Symbol: "ETH"}}
	o.cfg.TrendConfirmation = true
	te.confirmation = trend.Confirmation{ShouldTrade: false}
	o.llm = &fakeLLM{decide: func(req llm.Request) domain.Decision {
		return domain.Decision{Operation: domain.OpOpen, Symbol: "ETH", Direction: domain.DirectionLong, Confidence: 0.9}
	}}

	o.RunCycle(context.Background())

	assert.Empty(t, ex.calls)
}

func TestRunCycle_ScoutPhaseExecutesWhenAllGatesPass(t *testing.T) {
	o, _, sc, te, _, ex, _, _ := newHarness(t)
	sc.batch = []domain.CoinScore{{Symbol: "ETH"}}
	o.cfg.TrendConfirmation = true
	te.confirmation = trend.Confirmation{ShouldTrade: true}
	o.llm = &fakeLLM{decide: func(req llm.Request) domain.Decision {
		return domain.Decision{Operation: domain.OpOpen, Symbol: "ETH", Direction: domain.DirectionLong, Confidence: 0.9}
	}}

	o.RunCycle(context.Background())

	require.Len(t, ex.calls, 1)
	assert.Equal(t, domain.OpOpen, ex.calls[0].Operation)
}

func TestRunCycle_ScoutPhaseRejectsPoorEntryWhenSkipEnabled(t *testing.T) {
	o, _, sc, te, _, ex, _, _ := newHarness(t)
	sc.batch = []domain.CoinScore{{Symbol: "ETH"}}
	o.cfg.TrendConfirmation = true
	o.cfg.SkipPoorEntry = true
	te.confirmation = trend.Confirmation{ShouldTrade: true, EntryQuality: trend.EntryWait}
	o.llm = &fakeLLM{decide: func(req llm.Request) domain.Decision {
		return domain.Decision{Operation: domain.OpOpen, Symbol: "ETH", Direction: domain.DirectionLong, Confidence: 0.9}
	}}

	o.RunCycle(context.Background())

	assert.Empty(t, ex.calls)
}

func TestRunCycle_ScoutPhaseAllowsPoorEntryWhenSkipDisabled(t *testing.T) {
	o, _, sc, te, _, ex, _, _ := newHarness(t)
	sc.batch = []domain.CoinScore{{Symbol: "ETH"}}
	o.cfg.TrendConfirmation = true
	o.cfg.SkipPoorEntry = false
	te.confirmation = trend.Confirmation{ShouldTrade: true, EntryQuality: trend.EntryWait}
	o.llm = &fakeLLM{decide: func(req llm.Request) domain.Decision {
		return domain.Decision{Operation: domain.OpOpen, Symbol: "ETH", Direction: domain.DirectionLong, Confidence: 0.9}
	}}

	o.RunCycle(context.Background())

	require.Len(t, ex.calls, 1)
}

func TestRunCycle_ScoutPhaseRejectsDecisionOutsideBatch(t *testing.T) {
	o, _, sc, _, _, ex, _, _ := newHarness(t)
	sc.batch = []domain.CoinScore{{Symbol: "ETH"}}
	o.llm = &fakeLLM{decide: func(req llm.Request) domain.Decision {
		return domain.Decision{Operation: domain.OpOpen, Symbol: "SOL", Direction: domain.DirectionLong, Confidence: 0.9}
	}}

	o.RunCycle(context.Background())

	assert.Empty(t, ex.calls)
}

func TestRunCycle_AccountSyncFailureEndsCycleBeforeLLMCalls(t *testing.T) {
	o, v, sc, _, _, _, rec, st := newHarness(t)
	sc.batch = []domain.CoinScore{{Symbol: "ETH"}}
	v.stateErr = assertErr("venue unreachable")
	llmCalls := 0
	o.llm = &fakeLLM{decide: func(req llm.Request) domain.Decision {
		llmCalls++
		return domain.Decision{Operation: domain.OpHold}
	}}

	o.RunCycle(context.Background())

	assert.Zero(t, rec.syncCalls, "account state fetch fails before reconciliation runs")
	assert.Zero(t, st.snapshots)
	assert.Zero(t, llmCalls, "no LLM call is made after account sync fails")
	assert.Empty(t, st.ops)
}

func TestRiskSweep_ClosesTriggeredPositionsAndDropsFromLiveSet(t *testing.T) {
	o, _, _, _, rg, ex, _, _ := newHarness(t)
	live := []domain.Position{{Symbol: "BTC", Direction: domain.DirectionLong, EntryPrice: 50000, Size: 0.01}}
	rg.closeEvents = []risk.CloseEvent{{Symbol: "BTC", Reason: domain.ExitStopLoss, PnL: -10}}

	remaining := o.riskSweep(context.Background(), testLog(), live, map[string]float64{"BTC": 48900})

	assert.Empty(t, remaining)
	require.Len(t, ex.calls, 1)
	assert.Equal(t, domain.OpClose, ex.calls[0].Operation)
	assert.Equal(t, []float64{-10}, rg.recorded)
}

func TestReconcileGhostTrades_RemovesPositionAbsentFromVenue(t *testing.T) {
	o, _, _, _, rg, _, _, _ := newHarness(t)
	rg.positions = []domain.Position{{Symbol: "DOGE"}}

	o.reconcileGhostTrades(nil, testLog())

	assert.Equal(t, []string{"DOGE"}, rg.removed)
}

type assertErr string

func (e assertErr) Error() string { return string(e) }

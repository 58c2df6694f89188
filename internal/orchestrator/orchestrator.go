// Package orchestrator binds every other package into the cycle state
// machine: SelectUniverse, FetchContext, AccountSync, RiskSweep, Manage
// phase, Scout phase. Ordering within a cycle is strictly serial
// (AccountSync -> RiskSweep -> Manage -> Scout); the LLM client is never
// called concurrently. A phase that fails logs and ends the cycle; the
// next cycle starts fresh. Unexpected panics are left to the scheduler's
// own recovery around the whole cycle function.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	appcontext "github.com/lancilotto/hl-agent/internal/context"
	"github.com/lancilotto/hl-agent/internal/domain"
	"github.com/lancilotto/hl-agent/internal/execution"
	"github.com/lancilotto/hl-agent/internal/indicators"
	"github.com/lancilotto/hl-agent/internal/llm"
	"github.com/lancilotto/hl-agent/internal/logging"
	"github.com/lancilotto/hl-agent/internal/persistence"
	"github.com/lancilotto/hl-agent/internal/risk"
	"github.com/lancilotto/hl-agent/internal/trend"
	"github.com/lancilotto/hl-agent/internal/venue"
)

// Venue is the subset of *venue.Client the orchestrator drives directly;
// order placement itself goes through Executor.
type Venue interface {
	GetUserState(ctx context.Context) (venue.AccountState, error)
	GetSpotUserState(ctx context.Context) (float64, error)
	GetAllMids(ctx context.Context) (map[string]float64, error)
	GetOHLCV(ctx context.Context, symbol, interval string, limit int) ([]venue.Candle, error)
}

// Screener is the subset of *screener.Screener the orchestrator drives.
type Screener interface {
	ShouldRebalance() bool
	RunFullRebalance(ctx context.Context) domain.ScreeningResult
	RunDailyUpdate(ctx context.Context) domain.ScreeningResult
	NextScoutingBatch(batchSize int, held map[string]bool) []domain.CoinScore
}

// TrendEngine is the subset of *trend.Engine the orchestrator drives.
type TrendEngine interface {
	Confirm(symbol string, daily, hourly, m15 []venue.Candle) trend.Confirmation
}

// LLMClient is the subset of *llm.Client the orchestrator drives.
type LLMClient interface {
	Decide(ctx context.Context, req llm.Request) llm.Result
}

// RiskGate is the subset of *risk.Manager the orchestrator drives directly
// (admission control and sizing live behind Executor instead).
type RiskGate interface {
	CheckPositions(currentPrices map[string]float64) []risk.CloseEvent
	RecordTradeResult(pnl float64)
	RemovePosition(symbol string)
	Positions() []domain.Position
	GetStatus() risk.Status
}

// Executor is the subset of *execution.Adapter the orchestrator drives.
type Executor interface {
	ExecuteWithRisk(ctx context.Context, decision domain.Decision, balanceUSD float64, livePositions []domain.Position) execution.Result
}

// Reconciler is the subset of *reconcile.Reconciler the orchestrator drives.
type Reconciler interface {
	Sync(ctx context.Context)
}

// Store is the subset of *persistence.DB the orchestrator writes to.
type Store interface {
	SaveAccountSnapshot(ctx context.Context, balanceUSD, perpsBalanceUSD, spotBalanceUSD float64, positions []domain.Position, markPrices map[string]float64) (string, error)
	SaveContext(ctx context.Context, systemPrompt string) (string, error)
	SaveContextSatellites(ctx context.Context, contextID string, news, forecast []persistence.ContextPart, sentiment *persistence.ContextPart)
	SaveIndicatorsContext(ctx context.Context, contextID, symbol string, payload interface{})
	SaveBotOperation(ctx context.Context, op domain.BotOperation, contextID string) error
}

// Config holds orchestrator tuning values, all with sane defaults applied
// by New.
type Config struct {
	ScoutBatchSize    int
	MinConfidence     float64
	TrendConfirmation bool
	SkipPoorEntry     bool
	PrimaryModel      string
	DailyCandles      int
	HourlyCandles     int
	M15Candles        int
}

func (c *Config) applyDefaults() {
	if c.ScoutBatchSize <= 0 {
		c.ScoutBatchSize = 5
	}
	if c.MinConfidence <= 0 {
		c.MinConfidence = 0.60
	}
	if c.DailyCandles <= 0 {
		c.DailyCandles = 60
	}
	if c.HourlyCandles <= 0 {
		c.HourlyCandles = 200
	}
	if c.M15Candles <= 0 {
		c.M15Candles = 200
	}
}

// Orchestrator runs one trading cycle at a time; the scheduler guarantees
// RunCycle is never invoked concurrently with itself.
type Orchestrator struct {
	venue      Venue
	screener   Screener
	trend      TrendEngine
	aggregator *appcontext.Aggregator
	marketData indicators.OIFundingSource
	llm        LLMClient
	risk       RiskGate
	exec       Executor
	reconciler Reconciler
	store      Store
	cfg        Config
	log        *logging.Logger
}

// New builds an Orchestrator from its collaborators. marketData may be nil,
// in which case Analyze falls back to its documented neutral placeholder.
func New(v Venue, sc Screener, te TrendEngine, agg *appcontext.Aggregator, marketData indicators.OIFundingSource, lc LLMClient, rg RiskGate, ex Executor, rec Reconciler, store Store, cfg Config, log *logging.Logger) *Orchestrator {
	cfg.applyDefaults()
	return &Orchestrator{
		venue: v, screener: sc, trend: te, aggregator: agg, marketData: marketData, llm: lc,
		risk: rg, exec: ex, reconciler: rec, store: store, cfg: cfg, log: log,
	}
}

// candleSet bundles the three timeframes Trend Confirmation and the
// forecast context producer need for one symbol.
type candleSet struct {
	Daily, Hourly, M15 []venue.Candle
}

// RunCycle executes one full pass of the state machine. It is shaped as a
// scheduler.CycleFunc.
func (o *Orchestrator) RunCycle(ctx context.Context) {
	cycleID := newCycleID()
	log := o.log.WithField("cycle_id", cycleID)
	log.Info("orchestrator: cycle starting")

	managed, scout, ok := o.selectUniverse(ctx, log)
	if !ok {
		log.Info("orchestrator: empty universe, ending cycle")
		return
	}

	union := unionSymbols(managed, scout)
	candles := o.fetchCandles(ctx, union)
	snapshots := o.aggregator.FetchContext(ctx, union, func(sym string) []venue.Candle {
		return candles[sym].Hourly
	})
	o.attachIndicators(ctx, union, candles, snapshots)

	account, balance, markPrices, ok := o.accountSync(ctx, log)
	if !ok {
		log.Error("orchestrator: account sync failed, ending cycle")
		return
	}

	livePositions := o.riskSweep(ctx, log, account.Positions, markPrices)

	o.managePhase(ctx, log, cycleID, managed, snapshots, balance, livePositions)
	o.scoutPhase(ctx, log, cycleID, scout, snapshots, candles, balance, livePositions)

	log.Info("orchestrator: cycle complete")
}

// HealthCheck reports risk status, suitable as the scheduler's
// HealthCheckFunc.
func (o *Orchestrator) HealthCheck(ctx context.Context) {
	status := o.risk.GetStatus()
	o.log.WithFields(map[string]interface{}{
		"open_positions":  status.OpenPositionCount,
		"daily_pnl":       status.DailyPnL,
		"circuit_breaker": status.CircuitBreakerActive,
	}).Info("orchestrator: health check")
}

// selectUniverse runs the weekly-rebalance/daily-update split, then derives
// tickers_manage from the risk registry and tickers_scout from the
// screener's rotation.
func (o *Orchestrator) selectUniverse(ctx context.Context, log *logging.Logger) (managed, scout []string, ok bool) {
	if o.screener.ShouldRebalance() {
		o.screener.RunFullRebalance(ctx)
	} else {
		o.screener.RunDailyUpdate(ctx)
	}

	held := map[string]bool{}
	for _, p := range o.risk.Positions() {
		held[p.Symbol] = true
		managed = append(managed, p.Symbol)
	}

	for _, c := range o.screener.NextScoutingBatch(o.cfg.ScoutBatchSize, held) {
		scout = append(scout, c.Symbol)
	}

	if len(managed) == 0 && len(scout) == 0 {
		return nil, nil, false
	}
	return managed, scout, true
}

// fetchCandles gathers daily/hourly/15m candles for every symbol in union
// concurrently; a provider failure degrades that symbol's series to empty,
// which Trend Confirmation already treats as neutral.
func (o *Orchestrator) fetchCandles(ctx context.Context, symbols []string) map[string]candleSet {
	out := make(map[string]candleSet, len(symbols))
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for _, sym := range symbols {
		sym := sym
		g.Go(func() error {
			daily, _ := o.venue.GetOHLCV(gctx, sym, "1d", o.cfg.DailyCandles)
			hourly, _ := o.venue.GetOHLCV(gctx, sym, "1h", o.cfg.HourlyCandles)
			m15, _ := o.venue.GetOHLCV(gctx, sym, "15m", o.cfg.M15Candles)
			mu.Lock()
			out[sym] = candleSet{Daily: daily, Hourly: hourly, M15: m15}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// attachIndicators computes the full indicator payload for each symbol from
// its 15m/daily candle sets and stitches the rendered result into the
// context snapshot FetchContext already built, so it rides along in the
// same prompt without FetchContext needing to know about candles itself.
func (o *Orchestrator) attachIndicators(ctx context.Context, symbols []string, candles map[string]candleSet, snapshots map[string]appcontext.Snapshot) {
	for _, sym := range symbols {
		cs := candles[sym]
		analysis := indicators.Analyze(ctx, sym, cs.M15, cs.Daily, o.marketData)
		snap := snapshots[sym]
		snap.Indicators = appcontext.Part{Source: "indicators", Text: renderIndicators(analysis), Payload: analysis}
		snapshots[sym] = snap
	}
}

// renderIndicators flattens an indicators.Analysis into the short prose
// block embedded under the prompt's Indicators section.
func renderIndicators(a indicators.Analysis) string {
	return fmt.Sprintf(
		"Price %.4f | EMA20 %.4f | MACD %.4f | RSI7 %.2f\n"+
			"Longer-term: EMA20 %.4f, EMA50 %.4f, ATR3 %.4f, ATR14 %.4f, volume %.2f (avg %.2f)\n"+
			"Pivot: P %.4f R1 %.4f S1 %.4f\n"+
			"Open interest: latest %.4f, avg %.4f | Funding rate: %.6f",
		a.Price, a.EMA20, a.MACD, a.RSI7,
		a.LongerTerm.EMA20Current, a.LongerTerm.EMA50Current, a.LongerTerm.ATR3Current, a.LongerTerm.ATR14Current,
		a.LongerTerm.VolumeCurrent, a.LongerTerm.VolumeAverage,
		a.PivotPoints.PP, a.PivotPoints.R1, a.PivotPoints.S1,
		a.OpenInterestLatest, a.OpenInterestAvg, a.FundingRate,
	)
}

// accountSync fetches account state, persists a snapshot, and removes
// ghost trades (symbols the Risk Manager still tracks but the venue no
// longer reports as open).
func (o *Orchestrator) accountSync(ctx context.Context, log *logging.Logger) (venue.AccountState, float64, map[string]float64, bool) {
	account, err := o.venue.GetUserState(ctx)
	if err != nil {
		log.WithError(err).Error("orchestrator: account state fetch failed")
		return venue.AccountState{}, 0, nil, false
	}
	if spot, err := o.venue.GetSpotUserState(ctx); err == nil {
		account.SpotBalanceUSD = spot
	} else {
		log.WithError(err).Warn("orchestrator: spot balance fetch failed")
	}
	balance := account.Balance()

	mids, err := o.venue.GetAllMids(ctx)
	if err != nil {
		log.WithError(err).Warn("orchestrator: mark price fetch failed")
		mids = map[string]float64{}
	}

	o.reconciler.Sync(ctx)
	o.reconcileGhostTrades(account.Positions, log)

	if _, err := o.store.SaveAccountSnapshot(ctx, balance, account.MarginAccountValue, account.SpotBalanceUSD, account.Positions, mids); err != nil {
		log.WithError(err).Warn("orchestrator: account snapshot persist failed")
	}

	return account, balance, mids, true
}

// reconcileGhostTrades drops any internally tracked position absent from
// the venue's live position set.
func (o *Orchestrator) reconcileGhostTrades(livePositions []domain.Position, log *logging.Logger) {
	live := make(map[string]bool, len(livePositions))
	for _, p := range livePositions {
		live[p.Symbol] = true
	}
	for _, p := range o.risk.Positions() {
		if !live[p.Symbol] {
			log.Warn("orchestrator: ghost trade removed", "symbol", p.Symbol)
			o.risk.RemovePosition(p.Symbol)
		}
	}
}

// riskSweep evaluates every tracked position against markPrices and closes
// any that crossed their stop-loss or take-profit line, returning the live
// position set with those closures removed.
func (o *Orchestrator) riskSweep(ctx context.Context, log *logging.Logger, livePositions []domain.Position, markPrices map[string]float64) []domain.Position {
	events := o.risk.CheckPositions(markPrices)
	closed := make(map[string]bool, len(events))
	for _, ev := range events {
		log.WithFields(map[string]interface{}{
			"symbol": ev.Symbol, "reason": string(ev.Reason), "pnl": ev.PnL,
		}).Warn("orchestrator: risk exit triggered")

		result := o.exec.ExecuteWithRisk(ctx, domain.Decision{Operation: domain.OpClose, Symbol: ev.Symbol}, 0, livePositions)
		o.risk.RecordTradeResult(ev.PnL)
		if result.Status == "filled" || result.Status == "skipped" {
			closed[ev.Symbol] = true
		}
	}

	remaining := make([]domain.Position, 0, len(livePositions))
	for _, p := range livePositions {
		if !closed[p.Symbol] {
			remaining = append(remaining, p)
		}
	}
	return remaining
}

// managePhase asks the LLM close-or-hold questions about held symbols
// only, rejecting any open decision it returns.
func (o *Orchestrator) managePhase(ctx context.Context, log *logging.Logger, cycleID string, managed []string, snapshots map[string]appcontext.Snapshot, balance float64, livePositions []domain.Position) {
	if len(managed) == 0 {
		return
	}
	const systemNote = "CLOSE or HOLD only; do NOT open."

	for _, sym := range managed {
		snap := snapshots[sym]
		prompt := o.buildPrompt(sym, systemNote, snap, livePositions)
		contextID := o.saveContext(ctx, prompt, snap)

		result := o.llm.Decide(ctx, llm.Request{Prompt: prompt, Ticker: sym, CycleID: cycleID, PrimaryModel: o.cfg.PrimaryModel})
		decision := result.Decision

		if decision.Operation == domain.OpOpen {
			log.Warn("orchestrator: manage phase rejected open decision", "symbol", sym)
			decision.Operation = domain.OpHold
		}

		executionResult := "not_executed"
		if decision.Operation == domain.OpClose {
			executionResult = o.exec.ExecuteWithRisk(ctx, decision, balance, livePositions).Status
		}

		o.persistOperation(ctx, cycleID, decision, prompt, snap, contextID, executionResult)
	}
}

// scoutPhase asks the LLM open-opportunity questions about the scout batch
// only, rejecting any close decision it returns and gating any open
// decision through confidence, batch membership, and (if enabled) Trend
// Confirmation before executing.
func (o *Orchestrator) scoutPhase(ctx context.Context, log *logging.Logger, cycleID string, scout []string, snapshots map[string]appcontext.Snapshot, candles map[string]candleSet, balance float64, livePositions []domain.Position) {
	if len(scout) == 0 {
		return
	}
	const systemNote = "Look for OPEN opportunities; ignore held positions."
	scoutSet := toSet(scout)

	for _, sym := range scout {
		snap := snapshots[sym]
		prompt := o.buildPrompt(sym, systemNote, snap, livePositions)
		contextID := o.saveContext(ctx, prompt, snap)

		result := o.llm.Decide(ctx, llm.Request{Prompt: prompt, Ticker: sym, CycleID: cycleID, PrimaryModel: o.cfg.PrimaryModel})
		decision := result.Decision

		if decision.Operation == domain.OpClose {
			log.Warn("orchestrator: scout phase rejected close decision", "symbol", sym)
			decision.Operation = domain.OpHold
		}

		executionResult := "not_executed"
		if decision.Operation == domain.OpOpen {
			executionResult = o.tryScoutOpen(ctx, log, decision, scoutSet, candles[sym], balance, livePositions)
		}

		o.persistOperation(ctx, cycleID, decision, prompt, snap, contextID, executionResult)
	}
}

func (o *Orchestrator) tryScoutOpen(ctx context.Context, log *logging.Logger, decision domain.Decision, scoutSet map[string]bool, candles candleSet, balance float64, livePositions []domain.Position) string {
	if !scoutSet[decision.Symbol] {
		log.Warn("orchestrator: scout decision outside batch, rejecting", "symbol", decision.Symbol)
		return "rejected_out_of_batch"
	}
	if decision.Confidence < o.cfg.MinConfidence {
		return "rejected_low_confidence"
	}
	if o.cfg.TrendConfirmation {
		confirmation := o.trend.Confirm(decision.Symbol, candles.Daily, candles.Hourly, candles.M15)
		if !confirmation.ShouldTrade {
			return "rejected_trend"
		}
		if o.cfg.SkipPoorEntry && confirmation.EntryQuality == trend.EntryWait {
			return "rejected_poor_entry"
		}
	}
	return o.exec.ExecuteWithRisk(ctx, decision, balance, livePositions).Status
}

// buildPrompt assembles the per-symbol prompt: phase instruction, the
// rendered context snapshot, and the live position if one exists.
func (o *Orchestrator) buildPrompt(symbol, systemNote string, snap appcontext.Snapshot, livePositions []domain.Position) string {
	var sb strings.Builder
	sb.WriteString(systemNote)
	sb.WriteString("\n\nSymbol: ")
	sb.WriteString(symbol)
	sb.WriteString("\n\n")
	sb.WriteString(snap.Render())
	if pos, ok := findPosition(symbol, livePositions); ok {
		fmt.Fprintf(&sb, "\nCurrent position: %s %.6f @ %.4f (SL %.4f, TP %.4f)\n",
			string(pos.Direction), pos.Size, pos.EntryPrice, pos.StopLossPrice, pos.TakeProfitPrice)
	}
	return sb.String()
}

func (o *Orchestrator) saveContext(ctx context.Context, systemPrompt string, snap appcontext.Snapshot) string {
	contextID, err := o.store.SaveContext(ctx, systemPrompt)
	if err != nil || contextID == "" {
		return contextID
	}
	news := []persistence.ContextPart{{Symbol: snap.Symbol, Text: snap.News.Text, Payload: snap.News.Payload}}
	forecast := []persistence.ContextPart{{Symbol: snap.Symbol, Text: snap.Forecast.Text, Payload: snap.Forecast.Payload}}
	sentiment := persistence.ContextPart{Text: snap.Sentiment.Text, Payload: snap.Sentiment.Payload}
	o.store.SaveContextSatellites(ctx, contextID, news, forecast, &sentiment)
	if snap.Indicators.Payload != nil {
		o.store.SaveIndicatorsContext(ctx, contextID, snap.Symbol, snap.Indicators.Payload)
	}
	return contextID
}

func (o *Orchestrator) persistOperation(ctx context.Context, cycleID string, decision domain.Decision, prompt string, snap appcontext.Snapshot, contextID, executionResult string) {
	op := domain.BotOperation{
		CreatedAt:       time.Now().UTC(),
		CycleID:         cycleID,
		Decision:        decision,
		Prompt:          prompt,
		ContextSnapshot: snap.Render(),
		ExecutionResult: executionResult,
	}
	if err := o.store.SaveBotOperation(ctx, op, contextID); err != nil {
		o.log.WithError(err).Warn("orchestrator: bot operation persist failed")
	}
}

func findPosition(symbol string, positions []domain.Position) (domain.Position, bool) {
	for _, p := range positions {
		if p.Symbol == symbol {
			return p, true
		}
	}
	return domain.Position{}, false
}

func toSet(items []string) map[string]bool {
	out := make(map[string]bool, len(items))
	for _, s := range items {
		out[s] = true
	}
	return out
}

func unionSymbols(a, b []string) []string {
	set := toSet(a)
	for _, s := range b {
		set[s] = true
	}
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	return out
}

// newCycleID returns a monotonic, UTC-timestamp-based cycle identifier
// (spec: "monotonic cycle_id (UTC timestamp-based)").
func newCycleID() string {
	return time.Now().UTC().Format("20060102T150405.000000Z")
}

package persistence

import (
	"context"
	"time"

	"github.com/lancilotto/hl-agent/internal/domain"
)

// AccountSnapshotView is one account_snapshots row plus the open_positions
// rows recorded alongside it, as read by the dashboard API.
type AccountSnapshotView struct {
	ID               string
	CreatedAt        time.Time
	BalanceUSD       float64
	PerpsBalanceUSD  float64
	SpotBalanceUSD   float64
	Positions        []OpenPositionView
}

// OpenPositionView is one open_positions row.
type OpenPositionView struct {
	Symbol     string
	Side       string
	Size       float64
	EntryPrice float64
	MarkPrice  float64
	PnLUSD     float64
	Leverage   int
}

// LatestAccountSnapshot reads the most recent account_snapshots row and its
// open positions. Returns the zero value, no error, when persistence is
// running without a pool or no snapshot has been written yet.
func (db *DB) LatestAccountSnapshot(ctx context.Context) (AccountSnapshotView, error) {
	if db.Pool == nil {
		return AccountSnapshotView{}, nil
	}

	var snap AccountSnapshotView
	err := db.Pool.QueryRow(ctx, `
		SELECT id, created_at, balance_usd, perps_balance_usd, spot_balance_usd
		FROM account_snapshots ORDER BY created_at DESC LIMIT 1`,
	).Scan(&snap.ID, &snap.CreatedAt, &snap.BalanceUSD, &snap.PerpsBalanceUSD, &snap.SpotBalanceUSD)
	if err != nil {
		return AccountSnapshotView{}, noRowsToNil(err)
	}

	rows, err := db.Pool.Query(ctx, `
		SELECT symbol, side, size, entry_price, mark_price, pnl_usd, leverage
		FROM open_positions WHERE snapshot_id = $1`, snap.ID,
	)
	if err != nil {
		if db.log != nil {
			db.log.WithError(err).Warn("persistence: open positions read failed")
		}
		return snap, nil
	}
	defer rows.Close()
	for rows.Next() {
		var p OpenPositionView
		if err := rows.Scan(&p.Symbol, &p.Side, &p.Size, &p.EntryPrice, &p.MarkPrice, &p.PnLUSD, &p.Leverage); err == nil {
			snap.Positions = append(snap.Positions, p)
		}
	}
	return snap, nil
}

// RecentBotOperations reads the most recent bot_operations rows, newest
// first, capped at limit.
func (db *DB) RecentBotOperations(ctx context.Context, limit int) ([]domain.BotOperation, error) {
	if db.Pool == nil {
		return nil, nil
	}

	rows, err := db.Pool.Query(ctx, `
		SELECT id, created_at, cycle_id, operation, symbol, direction,
			target_portion_of_balance, leverage, raw_payload
		FROM bot_operations ORDER BY created_at DESC LIMIT $1`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.BotOperation
	for rows.Next() {
		var op domain.BotOperation
		var direction *string
		var portion *float64
		var leverage *int
		if err := rows.Scan(&op.ID, &op.CreatedAt, &op.CycleID, &op.Decision.Operation, &op.Decision.Symbol,
			&direction, &portion, &leverage, &op.RawPayload); err != nil {
			continue
		}
		if direction != nil {
			op.Decision.Direction = domain.Direction(*direction)
		}
		if portion != nil {
			op.Decision.TargetPortionOfBalance = *portion
		}
		if leverage != nil {
			op.Decision.Leverage = *leverage
		}
		out = append(out, op)
	}
	return out, rows.Err()
}

// RecentTrades reads executed_trades rows, newest first, optionally
// filtered to one symbol (empty string means all symbols), capped at limit.
func (db *DB) RecentTrades(ctx context.Context, symbol string, limit int) ([]domain.TradeRecord, error) {
	if db.Pool == nil {
		return nil, nil
	}

	query := `
		SELECT id, bot_operation_id, symbol, direction, entry_price, exit_price, size, size_usd,
			leverage, stop_loss_price, take_profit_price, exit_reason, pnl_usd, pnl_pct,
			duration_minutes, fees_usd, status, hl_order_id, created_at, closed_at
		FROM executed_trades`
	args := []interface{}{}
	if symbol != "" {
		query += ` WHERE symbol = $1 ORDER BY created_at DESC LIMIT $2`
		args = append(args, symbol, limit)
	} else {
		query += ` ORDER BY created_at DESC LIMIT $1`
		args = append(args, limit)
	}

	rows, err := db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.TradeRecord
	for rows.Next() {
		rec, err := scanTradeRecord(rows)
		if err != nil {
			continue
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// ScreeningView is the most recent coin_screenings row plus its per-symbol
// scores.
type ScreeningView struct {
	ID            string
	CreatedAt     time.Time
	ScreeningType string
	SelectedCoins []string
	ExcludedCoins []string
	NextRebalance time.Time
	Scores        []CoinScreeningResult
}

// LatestScreening reads the most recent coin_screenings row and its scores.
func (db *DB) LatestScreening(ctx context.Context) (ScreeningView, error) {
	if db.Pool == nil {
		return ScreeningView{}, nil
	}

	var v ScreeningView
	var nextRebalance *time.Time
	err := db.Pool.QueryRow(ctx, `
		SELECT id, created_at, screening_type, selected_coins, excluded_coins, next_rebalance
		FROM coin_screenings ORDER BY created_at DESC LIMIT 1`,
	).Scan(&v.ID, &v.CreatedAt, &v.ScreeningType, &v.SelectedCoins, &v.ExcludedCoins, &nextRebalance)
	if err != nil {
		return ScreeningView{}, noRowsToNil(err)
	}
	if nextRebalance != nil {
		v.NextRebalance = *nextRebalance
	}

	rows, err := db.Pool.Query(ctx, `
		SELECT symbol, score FROM coin_scores_history WHERE screening_id = $1 ORDER BY score DESC`, v.ID,
	)
	if err != nil {
		if db.log != nil {
			db.log.WithError(err).Warn("persistence: coin scores read failed")
		}
		return v, nil
	}
	defer rows.Close()
	for rows.Next() {
		var s CoinScreeningResult
		if err := rows.Scan(&s.Symbol, &s.Score); err == nil {
			v.Scores = append(v.Scores, s)
		}
	}
	return v, nil
}

// UsageSummary totals llm_usage rows since `since`.
type UsageSummary struct {
	Calls        int
	TotalTokens  int64
	TotalCostUSD float64
}

// UsageSince sums llm_usage rows created since the given time.
func (db *DB) UsageSince(ctx context.Context, since time.Time) (UsageSummary, error) {
	if db.Pool == nil {
		return UsageSummary{}, nil
	}

	var s UsageSummary
	err := db.Pool.QueryRow(ctx, `
		SELECT COUNT(*), COALESCE(SUM(total_tokens), 0), COALESCE(SUM(total_cost_usd), 0)
		FROM llm_usage WHERE timestamp >= $1`, since,
	).Scan(&s.Calls, &s.TotalTokens, &s.TotalCostUSD)
	return s, err
}

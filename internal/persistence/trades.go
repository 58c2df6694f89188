package persistence

import (
	"context"
	"time"

	"github.com/lancilotto/hl-agent/internal/domain"
)

// FindOpenNear implements reconcile.Store: dedup an open fill by venue
// order id, or failing that, by (symbol, time window).
func (db *DB) FindOpenNear(ctx context.Context, symbol, orderID string, at time.Time, window time.Duration) (*domain.TradeRecord, error) {
	if db.Pool == nil {
		return db.findOpenNearMemory(symbol, orderID, at, window), nil
	}

	row := db.Pool.QueryRow(ctx, `
		SELECT id, bot_operation_id, symbol, direction, entry_price, exit_price, size, size_usd,
			leverage, stop_loss_price, take_profit_price, exit_reason, pnl_usd, pnl_pct,
			duration_minutes, fees_usd, status, hl_order_id, created_at, closed_at
		FROM executed_trades
		WHERE status = 'open' AND (
			hl_order_id = $1 OR (symbol = $2 AND ABS(EXTRACT(EPOCH FROM created_at) - EXTRACT(EPOCH FROM $3::timestamp)) < $4)
		)
		ORDER BY created_at DESC LIMIT 1`,
		orderID, symbol, at, window.Seconds(),
	)
	rec, err := scanTradeRecord(row)
	if err != nil {
		return nil, noRowsToNil(err)
	}
	return rec, nil
}

// FindOpenBySymbolDirection implements reconcile.Store: the most recent
// open record for (symbol, direction), used to close against a fill.
func (db *DB) FindOpenBySymbolDirection(ctx context.Context, symbol string, direction domain.Direction) (*domain.TradeRecord, error) {
	if db.Pool == nil {
		return db.findOpenBySymbolDirectionMemory(symbol, direction), nil
	}

	row := db.Pool.QueryRow(ctx, `
		SELECT id, bot_operation_id, symbol, direction, entry_price, exit_price, size, size_usd,
			leverage, stop_loss_price, take_profit_price, exit_reason, pnl_usd, pnl_pct,
			duration_minutes, fees_usd, status, hl_order_id, created_at, closed_at
		FROM executed_trades
		WHERE symbol = $1 AND direction = $2 AND status = 'open'
		ORDER BY created_at DESC LIMIT 1`,
		symbol, string(direction),
	)
	rec, err := scanTradeRecord(row)
	if err != nil {
		return nil, noRowsToNil(err)
	}
	return rec, nil
}

// FindClosedNear implements reconcile.Store: dedup a synthetic close by
// (symbol, closed_at window).
func (db *DB) FindClosedNear(ctx context.Context, symbol string, at time.Time, window time.Duration) (*domain.TradeRecord, error) {
	if db.Pool == nil {
		return db.findClosedNearMemory(symbol, at, window), nil
	}

	row := db.Pool.QueryRow(ctx, `
		SELECT id, bot_operation_id, symbol, direction, entry_price, exit_price, size, size_usd,
			leverage, stop_loss_price, take_profit_price, exit_reason, pnl_usd, pnl_pct,
			duration_minutes, fees_usd, status, hl_order_id, created_at, closed_at
		FROM executed_trades
		WHERE symbol = $1 AND status = 'closed'
			AND ABS(EXTRACT(EPOCH FROM closed_at) - EXTRACT(EPOCH FROM $2::timestamp)) < $3
		ORDER BY closed_at DESC LIMIT 1`,
		symbol, at, window.Seconds(),
	)
	rec, err := scanTradeRecord(row)
	if err != nil {
		return nil, noRowsToNil(err)
	}
	return rec, nil
}

// InsertTrade implements reconcile.Store, appending an open or a fully
// synthesized closed record.
func (db *DB) InsertTrade(ctx context.Context, rec domain.TradeRecord) error {
	if db.Pool == nil {
		db.fallback.addTrade(rec)
		return nil
	}

	tradeType := "open"
	if rec.Status == domain.TradeStatusClosed {
		tradeType = "close"
	}

	_, err := db.Pool.Exec(ctx, `
		INSERT INTO executed_trades (
			trade_type, symbol, direction, entry_price, exit_price, size, size_usd,
			leverage, stop_loss_price, take_profit_price, exit_reason, pnl_usd, pnl_pct,
			duration_minutes, fees_usd, status, hl_order_id, created_at, closed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`,
		tradeType, rec.Symbol, string(rec.Direction), rec.EntryPrice, nullableFloat(rec.ExitPrice), rec.Size, rec.SizeUSD,
		rec.Leverage, nullableFloat(rec.StopLossPrice), nullableFloat(rec.TakeProfitPrice), string(rec.ExitReason),
		nullableFloat(rec.PnLUSD), nullableFloat(rec.PnLPct), nullableFloat(rec.DurationMinutes), rec.FeesUSD,
		string(rec.Status), rec.HLOrderID, rec.CreatedAt, nullableTime(rec.ClosedAt),
	)
	if err != nil {
		if db.log != nil {
			db.log.WithError(err).Warn("persistence: insert trade failed, buffering in memory")
		}
		db.fallback.addTrade(rec)
	}
	return nil
}

// CloseTrade implements reconcile.Store, updating the row matched by rec.ID.
func (db *DB) CloseTrade(ctx context.Context, rec domain.TradeRecord) error {
	if db.Pool == nil {
		db.fallback.addTrade(rec)
		return nil
	}

	_, err := db.Pool.Exec(ctx, `
		UPDATE executed_trades SET
			exit_price = $1, exit_reason = $2, pnl_usd = $3, pnl_pct = $4,
			duration_minutes = $5, fees_usd = $6, status = $7, closed_at = $8
		WHERE id = $9`,
		rec.ExitPrice, string(rec.ExitReason), rec.PnLUSD, rec.PnLPct,
		rec.DurationMinutes, rec.FeesUSD, string(rec.Status), rec.ClosedAt, rec.ID,
	)
	if err != nil {
		if db.log != nil {
			db.log.WithError(err).Warn("persistence: close trade failed, buffering in memory")
		}
		db.fallback.addTrade(rec)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTradeRecord(row rowScanner) (*domain.TradeRecord, error) {
	var rec domain.TradeRecord
	var botOpID *string
	var exitPrice, stopLoss, takeProfit, pnlUSD, pnlPct, duration *float64
	var closedAt *time.Time

	err := row.Scan(
		&rec.ID, &botOpID, &rec.Symbol, &rec.Direction, &rec.EntryPrice, &exitPrice, &rec.Size, &rec.SizeUSD,
		&rec.Leverage, &stopLoss, &takeProfit, &rec.ExitReason, &pnlUSD, &pnlPct,
		&duration, &rec.FeesUSD, &rec.Status, &rec.HLOrderID, &rec.CreatedAt, &closedAt,
	)
	if err != nil {
		return nil, err
	}
	if botOpID != nil {
		rec.BotOperationID = *botOpID
	}
	if exitPrice != nil {
		rec.ExitPrice = *exitPrice
	}
	if stopLoss != nil {
		rec.StopLossPrice = *stopLoss
	}
	if takeProfit != nil {
		rec.TakeProfitPrice = *takeProfit
	}
	if pnlUSD != nil {
		rec.PnLUSD = *pnlUSD
	}
	if pnlPct != nil {
		rec.PnLPct = *pnlPct
	}
	if duration != nil {
		rec.DurationMinutes = *duration
	}
	if closedAt != nil {
		rec.ClosedAt = *closedAt
	}
	return &rec, nil
}

func noRowsToNil(err error) error {
	if err.Error() == "no rows in result set" {
		return nil
	}
	return err
}

func nullableFloat(v float64) interface{} {
	if v == 0 {
		return nil
	}
	return v
}

func nullableTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func (db *DB) findOpenNearMemory(symbol, orderID string, at time.Time, window time.Duration) *domain.TradeRecord {
	db.fallback.mu.Lock()
	defer db.fallback.mu.Unlock()
	for i := len(db.fallback.trades) - 1; i >= 0; i-- {
		t := db.fallback.trades[i]
		if t.Status != domain.TradeStatusOpen {
			continue
		}
		if t.HLOrderID == orderID {
			return &t
		}
		if t.Symbol == symbol && absDuration(t.CreatedAt.Sub(at)) < window {
			return &t
		}
	}
	return nil
}

func (db *DB) findOpenBySymbolDirectionMemory(symbol string, direction domain.Direction) *domain.TradeRecord {
	db.fallback.mu.Lock()
	defer db.fallback.mu.Unlock()
	for i := len(db.fallback.trades) - 1; i >= 0; i-- {
		t := db.fallback.trades[i]
		if t.Symbol == symbol && t.Direction == direction && t.Status == domain.TradeStatusOpen {
			return &t
		}
	}
	return nil
}

func (db *DB) findClosedNearMemory(symbol string, at time.Time, window time.Duration) *domain.TradeRecord {
	db.fallback.mu.Lock()
	defer db.fallback.mu.Unlock()
	for i := len(db.fallback.trades) - 1; i >= 0; i-- {
		t := db.fallback.trades[i]
		if t.Status == domain.TradeStatusClosed && t.Symbol == symbol && absDuration(t.ClosedAt.Sub(at)) < window {
			return &t
		}
	}
	return nil
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

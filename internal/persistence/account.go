package persistence

import (
	"context"
	"encoding/json"
	"time"

	"github.com/lancilotto/hl-agent/internal/domain"
)

// SaveAccountSnapshot persists a balance snapshot plus every currently open
// position, returning the new snapshot's id (empty if running degraded).
func (db *DB) SaveAccountSnapshot(ctx context.Context, balanceUSD, perpsBalanceUSD, spotBalanceUSD float64, positions []domain.Position, markPrices map[string]float64) (string, error) {
	if db.Pool == nil {
		return "", nil
	}

	var snapshotID string
	err := db.Pool.QueryRow(ctx, `
		INSERT INTO account_snapshots (balance_usd, perps_balance_usd, spot_balance_usd)
		VALUES ($1, $2, $3) RETURNING id`,
		balanceUSD, perpsBalanceUSD, spotBalanceUSD,
	).Scan(&snapshotID)
	if err != nil {
		if db.log != nil {
			db.log.WithError(err).Warn("persistence: account snapshot insert failed")
		}
		return "", err
	}

	for _, p := range positions {
		mark := markPrices[p.Symbol]
		if _, err := db.Pool.Exec(ctx, `
			INSERT INTO open_positions (snapshot_id, symbol, side, size, entry_price, mark_price, pnl_usd, leverage)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			snapshotID, p.Symbol, string(p.Direction), p.Size, p.EntryPrice, mark, p.PnL(mark), p.Leverage,
		); err != nil && db.log != nil {
			db.log.WithError(err).WithSymbol(p.Symbol).Warn("persistence: open position insert failed")
		}
	}

	return snapshotID, nil
}

// SaveContext persists the rendered context snapshot as the ai_contexts
// row the bot operation and its satellites hang off of.
func (db *DB) SaveContext(ctx context.Context, systemPrompt string) (string, error) {
	if db.Pool == nil {
		return "", nil
	}
	var contextID string
	err := db.Pool.QueryRow(ctx, `
		INSERT INTO ai_contexts (system_prompt) VALUES ($1) RETURNING id`,
		systemPrompt,
	).Scan(&contextID)
	if err != nil && db.log != nil {
		db.log.WithError(err).Warn("persistence: ai context insert failed")
	}
	return contextID, err
}

// SaveBotOperation persists a decision against a context row already
// created via SaveContext (contextID may be "" if persistence is degraded).
func (db *DB) SaveBotOperation(ctx context.Context, op domain.BotOperation, contextID string) error {
	if db.Pool == nil {
		db.fallback.addOperation(op)
		return nil
	}

	_, err := db.Pool.Exec(ctx, `
		INSERT INTO bot_operations (
			cycle_id, operation, symbol, direction, target_portion_of_balance,
			leverage, raw_payload, context_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		op.CycleID, string(op.Decision.Operation), op.Decision.Symbol, string(op.Decision.Direction),
		op.Decision.TargetPortionOfBalance, op.Decision.Leverage, op.RawPayload, nullableString(contextID), op.CreatedAt,
	)
	if err != nil {
		if db.log != nil {
			db.log.WithError(err).Warn("persistence: bot operation insert failed")
		}
		db.fallback.addOperation(op)
	}
	return nil
}

// CoinScreeningResult is one symbol's score within a screening run, used by
// SaveCoinScreening to populate coin_scores_history.
type CoinScreeningResult struct {
	Symbol string
	Score  float64
}

// SaveCoinScreening persists a rebalance/screening event and its per-coin
// scores.
func (db *DB) SaveCoinScreening(ctx context.Context, screeningType string, selected, excluded []string, nextRebalance time.Time, scores []CoinScreeningResult) error {
	if db.Pool == nil {
		return nil
	}

	var screeningID string
	err := db.Pool.QueryRow(ctx, `
		INSERT INTO coin_screenings (screening_type, selected_coins, excluded_coins, next_rebalance)
		VALUES ($1, $2, $3, $4) RETURNING id`,
		screeningType, selected, excluded, nullableTime(nextRebalance),
	).Scan(&screeningID)
	if err != nil {
		if db.log != nil {
			db.log.WithError(err).Warn("persistence: coin screening insert failed")
		}
		return err
	}

	for _, s := range scores {
		if _, err := db.Pool.Exec(ctx, `
			INSERT INTO coin_scores_history (screening_id, symbol, score) VALUES ($1, $2, $3)`,
			screeningID, s.Symbol, s.Score,
		); err != nil && db.log != nil {
			db.log.WithError(err).WithSymbol(s.Symbol).Warn("persistence: coin score insert failed")
		}
	}
	return nil
}

// ContextPart mirrors internal/context.Part for satellite persistence
// without this package importing the context package (it would be a
// dependency cycle: context producers don't need to know about storage).
type ContextPart struct {
	Symbol  string
	Text    string
	Payload interface{}
}

// SaveContextSatellites persists the news/sentiment/forecast parts that
// backed one ai_contexts row. Indicators are saved separately by the
// caller since they're keyed by symbol with a different payload shape.
func (db *DB) SaveContextSatellites(ctx context.Context, contextID string, news, forecast []ContextPart, sentiment *ContextPart) {
	if db.Pool == nil {
		return
	}
	for _, n := range news {
		if _, err := db.Pool.Exec(ctx, `
			INSERT INTO news_contexts (context_id, symbol, text, payload) VALUES ($1, $2, $3, $4)`,
			contextID, n.Symbol, n.Text, marshalPayload(n.Payload),
		); err != nil && db.log != nil {
			db.log.WithError(err).WithSymbol(n.Symbol).Warn("persistence: news context insert failed")
		}
	}
	for _, f := range forecast {
		if _, err := db.Pool.Exec(ctx, `
			INSERT INTO forecasts_contexts (context_id, symbol, text, payload) VALUES ($1, $2, $3, $4)`,
			contextID, f.Symbol, f.Text, marshalPayload(f.Payload),
		); err != nil && db.log != nil {
			db.log.WithError(err).WithSymbol(f.Symbol).Warn("persistence: forecast context insert failed")
		}
	}
	if sentiment != nil {
		if _, err := db.Pool.Exec(ctx, `
			INSERT INTO sentiment_contexts (context_id, text, payload) VALUES ($1, $2, $3)`,
			contextID, sentiment.Text, marshalPayload(sentiment.Payload),
		); err != nil && db.log != nil {
			db.log.WithError(err).Warn("persistence: sentiment context insert failed")
		}
	}
}

// SaveIndicatorsContext persists one symbol's indicator payload against
// the ai_contexts row it was computed for.
func (db *DB) SaveIndicatorsContext(ctx context.Context, contextID, symbol string, payload interface{}) {
	if db.Pool == nil {
		return
	}
	if _, err := db.Pool.Exec(ctx, `
		INSERT INTO indicators_contexts (context_id, symbol, payload) VALUES ($1, $2, $3)`,
		contextID, symbol, marshalPayload(payload),
	); err != nil && db.log != nil {
		db.log.WithError(err).WithSymbol(symbol).Warn("persistence: indicators context insert failed")
	}
}

// marshalPayload renders a context payload as JSONB rather than Go's %v
// formatting.
func marshalPayload(v interface{}) []byte {
	if v == nil {
		return []byte("null")
	}
	b, err := json.Marshal(v)
	if err != nil {
		return []byte("null")
	}
	return b
}

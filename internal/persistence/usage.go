package persistence

import (
	"context"

	"github.com/lancilotto/hl-agent/internal/domain"
)

// RecordUsage implements llm.UsageSink. A database failure is logged and
// the record is buffered in memory instead of being dropped.
func (db *DB) RecordUsage(rec domain.LLMUsage) {
	if db.Pool == nil {
		db.fallback.addUsage(rec)
		return
	}

	ctx := context.Background()
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO llm_usage (
			timestamp, model, input_tokens, output_tokens, total_tokens,
			input_cost_usd, output_cost_usd, total_cost_usd,
			purpose, ticker, cycle_id, response_time_ms
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		rec.Timestamp, rec.Model, rec.InputTokens, rec.OutputTokens, rec.TotalTokens,
		rec.InputCostUSD, rec.OutputCostUSD, rec.TotalCostUSD,
		rec.Purpose, rec.Ticker, rec.CycleID, rec.ResponseTimeMs,
	)
	if err != nil {
		if db.log != nil {
			db.log.WithError(err).Warn("persistence: llm usage insert failed, buffering in memory")
		}
		db.fallback.addUsage(rec)
	}
}

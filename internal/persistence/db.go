// Package persistence is the append-only storage layer: account snapshots,
// bot operations with their context satellites, executed trades, coin
// screening history, and LLM usage accounting. Writes of LLM usage, trades
// and bot operations degrade to an in-memory buffer when the pool is nil or
// a query fails. The other writers are not buffered: they return the error
// to the caller or skip the write.
package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lancilotto/hl-agent/internal/logging"
)

// Config mirrors the teacher's database.Config shape.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// DB wraps the connection pool plus the in-memory fallback buffers used
// when the pool is unreachable.
type DB struct {
	Pool *pgxpool.Pool
	log  *logging.Logger

	fallback *memoryFallback
}

// New opens a pooled connection. A nil *DB.Pool (returned alongside a
// non-nil error) lets callers choose to run degraded on an in-memory
// buffer instead of failing startup outright.
func New(cfg Config, log *logging.Logger) (*DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return &DB{log: log, fallback: newMemoryFallback()}, fmt.Errorf("unable to parse database config: %w", err)
	}
	poolConfig.MaxConns = 25
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return &DB{log: log, fallback: newMemoryFallback()}, fmt.Errorf("unable to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return &DB{log: log, fallback: newMemoryFallback()}, fmt.Errorf("unable to ping database: %w", err)
	}

	return &DB{Pool: pool, log: log, fallback: newMemoryFallback()}, nil
}

// Close releases the pool, if any.
func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
	}
}

// HealthCheck pings the pool. Used by the dashboard API's /health endpoint.
func (db *DB) HealthCheck(ctx context.Context) error {
	if db.Pool == nil {
		return fmt.Errorf("persistence: running without a database pool")
	}
	return db.Pool.Ping(ctx)
}

// RunMigrations creates every append-only table this package owns, idempotently.
func (db *DB) RunMigrations(ctx context.Context) error {
	if db.Pool == nil {
		return fmt.Errorf("persistence: no pool to migrate")
	}

	migrations := []string{
		`CREATE TABLE IF NOT EXISTS account_snapshots (
			id BIGSERIAL PRIMARY KEY,
			created_at TIMESTAMP NOT NULL DEFAULT NOW(),
			balance_usd DECIMAL(20, 8) NOT NULL,
			perps_balance_usd DECIMAL(20, 8) NOT NULL,
			spot_balance_usd DECIMAL(20, 8) NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_account_snapshots_created_at ON account_snapshots(created_at)`,

		`CREATE TABLE IF NOT EXISTS open_positions (
			id BIGSERIAL PRIMARY KEY,
			snapshot_id BIGINT NOT NULL REFERENCES account_snapshots(id) ON DELETE CASCADE,
			symbol VARCHAR(20) NOT NULL,
			side VARCHAR(10) NOT NULL,
			size DECIMAL(20, 8) NOT NULL,
			entry_price DECIMAL(20, 8) NOT NULL,
			mark_price DECIMAL(20, 8) NOT NULL,
			pnl_usd DECIMAL(20, 8) NOT NULL,
			leverage INT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_open_positions_snapshot ON open_positions(snapshot_id)`,

		`CREATE TABLE IF NOT EXISTS ai_contexts (
			id BIGSERIAL PRIMARY KEY,
			system_prompt TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS indicators_contexts (
			id BIGSERIAL PRIMARY KEY,
			context_id BIGINT NOT NULL REFERENCES ai_contexts(id) ON DELETE CASCADE,
			symbol VARCHAR(20) NOT NULL,
			payload JSONB
		)`,
		`CREATE TABLE IF NOT EXISTS news_contexts (
			id BIGSERIAL PRIMARY KEY,
			context_id BIGINT NOT NULL REFERENCES ai_contexts(id) ON DELETE CASCADE,
			symbol VARCHAR(20) NOT NULL,
			text TEXT,
			payload JSONB
		)`,
		`CREATE TABLE IF NOT EXISTS sentiment_contexts (
			id BIGSERIAL PRIMARY KEY,
			context_id BIGINT NOT NULL REFERENCES ai_contexts(id) ON DELETE CASCADE,
			text TEXT,
			payload JSONB
		)`,
		`CREATE TABLE IF NOT EXISTS forecasts_contexts (
			id BIGSERIAL PRIMARY KEY,
			context_id BIGINT NOT NULL REFERENCES ai_contexts(id) ON DELETE CASCADE,
			symbol VARCHAR(20) NOT NULL,
			text TEXT,
			payload JSONB
		)`,

		`CREATE TABLE IF NOT EXISTS bot_operations (
			id BIGSERIAL PRIMARY KEY,
			created_at TIMESTAMP NOT NULL DEFAULT NOW(),
			cycle_id VARCHAR(64) NOT NULL,
			operation VARCHAR(10) NOT NULL,
			symbol VARCHAR(20) NOT NULL,
			direction VARCHAR(10),
			target_portion_of_balance DECIMAL(10, 4),
			leverage INT,
			raw_payload TEXT,
			context_id BIGINT REFERENCES ai_contexts(id) ON DELETE SET NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_bot_operations_cycle ON bot_operations(cycle_id)`,
		`CREATE INDEX IF NOT EXISTS idx_bot_operations_symbol ON bot_operations(symbol)`,

		`CREATE TABLE IF NOT EXISTS executed_trades (
			id BIGSERIAL PRIMARY KEY,
			created_at TIMESTAMP NOT NULL DEFAULT NOW(),
			bot_operation_id BIGINT REFERENCES bot_operations(id) ON DELETE SET NULL,
			trade_type VARCHAR(10) NOT NULL,
			symbol VARCHAR(20) NOT NULL,
			direction VARCHAR(10) NOT NULL,
			entry_price DECIMAL(20, 8) NOT NULL,
			exit_price DECIMAL(20, 8),
			size DECIMAL(20, 8) NOT NULL,
			size_usd DECIMAL(20, 8) NOT NULL,
			leverage INT NOT NULL,
			stop_loss_price DECIMAL(20, 8),
			take_profit_price DECIMAL(20, 8),
			exit_reason VARCHAR(30),
			pnl_usd DECIMAL(20, 8),
			pnl_pct DECIMAL(10, 4),
			duration_minutes DECIMAL(12, 2),
			status VARCHAR(10) NOT NULL,
			closed_at TIMESTAMP,
			fees_usd DECIMAL(20, 8) NOT NULL DEFAULT 0,
			hl_order_id VARCHAR(64)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_executed_trades_symbol ON executed_trades(symbol)`,
		`CREATE INDEX IF NOT EXISTS idx_executed_trades_status ON executed_trades(status)`,
		`CREATE INDEX IF NOT EXISTS idx_executed_trades_hl_order_id ON executed_trades(hl_order_id)`,
		`CREATE INDEX IF NOT EXISTS idx_executed_trades_created_at ON executed_trades(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_executed_trades_closed_at ON executed_trades(closed_at)`,

		`CREATE TABLE IF NOT EXISTS coin_screenings (
			id BIGSERIAL PRIMARY KEY,
			created_at TIMESTAMP NOT NULL DEFAULT NOW(),
			screening_type VARCHAR(20) NOT NULL,
			selected_coins TEXT[] NOT NULL,
			excluded_coins TEXT[] NOT NULL,
			next_rebalance TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS coin_scores_history (
			id BIGSERIAL PRIMARY KEY,
			screening_id BIGINT NOT NULL REFERENCES coin_screenings(id) ON DELETE CASCADE,
			symbol VARCHAR(20) NOT NULL,
			score DECIMAL(10, 4) NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_coin_scores_screening ON coin_scores_history(screening_id)`,

		`CREATE TABLE IF NOT EXISTS llm_usage (
			id BIGSERIAL PRIMARY KEY,
			timestamp TIMESTAMP NOT NULL,
			model VARCHAR(64) NOT NULL,
			input_tokens INT NOT NULL,
			output_tokens INT NOT NULL,
			total_tokens INT NOT NULL,
			input_cost_usd DECIMAL(12, 6) NOT NULL,
			output_cost_usd DECIMAL(12, 6) NOT NULL,
			total_cost_usd DECIMAL(12, 6) NOT NULL,
			purpose VARCHAR(50) NOT NULL,
			ticker VARCHAR(20),
			cycle_id VARCHAR(64),
			response_time_ms BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_llm_usage_timestamp ON llm_usage(timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_llm_usage_cycle ON llm_usage(cycle_id)`,
	}

	for i, m := range migrations {
		if _, err := db.Pool.Exec(ctx, m); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}
	return nil
}

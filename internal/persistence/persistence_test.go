package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lancilotto/hl-agent/internal/domain"
)

func degradedDB() *DB {
	return &DB{fallback: newMemoryFallback()}
}

func TestRecordUsage_BuffersInMemoryWithoutPool(t *testing.T) {
	db := degradedDB()

	db.RecordUsage(domain.LLMUsage{Model: "gpt-4o-mini", TotalTokens: 100})

	usage, _, _ := db.PendingCounts()
	assert.Equal(t, 1, usage)
}

func TestInsertTrade_BuffersInMemoryWithoutPool(t *testing.T) {
	db := degradedDB()

	err := db.InsertTrade(context.Background(), domain.TradeRecord{
		Symbol: "BTC", Status: domain.TradeStatusOpen, CreatedAt: time.Now(),
	})

	require.NoError(t, err)
	_, trades, _ := db.PendingCounts()
	assert.Equal(t, 1, trades)
}

func TestFindOpenNear_MatchesByOrderIDInMemory(t *testing.T) {
	db := degradedDB()
	now := time.Now()
	db.fallback.addTrade(domain.TradeRecord{
		Symbol: "ETH", HLOrderID: "42", Status: domain.TradeStatusOpen, CreatedAt: now,
	})

	rec, err := db.FindOpenNear(context.Background(), "ETH", "42", now, 5*time.Second)

	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "ETH", rec.Symbol)
}

func TestFindOpenNear_NoMatchReturnsNil(t *testing.T) {
	db := degradedDB()

	rec, err := db.FindOpenNear(context.Background(), "ETH", "42", time.Now(), 5*time.Second)

	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestFindOpenBySymbolDirection_SkipsClosedTrades(t *testing.T) {
	db := degradedDB()
	db.fallback.addTrade(domain.TradeRecord{
		Symbol: "SOL", Direction: domain.DirectionLong, Status: domain.TradeStatusClosed, CreatedAt: time.Now(),
	})

	rec, err := db.FindOpenBySymbolDirection(context.Background(), "SOL", domain.DirectionLong)

	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestSaveIndicatorsContext_NoopWithoutPool(t *testing.T) {
	db := degradedDB()

	assert.NotPanics(t, func() {
		db.SaveIndicatorsContext(context.Background(), "ctx-1", "BTC", map[string]float64{"rsi7": 55.2})
	})
}

func TestSaveBotOperation_BuffersInMemoryWithoutPool(t *testing.T) {
	db := degradedDB()

	err := db.SaveBotOperation(context.Background(), domain.BotOperation{
		CycleID: "cycle-1",
		Decision: domain.Decision{
			Operation: domain.OpHold, Symbol: "BTC",
		},
	}, "")

	require.NoError(t, err)
	_, _, ops := db.PendingCounts()
	assert.Equal(t, 1, ops)
}

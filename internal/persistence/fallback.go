package persistence

import (
	"sync"

	"github.com/lancilotto/hl-agent/internal/domain"
)

// memoryFallback buffers records that a write couldn't reach the database
// for. It is never drained automatically — it exists so a DB outage loses
// no data the caller already computed, and can be inspected/retried later.
type memoryFallback struct {
	mu          sync.Mutex
	usage       []domain.LLMUsage
	trades      []domain.TradeRecord
	operations  []domain.BotOperation
}

func newMemoryFallback() *memoryFallback {
	return &memoryFallback{}
}

func (f *memoryFallback) addUsage(rec domain.LLMUsage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.usage = append(f.usage, rec)
}

func (f *memoryFallback) addTrade(rec domain.TradeRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.trades = append(f.trades, rec)
}

func (f *memoryFallback) addOperation(op domain.BotOperation) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.operations = append(f.operations, op)
}

// PendingCounts reports how many usage, trade and bot-operation rows are
// buffered in memory.
func (db *DB) PendingCounts() (usage, trades, operations int) {
	db.fallback.mu.Lock()
	defer db.fallback.mu.Unlock()
	return len(db.fallback.usage), len(db.fallback.trades), len(db.fallback.operations)
}

package llm

import (
	"sync"
	"time"

	"github.com/lancilotto/hl-agent/internal/domain"
)

// UsageSink persists a token/cost accounting record. Implementations
// (e.g. internal/persistence) should be best-effort: a failure to persist
// must never propagate back into the decision path.
type UsageSink interface {
	RecordUsage(rec domain.LLMUsage)
}

// MemoryUsageSink buffers usage records in memory. It is the fallback a
// database-backed sink degrades to when the database is unreachable, and
// is also useful standalone in tests.
type MemoryUsageSink struct {
	mu      sync.Mutex
	records []domain.LLMUsage
}

// NewMemoryUsageSink constructs an empty in-memory sink.
func NewMemoryUsageSink() *MemoryUsageSink {
	return &MemoryUsageSink{}
}

// RecordUsage implements UsageSink.
func (s *MemoryUsageSink) RecordUsage(rec domain.LLMUsage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
}

// Records returns a copy of everything buffered so far.
func (s *MemoryUsageSink) Records() []domain.LLMUsage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.LLMUsage, len(s.records))
	copy(out, s.records)
	return out
}

func newUsageRecord(modelID, purpose, ticker, cycleID string, inputTokens, outputTokens int, responseTime time.Duration) domain.LLMUsage {
	inputCost, outputCost, totalCost := calculateCost(modelID, inputTokens, outputTokens)
	return domain.LLMUsage{
		Timestamp:      time.Now(),
		Model:          modelID,
		InputTokens:    inputTokens,
		OutputTokens:   outputTokens,
		TotalTokens:    inputTokens + outputTokens,
		InputCostUSD:   inputCost,
		OutputCostUSD:  outputCost,
		TotalCostUSD:   totalCost,
		Purpose:        purpose,
		Ticker:         ticker,
		CycleID:        cycleID,
		ResponseTimeMs: responseTime.Milliseconds(),
	}
}

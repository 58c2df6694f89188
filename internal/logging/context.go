package logging

import (
	"context"
	"crypto/rand"
	"encoding/hex"
)

type contextKey string

const (
	loggerKey  contextKey = "logger"
	traceIDKey contextKey = "trace_id"
)

// GenerateTraceID generates a new random 32-hex-character trace ID for log
// correlation. The orchestrator's cycle_id comes from its own generator,
// not from this function.
func GenerateTraceID() string {
	b := make([]byte, 16)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// FromContext retrieves the logger from context, or the default logger.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerKey).(*Logger); ok {
		return l
	}
	return Default()
}

// NewContext creates a new context carrying the given logger.
func NewContext(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// WithTraceContext starts a new cycle: mints a trace/cycle ID and returns a
// context plus logger carrying it.
func WithTraceContext(ctx context.Context) (context.Context, *Logger) {
	traceID := GenerateTraceID()
	l := Default().WithTraceID(traceID)
	newCtx := context.WithValue(ctx, traceIDKey, traceID)
	newCtx = context.WithValue(newCtx, loggerKey, l)
	return newCtx, l
}

// VenueContext creates a logger context for Hyperliquid venue calls.
func VenueContext(method, symbol string) *Logger {
	return Default().WithFields(map[string]interface{}{
		"method": method,
		"symbol": symbol,
	}).WithComponent("venue")
}

// TradeContext creates a logger context for execution operations.
func TradeContext(symbol, direction string, size, price float64) *Logger {
	return Default().WithFields(map[string]interface{}{
		"symbol":    symbol,
		"direction": direction,
		"size":      size,
		"price":     price,
	}).WithComponent("execution")
}

// PositionContext creates a logger context for risk-manager position
// operations.
func PositionContext(symbol, direction string, entryPrice, size float64) *Logger {
	return Default().WithFields(map[string]interface{}{
		"symbol":      symbol,
		"direction":   direction,
		"entry_price": entryPrice,
		"size":        size,
	}).WithComponent("risk")
}

// LLMContext creates a logger context for LLM decision calls.
func LLMContext(provider, model, ticker string) *Logger {
	return Default().WithFields(map[string]interface{}{
		"provider": provider,
		"model":    model,
		"ticker":   ticker,
	}).WithComponent("llm")
}

// ScreenerContext creates a logger context for screening runs.
func ScreenerContext(screeningType string, candidateCount int) *Logger {
	return Default().WithFields(map[string]interface{}{
		"screening_type": screeningType,
		"candidates":     candidateCount,
	}).WithComponent("screener")
}

// DatabaseContext creates a logger context for persistence operations.
func DatabaseContext(operation, table string) *Logger {
	return Default().WithFields(map[string]interface{}{
		"operation": operation,
		"table":     table,
	}).WithComponent("persistence")
}

// CycleContext creates a logger context for one orchestrator cycle phase.
func CycleContext(cycleID, phase string) *Logger {
	return Default().WithTraceID(cycleID).WithField("phase", phase).WithComponent("orchestrator")
}

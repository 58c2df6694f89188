package domain

import "errors"

// Sentinel errors returned by agent components. Callers use errors.Is to
// branch on these across package boundaries instead of string matching.
var (
	ErrCircuitBreakerActive = errors.New("domain: circuit breaker active")
	ErrCooldownActive       = errors.New("domain: consecutive-loss cooldown active")
	ErrDailyLossLimit       = errors.New("domain: daily loss limit reached")
	ErrPositionNotFound     = errors.New("domain: position not found")
	ErrPositionExists       = errors.New("domain: position already open for symbol")
	ErrNoLiquidity          = errors.New("domain: no mid price available for symbol")
	ErrVenueRateLimited     = errors.New("domain: venue rejected request due to rate limiting")
	ErrVenueUnavailable     = errors.New("domain: venue unreachable after retries")
	ErrInvalidDecision      = errors.New("domain: decision failed schema validation")
	ErrAllProvidersFailed   = errors.New("domain: all LLM providers exhausted")
	ErrScoringWeightsSum    = errors.New("domain: scoring weights must sum to 1.0")
	ErrSymbolExcluded       = errors.New("domain: symbol excluded by hard filters")
	ErrStaleCache           = errors.New("domain: cache entry is stale and no fallback available")
)

// Package cache provides a Redis-backed cache with a circuit breaker for
// graceful degradation, used by the Coin Screener to persist screening
// results across restarts.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lancilotto/hl-agent/internal/config"
	"github.com/lancilotto/hl-agent/internal/logging"
)

// Service wraps a redis.Client with health tracking: after maxFailures
// consecutive errors it stops attempting Redis calls until checkInterval
// has passed, then probes once before resuming.
type Service struct {
	client *redis.Client
	log    *logging.Logger

	mu           sync.RWMutex
	healthy      bool
	failureCount int
	lastCheck    time.Time

	maxFailures   int
	checkInterval time.Duration
}

// NewService connects to Redis per cfg. It never returns an error for a
// down Redis: the service starts in degraded mode and callers fall back.
func NewService(cfg config.RedisConfig) *Service {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: 2,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	s := &Service{
		client:        client,
		log:           logging.WithComponent("cache"),
		maxFailures:   3,
		checkInterval: 30 * time.Second,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		s.log.Warn("redis unavailable at startup, operating in degraded mode", "error", err)
		return s
	}
	s.healthy = true
	s.lastCheck = time.Now()
	return s
}

// IsHealthy reports whether the circuit breaker currently permits calls.
func (s *Service) IsHealthy() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.healthy
}

func (s *Service) recordFailure() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failureCount++
	if s.failureCount >= s.maxFailures && s.healthy {
		s.log.Warn("cache circuit breaker open", "failures", s.failureCount)
		s.healthy = false
	}
}

func (s *Service) recordSuccess() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.healthy {
		s.log.Info("cache circuit breaker closed, redis recovered")
	}
	s.healthy = true
	s.failureCount = 0
	s.lastCheck = time.Now()
}

func (s *Service) checkHealth(ctx context.Context) {
	s.mu.RLock()
	due := !s.healthy && time.Since(s.lastCheck) >= s.checkInterval
	s.mu.RUnlock()
	if !due {
		return
	}
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := s.client.Ping(pingCtx).Err(); err == nil {
		s.recordSuccess()
	} else {
		s.mu.Lock()
		s.lastCheck = time.Now()
		s.mu.Unlock()
	}
}

// SetJSON marshals value and stores it under key with ttl (0 = no expiry).
func (s *Service) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	s.checkHealth(ctx)
	if !s.IsHealthy() {
		return fmt.Errorf("cache: redis unavailable (circuit breaker open)")
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache: marshal: %w", err)
	}
	if err := s.client.Set(ctx, key, data, ttl).Err(); err != nil {
		s.recordFailure()
		return fmt.Errorf("cache: set: %w", err)
	}
	s.recordSuccess()
	return nil
}

// GetJSON reads key and unmarshals it into dest. Returns redis.Nil on miss.
func (s *Service) GetJSON(ctx context.Context, key string, dest interface{}) error {
	s.checkHealth(ctx)
	if !s.IsHealthy() {
		return fmt.Errorf("cache: redis unavailable (circuit breaker open)")
	}
	data, err := s.client.Get(ctx, key).Result()
	if err != nil {
		if err != redis.Nil {
			s.recordFailure()
		}
		return err
	}
	s.recordSuccess()
	return json.Unmarshal([]byte(data), dest)
}

// Close releases the underlying Redis connection pool.
func (s *Service) Close() error {
	return s.client.Close()
}

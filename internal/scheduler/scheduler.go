// Package scheduler drives the trading cycle and the health check on
// independent tickers, coalescing missed ticks into a single run and never
// allowing more than one trading cycle in flight, with a graceful shutdown
// that waits for the active cycle to finish.
package scheduler

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/lancilotto/hl-agent/internal/logging"
)

// CycleFunc runs one trading cycle. It should itself be resilient to
// per-phase failure; the scheduler only guards concurrency and timing.
type CycleFunc func(ctx context.Context)

// HealthCheckFunc runs the lightweight periodic health ping.
type HealthCheckFunc func(ctx context.Context)

// Config controls the two periodic jobs.
type Config struct {
	CycleInterval       time.Duration // default 5 minutes
	HealthCheckInterval time.Duration // default 5 minutes
	RunImmediately      bool          // run one cycle on Start before the first tick
}

// Scheduler owns the trading-cycle and health-check tickers. At most one
// cycle runs at a time (max_instances=1); a tick that arrives while a
// cycle is still running is dropped rather than queued (coalesce=true).
type Scheduler struct {
	cfg         Config
	cycleFn     CycleFunc
	healthFn    HealthCheckFunc
	log         *logging.Logger
	cycleCount  int64
	running     int32
	stopCh      chan struct{}
	wg          sync.WaitGroup
	lastErrorMu sync.Mutex
	lastError   string
}

// New builds a Scheduler. Defaults fill in zero-valued interval fields.
func New(cfg Config, cycleFn CycleFunc, healthFn HealthCheckFunc, log *logging.Logger) *Scheduler {
	if cfg.CycleInterval <= 0 {
		cfg.CycleInterval = 5 * time.Minute
	}
	if cfg.HealthCheckInterval <= 0 {
		cfg.HealthCheckInterval = 5 * time.Minute
	}
	return &Scheduler{
		cfg:      cfg,
		cycleFn:  cycleFn,
		healthFn: healthFn,
		log:      log,
		stopCh:   make(chan struct{}),
	}
}

// Run starts both tickers and blocks until ctx is cancelled or a
// SIGTERM/SIGINT arrives, then waits for any in-flight cycle to finish
// before returning.
func (s *Scheduler) Run(ctx context.Context) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	if s.cfg.RunImmediately {
		s.runCycle(ctx)
	}

	cycleTicker := time.NewTicker(s.cfg.CycleInterval)
	defer cycleTicker.Stop()
	healthTicker := time.NewTicker(s.cfg.HealthCheckInterval)
	defer healthTicker.Stop()

	for {
		select {
		case <-cycleTicker.C:
			s.runCycle(ctx)
		case <-healthTicker.C:
			s.runHealthCheck(ctx)
		case <-sigCh:
			if s.log != nil {
				s.log.Info("scheduler: shutdown signal received")
			}
			s.shutdown()
			return
		case <-ctx.Done():
			s.shutdown()
			return
		case <-s.stopCh:
			return
		}
	}
}

// Stop requests shutdown without waiting for a signal; used by tests and
// by callers embedding the scheduler in a larger process.
func (s *Scheduler) Stop() {
	s.shutdown()
}

func (s *Scheduler) shutdown() {
	s.wg.Wait() // let the active cycle, if any, finish
	select {
	case <-s.stopCh:
	default:
		close(s.stopCh)
	}
}

// runCycle enforces max_instances=1/coalesce=true: if a cycle is already
// running, this tick is dropped instead of queued.
func (s *Scheduler) runCycle(ctx context.Context) {
	if !atomic.CompareAndSwapInt32(&s.running, 0, 1) {
		if s.log != nil {
			s.log.Warn("scheduler: cycle tick dropped, previous cycle still running")
		}
		return
	}
	s.wg.Add(1)
	defer s.wg.Done()
	defer atomic.StoreInt32(&s.running, 0)

	n := atomic.AddInt64(&s.cycleCount, 1)
	start := time.Now()
	if s.log != nil {
		s.log.WithField("cycle", n).Info("scheduler: cycle starting")
	}

	func() {
		defer func() {
			if r := recover(); r != nil {
				s.setLastError(recoverMessage(r))
				if s.log != nil {
					s.log.WithField("cycle", n).Error("scheduler: cycle panicked")
				}
			}
		}()
		s.cycleFn(ctx)
	}()

	if s.log != nil {
		s.log.WithField("cycle", n).WithDuration(time.Since(start)).Info("scheduler: cycle complete")
	}
}

func (s *Scheduler) runHealthCheck(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil && s.log != nil {
			s.log.WithField("panic", recoverMessage(r)).Warn("scheduler: health check panicked")
		}
	}()
	if s.healthFn != nil {
		s.healthFn(ctx)
	}
}

func (s *Scheduler) setLastError(msg string) {
	s.lastErrorMu.Lock()
	defer s.lastErrorMu.Unlock()
	s.lastError = msg
}

// Status reports the cycle counter and last panic message, if any, for
// the optional read-only API collaborator.
type Status struct {
	CycleCount int64
	LastError  string
}

func (s *Scheduler) Status() Status {
	s.lastErrorMu.Lock()
	defer s.lastErrorMu.Unlock()
	return Status{CycleCount: atomic.LoadInt64(&s.cycleCount), LastError: s.lastError}
}

func recoverMessage(r interface{}) string {
	if err, ok := r.(error); ok {
		return err.Error()
	}
	return "panic: unknown"
}

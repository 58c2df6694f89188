package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRun_ExecutesImmediateCycleOnStart(t *testing.T) {
	var calls int32
	s := New(Config{CycleInterval: time.Hour, HealthCheckInterval: time.Hour, RunImmediately: true},
		func(ctx context.Context) { atomic.AddInt32(&calls, 1) }, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	s.Run(ctx)

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestRun_DropsOverlappingCycleTick(t *testing.T) {
	var running int32
	var overlapped int32
	cycle := func(ctx context.Context) {
		if !atomic.CompareAndSwapInt32(&running, 0, 1) {
			atomic.AddInt32(&overlapped, 1)
			return
		}
		time.Sleep(30 * time.Millisecond)
		atomic.StoreInt32(&running, 0)
	}

	s := New(Config{CycleInterval: time.Hour}, cycle, nil, nil)
	done := make(chan struct{})
	go func() {
		s.runCycle(context.Background())
		close(done)
	}()
	for atomic.LoadInt32(&running) == 0 {
		select {
		case <-done:
			t.Fatal("first cycle finished before the overlapping tick was issued")
		default:
		}
		time.Sleep(time.Millisecond)
	}
	s.runCycle(context.Background())
	<-done

	assert.Equal(t, int64(1), s.Status().CycleCount)
	assert.Equal(t, int32(0), atomic.LoadInt32(&overlapped))
}

func TestRunCycle_RecoversFromPanicAndRecordsLastError(t *testing.T) {
	s := New(Config{CycleInterval: time.Hour}, func(ctx context.Context) {
		panic("boom")
	}, nil, nil)

	s.runCycle(context.Background())

	assert.Equal(t, "panic: unknown", s.Status().LastError)
}

func TestStatus_CycleCountIncrementsPerRun(t *testing.T) {
	s := New(Config{CycleInterval: time.Hour}, func(ctx context.Context) {}, nil, nil)

	s.runCycle(context.Background())
	s.runCycle(context.Background())

	assert.Equal(t, int64(2), s.Status().CycleCount)
}

package engine

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"token_sniper/internal/domain"
	"token_sniper/internal/infra"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestLoop_CooldownAfterError(t *testing.T) {
	var calls atomic.Int32
	loop := NewLoop("test", time.Hour, 10*time.Millisecond, func(ctx context.Context) error {
		if calls.Add(1) == 1 {
			return errors.New("first cycle fails")
		}
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()

	// the failed first cycle retries after the short cool-down, not the hour-long period
	waitFor(t, time.Second, func() bool { return calls.Load() >= 2 })
	waitFor(t, time.Second, func() bool { return loop.State() == StateRunning })

	time.Sleep(50 * time.Millisecond)
	if got := calls.Load(); got != 2 {
		t.Errorf("Successful cycle should wait the full period, got %d calls", got)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run should return nil on cancellation, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancellation")
	}
}

func TestLoop_StateWhileCoolingDown(t *testing.T) {
	loop := NewLoop("test", time.Hour, time.Hour, func(ctx context.Context) error {
		return errors.New("always fails")
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go loop.Run(ctx)

	waitFor(t, time.Second, func() bool { return loop.State() == StateCoolingDown })
	if loop.Cycles() != 1 {
		t.Errorf("Expected 1 cycle, got %d", loop.Cycles())
	}
}

func TestLoop_PanicIsCycleError(t *testing.T) {
	var calls atomic.Int32
	loop := NewLoop("test", time.Hour, 10*time.Millisecond, func(ctx context.Context) error {
		if calls.Add(1) == 1 {
			panic("boom")
		}
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go loop.Run(ctx)

	waitFor(t, time.Second, func() bool { return calls.Load() >= 2 })
}

func TestLoop_ClassifiesCycleErrors(t *testing.T) {
	var calls atomic.Int32
	loop := NewLoop("test", time.Hour, time.Millisecond, func(ctx context.Context) error {
		switch calls.Add(1) {
		case 1:
			return domain.NewFeedError("fetch_discovered", errors.New("down"))
		case 2:
			return errors.Join(fmt.Errorf("%w: bad id", domain.ErrMalformedRecord))
		case 3:
			return errors.Join(domain.NewPriceError("fetch_price", errors.New("timeout")), errors.New("other"))
		}
		return nil
	})
	metrics := &infra.Metrics{}
	loop.metrics = metrics

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go loop.Run(ctx)

	waitFor(t, time.Second, func() bool { return calls.Load() >= 4 })

	snap := metrics.Snapshot()
	if snap.CycleErrors != 3 {
		t.Errorf("Expected 3 cycle errors, got %d", snap.CycleErrors)
	}
	// feed outage and the joined price outage
	if snap.RetriableErrors != 2 {
		t.Errorf("Expected 2 retriable errors, got %d", snap.RetriableErrors)
	}
}

func TestLoop_NoOverlap(t *testing.T) {
	var running, overlaps atomic.Int32
	loop := NewLoop("test", time.Millisecond, time.Millisecond, func(ctx context.Context) error {
		if running.Add(1) > 1 {
			overlaps.Add(1)
		}
		time.Sleep(5 * time.Millisecond)
		running.Add(-1)
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	loop.Run(ctx)

	if overlaps.Load() != 0 {
		t.Errorf("Cycles overlapped %d times", overlaps.Load())
	}
	if loop.Cycles() < 2 {
		t.Errorf("Expected several cycles, got %d", loop.Cycles())
	}
}

func TestLoopState_String(t *testing.T) {
	if StateRunning.String() != "running" || StateCoolingDown.String() != "cooling_down" {
		t.Error("Unexpected state names")
	}
}

package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"token_sniper/internal/domain"
	"token_sniper/internal/infra"
)

// LoopState is the scheduling state of a periodic loop.
type LoopState int32

const (
	StateRunning LoopState = iota
	StateCoolingDown
)

func (s LoopState) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateCoolingDown:
		return "cooling_down"
	default:
		return fmt.Sprintf("LoopState(%d)", int32(s))
	}
}

// CycleFunc runs one iteration of a loop. A returned error switches the loop
// into the cool-down state for the next wait.
type CycleFunc func(ctx context.Context) error

// Loop runs a cycle on a fixed period and a shorter cool-down after a failed
// cycle. Cycles never overlap. It stops only when its context is cancelled.
type Loop struct {
	name     string
	period   time.Duration
	cooldown time.Duration
	cycle    CycleFunc
	metrics  *infra.Metrics
	logger   *slog.Logger

	state  atomic.Int32
	cycles atomic.Uint64
}

// NewLoop creates a loop. A non-positive cooldown falls back to period.
func NewLoop(name string, period, cooldown time.Duration, cycle CycleFunc) *Loop {
	if cooldown <= 0 {
		cooldown = period
	}
	return &Loop{
		name:     name,
		period:   period,
		cooldown: cooldown,
		cycle:    cycle,
		metrics:  infra.GlobalMetrics,
		logger:   slog.Default().With("module", name),
	}
}

// State returns the current scheduling state.
func (l *Loop) State() LoopState {
	return LoopState(l.state.Load())
}

// Cycles returns how many cycles have completed.
func (l *Loop) Cycles() uint64 {
	return l.cycles.Load()
}

// Run executes the first cycle immediately, then waits period (or cooldown
// after an error) between cycles. It returns nil on cancellation.
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Info("▶️ Loop started",
		slog.Duration("period", l.period),
		slog.Duration("cooldown", l.cooldown))

	for {
		err := l.runCycle(ctx)
		l.cycles.Add(1)
		if ctx.Err() != nil {
			l.logger.Info("Loop stopping...")
			return nil
		}

		delay := l.period
		if err != nil {
			l.state.Store(int32(StateCoolingDown))
			retriable := domain.IsRetriable(err)
			l.metrics.RecordCycleError(retriable)
			delay = l.cooldown
			level := slog.LevelWarn
			if !retriable {
				level = slog.LevelError
			}
			l.logger.Log(ctx, level, "Cycle failed, cooling down",
				slog.Any("error", err),
				slog.Bool("retriable", retriable),
				slog.Duration("retry_in", delay))
		} else {
			l.state.Store(int32(StateRunning))
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			l.logger.Info("Loop stopping...")
			return nil
		case <-timer.C:
		}
		l.state.Store(int32(StateRunning))
	}
}

func (l *Loop) runCycle(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("CYCLE_PANIC_RECOVERED", slog.Any("panic", r))
			err = fmt.Errorf("cycle panic: %v", r)
		}
	}()
	return l.cycle(ctx)
}

// Package floor schedules trading cycles: every trader takes one bounded
// turn per cycle, concurrently, and the cycle ends when all of them have.
package floor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/asaskevich/EventBus"

	"ai-trading-floor/internal/exception"
	"ai-trading-floor/internal/interfaces"
	"ai-trading-floor/internal/logger"
	"ai-trading-floor/internal/types"
)

// TopicCycle carries a types.CycleReport after every cycle.
const TopicCycle = "floor:cycle"

type RunOptions struct {
	MaxCycles       int // 0 runs until stopped
	InterCycleDelay time.Duration
	TurnTimeout     time.Duration
}

type Floor struct {
	traders []interfaces.Trader
	bus     EventBus.Bus

	mu     sync.Mutex
	state  types.FloorState
	cycle  int
	cancel context.CancelFunc
}

func New(traders []interfaces.Trader) (*Floor, error) {
	if len(traders) == 0 {
		return nil, exception.ErrNoTraders
	}
	seen := make(map[string]bool, len(traders))
	for _, t := range traders {
		if seen[t.Name()] {
			return nil, fmt.Errorf("%w: %s", exception.ErrDuplicateTrader, t.Name())
		}
		seen[t.Name()] = true
	}
	return &Floor{
		traders: append([]interfaces.Trader(nil), traders...),
		bus:     EventBus.New(),
		state:   types.FloorIdle,
	}, nil
}

// Subscribe registers fn for every cycle report. Handlers run synchronously
// on the scheduler goroutine.
func (f *Floor) Subscribe(fn func(types.CycleReport)) error {
	return f.bus.Subscribe(TopicCycle, fn)
}

// Start runs cycles until the limit, Stop or ctx cancellation, then waits
// for in-flight turns and returns the floor to IDLE.
func (f *Floor) Start(ctx context.Context, opts RunOptions) error {
	if opts.TurnTimeout <= 0 {
		return errors.New("turn timeout must be positive")
	}

	f.mu.Lock()
	if f.state != types.FloorIdle {
		f.mu.Unlock()
		return exception.ErrFloorRunning
	}
	runCtx, cancel := context.WithCancel(ctx)
	f.state = types.FloorRunning
	f.cycle = 0
	f.cancel = cancel
	f.mu.Unlock()

	defer func() {
		cancel()
		f.mu.Lock()
		f.state = types.FloorIdle
		f.cancel = nil
		f.mu.Unlock()
		logger.Info(ctx, "Trading floor idle")
	}()

	logger.Info(ctx, "Trading floor started",
		"traders", len(f.traders),
		"max_cycles", opts.MaxCycles,
		"turn_timeout", opts.TurnTimeout.String(),
		"inter_cycle_delay", opts.InterCycleDelay.String(),
	)

	for cycle := 1; ; cycle++ {
		if runCtx.Err() != nil {
			break
		}
		f.mu.Lock()
		f.cycle = cycle
		f.mu.Unlock()

		report := f.runCycle(runCtx, cycle, opts.TurnTimeout)
		logger.Info(ctx, "Cycle completed",
			"cycle", cycle,
			"succeeded", report.Succeeded,
			"failed", report.Failed,
			"duration_ms", report.Finished.Sub(report.Started).Milliseconds(),
		)
		f.bus.Publish(TopicCycle, report)

		if opts.MaxCycles > 0 && cycle >= opts.MaxCycles {
			logger.Info(ctx, "Cycle limit reached", "cycles", cycle)
			break
		}
		if !sleep(runCtx, opts.InterCycleDelay) {
			break
		}
	}

	f.setState(types.FloorStopping)
	return nil
}

// runCycle fans out one turn per trader and waits for all of them.
func (f *Floor) runCycle(ctx context.Context, cycle int, timeout time.Duration) types.CycleReport {
	op := logger.StartOperation(ctx, "floor.cycle", "cycle", cycle, "traders", len(f.traders))
	ctx = op.GetContext()

	report := types.CycleReport{Cycle: cycle, Started: time.Now()}
	outcomes := make([]types.TurnOutcome, len(f.traders))

	var wg sync.WaitGroup
	for i, t := range f.traders {
		wg.Add(1)
		go func(i int, t interfaces.Trader) {
			defer wg.Done()
			turnCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			outcomes[i] = t.RunTurn(turnCtx, cycle)
		}(i, t)
	}
	wg.Wait()

	for _, o := range outcomes {
		if o.Succeeded() {
			report.Succeeded++
		} else {
			report.Failed++
		}
	}
	report.Outcomes = outcomes
	report.Finished = time.Now()
	op.End("succeeded", report.Succeeded, "failed", report.Failed)
	return report
}

// Stop asks a running floor to drain. It returns immediately; Start returns
// once in-flight turns finish.
func (f *Floor) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != types.FloorRunning {
		return
	}
	f.state = types.FloorStopping
	if f.cancel != nil {
		f.cancel()
	}
}

func (f *Floor) Status() types.FloorStatus {
	f.mu.Lock()
	st := types.FloorStatus{State: f.state, Cycle: f.cycle}
	f.mu.Unlock()

	st.Traders = make(map[string]types.TraderStats, len(f.traders))
	for _, t := range f.traders {
		st.Traders[t.Name()] = t.Stats()
	}
	return st
}

func (f *Floor) setState(s types.FloorState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = s
}

// sleep waits d or until ctx is done. It reports whether the wait finished.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

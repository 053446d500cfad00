package floor

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ai-trading-floor/internal/account"
	"ai-trading-floor/internal/account/store"
	"ai-trading-floor/internal/exception"
	"ai-trading-floor/internal/interfaces"
	"ai-trading-floor/internal/marketdata"
	"ai-trading-floor/internal/trader"
	"ai-trading-floor/internal/types"
)

// stubTrader reports success after an optional delay that honors ctx.
type stubTrader struct {
	name   string
	delay  time.Duration
	turns  atomic.Int32
	active atomic.Int32
	maxPar atomic.Int32
}

func (s *stubTrader) Name() string { return s.name }

func (s *stubTrader) Stats() types.TraderStats {
	return types.TraderStats{Name: s.name, TurnsAttempted: int(s.turns.Load())}
}

func (s *stubTrader) RunTurn(ctx context.Context, cycle int) types.TurnOutcome {
	if n := s.active.Add(1); n > s.maxPar.Load() {
		s.maxPar.Store(n)
	}
	defer s.active.Add(-1)
	s.turns.Add(1)

	out := types.TurnOutcome{Trader: s.name, Cycle: cycle, Started: time.Now(), Status: types.TurnSucceeded}
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			out.Status, out.Err = types.TurnCancelled, ctx.Err()
		}
	}
	out.Finished = time.Now()
	return out
}

func TestNewValidatesTraders(t *testing.T) {
	_, err := New(nil)
	assert.ErrorIs(t, err, exception.ErrNoTraders)

	_, err = New([]interfaces.Trader{&stubTrader{name: "a"}, &stubTrader{name: "a"}})
	assert.ErrorIs(t, err, exception.ErrDuplicateTrader)
}

func TestStartRunsMaxCycles(t *testing.T) {
	a, b := &stubTrader{name: "a"}, &stubTrader{name: "b"}
	f, err := New([]interfaces.Trader{a, b})
	require.NoError(t, err)

	var mu sync.Mutex
	var reports []types.CycleReport
	require.NoError(t, f.Subscribe(func(r types.CycleReport) {
		mu.Lock()
		defer mu.Unlock()
		reports = append(reports, r)
	}))

	require.NoError(t, f.Start(context.Background(), RunOptions{MaxCycles: 3, TurnTimeout: time.Second}))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, reports, 3)
	for i, r := range reports {
		assert.Equal(t, i+1, r.Cycle)
		assert.Equal(t, 2, r.Succeeded)
		assert.Len(t, r.Outcomes, 2)
	}
	assert.Equal(t, int32(3), a.turns.Load())
	assert.Equal(t, int32(1), a.maxPar.Load())

	st := f.Status()
	assert.Equal(t, types.FloorIdle, st.State)
	assert.Equal(t, 3, st.Cycle)
	assert.Equal(t, 3, st.Traders["b"].TurnsAttempted)
}

func TestStartRejectsSecondRun(t *testing.T) {
	f, err := New([]interfaces.Trader{&stubTrader{name: "a", delay: 20 * time.Millisecond}})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- f.Start(context.Background(), RunOptions{TurnTimeout: time.Second}) }()
	require.Eventually(t, func() bool { return f.Status().State == types.FloorRunning }, time.Second, time.Millisecond)

	assert.ErrorIs(t, f.Start(context.Background(), RunOptions{TurnTimeout: time.Second}), exception.ErrFloorRunning)

	f.Stop()
	require.NoError(t, <-done)
	assert.Equal(t, types.FloorIdle, f.Status().State)
}

func TestStopInterruptsDelayAndDrains(t *testing.T) {
	slow := &stubTrader{name: "slow", delay: 10 * time.Second}
	f, err := New([]interfaces.Trader{slow})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		done <- f.Start(context.Background(), RunOptions{InterCycleDelay: time.Hour, TurnTimeout: time.Minute})
	}()
	require.Eventually(t, func() bool { return slow.active.Load() == 1 }, time.Second, time.Millisecond)

	f.Stop()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("floor did not drain after Stop")
	}
	assert.Equal(t, int32(0), slow.active.Load())
	assert.Equal(t, types.FloorIdle, f.Status().State)

	// idle stop is a no-op
	f.Stop()
	assert.Equal(t, types.FloorIdle, f.Status().State)
}

func TestContextCancelEndsRun(t *testing.T) {
	f, err := New([]interfaces.Trader{&stubTrader{name: "a"}})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()
	require.NoError(t, f.Start(ctx, RunOptions{InterCycleDelay: time.Hour, TurnTimeout: time.Second}))
	assert.Equal(t, types.FloorIdle, f.Status().State)
}

func TestStartRequiresTurnTimeout(t *testing.T) {
	f, err := New([]interfaces.Trader{&stubTrader{name: "a"}})
	require.NoError(t, err)
	assert.Error(t, f.Start(context.Background(), RunOptions{}))
}

type hangingDecider struct{}

func (hangingDecider) Propose(context.Context, types.AccountSnapshot, types.MarketContext) ([]types.ProposedOrder, error) {
	select {}
}

type buyOne struct{}

func (buyOne) Propose(context.Context, types.AccountSnapshot, types.MarketContext) ([]types.ProposedOrder, error) {
	return []types.ProposedOrder{{Symbol: "AAPL", Side: types.SideBuy, Quantity: 1, Rationale: "test"}}, nil
}

type staticProvider struct{}

func (staticProvider) Fetch(context.Context, string) (decimal.Decimal, error) {
	return decimal.NewFromInt(100), nil
}

// One trader's decider never returns; the other two still finish the cycle.
func TestHungDeciderTimesOutAlone(t *testing.T) {
	st := store.NewMemory()
	md := marketdata.New(staticProvider{}, time.Minute, 0.002)

	var traders []interfaces.Trader
	for _, tc := range []struct {
		name string
		dec  interfaces.Decider
	}{
		{"alice", buyOne{}},
		{"bob", hangingDecider{}},
		{"carol", buyOne{}},
	} {
		acct, err := account.Get(context.Background(), st, tc.name, account.Options{InitialBalance: decimal.NewFromInt(10000)})
		require.NoError(t, err)
		tr, err := trader.New(trader.Options{
			Account:   acct,
			Decider:   tc.dec,
			Market:    md,
			Watchlist: []string{"AAPL"},
			Risk:      trader.RiskLimits{MaxPositionSize: decimal.RequireFromString("0.1")},
		})
		require.NoError(t, err)
		traders = append(traders, tr)
	}

	f, err := New(traders)
	require.NoError(t, err)
	var report types.CycleReport
	require.NoError(t, f.Subscribe(func(r types.CycleReport) { report = r }))

	start := time.Now()
	require.NoError(t, f.Start(context.Background(), RunOptions{MaxCycles: 1, TurnTimeout: 100 * time.Millisecond}))
	assert.Less(t, time.Since(start), 2*time.Second)

	require.Len(t, report.Outcomes, 3)
	assert.Equal(t, 2, report.Succeeded)
	assert.Equal(t, 1, report.Failed)

	byName := map[string]types.TurnOutcome{}
	for _, o := range report.Outcomes {
		byName[o.Trader] = o
	}
	assert.Equal(t, types.TurnSucceeded, byName["alice"].Status)
	assert.Equal(t, types.TurnSucceeded, byName["carol"].Status)
	assert.Equal(t, types.TurnDecisionTimeout, byName["bob"].Status)
	assert.ErrorIs(t, byName["bob"].Err, exception.ErrDecisionTimeout)
	assert.Len(t, byName["alice"].Applied, 1)
	assert.Empty(t, byName["bob"].Applied)

	status := f.Status()
	assert.Equal(t, 1, status.Traders["bob"].Failures)
	assert.Equal(t, 1, status.Traders["alice"].TurnsSucceeded)
}

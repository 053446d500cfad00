package trader

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ai-trading-floor/internal/account"
	"ai-trading-floor/internal/account/store"
	"ai-trading-floor/internal/exception"
	"ai-trading-floor/internal/logger"
	"ai-trading-floor/internal/marketdata"
	"ai-trading-floor/internal/tradelog"
	"ai-trading-floor/internal/types"
)

type deciderFunc func(ctx context.Context, snap types.AccountSnapshot, market types.MarketContext) ([]types.ProposedOrder, error)

func (f deciderFunc) Propose(ctx context.Context, snap types.AccountSnapshot, market types.MarketContext) ([]types.ProposedOrder, error) {
	return f(ctx, snap, market)
}

func orders(o ...types.ProposedOrder) deciderFunc {
	return func(context.Context, types.AccountSnapshot, types.MarketContext) ([]types.ProposedOrder, error) {
		return o, nil
	}
}

type fixedPrices map[string]decimal.Decimal

func (f fixedPrices) Fetch(ctx context.Context, symbol string) (decimal.Decimal, error) {
	p, ok := f[symbol]
	if !ok {
		return decimal.Zero, exception.ErrSymbolNotFound
	}
	return p, nil
}

// flakyStore fails every write once broken is set.
type flakyStore struct {
	*store.Memory
	broken atomic.Bool
}

func (s *flakyStore) Put(ctx context.Context, name string, rec types.AccountRecord) error {
	if s.broken.Load() {
		return errors.New("disk full")
	}
	return s.Memory.Put(ctx, name, rec)
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

var testPrices = fixedPrices{
	"AAPL": d("100"),
	"MSFT": d("300"),
}

type fixture struct {
	trader  *Trader
	acct    *account.Account
	journal *tradelog.Journal
	store   *flakyStore
}

func setup(t *testing.T, dec deciderFunc, limits RiskLimits, seed *types.AccountRecord) fixture {
	t.Helper()
	st := &flakyStore{Memory: store.NewMemory()}
	if seed != nil {
		require.NoError(t, st.Memory.Put(context.Background(), seed.Name, *seed))
	}
	acct, err := account.Get(context.Background(), st, "alice", account.Options{InitialBalance: d("10000"), Strategy: "test"})
	require.NoError(t, err)

	j := tradelog.New(t.TempDir())
	tr, err := New(Options{
		Account:   acct,
		Decider:   dec,
		Market:    marketdata.New(testPrices, time.Minute, 0.002),
		Watchlist: []string{"aapl", "MSFT"},
		Spread:    d("0.002"),
		Risk:      limits,
		Journal:   j,
	})
	require.NoError(t, err)
	return fixture{trader: tr, acct: acct, journal: j, store: st}
}

var defaultLimits = RiskLimits{MaxPositionSize: d("0.1"), StopLoss: d("0.05")}

func TestRunTurnAppliesOrders(t *testing.T) {
	var seen types.MarketContext
	dec := func(_ context.Context, snap types.AccountSnapshot, market types.MarketContext) ([]types.ProposedOrder, error) {
		seen = market
		return []types.ProposedOrder{
			{Symbol: "aapl", Side: types.SideBuy, Quantity: 5, Rationale: "cheap"},
			{Symbol: "AAPL", Side: types.SideSell, Quantity: 2, Rationale: "trim"},
		}, nil
	}
	f := setup(t, dec, defaultLimits, nil)

	out := f.trader.RunTurn(context.Background(), 1)

	require.Equal(t, types.TurnSucceeded, out.Status, out.ErrString())
	require.Len(t, out.Applied, 2)
	assert.Empty(t, out.Rejected)
	assert.True(t, out.Applied[0].Price.Equal(d("100.1")))
	assert.True(t, out.Applied[1].Price.Equal(d("99.9")))
	assert.Equal(t, map[string]int64{"AAPL": 3}, f.acct.Holdings())
	// 10000 - 500.5 + 199.8
	assert.True(t, f.acct.Balance().Equal(d("9699.3")), "balance %s", f.acct.Balance())

	require.NotNil(t, out.Valuation)
	assert.True(t, out.Valuation.Value.Equal(d("9999.3")), "value %s", out.Valuation.Value)
	assert.Len(t, f.acct.Valuations(), 1)

	assert.Equal(t, []string{"AAPL", "MSFT"}, seen.Watchlist)
	assert.True(t, seen.Prices["MSFT"].Equal(d("300")))

	entries, err := f.journal.Read("alice", time.Now())
	require.NoError(t, err)
	assert.Len(t, entries, 3)

	stats := f.trader.Stats()
	assert.Equal(t, 1, stats.TurnsAttempted)
	assert.Equal(t, 1, stats.TurnsSucceeded)
	assert.False(t, stats.Busy)

	// valuation survives a reload
	rec, found, err := f.store.Get(context.Background(), "alice")
	require.NoError(t, err)
	require.True(t, found)
	assert.Len(t, rec.Valuations, 1)
}

func TestRunTurnRejectsIndividualOrders(t *testing.T) {
	dec := orders(
		types.ProposedOrder{Symbol: "ZZZZ", Side: types.SideBuy, Quantity: 1},
		types.ProposedOrder{Symbol: "AAPL", Side: types.SideBuy, Quantity: 20},
		types.ProposedOrder{Symbol: "AAPL", Side: "HOLD", Quantity: 1},
		types.ProposedOrder{Symbol: "MSFT", Side: types.SideSell, Quantity: 1},
		types.ProposedOrder{Symbol: "AAPL", Side: types.SideBuy, Quantity: 0},
		types.ProposedOrder{Symbol: "AAPL", Side: types.SideBuy, Quantity: 9},
	)
	f := setup(t, dec, defaultLimits, nil)

	out := f.trader.RunTurn(context.Background(), 1)

	require.Equal(t, types.TurnSucceeded, out.Status)
	require.Len(t, out.Applied, 1)
	assert.Equal(t, int64(9), out.Applied[0].Quantity)
	require.Len(t, out.Rejected, 5)
	assert.ErrorIs(t, out.Rejected[0].Err, exception.ErrSymbolNotFound)
	assert.ErrorIs(t, out.Rejected[1].Err, exception.ErrPositionLimit)
	assert.ErrorIs(t, out.Rejected[2].Err, exception.ErrInvalidAmount)
	assert.ErrorIs(t, out.Rejected[3].Err, exception.ErrInsufficientHoldings)
	assert.ErrorIs(t, out.Rejected[4].Err, exception.ErrInvalidAmount)
	assert.NotEmpty(t, out.Rejected[1].Reason)
}

func TestRunTurnInsufficientFundsSkipsOnlyThatOrder(t *testing.T) {
	dec := orders(
		types.ProposedOrder{Symbol: "MSFT", Side: types.SideBuy, Quantity: 40},
		types.ProposedOrder{Symbol: "AAPL", Side: types.SideBuy, Quantity: 1},
	)
	f := setup(t, dec, RiskLimits{}, nil)

	out := f.trader.RunTurn(context.Background(), 1)

	require.Equal(t, types.TurnSucceeded, out.Status)
	require.Len(t, out.Rejected, 1)
	assert.ErrorIs(t, out.Rejected[0].Err, exception.ErrInsufficientFunds)
	require.Len(t, out.Applied, 1)
	assert.Equal(t, "AAPL", out.Applied[0].Symbol)
}

func TestRunTurnDecisionTimeout(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	// ignores ctx entirely
	dec := func(context.Context, types.AccountSnapshot, types.MarketContext) ([]types.ProposedOrder, error) {
		<-release
		return []types.ProposedOrder{{Symbol: "AAPL", Side: types.SideBuy, Quantity: 1}}, nil
	}
	f := setup(t, dec, defaultLimits, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	out := f.trader.RunTurn(ctx, 1)

	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, types.TurnDecisionTimeout, out.Status)
	assert.ErrorIs(t, out.Err, exception.ErrDecisionTimeout)
	assert.Empty(t, out.Applied)
	assert.Empty(t, f.acct.Transactions())

	stats := f.trader.Stats()
	assert.Equal(t, 1, stats.Failures)
	assert.Equal(t, types.TurnDecisionTimeout, stats.LastStatus)
}

func TestRunTurnDecisionError(t *testing.T) {
	dec := func(context.Context, types.AccountSnapshot, types.MarketContext) ([]types.ProposedOrder, error) {
		return nil, errors.New("model unavailable")
	}
	f := setup(t, dec, defaultLimits, nil)

	out := f.trader.RunTurn(context.Background(), 1)

	assert.Equal(t, types.TurnDecisionError, out.Status)
	assert.ErrorIs(t, out.Err, exception.ErrDecisionError)
	assert.Contains(t, out.Err.Error(), "model unavailable")
	assert.Empty(t, f.acct.Transactions())
}

func TestRunTurnCancelled(t *testing.T) {
	started := make(chan struct{})
	dec := func(ctx context.Context, _ types.AccountSnapshot, _ types.MarketContext) ([]types.ProposedOrder, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	}
	f := setup(t, dec, defaultLimits, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()
	out := f.trader.RunTurn(ctx, 1)

	assert.Equal(t, types.TurnCancelled, out.Status)
	assert.ErrorIs(t, out.Err, context.Canceled)
}

func TestRunTurnRefusesOverlap(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	dec := func(context.Context, types.AccountSnapshot, types.MarketContext) ([]types.ProposedOrder, error) {
		close(entered)
		<-release
		return nil, nil
	}
	f := setup(t, dec, defaultLimits, nil)

	done := make(chan types.TurnOutcome, 1)
	go func() { done <- f.trader.RunTurn(context.Background(), 1) }()
	<-entered

	assert.True(t, f.trader.Stats().Busy)
	second := f.trader.RunTurn(context.Background(), 2)
	assert.Equal(t, types.TurnFailed, second.Status)
	assert.ErrorIs(t, second.Err, exception.ErrTurnInProgress)

	close(release)
	first := <-done
	assert.Equal(t, types.TurnSucceeded, first.Status)
	assert.Equal(t, 1, f.trader.Stats().TurnsAttempted)
}

func TestRunTurnPersistenceError(t *testing.T) {
	dec := orders(
		types.ProposedOrder{Symbol: "AAPL", Side: types.SideBuy, Quantity: 1},
		types.ProposedOrder{Symbol: "AAPL", Side: types.SideBuy, Quantity: 1},
	)
	f := setup(t, dec, defaultLimits, nil)
	f.store.broken.Store(true)

	out := f.trader.RunTurn(context.Background(), 1)

	assert.Equal(t, types.TurnPersistenceError, out.Status)
	assert.ErrorIs(t, out.Err, exception.ErrPersistence)
	assert.Len(t, out.Applied, 2)
	assert.Equal(t, int64(2), f.acct.Holdings()["AAPL"])
}

func TestRiskStopLossBlocksAveragingDown(t *testing.T) {
	seed := &types.AccountRecord{
		Name:     "alice",
		Balance:  d("9000"),
		Holdings: map[string]int64{"AAPL": 10},
		Transactions: []types.Transaction{
			{ID: "t1", Symbol: "AAPL", Quantity: 10, Price: d("110")},
		},
	}
	dec := orders(
		types.ProposedOrder{Symbol: "AAPL", Side: types.SideBuy, Quantity: 1},
		types.ProposedOrder{Symbol: "AAPL", Side: types.SideSell, Quantity: 10},
	)
	f := setup(t, dec, RiskLimits{StopLoss: d("0.05")}, seed)

	out := f.trader.RunTurn(context.Background(), 1)

	require.Equal(t, types.TurnSucceeded, out.Status)
	require.Len(t, out.Rejected, 1)
	assert.ErrorIs(t, out.Rejected[0].Err, exception.ErrStopLoss)
	require.Len(t, out.Applied, 1)
	assert.Equal(t, types.SideSell, out.Applied[0].Side())
	assert.Empty(t, f.acct.Holdings())
}

func TestRiskDrawdownBlocksBuys(t *testing.T) {
	seed := &types.AccountRecord{Name: "alice", Balance: d("9000"), Holdings: map[string]int64{}}
	dec := orders(types.ProposedOrder{Symbol: "AAPL", Side: types.SideBuy, Quantity: 1})
	f := setup(t, dec, defaultLimits, seed)

	out := f.trader.RunTurn(context.Background(), 1)

	require.Len(t, out.Rejected, 1)
	assert.ErrorIs(t, out.Rejected[0].Err, exception.ErrStopLoss)
}

func TestNewValidatesCollaborators(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}

func TestRunTurnJournalFailureIsLoggedNotFatal(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "floor.log")
	require.NoError(t, logger.InitWithConfig(logger.LogConfig{Level: "INFO", Format: "json", File: logPath}))
	t.Cleanup(func() {
		_ = logger.Shutdown(context.Background())
		_ = logger.InitWithConfig(logger.LogConfig{Level: "INFO", Format: "json"})
	})

	blocked := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(blocked, []byte("x"), 0o644))

	f := setup(t, orders(types.ProposedOrder{Symbol: "AAPL", Side: types.SideBuy, Quantity: 1}), defaultLimits, nil)
	f.trader.journal = tradelog.New(blocked)

	out := f.trader.RunTurn(context.Background(), 1)
	assert.Equal(t, types.TurnSucceeded, out.Status)
	require.Len(t, out.Applied, 1)

	b, err := os.ReadFile(logPath)
	require.NoError(t, err)
	// one for the decision entry, one for the fill
	assert.Equal(t, 2, strings.Count(string(b), "Journal write failed"))
}

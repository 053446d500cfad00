package rules

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ai-trading-floor/internal/types"
)

// zigzag climbs half a point every two steps with RSI pinned near 57.
func zigzag(n int) []float64 {
	p := []float64{100}
	for i := 1; i < n; i++ {
		if i%2 == 1 {
			p = append(p, p[i-1]+2)
		} else {
			p = append(p, p[i-1]-1.5)
		}
	}
	return p
}

func propose(t *testing.T, d *Decider, snap types.AccountSnapshot, sym string, mid float64) []types.ProposedOrder {
	t.Helper()
	orders, err := d.Propose(context.Background(), snap, types.MarketContext{
		Time:   time.Now(),
		Prices: map[string]decimal.Decimal{sym: decimal.NewFromFloat(mid)},
	})
	require.NoError(t, err)
	return orders
}

func TestMomentumBuysConfirmedUptrend(t *testing.T) {
	d, err := New(StyleMomentum, 0.05)
	require.NoError(t, err)
	snap := types.AccountSnapshot{Name: "m", Balance: decimal.NewFromInt(10000)}

	prices := zigzag(20)
	for _, p := range prices[:19] {
		assert.Empty(t, propose(t, d, snap, "AAPL", p), "no signal before SMA20 exists")
	}

	orders := propose(t, d, snap, "AAPL", prices[19])
	require.Len(t, orders, 1)
	assert.Equal(t, types.SideBuy, orders[0].Side)
	// 500 / 106.5
	assert.Equal(t, int64(4), orders[0].Quantity)
	assert.Contains(t, orders[0].Rationale, "uptrend")
}

func TestMomentumSellsBrokenTrend(t *testing.T) {
	d, err := New(StyleMomentum, 0.05)
	require.NoError(t, err)
	for _, p := range zigzag(20) {
		d.Observe("AAPL", p)
	}

	flat := types.AccountSnapshot{Name: "m", Balance: decimal.NewFromInt(10000)}
	assert.Empty(t, propose(t, d, flat, "AAPL", 90), "nothing to sell")

	held := types.AccountSnapshot{Name: "m", Balance: decimal.NewFromInt(10000), Holdings: map[string]int64{"AAPL": 7}}
	orders := propose(t, d, held, "AAPL", 89)
	require.Len(t, orders, 1)
	assert.Equal(t, types.SideSell, orders[0].Side)
	assert.Equal(t, int64(7), orders[0].Quantity)
}

func TestContrarianBuysOversoldSellsOverbought(t *testing.T) {
	d, err := New(StyleContrarian, 0.05)
	require.NoError(t, err)
	snap := types.AccountSnapshot{Name: "c", Balance: decimal.NewFromInt(10000), Holdings: map[string]int64{"MSFT": 3}}

	for p := 100.0; p > 86; p-- {
		assert.Empty(t, propose(t, d, snap, "AAPL", p))
	}
	orders := propose(t, d, snap, "AAPL", 86)
	require.Len(t, orders, 1)
	assert.Equal(t, types.SideBuy, orders[0].Side)
	assert.Equal(t, int64(5), orders[0].Quantity)

	for p := 100.0; p < 115; p++ {
		d.Observe("MSFT", p)
	}
	orders = propose(t, d, snap, "MSFT", 115)
	require.Len(t, orders, 1)
	assert.Equal(t, types.SideSell, orders[0].Side)
	assert.Equal(t, int64(3), orders[0].Quantity)
}

func TestBuysShareCash(t *testing.T) {
	d, err := New(StyleContrarian, 0.5)
	require.NoError(t, err)
	for p := 100.0; p > 85; p-- {
		d.Observe("AAA", p)
		d.Observe("BBB", p)
	}

	orders, err := d.Propose(context.Background(),
		types.AccountSnapshot{Balance: decimal.NewFromInt(2000)},
		types.MarketContext{Prices: map[string]decimal.Decimal{
			"AAA": decimal.NewFromInt(85),
			"BBB": decimal.NewFromInt(85),
		}})
	require.NoError(t, err)
	require.Len(t, orders, 2)
	// 1000/85 buys 11, then half of the remaining 1065 buys 6
	assert.Equal(t, "AAA", orders[0].Symbol)
	assert.Equal(t, int64(11), orders[0].Quantity)
	assert.Equal(t, "BBB", orders[1].Symbol)
	assert.Equal(t, int64(6), orders[1].Quantity)
}

func TestHistoryIsBounded(t *testing.T) {
	d, err := New(StyleMomentum, 0.1)
	require.NoError(t, err)
	for i := 0; i < 3*historyWindow; i++ {
		d.Observe("AAPL", float64(i))
	}
	assert.Len(t, d.history["AAPL"], historyWindow)
	assert.Equal(t, float64(3*historyWindow-1), d.history["AAPL"][historyWindow-1])
}

func TestNewValidates(t *testing.T) {
	_, err := New("SCALPER", 0.1)
	assert.Error(t, err)
	_, err = New(StyleMomentum, 0)
	assert.Error(t, err)

	d, err := New(" contrarian ", 0.5)
	require.NoError(t, err)
	assert.Equal(t, StyleContrarian, d.style)
}

func TestProposeHonorsCancelledContext(t *testing.T) {
	d, err := New(StyleMomentum, 0.1)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = d.Propose(ctx, types.AccountSnapshot{}, types.MarketContext{})
	assert.ErrorIs(t, err, context.Canceled)
}

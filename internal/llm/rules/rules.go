// Package rules holds deterministic deciders driven by indicators over the
// mids seen in earlier turns.
package rules

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"ai-trading-floor/internal/logger"
	"ai-trading-floor/internal/ta"
	"ai-trading-floor/internal/types"
)

const (
	StyleMomentum   = "MOMENTUM"
	StyleContrarian = "CONTRARIAN"

	historyWindow = 60
	shortPeriod   = 5
	longPeriod    = 20
	rsiPeriod     = 14
	bandPeriod    = 20
	bandWidth     = 2.0
)

type Decider struct {
	style  string
	budget decimal.Decimal

	mu      sync.Mutex
	history map[string][]float64
}

// New returns a rules decider. budget is the fraction of cash committed to
// one new buy.
func New(style string, budget float64) (*Decider, error) {
	style = strings.ToUpper(strings.TrimSpace(style))
	if style == "" {
		style = StyleMomentum
	}
	if style != StyleMomentum && style != StyleContrarian {
		return nil, fmt.Errorf("unknown rules style %q", style)
	}
	if budget <= 0 || budget > 1 {
		return nil, fmt.Errorf("rules budget must be in (0,1], got %v", budget)
	}
	return &Decider{
		style:   style,
		budget:  decimal.NewFromFloat(budget),
		history: make(map[string][]float64),
	}, nil
}

// Observe appends a mid to the symbol's history.
func (d *Decider) Observe(symbol string, mid float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.observeLocked(symbol, mid)
}

func (d *Decider) observeLocked(symbol string, mid float64) {
	h := append(d.history[symbol], mid)
	if len(h) > historyWindow {
		h = h[len(h)-historyWindow:]
	}
	d.history[symbol] = h
}

type signal int

const (
	hold signal = iota
	buy
	sell
)

func (d *Decider) Propose(ctx context.Context, snap types.AccountSnapshot, market types.MarketContext) ([]types.ProposedOrder, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	symbols := make([]string, 0, len(market.Prices))
	for s := range market.Prices {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)

	d.mu.Lock()
	defer d.mu.Unlock()

	cash := snap.Balance
	var orders []types.ProposedOrder
	for _, sym := range symbols {
		mid := market.Prices[sym]
		price, _ := mid.Float64()
		d.observeLocked(sym, price)

		sig, why := d.evaluate(d.history[sym])
		switch sig {
		case buy:
			qty := cash.Mul(d.budget).Div(mid).IntPart()
			if qty <= 0 {
				continue
			}
			cash = cash.Sub(mid.Mul(decimal.NewFromInt(qty)))
			orders = append(orders, types.ProposedOrder{Symbol: sym, Side: types.SideBuy, Quantity: qty, Rationale: why})
		case sell:
			if held := snap.Holdings[sym]; held > 0 {
				orders = append(orders, types.ProposedOrder{Symbol: sym, Side: types.SideSell, Quantity: held, Rationale: why})
			}
		}
	}

	logger.Debug(ctx, "Rules decision", "trader", snap.Name, "style", d.style, "orders", len(orders))
	return orders, nil
}

func (d *Decider) evaluate(closes []float64) (signal, string) {
	if len(closes) == 0 {
		return hold, ""
	}
	price := closes[len(closes)-1]
	rsi := ta.RSI(closes, rsiPeriod)

	if d.style == StyleContrarian {
		_, _, lower := ta.Bollinger(closes, bandPeriod, bandWidth)
		switch {
		case !math.IsNaN(rsi) && rsi > 70:
			return sell, fmt.Sprintf("RSI %.1f overbought", rsi)
		case !math.IsNaN(rsi) && rsi < 30:
			return buy, fmt.Sprintf("RSI %.1f oversold", rsi)
		case !math.IsNaN(lower) && price < lower:
			return buy, fmt.Sprintf("price %.2f below lower band %.2f", price, lower)
		}
		return hold, ""
	}

	short := ta.SMA(closes, shortPeriod)
	long := ta.SMA(closes, longPeriod)
	if math.IsNaN(short) || math.IsNaN(long) || math.IsNaN(rsi) {
		return hold, ""
	}
	switch {
	case rsi > 75:
		return sell, fmt.Sprintf("RSI %.1f stretched", rsi)
	case price < long:
		return sell, fmt.Sprintf("price %.2f lost SMA%d %.2f", price, longPeriod, long)
	case price > short && short > long && rsi < 70:
		return buy, fmt.Sprintf("uptrend: price %.2f > SMA%d %.2f > SMA%d %.2f", price, shortPeriod, short, longPeriod, long)
	}
	return hold, ""
}

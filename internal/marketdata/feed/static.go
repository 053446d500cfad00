package feed

import (
	"context"
	"fmt"
	"hash/fnv"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"ai-trading-floor/internal/exception"
)

// Static is an offline provider: every known symbol does a bounded random
// walk around its base price on each fetch.
type Static struct {
	mu         sync.Mutex
	prices     map[string]float64
	volatility float64
	rng        *rand.Rand
}

// NewStatic seeds the walk with base prices. Watchlist symbols without a base
// get a deterministic one derived from the ticker so runs are repeatable.
func NewStatic(base map[string]float64, watchlist []string, volatility float64, seed int64) *Static {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	prices := make(map[string]float64, len(base)+len(watchlist))
	for sym, p := range base {
		if p > 0 {
			prices[strings.ToUpper(sym)] = p
		}
	}
	for _, sym := range watchlist {
		sym = strings.ToUpper(sym)
		if _, ok := prices[sym]; !ok {
			prices[sym] = basePriceFor(sym)
		}
	}
	return &Static{
		prices:     prices,
		volatility: volatility,
		rng:        rand.New(rand.NewSource(seed)),
	}
}

func basePriceFor(symbol string) float64 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(symbol))
	return 50 + float64(h.Sum32()%45000)/100
}

func (s *Static) Fetch(ctx context.Context, symbol string) (decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return decimal.Zero, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.prices[symbol]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", exception.ErrSymbolNotFound, symbol)
	}
	step := (s.rng.Float64()*2 - 1) * s.volatility
	p *= 1 + step
	if p < 0.01 {
		p = 0.01
	}
	s.prices[symbol] = p
	return decimal.NewFromFloat(p).Round(2), nil
}

package marketdata

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"ai-trading-floor/internal/exception"
	"ai-trading-floor/internal/interfaces"
	"ai-trading-floor/internal/logger"
	"ai-trading-floor/internal/types"
)

const (
	defaultFetchTimeout = 10 * time.Second
	snapshotParallelism = 8
)

var two = decimal.NewFromInt(2)

// entry is a cached mid price. fetchedAt is checked against the TTL on every
// read so freshness follows the injected clock; go-cache only evicts.
type entry struct {
	mid       decimal.Decimal
	fetchedAt time.Time
}

// Source wraps a PriceProvider with a per-symbol TTL cache, request
// coalescing and a spread model.
type Source struct {
	provider     interfaces.PriceProvider
	cache        *cache.Cache
	flights      singleflight.Group
	ttl          time.Duration
	halfSpread   decimal.Decimal
	spread       decimal.Decimal
	fetchTimeout time.Duration
	now          func() time.Time
}

var _ interfaces.MarketData = (*Source)(nil)

type Option func(*Source)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Source) { s.now = now }
}

// WithFetchTimeout bounds a single upstream fetch. The fetch is shared by all
// waiters, so it is detached from any one caller's cancellation.
func WithFetchTimeout(d time.Duration) Option {
	return func(s *Source) { s.fetchTimeout = d }
}

func New(provider interfaces.PriceProvider, ttl time.Duration, spread float64, opts ...Option) *Source {
	s := &Source{
		provider:     provider,
		cache:        cache.New(ttl, 2*ttl),
		ttl:          ttl,
		spread:       decimal.NewFromFloat(spread),
		halfSpread:   decimal.NewFromFloat(spread).Div(two),
		fetchTimeout: defaultFetchTimeout,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func normalize(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// Spread returns the configured fractional spread.
func (s *Source) Spread() decimal.Decimal {
	return s.spread
}

// Price returns the mid price for symbol, fetching at most once per TTL.
func (s *Source) Price(ctx context.Context, symbol string) (decimal.Decimal, error) {
	e, err := s.lookup(ctx, symbol)
	if err != nil {
		return decimal.Zero, err
	}
	return e.mid, nil
}

func (s *Source) BuyPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	mid, err := s.Price(ctx, symbol)
	if err != nil {
		return decimal.Zero, err
	}
	return s.ExecutionPrice(types.SideBuy, mid), nil
}

func (s *Source) SellPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	mid, err := s.Price(ctx, symbol)
	if err != nil {
		return decimal.Zero, err
	}
	return s.ExecutionPrice(types.SideSell, mid), nil
}

// ExecutionPrice applies the spread to a mid: buys pay mid*(1+spread/2),
// sells receive mid*(1-spread/2).
func (s *Source) ExecutionPrice(side types.Side, mid decimal.Decimal) decimal.Decimal {
	if side == types.SideSell {
		return mid.Mul(decimal.NewFromInt(1).Sub(s.halfSpread))
	}
	return mid.Mul(decimal.NewFromInt(1).Add(s.halfSpread))
}

func (s *Source) Quote(ctx context.Context, symbol string) (types.Quote, error) {
	e, err := s.lookup(ctx, symbol)
	if err != nil {
		return types.Quote{}, err
	}
	return types.Quote{
		Symbol:    normalize(symbol),
		Mid:       e.mid,
		Bid:       s.ExecutionPrice(types.SideSell, e.mid),
		Ask:       s.ExecutionPrice(types.SideBuy, e.mid),
		FetchedAt: e.fetchedAt,
	}, nil
}

// Prices fetches mids for a set of symbols concurrently. Symbols that fail
// are left out of the map and the first error is returned with it.
func (s *Source) Prices(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error) {
	var (
		mu       sync.Mutex
		out      = make(map[string]decimal.Decimal, len(symbols))
		firstErr error
		g        errgroup.Group
	)
	g.SetLimit(snapshotParallelism)

	for _, sym := range symbols {
		sym := normalize(sym)
		if sym == "" {
			continue
		}
		g.Go(func() error {
			mid, err := s.Price(ctx, sym)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = fmt.Errorf("price %s: %w", sym, err)
				}
				return nil
			}
			out[sym] = mid
			return nil
		})
	}
	_ = g.Wait()
	return out, firstErr
}

func (s *Source) fresh(symbol string) (entry, bool) {
	v, ok := s.cache.Get(symbol)
	if !ok {
		return entry{}, false
	}
	e := v.(entry)
	if s.now().Sub(e.fetchedAt) >= s.ttl {
		return entry{}, false
	}
	return e, true
}

func (s *Source) lookup(ctx context.Context, symbol string) (entry, error) {
	symbol = normalize(symbol)
	if symbol == "" {
		return entry{}, fmt.Errorf("%w: empty symbol", exception.ErrSymbolNotFound)
	}

	if e, ok := s.fresh(symbol); ok {
		logger.Debug(ctx, "Price cache hit", "symbol", symbol)
		return e, nil
	}

	ch := s.flights.DoChan(symbol, func() (any, error) {
		// a flight that finished just before this one may have filled the cache
		if e, ok := s.fresh(symbol); ok {
			return e, nil
		}

		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.fetchTimeout)
		defer cancel()

		mid, err := s.provider.Fetch(fetchCtx, symbol)
		if err != nil {
			return nil, err
		}
		if !mid.IsPositive() {
			return nil, fmt.Errorf("%w: %s returned non-positive price %s", exception.ErrSymbolNotFound, symbol, mid)
		}

		e := entry{mid: mid, fetchedAt: s.now()}
		s.cache.SetDefault(symbol, e)
		logger.Debug(ctx, "Price fetched", "symbol", symbol, "mid", mid.String())
		return e, nil
	})

	select {
	case <-ctx.Done():
		return entry{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			if !errors.Is(res.Err, exception.ErrSymbolNotFound) {
				logger.Warn(ctx, "Price fetch failed", "symbol", symbol, "error", res.Err, "shared", res.Shared)
			}
			return entry{}, res.Err
		}
		return res.Val.(entry), nil
	}
}

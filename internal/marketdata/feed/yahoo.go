package feed

import (
	"context"
	"fmt"

	"github.com/piquette/finance-go/quote"
	"github.com/shopspring/decimal"

	"ai-trading-floor/internal/exception"
)

// Yahoo reads the regular market price from Yahoo Finance.
type Yahoo struct{}

func NewYahoo() *Yahoo {
	return &Yahoo{}
}

type yahooResult struct {
	price float64
	found bool
	err   error
}

func (y *Yahoo) Fetch(ctx context.Context, symbol string) (decimal.Decimal, error) {
	// finance-go has no context support; run it aside and honor ctx here
	ch := make(chan yahooResult, 1)
	go func() {
		q, err := quote.Get(symbol)
		if err != nil {
			ch <- yahooResult{err: err}
			return
		}
		if q == nil {
			ch <- yahooResult{}
			return
		}
		ch <- yahooResult{price: q.RegularMarketPrice, found: true}
	}()

	select {
	case <-ctx.Done():
		return decimal.Zero, ctx.Err()
	case r := <-ch:
		if r.err != nil {
			return decimal.Zero, fmt.Errorf("yahoo %s: %w", symbol, r.err)
		}
		if !r.found || r.price <= 0 {
			return decimal.Zero, fmt.Errorf("%w: %s", exception.ErrSymbolNotFound, symbol)
		}
		return decimal.NewFromFloat(r.price), nil
	}
}

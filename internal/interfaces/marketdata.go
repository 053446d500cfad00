package interfaces

import (
	"context"

	"github.com/shopspring/decimal"

	"ai-trading-floor/internal/types"
)

// PriceProvider is an upstream quote source. It may be slow or unreliable.
type PriceProvider interface {
	Fetch(ctx context.Context, symbol string) (decimal.Decimal, error)
}

type MarketData interface {
	Price(ctx context.Context, symbol string) (decimal.Decimal, error)
	BuyPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
	SellPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
	Prices(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error)
	Quote(ctx context.Context, symbol string) (types.Quote, error)
}

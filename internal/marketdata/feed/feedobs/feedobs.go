package feedobs

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"ai-trading-floor/internal/exception"
	"ai-trading-floor/internal/interfaces"
	"ai-trading-floor/internal/logger"
	"ai-trading-floor/internal/trace"
)

// observableProvider wraps a PriceProvider with observability (logging & tracing)
type observableProvider struct {
	provider interfaces.PriceProvider
	name     string
}

// Compile-time interface check
var _ interfaces.PriceProvider = (*observableProvider)(nil)

// Wrap wraps a provider with observability middleware
func Wrap(name string, provider interfaces.PriceProvider) interfaces.PriceProvider {
	return &observableProvider{
		provider: provider,
		name:     name,
	}
}

func (op *observableProvider) Fetch(ctx context.Context, symbol string) (decimal.Decimal, error) {
	ctx, span := trace.StartSpan(ctx, "feed.Fetch")
	defer span.End()

	start := time.Now()

	price, err := op.provider.Fetch(ctx, symbol)
	if err != nil {
		if errors.Is(err, exception.ErrSymbolNotFound) {
			logger.WarnSkip(ctx, 1, "Symbol not found upstream",
				"provider", op.name,
				"symbol", symbol,
			)
		} else {
			logger.ErrorWithErrSkip(ctx, 1, "Failed to fetch price", err,
				"provider", op.name,
				"symbol", symbol,
				"duration_ms", time.Since(start).Milliseconds(),
			)
		}
		return decimal.Zero, err
	}

	logger.DebugSkip(ctx, 1, "Price fetched from provider",
		"provider", op.name,
		"symbol", symbol,
		"price", price.String(),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return price, nil
}

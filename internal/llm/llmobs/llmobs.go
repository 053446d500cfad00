package llmobs

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"

	"ai-trading-floor/internal/interfaces"
	"ai-trading-floor/internal/logger"
	"ai-trading-floor/internal/trace"
	"ai-trading-floor/internal/types"
)

// observableDecider wraps a Decider with observability (logging & tracing)
type observableDecider struct {
	name    string
	kind    string
	decider interfaces.Decider
}

// Compile-time interface check
var _ interfaces.Decider = (*observableDecider)(nil)

// Wrap wraps a decider with observability middleware
func Wrap(trader, kind string, decider interfaces.Decider) interfaces.Decider {
	return &observableDecider{
		name:    trader,
		kind:    kind,
		decider: decider,
	}
}

func (od *observableDecider) Propose(ctx context.Context, snap types.AccountSnapshot, market types.MarketContext) ([]types.ProposedOrder, error) {
	ctx, span := trace.StartSpan(ctx, "llm.Propose",
		oteltrace.WithAttributes(
			attribute.String("trader", od.name),
			attribute.String("decider", od.kind),
		),
	)
	defer span.End()

	start := time.Now()
	logger.DebugSkip(ctx, 1, "Requesting trading decision",
		"trader", od.name,
		"decider", od.kind,
		"cash", snap.Balance.StringFixed(2),
		"holdings", len(snap.Holdings),
		"symbols", len(market.Prices),
	)

	orders, err := od.decider.Propose(ctx, snap, market)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to get trading decision", err,
			"trader", od.name,
			"decider", od.kind,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return nil, err
	}

	if logger.IsDebugEnabled() {
		for _, o := range orders {
			logger.DebugSkip(ctx, 1, "Proposed order",
				"trader", od.name,
				"symbol", o.Symbol,
				"side", string(o.Side),
				"quantity", o.Quantity,
				"rationale", o.Rationale,
			)
		}
	}

	logger.InfoSkip(ctx, 1, "Trading decision received",
		"trader", od.name,
		"decider", od.kind,
		"orders", len(orders),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return orders, nil
}

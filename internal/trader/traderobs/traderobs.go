package traderobs

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"

	"ai-trading-floor/internal/interfaces"
	"ai-trading-floor/internal/logger"
	"ai-trading-floor/internal/trace"
	"ai-trading-floor/internal/types"
)

type observableTrader struct {
	trader interfaces.Trader
}

var _ interfaces.Trader = (*observableTrader)(nil)

func Wrap(t interfaces.Trader) interfaces.Trader {
	return &observableTrader{
		trader: t,
	}
}

func (ot *observableTrader) Name() string {
	return ot.trader.Name()
}

func (ot *observableTrader) Stats() types.TraderStats {
	return ot.trader.Stats()
}

func (ot *observableTrader) RunTurn(ctx context.Context, cycle int) types.TurnOutcome {
	ctx, span := trace.StartSpan(ctx, "trader.RunTurn",
		oteltrace.WithAttributes(
			attribute.String("trader", ot.trader.Name()),
			attribute.Int("cycle", cycle),
		),
	)
	defer span.End()

	logger.InfoSkip(ctx, 1, "Starting turn",
		"trader", ot.trader.Name(),
		"cycle", cycle,
	)

	out := ot.trader.RunTurn(ctx, cycle)
	span.SetAttributes(attribute.String("status", string(out.Status)))

	if out.Err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Turn failed", out.Err,
			"trader", out.Trader,
			"cycle", cycle,
			"status", out.Status,
			"applied", len(out.Applied),
			"rejected", len(out.Rejected),
			"duration_ms", out.Duration().Milliseconds(),
		)
		return out
	}

	fields := []any{
		"trader", out.Trader,
		"cycle", cycle,
		"status", out.Status,
		"applied", len(out.Applied),
		"rejected", len(out.Rejected),
		"duration_ms", out.Duration().Milliseconds(),
	}
	if out.Valuation != nil {
		fields = append(fields, "portfolio_value", out.Valuation.Value.StringFixed(2))
	}
	logger.InfoSkip(ctx, 1, "Turn completed", fields...)
	return out
}

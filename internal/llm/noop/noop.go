package noop

import (
	"context"

	"ai-trading-floor/internal/logger"
	"ai-trading-floor/internal/types"
)

// NoopDecider never trades.
type NoopDecider struct{}

func NewNoopDecider() *NoopDecider {
	return &NoopDecider{}
}

func (d *NoopDecider) Propose(ctx context.Context, snap types.AccountSnapshot, _ types.MarketContext) ([]types.ProposedOrder, error) {
	logger.Debug(ctx, "Noop decider called - holding", "trader", snap.Name)
	return nil, nil
}

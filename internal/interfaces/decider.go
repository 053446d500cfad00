package interfaces

import (
	"context"

	"ai-trading-floor/internal/types"
)

// Decider proposes orders for one account. The deadline travels in ctx.
type Decider interface {
	Propose(ctx context.Context, account types.AccountSnapshot, market types.MarketContext) ([]types.ProposedOrder, error)
}

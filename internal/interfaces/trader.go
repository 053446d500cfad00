package interfaces

import (
	"context"

	"ai-trading-floor/internal/types"
)

type Trader interface {
	Name() string
	RunTurn(ctx context.Context, cycle int) types.TurnOutcome
	Stats() types.TraderStats
}

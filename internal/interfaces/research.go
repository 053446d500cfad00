package interfaces

import (
	"context"

	"ai-trading-floor/internal/types"
)

type Researcher interface {
	Brief(ctx context.Context, symbol string) (types.ResearchBrief, error)
}

package interfaces

import (
	"context"

	"ai-trading-floor/internal/types"
)

// AccountStore is a key-value store of account records keyed by name.
type AccountStore interface {
	Get(ctx context.Context, name string) (types.AccountRecord, bool, error)
	Put(ctx context.Context, name string, record types.AccountRecord) error
}

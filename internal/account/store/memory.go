package store

import (
	"context"
	"sort"
	"sync"

	"ai-trading-floor/internal/interfaces"
	"ai-trading-floor/internal/types"
)

// Memory keeps records in a map. Nothing survives the process.
type Memory struct {
	mu      sync.RWMutex
	records map[string]types.AccountRecord
}

var _ interfaces.AccountStore = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{records: make(map[string]types.AccountRecord)}
}

func (m *Memory) Get(ctx context.Context, name string) (types.AccountRecord, bool, error) {
	if err := ctx.Err(); err != nil {
		return types.AccountRecord{}, false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[name]
	if !ok {
		return types.AccountRecord{}, false, nil
	}
	return rec.Clone(), true, nil
}

func (m *Memory) Put(ctx context.Context, name string, rec types.AccountRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[name] = rec.Clone()
	return nil
}

// Names lists stored accounts in sorted order.
func (m *Memory) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.records))
	for k := range m.records {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

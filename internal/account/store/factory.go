package store

import (
	"context"
	"fmt"

	"ai-trading-floor/internal/interfaces"
	"ai-trading-floor/internal/logger"
	config "ai-trading-floor/internal/store"
)

// New builds the account store named by persistence.driver.
func New(ctx context.Context, cfg *config.Config) (interfaces.AccountStore, error) {
	p := cfg.Persistence
	switch p.Driver {
	case "MEMORY":
		logger.Info(ctx, "Using in-memory account store")
		return NewMemory(), nil
	case "FILE":
		fs, err := NewFile(p.Path)
		if err != nil {
			return nil, err
		}
		logger.Info(ctx, "Using file account store", "dir", p.Path)
		return fs, nil
	case "POSTGRES":
		pg, err := NewPostgres(ctx, PostgresOption{
			Host:       p.Postgres.Host,
			Port:       p.Postgres.Port,
			User:       p.Postgres.User,
			Password:   p.Postgres.Password,
			Database:   p.Postgres.Database,
			SSLMode:    p.Postgres.SSLMode,
			ConnString: p.Postgres.ConnString,
		})
		if err != nil {
			return nil, err
		}
		logger.Info(ctx, "Using postgres account store", "host", p.Postgres.Host, "database", p.Postgres.Database)
		return pg, nil
	default:
		return nil, fmt.Errorf("unknown persistence driver %q", p.Driver)
	}
}

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"ai-trading-floor/internal/interfaces"
	"ai-trading-floor/internal/types"
)

const (
	defaultPostgresHost    = "localhost"
	defaultPostgresPort    = 5432
	defaultPostgresSSLMode = "disable"
)

// PostgresOption describes how to reach the accounts database.
type PostgresOption struct {
	Host       string
	Port       int
	User       string
	Password   string
	Database   string
	SSLMode    string
	ConnString string
	Config     *gorm.Config
}

// accountRow is one account. Balance and strategy are duplicated out of the
// document so they can be queried directly.
type accountRow struct {
	Name      string `gorm:"primaryKey;size:128"`
	Strategy  string
	Balance   string `gorm:"type:numeric(20,6)"`
	Record    string `gorm:"type:jsonb"`
	UpdatedAt time.Time
}

func (accountRow) TableName() string { return "accounts" }

type Postgres struct {
	db *gorm.DB
}

var _ interfaces.AccountStore = (*Postgres)(nil)

// NewPostgres connects and migrates the accounts table.
func NewPostgres(ctx context.Context, opt PostgresOption) (*Postgres, error) {
	config := opt.Config
	if config == nil {
		config = &gorm.Config{}
	}
	db, err := gorm.Open(postgres.Open(opt.dsn()), config)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.WithContext(ctx).AutoMigrate(&accountRow{}); err != nil {
		return nil, fmt.Errorf("migrate accounts: %w", err)
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) Get(ctx context.Context, name string) (types.AccountRecord, bool, error) {
	var row accountRow
	err := p.db.WithContext(ctx).Where("name = ?", name).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return types.AccountRecord{}, false, nil
	}
	if err != nil {
		return types.AccountRecord{}, false, fmt.Errorf("select %s: %w", name, err)
	}
	var rec types.AccountRecord
	if err := json.Unmarshal([]byte(row.Record), &rec); err != nil {
		return types.AccountRecord{}, false, fmt.Errorf("decode %s: %w", name, err)
	}
	if rec.Holdings == nil {
		rec.Holdings = map[string]int64{}
	}
	return rec, true, nil
}

func (p *Postgres) Put(ctx context.Context, name string, rec types.AccountRecord) error {
	row, err := toRow(name, rec)
	if err != nil {
		return err
	}
	err = p.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"strategy", "balance", "record", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("upsert %s: %w", name, err)
	}
	return nil
}

func (p *Postgres) Close() error {
	if p == nil || p.db == nil {
		return nil
	}
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func toRow(name string, rec types.AccountRecord) (accountRow, error) {
	b, err := json.Marshal(rec)
	if err != nil {
		return accountRow{}, fmt.Errorf("encode %s: %w", name, err)
	}
	return accountRow{
		Name:      name,
		Strategy:  rec.Strategy,
		Balance:   rec.Balance.StringFixed(6),
		Record:    string(b),
		UpdatedAt: time.Now().UTC(),
	}, nil
}

func (opt PostgresOption) dsn() string {
	if opt.ConnString != "" {
		return opt.ConnString
	}
	host := opt.Host
	if host == "" {
		host = defaultPostgresHost
	}
	port := opt.Port
	if port == 0 {
		port = defaultPostgresPort
	}
	sslMode := opt.SSLMode
	if sslMode == "" {
		sslMode = defaultPostgresSSLMode
	}

	u := &url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", host, port),
	}
	if opt.User != "" {
		if opt.Password != "" {
			u.User = url.UserPassword(opt.User, opt.Password)
		} else {
			u.User = url.User(opt.User)
		}
	}
	if opt.Database != "" {
		u.Path = "/" + opt.Database
	}
	q := url.Values{}
	q.Set("sslmode", sslMode)
	u.RawQuery = q.Encode()
	return u.String()
}

package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"ai-trading-floor/internal/account"
	accountstore "ai-trading-floor/internal/account/store"
	"ai-trading-floor/internal/interfaces"
	"ai-trading-floor/internal/llm"
	"ai-trading-floor/internal/logger"
	"ai-trading-floor/internal/marketdata"
	"ai-trading-floor/internal/marketdata/feed"
	"ai-trading-floor/internal/marketdata/feed/feedobs"
	"ai-trading-floor/internal/report"
	"ai-trading-floor/internal/research"
	"ai-trading-floor/internal/store"
	"ai-trading-floor/internal/tradelog"
	"ai-trading-floor/internal/trader"
	"ai-trading-floor/internal/trader/traderobs"
)

// system holds everything a command needs. Build it with bootstrap and
// release it with Close.
type system struct {
	cfg      *store.Config
	store    interfaces.AccountStore
	market   *marketdata.Source
	research *research.Service
	journal  *tradelog.Journal
	accounts []*account.Account
}

// initializeSystem loads .env, starts an env-driven logger so config errors
// are logged, then re-initializes logging and tracing from the config's log
// section.
func initializeSystem(path string) (*store.Config, error) {
	_ = godotenv.Load()
	if err := logger.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	cfg, err := store.LoadConfig(path)
	if err != nil {
		logger.ErrorWithErr(context.Background(), "Failed to load config", err, "path", path)
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := logger.InitWithConfig(logger.LogConfig{
		Level:           cfg.Log.Level,
		Format:          cfg.Log.Format,
		DetailedLogging: cfg.Log.Detailed,
		TracingEnabled:  cfg.Log.Tracing,
		File:            cfg.Log.File,
	}); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, nil
}

func shutdownSystem() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = logger.Shutdown(ctx)
}

// bootstrap opens the account store, the market data source, the research
// service and the journal, then loads every configured account.
func bootstrap(ctx context.Context, cfg *store.Config) (*system, error) {
	st, err := accountstore.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open account store: %w", err)
	}
	sys := &system{
		cfg:     cfg,
		store:   st,
		journal: tradelog.New(cfg.Journal.Dir),
	}

	sys.market, err = initializeMarketData(ctx, cfg)
	if err != nil {
		sys.Close()
		return nil, err
	}
	sys.research = initializeResearch(ctx, cfg)

	for _, tc := range cfg.Traders {
		acct, err := account.Get(ctx, st, tc.Name, account.Options{
			InitialBalance: decimal.NewFromFloat(cfg.Trading.InitialBalance),
			Strategy:       tc.Strategy,
		})
		if err != nil {
			sys.Close()
			return nil, fmt.Errorf("failed to load account %s: %w", tc.Name, err)
		}
		sys.accounts = append(sys.accounts, acct)
	}
	return sys, nil
}

func (s *system) Close() {
	if c, ok := s.store.(io.Closer); ok {
		_ = c.Close()
	}
}

// initializeMarketData builds the configured price feed with observability
// and puts the cached, spread-aware source in front of it.
func initializeMarketData(ctx context.Context, cfg *store.Config) (*marketdata.Source, error) {
	p, err := feed.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create price feed: %w", err)
	}
	if cfg.MarketData.Provider == "STATIC" {
		logger.Warn(ctx, "Using STATIC simulated prices")
	} else {
		logger.Info(ctx, "Using live prices", "provider", cfg.MarketData.Provider)
	}
	return marketdata.New(feedobs.Wrap(strings.ToLower(cfg.MarketData.Provider), p), cfg.MarketData.CacheTTL, cfg.Trading.Spread), nil
}

func initializeResearch(ctx context.Context, cfg *store.Config) *research.Service {
	if !cfg.Research.Enabled {
		logger.Info(ctx, "Research disabled - deciders get neutral briefs")
	}
	scraper := research.NewScraper(cfg.Research.ScraperTimeout)
	return research.NewService(scraper, research.OptionsFromConfig(cfg))
}

// initializeTraders builds one observable trader per configured account.
func (s *system) initializeTraders(ctx context.Context) ([]interfaces.Trader, error) {
	risk := trader.RiskLimits{
		MaxPositionSize: decimal.NewFromFloat(s.cfg.Trading.MaxPositionSize),
		StopLoss:        decimal.NewFromFloat(s.cfg.Trading.StopLossPercentage),
	}
	traders := make([]interfaces.Trader, 0, len(s.cfg.Traders))
	for i, tc := range s.cfg.Traders {
		decider, err := llm.New(s.cfg, tc, s.research)
		if err != nil {
			return nil, err
		}
		t, err := trader.New(trader.Options{
			Account:   s.accounts[i],
			Decider:   decider,
			Market:    s.market,
			Watchlist: s.cfg.Trading.Watchlist,
			Spread:    decimal.NewFromFloat(s.cfg.Trading.Spread),
			Risk:      risk,
			Journal:   s.journal,
		})
		if err != nil {
			return nil, fmt.Errorf("trader %s: %w", tc.Name, err)
		}
		logger.Info(ctx, "Trader ready", "trader", tc.Name, "decider", tc.Decider, "strategy", tc.Strategy)
		traders = append(traders, traderobs.Wrap(t))
	}
	return traders, nil
}

// summaries values every account at current mids for its holdings and the
// watchlist. Missing prices fall back to each account's own history.
func (s *system) summaries(ctx context.Context) ([]report.Summary, error) {
	set := map[string]bool{}
	for _, sym := range s.cfg.Trading.Watchlist {
		set[sym] = true
	}
	for _, a := range s.accounts {
		for _, sym := range a.HeldSymbols() {
			set[sym] = true
		}
	}
	symbols := make([]string, 0, len(set))
	for sym := range set {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	prices, err := s.market.Prices(ctx, symbols)
	if err != nil {
		logger.Warn(ctx, "Some prices unavailable", "error", err, "priced", len(prices))
	}

	out := make([]report.Summary, 0, len(s.accounts))
	for _, a := range s.accounts {
		sum, err := report.Performance(a, prices)
		if err != nil {
			return nil, err
		}
		out = append(out, sum)
	}
	return out, nil
}

// writeTradeSummaries writes one trades CSV per trader for day.
func (s *system) writeTradeSummaries(ctx context.Context, day time.Time) {
	for _, a := range s.accounts {
		p, err := report.WriteTradeSummary(s.cfg.Report.Dir, s.journal, a.Name(), day)
		if err != nil {
			logger.ErrorWithErr(ctx, "Trade summary failed", err, "trader", a.Name())
			continue
		}
		if p != "" {
			logger.Info(ctx, "Trade summary written", "trader", a.Name(), "csv_path", p)
		}
	}
}

// compressOldLogs gzips journal files past the retention window.
func (s *system) compressOldLogs(ctx context.Context) {
	if err := s.journal.CompressOlder(s.cfg.Journal.RetentionDays); err != nil {
		logger.Warn(ctx, "Failed to compress old logs", "error", err)
	}
}

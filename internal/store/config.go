package store

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"ai-trading-floor/internal/exception"
)

type TraderConfig struct {
	Name     string `yaml:"name"`
	Strategy string `yaml:"strategy"`
	Decider  string `yaml:"decider"` // NOOP, RULES, OPENAI, CLAUDE
	Style    string `yaml:"style"`   // rules only: MOMENTUM or CONTRARIAN
	Model    string `yaml:"model"`
}

type PostgresConfig struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	User       string `yaml:"user"`
	Password   string `yaml:"password"`
	Database   string `yaml:"database"`
	SSLMode    string `yaml:"sslmode"`
	ConnString string `yaml:"conn_string"`
}

type Config struct {
	Environment string `yaml:"environment"`
	Mode        string `yaml:"mode"`
	Trading     struct {
		InitialBalance     float64  `yaml:"initial_balance"`
		Spread             float64  `yaml:"spread"`
		MaxPositionSize    float64  `yaml:"max_position_size"`
		StopLossPercentage float64  `yaml:"stop_loss_percentage"`
		Watchlist          []string `yaml:"watchlist"`
	} `yaml:"trading"`
	MarketData struct {
		Provider     string             `yaml:"provider"` // STATIC, POLYGON, YAHOO, KITE
		CacheTTL     time.Duration      `yaml:"cache_ttl"`
		Exchange     string             `yaml:"exchange"`
		StaticPrices map[string]float64 `yaml:"static_prices"`
		Volatility   float64            `yaml:"volatility"`
		Seed         int64              `yaml:"seed"`
		PolygonKey   string             `yaml:"-"`
	} `yaml:"market_data"`
	Floor struct {
		MaxTurns        int           `yaml:"max_turns"`
		InterCycleDelay time.Duration `yaml:"inter_cycle_delay"`
		TurnTimeout     time.Duration `yaml:"turn_timeout"`
		ResearchTimeout time.Duration `yaml:"research_timeout"`
		TradingTimeout  time.Duration `yaml:"trading_timeout"`
	} `yaml:"floor"`
	Traders     []TraderConfig `yaml:"traders"`
	Persistence struct {
		Driver   string         `yaml:"driver"` // MEMORY, FILE, POSTGRES
		Path     string         `yaml:"path"`
		Postgres PostgresConfig `yaml:"postgres"`
	} `yaml:"persistence"`
	Journal struct {
		Dir           string `yaml:"dir"`
		RetentionDays int    `yaml:"retention_days"`
	} `yaml:"journal"`
	Research struct {
		Enabled        bool          `yaml:"enabled"`
		MaxArticles    int           `yaml:"max_articles"`
		CacheTTL       time.Duration `yaml:"cache_ttl"`
		ScraperTimeout time.Duration `yaml:"scraper_timeout"`
	} `yaml:"research"`
	Report struct {
		Dir string `yaml:"dir"`
	} `yaml:"report"`
	Log struct {
		Level    string `yaml:"level"`
		Format   string `yaml:"format"`
		Detailed bool   `yaml:"detailed"`
		Tracing  bool   `yaml:"tracing"`
		File     string `yaml:"file"`
	} `yaml:"log"`
	LLM struct {
		MaxTokens   int     `yaml:"max_tokens"`
		Temperature float32 `yaml:"temperature"`
		System      string  `yaml:"system"`
	} `yaml:"llm"`
}

func (c *Config) Validate() error {
	if c.Mode != "TRADING" {
		return fmt.Errorf("invalid mode '%s': only 'trading' is supported", c.Mode)
	}
	if c.Environment != "DEV" && c.Environment != "PROD" {
		return fmt.Errorf("invalid environment '%s': must be 'dev' or 'prod'", c.Environment)
	}
	if c.Trading.InitialBalance <= 0 {
		return fmt.Errorf("trading.initial_balance must be positive, got %.2f", c.Trading.InitialBalance)
	}
	if c.Trading.Spread < 0 || c.Trading.Spread >= 1 {
		return fmt.Errorf("trading.spread must be in [0,1), got %.4f", c.Trading.Spread)
	}
	if c.Trading.MaxPositionSize < 0 || c.Trading.MaxPositionSize > 1 {
		return fmt.Errorf("trading.max_position_size must be in [0,1], got %.4f", c.Trading.MaxPositionSize)
	}
	if c.Trading.StopLossPercentage < 0 || c.Trading.StopLossPercentage >= 1 {
		return fmt.Errorf("trading.stop_loss_percentage must be in [0,1), got %.4f", c.Trading.StopLossPercentage)
	}
	if c.MarketData.CacheTTL <= 0 {
		return errors.New("market_data.cache_ttl must be positive")
	}
	switch c.MarketData.Provider {
	case "STATIC", "POLYGON", "YAHOO", "KITE":
	default:
		return fmt.Errorf("market_data.provider must be 'static', 'polygon', 'yahoo' or 'kite', got '%s'", c.MarketData.Provider)
	}
	if c.MarketData.Provider == "POLYGON" && c.MarketData.PolygonKey == "" {
		return errors.New("POLYGON_API_KEY is required for the polygon provider")
	}
	if c.Floor.TurnTimeout <= 0 {
		return errors.New("floor.turn_timeout must be positive")
	}
	if c.usesAgents() && c.Floor.TurnTimeout < c.Floor.ResearchTimeout+c.Floor.TradingTimeout {
		return fmt.Errorf("floor.turn_timeout %s is shorter than research_timeout + trading_timeout (%s)",
			c.Floor.TurnTimeout, c.Floor.ResearchTimeout+c.Floor.TradingTimeout)
	}
	if c.Floor.MaxTurns < 0 {
		return fmt.Errorf("floor.max_turns cannot be negative, got %d", c.Floor.MaxTurns)
	}
	if len(c.Traders) == 0 {
		return errors.New("traders cannot be empty")
	}
	seen := make(map[string]bool, len(c.Traders))
	for _, t := range c.Traders {
		if t.Name == "" {
			return errors.New("trader name cannot be empty")
		}
		if seen[t.Name] {
			return fmt.Errorf("duplicate trader name '%s'", t.Name)
		}
		seen[t.Name] = true
		switch t.Decider {
		case "NOOP", "RULES", "OPENAI", "CLAUDE":
		default:
			return fmt.Errorf("trader '%s': decider must be 'noop', 'rules', 'openai' or 'claude', got '%s'", t.Name, t.Decider)
		}
	}
	switch c.Persistence.Driver {
	case "MEMORY", "FILE", "POSTGRES":
	default:
		return fmt.Errorf("persistence.driver must be 'memory', 'file' or 'postgres', got '%s'", c.Persistence.Driver)
	}
	return nil
}

// Default returns a configuration with every default applied and a single
// rules-based trader, enough to run the floor offline.
func Default() *Config {
	c := defaults()
	c.Traders = []TraderConfig{{Name: "warren", Strategy: "value investor", Decider: "RULES", Style: "CONTRARIAN"}}
	c.complete()
	return c
}

func LoadConfig(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseConfig(b)
}

// ParseConfig unmarshals yaml over the defaults, applies environment
// overrides, then validates. A key present in the yaml wins even when its
// value is zero.
func ParseConfig(b []byte) (*Config, error) {
	c := defaults()
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, err
	}

	if err := c.applyEnv(); err != nil {
		return nil, fmt.Errorf("%w: %v", exception.ErrInvalidConfig, err)
	}
	c.complete()

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return c, nil
}

// defaults leaves floor.turn_timeout unset; complete derives it once the
// inner timeouts are final.
func defaults() *Config {
	c := &Config{
		Environment: "dev",
		Mode:        "trading",
	}
	c.Trading.InitialBalance = 10000
	c.Trading.Spread = 0.002
	c.Trading.MaxPositionSize = 0.1
	c.Trading.StopLossPercentage = 0.05
	c.Trading.Watchlist = []string{"AAPL", "MSFT", "GOOGL", "AMZN", "NVDA"}

	c.MarketData.Provider = "static"
	c.MarketData.CacheTTL = 300 * time.Second
	c.MarketData.Exchange = "NSE"
	c.MarketData.Volatility = 0.01

	c.Floor.MaxTurns = 30
	c.Floor.InterCycleDelay = 60 * time.Second
	c.Floor.ResearchTimeout = 60 * time.Second
	c.Floor.TradingTimeout = 30 * time.Second

	c.Persistence.Driver = "file"
	c.Persistence.Path = "data/accounts"
	c.Journal.Dir = "logs"

	c.Research.MaxArticles = 10
	c.Research.CacheTTL = time.Hour
	c.Research.ScraperTimeout = 20 * time.Second

	c.Report.Dir = "reports"
	c.Log.Level = "INFO"
	c.Log.Format = "json"

	c.LLM.MaxTokens = 800
	c.LLM.System = "You are a disciplined equities trader managing a simulated account. Output STRICT JSON only."
	return c
}

// complete fills per-trader defaults and the derived turn timeout, then
// normalizes.
func (c *Config) complete() {
	if c.Floor.TurnTimeout == 0 {
		c.Floor.TurnTimeout = c.Floor.ResearchTimeout + c.Floor.TradingTimeout
	}
	for i := range c.Traders {
		if c.Traders[i].Decider == "" {
			c.Traders[i].Decider = "rules"
		}
		if c.Traders[i].Style == "" {
			c.Traders[i].Style = "momentum"
		}
	}
	c.normalize()
}

// applyEnv lets the original settings names override the yaml values.
func (c *Config) applyEnv() error {
	floats := map[string]*float64{
		"INITIAL_BALANCE":      &c.Trading.InitialBalance,
		"SPREAD":               &c.Trading.Spread,
		"MAX_POSITION_SIZE":    &c.Trading.MaxPositionSize,
		"STOP_LOSS_PERCENTAGE": &c.Trading.StopLossPercentage,
	}
	for key, dst := range floats {
		if v := os.Getenv(key); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = f
		}
	}

	durations := map[string]*time.Duration{
		"MARKET_DATA_CACHE_TTL": &c.MarketData.CacheTTL,
		"RESEARCH_TIMEOUT":      &c.Floor.ResearchTimeout,
		"TRADING_TIMEOUT":       &c.Floor.TradingTimeout,
	}
	for key, dst := range durations {
		if v := os.Getenv(key); v != "" {
			d, err := parseSeconds(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = d
		}
	}

	if v := os.Getenv("MAX_TURNS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("MAX_TURNS: %w", err)
		}
		c.Floor.MaxTurns = n
	}
	if v := os.Getenv("ENVIRONMENT"); v != "" {
		c.Environment = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("LOG_FILE"); v != "" {
		c.Log.File = v
	}
	if v := os.Getenv("DATABASE_PATH"); v != "" {
		c.Persistence.Path = v
	}
	c.MarketData.PolygonKey = os.Getenv("POLYGON_API_KEY")
	return nil
}

func (c *Config) normalize() {
	c.Environment = strings.ToUpper(c.Environment)
	c.Mode = strings.ToUpper(c.Mode)
	c.MarketData.Provider = strings.ToUpper(c.MarketData.Provider)
	c.Persistence.Driver = strings.ToUpper(c.Persistence.Driver)
	for i := range c.Traders {
		c.Traders[i].Decider = strings.ToUpper(c.Traders[i].Decider)
		c.Traders[i].Style = strings.ToUpper(c.Traders[i].Style)
	}
	for i, s := range c.Trading.Watchlist {
		c.Trading.Watchlist[i] = strings.ToUpper(strings.TrimSpace(s))
	}
	// prod always logs json
	if c.Environment == "PROD" {
		c.Log.Format = "json"
	}
}

// parseSeconds accepts a Go duration ("45s") or a bare number of seconds.
func parseSeconds(v string) (time.Duration, error) {
	if n, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(n * float64(time.Second)), nil
	}
	return time.ParseDuration(v)
}

// usesAgents reports whether any trader runs the research and trading
// steps bounded by the inner timeouts.
func (c *Config) usesAgents() bool {
	for _, t := range c.Traders {
		if t.Decider == "OPENAI" || t.Decider == "CLAUDE" {
			return true
		}
	}
	return false
}

// TraderNames returns the configured trader names in order.
func (c *Config) TraderNames() []string {
	names := make([]string, 0, len(c.Traders))
	for _, t := range c.Traders {
		names = append(names, t.Name)
	}
	return names
}

package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConfigDefaults(t *testing.T) {
	cfg, err := ParseConfig([]byte(`
traders:
  - name: warren
    strategy: value investor
`))
	require.NoError(t, err)

	assert.Equal(t, 10000.0, cfg.Trading.InitialBalance)
	assert.Equal(t, 0.002, cfg.Trading.Spread)
	assert.Equal(t, 0.1, cfg.Trading.MaxPositionSize)
	assert.Equal(t, 0.05, cfg.Trading.StopLossPercentage)
	assert.Equal(t, 300*time.Second, cfg.MarketData.CacheTTL)
	assert.Equal(t, 30, cfg.Floor.MaxTurns)
	assert.Equal(t, 60*time.Second, cfg.Floor.ResearchTimeout)
	assert.Equal(t, 30*time.Second, cfg.Floor.TradingTimeout)
	assert.Equal(t, 90*time.Second, cfg.Floor.TurnTimeout)
	assert.Equal(t, "STATIC", cfg.MarketData.Provider)
	assert.Equal(t, "FILE", cfg.Persistence.Driver)
	assert.Equal(t, "RULES", cfg.Traders[0].Decider)
	assert.Equal(t, "MOMENTUM", cfg.Traders[0].Style)
}

func TestParseConfigDurations(t *testing.T) {
	cfg, err := ParseConfig([]byte(`
market_data:
  cache_ttl: 45s
floor:
  turn_timeout: 2m
  inter_cycle_delay: 500ms
traders:
  - {name: a, decider: noop}
`))
	require.NoError(t, err)
	assert.Equal(t, 45*time.Second, cfg.MarketData.CacheTTL)
	assert.Equal(t, 2*time.Minute, cfg.Floor.TurnTimeout)
	assert.Equal(t, 500*time.Millisecond, cfg.Floor.InterCycleDelay)
}

func TestParseConfigEnvOverrides(t *testing.T) {
	t.Setenv("INITIAL_BALANCE", "2500")
	t.Setenv("SPREAD", "0.01")
	t.Setenv("MAX_TURNS", "5")
	t.Setenv("RESEARCH_TIMEOUT", "12")
	t.Setenv("MARKET_DATA_CACHE_TTL", "1m")
	t.Setenv("ENVIRONMENT", "prod")

	cfg, err := ParseConfig([]byte(`
log: {format: text}
traders: [{name: a}]
`))
	require.NoError(t, err)
	assert.Equal(t, 2500.0, cfg.Trading.InitialBalance)
	assert.Equal(t, 0.01, cfg.Trading.Spread)
	assert.Equal(t, 5, cfg.Floor.MaxTurns)
	assert.Equal(t, 12*time.Second, cfg.Floor.ResearchTimeout)
	assert.Equal(t, time.Minute, cfg.MarketData.CacheTTL)
	assert.Equal(t, "PROD", cfg.Environment)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestValidate(t *testing.T) {
	t.Setenv("POLYGON_API_KEY", "")

	tests := []struct {
		name string
		yaml string
	}{
		{"no traders", `mode: trading`},
		{"duplicate traders", `traders: [{name: a}, {name: a}]`},
		{"unknown decider", `traders: [{name: a, decider: oracle}]`},
		{"web mode", "mode: web\ntraders: [{name: a}]"},
		{"bad spread", "trading: {spread: 1.5}\ntraders: [{name: a}]"},
		{"bad provider", "market_data: {provider: bloomberg}\ntraders: [{name: a}]"},
		{"polygon without key", "market_data: {provider: polygon}\ntraders: [{name: a}]"},
		{"bad driver", "persistence: {driver: sqlite}\ntraders: [{name: a}]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseConfig([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("traders: [{name: alice}, {name: bob}]\n"), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, cfg.TraderNames())

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Len(t, cfg.Traders, 1)
}

func TestParseConfigExplicitZeros(t *testing.T) {
	cfg, err := ParseConfig([]byte(`
trading:
  spread: 0
  max_position_size: 0
  stop_loss_percentage: 0
floor:
  max_turns: 0
  inter_cycle_delay: 0s
traders: [{name: a}]
`))
	require.NoError(t, err)
	assert.Zero(t, cfg.Trading.Spread)
	assert.Zero(t, cfg.Trading.MaxPositionSize)
	assert.Zero(t, cfg.Trading.StopLossPercentage)
	assert.Zero(t, cfg.Floor.MaxTurns, "zero means run until stopped")
	assert.Zero(t, cfg.Floor.InterCycleDelay)

	// keys left out keep their defaults
	assert.Equal(t, 10000.0, cfg.Trading.InitialBalance)
	assert.Equal(t, 300*time.Second, cfg.MarketData.CacheTTL)
}

func TestTurnTimeoutFollowsEnvTimeouts(t *testing.T) {
	t.Setenv("RESEARCH_TIMEOUT", "120")
	t.Setenv("TRADING_TIMEOUT", "45s")

	cfg, err := ParseConfig([]byte(`traders: [{name: a, decider: openai}]`))
	require.NoError(t, err)
	assert.Equal(t, 2*time.Minute, cfg.Floor.ResearchTimeout)
	assert.Equal(t, 45*time.Second, cfg.Floor.TradingTimeout)
	assert.Equal(t, 165*time.Second, cfg.Floor.TurnTimeout)
}

func TestTurnTimeoutMustCoverAgentBudgets(t *testing.T) {
	_, err := ParseConfig([]byte(`
floor: {turn_timeout: 60s, research_timeout: 60s, trading_timeout: 30s}
traders: [{name: a, decider: claude}]
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "shorter than research_timeout + trading_timeout")

	// rules traders never use the inner budgets
	cfg, err := ParseConfig([]byte(`
floor: {turn_timeout: 5s}
traders: [{name: a, decider: rules}]
`))
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, cfg.Floor.TurnTimeout)
}

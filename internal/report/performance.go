package report

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/montanaflynn/stats"
	"github.com/shopspring/decimal"

	"ai-trading-floor/internal/ta"
	"ai-trading-floor/internal/types"
)

// Valued is the read side of an account that performance needs.
type Valued interface {
	Name() string
	Strategy() string
	Balance() decimal.Decimal
	InitialBalance() decimal.Decimal
	Holdings() map[string]int64
	Valuations() []types.ValuationSample
	PortfolioValue(prices map[string]decimal.Decimal) (decimal.Decimal, error)
}

type Summary struct {
	Name         string
	Strategy     string
	Cash         decimal.Decimal
	Initial      decimal.Decimal
	Value        decimal.Decimal
	ProfitLoss   decimal.Decimal
	Holdings     map[string]int64
	TotalReturn  float64
	MeanReturn   float64
	StdDevReturn float64
	MaxDrawdown  float64
	Samples      int
}

// Performance values acct at prices and summarizes its valuation history.
// Without prices the latest valuation stands in for the current value.
func Performance(acct Valued, prices map[string]decimal.Decimal) (Summary, error) {
	s := Summary{
		Name:     acct.Name(),
		Strategy: acct.Strategy(),
		Cash:     acct.Balance(),
		Initial:  acct.InitialBalance(),
		Holdings: acct.Holdings(),
	}
	vals := acct.Valuations()
	s.Samples = len(vals)

	switch {
	case len(prices) > 0:
		v, err := acct.PortfolioValue(prices)
		if err != nil {
			return s, fmt.Errorf("value %s: %w", s.Name, err)
		}
		s.Value = v
	case len(vals) > 0:
		s.Value = vals[len(vals)-1].Value
	case len(s.Holdings) == 0:
		s.Value = s.Cash
	default:
		v, err := acct.PortfolioValue(nil)
		if err != nil {
			return s, fmt.Errorf("value %s: %w", s.Name, err)
		}
		s.Value = v
	}
	s.ProfitLoss = s.Value.Sub(s.Initial)
	if s.Initial.IsPositive() {
		s.TotalReturn, _ = s.ProfitLoss.Div(s.Initial).Float64()
	}

	series := make([]float64, 0, len(vals)+1)
	series = append(series, s.Initial.InexactFloat64())
	for _, v := range vals {
		series = append(series, v.Value.InexactFloat64())
	}
	if rets := stats.Float64Data(ta.Returns(series)); len(rets) > 0 {
		s.MeanReturn, _ = rets.Mean()
		s.StdDevReturn, _ = rets.StandardDeviationSample()
	}
	s.MaxDrawdown = ta.MaxDrawdown(series)
	return s, nil
}

func (s Summary) HoldingsString() string {
	if len(s.Holdings) == 0 {
		return "-"
	}
	syms := make([]string, 0, len(s.Holdings))
	for sym := range s.Holdings {
		syms = append(syms, sym)
	}
	sort.Strings(syms)
	parts := make([]string, 0, len(syms))
	for _, sym := range syms {
		parts = append(parts, fmt.Sprintf("%s:%d", sym, s.Holdings[sym]))
	}
	return strings.Join(parts, " ")
}

type PerformanceRow struct {
	Trader       string `csv:"trader"`
	Strategy     string `csv:"strategy"`
	Cash         string `csv:"cash"`
	Value        string `csv:"portfolio_value"`
	ProfitLoss   string `csv:"profit_loss"`
	TotalReturn  string `csv:"total_return"`
	MeanReturn   string `csv:"mean_return"`
	StdDevReturn string `csv:"stddev_return"`
	MaxDrawdown  string `csv:"max_drawdown"`
	Samples      int    `csv:"samples"`
	Holdings     string `csv:"holdings"`
}

func (s Summary) Row() PerformanceRow {
	return PerformanceRow{
		Trader:       s.Name,
		Strategy:     s.Strategy,
		Cash:         s.Cash.StringFixed(2),
		Value:        s.Value.StringFixed(2),
		ProfitLoss:   s.ProfitLoss.StringFixed(2),
		TotalReturn:  fmt.Sprintf("%.6f", s.TotalReturn),
		MeanReturn:   fmt.Sprintf("%.6f", s.MeanReturn),
		StdDevReturn: fmt.Sprintf("%.6f", s.StdDevReturn),
		MaxDrawdown:  fmt.Sprintf("%.6f", s.MaxDrawdown),
		Samples:      s.Samples,
		Holdings:     s.HoldingsString(),
	}
}

// WritePerformance writes dir/performance-<date>.csv with one row per
// summary.
func WritePerformance(dir string, day time.Time, summaries []Summary) (string, error) {
	rows := make([]PerformanceRow, 0, len(summaries))
	for _, s := range summaries {
		rows = append(rows, s.Row())
	}
	out := filepath.Join(dir, "performance-"+day.UTC().Format("2006-01-02")+".csv")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	f, err := os.Create(out)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if err := gocsv.MarshalFile(&rows, f); err != nil {
		return "", err
	}
	return out, nil
}

package report

import (
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/shopspring/decimal"

	"ai-trading-floor/internal/tradelog"
	"ai-trading-floor/internal/types"
)

// TradeRow aggregates one trader's fills in one symbol for a day.
type TradeRow struct {
	Symbol      string `csv:"symbol"`
	BuyQty      int64  `csv:"buy_qty"`
	BuyAvg      string `csv:"buy_avg"`
	SellQty     int64  `csv:"sell_qty"`
	SellAvg     string `csv:"sell_avg"`
	RealizedPnL string `csv:"realized_pnl"`
	GrossBuy    string `csv:"gross_buy_value"`
	GrossSell   string `csv:"gross_sell_value"`
}

type agg struct {
	buyQty, sellQty     int64
	buyValue, sellValue decimal.Decimal
}

// SummarizeTrades folds journal fills into per-symbol rows plus a TOTAL
// row. Realized P&L is matched quantity times the difference of the
// average sell and buy prices. Nil when there are no fills.
func SummarizeTrades(entries []tradelog.Entry) []TradeRow {
	aggs := map[string]*agg{}
	for _, e := range entries {
		if e.Kind != tradelog.KindFill {
			continue
		}
		price, err := decimal.NewFromString(e.Price)
		if err != nil {
			continue
		}
		a := aggs[e.Symbol]
		if a == nil {
			a = &agg{}
			aggs[e.Symbol] = a
		}
		value := price.Mul(decimal.NewFromInt(e.Qty))
		switch types.Side(e.Side) {
		case types.SideBuy:
			a.buyQty += e.Qty
			a.buyValue = a.buyValue.Add(value)
		case types.SideSell:
			a.sellQty += e.Qty
			a.sellValue = a.sellValue.Add(value)
		}
	}
	if len(aggs) == 0 {
		return nil
	}

	syms := make([]string, 0, len(aggs))
	for s := range aggs {
		syms = append(syms, s)
	}
	sort.Strings(syms)

	rows := make([]TradeRow, 0, len(syms)+1)
	var totalBuy, totalSell, totalPnL decimal.Decimal
	for _, s := range syms {
		a := aggs[s]
		buyAvg, sellAvg := avg(a.buyValue, a.buyQty), avg(a.sellValue, a.sellQty)
		matched := min(a.buyQty, a.sellQty)
		pnl := sellAvg.Sub(buyAvg).Mul(decimal.NewFromInt(matched))
		rows = append(rows, TradeRow{
			Symbol:      s,
			BuyQty:      a.buyQty,
			BuyAvg:      buyAvg.StringFixed(4),
			SellQty:     a.sellQty,
			SellAvg:     sellAvg.StringFixed(4),
			RealizedPnL: pnl.StringFixed(2),
			GrossBuy:    a.buyValue.StringFixed(2),
			GrossSell:   a.sellValue.StringFixed(2),
		})
		totalBuy = totalBuy.Add(a.buyValue)
		totalSell = totalSell.Add(a.sellValue)
		totalPnL = totalPnL.Add(pnl)
	}
	rows = append(rows, TradeRow{
		Symbol:      "TOTAL",
		RealizedPnL: totalPnL.StringFixed(2),
		GrossBuy:    totalBuy.StringFixed(2),
		GrossSell:   totalSell.StringFixed(2),
	})
	return rows
}

func avg(value decimal.Decimal, qty int64) decimal.Decimal {
	if qty == 0 {
		return decimal.Zero
	}
	return value.Div(decimal.NewFromInt(qty))
}

// WriteTradeSummary reads the trader's journal for day and writes
// dir/trades-<trader>-<date>.csv. It returns "" when the day has no fills.
func WriteTradeSummary(dir string, journal *tradelog.Journal, trader string, day time.Time) (string, error) {
	entries, err := journal.Read(trader, day)
	if err != nil {
		return "", err
	}
	rows := SummarizeTrades(entries)
	if rows == nil {
		return "", nil
	}

	out := filepath.Join(dir, "trades-"+tradelog.SafeName(trader)+"-"+day.UTC().Format("2006-01-02")+".csv")
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

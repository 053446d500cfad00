package feed

import (
	"fmt"
	"os"

	"ai-trading-floor/internal/interfaces"
	"ai-trading-floor/internal/store"
)

// New builds the provider named by market_data.provider.
func New(cfg *store.Config) (interfaces.PriceProvider, error) {
	md := cfg.MarketData
	switch md.Provider {
	case "STATIC":
		return NewStatic(md.StaticPrices, cfg.Trading.Watchlist, md.Volatility, md.Seed), nil
	case "POLYGON":
		return NewPolygon(md.PolygonKey, os.Getenv("POLYGON_REALTIME") == "true"), nil
	case "YAHOO":
		return NewYahoo(), nil
	case "KITE":
		k, err := NewKite(os.Getenv("KITE_API_KEY"), os.Getenv("KITE_ACCESS_TOKEN"), md.Exchange)
		if err != nil {
			return nil, err
		}
		return k, nil
	default:
		return nil, fmt.Errorf("unknown market data provider '%s'", md.Provider)
	}
}

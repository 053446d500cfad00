package feed

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	polygon "github.com/polygon-io/client-go/rest"
	"github.com/polygon-io/client-go/rest/models"
	"github.com/shopspring/decimal"

	"ai-trading-floor/internal/exception"
)

// Polygon reads prices from polygon.io. Free plans only expose the previous
// day's aggregate, so last trade is opt-in.
type Polygon struct {
	client    *polygon.Client
	lastTrade bool
}

func NewPolygon(apiKey string, lastTrade bool) *Polygon {
	return &Polygon{client: polygon.New(apiKey), lastTrade: lastTrade}
}

func (p *Polygon) Fetch(ctx context.Context, symbol string) (decimal.Decimal, error) {
	if p.lastTrade {
		res, err := p.client.GetLastTrade(ctx, &models.GetLastTradeParams{Ticker: symbol})
		if err != nil {
			return decimal.Zero, mapPolygonErr(symbol, err)
		}
		if res.Results.Price <= 0 {
			return decimal.Zero, fmt.Errorf("%w: %s", exception.ErrSymbolNotFound, symbol)
		}
		return decimal.NewFromFloat(res.Results.Price), nil
	}

	res, err := p.client.GetPreviousCloseAgg(ctx, &models.GetPreviousCloseAggParams{Ticker: symbol})
	if err != nil {
		return decimal.Zero, mapPolygonErr(symbol, err)
	}
	if len(res.Results) == 0 {
		return decimal.Zero, fmt.Errorf("%w: %s", exception.ErrSymbolNotFound, symbol)
	}
	return decimal.NewFromFloat(res.Results[0].Close), nil
}

func mapPolygonErr(symbol string, err error) error {
	var apiErr *models.ErrorResponse
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s", exception.ErrSymbolNotFound, symbol)
	}
	return fmt.Errorf("polygon %s: %w", symbol, err)
}

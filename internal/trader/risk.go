package trader

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"ai-trading-floor/internal/account"
	"ai-trading-floor/internal/exception"
	"ai-trading-floor/internal/logger"
	"ai-trading-floor/internal/types"
)

var one = decimal.NewFromInt(1)

// RiskLimits are fractions of portfolio value. Zero disables a rule.
type RiskLimits struct {
	MaxPositionSize decimal.Decimal
	StopLoss        decimal.Decimal
}

// riskManager validates buys before they reach the ledger. Sells only
// reduce exposure and are never blocked.
type riskManager struct {
	trader string
	limits RiskLimits
}

func newRiskManager(trader string, limits RiskLimits) *riskManager {
	return &riskManager{trader: trader, limits: limits}
}

// validateBuy checks a buy of qty at quote.Ask against the position limit
// and the stop-loss. prices are this turn's mids.
func (rm *riskManager) validateBuy(ctx context.Context, acct *account.Account, quote types.Quote, qty int64, prices map[string]decimal.Decimal) error {
	value, err := acct.PortfolioValue(prices)
	if err != nil {
		return err
	}
	if err := rm.checkPositionSize(ctx, acct, quote, qty, value); err != nil {
		return err
	}
	return rm.checkStopLoss(ctx, acct, quote, qty, value)
}

func (rm *riskManager) checkPositionSize(ctx context.Context, acct *account.Account, quote types.Quote, qty int64, value decimal.Decimal) error {
	if !rm.limits.MaxPositionSize.IsPositive() {
		return nil
	}
	held := acct.Holdings()[quote.Symbol]
	exposure := quote.Ask.Mul(decimal.NewFromInt(held + qty))
	limit := value.Mul(rm.limits.MaxPositionSize)
	if exposure.LessThanOrEqual(limit) {
		return nil
	}

	logger.Risk(ctx, rm.trader, quote.Symbol, "TRADE_BLOCKED_POSITION_LIMIT",
		"qty", qty,
		"held", held,
		"price", quote.Ask.String(),
		"exposure", exposure.StringFixed(2),
		"limit", limit.StringFixed(2),
		"portfolio_value", value.StringFixed(2),
	)
	return fmt.Errorf("%w: %s exposure %s over limit %s", exception.ErrPositionLimit, quote.Symbol, exposure.StringFixed(2), limit.StringFixed(2))
}

func (rm *riskManager) checkStopLoss(ctx context.Context, acct *account.Account, quote types.Quote, qty int64, value decimal.Decimal) error {
	s := rm.limits.StopLoss
	if !s.IsPositive() {
		return nil
	}
	floor := one.Sub(s)

	if avg, ok := acct.AverageCost(quote.Symbol); ok {
		stop := avg.Mul(floor)
		if quote.Bid.LessThan(stop) {
			logger.Risk(ctx, rm.trader, quote.Symbol, "STOP_LOSS_TRIGGERED",
				"bid", quote.Bid.String(),
				"avg_cost", avg.StringFixed(4),
				"stop_price", stop.StringFixed(4),
			)
			return fmt.Errorf("%w: %s bid %s below stop %s", exception.ErrStopLoss, quote.Symbol, quote.Bid, stop.StringFixed(4))
		}
	}

	// buying at the ask and marking at the mid loses the half spread
	slippage := quote.Ask.Sub(quote.Mid).Mul(decimal.NewFromInt(qty))
	projected := value.Sub(slippage)
	peak := acct.PeakValue()
	threshold := peak.Mul(floor)
	if projected.LessThan(threshold) {
		logger.Risk(ctx, rm.trader, quote.Symbol, "DRAWDOWN_LIMIT",
			"projected_value", projected.StringFixed(2),
			"peak_value", peak.StringFixed(2),
			"threshold", threshold.StringFixed(2),
		)
		return fmt.Errorf("%w: projected value %s below %s", exception.ErrStopLoss, projected.StringFixed(2), threshold.StringFixed(2))
	}
	return nil
}

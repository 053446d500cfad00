package types

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// ParseSide normalizes a free-form side string. ok is false for anything
// other than buy or sell.
func ParseSide(s string) (Side, bool) {
	switch Side(strings.ToUpper(strings.TrimSpace(s))) {
	case SideBuy:
		return SideBuy, true
	case SideSell:
		return SideSell, true
	}
	return "", false
}

type Quote struct {
	Symbol    string          `json:"symbol"`
	Mid       decimal.Decimal `json:"mid"`
	Bid       decimal.Decimal `json:"bid"`
	Ask       decimal.Decimal `json:"ask"`
	FetchedAt time.Time       `json:"fetched_at"`
}

// Transaction is an immutable fill. Quantity is signed: positive for a buy,
// negative for a sell.
type Transaction struct {
	ID        string          `json:"id"`
	Symbol    string          `json:"symbol"`
	Quantity  int64           `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	Timestamp time.Time       `json:"timestamp"`
	Rationale string          `json:"rationale"`
}

// Total is quantity times price with the sign preserved.
func (t Transaction) Total() decimal.Decimal {
	return t.Price.Mul(decimal.NewFromInt(t.Quantity))
}

func (t Transaction) Side() Side {
	if t.Quantity < 0 {
		return SideSell
	}
	return SideBuy
}

func (t Transaction) String() string {
	qty := t.Quantity
	if qty < 0 {
		qty = -qty
	}
	price := t.Price.String()
	if !strings.Contains(price, ".") {
		price += ".0"
	}
	return fmt.Sprintf("%d shares of %s at %s each.", qty, t.Symbol, price)
}

type ValuationSample struct {
	Timestamp time.Time       `json:"timestamp"`
	Value     decimal.Decimal `json:"value"`
}

// AccountRecord is the flat persisted form of an account.
type AccountRecord struct {
	Name         string            `json:"name"`
	Balance      decimal.Decimal   `json:"balance"`
	Strategy     string            `json:"strategy"`
	Holdings     map[string]int64  `json:"holdings"`
	Transactions []Transaction     `json:"transactions"`
	Valuations   []ValuationSample `json:"valuations"`
}

// Clone returns a deep copy so callers never share slices or maps with the
// owner of the record.
func (r AccountRecord) Clone() AccountRecord {
	out := r
	out.Holdings = make(map[string]int64, len(r.Holdings))
	for k, v := range r.Holdings {
		out.Holdings[k] = v
	}
	out.Transactions = append([]Transaction(nil), r.Transactions...)
	out.Valuations = append([]ValuationSample(nil), r.Valuations...)
	return out
}

// AccountSnapshot is the read-only view of an account handed to deciders.
type AccountSnapshot struct {
	Name               string           `json:"name"`
	Strategy           string           `json:"strategy"`
	Balance            decimal.Decimal  `json:"balance"`
	Holdings           map[string]int64 `json:"holdings"`
	RecentTransactions []Transaction    `json:"recent_transactions"`
	PortfolioValue     decimal.Decimal  `json:"portfolio_value"`
}

// MarketContext carries the mid prices observed for this turn plus any
// static context a decider might use.
type MarketContext struct {
	Time      time.Time                  `json:"time"`
	Prices    map[string]decimal.Decimal `json:"prices"`
	Watchlist []string                   `json:"watchlist"`
	Spread    decimal.Decimal            `json:"spread"`
}

type ProposedOrder struct {
	Symbol    string `json:"symbol"`
	Side      Side   `json:"side"`
	Quantity  int64  `json:"quantity"`
	Rationale string `json:"rationale"`
}

type RejectedOrder struct {
	Order  ProposedOrder `json:"order"`
	Reason string        `json:"reason"`
	Err    error         `json:"-"`
}

package account

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"ai-trading-floor/internal/exception"
	"ai-trading-floor/internal/interfaces"
	"ai-trading-floor/internal/types"
)

const recentTransactions = 10

// Options configures accounts created by Get.
type Options struct {
	InitialBalance decimal.Decimal
	Strategy       string
	Now            func() time.Time
}

// Account is one trader's ledger. Every exported method is serialized by mu
// and no method blocks on anything but the store write.
type Account struct {
	mu sync.Mutex

	name         string
	balance      decimal.Decimal
	strategy     string
	holdings     map[string]int64
	transactions []types.Transaction
	valuations   []types.ValuationSample

	initial decimal.Decimal
	store   interfaces.AccountStore
	now     func() time.Time
}

// Get loads the named account from store, or creates it at the initial
// balance and persists it straight away.
func Get(ctx context.Context, store interfaces.AccountStore, name string, opts Options) (*Account, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("account name cannot be empty")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	a := &Account{
		name:     name,
		holdings: map[string]int64{},
		initial:  opts.InitialBalance,
		store:    store,
		now:      opts.Now,
	}

	rec, found, err := store.Get(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("%w: load %s: %w", exception.ErrPersistence, name, err)
	}
	if found {
		a.restore(rec)
		return a, nil
	}

	a.balance = opts.InitialBalance
	a.strategy = opts.Strategy

	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.persist(ctx); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *Account) restore(rec types.AccountRecord) {
	rec = rec.Clone()
	a.balance = rec.Balance
	a.strategy = rec.Strategy
	a.holdings = rec.Holdings
	a.transactions = rec.Transactions
	a.valuations = rec.Valuations
}

// persist writes the current state; callers hold mu. The write is detached
// from cancellation so a stopping floor never drops a committed mutation.
func (a *Account) persist(ctx context.Context) error {
	if err := a.store.Put(context.WithoutCancel(ctx), a.name, a.recordLocked()); err != nil {
		return fmt.Errorf("%w: save %s: %w", exception.ErrPersistence, a.name, err)
	}
	return nil
}

func (a *Account) recordLocked() types.AccountRecord {
	return types.AccountRecord{
		Name:         a.name,
		Balance:      a.balance,
		Strategy:     a.strategy,
		Holdings:     a.holdings,
		Transactions: a.transactions,
		Valuations:   a.valuations,
	}.Clone()
}

func (a *Account) Deposit(ctx context.Context, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: deposit amount must be positive", exception.ErrInvalidAmount)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.balance = a.balance.Add(amount)
	return a.persist(ctx)
}

func (a *Account) Withdraw(ctx context.Context, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: withdrawal amount must be positive", exception.ErrInvalidAmount)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if amount.GreaterThan(a.balance) {
		return fmt.Errorf("%w: insufficient funds for withdrawal of %s (balance %s)", exception.ErrInsufficientFunds, amount, a.balance)
	}
	a.balance = a.balance.Sub(amount)
	return a.persist(ctx)
}

// Buy debits qty*price and credits the holding. On ErrPersistence the fill is
// kept in memory and returned alongside the error.
func (a *Account) Buy(ctx context.Context, symbol string, qty int64, price decimal.Decimal, rationale string) (types.Transaction, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if qty <= 0 {
		return types.Transaction{}, fmt.Errorf("%w: buy quantity must be positive, got %d", exception.ErrInvalidAmount, qty)
	}
	if !price.IsPositive() {
		return types.Transaction{}, fmt.Errorf("%w: buy price must be positive, got %s", exception.ErrInvalidAmount, price)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	cost := price.Mul(decimal.NewFromInt(qty))
	if cost.GreaterThan(a.balance) {
		return types.Transaction{}, fmt.Errorf("%w: buying %d %s costs %s, balance is %s", exception.ErrInsufficientFunds, qty, symbol, cost, a.balance)
	}

	tx := a.newTransaction(symbol, qty, price, rationale)
	a.balance = a.balance.Sub(cost)
	a.holdings[symbol] += qty
	a.transactions = append(a.transactions, tx)
	return tx, a.persist(ctx)
}

// Sell credits qty*price and debits the holding, dropping it at zero.
func (a *Account) Sell(ctx context.Context, symbol string, qty int64, price decimal.Decimal, rationale string) (types.Transaction, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if qty <= 0 {
		return types.Transaction{}, fmt.Errorf("%w: sell quantity must be positive, got %d", exception.ErrInvalidAmount, qty)
	}
	if !price.IsPositive() {
		return types.Transaction{}, fmt.Errorf("%w: sell price must be positive, got %s", exception.ErrInvalidAmount, price)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	held := a.holdings[symbol]
	if qty > held {
		return types.Transaction{}, fmt.Errorf("%w: cannot sell %d %s, holding %d", exception.ErrInsufficientHoldings, qty, symbol, held)
	}

	tx := a.newTransaction(symbol, -qty, price, rationale)
	a.balance = a.balance.Add(price.Mul(decimal.NewFromInt(qty)))
	if held == qty {
		delete(a.holdings, symbol)
	} else {
		a.holdings[symbol] = held - qty
	}
	a.transactions = append(a.transactions, tx)
	return tx, a.persist(ctx)
}

func (a *Account) newTransaction(symbol string, qty int64, price decimal.Decimal, rationale string) types.Transaction {
	return types.Transaction{
		ID:        uuid.NewString(),
		Symbol:    symbol,
		Quantity:  qty,
		Price:     price,
		Timestamp: a.now(),
		Rationale: rationale,
	}
}

// RecordValuation appends cash plus holdings marked at prices. It is not
// persisted on its own; the next save carries it.
func (a *Account) RecordValuation(ts time.Time, prices map[string]decimal.Decimal) (types.ValuationSample, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	value, err := a.valueLocked(prices)
	if err != nil {
		return types.ValuationSample{}, err
	}
	if n := len(a.valuations); n > 0 && ts.Before(a.valuations[n-1].Timestamp) {
		ts = a.valuations[n-1].Timestamp
	}
	sample := types.ValuationSample{Timestamp: ts, Value: value}
	a.valuations = append(a.valuations, sample)
	return sample, nil
}

// PortfolioValue is cash plus holdings marked at prices, without recording.
func (a *Account) PortfolioValue(prices map[string]decimal.Decimal) (decimal.Decimal, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.valueLocked(prices)
}

func (a *Account) valueLocked(prices map[string]decimal.Decimal) (decimal.Decimal, error) {
	total := a.balance
	for symbol, qty := range a.holdings {
		price, ok := prices[symbol]
		if !ok {
			price, ok = a.lastPriceLocked(symbol)
		}
		if !ok {
			return decimal.Zero, fmt.Errorf("%w: no price to value %s", exception.ErrSymbolNotFound, symbol)
		}
		total = total.Add(price.Mul(decimal.NewFromInt(qty)))
	}
	return total, nil
}

func (a *Account) lastPriceLocked(symbol string) (decimal.Decimal, bool) {
	for i := len(a.transactions) - 1; i >= 0; i-- {
		if a.transactions[i].Symbol == symbol {
			return a.transactions[i].Price, true
		}
	}
	return decimal.Zero, false
}

// Reset puts the account back to its initial balance under a new strategy.
func (a *Account) Reset(ctx context.Context, strategy string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.balance = a.initial
	a.strategy = strategy
	a.holdings = map[string]int64{}
	a.transactions = nil
	a.valuations = nil
	return a.persist(ctx)
}

func (a *Account) Save(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.persist(ctx)
}

// SetStrategy changes the strategy label and persists it.
func (a *Account) SetStrategy(ctx context.Context, strategy string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.strategy = strategy
	return a.persist(ctx)
}

func (a *Account) Name() string {
	return a.name
}

func (a *Account) InitialBalance() decimal.Decimal {
	return a.initial
}

func (a *Account) Balance() decimal.Decimal {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.balance
}

func (a *Account) Strategy() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.strategy
}

func (a *Account) Holdings() map[string]int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[string]int64, len(a.holdings))
	for k, v := range a.holdings {
		out[k] = v
	}
	return out
}

// HeldSymbols returns the held symbols in sorted order.
func (a *Account) HeldSymbols() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.holdings))
	for k := range a.holdings {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (a *Account) Transactions() []types.Transaction {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]types.Transaction(nil), a.transactions...)
}

func (a *Account) Valuations() []types.ValuationSample {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]types.ValuationSample(nil), a.valuations...)
}

// Record returns the persisted form of the account.
func (a *Account) Record() types.AccountRecord {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.recordLocked()
}

// Snapshot is the decider's view: balances, holdings and the latest
// transactions, valued at prices where possible.
func (a *Account) Snapshot(prices map[string]decimal.Decimal) types.AccountSnapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	holdings := make(map[string]int64, len(a.holdings))
	for k, v := range a.holdings {
		holdings[k] = v
	}
	recent := a.transactions
	if len(recent) > recentTransactions {
		recent = recent[len(recent)-recentTransactions:]
	}
	value, err := a.valueLocked(prices)
	if err != nil {
		value = a.balance
	}

	return types.AccountSnapshot{
		Name:               a.name,
		Strategy:           a.strategy,
		Balance:            a.balance,
		Holdings:           holdings,
		RecentTransactions: append([]types.Transaction(nil), recent...),
		PortfolioValue:     value,
	}
}

// PeakValue is the highest of the initial balance and every recorded
// valuation.
func (a *Account) PeakValue() decimal.Decimal {
	a.mu.Lock()
	defer a.mu.Unlock()
	peak := a.initial
	for _, v := range a.valuations {
		if v.Value.GreaterThan(peak) {
			peak = v.Value
		}
	}
	return peak
}

// AverageCost is the average price paid for the shares currently held in
// symbol. Sells reduce the cost basis proportionally.
func (a *Account) AverageCost(symbol string) (decimal.Decimal, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var qty int64
	cost := decimal.Zero
	for _, tx := range a.transactions {
		if tx.Symbol != symbol {
			continue
		}
		if tx.Quantity > 0 {
			cost = cost.Add(tx.Total())
			qty += tx.Quantity
			continue
		}
		if qty == 0 {
			continue
		}
		sold := -tx.Quantity
		cost = cost.Sub(cost.Mul(decimal.NewFromInt(sold)).Div(decimal.NewFromInt(qty)))
		qty -= sold
	}
	if qty <= 0 {
		return decimal.Zero, false
	}
	return cost.Div(decimal.NewFromInt(qty)), true
}

// ProfitLoss is the current portfolio value less the initial balance.
func (a *Account) ProfitLoss(prices map[string]decimal.Decimal) (decimal.Decimal, error) {
	value, err := a.PortfolioValue(prices)
	if err != nil {
		return decimal.Zero, err
	}
	return value.Sub(a.initial), nil
}

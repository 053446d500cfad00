package trader

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"ai-trading-floor/internal/account"
	"ai-trading-floor/internal/exception"
	"ai-trading-floor/internal/interfaces"
	"ai-trading-floor/internal/logger"
	"ai-trading-floor/internal/tradelog"
	"ai-trading-floor/internal/types"
)

type Options struct {
	Account   *account.Account
	Decider   interfaces.Decider
	Market    interfaces.MarketData
	Watchlist []string
	Spread    decimal.Decimal
	Risk      RiskLimits
	Journal   *tradelog.Journal
	Now       func() time.Time
}

// Trader runs bounded turns for one account: snapshot, decide, apply,
// value, save.
type Trader struct {
	name    string
	acct    *account.Account
	decider interfaces.Decider
	market  interfaces.MarketData
	watch   []string
	spread  decimal.Decimal
	risk    *riskManager
	journal *tradelog.Journal
	now     func() time.Time

	busy atomic.Bool

	mu    sync.Mutex
	stats types.TraderStats
}

var _ interfaces.Trader = (*Trader)(nil)

func New(opts Options) (*Trader, error) {
	if opts.Account == nil {
		return nil, errors.New("trader requires an account")
	}
	if opts.Decider == nil {
		return nil, errors.New("trader requires a decider")
	}
	if opts.Market == nil {
		return nil, errors.New("trader requires market data")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	name := opts.Account.Name()
	watch := make([]string, 0, len(opts.Watchlist))
	for _, s := range opts.Watchlist {
		if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
			watch = append(watch, s)
		}
	}
	return &Trader{
		name:    name,
		acct:    opts.Account,
		decider: opts.Decider,
		market:  opts.Market,
		watch:   watch,
		spread:  opts.Spread,
		risk:    newRiskManager(name, opts.Risk),
		journal: opts.Journal,
		now:     opts.Now,
		stats:   types.TraderStats{Name: name},
	}, nil
}

func (t *Trader) Name() string {
	return t.name
}

func (t *Trader) Account() *account.Account {
	return t.acct
}

func (t *Trader) Stats() types.TraderStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.stats
	s.Busy = t.busy.Load()
	return s
}

// RunTurn never returns an error: every failure is folded into the outcome
// so one trader cannot stop the floor.
func (t *Trader) RunTurn(ctx context.Context, cycle int) types.TurnOutcome {
	out := types.TurnOutcome{Trader: t.name, Cycle: cycle, Started: t.now()}

	if !t.busy.CompareAndSwap(false, true) {
		out.Status = types.TurnFailed
		out.Err = fmt.Errorf("%w: %s", exception.ErrTurnInProgress, t.name)
		out.Finished = t.now()
		logger.Warn(ctx, "Turn refused, previous turn still running", "trader", t.name, "cycle", cycle)
		return out
	}
	defer t.busy.Store(false)

	t.runTurn(ctx, &out)
	out.Finished = t.now()
	t.record(out)
	return out
}

func (t *Trader) runTurn(ctx context.Context, out *types.TurnOutcome) {
	symbols := t.symbols()
	prices, err := t.market.Prices(ctx, symbols)
	if err != nil {
		if ctx.Err() != nil {
			out.Status, out.Err = t.contextStatus(ctx)
			return
		}
		logger.Warn(ctx, "Partial price snapshot", "trader", t.name, "error", err, "priced", len(prices), "wanted", len(symbols))
	}
	if prices == nil {
		prices = map[string]decimal.Decimal{}
	}

	snap := t.acct.Snapshot(prices)
	market := types.MarketContext{
		Time:      t.now(),
		Prices:    copyPrices(prices),
		Watchlist: append([]string(nil), t.watch...),
		Spread:    t.spread,
	}

	orders, status, err := t.decide(ctx, snap, market)
	if err != nil {
		out.Status, out.Err = status, err
		logger.ErrorWithErr(ctx, "Decision failed", err, "trader", t.name, "status", status)
		return
	}
	logger.Decision(ctx, t.name, len(orders), "cycle", out.Cycle)
	if len(orders) > 0 {
		if jerr := t.journal.Append(tradelog.Entry{Trader: t.name, Cycle: out.Cycle, Kind: tradelog.KindDecision, Reason: fmt.Sprintf("%d orders", len(orders))}); jerr != nil {
			logger.Warn(ctx, "Journal write failed", "trader", t.name, "error", jerr)
		}
	}

	// once a decision is accepted its orders run to completion; a stop
	// request only stops further turns
	applyCtx := context.WithoutCancel(ctx)
	var persistErr error
	for _, o := range orders {
		tx, err := t.apply(applyCtx, out.Cycle, o, prices)
		switch {
		case err == nil:
			out.Applied = append(out.Applied, tx)
		case errors.Is(err, exception.ErrPersistence) && tx.ID != "":
			out.Applied = append(out.Applied, tx)
			persistErr = errors.Join(persistErr, err)
		default:
			out.Rejected = append(out.Rejected, t.reject(applyCtx, out.Cycle, o, err))
		}
	}

	sample, err := t.acct.RecordValuation(t.now(), prices)
	if err != nil {
		logger.Warn(ctx, "Valuation skipped", "trader", t.name, "error", err)
	} else {
		out.Valuation = &sample
	}
	if err := t.acct.Save(applyCtx); err != nil {
		persistErr = errors.Join(persistErr, err)
	}

	if persistErr != nil {
		out.Status, out.Err = types.TurnPersistenceError, persistErr
		return
	}
	out.Status = types.TurnSucceeded
}

type proposal struct {
	orders []types.ProposedOrder
	err    error
}

// decide runs the decider and abandons it once ctx is done, even if the
// decider itself ignores ctx.
func (t *Trader) decide(ctx context.Context, snap types.AccountSnapshot, market types.MarketContext) ([]types.ProposedOrder, types.TurnStatus, error) {
	ch := make(chan proposal, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- proposal{err: fmt.Errorf("decider panic: %v", r)}
			}
		}()
		orders, err := t.decider.Propose(ctx, snap, market)
		ch <- proposal{orders: orders, err: err}
	}()

	select {
	case <-ctx.Done():
		status, err := t.contextStatus(ctx)
		return nil, status, err
	case p := <-ch:
		if p.err == nil {
			return p.orders, types.TurnSucceeded, nil
		}
		if ctx.Err() != nil {
			status, err := t.contextStatus(ctx)
			return nil, status, err
		}
		if errors.Is(p.err, exception.ErrDecisionTimeout) {
			return nil, types.TurnDecisionTimeout, p.err
		}
		if errors.Is(p.err, exception.ErrDecisionError) {
			return nil, types.TurnDecisionError, p.err
		}
		return nil, types.TurnDecisionError, fmt.Errorf("%w: %w", exception.ErrDecisionError, p.err)
	}
}

func (t *Trader) contextStatus(ctx context.Context) (types.TurnStatus, error) {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return types.TurnDecisionTimeout, fmt.Errorf("%w: %s", exception.ErrDecisionTimeout, t.name)
	}
	return types.TurnCancelled, ctx.Err()
}

// apply validates and executes one order at the quote's execution price.
// prices is updated with the fresh mid for the symbol.
func (t *Trader) apply(ctx context.Context, cycle int, o types.ProposedOrder, prices map[string]decimal.Decimal) (types.Transaction, error) {
	symbol := strings.ToUpper(strings.TrimSpace(o.Symbol))
	if o.Quantity <= 0 {
		return types.Transaction{}, fmt.Errorf("%w: quantity must be positive, got %d", exception.ErrInvalidAmount, o.Quantity)
	}
	side, ok := types.ParseSide(string(o.Side))
	if !ok {
		return types.Transaction{}, fmt.Errorf("%w: unknown side %q", exception.ErrInvalidAmount, o.Side)
	}

	quote, err := t.market.Quote(ctx, symbol)
	if err != nil {
		return types.Transaction{}, err
	}
	prices[quote.Symbol] = quote.Mid

	var tx types.Transaction
	if side == types.SideBuy {
		if err := t.risk.validateBuy(ctx, t.acct, quote, o.Quantity, prices); err != nil {
			return types.Transaction{}, err
		}
		tx, err = t.acct.Buy(ctx, quote.Symbol, o.Quantity, quote.Ask, o.Rationale)
	} else {
		tx, err = t.acct.Sell(ctx, quote.Symbol, o.Quantity, quote.Bid, o.Rationale)
	}
	if tx.ID == "" {
		return tx, err
	}

	logger.Trade(ctx, t.name, tx.Symbol, string(side), o.Quantity, tx.Price.String(), tx.ID, "rationale", o.Rationale)
	if jerr := t.journal.Append(tradelog.Entry{
		Trader:    t.name,
		Cycle:     cycle,
		Kind:      tradelog.KindFill,
		Symbol:    tx.Symbol,
		Side:      string(side),
		Qty:       o.Quantity,
		Price:     tx.Price.String(),
		OrderID:   tx.ID,
		Rationale: o.Rationale,
	}); jerr != nil {
		logger.Warn(ctx, "Journal write failed", "trader", t.name, "error", jerr)
	}
	return tx, err
}

func (t *Trader) reject(ctx context.Context, cycle int, o types.ProposedOrder, err error) types.RejectedOrder {
	r := types.RejectedOrder{Order: o, Reason: err.Error(), Err: err}
	if !errors.Is(err, exception.ErrPositionLimit) && !errors.Is(err, exception.ErrStopLoss) {
		logger.Risk(ctx, t.name, o.Symbol, "ORDER_REJECTED", "side", string(o.Side), "qty", o.Quantity, "reason", r.Reason)
	}
	if jerr := t.journal.Append(tradelog.Entry{
		Trader: t.name,
		Cycle:  cycle,
		Kind:   tradelog.KindReject,
		Symbol: strings.ToUpper(o.Symbol),
		Side:   string(o.Side),
		Qty:    o.Quantity,
		Reason: r.Reason,
	}); jerr != nil {
		logger.Warn(ctx, "Journal write failed", "trader", t.name, "error", jerr)
	}
	return r
}

func (t *Trader) record(out types.TurnOutcome) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stats.TurnsAttempted++
	t.stats.LastStatus = out.Status
	t.stats.LastError = out.ErrString()
	if out.Succeeded() {
		t.stats.TurnsSucceeded++
	} else {
		t.stats.Failures++
	}
}

// symbols is the watchlist plus anything currently held, sorted.
func (t *Trader) symbols() []string {
	set := make(map[string]struct{}, len(t.watch))
	for _, s := range t.watch {
		set[s] = struct{}{}
	}
	for _, s := range t.acct.HeldSymbols() {
		set[s] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func copyPrices(in map[string]decimal.Decimal) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

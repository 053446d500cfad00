package llm

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"ai-trading-floor/internal/exception"
	"ai-trading-floor/internal/interfaces"
	"ai-trading-floor/internal/logger"
	"ai-trading-floor/internal/types"
)

// Chat is a single system+user completion against a hosted model.
type Chat interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

type AgentOptions struct {
	Name            string
	Strategy        string
	System          string
	Chat            Chat
	Research        interfaces.Researcher
	ResearchTimeout time.Duration
	TradingTimeout  time.Duration
	MaxResearch     int
}

// Agent is a two-step decider: a bounded research pass over the symbols of
// interest, then one bounded chat call that must return an order list.
type Agent struct {
	opts AgentOptions
}

var _ interfaces.Decider = (*Agent)(nil)

func NewAgent(opts AgentOptions) *Agent {
	if opts.ResearchTimeout <= 0 {
		opts.ResearchTimeout = 60 * time.Second
	}
	if opts.TradingTimeout <= 0 {
		opts.TradingTimeout = 30 * time.Second
	}
	if opts.MaxResearch <= 0 {
		opts.MaxResearch = 5
	}
	return &Agent{opts: opts}
}

func (a *Agent) Propose(ctx context.Context, snap types.AccountSnapshot, market types.MarketContext) ([]types.ProposedOrder, error) {
	briefs := a.research(ctx, researchSymbols(snap, market, a.opts.MaxResearch))
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	prompt, err := BuildPrompt(snap, market, briefs)
	if err != nil {
		return nil, fmt.Errorf("%w: build prompt: %w", exception.ErrDecisionError, err)
	}

	tctx, cancel := context.WithTimeout(ctx, a.opts.TradingTimeout)
	defer cancel()
	reply, err := a.opts.Chat.Complete(tctx, SystemPrompt(a.opts.System, a.opts.Name, snap.Strategy), prompt)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(tctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: trading step exceeded %s", exception.ErrDecisionTimeout, a.opts.TradingTimeout)
		}
		return nil, fmt.Errorf("%w: %w", exception.ErrDecisionError, err)
	}
	return ParseOrders(reply)
}

// research collects briefs under the research budget. Symbols that fail or
// run out of time are left out.
func (a *Agent) research(ctx context.Context, symbols []string) []types.ResearchBrief {
	if a.opts.Research == nil || len(symbols) == 0 {
		return nil
	}
	rctx, cancel := context.WithTimeout(ctx, a.opts.ResearchTimeout)
	defer cancel()

	var (
		mu     sync.Mutex
		briefs = make([]types.ResearchBrief, 0, len(symbols))
		g      errgroup.Group
	)
	g.SetLimit(4)
	for _, sym := range symbols {
		sym := sym
		g.Go(func() error {
			b, err := a.opts.Research.Brief(rctx, sym)
			if err != nil {
				logger.Debug(ctx, "Research skipped", "trader", a.opts.Name, "symbol", sym, "error", err)
				return nil
			}
			mu.Lock()
			briefs = append(briefs, b)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	sort.Slice(briefs, func(i, j int) bool { return briefs[i].Symbol < briefs[j].Symbol })
	return briefs
}

// researchSymbols puts holdings first, then the watchlist, capped at max.
func researchSymbols(snap types.AccountSnapshot, market types.MarketContext, max int) []string {
	seen := map[string]bool{}
	var out []string
	held := make([]string, 0, len(snap.Holdings))
	for s := range snap.Holdings {
		held = append(held, s)
	}
	sort.Strings(held)
	for _, s := range append(held, market.Watchlist...) {
		if seen[s] || len(out) >= max {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

package llm

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"ai-trading-floor/internal/exception"
	"ai-trading-floor/internal/types"
)

const (
	defaultPersona = "You are %s, an autonomous equities trader managing a simulated account. Your strategy: %s."
	responseFormat = "Trade only symbols present in the price list. " +
		"Respond ONLY with compact JSON of the form " +
		`{"orders":[{"symbol":"AAPL","side":"BUY","quantity":10,"rationale":"..."}]}` +
		`. Return {"orders":[]} to hold.`
)

// SystemPrompt builds the persona, or uses the configured override, and
// always ends with the reply format.
func SystemPrompt(override, name, strategy string) string {
	if strategy == "" {
		strategy = "balanced growth with disciplined risk"
	}
	persona := fmt.Sprintf(defaultPersona, name, strategy)
	if o := strings.TrimSpace(override); o != "" {
		persona = fmt.Sprintf("%s You trade as %s. Your strategy: %s.", o, name, strategy)
	}
	return persona + " " + responseFormat
}

type promptHolding struct {
	Symbol   string `json:"symbol"`
	Quantity int64  `json:"quantity"`
}

type promptState struct {
	Account struct {
		Name           string          `json:"name"`
		Strategy       string          `json:"strategy"`
		Cash           string          `json:"cash"`
		PortfolioValue string          `json:"portfolio_value"`
		Holdings       []promptHolding `json:"holdings"`
		Recent         []string        `json:"recent_transactions"`
	} `json:"account"`
	Market struct {
		Time   string            `json:"time"`
		Spread string            `json:"spread"`
		Prices map[string]string `json:"prices"`
	} `json:"market"`
	Research []types.ResearchBrief `json:"research,omitempty"`
}

// BuildPrompt renders the account, market and research as the JSON state the
// model trades on.
func BuildPrompt(snap types.AccountSnapshot, market types.MarketContext, briefs []types.ResearchBrief) (string, error) {
	var s promptState
	s.Account.Name = snap.Name
	s.Account.Strategy = snap.Strategy
	s.Account.Cash = snap.Balance.StringFixed(2)
	s.Account.PortfolioValue = snap.PortfolioValue.StringFixed(2)
	syms := make([]string, 0, len(snap.Holdings))
	for sym := range snap.Holdings {
		syms = append(syms, sym)
	}
	sort.Strings(syms)
	for _, sym := range syms {
		s.Account.Holdings = append(s.Account.Holdings, promptHolding{Symbol: sym, Quantity: snap.Holdings[sym]})
	}
	for _, tx := range snap.RecentTransactions {
		s.Account.Recent = append(s.Account.Recent, fmt.Sprintf("%s %s", tx.Side(), tx.String()))
	}

	s.Market.Time = market.Time.UTC().Format("2006-01-02T15:04:05Z")
	s.Market.Spread = market.Spread.String()
	s.Market.Prices = make(map[string]string, len(market.Prices))
	for sym, p := range market.Prices {
		s.Market.Prices[sym] = p.String()
	}
	s.Research = briefs

	b, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	return "State:" + string(b) + "\n\nDecide which orders to place now.", nil
}

type rawOrder struct {
	Symbol    string `json:"symbol"`
	Side      string `json:"side"`
	Quantity  int64  `json:"quantity"`
	Rationale string `json:"rationale"`
}

// ParseOrders extracts the order list from a model reply. Anything that is
// not a well-formed order list is a decision error.
func ParseOrders(text string) ([]types.ProposedOrder, error) {
	t := strings.TrimSpace(text)
	start := strings.Index(t, "{")
	end := strings.LastIndex(t, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("%w: no JSON object in reply", exception.ErrDecisionError)
	}

	var env struct {
		Orders *[]rawOrder `json:"orders"`
	}
	dec := json.NewDecoder(strings.NewReader(t[start : end+1]))
	if err := dec.Decode(&env); err != nil {
		return nil, fmt.Errorf("%w: malformed reply: %w", exception.ErrDecisionError, err)
	}
	if env.Orders == nil {
		return nil, fmt.Errorf("%w: reply has no orders field", exception.ErrDecisionError)
	}

	out := make([]types.ProposedOrder, 0, len(*env.Orders))
	for i, o := range *env.Orders {
		sym := strings.ToUpper(strings.TrimSpace(o.Symbol))
		if sym == "" {
			return nil, fmt.Errorf("%w: order %d has no symbol", exception.ErrDecisionError, i)
		}
		side, ok := types.ParseSide(o.Side)
		if !ok {
			return nil, fmt.Errorf("%w: order %d has unknown side %q", exception.ErrDecisionError, i, o.Side)
		}
		if o.Quantity <= 0 {
			return nil, fmt.Errorf("%w: order %d has non-positive quantity %d", exception.ErrDecisionError, i, o.Quantity)
		}
		out = append(out, types.ProposedOrder{Symbol: sym, Side: side, Quantity: o.Quantity, Rationale: o.Rationale})
	}
	return out, nil
}

package llm

import (
	"fmt"
	"os"

	"ai-trading-floor/internal/interfaces"
	"ai-trading-floor/internal/llm/claude"
	"ai-trading-floor/internal/llm/llmobs"
	"ai-trading-floor/internal/llm/noop"
	"ai-trading-floor/internal/llm/openai"
	"ai-trading-floor/internal/llm/rules"
	"ai-trading-floor/internal/store"
)

// New builds the decider named by tc.Decider, wrapped for observability.
// research may be nil.
func New(cfg *store.Config, tc store.TraderConfig, research interfaces.Researcher) (interfaces.Decider, error) {
	var d interfaces.Decider
	switch tc.Decider {
	case "NOOP":
		d = noop.NewNoopDecider()
	case "RULES":
		r, err := rules.New(tc.Style, rulesBudget(cfg.Trading.MaxPositionSize))
		if err != nil {
			return nil, fmt.Errorf("trader %s: %w", tc.Name, err)
		}
		d = r
	case "OPENAI":
		c, err := openai.New(openai.Options{
			APIKey:      os.Getenv("OPENAI_API_KEY"),
			Model:       tc.Model,
			BaseURL:     os.Getenv("OPENAI_BASE_URL"),
			MaxTokens:   cfg.LLM.MaxTokens,
			Temperature: cfg.LLM.Temperature,
		})
		if err != nil {
			return nil, fmt.Errorf("trader %s: %w", tc.Name, err)
		}
		d = newAgent(cfg, tc, c, research)
	case "CLAUDE":
		c, err := claude.New(claude.Options{
			APIKey:      os.Getenv("CLAUDE_API_KEY"),
			Model:       tc.Model,
			MaxTokens:   cfg.LLM.MaxTokens,
			Temperature: cfg.LLM.Temperature,
		})
		if err != nil {
			return nil, fmt.Errorf("trader %s: %w", tc.Name, err)
		}
		d = newAgent(cfg, tc, c, research)
	default:
		return nil, fmt.Errorf("trader %s: unknown decider %q", tc.Name, tc.Decider)
	}
	return llmobs.Wrap(tc.Name, tc.Decider, d), nil
}

func newAgent(cfg *store.Config, tc store.TraderConfig, chat Chat, research interfaces.Researcher) *Agent {
	return NewAgent(AgentOptions{
		Name:            tc.Name,
		Strategy:        tc.Strategy,
		System:          cfg.LLM.System,
		Chat:            chat,
		Research:        research,
		ResearchTimeout: cfg.Floor.ResearchTimeout,
		TradingTimeout:  cfg.Floor.TradingTimeout,
	})
}

// rulesBudget keeps a single buy at half the position limit so a second buy
// can still pass the limit check.
func rulesBudget(maxPosition float64) float64 {
	if maxPosition <= 0 {
		return 0.05
	}
	return maxPosition / 2
}

// Package research turns scraped headlines into short per-symbol briefs for
// the LLM deciders.
package research

import (
	"context"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"ai-trading-floor/internal/interfaces"
	"ai-trading-floor/internal/logger"
	"ai-trading-floor/internal/store"
	"ai-trading-floor/internal/trace"
	"ai-trading-floor/internal/types"
)

// HeadlineSource is satisfied by *Scraper.
type HeadlineSource interface {
	Headlines(ctx context.Context, symbol string, max int) ([]types.Headline, error)
}

type Options struct {
	Enabled      bool
	MaxArticles  int
	CacheTTL     time.Duration
	// FetchTimeout bounds one shared scrape. It is detached from the
	// callers, who each wait only as long as their own ctx allows.
	FetchTimeout time.Duration
}

// OptionsFromConfig maps the research section of the config.
func OptionsFromConfig(cfg *store.Config) Options {
	return Options{
		Enabled:      cfg.Research.Enabled,
		MaxArticles:  cfg.Research.MaxArticles,
		CacheTTL:     cfg.Research.CacheTTL,
		FetchTimeout: cfg.Floor.ResearchTimeout,
	}
}

// Service serves cached briefs. It never fails: anything that goes wrong
// yields a NEUTRAL brief that says so.
type Service struct {
	source   HeadlineSource
	analyzer *Analyzer
	cache    *cache.Cache
	flights  singleflight.Group
	opts     Options
}

var _ interfaces.Researcher = (*Service)(nil)

func NewService(source HeadlineSource, opts Options) *Service {
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = time.Hour
	}
	if opts.MaxArticles <= 0 {
		opts.MaxArticles = 10
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = time.Minute
	}
	return &Service{
		source:   source,
		analyzer: NewAnalyzer(),
		cache:    cache.New(opts.CacheTTL, 2*opts.CacheTTL),
		opts:     opts,
	}
}

func (s *Service) Brief(ctx context.Context, symbol string) (types.ResearchBrief, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if !s.opts.Enabled {
		return s.neutral(symbol, "Research disabled"), nil
	}

	ctx, span := trace.StartSpan(ctx, "research.Brief",
		oteltrace.WithAttributes(attribute.String("symbol", symbol)))
	defer span.End()

	if v, ok := s.cache.Get(symbol); ok {
		b := v.(types.ResearchBrief)
		logger.Debug(ctx, "Using cached research", "symbol", symbol,
			"age_minutes", time.Since(time.Unix(b.Timestamp, 0)).Minutes())
		return b, nil
	}

	ch := s.flights.DoChan(symbol, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.FetchTimeout)
		defer cancel()
		hs, err := s.source.Headlines(fctx, symbol, s.opts.MaxArticles)
		if err != nil {
			return nil, err
		}
		b := s.analyzer.Brief(symbol, hs)
		s.cache.Set(symbol, b, cache.DefaultExpiration)
		return b, nil
	})

	select {
	case <-ctx.Done():
		return s.neutral(symbol, "Research timed out"), nil
	case res := <-ch:
		if res.Err != nil {
			logger.Warn(ctx, "Research failed", "symbol", symbol, "error", res.Err)
			return s.neutral(symbol, "Research unavailable: "+res.Err.Error()), nil
		}
		b := res.Val.(types.ResearchBrief)
		logger.Info(ctx, "Research brief ready", "symbol", symbol,
			"sentiment", b.Sentiment, "score", b.Score, "headlines", len(b.Headlines))
		return b, nil
	}
}

// Forget drops the cached brief for symbol.
func (s *Service) Forget(symbol string) {
	s.cache.Delete(strings.ToUpper(symbol))
}

func (s *Service) neutral(symbol, summary string) types.ResearchBrief {
	return types.ResearchBrief{
		Symbol:    symbol,
		Sentiment: SentimentNeutral,
		Summary:   summary,
		Timestamp: s.analyzer.now().Unix(),
	}
}

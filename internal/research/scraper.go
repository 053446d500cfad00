package research

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"

	"ai-trading-floor/internal/api"
	"ai-trading-floor/internal/logger"
	"ai-trading-floor/internal/types"
)

// Source is one news site and the CSS selectors to read its listing page.
type Source struct {
	Name       string
	BaseURL    string
	SearchPath string // e.g. "/quote/{symbol}/news"
	Selectors  Selectors
}

type Selectors struct {
	Item      string
	Title     string
	Link      string
	Summary   string
	Published string
}

// DefaultSources are the listing pages scraped for US equities.
func DefaultSources() []Source {
	return []Source{
		{
			Name:       "Finviz",
			BaseURL:    "https://finviz.com",
			SearchPath: "/quote.ashx?t={symbol}",
			Selectors: Selectors{
				Item:      "table#news-table tr",
				Title:     "a.tab-link-news, a.tab-link",
				Link:      "a.tab-link-news, a.tab-link",
				Published: "td[width='130']",
			},
		},
		{
			Name:       "YahooFinance",
			BaseURL:    "https://finance.yahoo.com",
			SearchPath: "/quote/{symbol}/news",
			Selectors: Selectors{
				Item:    "li.stream-item, li.js-stream-content",
				Title:   "h3",
				Link:    "a",
				Summary: "p",
			},
		},
	}
}

// GoogleNewsSource is the fallback used when no primary source returns
// anything.
func GoogleNewsSource() Source {
	return Source{
		Name:       "GoogleNews",
		BaseURL:    "https://news.google.com",
		SearchPath: "/search?q={symbol}+stock&hl=en-US&gl=US&ceid=US:en",
		Selectors: Selectors{
			Item:      "article",
			Title:     "h3, h4, a.JtKRv",
			Link:      "a",
			Published: "time",
		},
	}
}

// Scraper collects headlines with colly and pulls article bodies with
// goquery.
type Scraper struct {
	sources  []Source
	fallback []Source
	timeout  time.Duration
	enrich   int
}

type ScraperOption func(*Scraper)

func WithSources(sources ...Source) ScraperOption {
	return func(s *Scraper) { s.sources = sources }
}

func WithFallback(sources ...Source) ScraperOption {
	return func(s *Scraper) { s.fallback = sources }
}

// WithEnrich fetches the body of the first n headlines that came without a
// summary.
func WithEnrich(n int) ScraperOption {
	return func(s *Scraper) { s.enrich = n }
}

func NewScraper(timeout time.Duration, opts ...ScraperOption) *Scraper {
	s := &Scraper{
		sources:  DefaultSources(),
		fallback: []Source{GoogleNewsSource()},
		timeout:  timeout,
		enrich:   2,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Headlines returns up to max headlines for symbol across all sources.
// A source that fails is logged and skipped.
func (s *Scraper) Headlines(ctx context.Context, symbol string, max int) ([]types.Headline, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if max <= 0 {
		max = 10
	}
	out := s.collect(ctx, s.sources, symbol, max)
	if len(out) == 0 && len(s.fallback) > 0 {
		logger.Debug(ctx, "No headlines from primary sources, trying fallback", "symbol", symbol)
		out = s.collect(ctx, s.fallback, symbol, max)
	}
	if err := ctx.Err(); err != nil && len(out) == 0 {
		return nil, err
	}

	enriched := 0
	for i := range out {
		if enriched >= s.enrich || ctx.Err() != nil {
			break
		}
		if out[i].Summary != "" {
			continue
		}
		body, err := s.ArticleBody(ctx, out[i].URL)
		enriched++
		if err != nil {
			logger.Debug(ctx, "Article body unavailable", "url", out[i].URL, "error", err)
			continue
		}
		out[i].Summary = clip(body, 600)
	}
	return out, nil
}

func (s *Scraper) collect(ctx context.Context, sources []Source, symbol string, max int) []types.Headline {
	perSource := max / len(sources)
	if perSource < 1 {
		perSource = 1
	}
	var out []types.Headline
	for _, src := range sources {
		if ctx.Err() != nil {
			break
		}
		hs, err := s.scrapeSource(ctx, src, symbol, perSource)
		if err != nil {
			logger.Warn(ctx, "Failed to scrape source", "source", src.Name, "symbol", symbol, "error", err)
			continue
		}
		out = append(out, hs...)
	}
	if len(out) > max {
		out = out[:max]
	}
	return out
}

func (s *Scraper) newCollector(ctx context.Context, domain string) *colly.Collector {
	opts := []colly.CollectorOption{colly.MaxDepth(1), colly.AllowURLRevisit()}
	if domain != "" {
		opts = append(opts, colly.AllowedDomains(domain))
	}
	c := colly.NewCollector(opts...)
	c.SetRequestTimeout(s.timeout)
	c.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil {
			r.Abort()
			return
		}
		for k, v := range api.BrowserHeaders() {
			r.Headers.Set(k, v)
		}
		r.Headers.Set("Accept", "text/html,application/xhtml+xml")
	})
	return c
}

func (s *Scraper) scrapeSource(ctx context.Context, src Source, symbol string, max int) ([]types.Headline, error) {
	var (
		mu  sync.Mutex
		out []types.Headline
	)
	c := s.newCollector(ctx, hostOf(src.BaseURL))
	c.OnHTML(src.Selectors.Item, func(e *colly.HTMLElement) {
		mu.Lock()
		defer mu.Unlock()
		if len(out) >= max {
			return
		}
		title := strings.TrimSpace(e.ChildText(src.Selectors.Title))
		link := e.ChildAttr(src.Selectors.Link, "href")
		if title == "" || link == "" {
			return
		}
		h := types.Headline{
			Symbol: symbol,
			Title:  title,
			URL:    e.Request.AbsoluteURL(link),
			Source: src.Name,
		}
		if src.Selectors.Summary != "" {
			h.Summary = strings.TrimSpace(e.ChildText(src.Selectors.Summary))
		}
		if src.Selectors.Published != "" {
			h.PublishedAt = strings.TrimSpace(e.ChildText(src.Selectors.Published))
		}
		out = append(out, h)
	})

	var visitErr error
	c.OnError(func(r *colly.Response, err error) {
		visitErr = fmt.Errorf("%s: HTTP %d: %w", src.Name, r.StatusCode, err)
	})

	target := src.BaseURL + strings.ReplaceAll(src.SearchPath, "{symbol}", url.QueryEscape(symbol))
	if err := c.Visit(target); err != nil {
		return nil, fmt.Errorf("visit %s: %w", target, err)
	}
	c.Wait()
	if visitErr != nil {
		return nil, visitErr
	}
	return out, nil
}

// ArticleBody fetches a page and returns the text of its article
// paragraphs.
func (s *Scraper) ArticleBody(ctx context.Context, articleURL string) (string, error) {
	c := s.newCollector(ctx, "")
	var (
		body    string
		pageErr error
	)
	c.OnResponse(func(r *colly.Response) {
		body, pageErr = extractBody(r.Body)
	})
	c.OnError(func(r *colly.Response, err error) {
		pageErr = err
	})
	if err := c.Visit(articleURL); err != nil {
		return "", err
	}
	c.Wait()
	if pageErr != nil {
		return "", pageErr
	}
	return body, nil
}

var bodySelectors = "article p, div.article-body p, div.caas-body p, div.content-body p, div.story-content p"

func extractBody(html []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return "", err
	}
	var paras []string
	doc.Find(bodySelectors).Each(func(_ int, p *goquery.Selection) {
		if t := strings.TrimSpace(p.Text()); len(t) > 20 {
			paras = append(paras, t)
		}
	})
	if len(paras) == 0 {
		return "", fmt.Errorf("no article text")
	}
	return strings.Join(paras, "\n\n"), nil
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

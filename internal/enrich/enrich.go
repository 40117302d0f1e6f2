// Package enrich fills in missing titles and snippets on search results
// by fetching their URLs. Enrichment is advisory: entries whose fetch or
// parse fails keep whatever fields they already had.
package enrich

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"github.com/gocolly/colly/v2"

	"github.com/easelhq/easel/internal/session"
)

// Defaults applied by New for zero Config fields.
const (
	DefaultParallelism = 2
	DefaultDelay       = 200 * time.Millisecond
	DefaultTimeout     = 5 * time.Second
)

const (
	defaultUserAgent = "Mozilla/5.0 (compatible; easel/1.0; +https://github.com/easelhq/easel)"

	// snippetLimit caps extracted snippets, in runes.
	snippetLimit = 240

	// indexKey carries the result index through a collector request.
	indexKey = "result_index"
)

// Config configures an Enricher.
type Config struct {
	// Enabled turns fetching on. A disabled enricher is a no-op.
	Enabled bool

	// Parallelism caps concurrent fetches across all domains.
	Parallelism int

	// Delay is the politeness delay between requests to the same domain.
	Delay time.Duration

	// Timeout bounds a single page fetch.
	Timeout time.Duration

	// UserAgent overrides the default user agent string.
	UserAgent string

	Logger *slog.Logger
}

// Enricher fetches pages behind search-result URLs and extracts a title
// and a short snippet from each.
type Enricher struct {
	cfg    Config
	logger *slog.Logger
}

// New returns an Enricher with defaults filled in for zero Config fields.
func New(cfg Config) *Enricher {
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = DefaultParallelism
	}
	if cfg.Delay <= 0 {
		cfg.Delay = DefaultDelay
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Enricher{cfg: cfg, logger: logger}
}

// Lookup fetches the given URLs and returns one result per URL in input
// order. URLs that cannot be fetched or parsed come back with only the
// URL set.
func (e *Enricher) Lookup(ctx context.Context, urls []string) []session.SearchResult {
	results := make([]session.SearchResult, len(urls))
	for i, u := range urls {
		results[i].URL = u
	}
	e.Enrich(ctx, results)
	return results
}

// Enrich fills empty titles and snippets in place. Entries that already
// carry a title are not fetched again.
func (e *Enricher) Enrich(ctx context.Context, results []session.SearchResult) {
	if !e.cfg.Enabled || len(results) == 0 {
		return
	}

	c := colly.NewCollector(
		colly.Async(),
		colly.UserAgent(e.cfg.UserAgent),
		colly.MaxDepth(1),
	)
	c.SetRequestTimeout(e.cfg.Timeout)
	if err := c.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: e.cfg.Parallelism,
		Delay:       e.cfg.Delay,
	}); err != nil {
		e.logger.Warn("applying fetch limits", "error", err)
	}

	var mu sync.Mutex
	c.OnResponse(func(r *colly.Response) {
		idx, err := strconv.Atoi(r.Ctx.Get(indexKey))
		if err != nil || idx < 0 || idx >= len(results) {
			return
		}
		title, snippet := extract(r.Body, r.Request.URL)

		mu.Lock()
		defer mu.Unlock()
		if results[idx].Title == "" {
			results[idx].Title = title
		}
		if results[idx].Snippet == "" {
			results[idx].Snippet = snippet
		}
	})
	c.OnError(func(r *colly.Response, err error) {
		var u string
		if r != nil && r.Request != nil && r.Request.URL != nil {
			u = r.Request.URL.String()
		}
		e.logger.Debug("page fetch failed", "url", u, "error", err)
	})

	pending := 0
	for i, res := range results {
		if res.URL == "" || res.Title != "" {
			continue
		}
		if ctx.Err() != nil {
			break
		}
		rctx := colly.NewContext()
		rctx.Put(indexKey, strconv.Itoa(i))
		if err := c.Request(http.MethodGet, res.URL, nil, rctx, nil); err != nil {
			e.logger.Debug("page fetch rejected", "url", res.URL, "error", err)
			continue
		}
		pending++
	}
	if pending > 0 {
		c.Wait()
	}
}

// extract pulls a title and snippet out of an HTML page. Readability gets
// the first pass; a plain title and meta-description scrape covers pages
// it rejects.
func extract(body []byte, pageURL *url.URL) (title, snippet string) {
	if article, err := readability.FromReader(bytes.NewReader(body), pageURL); err == nil {
		title = strings.TrimSpace(article.Title)
		snippet = clip(article.Excerpt)
		if snippet == "" {
			snippet = clip(article.TextContent)
		}
	}
	if title != "" && snippet != "" {
		return title, snippet
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return title, snippet
	}
	if title == "" {
		title = strings.TrimSpace(doc.Find("title").First().Text())
	}
	if snippet == "" {
		desc := doc.Find(`meta[name="description"]`).AttrOr("content", "")
		if desc == "" {
			desc = doc.Find(`meta[property="og:description"]`).AttrOr("content", "")
		}
		snippet = clip(desc)
	}
	return title, snippet
}

// clip collapses runs of whitespace and cuts at snippetLimit runes.
func clip(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= snippetLimit {
		return s
	}
	return strings.TrimSpace(string(runes[:snippetLimit])) + "…"
}

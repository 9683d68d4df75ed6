// Package crawler harvests documentation pages from a website into corpus
// documents. Starting from one page it follows in-domain links one hop,
// strips page chrome and keeps the readable text with its source URL.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"golang.org/x/net/html"

	"github.com/gmehra/helperbot/internal/corpus"
)

// Crawl pacing and traversal defaults.
const (
	DefaultLinkSelector = "a[href]"
	DefaultDelay        = 500 * time.Millisecond
	DefaultParallelism  = 2
	DefaultMaxDepth     = 2
	DefaultUserAgent    = "helperbot-crawler/1.0"
)

// junkSelector matches the page chrome removed before text extraction.
const junkSelector = "script, style, noscript, header, footer, nav, aside"

// ErrNoStartURL is returned when the configuration names no page to
// start from.
var ErrNoStartURL = errors.New("crawler: start URL required")

// Config controls one crawl. Zero fields fall back to the defaults above;
// an empty AllowedDomains list restricts the crawl to the start URL's host.
type Config struct {
	StartURL       string
	AllowedDomains []string
	LinkSelector   string // CSS selector for links to follow from each page
	MaxPages       int    // stop issuing requests after this many; 0 means unlimited
	MaxDepth       int    // link hops from the start page, inclusive
	Delay          time.Duration
	Parallelism    int
	UserAgent      string
	ObeyRobots     bool
}

// Crawler fetches pages and turns them into documents.
type Crawler struct {
	cfg    Config
	logger *slog.Logger
}

// New validates the configuration and builds a crawler. The logger may be
// nil, in which case the process default is used.
func New(cfg Config, logger *slog.Logger) (*Crawler, error) {
	if cfg.StartURL == "" {
		return nil, ErrNoStartURL
	}
	if len(cfg.AllowedDomains) == 0 {
		u, err := url.Parse(cfg.StartURL)
		if err != nil || u.Hostname() == "" {
			return nil, fmt.Errorf("crawler: cannot derive allowed domain from %q", cfg.StartURL)
		}
		cfg.AllowedDomains = []string{u.Hostname()}
	}
	if cfg.LinkSelector == "" {
		cfg.LinkSelector = DefaultLinkSelector
	}
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = DefaultMaxDepth
	}
	if cfg.Delay <= 0 {
		cfg.Delay = DefaultDelay
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = DefaultParallelism
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Crawler{cfg: cfg, logger: logger}, nil
}

// Crawl walks the site and returns one document per page with readable
// text, sorted by source URL so repeated crawls of an unchanged site
// produce the same corpus. Individual page failures are logged and
// skipped; only an unusable start URL fails the crawl.
func (c *Crawler) Crawl(ctx context.Context) ([]corpus.Document, error) {
	col := colly.NewCollector(
		colly.AllowedDomains(c.cfg.AllowedDomains...),
		colly.MaxDepth(c.cfg.MaxDepth),
		colly.UserAgent(c.cfg.UserAgent),
		colly.Async(true),
	)
	col.IgnoreRobotsTxt = !c.cfg.ObeyRobots
	if err := col.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Delay:       c.cfg.Delay,
		Parallelism: c.cfg.Parallelism,
	}); err != nil {
		return nil, fmt.Errorf("crawler limits: %w", err)
	}

	var (
		mu    sync.Mutex
		docs  []corpus.Document
		pages int
	)

	col.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil {
			r.Abort()
			return
		}
		if c.cfg.MaxPages > 0 {
			mu.Lock()
			stop := pages >= c.cfg.MaxPages
			if !stop {
				pages++
			}
			mu.Unlock()
			if stop {
				r.Abort()
			}
		}
	})

	col.OnHTML(c.cfg.LinkSelector, func(e *colly.HTMLElement) {
		_ = e.Request.Visit(e.Attr("href"))
	})

	col.OnHTML("html", func(e *colly.HTMLElement) {
		// Work on a copy: the links worth following usually live in the
		// same navigation chrome the text extraction removes.
		page := e.DOM.Clone()
		page.Find(junkSelector).Remove()

		title := strings.TrimSpace(page.Find("title").First().Text())
		text := pageText(page.Find("body"))
		if text == "" {
			c.logger.Warn("Skipping page without readable text", "url", e.Request.URL.String())
			return
		}

		mu.Lock()
		docs = append(docs, corpus.Document{
			SourceURL: e.Request.URL.String(),
			Title:     title,
			Text:      text,
		})
		mu.Unlock()
	})

	col.OnError(func(r *colly.Response, err error) {
		c.logger.Warn("Page fetch failed", "url", r.Request.URL.String(), "error", err)
	})

	if err := col.Visit(c.cfg.StartURL); err != nil {
		return nil, fmt.Errorf("visit %s: %w", c.cfg.StartURL, err)
	}
	col.Wait()

	sort.Slice(docs, func(i, j int) bool { return docs[i].SourceURL < docs[j].SourceURL })
	c.logger.Info("Crawl complete", "start", c.cfg.StartURL, "documents", len(docs))
	return docs, ctx.Err()
}

// pageText collects the text nodes under the selection, one line per
// node, blanks dropped.
func pageText(sel *goquery.Selection) string {
	var lines []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				lines = append(lines, t)
			}
			return
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	for _, n := range sel.Nodes {
		walk(n)
	}
	return strings.Join(lines, "\n")
}

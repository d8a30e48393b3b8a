// Package crawler discovers article URLs for a source by walking its listing pages.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"meridian/pkg/feed"
	"meridian/pkg/logger"
	"meridian/pkg/metrics"
	"meridian/pkg/sitemap"
	"meridian/pkg/sources"
	"meridian/pkg/urlhash"
)

// ErrNotCrawlable is returned for sources the crawler cannot walk.
var ErrNotCrawlable = errors.New("source is not crawlable")

const defaultMaxDepth = 5

// Fetcher downloads a page and reports the URL it ended up at.
type Fetcher interface {
	FetchHTML(ctx context.Context, url string) (body string, finalURL string, err error)
}

// Config tunes a Crawler. A zero MaxDepth means 5; a zero Delay disables the politeness wait.
type Config struct {
	MaxDepth int
	// Delay is observed before every page fetch except the first of a crawl.
	Delay time.Duration
	// Filters run before the source's URL pattern.
	Filters []LinkFilter
}

// Crawler walks listing pages breadth-first from a source's start URLs.
type Crawler struct {
	fetcher  Fetcher
	sitemaps *sitemap.Parser
	feeds    *feed.Reader
	cfg      Config
	log      logger.Logger
	metrics  *metrics.Metrics

	// sleep is swapped in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a crawler.
func New(fetcher Fetcher, cfg Config, log logger.Logger, m *metrics.Metrics) *Crawler {
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = defaultMaxDepth
	}
	if cfg.Delay < 0 {
		cfg.Delay = 0
	}
	if cfg.Filters == nil {
		cfg.Filters = []LinkFilter{NewRootFilter()}
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Crawler{
		fetcher:  fetcher,
		sitemaps: sitemap.NewParser(fetcher, log),
		feeds:    feed.NewReader(fetcher),
		cfg:      cfg,
		log:      log,
		metrics:  m,
		sleep:    sleepCtx,
	}
}

// frontierEntry is one page waiting to be visited.
type frontierEntry struct {
	url   string
	depth int
}

// crawlState is owned by a single Discover call.
type crawlState struct {
	visited    map[string]struct{}
	seen       map[string]struct{}
	discovered []string
	fetches    int
}

func newCrawlState() *crawlState {
	return &crawlState{
		visited: make(map[string]struct{}),
		seen:    make(map[string]struct{}),
	}
}

// add records link once per canonical address, keeping first-seen order.
func (s *crawlState) add(link string) {
	key := canonicalKey(link)
	if _, ok := s.seen[key]; ok {
		return
	}
	s.seen[key] = struct{}{}
	s.discovered = append(s.discovered, link)
}

// Discover returns the article URLs reachable from src's start URLs, de-duplicated and in
// discovery order. A failing page ends only its own branch. An error is returned for sources
// that cannot be crawled, or with the partial result when ctx is done.
func (c *Crawler) Discover(ctx context.Context, src sources.Source) ([]string, error) {
	if !src.IsStatic() {
		return nil, fmt.Errorf("%w: %s uses fetch strategy %q", ErrNotCrawlable, src.ID, src.FetchStrategy)
	}
	if len(src.Discovery.StartURLs) == 0 {
		return nil, fmt.Errorf("%w: %s has no start urls", ErrNotCrawlable, src.ID)
	}

	log := c.log.With(logger.String("source", src.ID))
	filters := append(append([]LinkFilter{}, c.cfg.Filters...), NewPatternFilter(src.Discovery.URLPattern))
	state := newCrawlState()

	var err error
	switch src.Discovery.Type {
	case sources.DiscoverySitemap:
		err = c.discoverSitemaps(ctx, src, filters, state, log)
	case sources.DiscoveryRSS:
		err = c.discoverFeeds(ctx, src, filters, state, log)
	default:
		err = c.crawlPages(ctx, src, filters, state, log)
	}

	log.Info("Discovery finished",
		logger.Int("pages", state.fetches),
		logger.Int("discovered", len(state.discovered)))
	return state.discovered, err
}

func (c *Crawler) crawlPages(ctx context.Context, src sources.Source, filters []LinkFilter, state *crawlState, log logger.Logger) error {
	frontier := make([]frontierEntry, 0, len(src.Discovery.StartURLs))
	for _, start := range src.Discovery.StartURLs {
		frontier = append(frontier, frontierEntry{url: start, depth: 0})
	}

	for len(frontier) > 0 {
		entry := frontier[0]
		frontier = frontier[1:]

		if entry.depth >= c.cfg.MaxDepth {
			continue
		}
		key := canonicalKey(entry.url)
		if _, ok := state.visited[key]; ok {
			continue
		}
		state.visited[key] = struct{}{}

		if err := c.politeWait(ctx, state); err != nil {
			return err
		}

		doc, pageURL, err := c.fetchPage(ctx, entry.url)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.metrics.PageFetched(src.ID, "error")
			log.Warn("Failed to fetch listing page",
				logger.String("url", entry.url),
				logger.Int("depth", entry.depth),
				logger.Error(err))
			continue
		}
		c.metrics.PageFetched(src.ID, "ok")

		base := baseURL(doc, pageURL)
		for _, link := range extractLinks(doc, base) {
			keep, err := keepAll(ctx, filters, link)
			if err != nil {
				log.Debug("Link filter failed", logger.String("url", link), logger.Error(err))
				continue
			}
			if keep {
				state.add(link)
			}
		}

		if src.Pagination.Follows() {
			all := src.Pagination.Type == sources.PaginationNumberedList
			for _, next := range paginationLinks(doc, base, src.Pagination.Selector, all) {
				frontier = append(frontier, frontierEntry{url: next, depth: entry.depth + 1})
			}
		}
	}
	return nil
}

func (c *Crawler) discoverSitemaps(ctx context.Context, src sources.Source, filters []LinkFilter, state *crawlState, log logger.Logger) error {
	for _, start := range src.Discovery.StartURLs {
		if err := c.politeWait(ctx, state); err != nil {
			return err
		}
		entries, err := c.sitemaps.Parse(ctx, start)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.metrics.PageFetched(src.ID, "error")
			log.Warn("Failed to read sitemap", logger.String("url", start), logger.Error(err))
			continue
		}
		c.metrics.PageFetched(src.ID, "ok")
		for _, e := range entries {
			c.keep(ctx, filters, state, e.Location, log)
		}
	}
	return nil
}

func (c *Crawler) discoverFeeds(ctx context.Context, src sources.Source, filters []LinkFilter, state *crawlState, log logger.Logger) error {
	for _, start := range src.Discovery.StartURLs {
		if err := c.politeWait(ctx, state); err != nil {
			return err
		}
		items, err := c.feeds.Read(ctx, start)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.metrics.PageFetched(src.ID, "error")
			log.Warn("Failed to read feed", logger.String("url", start), logger.Error(err))
			continue
		}
		c.metrics.PageFetched(src.ID, "ok")
		for _, it := range items {
			c.keep(ctx, filters, state, it.Link, log)
		}
	}
	return nil
}

func (c *Crawler) keep(ctx context.Context, filters []LinkFilter, state *crawlState, link string, log logger.Logger) {
	keep, err := keepAll(ctx, filters, link)
	if err != nil {
		log.Debug("Link filter failed", logger.String("url", link), logger.Error(err))
		return
	}
	if keep {
		state.add(link)
	}
}

// politeWait sleeps the configured delay before every fetch but the first.
func (c *Crawler) politeWait(ctx context.Context, state *crawlState) error {
	state.fetches++
	if state.fetches == 1 || c.cfg.Delay == 0 {
		return ctx.Err()
	}
	return c.sleep(ctx, c.cfg.Delay)
}

func (c *Crawler) fetchPage(ctx context.Context, pageURL string) (*goquery.Document, *url.URL, error) {
	body, finalURL, err := c.fetcher.FetchHTML(ctx, pageURL)
	if err != nil {
		return nil, nil, err
	}
	final, err := url.Parse(finalURL)
	if err != nil || !final.IsAbs() {
		if final, err = url.Parse(pageURL); err != nil {
			return nil, nil, fmt.Errorf("parse page url: %w", err)
		}
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	return doc, final, nil
}

// canonicalKey identifies a URL for visited/seen bookkeeping.
func canonicalKey(raw string) string {
	if c, err := urlhash.Canonicalize(raw); err == nil {
		return c
	}
	return raw
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Package sitemap reads sitemap and sitemap-index documents, including Google News sitemaps.
package sitemap

import (
	"context"
	"encoding/xml"
	"fmt"
	"strings"

	"meridian/pkg/logger"
)

// maxIndexDepth bounds how deep nested sitemap indexes are followed.
const maxIndexDepth = 2

// Entry is one <url> of a sitemap.
type Entry struct {
	Location string
	LastMod  string
	// Title and PublicationDate come from the news: extension when present.
	Title           string
	PublicationDate string
}

type urlSet struct {
	XMLName xml.Name   `xml:"urlset"`
	URLs    []urlEntry `xml:"url"`
}

type urlEntry struct {
	Location string     `xml:"loc"`
	LastMod  string     `xml:"lastmod"`
	News     *newsEntry `xml:"news"`
}

type newsEntry struct {
	Title           string `xml:"title"`
	PublicationDate string `xml:"publication_date"`
}

type sitemapIndex struct {
	XMLName  xml.Name     `xml:"sitemapindex"`
	Sitemaps []sitemapRef `xml:"sitemap"`
}

type sitemapRef struct {
	Location string `xml:"loc"`
}

// Fetcher downloads a document body.
type Fetcher interface {
	FetchHTML(ctx context.Context, url string) (body string, finalURL string, err error)
}

// Parser handles sitemap parsing operations
type Parser struct {
	fetcher Fetcher
	log     logger.Logger
}

// NewParser creates a parser that downloads documents through fetcher.
func NewParser(fetcher Fetcher, log logger.Logger) *Parser {
	if log == nil {
		log = logger.NewNop()
	}
	return &Parser{fetcher: fetcher, log: log}
}

// Parse fetches sitemapURL and returns its entries. Sitemap indexes are expanded; a child
// sitemap that fails is logged and skipped.
func (p *Parser) Parse(ctx context.Context, sitemapURL string) ([]Entry, error) {
	return p.parse(ctx, sitemapURL, 0)
}

func (p *Parser) parse(ctx context.Context, sitemapURL string, depth int) ([]Entry, error) {
	body, _, err := p.fetcher.FetchHTML(ctx, sitemapURL)
	if err != nil {
		return nil, fmt.Errorf("fetch sitemap: %w", err)
	}

	if !isIndex(body) {
		return ParseSitemap(body)
	}

	children, err := ParseIndex(body)
	if err != nil {
		return nil, err
	}
	if depth >= maxIndexDepth {
		return nil, fmt.Errorf("sitemap index %s nested deeper than %d", sitemapURL, maxIndexDepth)
	}

	var all []Entry
	for _, child := range children {
		if err := ctx.Err(); err != nil {
			return all, err
		}
		entries, err := p.parse(ctx, child, depth+1)
		if err != nil {
			p.log.Warn("Skipping child sitemap", logger.String("url", child), logger.Error(err))
			continue
		}
		all = append(all, entries...)
	}
	return all, nil
}

func isIndex(body string) bool {
	head := body
	if len(head) > 1024 {
		head = head[:1024]
	}
	return strings.Contains(head, "<sitemapindex")
}

// ParseSitemap decodes a <urlset> document.
func ParseSitemap(body string) ([]Entry, error) {
	var set urlSet
	if err := xml.NewDecoder(strings.NewReader(body)).Decode(&set); err != nil {
		return nil, fmt.Errorf("decode sitemap: %w", err)
	}

	entries := make([]Entry, 0, len(set.URLs))
	for _, u := range set.URLs {
		loc := strings.TrimSpace(u.Location)
		if loc == "" {
			continue
		}
		entry := Entry{Location: loc, LastMod: strings.TrimSpace(u.LastMod)}
		if u.News != nil {
			entry.Title = strings.TrimSpace(u.News.Title)
			entry.PublicationDate = strings.TrimSpace(u.News.PublicationDate)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// ParseIndex decodes a <sitemapindex> document into child sitemap URLs.
func ParseIndex(body string) ([]string, error) {
	var index sitemapIndex
	if err := xml.NewDecoder(strings.NewReader(body)).Decode(&index); err != nil {
		return nil, fmt.Errorf("decode sitemap index: %w", err)
	}

	urls := make([]string, 0, len(index.Sitemaps))
	for _, ref := range index.Sitemaps {
		if loc := strings.TrimSpace(ref.Location); loc != "" {
			urls = append(urls, loc)
		}
	}
	return urls, nil
}

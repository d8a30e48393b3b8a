// Package feed discovers article links from RSS and Atom feeds.
package feed

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
)

// Item is one feed entry with a link.
type Item struct {
	Link        string
	Title       string
	PublishedAt *time.Time
}

// Fetcher downloads a document body.
type Fetcher interface {
	FetchHTML(ctx context.Context, url string) (body string, finalURL string, err error)
}

// Reader handles RSS/Atom feed parsing operations
type Reader struct {
	fetcher Fetcher
	parser  *gofeed.Parser
}

// NewReader creates a feed reader that downloads through fetcher.
func NewReader(fetcher Fetcher) *Reader {
	return &Reader{
		fetcher: fetcher,
		parser:  gofeed.NewParser(),
	}
}

// Read fetches and parses the feed at feedURL. Items without a link are dropped.
func (r *Reader) Read(ctx context.Context, feedURL string) ([]Item, error) {
	body, _, err := r.fetcher.FetchHTML(ctx, feedURL)
	if err != nil {
		return nil, fmt.Errorf("fetch feed: %w", err)
	}
	return r.Parse(body)
}

// Parse decodes a feed document.
func (r *Reader) Parse(body string) ([]Item, error) {
	parsed, err := r.parser.ParseString(body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	items := make([]Item, 0, len(parsed.Items))
	for _, it := range parsed.Items {
		link := strings.TrimSpace(it.Link)
		if link == "" {
			continue
		}
		items = append(items, Item{
			Link:        link,
			Title:       strings.TrimSpace(it.Title),
			PublishedAt: it.PublishedParsed,
		})
	}
	return items, nil
}

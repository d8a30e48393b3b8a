// Package sources holds the static per-site crawl and extraction configuration.
package sources

import "regexp"

// FetchStrategy tells whether a site can be fetched with plain HTTP.
type FetchStrategy string

const (
	FetchStatic FetchStrategy = "static"
	// FetchDynamic sites need a headless browser and are skipped by ingestion.
	FetchDynamic FetchStrategy = "dynamic"
)

// DiscoveryType selects how article URLs are found from the start URLs.
type DiscoveryType string

const (
	DiscoveryLinks   DiscoveryType = "links"
	DiscoverySitemap DiscoveryType = "sitemap"
	DiscoveryRSS     DiscoveryType = "rss"
)

// PaginationType selects how the crawler moves between listing pages.
type PaginationType string

const (
	PaginationNextButton     PaginationType = "next_button"
	PaginationNumberedList   PaginationType = "numbered_list"
	PaginationInfiniteScroll PaginationType = "infinite_scroll"
	PaginationNone           PaginationType = "none"
)

// Source is one configured news site. Values are shared read-only after the registry loads.
type Source struct {
	ID            string
	Name          string
	BaseURL       string
	FetchStrategy FetchStrategy
	Discovery     Discovery
	Pagination    Pagination
	Extraction    Extraction
}

// Discovery lists the entry points and the article URL filter.
type Discovery struct {
	Type       DiscoveryType
	StartURLs  []string
	URLPattern *regexp.Regexp
}

// Pagination describes the "next page" link, if any.
type Pagination struct {
	Type     PaginationType
	Selector string
}

// Follows reports whether the crawler should follow a next-page link for this source.
func (p Pagination) Follows() bool {
	if p.Selector == "" {
		return false
	}
	return p.Type == PaginationNextButton || p.Type == PaginationNumberedList
}

// Extraction holds the CSS selectors for article pages.
type Extraction struct {
	TitleSelector    string
	ContentSelector  string
	DateSelector     string
	ElementsToRemove []string
	// Readability enables a readability-based body fallback when ContentSelector matches nothing.
	Readability bool
}

// IsStatic reports whether the source can be ingested without a browser.
func (s Source) IsStatic() bool {
	return s.FetchStrategy == FetchStatic
}

// Accepts reports whether rawURL matches the source's article URL pattern.
func (s Source) Accepts(rawURL string) bool {
	return s.Discovery.URLPattern != nil && s.Discovery.URLPattern.MatchString(rawURL)
}

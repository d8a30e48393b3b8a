package crawler

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meridian/pkg/httpclient"
	"meridian/pkg/sources"
)

type fakeFetcher struct {
	pages   map[string]string
	fetched []string
}

func (f *fakeFetcher) FetchHTML(ctx context.Context, url string) (string, string, error) {
	f.fetched = append(f.fetched, url)
	body, ok := f.pages[url]
	if !ok {
		return "", "", &httpclient.StatusError{URL: url, StatusCode: 404}
	}
	return body, url, nil
}

func listingPage(next string, articleIDs ...int) string {
	var b strings.Builder
	b.WriteString("<html><body><nav><a href=\"/\">Home</a><a href=\"/about\">About</a></nav><ul>")
	for _, id := range articleIDs {
		fmt.Fprintf(&b, "<li><a href=\"/news/%d#comments\">Story %d</a></li>", id, id)
	}
	b.WriteString("</ul>")
	if next != "" {
		fmt.Fprintf(&b, "<a class=\"next\" href=\"%s\">Next</a>", next)
	}
	b.WriteString("</body></html>")
	return b.String()
}

func testSource(start ...string) sources.Source {
	return sources.Source{
		ID:            "test",
		BaseURL:       "https://news.test",
		FetchStrategy: sources.FetchStatic,
		Discovery: sources.Discovery{
			Type:       sources.DiscoveryLinks,
			StartURLs:  start,
			URLPattern: regexp.MustCompile(`/news/\d+$`),
		},
		Pagination: sources.Pagination{Type: sources.PaginationNextButton, Selector: "a.next"},
	}
}

func newTestCrawler(f Fetcher, cfg Config) (*Crawler, *[]time.Duration) {
	c := New(f, cfg, nil, nil)
	var sleeps []time.Duration
	c.sleep = func(ctx context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return nil
	}
	return c, &sleeps
}

func TestDiscover_FollowsPaginationAcrossPages(t *testing.T) {
	f := &fakeFetcher{pages: map[string]string{
		"https://news.test/latest":        listingPage("/latest?page=2", 1, 2, 3, 4, 5),
		"https://news.test/latest?page=2": listingPage("/latest?page=3", 6, 7, 8, 9, 10),
		// page 3 links back to page 1 and repeats an article
		"https://news.test/latest?page=3": listingPage("/latest", 11, 12, 13, 1),
	}}
	c, sleeps := newTestCrawler(f, Config{Delay: time.Second})

	urls, err := c.Discover(context.Background(), testSource("https://news.test/latest"))
	require.NoError(t, err)

	assert.Len(t, urls, 13)
	assert.Equal(t, "https://news.test/news/1", urls[0])
	assert.Equal(t, "https://news.test/news/13", urls[12])
	assert.Len(t, f.fetched, 3)
	assert.Equal(t, []time.Duration{time.Second, time.Second}, *sleeps)
}

func TestDiscover_DepthBound(t *testing.T) {
	pages := make(map[string]string)
	for i := 0; i < 10; i++ {
		pages[fmt.Sprintf("https://news.test/p/%d", i)] = listingPage(fmt.Sprintf("/p/%d", i+1), 100+i)
	}
	f := &fakeFetcher{pages: pages}
	c, _ := newTestCrawler(f, Config{MaxDepth: 5})

	urls, err := c.Discover(context.Background(), testSource("https://news.test/p/0"))
	require.NoError(t, err)

	assert.Len(t, f.fetched, 5)
	assert.Len(t, urls, 5)
}

func TestDiscover_FailedBranchDoesNotStopOthers(t *testing.T) {
	f := &fakeFetcher{pages: map[string]string{
		"https://news.test/world": listingPage("", 7, 8),
	}}
	c, _ := newTestCrawler(f, Config{})

	urls, err := c.Discover(context.Background(), testSource("https://news.test/broken", "https://news.test/world"))
	require.NoError(t, err)
	assert.Equal(t, []string{"https://news.test/news/7", "https://news.test/news/8"}, urls)
}

func TestDiscover_HonoursBaseHref(t *testing.T) {
	f := &fakeFetcher{pages: map[string]string{
		"https://news.test/section/latest": `<html><head><base href="https://news.test/"></head>
<body><a href="news/42">A</a><a href="javascript:void(0)">B</a><a href="mailto:x@news.test">C</a></body></html>`,
	}}
	c, _ := newTestCrawler(f, Config{})

	urls, err := c.Discover(context.Background(), testSource("https://news.test/section/latest"))
	require.NoError(t, err)
	assert.Equal(t, []string{"https://news.test/news/42"}, urls)
}

func TestDiscover_NumberedListFollowsEveryPage(t *testing.T) {
	nav := `<div class="pages"><a class="page" href="/l/1">1</a><a class="page" href="/l/2">2</a><a class="page" href="/l/3">3</a></div>`
	f := &fakeFetcher{pages: map[string]string{
		"https://news.test/l/1": "<html><body><a href=\"/news/1\">x</a>" + nav + "</body></html>",
		"https://news.test/l/2": "<html><body><a href=\"/news/2\">x</a>" + nav + "</body></html>",
		"https://news.test/l/3": "<html><body><a href=\"/news/3\">x</a>" + nav + "</body></html>",
	}}
	src := testSource("https://news.test/l/1")
	src.Pagination = sources.Pagination{Type: sources.PaginationNumberedList, Selector: "a.page"}
	c, _ := newTestCrawler(f, Config{})

	urls, err := c.Discover(context.Background(), src)
	require.NoError(t, err)
	assert.Len(t, urls, 3)
	assert.Len(t, f.fetched, 3)
}

func TestDiscover_NoPaginationWithoutSelector(t *testing.T) {
	f := &fakeFetcher{pages: map[string]string{
		"https://news.test/latest": listingPage("/latest?page=2", 1),
	}}
	src := testSource("https://news.test/latest")
	src.Pagination = sources.Pagination{Type: sources.PaginationNone}
	c, _ := newTestCrawler(f, Config{})

	_, err := c.Discover(context.Background(), src)
	require.NoError(t, err)
	assert.Len(t, f.fetched, 1)
}

func TestDiscover_RejectsDynamicSource(t *testing.T) {
	src := testSource("https://news.test/latest")
	src.FetchStrategy = sources.FetchDynamic
	c, _ := newTestCrawler(&fakeFetcher{}, Config{})

	_, err := c.Discover(context.Background(), src)
	assert.True(t, errors.Is(err, ErrNotCrawlable))
}

func TestDiscover_EmptyResultIsNotAnError(t *testing.T) {
	f := &fakeFetcher{pages: map[string]string{
		"https://news.test/latest": "<html><body><p>nothing here</p></body></html>",
	}}
	c, _ := newTestCrawler(f, Config{})

	urls, err := c.Discover(context.Background(), testSource("https://news.test/latest"))
	require.NoError(t, err)
	assert.Empty(t, urls)
}

func TestDiscover_Sitemap(t *testing.T) {
	f := &fakeFetcher{pages: map[string]string{
		"https://news.test/sitemap.xml": `<?xml version="1.0"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <url><loc>https://news.test/news/1</loc></url>
  <url><loc>https://news.test/about</loc></url>
  <url><loc>https://news.test/news/2</loc></url>
</urlset>`,
	}}
	src := testSource("https://news.test/sitemap.xml")
	src.Discovery.Type = sources.DiscoverySitemap
	c, _ := newTestCrawler(f, Config{})

	urls, err := c.Discover(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://news.test/news/1", "https://news.test/news/2"}, urls)
}

func TestDiscover_CancelledContext(t *testing.T) {
	f := &fakeFetcher{pages: map[string]string{
		"https://news.test/latest": listingPage("/latest?page=2", 1),
	}}
	c, _ := newTestCrawler(f, Config{Delay: time.Second})
	c.sleep = func(ctx context.Context, d time.Duration) error { return context.Canceled }

	urls, err := c.Discover(context.Background(), testSource("https://news.test/latest"))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"https://news.test/news/1"}, urls)
}

// Package content turns an article page into a domain.Article using the source's selectors.
package content

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/araddon/dateparse"
	"github.com/go-shiori/go-readability"

	"meridian/pkg/domain"
	"meridian/pkg/sources"
	"meridian/pkg/urlhash"
)

// Minimum lengths, in runes, of an acceptable article.
const (
	MinTitleLength   = 5
	MinContentLength = 50
)

// ErrRejected marks pages that are not usable articles.
var ErrRejected = errors.New("article rejected")

// RejectedError explains why a page was rejected. It unwraps to ErrRejected.
type RejectedError struct {
	URL    string
	Reason string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrRejected, e.URL, e.Reason)
}

func (e *RejectedError) Unwrap() error { return ErrRejected }

// Fetcher downloads a page and reports the URL it ended up at.
type Fetcher interface {
	FetchHTML(ctx context.Context, url string) (body string, finalURL string, err error)
}

// Extractor fetches article pages and extracts title, body and publication date.
type Extractor struct {
	fetcher Fetcher
	now     func() time.Time
}

// NewExtractor creates an extractor that downloads through fetcher.
func NewExtractor(fetcher Fetcher) *Extractor {
	return &Extractor{fetcher: fetcher, now: time.Now}
}

// Extract fetches pageURL and builds an unsaved article for src. Fetch failures are returned
// as-is (a non-2xx status is an *httpclient.StatusError); unusable pages return *RejectedError.
func (e *Extractor) Extract(ctx context.Context, pageURL string, src sources.Source) (*domain.Article, error) {
	body, _, err := e.fetcher.FetchHTML(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	return Parse(body, pageURL, src, e.now())
}

// Parse extracts an article from an already downloaded page. now is used when the page carries
// no usable publication date.
func Parse(html, pageURL string, src sources.Source, now time.Time) (*domain.Article, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	ex := src.Extraction
	title := collapseSpace(doc.Find(ex.TitleSelector).First().Text())

	var text string
	body := doc.Find(ex.ContentSelector).First()
	if body.Length() > 0 {
		for _, noise := range ex.ElementsToRemove {
			body.Find(noise).Remove()
		}
		text = collapseSpace(body.Text())
	} else if ex.Readability {
		text = readableText(html, pageURL)
	}

	if n := utf8.RuneCountInString(title); n < MinTitleLength {
		return nil, &RejectedError{URL: pageURL, Reason: fmt.Sprintf("title has %d characters, need %d", n, MinTitleLength)}
	}
	if n := utf8.RuneCountInString(text); n < MinContentLength {
		return nil, &RejectedError{URL: pageURL, Reason: fmt.Sprintf("content has %d characters, need %d", n, MinContentLength)}
	}

	hash, err := urlhash.Hash(pageURL)
	if err != nil {
		return nil, &RejectedError{URL: pageURL, Reason: err.Error()}
	}

	return &domain.Article{
		SourceID:    src.ID,
		URL:         pageURL,
		URLHash:     hash,
		Title:       title,
		Content:     text,
		PublishedAt: publishedAt(doc, ex.DateSelector, now),
	}, nil
}

// publishedAt tries the article:published_time meta tag, then the date element's datetime
// attribute, then its text.
func publishedAt(doc *goquery.Document, dateSelector string, now time.Time) time.Time {
	candidates := make([]string, 0, 3)
	if v, ok := doc.Find(`meta[property="article:published_time"]`).First().Attr("content"); ok {
		candidates = append(candidates, v)
	}
	if dateSelector != "" {
		el := doc.Find(dateSelector).First()
		if v, ok := el.Attr("datetime"); ok {
			candidates = append(candidates, v)
		}
		candidates = append(candidates, el.Text())
	}

	for _, c := range candidates {
		if t, ok := parseDate(c); ok {
			return t
		}
	}
	return now
}

func parseDate(raw string) (time.Time, bool) {
	raw = collapseSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, true
	}
	if t, err := dateparse.ParseIn(raw, time.UTC); err == nil {
		return t, true
	}
	return time.Time{}, false
}

// readableText runs readability over the whole page.
func readableText(html, pageURL string) string {
	u, err := url.Parse(pageURL)
	if err != nil {
		return ""
	}
	article, err := readability.FromReader(strings.NewReader(html), u)
	if err != nil {
		return ""
	}
	return collapseSpace(article.TextContent)
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

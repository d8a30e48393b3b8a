package crawler

import (
	"context"
	"net/url"
	"regexp"
	"strings"
)

// LinkFilter decides whether a discovered link is kept.
type LinkFilter interface {
	ShouldKeep(ctx context.Context, url string) (bool, error)
}

// PatternFilter keeps URLs matching a source's article pattern.
type PatternFilter struct {
	pattern *regexp.Regexp
}

// NewPatternFilter creates a filter for pattern. A nil pattern keeps nothing.
func NewPatternFilter(pattern *regexp.Regexp) *PatternFilter {
	return &PatternFilter{pattern: pattern}
}

// ShouldKeep returns true if the URL matches the pattern
func (f *PatternFilter) ShouldKeep(ctx context.Context, urlStr string) (bool, error) {
	if f.pattern == nil {
		return false, nil
	}
	return f.pattern.MatchString(urlStr), nil
}

// RootFilter filters out site roots, which are never articles.
type RootFilter struct{}

// NewRootFilter creates a new root URL filter
func NewRootFilter() *RootFilter {
	return &RootFilter{}
}

// ShouldKeep returns false if URL is a base/root URL
func (f *RootFilter) ShouldKeep(ctx context.Context, urlStr string) (bool, error) {
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return false, err
	}
	return strings.Trim(parsed.Path, "/") != "", nil
}

// keepAll runs the filters in order and stops at the first rejection.
func keepAll(ctx context.Context, filters []LinkFilter, urlStr string) (bool, error) {
	for _, f := range filters {
		keep, err := f.ShouldKeep(ctx, urlStr)
		if err != nil || !keep {
			return false, err
		}
	}
	return true, nil
}

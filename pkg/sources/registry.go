package sources

import (
	_ "embed"
	"errors"
	"fmt"
	"net/url"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

//go:embed sources.yaml
var defaultRegistry []byte

// ErrUnknownSource is returned by Get for ids not in the registry.
var ErrUnknownSource = errors.New("unknown source")

// Registry is the immutable, ordered set of configured sources.
type Registry struct {
	sources []Source
	byID    map[string]int
}

type fileFormat struct {
	Sources []sourceYAML `yaml:"sources"`
}

type sourceYAML struct {
	ID            string `yaml:"id"`
	Name          string `yaml:"name"`
	BaseURL       string `yaml:"base_url"`
	FetchStrategy string `yaml:"fetch_strategy"`
	Discovery     struct {
		Type       string   `yaml:"type"`
		StartURLs  []string `yaml:"start_urls"`
		URLPattern string   `yaml:"url_pattern"`
	} `yaml:"discovery"`
	Pagination struct {
		Type     string `yaml:"type"`
		Selector string `yaml:"selector"`
	} `yaml:"pagination"`
	Extraction struct {
		TitleSelector    string   `yaml:"title_selector"`
		ContentSelector  string   `yaml:"content_selector"`
		DateSelector     string   `yaml:"date_selector"`
		ElementsToRemove []string `yaml:"elements_to_remove"`
		Readability      bool     `yaml:"readability"`
	} `yaml:"extraction"`
}

// Default returns the registry compiled into the binary.
func Default() (*Registry, error) {
	return Parse(defaultRegistry)
}

// Load reads a registry file, or the embedded default when path is empty.
func Load(path string) (*Registry, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read source registry %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML registry document.
func Parse(data []byte) (*Registry, error) {
	var doc fileFormat
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse source registry: %w", err)
	}

	reg := &Registry{byID: make(map[string]int, len(doc.Sources))}
	for i, raw := range doc.Sources {
		src, err := raw.toSource()
		if err != nil {
			return nil, fmt.Errorf("source #%d (%s): %w", i, raw.ID, err)
		}
		if _, dup := reg.byID[src.ID]; dup {
			return nil, fmt.Errorf("source #%d: duplicate id %q", i, src.ID)
		}
		reg.byID[src.ID] = len(reg.sources)
		reg.sources = append(reg.sources, src)
	}
	return reg, nil
}

// New builds a registry from already-constructed sources. Used by tests and tools.
func New(srcs ...Source) (*Registry, error) {
	reg := &Registry{byID: make(map[string]int, len(srcs))}
	for _, src := range srcs {
		if src.ID == "" {
			return nil, errors.New("source id is required")
		}
		if _, dup := reg.byID[src.ID]; dup {
			return nil, fmt.Errorf("duplicate id %q", src.ID)
		}
		reg.byID[src.ID] = len(reg.sources)
		reg.sources = append(reg.sources, src)
	}
	return reg, nil
}

// All returns the sources in registry order. The returned slice is a copy.
func (r *Registry) All() ([]Source, error) {
	out := make([]Source, len(r.sources))
	copy(out, r.sources)
	return out, nil
}

// Get resolves a source by id.
func (r *Registry) Get(id string) (Source, error) {
	i, ok := r.byID[id]
	if !ok {
		return Source{}, fmt.Errorf("%w: %q", ErrUnknownSource, id)
	}
	return r.sources[i], nil
}

// Len is the number of configured sources.
func (r *Registry) Len() int {
	return len(r.sources)
}

func (raw sourceYAML) toSource() (Source, error) {
	if raw.ID == "" {
		return Source{}, errors.New("id is required")
	}
	if _, err := url.ParseRequestURI(raw.BaseURL); err != nil {
		return Source{}, fmt.Errorf("invalid base_url: %w", err)
	}

	src := Source{
		ID:            raw.ID,
		Name:          raw.Name,
		BaseURL:       raw.BaseURL,
		FetchStrategy: FetchStrategy(raw.FetchStrategy),
		Discovery: Discovery{
			Type:      DiscoveryType(raw.Discovery.Type),
			StartURLs: raw.Discovery.StartURLs,
		},
		Pagination: Pagination{
			Type:     PaginationType(raw.Pagination.Type),
			Selector: raw.Pagination.Selector,
		},
		Extraction: Extraction{
			TitleSelector:    raw.Extraction.TitleSelector,
			ContentSelector:  raw.Extraction.ContentSelector,
			DateSelector:     raw.Extraction.DateSelector,
			ElementsToRemove: raw.Extraction.ElementsToRemove,
			Readability:      raw.Extraction.Readability,
		},
	}
	if src.Name == "" {
		src.Name = src.ID
	}
	if src.Discovery.Type == "" {
		src.Discovery.Type = DiscoveryLinks
	}
	if src.Pagination.Type == "" {
		src.Pagination.Type = PaginationNone
	}

	switch src.FetchStrategy {
	case FetchStatic, FetchDynamic:
	default:
		return Source{}, fmt.Errorf("unknown fetch_strategy %q", raw.FetchStrategy)
	}
	switch src.Discovery.Type {
	case DiscoveryLinks, DiscoverySitemap, DiscoveryRSS:
	default:
		return Source{}, fmt.Errorf("unknown discovery type %q", raw.Discovery.Type)
	}
	switch src.Pagination.Type {
	case PaginationNextButton, PaginationNumberedList, PaginationInfiniteScroll, PaginationNone:
	default:
		return Source{}, fmt.Errorf("unknown pagination type %q", raw.Pagination.Type)
	}

	if len(src.Discovery.StartURLs) == 0 {
		return Source{}, errors.New("at least one start url is required")
	}
	for _, u := range src.Discovery.StartURLs {
		if parsed, err := url.Parse(u); err != nil || !parsed.IsAbs() {
			return Source{}, fmt.Errorf("start url %q must be absolute", u)
		}
	}

	pattern, err := regexp.Compile(raw.Discovery.URLPattern)
	if err != nil {
		return Source{}, fmt.Errorf("compile url_pattern: %w", err)
	}
	if raw.Discovery.URLPattern == "" {
		return Source{}, errors.New("url_pattern is required")
	}
	src.Discovery.URLPattern = pattern

	if src.IsStatic() && (src.Extraction.TitleSelector == "" || src.Extraction.ContentSelector == "") {
		return Source{}, errors.New("static sources need title_selector and content_selector")
	}
	return src, nil
}

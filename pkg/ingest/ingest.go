// Package ingest runs one per-source scrape job: discover article URLs, then extract, enrich,
// cluster and persist each new article.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"meridian/pkg/domain"
	"meridian/pkg/embedding"
	"meridian/pkg/llm"
	"meridian/pkg/logger"
	"meridian/pkg/metrics"
	"meridian/pkg/sources"
)

// ErrDynamicSource is returned for sources that need a headless browser.
var ErrDynamicSource = errors.New("source requires dynamic fetching")

// SourceResolver looks a source up by id.
type SourceResolver interface {
	Get(id string) (sources.Source, error)
}

// Discoverer lists candidate article URLs for a source.
type Discoverer interface {
	Discover(ctx context.Context, src sources.Source) ([]string, error)
}

// ArticleExtractor fetches and parses one article page.
type ArticleExtractor interface {
	Extract(ctx context.Context, url string, src sources.Source) (*domain.Article, error)
}

// Deduplicator gates URLs that were already ingested.
type Deduplicator interface {
	ShouldProcess(ctx context.Context, url string) (bool, error)
	MarkProcessed(ctx context.Context, url string) error
}

// StoryFinder picks an existing story for an embedding, or nil.
type StoryFinder interface {
	FindStoryForEmbedding(ctx context.Context, vec []float32) (*int64, error)
}

// StoryConsolidator creates stories and refreshes them when articles join.
type StoryConsolidator interface {
	CreateStory(ctx context.Context, seedTitle string) (int64, error)
	Attach(ctx context.Context, storyID int64, article *domain.Article) error
}

// ArticleStore persists articles.
type ArticleStore interface {
	InsertArticle(ctx context.Context, a *domain.Article) error
}

// Pacer spaces out article fetches within one job.
type Pacer interface {
	Wait(ctx context.Context) error
}

type noPacer struct{}

func (noPacer) Wait(ctx context.Context) error { return ctx.Err() }

// Deps are the collaborators of a Runner.
type Deps struct {
	Sources   SourceResolver
	Crawler   Discoverer
	Extractor ArticleExtractor
	Dedup     Deduplicator
	Analyzer  llm.Analyzer
	Embedder  embedding.Embedder
	Clusterer StoryFinder
	Stories   StoryConsolidator
	Articles  ArticleStore
}

// Config tunes a Runner.
type Config struct {
	// Workers is the number of articles processed concurrently within one job.
	Workers int
	// Delay is the gap kept before every article fetch of a job, across all workers.
	// Zero disables it.
	Delay time.Duration
}

// Summary counts what one job did. Errors holds one message per failed article.
type Summary struct {
	SourceID   string   `json:"sourceId"`
	Discovered int      `json:"discovered"`
	Processed  int      `json:"processed"`
	Duplicates int      `json:"duplicates"`
	Rejected   int      `json:"rejected"`
	Failed     int      `json:"failed"`
	Errors     []string `json:"errors,omitempty"`
}

// Runner executes scrape jobs.
type Runner struct {
	deps    Deps
	workers int
	log     logger.Logger
	metrics *metrics.Metrics

	// newPacer is swapped in tests.
	newPacer func() Pacer
}

// NewRunner creates a runner.
func NewRunner(deps Deps, cfg Config, log logger.Logger, m *metrics.Metrics) *Runner {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Runner{deps: deps, workers: cfg.Workers, log: log, metrics: m, newPacer: ratePacer(cfg.Delay)}
}

// Run executes the job for sourceID. Unknown ids return sources.ErrUnknownSource and dynamic
// sources return ErrDynamicSource, both before any network access. Per-article failures are
// counted in the summary and never fail the job; a cancelled context does.
func (r *Runner) Run(ctx context.Context, sourceID string) (Summary, error) {
	summary := Summary{SourceID: sourceID}

	src, err := r.deps.Sources.Get(sourceID)
	if err != nil {
		return summary, err
	}
	if src.FetchStrategy == sources.FetchDynamic {
		return summary, fmt.Errorf("%w: %s", ErrDynamicSource, sourceID)
	}

	log := r.log.With(logger.String("source", src.ID), logger.String("job_id", uuid.NewString()))
	start := time.Now()
	defer func() { r.metrics.ObserveJob(src.ID, time.Since(start)) }()

	log.Info("Starting scrape job")
	urls, err := r.deps.Crawler.Discover(ctx, src)
	summary.Discovered = len(urls)
	if err != nil && ctx.Err() == nil {
		return summary, fmt.Errorf("discover %s: %w", src.ID, err)
	}
	log.Info("Discovered article URLs", logger.Int("count", len(urls)))

	r.processURLs(ctx, src, urls, &summary, log)

	log.Info("Scrape job finished",
		logger.Int("discovered", summary.Discovered),
		logger.Int("processed", summary.Processed),
		logger.Int("duplicates", summary.Duplicates),
		logger.Int("rejected", summary.Rejected),
		logger.Int("failed", summary.Failed),
		logger.Duration("elapsed", time.Since(start)))

	if err := ctx.Err(); err != nil {
		return summary, err
	}
	return summary, nil
}

// ratePacer allows one fetch per delay. The initial token is spent so the first article fetch
// also waits after the listing pages.
func ratePacer(delay time.Duration) func() Pacer {
	return func() Pacer {
		if delay <= 0 {
			return noPacer{}
		}
		lim := rate.NewLimiter(rate.Every(delay), 1)
		lim.Allow()
		return lim
	}
}

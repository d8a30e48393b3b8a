package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"meridian/pkg/content"
	"meridian/pkg/logger"
	"meridian/pkg/metrics"
	"meridian/pkg/sources"
	"meridian/pkg/store"
)

type result struct {
	url      string
	outcome  string
	workerID int
	err      error
}

// processURLs distributes urls to the worker pool and folds their results into summary.
func (r *Runner) processURLs(ctx context.Context, src sources.Source, urls []string, summary *Summary, log logger.Logger) {
	if len(urls) == 0 {
		return
	}

	// one pacer per job, shared by all workers
	pacer := r.newPacer()

	jobChan := make(chan string, len(urls))
	for _, u := range urls {
		jobChan <- u
	}
	close(jobChan)

	resultsChan := make(chan result, len(urls))
	var wg sync.WaitGroup
	for i := 0; i < r.workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for u := range jobChan {
				if ctx.Err() != nil {
					return
				}
				outcome, err := r.processURL(ctx, src, u, pacer)
				resultsChan <- result{url: u, outcome: outcome, workerID: workerID, err: err}
			}
		}(i)
	}

	go func() {
		wg.Wait()
		close(resultsChan)
	}()

	// single reader, no locking on summary
	for res := range resultsChan {
		r.metrics.ArticleProcessed(src.ID, res.outcome)
		switch res.outcome {
		case metrics.OutcomeProcessed:
			summary.Processed++
		case metrics.OutcomeDuplicate:
			summary.Duplicates++
		case metrics.OutcomeRejected:
			summary.Rejected++
			log.Debug("Article rejected", logger.String("url", res.url), logger.Error(res.err))
		default:
			summary.Failed++
			summary.Errors = append(summary.Errors, fmt.Sprintf("%s: %v", res.url, res.err))
			log.Warn("Failed to process article",
				logger.Int("worker", res.workerID), logger.String("url", res.url), logger.Error(res.err))
		}
	}
}

// processURL takes one URL through dedup, extraction, enrichment, clustering and persistence.
func (r *Runner) processURL(ctx context.Context, src sources.Source, url string, pacer Pacer) (string, error) {
	d := r.deps

	fresh, err := d.Dedup.ShouldProcess(ctx, url)
	if err != nil {
		return metrics.OutcomeFailed, err
	}
	if !fresh {
		return metrics.OutcomeDuplicate, nil
	}

	if err := pacer.Wait(ctx); err != nil {
		return metrics.OutcomeFailed, fmt.Errorf("wait before fetch: %w", err)
	}
	article, err := d.Extractor.Extract(ctx, url, src)
	if err != nil {
		if errors.Is(err, content.ErrRejected) {
			return metrics.OutcomeRejected, err
		}
		return metrics.OutcomeFailed, fmt.Errorf("extract: %w", err)
	}

	analysis, err := d.Analyzer.Analyze(ctx, article.Title, article.Content)
	if err != nil {
		return metrics.OutcomeFailed, fmt.Errorf("analyze: %w", err)
	}
	article.Analysis = analysis
	article.AnalysisModel = d.Analyzer.AnalysisModel()

	vec, err := d.Embedder.Embed(ctx, article.Text())
	if err != nil {
		return metrics.OutcomeFailed, fmt.Errorf("embed: %w", err)
	}
	article.Embedding = vec

	storyID, err := d.Clusterer.FindStoryForEmbedding(ctx, vec)
	if err != nil {
		return metrics.OutcomeFailed, fmt.Errorf("find story: %w", err)
	}
	// A new story is only created once its first article is stored.
	article.StoryID = storyID

	if err := d.Articles.InsertArticle(ctx, article); err != nil {
		if errors.Is(err, store.ErrDuplicateArticle) {
			// another job stored it first
			if err := d.Dedup.MarkProcessed(ctx, url); err != nil {
				return metrics.OutcomeFailed, err
			}
			return metrics.OutcomeDuplicate, nil
		}
		return metrics.OutcomeFailed, fmt.Errorf("insert article: %w", err)
	}

	if storyID == nil {
		id, err := d.Stories.CreateStory(ctx, article.Title)
		if err != nil {
			return metrics.OutcomeFailed, fmt.Errorf("create story: %w", err)
		}
		storyID = &id
	}

	if err := d.Stories.Attach(ctx, *storyID, article); err != nil {
		return metrics.OutcomeFailed, fmt.Errorf("attach to story %d: %w", *storyID, err)
	}

	if err := d.Dedup.MarkProcessed(ctx, url); err != nil {
		return metrics.OutcomeFailed, err
	}
	return metrics.OutcomeProcessed, nil
}

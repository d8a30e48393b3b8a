// Package cluster finds the existing story an article belongs to by embedding similarity.
package cluster

import (
	"context"
	"fmt"
	"math"

	"meridian/pkg/embedding"
	"meridian/pkg/logger"
	"meridian/pkg/store"
)

const (
	// DefaultThreshold is the minimum cosine similarity for two articles to share a story.
	DefaultThreshold = 0.7
	// DefaultLimit caps the candidates read per lookup.
	DefaultLimit = 5
)

// SimilaritySearcher is the part of the store the clusterer reads.
type SimilaritySearcher interface {
	SimilarArticles(ctx context.Context, embedding []float32, threshold float64, limit int) ([]store.SimilarArticle, error)
}

// Config holds the global similarity tunables.
type Config struct {
	Threshold float64
	Limit     int
}

// Clusterer maps text to an existing story id.
type Clusterer struct {
	embedder embedding.Embedder
	search   SimilaritySearcher
	cfg      Config
	log      logger.Logger
}

// New creates a clusterer. A zero Limit means DefaultLimit; Threshold is used as given.
func New(embedder embedding.Embedder, search SimilaritySearcher, cfg Config, log logger.Logger) *Clusterer {
	if cfg.Limit <= 0 {
		cfg.Limit = DefaultLimit
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Clusterer{embedder: embedder, search: search, cfg: cfg, log: log}
}

// FindStory embeds text and returns the story of the most similar clustered article, or nil when
// no candidate above the threshold belongs to a story.
func (c *Clusterer) FindStory(ctx context.Context, text string) (*int64, error) {
	vec, err := c.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}
	return c.FindStoryForEmbedding(ctx, vec)
}

// FindStoryForEmbedding is FindStory for an already computed vector.
func (c *Clusterer) FindStoryForEmbedding(ctx context.Context, vec []float32) (*int64, error) {
	candidates, err := c.search.SimilarArticles(ctx, vec, c.cfg.Threshold, c.cfg.Limit)
	if err != nil {
		return nil, err
	}

	for _, cand := range candidates {
		if cand.StoryID != nil {
			id := *cand.StoryID
			c.log.Debug("Found existing story",
				logger.Int64("story_id", id),
				logger.Int64("article_id", cand.ArticleID),
				logger.Float64("similarity", cand.Similarity))
			return &id, nil
		}
	}
	c.log.Debug("No existing story among similar articles", logger.Int("candidates", len(candidates)))
	return nil, nil
}

// Cosine returns the cosine similarity of a and b, or 0 when either is a zero vector.
// Vectors of different length are an error.
func Cosine(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("cosine: length mismatch %d != %d", len(a), len(b))
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb)), nil
}

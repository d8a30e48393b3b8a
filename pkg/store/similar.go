package store

import (
	"context"
	"encoding/json"
	"fmt"
)

// SimilarArticle is one row of find_similar_articles.
type SimilarArticle struct {
	ArticleID  int64   `db:"id" json:"id"`
	StoryID    *int64  `db:"story_id" json:"story_id"`
	Similarity float64 `db:"similarity" json:"similarity"`
}

// SimilarArticles returns up to limit stored articles whose cosine similarity to embedding is at
// least threshold, most similar first.
func (s *Store) SimilarArticles(ctx context.Context, embedding []float32, threshold float64, limit int) ([]SimilarArticle, error) {
	if len(embedding) == 0 {
		return nil, fmt.Errorf("similar articles: empty embedding")
	}
	if s.rpc != nil {
		return s.similarViaRPC(ctx, embedding, threshold, limit)
	}

	ctx, cancel := s.ctx(ctx)
	defer cancel()

	var out []SimilarArticle
	err := s.db.SelectContext(ctx, &out,
		`SELECT id, story_id, similarity FROM find_similar_articles($1::vector, $2, $3)`,
		vectorLiteral(embedding), threshold, limit)
	if err != nil {
		return nil, fmt.Errorf("find similar articles: %w", err)
	}
	return out, nil
}

func (s *Store) similarViaRPC(ctx context.Context, embedding []float32, threshold float64, limit int) ([]SimilarArticle, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	body := map[string]any{
		"query_embedding": vectorLiteral(embedding),
		"match_threshold": threshold,
		"result_limit":    limit,
	}

	// The SDK call takes no context; abandon it when ctx ends.
	result := make(chan string, 1)
	go func() { result <- s.rpc.Rpc("find_similar_articles", "", body) }()

	var raw string
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("find_similar_articles rpc: %w", ctx.Err())
	case raw = <-result:
	}

	var out []SimilarArticle
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("find_similar_articles rpc: unexpected response %q: %w", truncate(raw, 200), err)
	}
	return out, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"meridian/pkg/domain"
)

const insertArticleSQL = `
INSERT INTO articles (source_id, url, url_hash, title, full_text_content, published_at,
                      embedding, bias_analysis, llm_analysis_model, story_id)
VALUES ($1, $2, $3, $4, $5, $6, $7::vector, $8::jsonb, $9, $10)
ON CONFLICT (url_hash) DO NOTHING
RETURNING id, created_at`

// InsertArticle stores a new article and sets its ID and CreatedAt. An article whose url_hash is
// already stored is left untouched and ErrDuplicateArticle is returned.
func (s *Store) InsertArticle(ctx context.Context, a *domain.Article) error {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	var analysisModel any
	if a.AnalysisModel != "" {
		analysisModel = a.AnalysisModel
	}

	row := s.db.QueryRowxContext(ctx, insertArticleSQL,
		a.SourceID, a.URL, a.URLHash, a.Title, a.Content, a.PublishedAt,
		vectorLiteral(a.Embedding), a.Analysis, analysisModel, a.StoryID)
	if err := row.Scan(&a.ID, &a.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %s", ErrDuplicateArticle, a.URL)
		}
		return fmt.Errorf("insert article: %w", err)
	}
	return nil
}

// AssignStory sets the story of an article.
func (s *Store) AssignStory(ctx context.Context, articleID, storyID int64) error {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	if _, err := s.db.ExecContext(ctx, `UPDATE articles SET story_id = $1 WHERE id = $2`, storyID, articleID); err != nil {
		return fmt.Errorf("assign story: %w", err)
	}
	return nil
}

// ListStoryArticles returns the members of a story ordered by id. Content and embeddings are
// not loaded.
func (s *Store) ListStoryArticles(ctx context.Context, storyID int64) ([]domain.Article, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	var articles []domain.Article
	err := s.db.SelectContext(ctx, &articles, `
SELECT id, source_id, url, title, published_at, bias_analysis, story_id
FROM articles
WHERE story_id = $1
ORDER BY id`, storyID)
	if err != nil {
		return nil, fmt.Errorf("list story articles: %w", err)
	}
	return articles, nil
}

// StoryEmbedding is a member article's stored vector.
type StoryEmbedding struct {
	ArticleID int64
	Title     string
	Embedding []float32
}

// ListStoryEmbeddings returns the stored vectors of a story's members ordered by article id.
func (s *Store) ListStoryEmbeddings(ctx context.Context, storyID int64) ([]StoryEmbedding, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	var rows []struct {
		ID        int64  `db:"id"`
		Title     string `db:"title"`
		Embedding string `db:"embedding"`
	}
	err := s.db.SelectContext(ctx, &rows, `
SELECT id, title, embedding::text AS embedding
FROM articles
WHERE story_id = $1 AND embedding IS NOT NULL
ORDER BY id`, storyID)
	if err != nil {
		return nil, fmt.Errorf("list story embeddings: %w", err)
	}

	out := make([]StoryEmbedding, 0, len(rows))
	for _, r := range rows {
		vec, err := parseVector(r.Embedding)
		if err != nil {
			return nil, fmt.Errorf("article %d: %w", r.ID, err)
		}
		out = append(out, StoryEmbedding{ArticleID: r.ID, Title: r.Title, Embedding: vec})
	}
	return out, nil
}

package store

import (
	"context"
	"fmt"

	"meridian/pkg/domain"
)

// CreateStory inserts a story and returns its id.
func (s *Store) CreateStory(ctx context.Context, title, summary string) (int64, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	var id int64
	err := s.db.QueryRowxContext(ctx,
		`INSERT INTO stories (representative_title, summary) VALUES ($1, $2) RETURNING id`,
		title, summary).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create story: %w", err)
	}
	return id, nil
}

// TouchStory sets last_article_added_at to now.
func (s *Store) TouchStory(ctx context.Context, storyID int64) error {
	return s.updateStory(ctx, "touch story", `UPDATE stories SET last_article_added_at = now() WHERE id = $1`, storyID)
}

// UpdateStorySummary replaces the story summary.
func (s *Store) UpdateStorySummary(ctx context.Context, storyID int64, summary string) error {
	return s.updateStory(ctx, "update story summary", `UPDATE stories SET summary = $2 WHERE id = $1`, storyID, summary)
}

// UpdateStoryTitle replaces the representative title.
func (s *Store) UpdateStoryTitle(ctx context.Context, storyID int64, title string) error {
	return s.updateStory(ctx, "update story title", `UPDATE stories SET representative_title = $2 WHERE id = $1`, storyID, title)
}

func (s *Store) updateStory(ctx context.Context, op, query string, args ...any) error {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s %v: %w", op, args[0], ErrStoryNotFound)
	}
	return nil
}

// GetStory loads one story.
func (s *Store) GetStory(ctx context.Context, storyID int64) (*domain.Story, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	var st domain.Story
	err := s.db.GetContext(ctx, &st, `
SELECT id, representative_title, summary, created_at, last_article_added_at
FROM stories WHERE id = $1`, storyID)
	if err != nil {
		return nil, fmt.Errorf("get story %d: %w", storyID, err)
	}
	return &st, nil
}

// RecentStories returns the most recently updated stories.
func (s *Store) RecentStories(ctx context.Context, limit int) ([]domain.Story, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	var stories []domain.Story
	err := s.db.SelectContext(ctx, &stories, `
SELECT id, representative_title, summary, created_at, last_article_added_at
FROM stories
WHERE last_article_added_at IS NOT NULL
ORDER BY last_article_added_at DESC
LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent stories: %w", err)
	}
	return stories, nil
}

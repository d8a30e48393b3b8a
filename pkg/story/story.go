// Package story creates stories and keeps their title and summary in step with their members.
package story

import (
	"context"
	"fmt"

	"meridian/pkg/domain"
	"meridian/pkg/llm"
	"meridian/pkg/logger"
	"meridian/pkg/metrics"
)

// Repository is the story persistence the consolidator needs.
type Repository interface {
	CreateStory(ctx context.Context, title, summary string) (int64, error)
	AssignStory(ctx context.Context, articleID, storyID int64) error
	TouchStory(ctx context.Context, storyID int64) error
	ListStoryArticles(ctx context.Context, storyID int64) ([]domain.Article, error)
	UpdateStorySummary(ctx context.Context, storyID int64, summary string) error
	UpdateStoryTitle(ctx context.Context, storyID int64, title string) error
}

// Consolidator owns story creation and regeneration.
type Consolidator struct {
	repo    Repository
	gen     llm.TextGenerator
	log     logger.Logger
	metrics *metrics.Metrics
}

// NewConsolidator creates a consolidator.
func NewConsolidator(repo Repository, gen llm.TextGenerator, log logger.Logger, m *metrics.Metrics) *Consolidator {
	if log == nil {
		log = logger.NewNop()
	}
	return &Consolidator{repo: repo, gen: gen, log: log, metrics: m}
}

// CreateStory starts a story seeded by one article title. The story title is generated from the
// seed and the summary is a placeholder until the first Attach.
func (c *Consolidator) CreateStory(ctx context.Context, seedTitle string) (int64, error) {
	title, err := c.gen.Titleize(ctx, []string{seedTitle})
	if err != nil {
		return 0, fmt.Errorf("create story: %w", err)
	}
	id, err := c.repo.CreateStory(ctx, title, domain.StoryPlaceholderSummary(title))
	if err != nil {
		return 0, err
	}
	c.metrics.StoryCreated()
	c.log.Info("Created story", logger.Int64("story_id", id), logger.String("title", title))
	return id, nil
}

// Attach makes article a member of the story and regenerates the story text from every member:
// the story is touched, then its summary and then its title are rewritten. Each step is a
// separate update and the first failure stops the rest. Running Attach again for the same
// article recomputes the same state.
func (c *Consolidator) Attach(ctx context.Context, storyID int64, article *domain.Article) error {
	if article.StoryID == nil || *article.StoryID != storyID {
		if err := c.repo.AssignStory(ctx, article.ID, storyID); err != nil {
			return err
		}
		id := storyID
		article.StoryID = &id
	}

	if err := c.repo.TouchStory(ctx, storyID); err != nil {
		return err
	}

	members, err := c.repo.ListStoryArticles(ctx, storyID)
	if err != nil {
		return err
	}
	if len(members) == 0 {
		c.log.Warn("Story has no members after attach", logger.Int64("story_id", storyID))
		return nil
	}

	summaries := make([]string, 0, len(members))
	titles := make([]string, 0, len(members))
	for i := range members {
		summaries = append(summaries, members[i].Summary())
		if members[i].Title != "" {
			titles = append(titles, members[i].Title)
		}
	}

	summary, err := c.gen.Summarize(ctx, summaries)
	if err != nil {
		return fmt.Errorf("regenerate story %d summary: %w", storyID, err)
	}
	if err := c.repo.UpdateStorySummary(ctx, storyID, summary); err != nil {
		return err
	}

	title, err := c.gen.Titleize(ctx, titles)
	if err != nil {
		return fmt.Errorf("regenerate story %d title: %w", storyID, err)
	}
	if err := c.repo.UpdateStoryTitle(ctx, storyID, title); err != nil {
		return err
	}

	c.log.Debug("Regenerated story",
		logger.Int64("story_id", storyID),
		logger.Int("members", len(members)),
		logger.String("title", title))
	return nil
}

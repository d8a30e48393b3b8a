package domain

import "time"

// Article is one ingested news article. It is created once per unique URL hash and only its
// StoryID changes afterwards.
type Article struct {
	ID            int64         `db:"id"`
	SourceID      string        `db:"source_id"`
	URL           string        `db:"url"`
	URLHash       string        `db:"url_hash"`
	Title         string        `db:"title"`
	Content       string        `db:"full_text_content"`
	PublishedAt   time.Time     `db:"published_at"`
	Embedding     []float32     `db:"-"`
	Analysis      *BiasAnalysis `db:"bias_analysis"`
	AnalysisModel string        `db:"llm_analysis_model"`
	StoryID       *int64        `db:"story_id"`
	CreatedAt     time.Time     `db:"created_at"`
}

// Summary returns the article's neutral summary, or "Article: <title>" when the analysis has none.
func (a *Article) Summary() string {
	if a.Analysis != nil && a.Analysis.Summary != "" {
		return a.Analysis.Summary
	}
	return "Article: " + a.Title
}

// Text is the input used for embeddings and similarity: title, blank line, body.
func (a *Article) Text() string {
	return a.Title + "\n\n" + a.Content
}

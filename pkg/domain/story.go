package domain

import "time"

// Story groups articles reporting the same event. Title and Summary are always generated from
// the member articles.
type Story struct {
	ID                 int64      `db:"id"`
	Title              string     `db:"representative_title"`
	Summary            string     `db:"summary"`
	CreatedAt          time.Time  `db:"created_at"`
	LastArticleAddedAt *time.Time `db:"last_article_added_at"`
}

// StoryPlaceholderSummary is the summary a story carries until its first attach.
func StoryPlaceholderSummary(title string) string {
	return "This story is about: " + title
}

package llm

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// TextGenerator writes story-level text from member articles.
type TextGenerator interface {
	Summarize(ctx context.Context, summaries []string) (string, error)
	Titleize(ctx context.Context, titles []string) (string, error)
}

const (
	summarySystemPrompt = "You are a neutral news summarizer. Provide only the summary text without any additional formatting or preamble."
	titleSystemPrompt   = "You are a neutral news headline writer. Provide only the headline text without any additional formatting, quotes, or preamble."
)

const summaryPrompt = `You are a neutral news summarizer. Given multiple article summaries about the same story, create a single, comprehensive, and neutral summary that captures the key points across all articles.

Requirements:
- Be objective and neutral in tone
- Combine insights from all provided summaries
- Keep it concise (2-3 sentences maximum)
- Focus on the main story elements and key developments
- Avoid bias or editorial language
- Return only the summary text, no additional formatting or preamble

Article summaries:
`

const titlePrompt = `You are a neutral news headline writer. Given multiple article headlines about the same story, create a single, comprehensive, and neutral headline that captures the main event across all articles.

Requirements:
- Be objective and neutral in tone
- Combine the key elements from all provided headlines
- Keep it concise (maximum 15 words)
- Focus on the main event or development
- Write in clear, professional English
- Avoid bias, sensational language, or editorial commentary
- Return only the headline text, no additional formatting or preamble
- Do not use quotes around the headline

Article headlines:
`

var surroundingQuotes = regexp.MustCompile(`^["']|["']$`)

// Summarize combines article summaries into a 2-3 sentence story summary.
func (c *Client) Summarize(ctx context.Context, summaries []string) (string, error) {
	if len(summaries) == 0 {
		return "", errors.New("summarize: no summaries")
	}
	text, err := c.complete(ctx, completion{
		model:       c.textModel,
		system:      summarySystemPrompt,
		prompt:      summaryPrompt + numbered(summaries),
		maxTokens:   200,
		temperature: 0.3,
	})
	if err != nil {
		return "", fmt.Errorf("summarize: %w", err)
	}
	return text, nil
}

// Titleize writes one neutral headline of at most 15 words for the given titles.
func (c *Client) Titleize(ctx context.Context, titles []string) (string, error) {
	if len(titles) == 0 {
		return "", errors.New("titleize: no titles")
	}
	text, err := c.complete(ctx, completion{
		model:       c.textModel,
		system:      titleSystemPrompt,
		prompt:      titlePrompt + numbered(titles),
		maxTokens:   50,
		temperature: 0.2,
	})
	if err != nil {
		return "", fmt.Errorf("titleize: %w", err)
	}
	title := strings.TrimSpace(surroundingQuotes.ReplaceAllString(text, ""))
	if title == "" {
		return "", fmt.Errorf("titleize: %w", ErrEmptyResponse)
	}
	return title, nil
}

func numbered(items []string) string {
	var b strings.Builder
	for i, item := range items {
		fmt.Fprintf(&b, "%d. %s\n", i+1, item)
	}
	return b.String()
}

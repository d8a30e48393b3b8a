package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"meridian/pkg/domain"
)

// ErrMalformedAnalysis is returned when the analysis reply is not a valid BiasAnalysis.
var ErrMalformedAnalysis = errors.New("malformed analysis response")

// maxAnalysisChars bounds how much article body is sent for analysis.
const maxAnalysisChars = 8000

const analysisSystemPrompt = `You are an expert Malaysian media analyst. Your task is to analyze the provided news article objectively.
Do not include any preambles, apologies, or text outside of the JSON object.
Your response MUST be a single, valid JSON object following this exact schema:

{
  "summary": "A brief, neutral, one-sentence summary of the article's main point. It MUST be in English",
  "sentiment_overall": {
    "score": <float between -1.0 (very negative) and 1.0 (very positive)>,
    "label": "<'Positive' | 'Negative' | 'Neutral'>"
  },
  "sentiment_towards_government": {
    "score": <float between -1.0 and 1.0, where > 0 is favorable to the current government>,
    "explanation": "Briefly explain the reasoning for the score."
  },
  "sentiment_towards_Malay and Bumiputera": {
    "score": <float between -1.0 and 1.0, where > 0 is favorable to the Malay and Bumiputera citizens>,
    "explanation": "Briefly explain the reasoning for the score."
  },
  "sentiment_towards_Islam": {
    "score": <float between -1.0 and 1.0, where > 0 is favorable towards Islamic religion>,
    "explanation": "Briefly explain the reasoning for the score."
  },
  "sentiment_towards_Multicultural": {
    "score": <float between -1.0 and 1.0, where > 0 is favorable to the multicultural citizens of Malaysia>,
    "explanation": "Briefly explain the reasoning for the score."
  },
  "sentiment_towards_Secular_learning": {
    "score": <float between -1.0 and 1.0, where > 0 is favorable to the secular learning methods>,
    "explanation": "Briefly explain the reasoning for the score."
  },
  "topics_detected": ["<list of key topics, e.g., 'Economy', 'Politics', 'Human Rights'>"]
}`

// Analyzer produces a bias analysis for an article.
type Analyzer interface {
	Analyze(ctx context.Context, title, text string) (*domain.BiasAnalysis, error)
	AnalysisModel() string
}

// Analyze asks the analysis model for a BiasAnalysis of the article and validates it.
func (c *Client) Analyze(ctx context.Context, title, text string) (*domain.BiasAnalysis, error) {
	if r := []rune(text); len(r) > maxAnalysisChars {
		text = string(r[:maxAnalysisChars])
	}

	reply, err := c.complete(ctx, completion{
		model:       c.analysisModel,
		system:      analysisSystemPrompt,
		prompt:      fmt.Sprintf("Title: %s\n\n%s", title, text),
		maxTokens:   1024,
		temperature: 0,
	})
	if err != nil {
		return nil, err
	}
	return ParseAnalysis(reply)
}

// ParseAnalysis decodes a model reply into a validated BiasAnalysis. A surrounding markdown code
// fence is tolerated; any other text outside the object is not.
func ParseAnalysis(reply string) (*domain.BiasAnalysis, error) {
	body := stripFence(reply)

	dec := json.NewDecoder(strings.NewReader(body))
	var a domain.BiasAnalysis
	if err := dec.Decode(&a); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedAnalysis, err)
	}
	if dec.More() {
		return nil, fmt.Errorf("%w: trailing data after object", ErrMalformedAnalysis)
	}
	if err := a.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedAnalysis, err)
	}
	return &a, nil
}

func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

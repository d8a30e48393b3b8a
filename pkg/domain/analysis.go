package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
)

// Sentiment labels allowed in SentimentOverall.Label.
const (
	SentimentPositive = "Positive"
	SentimentNegative = "Negative"
	SentimentNeutral  = "Neutral"
)

// ErrInvalidAnalysis is wrapped by every BiasAnalysis validation failure.
var ErrInvalidAnalysis = errors.New("invalid bias analysis")

// SentimentOverall is the article-level sentiment.
type SentimentOverall struct {
	Score float64 `json:"score"`
	Label string  `json:"label"`
}

// SentimentScore is the sentiment towards one dimension with its reasoning.
type SentimentScore struct {
	Score       float64 `json:"score"`
	Explanation string  `json:"explanation"`
}

// BiasAnalysis is the structured analysis produced once per article. The JSON names are the
// storage schema and must not change.
type BiasAnalysis struct {
	Summary          string           `json:"summary"`
	SentimentOverall SentimentOverall `json:"sentiment_overall"`
	Government       SentimentScore   `json:"sentiment_towards_government"`
	MalayBumiputera  SentimentScore   `json:"sentiment_towards_Malay and Bumiputera"`
	Islam            SentimentScore   `json:"sentiment_towards_Islam"`
	Multicultural    SentimentScore   `json:"sentiment_towards_Multicultural"`
	SecularLearning  SentimentScore   `json:"sentiment_towards_Secular_learning"`
	Topics           []string         `json:"topics_detected"`
}

// Dimensions returns the named dimension scores in schema order.
func (b *BiasAnalysis) Dimensions() map[string]SentimentScore {
	return map[string]SentimentScore{
		"sentiment_towards_government":           b.Government,
		"sentiment_towards_Malay and Bumiputera": b.MalayBumiputera,
		"sentiment_towards_Islam":                b.Islam,
		"sentiment_towards_Multicultural":        b.Multicultural,
		"sentiment_towards_Secular_learning":     b.SecularLearning,
	}
}

// Validate checks the schema constraints: a summary, a known label and every score in [-1, 1].
func (b *BiasAnalysis) Validate() error {
	if strings.TrimSpace(b.Summary) == "" {
		return fmt.Errorf("%w: empty summary", ErrInvalidAnalysis)
	}
	switch b.SentimentOverall.Label {
	case SentimentPositive, SentimentNegative, SentimentNeutral:
	default:
		return fmt.Errorf("%w: unknown sentiment label %q", ErrInvalidAnalysis, b.SentimentOverall.Label)
	}
	if err := checkScore("sentiment_overall", b.SentimentOverall.Score); err != nil {
		return err
	}
	for name, s := range b.Dimensions() {
		if err := checkScore(name, s.Score); err != nil {
			return err
		}
	}
	if b.Topics == nil {
		return fmt.Errorf("%w: missing topics_detected", ErrInvalidAnalysis)
	}
	return nil
}

func checkScore(name string, score float64) error {
	if math.IsNaN(score) || score < -1 || score > 1 {
		return fmt.Errorf("%w: %s score %v outside [-1, 1]", ErrInvalidAnalysis, name, score)
	}
	return nil
}

// Value stores the analysis as JSON text.
func (b *BiasAnalysis) Value() (driver.Value, error) {
	if b == nil {
		return nil, nil
	}
	data, err := json.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("marshal bias analysis: %w", err)
	}
	return string(data), nil
}

// Scan reads a JSON/JSONB column.
func (b *BiasAnalysis) Scan(src any) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("scan bias analysis: unsupported type %T", src)
	}
	if err := json.Unmarshal(data, b); err != nil {
		return fmt.Errorf("scan bias analysis: %w", err)
	}
	return nil
}

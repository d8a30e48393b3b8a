// Package llm wraps the Anthropic Messages API for article analysis and story text.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const (
	DefaultModel   = "claude-3-5-haiku-latest"
	defaultTimeout = 60 * time.Second
)

// ErrEmptyResponse is returned when the model answers with no text.
var ErrEmptyResponse = errors.New("llm returned an empty response")

// Config configures the client.
type Config struct {
	APIKey        string
	AnalysisModel string
	TextModel     string
	Timeout       time.Duration
	// BaseURL overrides the API endpoint.
	BaseURL    string
	MaxRetries int
}

// Client implements Analyzer and TextGenerator on one Anthropic client.
type Client struct {
	api           anthropic.Client
	analysisModel string
	textModel     string
	timeout       time.Duration
}

// New creates a client. httpClient may be nil.
func New(cfg Config, httpClient *http.Client) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("anthropic api key is required")
	}
	if cfg.AnalysisModel == "" {
		cfg.AnalysisModel = DefaultModel
	}
	if cfg.TextModel == "" {
		cfg.TextModel = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if httpClient != nil {
		opts = append(opts, option.WithHTTPClient(httpClient))
	}

	return &Client{
		api:           anthropic.NewClient(opts...),
		analysisModel: cfg.AnalysisModel,
		textModel:     cfg.TextModel,
		timeout:       cfg.Timeout,
	}, nil
}

// AnalysisModel is recorded on every analysed article.
func (c *Client) AnalysisModel() string { return c.analysisModel }

type completion struct {
	model       string
	system      string
	prompt      string
	maxTokens   int64
	temperature float64
}

// complete sends one user turn and returns the concatenated text blocks, trimmed.
func (c *Client) complete(ctx context.Context, req completion) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	msg, err := c.api.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(req.model),
		MaxTokens:   req.maxTokens,
		Temperature: anthropic.Float(req.temperature),
		System:      []anthropic.TextBlockParam{{Text: req.system}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic messages: %w", err)
	}

	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	text := strings.TrimSpace(b.String())
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

// Package embedding turns article text into vectors for similarity search.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	cohere "github.com/cohere-ai/cohere-go/v2"
	cohereclient "github.com/cohere-ai/cohere-go/v2/client"
)

// DefaultModel is multilingual so Malay, Chinese and English coverage land in one space.
const DefaultModel = "embed-multilingual-v3.0"

const defaultTimeout = 30 * time.Second

// ErrEmptyEmbedding is returned when the provider answers without a vector.
var ErrEmptyEmbedding = errors.New("embedding provider returned no vector")

// Embedder produces one vector per text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Config configures the Cohere embedder.
type Config struct {
	APIKey  string
	Model   string
	Timeout time.Duration
	// Dims, when set, is the vector length the store expects.
	Dims int
}

// CohereEmbedder implements Embedder with the Cohere v2 Embed API.
type CohereEmbedder struct {
	model   string
	timeout time.Duration
	dims    int

	// embed performs the remote call; replaced in tests.
	embed func(ctx context.Context, req *cohere.V2EmbedRequest) ([][]float64, error)
}

// NewCohere creates an embedder. httpClient may be nil.
func NewCohere(cfg Config, httpClient *http.Client) (*CohereEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("cohere api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	client := cohereclient.NewClient(
		cohereclient.WithToken(cfg.APIKey),
		cohereclient.WithHTTPClient(httpClient),
	)

	e := &CohereEmbedder{model: cfg.Model, timeout: cfg.Timeout, dims: cfg.Dims}
	e.embed = func(ctx context.Context, req *cohere.V2EmbedRequest) ([][]float64, error) {
		resp, err := client.V2.Embed(ctx, req)
		if err != nil {
			return nil, err
		}
		if resp == nil || resp.Embeddings == nil {
			return nil, nil
		}
		return resp.Embeddings.Float, nil
	}
	return e, nil
}

// Model is the embedding model name.
func (e *CohereEmbedder) Model() string { return e.model }

// Embed returns the vector for text. Newlines are replaced by spaces before embedding.
func (e *CohereEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	input := strings.ReplaceAll(text, "\n", " ")
	floats, err := e.embed(ctx, &cohere.V2EmbedRequest{
		Texts:          []string{input},
		Model:          e.model,
		InputType:      cohere.EmbedInputTypeSearchDocument,
		EmbeddingTypes: []cohere.EmbeddingType{cohere.EmbeddingTypeFloat},
	})
	if err != nil {
		return nil, fmt.Errorf("cohere embed error: %w", err)
	}
	if len(floats) == 0 || len(floats[0]) == 0 {
		return nil, ErrEmptyEmbedding
	}

	vec := make([]float32, len(floats[0]))
	for i, v := range floats[0] {
		vec[i] = float32(v)
	}
	if e.dims > 0 && len(vec) != e.dims {
		return nil, fmt.Errorf("embedding has %d dimensions, store expects %d", len(vec), e.dims)
	}
	return vec, nil
}

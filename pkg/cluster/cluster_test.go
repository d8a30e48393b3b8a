package cluster

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meridian/pkg/store"
)

type fakeEmbedder struct {
	vec []float32
	err error
	got string
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.got = text
	return f.vec, f.err
}

type fakeSearch struct {
	rows      []store.SimilarArticle
	err       error
	threshold float64
	limit     int
}

func (f *fakeSearch) SimilarArticles(ctx context.Context, embedding []float32, threshold float64, limit int) ([]store.SimilarArticle, error) {
	f.threshold, f.limit = threshold, limit
	return f.rows, f.err
}

func ptr(v int64) *int64 { return &v }

func TestFindStory_FirstClusteredCandidateWins(t *testing.T) {
	search := &fakeSearch{rows: []store.SimilarArticle{
		{ArticleID: 1, StoryID: nil, Similarity: 0.95},
		{ArticleID: 2, StoryID: ptr(17), Similarity: 0.9},
		{ArticleID: 3, StoryID: ptr(99), Similarity: 0.8},
	}}
	emb := &fakeEmbedder{vec: []float32{1, 0}}
	c := New(emb, search, Config{Threshold: DefaultThreshold, Limit: DefaultLimit}, nil)

	got, err := c.FindStory(context.Background(), "Title\n\nBody")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(17), *got)
	assert.Equal(t, "Title\n\nBody", emb.got)
	assert.Equal(t, 0.7, search.threshold)
	assert.Equal(t, 5, search.limit)
}

func TestFindStory_NoClusteredCandidate(t *testing.T) {
	search := &fakeSearch{rows: []store.SimilarArticle{{ArticleID: 1, Similarity: 0.99}}}
	c := New(&fakeEmbedder{vec: []float32{1}}, search, Config{Threshold: 0.7}, nil)

	got, err := c.FindStory(context.Background(), "text")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestFindStory_NoCandidates(t *testing.T) {
	c := New(&fakeEmbedder{vec: []float32{1}}, &fakeSearch{}, Config{Threshold: 0.7}, nil)

	got, err := c.FindStory(context.Background(), "text")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestFindStory_Errors(t *testing.T) {
	embedErr := errors.New("cohere down")
	c := New(&fakeEmbedder{err: embedErr}, &fakeSearch{}, Config{}, nil)
	_, err := c.FindStory(context.Background(), "text")
	assert.ErrorIs(t, err, embedErr)

	searchErr := errors.New("db down")
	c = New(&fakeEmbedder{vec: []float32{1}}, &fakeSearch{err: searchErr}, Config{}, nil)
	_, err = c.FindStory(context.Background(), "text")
	assert.ErrorIs(t, err, searchErr)
}

func TestCosine(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 1}, []float32{-1, -1}, -1},
		{"zero vector", []float32{0, 0}, []float32{1, 1}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Cosine(tt.a, tt.b)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-6)
		})
	}

	_, err := Cosine([]float32{1}, []float32{1, 2})
	assert.Error(t, err)
}

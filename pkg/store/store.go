// Package store persists articles and stories in Postgres with pgvector.
package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
)

var (
	// ErrDuplicateArticle is returned when an article with the same url_hash already exists.
	ErrDuplicateArticle = errors.New("article already stored")
	// ErrStoryNotFound is returned by story updates that match no row.
	ErrStoryNotFound = errors.New("story not found")
)

const defaultQueryTimeout = 15 * time.Second

// RPCCaller invokes a PostgREST function and returns the raw response body.
// *supabase.Client satisfies it.
type RPCCaller interface {
	Rpc(name, count string, rpcBody interface{}) string
}

// Store is the article and story repository.
type Store struct {
	db      *sqlx.DB
	rpc     RPCCaller
	timeout time.Duration
	dims    int
}

// Option customises a Store.
type Option func(*Store)

// WithRPC routes similarity search through the Supabase REST RPC instead of SQL.
func WithRPC(rpc RPCCaller) Option {
	return func(s *Store) { s.rpc = rpc }
}

// WithQueryTimeout bounds every statement.
func WithQueryTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithEmbeddingDims sets the vector column width used by Migrate.
func WithEmbeddingDims(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.dims = n
		}
	}
}

// New creates a store on db.
func New(db *sqlx.DB, opts ...Option) *Store {
	s := &Store{db: db, timeout: defaultQueryTimeout, dims: 1024}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) ctx(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, s.timeout)
}

// vectorLiteral renders v in pgvector's text form, e.g. [0.1,0.2].
func vectorLiteral(v []float32) any {
	if len(v) == 0 {
		return nil
	}
	var b strings.Builder
	b.Grow(len(v) * 10)
	b.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(f), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}

// parseVector reads pgvector's text form.
func parseVector(s string) ([]float32, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "[") || !strings.HasSuffix(s, "]") {
		return nil, fmt.Errorf("parse vector: unexpected format %q", s)
	}
	body := strings.TrimSpace(s[1 : len(s)-1])
	if body == "" {
		return []float32{}, nil
	}
	parts := strings.Split(body, ",")
	out := make([]float32, len(parts))
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil, fmt.Errorf("parse vector element %d: %w", i, err)
		}
		out[i] = float32(f)
	}
	return out, nil
}

// Package dedup remembers which article URLs have already been ingested.
package dedup

import (
	"context"
	"fmt"
	"time"

	"meridian/pkg/retry"
	"meridian/pkg/urlhash"
)

// DefaultSetKey is the Redis set holding processed URL hashes.
const DefaultSetKey = "meridian:article_url_hashes"

const defaultTimeout = 5 * time.Second

// SetStore is a persistent set of strings.
type SetStore interface {
	Exists(ctx context.Context, member string) (bool, error)
	Add(ctx context.Context, member string) error
}

// Deduplicator answers whether a URL still needs processing. Check and mark are separate calls;
// two workers may both see a URL as new, which the articles table's unique url_hash absorbs.
type Deduplicator struct {
	store   SetStore
	retry   retry.Config
	timeout time.Duration
}

// New creates a deduplicator over store. Each store call is bounded by timeout (5s when zero) and
// retried per rc.
func New(store SetStore, rc retry.Config, timeout time.Duration) *Deduplicator {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Deduplicator{store: store, retry: rc, timeout: timeout}
}

// ShouldProcess reports whether url has not been marked yet.
func (d *Deduplicator) ShouldProcess(ctx context.Context, url string) (bool, error) {
	hash, err := urlhash.Hash(url)
	if err != nil {
		return false, err
	}

	var exists bool
	err = retry.Do(ctx, d.retry, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, d.timeout)
		defer cancel()
		var err error
		exists, err = d.store.Exists(ctx, hash)
		return err
	})
	if err != nil {
		return false, fmt.Errorf("dedup check: %w", err)
	}
	return !exists, nil
}

// MarkProcessed records url. Call it only after the article is persisted.
func (d *Deduplicator) MarkProcessed(ctx context.Context, url string) error {
	hash, err := urlhash.Hash(url)
	if err != nil {
		return err
	}

	err = retry.Do(ctx, d.retry, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, d.timeout)
		defer cancel()
		return d.store.Add(ctx, hash)
	})
	if err != nil {
		return fmt.Errorf("dedup mark: %w", err)
	}
	return nil
}

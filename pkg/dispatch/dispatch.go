// Package dispatch fans the master trigger out to one scrape job per configured source.
package dispatch

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"meridian/pkg/domain"
	"meridian/pkg/logger"
	"meridian/pkg/metrics"
	"meridian/pkg/queue"
	"meridian/pkg/retry"
	"meridian/pkg/sources"
)

// RegistryReader lists the configured sources.
type RegistryReader interface {
	All() ([]sources.Source, error)
}

// RegistryError means the source registry could not be read; nothing was enqueued.
type RegistryError struct {
	Err error
}

func (e *RegistryError) Error() string {
	return fmt.Sprintf("read source registry: %v", e.Err)
}

func (e *RegistryError) Unwrap() error { return e.Err }

// EnqueueError means a job could not be enqueued. Jobs before it in registry order were sent.
type EnqueueError struct {
	Enqueued int
	SourceID string
	Err      error
}

func (e *EnqueueError) Error() string {
	return fmt.Sprintf("enqueue job for %s after %d jobs: %v", e.SourceID, e.Enqueued, e.Err)
}

func (e *EnqueueError) Unwrap() error { return e.Err }

// Dispatcher enqueues per-source jobs.
type Dispatcher struct {
	registry RegistryReader
	queue    queue.Enqueuer
	retry    retry.Config
	log      logger.Logger
	metrics  *metrics.Metrics
}

// New creates a dispatcher. rc bounds retries of each enqueue.
func New(registry RegistryReader, q queue.Enqueuer, rc retry.Config, log logger.Logger, m *metrics.Metrics) *Dispatcher {
	if log == nil {
		log = logger.NewNop()
	}
	return &Dispatcher{registry: registry, queue: q, retry: rc, log: log, metrics: m}
}

// FanOut enqueues one job per source in registry order and returns how many were enqueued.
// It stops at the first job that cannot be enqueued.
func (d *Dispatcher) FanOut(ctx context.Context) (int, error) {
	log := d.log.With(logger.String("run_id", uuid.NewString()))

	srcs, err := d.registry.All()
	if err != nil {
		return 0, &RegistryError{Err: err}
	}
	if len(srcs) == 0 {
		log.Warn("Source registry is empty, nothing to dispatch")
		return 0, nil
	}

	enqueued := 0
	defer func() { d.metrics.JobsEnqueued(enqueued) }()

	for _, src := range srcs {
		job := domain.Job{SourceID: src.ID}
		err := retry.Do(ctx, d.retry, func(ctx context.Context) error {
			return d.queue.Enqueue(ctx, job)
		})
		if err != nil {
			log.Error("Failed to enqueue scrape job",
				logger.String("source", src.ID), logger.Int("enqueued", enqueued), logger.Error(err))
			return enqueued, &EnqueueError{Enqueued: enqueued, SourceID: src.ID, Err: err}
		}
		enqueued++
	}

	log.Info("Dispatched scrape jobs", logger.Int("jobs", enqueued))
	return enqueued, nil
}

// Package metrics holds the Prometheus collectors for ingestion and dispatch.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "meridian"

// Article outcomes recorded by ArticleProcessed.
const (
	OutcomeProcessed = "processed"
	OutcomeDuplicate = "duplicate"
	OutcomeRejected  = "rejected"
	OutcomeFailed    = "failed"
)

// Metrics groups every collector. A nil *Metrics is valid and records nothing.
type Metrics struct {
	articles       *prometheus.CounterVec
	pagesFetched   *prometheus.CounterVec
	jobsEnqueued   prometheus.Counter
	jobDuration    *prometheus.HistogramVec
	storiesCreated prometheus.Counter
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		articles: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "articles_total",
			Help:      "Articles seen by ingestion jobs, by source and outcome.",
		}, []string{"source", "outcome"}),
		pagesFetched: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pages_fetched_total",
			Help:      "Listing pages fetched by the crawler, by source and status.",
		}, []string{"source", "status"}),
		jobsEnqueued: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_enqueued_total",
			Help:      "Per-source scrape jobs enqueued by the dispatcher.",
		}),
		jobDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Wall time of one per-source ingestion job.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		}, []string{"source"}),
		storiesCreated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stories_created_total",
			Help:      "Stories created because no similar story existed.",
		}),
	}
}

// ArticleProcessed counts one article outcome.
func (m *Metrics) ArticleProcessed(source, outcome string) {
	if m == nil {
		return
	}
	m.articles.WithLabelValues(source, outcome).Inc()
}

// PageFetched counts one crawled listing page. status is "ok" or "error".
func (m *Metrics) PageFetched(source, status string) {
	if m == nil {
		return
	}
	m.pagesFetched.WithLabelValues(source, status).Inc()
}

// JobsEnqueued adds n dispatched jobs.
func (m *Metrics) JobsEnqueued(n int) {
	if m == nil {
		return
	}
	m.jobsEnqueued.Add(float64(n))
}

// ObserveJob records the duration of a finished job.
func (m *Metrics) ObserveJob(source string, d time.Duration) {
	if m == nil {
		return
	}
	m.jobDuration.WithLabelValues(source).Observe(d.Seconds())
}

// StoryCreated counts one new story.
func (m *Metrics) StoryCreated() {
	if m == nil {
		return
	}
	m.storiesCreated.Inc()
}

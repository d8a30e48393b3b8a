// Package api exposes the scrape triggers over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"meridian/pkg/ingest"
	"meridian/pkg/logger"
	"meridian/pkg/sources"
)

// FanOuter enqueues one job per source.
type FanOuter interface {
	FanOut(ctx context.Context) (int, error)
}

// JobRunner runs one per-source job inline.
type JobRunner interface {
	Run(ctx context.Context, sourceID string) (ingest.Summary, error)
}

// SourceResolver looks a source up by id.
type SourceResolver interface {
	Get(id string) (sources.Source, error)
}

// Deps are the handlers' collaborators.
type Deps struct {
	Dispatcher FanOuter
	Runner     JobRunner
	Sources    SourceResolver
	Verifier   *Verifier
	Gatherer   prometheus.Gatherer
}

// NewRouter constructs a Gin engine with registered routes.
func NewRouter(deps Deps, log logger.Logger) *gin.Engine {
	if log == nil {
		log = logger.NewNop()
	}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(log))

	r.GET("/healthz", handleHealth)
	if deps.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	h := &scrapeHandlers{deps: deps, log: log}
	triggers := r.Group("/api", deps.Verifier.Middleware())
	triggers.POST("/scrape-all-sources", h.scrapeAllSources)
	triggers.POST("/scrape-site", h.scrapeSite)
	return r
}

func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// requestLogger tags every request with an id and logs its outcome.
func requestLogger(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header("X-Request-ID", requestID)

		c.Next()

		log.Info("HTTP request",
			logger.String("request_id", requestID),
			logger.String("method", c.Request.Method),
			logger.String("path", c.Request.URL.Path),
			logger.Int("status", c.Writer.Status()),
			logger.Duration("elapsed", time.Since(start)))
	}
}

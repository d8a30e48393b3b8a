package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"meridian/pkg/dispatch"
	"meridian/pkg/ingest"
	"meridian/pkg/logger"
	"meridian/pkg/sources"
)

type scrapeHandlers struct {
	deps Deps
	log  logger.Logger
}

// ScrapeSiteRequest is the body of POST /api/scrape-site.
type ScrapeSiteRequest struct {
	SourceID string `json:"sourceId"`
}

// ScrapeSiteResponse reports a finished or skipped job.
type ScrapeSiteResponse struct {
	Message string `json:"message"`
	Skipped bool   `json:"skipped,omitempty"`
	*ingest.Summary
}

func internalError(c *gin.Context, err error, extra gin.H) {
	body := gin.H{"error": "Internal Server Error", "details": err.Error()}
	for k, v := range extra {
		body[k] = v
	}
	c.JSON(http.StatusInternalServerError, body)
}

// summaryFields reports the counts a job reached before it stopped.
func summaryFields(s ingest.Summary) gin.H {
	h := gin.H{
		"sourceId":   s.SourceID,
		"discovered": s.Discovered,
		"processed":  s.Processed,
		"duplicates": s.Duplicates,
		"rejected":   s.Rejected,
		"failed":     s.Failed,
	}
	if len(s.Errors) > 0 {
		h["errors"] = s.Errors
	}
	return h
}

// scrapeAllSources fans out one job per configured source.
func (h *scrapeHandlers) scrapeAllSources(c *gin.Context) {
	jobs, err := h.deps.Dispatcher.FanOut(c.Request.Context())
	if err != nil {
		var regErr *dispatch.RegistryError
		var enqErr *dispatch.EnqueueError
		switch {
		case errors.As(err, &regErr):
			h.log.Error("Could not read source registry", logger.Error(err))
			internalError(c, err, nil)
		case errors.As(err, &enqErr):
			h.log.Error("Fan-out stopped early", logger.Int("jobs", jobs), logger.Error(err))
			internalError(c, err, gin.H{"jobs": jobs})
		default:
			internalError(c, err, gin.H{"jobs": jobs})
		}
		return
	}

	if jobs == 0 {
		c.JSON(http.StatusOK, gin.H{"message": "No sources to scrape.", "jobs": 0})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": fmt.Sprintf("Successfully queued %d jobs.", jobs), "jobs": jobs})
}

// scrapeSite runs the job for one source and waits for it to finish.
func (h *scrapeHandlers) scrapeSite(c *gin.Context) {
	var req ScrapeSiteRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.SourceID) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing sourceId in request body"})
		return
	}

	src, err := h.deps.Sources.Get(req.SourceID)
	if err != nil {
		if errors.Is(err, sources.ErrUnknownSource) {
			c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("Configuration for sourceId '%s' not found.", req.SourceID)})
			return
		}
		internalError(c, err, nil)
		return
	}

	log := h.log.With(logger.String("source", src.ID))
	if src.FetchStrategy == sources.FetchDynamic {
		msg := fmt.Sprintf("Scraping skipped for %s (requires dynamic fetcher).", src.Name)
		log.Warn(msg)
		c.JSON(http.StatusOK, ScrapeSiteResponse{Message: msg, Skipped: true})
		return
	}

	summary, err := h.deps.Runner.Run(c.Request.Context(), src.ID)
	if err != nil {
		log.Error("Critical error in scrape job",
			logger.Int("discovered", summary.Discovered),
			logger.Int("processed", summary.Processed),
			logger.Error(err))
		internalError(c, err, summaryFields(summary))
		return
	}

	msg := fmt.Sprintf("Scraping completed for %s. Processed %d of %d discovered articles.",
		src.Name, summary.Processed, summary.Discovered)
	log.Info(msg)
	c.JSON(http.StatusOK, ScrapeSiteResponse{Message: msg, Summary: &summary})
}

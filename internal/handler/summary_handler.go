package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-risk-api/internal/middleware"
	"github.com/noah-isme/sma-risk-api/internal/service"
	appErrors "github.com/noah-isme/sma-risk-api/pkg/errors"
	"github.com/noah-isme/sma-risk-api/pkg/response"
)

// SummaryHandler exposes the per-school risk summary and system metrics.
type SummaryHandler struct {
	summary *service.SummaryService
}

// NewSummaryHandler constructs the summary handler.
func NewSummaryHandler(summary *service.SummaryService) *SummaryHandler {
	return &SummaryHandler{summary: summary}
}

// School returns the cached aggregation for one school.
func (h *SummaryHandler) School(c *gin.Context) {
	if h.summary == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	start := time.Now()
	summary, cacheHit, err := h.summary.SchoolSummary(c.Request.Context(), c.Query("school_id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cacheHit)
	meta := middleware.ExtractMeta(c)
	if meta == nil {
		meta = make(map[string]interface{})
	}
	meta["processing_time_ms"] = time.Since(start).Milliseconds()
	response.JSON(c, http.StatusOK, summary, nil, meta)
}

// System returns the instrumentation counter snapshot.
func (h *SummaryHandler) System(c *gin.Context) {
	if h.summary == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	response.JSON(c, http.StatusOK, h.summary.SystemStats(), nil, middleware.ExtractMeta(c))
}

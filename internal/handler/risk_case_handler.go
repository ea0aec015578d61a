package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/noah-isme/sma-risk-api/internal/middleware"
	"github.com/noah-isme/sma-risk-api/internal/models"
	"github.com/noah-isme/sma-risk-api/internal/service"
	appErrors "github.com/noah-isme/sma-risk-api/pkg/errors"
	"github.com/noah-isme/sma-risk-api/pkg/jobs"
	"github.com/noah-isme/sma-risk-api/pkg/response"
)

// RiskCaseHandler exposes risk case lifecycle and reconciliation endpoints.
type RiskCaseHandler struct {
	cases *service.RiskCaseService
	queue *jobs.Queue
}

// NewRiskCaseHandler constructs the risk case handler. The queue may be nil
// when asynchronous reconciliation is disabled.
func NewRiskCaseHandler(cases *service.RiskCaseService, queue *jobs.Queue) *RiskCaseHandler {
	return &RiskCaseHandler{cases: cases, queue: queue}
}

type reconcileRequest struct {
	SchoolID string     `json:"school_id" binding:"required"`
	AsOf     *time.Time `json:"as_of,omitempty"`
	Async    bool       `json:"async"`
}

// Reconcile triggers a reconciliation run. Synchronous runs return the full
// result; async runs enqueue the job and return 202 with the job id.
func (h *RiskCaseHandler) Reconcile(c *gin.Context) {
	if h.cases == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	var req reconcileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid reconcile payload"))
		return
	}
	asOf := time.Now().UTC()
	if req.AsOf != nil {
		asOf = req.AsOf.UTC()
	}

	if req.Async {
		if h.queue == nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "asynchronous reconciliation is disabled"))
			return
		}
		job := jobs.ReconcileJob{ID: uuid.NewString(), SchoolID: req.SchoolID, AsOf: asOf}
		if err := h.queue.Enqueue(job); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue reconcile run"))
			return
		}
		middleware.SetMetaValue(c, "job_id", job.ID)
		response.JSON(c, http.StatusAccepted, gin.H{"job_id": job.ID, "school_id": req.SchoolID, "as_of": asOf}, nil, middleware.ExtractMeta(c))
		return
	}

	result, err := h.cases.Reconcile(c.Request.Context(), req.SchoolID, asOf)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil, middleware.ExtractMeta(c))
}

// List returns risk cases filtered by query parameters.
func (h *RiskCaseHandler) List(c *gin.Context) {
	if h.cases == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	filter := models.RiskCaseFilter{
		SchoolID:  c.Query("school_id"),
		StudentID: c.Query("student_id"),
		Type:      models.RiskType(c.Query("risk_type")),
		Status:    models.CaseStatus(c.Query("status")),
		SortBy:    c.DefaultQuery("sort_by", "opened_at"),
		SortOrder: c.DefaultQuery("sort_order", "desc"),
	}
	filter.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	filter.PageSize, _ = strconv.Atoi(c.DefaultQuery("page_size", "20"))

	cases, pagination, err := h.cases.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, cases, pagination, middleware.ExtractMeta(c))
}

// Get returns a single risk case.
func (h *RiskCaseHandler) Get(c *gin.Context) {
	if h.cases == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	riskCase, err := h.cases.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, riskCase, nil, middleware.ExtractMeta(c))
}

// Open creates a risk case manually.
func (h *RiskCaseHandler) Open(c *gin.Context) {
	if h.cases == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	var req service.OpenCaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid open case payload"))
		return
	}
	riskCase, err := h.cases.OpenCase(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, riskCase)
}

// Resolve transitions a case to resolved.
func (h *RiskCaseHandler) Resolve(c *gin.Context) {
	if h.cases == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	var req service.ResolveCaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid resolve payload"))
		return
	}
	riskCase, err := h.cases.ResolveCase(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, riskCase, nil, middleware.ExtractMeta(c))
}

// Preview evaluates one student's metrics and signals without persisting.
func (h *RiskCaseHandler) Preview(c *gin.Context) {
	if h.cases == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	asOf := time.Now().UTC()
	if raw := c.Query("as_of"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "as_of must be formatted YYYY-MM-DD"))
			return
		}
		asOf = parsed
	}
	lookback, _ := strconv.Atoi(c.Query("lookback_days"))

	metrics, signals, err := h.cases.Preview(c.Request.Context(), c.Param("id"), asOf, lookback)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"metrics": metrics, "signals": signals}, nil, middleware.ExtractMeta(c))
}

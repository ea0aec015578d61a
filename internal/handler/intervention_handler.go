package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-risk-api/internal/middleware"
	"github.com/noah-isme/sma-risk-api/internal/models"
	"github.com/noah-isme/sma-risk-api/internal/service"
	appErrors "github.com/noah-isme/sma-risk-api/pkg/errors"
	"github.com/noah-isme/sma-risk-api/pkg/response"
)

// InterventionHandler exposes intervention endpoints nested under risk cases.
type InterventionHandler struct {
	interventions *service.InterventionService
}

// NewInterventionHandler constructs the intervention handler.
func NewInterventionHandler(interventions *service.InterventionService) *InterventionHandler {
	return &InterventionHandler{interventions: interventions}
}

// Add attaches an intervention to the case in the path.
func (h *InterventionHandler) Add(c *gin.Context) {
	if h.interventions == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	var req service.AddInterventionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid intervention payload"))
		return
	}
	req.RiskCaseID = c.Param("id")
	intervention, err := h.interventions.Add(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, intervention)
}

// ListByCase returns all interventions on the case in the path.
func (h *InterventionHandler) ListByCase(c *gin.Context) {
	if h.interventions == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	interventions, err := h.interventions.ListByCase(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, interventions, nil, middleware.ExtractMeta(c))
}

type interventionStatusRequest struct {
	Status models.InterventionStatus `json:"status" binding:"required"`
}

// UpdateStatus transitions the intervention in the path.
func (h *InterventionHandler) UpdateStatus(c *gin.Context) {
	if h.interventions == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	var req interventionStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid status payload"))
		return
	}
	intervention, err := h.interventions.UpdateStatus(c.Request.Context(), c.Param("interventionId"), req.Status)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, intervention, nil, middleware.ExtractMeta(c))
}

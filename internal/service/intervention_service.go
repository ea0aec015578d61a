package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-risk-api/internal/models"
	appErrors "github.com/noah-isme/sma-risk-api/pkg/errors"
)

type interventionRepository interface {
	Create(ctx context.Context, intervention *models.Intervention) error
	FindByID(ctx context.Context, id string) (*models.Intervention, error)
	ListByCase(ctx context.Context, riskCaseID string) ([]models.Intervention, error)
	UpdateStatus(ctx context.Context, id string, status models.InterventionStatus) error
}

type caseStatusStore interface {
	FindByID(ctx context.Context, id string) (*models.RiskCase, error)
	UpdateStatus(ctx context.Context, id string, status models.CaseStatus, closedAt *time.Time, notes *string) error
}

// AddInterventionRequest describes attaching remedial work to a case.
type AddInterventionRequest struct {
	RiskCaseID string    `json:"risk_case_id" validate:"required"`
	Type       string    `json:"type" validate:"required"`
	AssignedTo string    `json:"assigned_to" validate:"required"`
	DueDate    time.Time `json:"due_date" validate:"required"`
	Notes      *string   `json:"notes,omitempty"`
}

// InterventionService manages the intervention lifecycle and keeps the
// parent case's status in step with it.
type InterventionService struct {
	repo      interventionRepository
	cases     caseStatusStore
	validator *validator.Validate
	logger    *zap.Logger
}

// NewInterventionService constructs an InterventionService.
func NewInterventionService(repo interventionRepository, cases caseStatusStore, validate *validator.Validate, logger *zap.Logger) *InterventionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InterventionService{repo: repo, cases: cases, validator: validate, logger: logger}
}

// Add attaches an intervention to an open or in-progress case. Attaching
// the first intervention to an open case moves the case to in_progress.
func (s *InterventionService) Add(ctx context.Context, req AddInterventionRequest) (*models.Intervention, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid intervention payload")
	}

	riskCase, err := s.cases.FindByID(ctx, req.RiskCaseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "risk case not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "failed to load risk case")
	}
	if !riskCase.Status.Active() {
		return nil, appErrors.Clone(appErrors.ErrCaseNotOpen,
			fmt.Sprintf("case %s is %s and cannot receive interventions", riskCase.ID, riskCase.Status))
	}

	intervention := &models.Intervention{
		RiskCaseID: req.RiskCaseID,
		Type:       req.Type,
		AssignedTo: req.AssignedTo,
		DueDate:    req.DueDate,
		Notes:      req.Notes,
		Status:     models.InterventionStatusPending,
	}
	if err := s.repo.Create(ctx, intervention); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create intervention")
	}

	if riskCase.Status == models.CaseStatusOpen {
		if err := s.cases.UpdateStatus(ctx, riskCase.ID, models.CaseStatusInProgress, nil, nil); err != nil {
			// The intervention is committed; only the case status lagged.
			s.logger.Warn("failed to move case to in_progress",
				zap.String("case_id", riskCase.ID), zap.Error(err))
		}
	}
	return intervention, nil
}

// UpdateStatus transitions an intervention along its forward-only chain.
func (s *InterventionService) UpdateStatus(ctx context.Context, id string, next models.InterventionStatus) (*models.Intervention, error) {
	if id == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "intervention_id is required")
	}
	if !next.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown intervention status")
	}

	intervention, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "intervention not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "failed to load intervention")
	}
	if !intervention.Status.CanTransitionTo(next) {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition,
			fmt.Sprintf("intervention cannot move from %s to %s", intervention.Status, next))
	}

	if err := s.repo.UpdateStatus(ctx, id, next); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update intervention")
	}
	intervention.Status = next
	intervention.UpdatedAt = time.Now().UTC()
	return intervention, nil
}

// ListByCase returns all interventions on a case, oldest first.
func (s *InterventionService) ListByCase(ctx context.Context, riskCaseID string) ([]models.Intervention, error) {
	if riskCaseID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "case_id is required")
	}
	if _, err := s.cases.FindByID(ctx, riskCaseID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "risk case not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "failed to load risk case")
	}
	interventions, err := s.repo.ListByCase(ctx, riskCaseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list interventions")
	}
	return interventions, nil
}

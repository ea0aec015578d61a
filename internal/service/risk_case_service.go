package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-risk-api/internal/models"
	appErrors "github.com/noah-isme/sma-risk-api/pkg/errors"
)

type riskCaseRepository interface {
	Create(ctx context.Context, riskCase *models.RiskCase) error
	FindByID(ctx context.Context, id string) (*models.RiskCase, error)
	FindActiveByKey(ctx context.Context, studentID string, riskType models.RiskType) (*models.RiskCase, error)
	ListActiveBySchool(ctx context.Context, schoolID string) ([]models.RiskCase, error)
	List(ctx context.Context, filter models.RiskCaseFilter) ([]models.RiskCase, int, error)
	UpdateStatus(ctx context.Context, id string, status models.CaseStatus, closedAt *time.Time, notes *string) error
}

type activeStudentLister interface {
	ListActive(ctx context.Context, schoolID string) ([]models.Student, error)
	FindByID(ctx context.Context, id string) (*models.Student, error)
}

type metricEvaluator interface {
	Evaluate(ctx context.Context, studentID string, asOf time.Time, lookbackDays int) (*models.StudentMetrics, error)
}

type signalClassifier interface {
	Classify(metrics models.StudentMetrics) []models.RiskSignal
}

type incompleteInterventionLister interface {
	ListIncompleteByCase(ctx context.Context, riskCaseID string) ([]models.Intervention, error)
}

// OpenCaseRequest describes manual case creation.
type OpenCaseRequest struct {
	SchoolID  string              `json:"school_id" validate:"required"`
	StudentID string              `json:"student_id" validate:"required"`
	RiskType  models.RiskType     `json:"risk_type" validate:"required"`
	Severity  models.RiskSeverity `json:"severity" validate:"required"`
	OpenedBy  string              `json:"opened_by" validate:"required"`
	Notes     *string             `json:"notes,omitempty"`
}

// ResolveCaseRequest describes manual case resolution. Force bypasses the
// incomplete-intervention gate and must carry a reason in Notes.
type ResolveCaseRequest struct {
	ResolvedBy string  `json:"resolved_by" validate:"required"`
	Notes      *string `json:"notes,omitempty"`
	Force      bool    `json:"force"`
}

// RiskCaseServiceConfig tunes reconciliation behaviour.
type RiskCaseServiceConfig struct {
	LookbackDays int
	Workers      int
}

// RiskCaseService reconciles computed risk signals against persisted risk
// cases and owns the manual open/resolve operations.
type RiskCaseService struct {
	repo          riskCaseRepository
	students      activeStudentLister
	evaluator     metricEvaluator
	classifier    signalClassifier
	interventions incompleteInterventionLister
	cache         *CacheService
	metrics       *MetricsService
	validator     *validator.Validate
	logger        *zap.Logger
	cfg           RiskCaseServiceConfig
}

// NewRiskCaseService constructs a RiskCaseService with sane defaults.
func NewRiskCaseService(repo riskCaseRepository, students activeStudentLister, evaluator metricEvaluator, classifier signalClassifier, interventions incompleteInterventionLister, cache *CacheService, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, cfg RiskCaseServiceConfig) *RiskCaseService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.LookbackDays <= 0 {
		cfg.LookbackDays = 30
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	return &RiskCaseService{
		repo:          repo,
		students:      students,
		evaluator:     evaluator,
		classifier:    classifier,
		interventions: interventions,
		cache:         cache,
		metrics:       metrics,
		validator:     validate,
		logger:        logger,
		cfg:           cfg,
	}
}

// Reconcile evaluates every active student in the school and opens cases
// for signals without a matching open or in-progress case. Matched cases
// are left untouched: severity is never overwritten, and cases are never
// auto-closed. The run is idempotent and each student is an independent
// unit of work, so per-student failures or a deadline expiry leave earlier
// openings committed.
func (s *RiskCaseService) Reconcile(ctx context.Context, schoolID string, asOf time.Time) (*models.ReconcileResult, error) {
	if schoolID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "school_id is required")
	}
	if asOf.IsZero() {
		asOf = time.Now().UTC()
	}
	asOf = asOf.UTC()

	start := time.Now()
	students, err := s.students.ListActive(ctx, schoolID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "failed to list active students")
	}
	existing, err := s.repo.ListActiveBySchool(ctx, schoolID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "failed to list open cases")
	}
	activeByKey := make(map[models.CaseKey]models.RiskCase, len(existing))
	for _, riskCase := range existing {
		activeByKey[riskCase.Key()] = riskCase
	}

	result := &models.ReconcileResult{
		SchoolID:  schoolID,
		AsOf:      asOf,
		Opened:    []models.RiskCase{},
		Unchanged: []models.RiskCase{},
	}
	var mu sync.Mutex

	jobs := make(chan models.Student)
	var wg sync.WaitGroup
	for i := 0; i < s.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for student := range jobs {
				s.reconcileStudent(ctx, schoolID, student, asOf, activeByKey, result, &mu)
			}
		}()
	}

dispatch:
	for _, student := range students {
		select {
		case <-ctx.Done():
			mu.Lock()
			result.Incomplete = true
			mu.Unlock()
			break dispatch
		case jobs <- student:
		}
	}
	close(jobs)
	wg.Wait()

	if s.metrics != nil {
		s.metrics.ObserveReconcile(time.Since(start), len(result.Opened))
	}
	if len(result.Opened) > 0 && s.cache != nil {
		_ = s.cache.Invalidate(ctx, summaryCacheKey(schoolID))
	}
	s.logger.Info("reconcile finished",
		zap.String("school_id", schoolID),
		zap.Int("evaluated", result.Evaluated),
		zap.Int("opened", len(result.Opened)),
		zap.Int("unchanged", len(result.Unchanged)),
		zap.Int("failed", result.Failed),
		zap.Bool("incomplete", result.Incomplete),
	)
	return result, nil
}

// reconcileStudent evaluates one student. All reads happen against the
// same asOf cutoff so the metrics are a consistent snapshot.
func (s *RiskCaseService) reconcileStudent(ctx context.Context, schoolID string, student models.Student, asOf time.Time, activeByKey map[models.CaseKey]models.RiskCase, result *models.ReconcileResult, mu *sync.Mutex) {
	if ctx.Err() != nil {
		mu.Lock()
		result.Incomplete = true
		mu.Unlock()
		return
	}

	metrics, err := s.evaluator.Evaluate(ctx, student.ID, asOf, s.cfg.LookbackDays)
	if err != nil {
		s.logger.Warn("metric evaluation failed", zap.String("student_id", student.ID), zap.Error(err))
		mu.Lock()
		result.Failed++
		mu.Unlock()
		return
	}
	signals := s.classifier.Classify(*metrics)

	mu.Lock()
	result.Evaluated++
	mu.Unlock()

	for _, signal := range signals {
		key := models.CaseKey{StudentID: signal.StudentID, Type: signal.Type}

		mu.Lock()
		matched, ok := activeByKey[key]
		mu.Unlock()
		if ok {
			mu.Lock()
			result.Unchanged = append(result.Unchanged, matched)
			mu.Unlock()
			continue
		}

		notes := signal.Reason
		riskCase := &models.RiskCase{
			SchoolID:  schoolID,
			StudentID: signal.StudentID,
			Type:      signal.Type,
			Severity:  signal.Severity,
			Status:    models.CaseStatusOpen,
			OpenedBy:  models.SystemActor,
			OpenedAt:  asOf,
			Notes:     &notes,
		}
		if err := s.repo.Create(ctx, riskCase); err != nil {
			if errors.Is(err, appErrors.ErrDuplicateOpenCase) {
				// Lost a race with a concurrent manual opening; the
				// existing case wins and stays untouched.
				if current, findErr := s.repo.FindActiveByKey(ctx, signal.StudentID, signal.Type); findErr == nil && current != nil {
					mu.Lock()
					result.Unchanged = append(result.Unchanged, *current)
					mu.Unlock()
				}
				continue
			}
			s.logger.Warn("case creation failed", zap.String("student_id", signal.StudentID), zap.String("risk_type", string(signal.Type)), zap.Error(err))
			mu.Lock()
			result.Failed++
			mu.Unlock()
			continue
		}
		mu.Lock()
		result.Opened = append(result.Opened, *riskCase)
		activeByKey[key] = *riskCase
		mu.Unlock()
	}
}

// Preview evaluates and classifies one student without persisting anything.
func (s *RiskCaseService) Preview(ctx context.Context, studentID string, asOf time.Time, lookbackDays int) (*models.StudentMetrics, []models.RiskSignal, error) {
	if studentID == "" {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "student_id is required")
	}
	if asOf.IsZero() {
		asOf = time.Now().UTC()
	}
	if lookbackDays <= 0 {
		lookbackDays = s.cfg.LookbackDays
	}
	if _, err := s.students.FindByID(ctx, studentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "failed to load student")
	}
	metrics, err := s.evaluator.Evaluate(ctx, studentID, asOf, lookbackDays)
	if err != nil {
		return nil, nil, err
	}
	return metrics, s.classifier.Classify(*metrics), nil
}

// OpenCase explicitly creates a case on behalf of a principal or staff
// member. Fails with DuplicateOpenCase when an open or in-progress case
// already exists for the (student, risk type) key.
func (s *RiskCaseService) OpenCase(ctx context.Context, req OpenCaseRequest) (*models.RiskCase, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid open case payload")
	}
	if !req.RiskType.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown risk type")
	}
	if !req.Severity.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown severity")
	}

	student, err := s.students.FindByID(ctx, req.StudentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "failed to load student")
	}
	if student.SchoolID != req.SchoolID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student does not belong to school")
	}

	if current, err := s.repo.FindActiveByKey(ctx, req.StudentID, req.RiskType); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "failed to check existing cases")
	} else if current != nil {
		return nil, appErrors.Clone(appErrors.ErrDuplicateOpenCase,
			fmt.Sprintf("case %s is already %s for this student and risk type", current.ID, current.Status))
	}

	riskCase := &models.RiskCase{
		SchoolID:  req.SchoolID,
		StudentID: req.StudentID,
		Type:      req.RiskType,
		Severity:  req.Severity,
		Status:    models.CaseStatusOpen,
		OpenedBy:  req.OpenedBy,
		Notes:     req.Notes,
	}
	if err := s.repo.Create(ctx, riskCase); err != nil {
		// The partial unique index closes the check-then-act window.
		return nil, err
	}
	if s.cache != nil {
		_ = s.cache.Invalidate(ctx, summaryCacheKey(req.SchoolID))
	}
	return riskCase, nil
}

// ResolveCase transitions an open or in-progress case to resolved. Blocked
// while incomplete interventions exist unless force is set, in which case
// the override is logged with its reason.
func (s *RiskCaseService) ResolveCase(ctx context.Context, caseID string, req ResolveCaseRequest) (*models.RiskCase, error) {
	if caseID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "case_id is required")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid resolve payload")
	}

	riskCase, err := s.repo.FindByID(ctx, caseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "risk case not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "failed to load risk case")
	}
	if riskCase.Status == models.CaseStatusResolved {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("case %s is already resolved", caseID))
	}

	incomplete, err := s.interventions.ListIncompleteByCase(ctx, caseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "failed to load interventions")
	}
	if len(incomplete) > 0 {
		if !req.Force {
			return nil, appErrors.Clone(appErrors.ErrOpenInterventions,
				fmt.Sprintf("case %s has %d incomplete intervention(s): %s", caseID, len(incomplete), interventionTypes(incomplete)))
		}
		reason := ""
		if req.Notes != nil {
			reason = *req.Notes
		}
		s.logger.Warn("forced case resolution with incomplete interventions",
			zap.String("case_id", caseID),
			zap.String("resolved_by", req.ResolvedBy),
			zap.Int("incomplete", len(incomplete)),
			zap.String("reason", reason),
		)
	}

	closedAt := time.Now().UTC()
	if err := s.repo.UpdateStatus(ctx, caseID, models.CaseStatusResolved, &closedAt, req.Notes); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve case")
	}
	if s.cache != nil {
		_ = s.cache.Invalidate(ctx, summaryCacheKey(riskCase.SchoolID))
	}
	return s.reload(ctx, caseID)
}

// Get fetches one case by ID.
func (s *RiskCaseService) Get(ctx context.Context, caseID string) (*models.RiskCase, error) {
	if caseID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "case_id is required")
	}
	return s.reload(ctx, caseID)
}

// List returns cases with pagination metadata.
func (s *RiskCaseService) List(ctx context.Context, filter models.RiskCaseFilter) ([]models.RiskCase, *models.Pagination, error) {
	if filter.SchoolID == "" {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "school_id is required")
	}
	cases, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list risk cases")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return cases, pagination, nil
}

func (s *RiskCaseService) reload(ctx context.Context, caseID string) (*models.RiskCase, error) {
	riskCase, err := s.repo.FindByID(ctx, caseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "risk case not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load risk case")
	}
	return riskCase, nil
}

func interventionTypes(interventions []models.Intervention) string {
	names := ""
	for i, intervention := range interventions {
		if i > 0 {
			names += ", "
		}
		names += intervention.Type
	}
	return names
}

func summaryCacheKey(schoolID string) string {
	return "risk:summary:" + schoolID
}

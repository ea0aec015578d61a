package service

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-risk-api/internal/models"
	"github.com/noah-isme/sma-risk-api/pkg/config"
	appErrors "github.com/noah-isme/sma-risk-api/pkg/errors"
)

type memoryCaseRepo struct {
	mu    sync.Mutex
	cases map[string]*models.RiskCase
}

func newMemoryCaseRepo() *memoryCaseRepo {
	return &memoryCaseRepo{cases: map[string]*models.RiskCase{}}
}

func (r *memoryCaseRepo) Create(_ context.Context, riskCase *models.RiskCase) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.cases {
		if existing.StudentID == riskCase.StudentID && existing.Type == riskCase.Type && existing.Status.Active() {
			return appErrors.Clone(appErrors.ErrDuplicateOpenCase, "")
		}
	}
	if riskCase.ID == "" {
		riskCase.ID = uuid.NewString()
	}
	if riskCase.Status == "" {
		riskCase.Status = models.CaseStatusOpen
	}
	stored := *riskCase
	r.cases[riskCase.ID] = &stored
	return nil
}

func (r *memoryCaseRepo) FindByID(_ context.Context, id string) (*models.RiskCase, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if riskCase, ok := r.cases[id]; ok {
		copied := *riskCase
		return &copied, nil
	}
	return nil, errNoRows()
}

func (r *memoryCaseRepo) FindActiveByKey(_ context.Context, studentID string, riskType models.RiskType) (*models.RiskCase, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, riskCase := range r.cases {
		if riskCase.StudentID == studentID && riskCase.Type == riskType && riskCase.Status.Active() {
			copied := *riskCase
			return &copied, nil
		}
	}
	return nil, nil
}

func (r *memoryCaseRepo) ListActiveBySchool(_ context.Context, schoolID string) ([]models.RiskCase, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.RiskCase
	for _, riskCase := range r.cases {
		if riskCase.SchoolID == schoolID && riskCase.Status.Active() {
			out = append(out, *riskCase)
		}
	}
	return out, nil
}

func (r *memoryCaseRepo) List(_ context.Context, filter models.RiskCaseFilter) ([]models.RiskCase, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.RiskCase
	for _, riskCase := range r.cases {
		if riskCase.SchoolID == filter.SchoolID {
			out = append(out, *riskCase)
		}
	}
	return out, len(out), nil
}

func (r *memoryCaseRepo) UpdateStatus(_ context.Context, id string, status models.CaseStatus, closedAt *time.Time, notes *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	riskCase, ok := r.cases[id]
	if !ok {
		return errNoRows()
	}
	riskCase.Status = status
	riskCase.ClosedAt = closedAt
	if notes != nil {
		riskCase.Notes = notes
	}
	riskCase.UpdatedAt = time.Now().UTC()
	return nil
}

type fakeStudentLister struct {
	students []models.Student
}

func (f *fakeStudentLister) ListActive(context.Context, string) ([]models.Student, error) {
	return f.students, nil
}

func (f *fakeStudentLister) FindByID(_ context.Context, id string) (*models.Student, error) {
	for _, student := range f.students {
		if student.ID == id {
			copied := student
			return &copied, nil
		}
	}
	return nil, errNoRows()
}

type fakeEvaluator struct {
	mu      sync.Mutex
	metrics map[string]models.StudentMetrics
	errs    map[string]error
	calls   int
}

func (f *fakeEvaluator) Evaluate(_ context.Context, studentID string, asOf time.Time, _ int) (*models.StudentMetrics, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if err, ok := f.errs[studentID]; ok {
		return nil, err
	}
	metrics, ok := f.metrics[studentID]
	if !ok {
		metrics = models.StudentMetrics{StudentID: studentID, AsOf: asOf}
	}
	return &metrics, nil
}

type fakeInterventionLister struct {
	incomplete []models.Intervention
	err        error
}

func (f *fakeInterventionLister) ListIncompleteByCase(context.Context, string) ([]models.Intervention, error) {
	return f.incomplete, f.err
}

func errNoRows() error {
	return sql.ErrNoRows
}

func newTestCaseService(repo *memoryCaseRepo, students *fakeStudentLister, evaluator *fakeEvaluator, interventions *fakeInterventionLister) *RiskCaseService {
	return NewRiskCaseService(
		repo,
		students,
		evaluator,
		NewClassifier(config.RiskConfig{}),
		interventions,
		nil, nil, nil, nil,
		RiskCaseServiceConfig{LookbackDays: 30, Workers: 2},
	)
}

func TestReconcileOpensCaseForFlaggedStudent(t *testing.T) {
	repo := newMemoryCaseRepo()
	students := &fakeStudentLister{students: []models.Student{
		{ID: "s1", SchoolID: "school-1", Status: models.EnrollmentStatusActive},
		{ID: "s2", SchoolID: "school-1", Status: models.EnrollmentStatusActive},
	}}
	evaluator := &fakeEvaluator{metrics: map[string]models.StudentMetrics{
		"s1": {StudentID: "s1", DaysOverdue: 75},
	}}
	svc := newTestCaseService(repo, students, evaluator, &fakeInterventionLister{})

	result, err := svc.Reconcile(context.Background(), "school-1", time.Now().UTC())
	require.NoError(t, err)
	require.Len(t, result.Opened, 1)
	assert.Equal(t, "s1", result.Opened[0].StudentID)
	assert.Equal(t, models.RiskTypeFinancial, result.Opened[0].Type)
	assert.Equal(t, models.SeverityHigh, result.Opened[0].Severity)
	assert.Equal(t, models.SystemActor, result.Opened[0].OpenedBy)
	assert.Equal(t, 2, result.Evaluated)
	assert.Empty(t, result.Unchanged)
	assert.False(t, result.Incomplete)
}

func TestReconcileIsIdempotent(t *testing.T) {
	repo := newMemoryCaseRepo()
	students := &fakeStudentLister{students: []models.Student{
		{ID: "s1", SchoolID: "school-1", Status: models.EnrollmentStatusActive},
	}}
	evaluator := &fakeEvaluator{metrics: map[string]models.StudentMetrics{
		"s1": {StudentID: "s1", DaysOverdue: 75},
	}}
	svc := newTestCaseService(repo, students, evaluator, &fakeInterventionLister{})

	first, err := svc.Reconcile(context.Background(), "school-1", time.Now().UTC())
	require.NoError(t, err)
	require.Len(t, first.Opened, 1)

	second, err := svc.Reconcile(context.Background(), "school-1", time.Now().UTC())
	require.NoError(t, err)
	assert.Empty(t, second.Opened)
	require.Len(t, second.Unchanged, 1)
	assert.Equal(t, first.Opened[0].ID, second.Unchanged[0].ID)
}

func TestReconcileNeverOverwritesSeverity(t *testing.T) {
	repo := newMemoryCaseRepo()
	existing := &models.RiskCase{
		SchoolID:  "school-1",
		StudentID: "s1",
		Type:      models.RiskTypeFinancial,
		Severity:  models.SeverityMedium,
		Status:    models.CaseStatusInProgress,
		OpenedBy:  "principal-1",
	}
	require.NoError(t, repo.Create(context.Background(), existing))

	students := &fakeStudentLister{students: []models.Student{
		{ID: "s1", SchoolID: "school-1", Status: models.EnrollmentStatusActive},
	}}
	// The student has since deteriorated to critical.
	evaluator := &fakeEvaluator{metrics: map[string]models.StudentMetrics{
		"s1": {StudentID: "s1", DaysOverdue: 120},
	}}
	svc := newTestCaseService(repo, students, evaluator, &fakeInterventionLister{})

	result, err := svc.Reconcile(context.Background(), "school-1", time.Now().UTC())
	require.NoError(t, err)
	assert.Empty(t, result.Opened)
	require.Len(t, result.Unchanged, 1)
	assert.Equal(t, models.SeverityMedium, result.Unchanged[0].Severity)
	assert.Equal(t, models.CaseStatusInProgress, result.Unchanged[0].Status)
}

func TestReconcileNeverAutoCloses(t *testing.T) {
	repo := newMemoryCaseRepo()
	existing := &models.RiskCase{
		SchoolID:  "school-1",
		StudentID: "s1",
		Type:      models.RiskTypeAttendance,
		Severity:  models.SeverityHigh,
		Status:    models.CaseStatusOpen,
		OpenedBy:  models.SystemActor,
	}
	require.NoError(t, repo.Create(context.Background(), existing))

	students := &fakeStudentLister{students: []models.Student{
		{ID: "s1", SchoolID: "school-1", Status: models.EnrollmentStatusActive},
	}}
	// Healthy metrics now, but the case must stay open for human review.
	svc := newTestCaseService(repo, students, &fakeEvaluator{}, &fakeInterventionLister{})

	result, err := svc.Reconcile(context.Background(), "school-1", time.Now().UTC())
	require.NoError(t, err)
	assert.Empty(t, result.Opened)

	stored, err := repo.FindByID(context.Background(), existing.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CaseStatusOpen, stored.Status)
}

func TestReconcileContinuesPastStudentFailures(t *testing.T) {
	repo := newMemoryCaseRepo()
	students := &fakeStudentLister{students: []models.Student{
		{ID: "s1", SchoolID: "school-1", Status: models.EnrollmentStatusActive},
		{ID: "s2", SchoolID: "school-1", Status: models.EnrollmentStatusActive},
	}}
	evaluator := &fakeEvaluator{
		metrics: map[string]models.StudentMetrics{
			"s2": {StudentID: "s2", DaysOverdue: 40},
		},
		errs: map[string]error{
			"s1": appErrors.Clone(appErrors.ErrStoreUnavailable, ""),
		},
	}
	svc := newTestCaseService(repo, students, evaluator, &fakeInterventionLister{})

	result, err := svc.Reconcile(context.Background(), "school-1", time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 1, result.Evaluated)
	require.Len(t, result.Opened, 1)
	assert.Equal(t, "s2", result.Opened[0].StudentID)
}

func TestReconcileDeadlineReturnsPartialResult(t *testing.T) {
	repo := newMemoryCaseRepo()
	students := &fakeStudentLister{students: []models.Student{
		{ID: "s1", SchoolID: "school-1", Status: models.EnrollmentStatusActive},
		{ID: "s2", SchoolID: "school-1", Status: models.EnrollmentStatusActive},
	}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	svc := newTestCaseService(repo, students, &fakeEvaluator{}, &fakeInterventionLister{})

	result, err := svc.Reconcile(ctx, "school-1", time.Now().UTC())
	require.NoError(t, err)
	assert.True(t, result.Incomplete)
}

func TestReconcileRequiresSchoolID(t *testing.T) {
	svc := newTestCaseService(newMemoryCaseRepo(), &fakeStudentLister{}, &fakeEvaluator{}, &fakeInterventionLister{})

	_, err := svc.Reconcile(context.Background(), "", time.Now().UTC())
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestOpenCaseRejectsDuplicate(t *testing.T) {
	repo := newMemoryCaseRepo()
	students := &fakeStudentLister{students: []models.Student{
		{ID: "s1", SchoolID: "school-1", Status: models.EnrollmentStatusActive},
	}}
	svc := newTestCaseService(repo, students, &fakeEvaluator{}, &fakeInterventionLister{})

	req := OpenCaseRequest{
		SchoolID:  "school-1",
		StudentID: "s1",
		RiskType:  models.RiskTypeAcademic,
		Severity:  models.SeverityMedium,
		OpenedBy:  "teacher-1",
	}
	first, err := svc.OpenCase(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, models.CaseStatusOpen, first.Status)

	_, err = svc.OpenCase(context.Background(), req)
	assert.ErrorIs(t, err, appErrors.ErrDuplicateOpenCase)
}

func TestOpenCaseRejectsForeignSchoolStudent(t *testing.T) {
	students := &fakeStudentLister{students: []models.Student{
		{ID: "s1", SchoolID: "school-2", Status: models.EnrollmentStatusActive},
	}}
	svc := newTestCaseService(newMemoryCaseRepo(), students, &fakeEvaluator{}, &fakeInterventionLister{})

	_, err := svc.OpenCase(context.Background(), OpenCaseRequest{
		SchoolID:  "school-1",
		StudentID: "s1",
		RiskType:  models.RiskTypeAcademic,
		Severity:  models.SeverityMedium,
		OpenedBy:  "teacher-1",
	})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestResolveCaseBlockedByIncompleteInterventions(t *testing.T) {
	repo := newMemoryCaseRepo()
	riskCase := &models.RiskCase{
		SchoolID:  "school-1",
		StudentID: "s1",
		Type:      models.RiskTypeAttendance,
		Severity:  models.SeverityMedium,
		Status:    models.CaseStatusInProgress,
		OpenedBy:  models.SystemActor,
	}
	require.NoError(t, repo.Create(context.Background(), riskCase))

	interventions := &fakeInterventionLister{incomplete: []models.Intervention{
		{ID: "i1", RiskCaseID: riskCase.ID, Type: "parent conference", Status: models.InterventionStatusPending},
	}}
	svc := newTestCaseService(repo, &fakeStudentLister{}, &fakeEvaluator{}, interventions)

	_, err := svc.ResolveCase(context.Background(), riskCase.ID, ResolveCaseRequest{ResolvedBy: "principal-1"})
	assert.ErrorIs(t, err, appErrors.ErrOpenInterventions)

	// Force overrides the gate.
	notes := "student transferred out"
	resolved, err := svc.ResolveCase(context.Background(), riskCase.ID, ResolveCaseRequest{
		ResolvedBy: "principal-1",
		Notes:      &notes,
		Force:      true,
	})
	require.NoError(t, err)
	assert.Equal(t, models.CaseStatusResolved, resolved.Status)
	require.NotNil(t, resolved.ClosedAt)
}

func TestResolveCaseTwiceFails(t *testing.T) {
	repo := newMemoryCaseRepo()
	riskCase := &models.RiskCase{
		SchoolID:  "school-1",
		StudentID: "s1",
		Type:      models.RiskTypeFinancial,
		Severity:  models.SeverityMedium,
		Status:    models.CaseStatusOpen,
		OpenedBy:  models.SystemActor,
	}
	require.NoError(t, repo.Create(context.Background(), riskCase))
	svc := newTestCaseService(repo, &fakeStudentLister{}, &fakeEvaluator{}, &fakeInterventionLister{})

	_, err := svc.ResolveCase(context.Background(), riskCase.ID, ResolveCaseRequest{ResolvedBy: "principal-1"})
	require.NoError(t, err)

	_, err = svc.ResolveCase(context.Background(), riskCase.ID, ResolveCaseRequest{ResolvedBy: "principal-1"})
	assert.ErrorIs(t, err, appErrors.ErrInvalidTransition)
}

func TestPreviewDoesNotPersist(t *testing.T) {
	repo := newMemoryCaseRepo()
	students := &fakeStudentLister{students: []models.Student{
		{ID: "s1", SchoolID: "school-1", Status: models.EnrollmentStatusActive},
	}}
	evaluator := &fakeEvaluator{metrics: map[string]models.StudentMetrics{
		"s1": {StudentID: "s1", DaysOverdue: 100},
	}}
	svc := newTestCaseService(repo, students, evaluator, &fakeInterventionLister{})

	metrics, signals, err := svc.Preview(context.Background(), "s1", time.Now().UTC(), 30)
	require.NoError(t, err)
	assert.Equal(t, 100, metrics.DaysOverdue)
	require.Len(t, signals, 1)
	assert.Equal(t, models.SeverityCritical, signals[0].Severity)

	repo.mu.Lock()
	defer repo.mu.Unlock()
	assert.Empty(t, repo.cases)
}

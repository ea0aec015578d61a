package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-risk-api/internal/models"
	appErrors "github.com/noah-isme/sma-risk-api/pkg/errors"
)

type memoryInterventionRepo struct {
	interventions map[string]*models.Intervention
}

func newMemoryInterventionRepo() *memoryInterventionRepo {
	return &memoryInterventionRepo{interventions: map[string]*models.Intervention{}}
}

func (r *memoryInterventionRepo) Create(_ context.Context, intervention *models.Intervention) error {
	if intervention.ID == "" {
		intervention.ID = uuid.NewString()
	}
	stored := *intervention
	r.interventions[intervention.ID] = &stored
	return nil
}

func (r *memoryInterventionRepo) FindByID(_ context.Context, id string) (*models.Intervention, error) {
	if intervention, ok := r.interventions[id]; ok {
		copied := *intervention
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (r *memoryInterventionRepo) ListByCase(_ context.Context, riskCaseID string) ([]models.Intervention, error) {
	var out []models.Intervention
	for _, intervention := range r.interventions {
		if intervention.RiskCaseID == riskCaseID {
			out = append(out, *intervention)
		}
	}
	return out, nil
}

func (r *memoryInterventionRepo) UpdateStatus(_ context.Context, id string, status models.InterventionStatus) error {
	intervention, ok := r.interventions[id]
	if !ok {
		return sql.ErrNoRows
	}
	intervention.Status = status
	return nil
}

type fakeCaseStore struct {
	cases         map[string]*models.RiskCase
	statusUpdates []models.CaseStatus
}

func newFakeCaseStore(cases ...*models.RiskCase) *fakeCaseStore {
	store := &fakeCaseStore{cases: map[string]*models.RiskCase{}}
	for _, riskCase := range cases {
		if riskCase.ID == "" {
			riskCase.ID = uuid.NewString()
		}
		store.cases[riskCase.ID] = riskCase
	}
	return store
}

func (f *fakeCaseStore) FindByID(_ context.Context, id string) (*models.RiskCase, error) {
	if riskCase, ok := f.cases[id]; ok {
		copied := *riskCase
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeCaseStore) UpdateStatus(_ context.Context, id string, status models.CaseStatus, closedAt *time.Time, _ *string) error {
	riskCase, ok := f.cases[id]
	if !ok {
		return sql.ErrNoRows
	}
	riskCase.Status = status
	riskCase.ClosedAt = closedAt
	f.statusUpdates = append(f.statusUpdates, status)
	return nil
}

func TestAddInterventionMovesOpenCaseToInProgress(t *testing.T) {
	riskCase := &models.RiskCase{
		SchoolID:  "school-1",
		StudentID: "s1",
		Type:      models.RiskTypeAttendance,
		Status:    models.CaseStatusOpen,
	}
	cases := newFakeCaseStore(riskCase)
	svc := NewInterventionService(newMemoryInterventionRepo(), cases, nil, nil)

	intervention, err := svc.Add(context.Background(), AddInterventionRequest{
		RiskCaseID: riskCase.ID,
		Type:       "parent conference",
		AssignedTo: "teacher-1",
		DueDate:    time.Now().UTC().AddDate(0, 0, 7),
	})
	require.NoError(t, err)
	assert.Equal(t, models.InterventionStatusPending, intervention.Status)
	assert.Equal(t, models.CaseStatusInProgress, cases.cases[riskCase.ID].Status)
}

func TestAddInterventionLeavesInProgressCaseAlone(t *testing.T) {
	riskCase := &models.RiskCase{
		SchoolID:  "school-1",
		StudentID: "s1",
		Type:      models.RiskTypeAttendance,
		Status:    models.CaseStatusInProgress,
	}
	cases := newFakeCaseStore(riskCase)
	svc := NewInterventionService(newMemoryInterventionRepo(), cases, nil, nil)

	_, err := svc.Add(context.Background(), AddInterventionRequest{
		RiskCaseID: riskCase.ID,
		Type:       "counseling referral",
		AssignedTo: "counselor-1",
		DueDate:    time.Now().UTC().AddDate(0, 0, 14),
	})
	require.NoError(t, err)
	assert.Empty(t, cases.statusUpdates)
}

func TestAddInterventionRejectsResolvedCase(t *testing.T) {
	closedAt := time.Now().UTC()
	riskCase := &models.RiskCase{
		SchoolID:  "school-1",
		StudentID: "s1",
		Type:      models.RiskTypeFinancial,
		Status:    models.CaseStatusResolved,
		ClosedAt:  &closedAt,
	}
	cases := newFakeCaseStore(riskCase)
	svc := NewInterventionService(newMemoryInterventionRepo(), cases, nil, nil)

	_, err := svc.Add(context.Background(), AddInterventionRequest{
		RiskCaseID: riskCase.ID,
		Type:       "payment plan",
		AssignedTo: "bursar-1",
		DueDate:    time.Now().UTC().AddDate(0, 0, 30),
	})
	assert.ErrorIs(t, err, appErrors.ErrCaseNotOpen)
}

func TestAddInterventionUnknownCase(t *testing.T) {
	svc := NewInterventionService(newMemoryInterventionRepo(), newFakeCaseStore(), nil, nil)

	_, err := svc.Add(context.Background(), AddInterventionRequest{
		RiskCaseID: "missing",
		Type:       "home visit",
		AssignedTo: "teacher-1",
		DueDate:    time.Now().UTC(),
	})
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestUpdateInterventionStatusForwardOnly(t *testing.T) {
	repo := newMemoryInterventionRepo()
	riskCase := &models.RiskCase{Status: models.CaseStatusInProgress}
	cases := newFakeCaseStore(riskCase)
	svc := NewInterventionService(repo, cases, nil, nil)

	intervention := &models.Intervention{
		RiskCaseID: riskCase.ID,
		Type:       "parent conference",
		AssignedTo: "teacher-1",
		Status:     models.InterventionStatusPending,
	}
	require.NoError(t, repo.Create(context.Background(), intervention))

	// Skipping a step is rejected.
	_, err := svc.UpdateStatus(context.Background(), intervention.ID, models.InterventionStatusCompleted)
	assert.ErrorIs(t, err, appErrors.ErrInvalidTransition)

	updated, err := svc.UpdateStatus(context.Background(), intervention.ID, models.InterventionStatusInProgress)
	require.NoError(t, err)
	assert.Equal(t, models.InterventionStatusInProgress, updated.Status)

	updated, err = svc.UpdateStatus(context.Background(), intervention.ID, models.InterventionStatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, models.InterventionStatusCompleted, updated.Status)

	// Completed is terminal.
	_, err = svc.UpdateStatus(context.Background(), intervention.ID, models.InterventionStatusPending)
	assert.ErrorIs(t, err, appErrors.ErrInvalidTransition)
}

func TestListByCaseRequiresExistingCase(t *testing.T) {
	svc := NewInterventionService(newMemoryInterventionRepo(), newFakeCaseStore(), nil, nil)

	_, err := svc.ListByCase(context.Background(), "missing")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

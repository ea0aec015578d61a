package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-risk-api/internal/models"
)

func interventionColumns() []string {
	return []string{"id", "risk_case_id", "type", "assigned_to", "due_date", "notes", "status", "created_at", "updated_at"}
}

func TestInterventionRepositoryCreateDefaults(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewInterventionRepository(db)

	mock.ExpectExec("INSERT INTO interventions").
		WillReturnResult(sqlmock.NewResult(1, 1))

	intervention := &models.Intervention{
		RiskCaseID: "case-1",
		Type:       "parent conference",
		AssignedTo: "teacher-1",
		DueDate:    time.Now().UTC().AddDate(0, 0, 7),
	}
	require.NoError(t, repo.Create(context.Background(), intervention))
	assert.NotEmpty(t, intervention.ID)
	assert.Equal(t, models.InterventionStatusPending, intervention.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInterventionRepositoryListIncompleteByCase(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewInterventionRepository(db)

	now := time.Now().UTC()
	mock.ExpectQuery("SELECT id, risk_case_id").
		WithArgs("case-1", "completed").
		WillReturnRows(sqlmock.NewRows(interventionColumns()).
			AddRow("i1", "case-1", "home visit", "teacher-1", now, nil, "pending", now, now).
			AddRow("i2", "case-1", "counseling referral", "counselor-1", now, nil, "in_progress", now, now))

	interventions, err := repo.ListIncompleteByCase(context.Background(), "case-1")
	require.NoError(t, err)
	require.Len(t, interventions, 2)
	assert.Equal(t, models.InterventionStatusPending, interventions[0].Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInterventionRepositoryUpdateStatusNoRows(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewInterventionRepository(db)

	mock.ExpectExec("UPDATE interventions").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateStatus(context.Background(), "missing", models.InterventionStatusCompleted)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

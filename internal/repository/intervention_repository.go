package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-risk-api/internal/models"
)

// InterventionRepository manages persistence for interventions. Rows are
// owned by their risk case via foreign key and are never hard-deleted.
type InterventionRepository struct {
	db *sqlx.DB
}

// NewInterventionRepository constructs an InterventionRepository.
func NewInterventionRepository(db *sqlx.DB) *InterventionRepository {
	return &InterventionRepository{db: db}
}

// Create inserts a new intervention.
func (r *InterventionRepository) Create(ctx context.Context, intervention *models.Intervention) error {
	if intervention.ID == "" {
		intervention.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if intervention.CreatedAt.IsZero() {
		intervention.CreatedAt = now
	}
	intervention.UpdatedAt = now
	if intervention.Status == "" {
		intervention.Status = models.InterventionStatusPending
	}
	const query = `INSERT INTO interventions (id, risk_case_id, type, assigned_to, due_date, notes, status, created_at, updated_at)
        VALUES (:id, :risk_case_id, :type, :assigned_to, :due_date, :notes, :status, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, intervention); err != nil {
		return fmt.Errorf("create intervention: %w", err)
	}
	return nil
}

// FindByID fetches an intervention by ID.
func (r *InterventionRepository) FindByID(ctx context.Context, id string) (*models.Intervention, error) {
	const query = `SELECT id, risk_case_id, type, assigned_to, due_date, notes, status, created_at, updated_at
        FROM interventions WHERE id = $1`
	var intervention models.Intervention
	if err := r.db.GetContext(ctx, &intervention, query, id); err != nil {
		return nil, err
	}
	return &intervention, nil
}

// ListByCase returns all interventions attached to a case, oldest first.
func (r *InterventionRepository) ListByCase(ctx context.Context, riskCaseID string) ([]models.Intervention, error) {
	const query = `SELECT id, risk_case_id, type, assigned_to, due_date, notes, status, created_at, updated_at
        FROM interventions WHERE risk_case_id = $1 ORDER BY created_at ASC`
	var interventions []models.Intervention
	if err := r.db.SelectContext(ctx, &interventions, query, riskCaseID); err != nil {
		return nil, fmt.Errorf("list interventions: %w", err)
	}
	return interventions, nil
}

// ListIncompleteByCase returns interventions not yet completed. Resolution
// of the parent case is blocked while any such row exists.
func (r *InterventionRepository) ListIncompleteByCase(ctx context.Context, riskCaseID string) ([]models.Intervention, error) {
	const query = `SELECT id, risk_case_id, type, assigned_to, due_date, notes, status, created_at, updated_at
        FROM interventions WHERE risk_case_id = $1 AND status <> $2 ORDER BY created_at ASC`
	var interventions []models.Intervention
	if err := r.db.SelectContext(ctx, &interventions, query, riskCaseID, models.InterventionStatusCompleted); err != nil {
		return nil, fmt.Errorf("list incomplete interventions: %w", err)
	}
	return interventions, nil
}

// UpdateStatus transitions an intervention.
func (r *InterventionRepository) UpdateStatus(ctx context.Context, id string, status models.InterventionStatus) error {
	const query = `UPDATE interventions SET status = $2, updated_at = $3 WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, status, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update intervention status: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

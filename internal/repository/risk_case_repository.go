package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/sma-risk-api/internal/models"
	appErrors "github.com/noah-isme/sma-risk-api/pkg/errors"
)

// RiskCaseRepository manages persistence for risk cases.
//
// The one-open-case-per-(student, risk_type) invariant is enforced by a
// partial unique index:
//
//	CREATE UNIQUE INDEX risk_cases_open_key
//	    ON risk_cases (student_id, risk_type)
//	    WHERE status IN ('open', 'in_progress');
//
// Create maps the resulting unique violation to ErrDuplicateOpenCase so
// that concurrent manual and reconcile openings cannot both succeed.
type RiskCaseRepository struct {
	db *sqlx.DB
}

// NewRiskCaseRepository constructs a RiskCaseRepository.
func NewRiskCaseRepository(db *sqlx.DB) *RiskCaseRepository {
	return &RiskCaseRepository{db: db}
}

// Create inserts a new risk case.
func (r *RiskCaseRepository) Create(ctx context.Context, riskCase *models.RiskCase) error {
	if riskCase.ID == "" {
		riskCase.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if riskCase.OpenedAt.IsZero() {
		riskCase.OpenedAt = now
	}
	riskCase.UpdatedAt = now
	if riskCase.Status == "" {
		riskCase.Status = models.CaseStatusOpen
	}
	const query = `INSERT INTO risk_cases (id, school_id, student_id, risk_type, severity, status, opened_by, opened_at, closed_at, notes, updated_at)
        VALUES (:id, :school_id, :student_id, :risk_type, :severity, :status, :opened_by, :opened_at, :closed_at, :notes, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, riskCase); err != nil {
		if isUniqueViolation(err) {
			return appErrors.Wrap(err, appErrors.ErrDuplicateOpenCase.Code, appErrors.ErrDuplicateOpenCase.Status,
				fmt.Sprintf("open case already exists for student %s and risk type %s", riskCase.StudentID, riskCase.Type))
		}
		return fmt.Errorf("create risk case: %w", err)
	}
	return nil
}

// FindByID fetches a risk case by ID.
func (r *RiskCaseRepository) FindByID(ctx context.Context, id string) (*models.RiskCase, error) {
	const query = `SELECT id, school_id, student_id, risk_type, severity, status, opened_by, opened_at, closed_at, notes, updated_at
        FROM risk_cases WHERE id = $1`
	var riskCase models.RiskCase
	if err := r.db.GetContext(ctx, &riskCase, query, id); err != nil {
		return nil, err
	}
	return &riskCase, nil
}

// FindActiveByKey returns the open or in-progress case for the given
// (student, risk type) key, or nil when none exists.
func (r *RiskCaseRepository) FindActiveByKey(ctx context.Context, studentID string, riskType models.RiskType) (*models.RiskCase, error) {
	const query = `SELECT id, school_id, student_id, risk_type, severity, status, opened_by, opened_at, closed_at, notes, updated_at
        FROM risk_cases
        WHERE student_id = $1 AND risk_type = $2 AND status IN ($3, $4)
        LIMIT 1`
	var riskCase models.RiskCase
	err := r.db.GetContext(ctx, &riskCase, query, studentID, riskType, models.CaseStatusOpen, models.CaseStatusInProgress)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find active case: %w", err)
	}
	return &riskCase, nil
}

// ListActiveBySchool returns all open and in-progress cases for a school.
func (r *RiskCaseRepository) ListActiveBySchool(ctx context.Context, schoolID string) ([]models.RiskCase, error) {
	const query = `SELECT id, school_id, student_id, risk_type, severity, status, opened_by, opened_at, closed_at, notes, updated_at
        FROM risk_cases
        WHERE school_id = $1 AND status IN ($2, $3)
        ORDER BY opened_at ASC`
	var cases []models.RiskCase
	if err := r.db.SelectContext(ctx, &cases, query, schoolID, models.CaseStatusOpen, models.CaseStatusInProgress); err != nil {
		return nil, fmt.Errorf("list active cases: %w", err)
	}
	return cases, nil
}

// List returns cases matching the provided filters with a total count.
func (r *RiskCaseRepository) List(ctx context.Context, filter models.RiskCaseFilter) ([]models.RiskCase, int, error) {
	base := "FROM risk_cases"
	args := []interface{}{}
	conditions := []string{"1=1"}

	if filter.SchoolID != "" {
		args = append(args, filter.SchoolID)
		conditions = append(conditions, fmt.Sprintf("school_id = $%d", len(args)))
	}
	if filter.StudentID != "" {
		args = append(args, filter.StudentID)
		conditions = append(conditions, fmt.Sprintf("student_id = $%d", len(args)))
	}
	if filter.Type != "" {
		args = append(args, filter.Type)
		conditions = append(conditions, fmt.Sprintf("risk_type = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}

	base = fmt.Sprintf("%s WHERE %s", base, strings.Join(conditions, " AND "))

	allowedSorts := map[string]string{
		"opened_at": "opened_at",
		"severity":  "severity",
		"status":    "status",
	}
	column, ok := allowedSorts[filter.SortBy]
	if !ok {
		column = "opened_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT id, school_id, student_id, risk_type, severity, status, opened_by, opened_at, closed_at, notes, updated_at
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base, column, order, size, offset)

	var cases []models.RiskCase
	if err := r.db.SelectContext(ctx, &cases, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list risk cases: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count risk cases: %w", err)
	}
	return cases, total, nil
}

// UpdateStatus transitions a case and stamps closure metadata when the
// target status is resolved. Notes are appended by the service layer.
func (r *RiskCaseRepository) UpdateStatus(ctx context.Context, id string, status models.CaseStatus, closedAt *time.Time, notes *string) error {
	const query = `UPDATE risk_cases
        SET status = $2, closed_at = $3, notes = COALESCE($4, notes), updated_at = $5
        WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, status, closedAt, notes, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update risk case status: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// SummaryBySchool aggregates case counts by type, severity and status.
func (r *RiskCaseRepository) SummaryBySchool(ctx context.Context, schoolID string) ([]models.RiskSummaryRow, error) {
	const query = `SELECT risk_type, severity, status, COUNT(*) AS count
        FROM risk_cases WHERE school_id = $1
        GROUP BY risk_type, severity, status
        ORDER BY risk_type, severity, status`
	var rows []models.RiskSummaryRow
	if err := r.db.SelectContext(ctx, &rows, query, schoolID); err != nil {
		return nil, fmt.Errorf("summarise risk cases: %w", err)
	}
	return rows, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

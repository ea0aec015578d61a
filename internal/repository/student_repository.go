package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-risk-api/internal/models"
)

// StudentRepository manages read access to student records.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs a StudentRepository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// ListActive returns all active students for a school ordered by admission
// number. Reconciliation only evaluates active students.
func (r *StudentRepository) ListActive(ctx context.Context, schoolID string) ([]models.Student, error) {
	const query = `SELECT id, school_id, admission_number, full_name, status, status_reason, created_at, updated_at
        FROM students WHERE school_id = $1 AND status = $2 ORDER BY admission_number ASC`
	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query, schoolID, models.EnrollmentStatusActive); err != nil {
		return nil, fmt.Errorf("list active students: %w", err)
	}
	return students, nil
}

// FindByID fetches a student by ID.
func (r *StudentRepository) FindByID(ctx context.Context, id string) (*models.Student, error) {
	const query = `SELECT id, school_id, admission_number, full_name, status, status_reason, created_at, updated_at
        FROM students WHERE id = $1`
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, id); err != nil {
		return nil, err
	}
	return &student, nil
}

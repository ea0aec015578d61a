package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// AssessmentRepository reads scored assessment results.
type AssessmentRepository struct {
	db *sqlx.DB
}

// NewAssessmentRepository constructs an AssessmentRepository.
func NewAssessmentRepository(db *sqlx.DB) *AssessmentRepository {
	return &AssessmentRepository{db: db}
}

// TermScores returns the percentage scores of all scored assessments for
// the student within the term containing asOf. Unscored assessments are
// excluded at the query level.
func (r *AssessmentRepository) TermScores(ctx context.Context, studentID string, asOf time.Time) ([]float64, error) {
	const query = `SELECT a.score_percent
        FROM assessment_scores a
        JOIN terms t ON t.id = a.term_id
        WHERE a.student_id = $1
          AND a.score_percent IS NOT NULL
          AND t.starts_on <= $2 AND t.ends_on >= $2`
	var scores []float64
	if err := r.db.SelectContext(ctx, &scores, query, studentID, asOf); err != nil {
		return nil, fmt.Errorf("list term scores: %w", err)
	}
	return scores, nil
}

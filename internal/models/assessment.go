package models

import "time"

// AssessmentScore is a scored assessment result expressed as a percentage.
// Unscored assessments carry a NULL score and are excluded from averages.
type AssessmentScore struct {
	ID           string     `db:"id" json:"id"`
	StudentID    string     `db:"student_id" json:"student_id"`
	TermID       string     `db:"term_id" json:"term_id"`
	Subject      string     `db:"subject" json:"subject"`
	ScorePercent *float64   `db:"score_percent" json:"score_percent,omitempty"`
	ScoredAt     *time.Time `db:"scored_at" json:"scored_at,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
}

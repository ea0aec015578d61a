package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-risk-api/internal/models"
)

// AttendanceRepository reads attendance records for metric evaluation.
type AttendanceRepository struct {
	db *sqlx.DB
}

// NewAttendanceRepository constructs an AttendanceRepository.
func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

// WindowRecords returns a student's attendance records within the inclusive
// date window, most recent first. Ordering matters: the consecutive-absence
// scan walks the slice from the head.
func (r *AttendanceRepository) WindowRecords(ctx context.Context, studentID string, from, to time.Time) ([]models.AttendanceRecord, error) {
	const query = `SELECT id, student_id, date, status, created_at
        FROM attendance_records
        WHERE student_id = $1 AND date >= $2 AND date <= $3
        ORDER BY date DESC`
	var records []models.AttendanceRecord
	if err := r.db.SelectContext(ctx, &records, query, studentID, from, to); err != nil {
		return nil, fmt.Errorf("list attendance window: %w", err)
	}
	return records, nil
}

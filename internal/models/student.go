package models

import "time"

// EnrollmentStatus captures a student's standing within their school.
type EnrollmentStatus string

const (
	EnrollmentStatusActive      EnrollmentStatus = "active"
	EnrollmentStatusInactive    EnrollmentStatus = "inactive"
	EnrollmentStatusTransferred EnrollmentStatus = "transferred"
	EnrollmentStatusGraduated   EnrollmentStatus = "graduated"
)

// Valid returns true when the status is a supported value.
func (s EnrollmentStatus) Valid() bool {
	switch s {
	case EnrollmentStatusActive, EnrollmentStatusInactive, EnrollmentStatusTransferred, EnrollmentStatusGraduated:
		return true
	default:
		return false
	}
}

// Student represents a learner owned by exactly one school. The admission
// number is immutable after creation; status changes carry an audit reason.
type Student struct {
	ID              string           `db:"id" json:"id"`
	SchoolID        string           `db:"school_id" json:"school_id"`
	AdmissionNumber string           `db:"admission_number" json:"admission_number"`
	FullName        string           `db:"full_name" json:"full_name"`
	Status          EnrollmentStatus `db:"status" json:"status"`
	StatusReason    *string          `db:"status_reason" json:"status_reason,omitempty"`
	CreatedAt       time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time        `db:"updated_at" json:"updated_at"`
}

package models

import "time"

// InterventionStatus is the lifecycle state of an intervention. Transitions
// only move forward through the chain pending -> in_progress -> completed.
type InterventionStatus string

const (
	InterventionStatusPending    InterventionStatus = "pending"
	InterventionStatusInProgress InterventionStatus = "in_progress"
	InterventionStatusCompleted  InterventionStatus = "completed"
)

// Valid returns true when the status is a supported value.
func (s InterventionStatus) Valid() bool {
	switch s {
	case InterventionStatusPending, InterventionStatusInProgress, InterventionStatusCompleted:
		return true
	default:
		return false
	}
}

// CanTransitionTo reports whether the receiver may move to next. The chain
// is strictly forward and cannot skip steps.
func (s InterventionStatus) CanTransitionTo(next InterventionStatus) bool {
	switch s {
	case InterventionStatusPending:
		return next == InterventionStatusInProgress
	case InterventionStatusInProgress:
		return next == InterventionStatusCompleted
	default:
		return false
	}
}

// Intervention is a unit of remedial work owned by exactly one risk case.
type Intervention struct {
	ID         string             `db:"id" json:"id"`
	RiskCaseID string             `db:"risk_case_id" json:"risk_case_id"`
	Type       string             `db:"type" json:"type"`
	AssignedTo string             `db:"assigned_to" json:"assigned_to"`
	DueDate    time.Time          `db:"due_date" json:"due_date"`
	Notes      *string            `db:"notes" json:"notes,omitempty"`
	Status     InterventionStatus `db:"status" json:"status"`
	CreatedAt  time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time          `db:"updated_at" json:"updated_at"`
}

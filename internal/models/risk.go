package models

import "time"

// RiskType identifies the dimension a risk signal or case tracks.
type RiskType string

const (
	RiskTypeAttendance RiskType = "attendance"
	RiskTypeAcademic   RiskType = "academic"
	RiskTypeFinancial  RiskType = "financial"
)

// Valid returns true when the risk type is a supported value.
func (t RiskType) Valid() bool {
	switch t {
	case RiskTypeAttendance, RiskTypeAcademic, RiskTypeFinancial:
		return true
	default:
		return false
	}
}

// RiskSeverity orders signals and cases by urgency.
type RiskSeverity string

const (
	SeverityLow      RiskSeverity = "low"
	SeverityMedium   RiskSeverity = "medium"
	SeverityHigh     RiskSeverity = "high"
	SeverityCritical RiskSeverity = "critical"
)

// Valid returns true when the severity is a supported value.
func (s RiskSeverity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	default:
		return false
	}
}

// CaseStatus is the lifecycle state of a risk case.
type CaseStatus string

const (
	CaseStatusOpen       CaseStatus = "open"
	CaseStatusInProgress CaseStatus = "in_progress"
	CaseStatusResolved   CaseStatus = "resolved"
)

// Active reports whether the case still counts against the one-open-case
// invariant for its (student, risk type) key.
func (s CaseStatus) Active() bool {
	return s == CaseStatusOpen || s == CaseStatusInProgress
}

// SystemActor is recorded as opened_by for cases created by reconciliation.
const SystemActor = "system"

// StudentMetrics carries the derived per-student metrics for one
// evaluation. Nil pointer fields mean "no data", which is distinct from
// zero and never triggers a rule.
type StudentMetrics struct {
	StudentID           string     `json:"student_id"`
	AsOf                time.Time  `json:"as_of"`
	AttendanceRate      *float64   `json:"attendance_rate,omitempty"`
	ConsecutiveAbsences int        `json:"consecutive_absences"`
	AcademicAverage     *float64   `json:"academic_average,omitempty"`
	DaysOverdue         int        `json:"days_overdue"`
	OutstandingBalance  float64    `json:"outstanding_balance"`
}

// RiskSignal is the ephemeral output of one classification run. Signals
// are recomputed fresh each run and never persisted.
type RiskSignal struct {
	StudentID  string       `json:"student_id"`
	Type       RiskType     `json:"risk_type"`
	Severity   RiskSeverity `json:"severity"`
	Reason     string       `json:"reason"`
	ComputedAt time.Time    `json:"computed_at"`
}

// RiskCase is the persisted, auditable record tracking one risk over time.
// At most one case per (student_id, risk_type) may be open or in progress.
type RiskCase struct {
	ID        string       `db:"id" json:"id"`
	SchoolID  string       `db:"school_id" json:"school_id"`
	StudentID string       `db:"student_id" json:"student_id"`
	Type      RiskType     `db:"risk_type" json:"risk_type"`
	Severity  RiskSeverity `db:"severity" json:"severity"`
	Status    CaseStatus   `db:"status" json:"status"`
	OpenedBy  string       `db:"opened_by" json:"opened_by"`
	OpenedAt  time.Time    `db:"opened_at" json:"opened_at"`
	ClosedAt  *time.Time   `db:"closed_at" json:"closed_at,omitempty"`
	Notes     *string      `db:"notes" json:"notes,omitempty"`
	UpdatedAt time.Time    `db:"updated_at" json:"updated_at"`
}

// CaseKey identifies the uniqueness scope for open cases.
type CaseKey struct {
	StudentID string
	Type      RiskType
}

// Key returns the case's uniqueness key.
func (c RiskCase) Key() CaseKey {
	return CaseKey{StudentID: c.StudentID, Type: c.Type}
}

// RiskCaseFilter scopes case listing queries.
type RiskCaseFilter struct {
	SchoolID  string
	StudentID string
	Type      RiskType
	Status    CaseStatus
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// ReconcileResult reports the outcome of one reconciliation run. The run
// never rolls back prior case openings: each student is evaluated
// independently, so Opened may be non-empty even when Failed > 0 or the
// deadline expired mid-run.
type ReconcileResult struct {
	SchoolID   string     `json:"school_id"`
	AsOf       time.Time  `json:"as_of"`
	Opened     []RiskCase `json:"opened"`
	Unchanged  []RiskCase `json:"unchanged"`
	Evaluated  int        `json:"evaluated"`
	Failed     int        `json:"failed"`
	Incomplete bool       `json:"incomplete"`
}

// RiskSummaryRow is one aggregation bucket of the per-school summary.
type RiskSummaryRow struct {
	Type     RiskType     `db:"risk_type" json:"risk_type"`
	Severity RiskSeverity `db:"severity" json:"severity"`
	Status   CaseStatus   `db:"status" json:"status"`
	Count    int          `db:"count" json:"count"`
}

// RiskSummary is the cached dashboard read model for one school.
type RiskSummary struct {
	SchoolID    string           `json:"school_id"`
	ActiveCases int              `json:"active_cases"`
	Rows        []RiskSummaryRow `json:"rows"`
	GeneratedAt time.Time        `json:"generated_at"`
}

package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-risk-api/internal/models"
	appErrors "github.com/noah-isme/sma-risk-api/pkg/errors"
)

type attendanceReader interface {
	WindowRecords(ctx context.Context, studentID string, from, to time.Time) ([]models.AttendanceRecord, error)
}

type assessmentReader interface {
	TermScores(ctx context.Context, studentID string, asOf time.Time) ([]float64, error)
}

type invoiceReader interface {
	OutstandingByStudent(ctx context.Context, studentID string) ([]models.Invoice, error)
}

// Attendance weighting: a late day counts as half a present day, an
// excused day is excluded from the denominator entirely.
const lateAttendanceWeight = 0.5

// MetricService derives per-student metrics from raw entity-store records.
// Evaluate is a pure read-and-compute step with no side effects; missing
// data yields nil metric fields, never zeroes.
type MetricService struct {
	attendance  attendanceReader
	assessments assessmentReader
	invoices    invoiceReader
	metrics     *MetricsService
	logger      *zap.Logger
}

// NewMetricService constructs a MetricService.
func NewMetricService(attendance attendanceReader, assessments assessmentReader, invoices invoiceReader, metrics *MetricsService, logger *zap.Logger) *MetricService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MetricService{attendance: attendance, assessments: assessments, invoices: invoices, metrics: metrics, logger: logger}
}

// Evaluate computes the student's metrics over a lookback window ending at
// asOf. All reads share the same asOf cutoff so the metrics reflect one
// consistent snapshot.
func (s *MetricService) Evaluate(ctx context.Context, studentID string, asOf time.Time, lookbackDays int) (*models.StudentMetrics, error) {
	if studentID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student_id is required")
	}
	if lookbackDays <= 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "lookback_days must be positive")
	}
	asOf = asOf.UTC()
	from := asOf.AddDate(0, 0, -(lookbackDays - 1))

	start := time.Now()
	records, err := s.attendance.WindowRecords(ctx, studentID, from, asOf)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "failed to read attendance records")
	}
	scores, err := s.assessments.TermScores(ctx, studentID, asOf)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "failed to read assessment scores")
	}
	invoices, err := s.invoices.OutstandingByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "failed to read invoices")
	}
	if s.metrics != nil {
		s.metrics.ObserveDBQuery("metric_evaluate", time.Since(start))
	}

	result := &models.StudentMetrics{
		StudentID:           studentID,
		AsOf:                asOf,
		AttendanceRate:      attendanceRate(records),
		ConsecutiveAbsences: consecutiveAbsences(records),
		AcademicAverage:     academicAverage(scores),
	}
	for _, invoice := range invoices {
		if days := invoice.DaysOverdue(asOf); days > result.DaysOverdue {
			result.DaysOverdue = days
		}
		result.OutstandingBalance += invoice.Outstanding()
	}
	return result, nil
}

// attendanceRate returns present-equivalent days over recorded days, or
// nil when no countable days exist. "No data" is distinct from "zero
// attendance" and must never collapse to 0.
func attendanceRate(records []models.AttendanceRecord) *float64 {
	var presentEquivalent float64
	var counted int
	for _, record := range records {
		switch record.Status {
		case models.AttendanceStatusPresent:
			presentEquivalent++
			counted++
		case models.AttendanceStatusLate:
			presentEquivalent += lateAttendanceWeight
			counted++
		case models.AttendanceStatusAbsent:
			counted++
		case models.AttendanceStatusExcused:
			// excluded from the denominator
		}
	}
	if counted == 0 {
		return nil
	}
	rate := presentEquivalent / float64(counted)
	return &rate
}

// consecutiveAbsences counts the run of absent days ending at the most
// recent record. Records must be sorted most recent first; any non-absent
// record terminates the run.
func consecutiveAbsences(records []models.AttendanceRecord) int {
	run := 0
	for _, record := range records {
		if record.Status != models.AttendanceStatusAbsent {
			break
		}
		run++
	}
	return run
}

func academicAverage(scores []float64) *float64 {
	if len(scores) == 0 {
		return nil
	}
	var sum float64
	for _, score := range scores {
		sum += score
	}
	avg := sum / float64(len(scores))
	return &avg
}

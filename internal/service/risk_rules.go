package service

import (
	"fmt"

	"github.com/noah-isme/sma-risk-api/internal/models"
	"github.com/noah-isme/sma-risk-api/pkg/config"
)

// Classifier applies threshold rules to student metrics and produces zero
// or more risk signals. The three rules are independent: a student can be
// attendance-risk and financial-risk at the same time.
//
// All thresholds are exclusive on the rate side (strict <) and inclusive
// on the count side (>=), so a student sitting exactly on a rate boundary
// does not trigger.
type Classifier struct {
	cfg config.RiskConfig
}

// NewClassifier constructs a Classifier, falling back to the built-in
// defaults for any unset threshold.
func NewClassifier(cfg config.RiskConfig) *Classifier {
	if cfg.AttendanceRateMin <= 0 {
		cfg.AttendanceRateMin = 0.75
	}
	if cfg.AttendanceRateHigh <= 0 {
		cfg.AttendanceRateHigh = 0.60
	}
	if cfg.AttendanceRateCritical <= 0 {
		cfg.AttendanceRateCritical = 0.50
	}
	if cfg.ConsecutiveAbsenceMin <= 0 {
		cfg.ConsecutiveAbsenceMin = 3
	}
	if cfg.ConsecutiveAbsenceHigh <= 0 {
		cfg.ConsecutiveAbsenceHigh = 5
	}
	if cfg.ConsecutiveAbsenceCritical <= 0 {
		cfg.ConsecutiveAbsenceCritical = 7
	}
	if cfg.AcademicAverageMin <= 0 {
		cfg.AcademicAverageMin = 50.0
	}
	if cfg.AcademicAverageHigh <= 0 {
		cfg.AcademicAverageHigh = 35.0
	}
	if cfg.OverdueDaysMin <= 0 {
		cfg.OverdueDaysMin = 30
	}
	if cfg.OverdueDaysHigh <= 0 {
		cfg.OverdueDaysHigh = 60
	}
	if cfg.OverdueDaysCritical <= 0 {
		cfg.OverdueDaysCritical = 90
	}
	return &Classifier{cfg: cfg}
}

// Classify evaluates every rule against the metrics. Nil metric values are
// skipped explicitly: absence of data is not risk.
func (c *Classifier) Classify(metrics models.StudentMetrics) []models.RiskSignal {
	var signals []models.RiskSignal

	if signal := c.attendanceSignal(metrics); signal != nil {
		signals = append(signals, *signal)
	}
	if signal := c.academicSignal(metrics); signal != nil {
		signals = append(signals, *signal)
	}
	if signal := c.financialSignal(metrics); signal != nil {
		signals = append(signals, *signal)
	}
	return signals
}

func (c *Classifier) attendanceSignal(metrics models.StudentMetrics) *models.RiskSignal {
	rate := metrics.AttendanceRate
	consecutive := metrics.ConsecutiveAbsences

	lowRate := rate != nil && *rate < c.cfg.AttendanceRateMin
	longRun := consecutive >= c.cfg.ConsecutiveAbsenceMin
	if !lowRate && !longRun {
		return nil
	}

	severity := models.SeverityMedium
	switch {
	case (rate != nil && *rate < c.cfg.AttendanceRateCritical) || consecutive >= c.cfg.ConsecutiveAbsenceCritical:
		severity = models.SeverityCritical
	case (rate != nil && *rate < c.cfg.AttendanceRateHigh) || consecutive >= c.cfg.ConsecutiveAbsenceHigh:
		severity = models.SeverityHigh
	}

	var reason string
	switch {
	case lowRate && longRun:
		reason = fmt.Sprintf("attendance rate %.2f below %.2f with %d consecutive absences", *rate, c.cfg.AttendanceRateMin, consecutive)
	case lowRate:
		reason = fmt.Sprintf("attendance rate %.2f below %.2f", *rate, c.cfg.AttendanceRateMin)
	default:
		reason = fmt.Sprintf("%d consecutive absences", consecutive)
	}

	return &models.RiskSignal{
		StudentID:  metrics.StudentID,
		Type:       models.RiskTypeAttendance,
		Severity:   severity,
		Reason:     reason,
		ComputedAt: metrics.AsOf,
	}
}

func (c *Classifier) academicSignal(metrics models.StudentMetrics) *models.RiskSignal {
	avg := metrics.AcademicAverage
	if avg == nil || *avg >= c.cfg.AcademicAverageMin {
		return nil
	}

	severity := models.SeverityMedium
	if *avg < c.cfg.AcademicAverageHigh {
		severity = models.SeverityHigh
	}

	return &models.RiskSignal{
		StudentID:  metrics.StudentID,
		Type:       models.RiskTypeAcademic,
		Severity:   severity,
		Reason:     fmt.Sprintf("academic average %.1f below %.1f", *avg, c.cfg.AcademicAverageMin),
		ComputedAt: metrics.AsOf,
	}
}

func (c *Classifier) financialSignal(metrics models.StudentMetrics) *models.RiskSignal {
	days := metrics.DaysOverdue
	if days < c.cfg.OverdueDaysMin {
		return nil
	}

	severity := models.SeverityMedium
	switch {
	case days >= c.cfg.OverdueDaysCritical:
		severity = models.SeverityCritical
	case days >= c.cfg.OverdueDaysHigh:
		severity = models.SeverityHigh
	}

	return &models.RiskSignal{
		StudentID:  metrics.StudentID,
		Type:       models.RiskTypeFinancial,
		Severity:   severity,
		Reason:     fmt.Sprintf("invoice overdue %d days", days),
		ComputedAt: metrics.AsOf,
	}
}

package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-risk-api/internal/models"
	"github.com/noah-isme/sma-risk-api/pkg/config"
)

func floatPtr(v float64) *float64 { return &v }

func TestClassifyAttendanceRateBoundaryIsExclusive(t *testing.T) {
	c := NewClassifier(config.RiskConfig{})

	onBoundary := models.StudentMetrics{StudentID: "s1", AttendanceRate: floatPtr(0.75)}
	assert.Empty(t, c.Classify(onBoundary))

	below := models.StudentMetrics{StudentID: "s1", AttendanceRate: floatPtr(0.749)}
	signals := c.Classify(below)
	require.Len(t, signals, 1)
	assert.Equal(t, models.RiskTypeAttendance, signals[0].Type)
	assert.Equal(t, models.SeverityMedium, signals[0].Severity)
}

func TestClassifyAttendanceSeverityTiers(t *testing.T) {
	c := NewClassifier(config.RiskConfig{})

	cases := []struct {
		name     string
		rate     float64
		severity models.RiskSeverity
	}{
		{"medium below 0.75", 0.70, models.SeverityMedium},
		{"high below 0.60", 0.55, models.SeverityHigh},
		{"critical below 0.50", 0.45, models.SeverityCritical},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			signals := c.Classify(models.StudentMetrics{StudentID: "s1", AttendanceRate: floatPtr(tc.rate)})
			require.Len(t, signals, 1)
			assert.Equal(t, tc.severity, signals[0].Severity)
		})
	}
}

func TestClassifyConsecutiveAbsenceCountIsInclusive(t *testing.T) {
	c := NewClassifier(config.RiskConfig{})

	assert.Empty(t, c.Classify(models.StudentMetrics{StudentID: "s1", ConsecutiveAbsences: 2}))

	signals := c.Classify(models.StudentMetrics{StudentID: "s1", ConsecutiveAbsences: 3})
	require.Len(t, signals, 1)
	assert.Equal(t, models.RiskTypeAttendance, signals[0].Type)
	assert.Equal(t, models.SeverityMedium, signals[0].Severity)

	signals = c.Classify(models.StudentMetrics{StudentID: "s1", ConsecutiveAbsences: 5})
	require.Len(t, signals, 1)
	assert.Equal(t, models.SeverityHigh, signals[0].Severity)

	signals = c.Classify(models.StudentMetrics{StudentID: "s1", ConsecutiveAbsences: 7})
	require.Len(t, signals, 1)
	assert.Equal(t, models.SeverityCritical, signals[0].Severity)
}

func TestClassifyAttendanceTakesHighestMatchingSeverity(t *testing.T) {
	c := NewClassifier(config.RiskConfig{})

	// Medium-tier rate combined with a critical-tier absence run.
	signals := c.Classify(models.StudentMetrics{
		StudentID:           "s1",
		AttendanceRate:      floatPtr(0.70),
		ConsecutiveAbsences: 8,
	})
	require.Len(t, signals, 1)
	assert.Equal(t, models.SeverityCritical, signals[0].Severity)
}

func TestClassifyAcademic(t *testing.T) {
	c := NewClassifier(config.RiskConfig{})

	assert.Empty(t, c.Classify(models.StudentMetrics{StudentID: "s1", AcademicAverage: floatPtr(50.0)}))

	signals := c.Classify(models.StudentMetrics{StudentID: "s1", AcademicAverage: floatPtr(49.9)})
	require.Len(t, signals, 1)
	assert.Equal(t, models.RiskTypeAcademic, signals[0].Type)
	assert.Equal(t, models.SeverityMedium, signals[0].Severity)

	signals = c.Classify(models.StudentMetrics{StudentID: "s1", AcademicAverage: floatPtr(30.0)})
	require.Len(t, signals, 1)
	assert.Equal(t, models.SeverityHigh, signals[0].Severity)
}

func TestClassifyFinancial(t *testing.T) {
	c := NewClassifier(config.RiskConfig{})

	assert.Empty(t, c.Classify(models.StudentMetrics{StudentID: "s1", DaysOverdue: 29}))

	signals := c.Classify(models.StudentMetrics{StudentID: "s1", DaysOverdue: 45})
	require.Len(t, signals, 1)
	assert.Equal(t, models.RiskTypeFinancial, signals[0].Type)
	assert.Equal(t, models.SeverityHigh, signals[0].Severity)

	signals = c.Classify(models.StudentMetrics{StudentID: "s1", DaysOverdue: 90})
	require.Len(t, signals, 1)
	assert.Equal(t, models.SeverityCritical, signals[0].Severity)
}

func TestClassifyMissingDataProducesNoSignals(t *testing.T) {
	c := NewClassifier(config.RiskConfig{})

	signals := c.Classify(models.StudentMetrics{StudentID: "s1"})
	assert.Empty(t, signals)
}

func TestClassifyIndependentRulesCanStack(t *testing.T) {
	c := NewClassifier(config.RiskConfig{})

	signals := c.Classify(models.StudentMetrics{
		StudentID:       "s1",
		AttendanceRate:  floatPtr(0.40),
		AcademicAverage: floatPtr(20.0),
		DaysOverdue:     100,
	})
	require.Len(t, signals, 3)
	types := map[models.RiskType]models.RiskSeverity{}
	for _, signal := range signals {
		types[signal.Type] = signal.Severity
	}
	assert.Equal(t, models.SeverityCritical, types[models.RiskTypeAttendance])
	assert.Equal(t, models.SeverityHigh, types[models.RiskTypeAcademic])
	assert.Equal(t, models.SeverityCritical, types[models.RiskTypeFinancial])
}

func TestClassifierHonoursConfiguredThresholds(t *testing.T) {
	c := NewClassifier(config.RiskConfig{AttendanceRateMin: 0.90})

	signals := c.Classify(models.StudentMetrics{StudentID: "s1", AttendanceRate: floatPtr(0.85)})
	require.Len(t, signals, 1)
	assert.Equal(t, models.RiskTypeAttendance, signals[0].Type)
}

package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-risk-api/internal/models"
	appErrors "github.com/noah-isme/sma-risk-api/pkg/errors"
)

type summaryRepository interface {
	SummaryBySchool(ctx context.Context, schoolID string) ([]models.RiskSummaryRow, error)
}

// SummaryService serves the per-school risk dashboard read model. Results
// are cached and invalidated whenever a case opens or resolves.
type SummaryService struct {
	repo     summaryRepository
	cache    *CacheService
	metrics  *MetricsService
	cacheTTL time.Duration
	logger   *zap.Logger
}

// NewSummaryService constructs a SummaryService.
func NewSummaryService(repo summaryRepository, cache *CacheService, metrics *MetricsService, cacheTTL time.Duration, logger *zap.Logger) *SummaryService {
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SummaryService{repo: repo, cache: cache, metrics: metrics, cacheTTL: cacheTTL, logger: logger}
}

// SchoolSummary aggregates case counts by type, severity and status. The
// second return value reports whether the payload came from cache.
func (s *SummaryService) SchoolSummary(ctx context.Context, schoolID string) (*models.RiskSummary, bool, error) {
	if schoolID == "" {
		return nil, false, appErrors.Clone(appErrors.ErrValidation, "school_id is required")
	}

	key := summaryCacheKey(schoolID)
	if s.cache != nil {
		var cached models.RiskSummary
		if hit, err := s.cache.Get(ctx, key, &cached); err == nil && hit {
			return &cached, true, nil
		}
	}

	rows, err := s.repo.SummaryBySchool(ctx, schoolID)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to build risk summary")
	}
	summary := &models.RiskSummary{
		SchoolID:    schoolID,
		Rows:        rows,
		GeneratedAt: time.Now().UTC(),
	}
	for _, row := range rows {
		if row.Status.Active() {
			summary.ActiveCases += row.Count
		}
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, summary, s.cacheTTL); err != nil {
			s.logger.Warn("summary cache write failed", zap.String("school_id", schoolID), zap.Error(err))
		}
	}
	return summary, false, nil
}

// SystemStats exposes the process-level counter snapshot.
func (s *SummaryService) SystemStats() models.SystemMetrics {
	if s.metrics == nil {
		return models.SystemMetrics{}
	}
	return s.metrics.Snapshot()
}

package service

import (
	"context"
	"time"

	"github.com/habitloop/backend/internal/models"
)

// ThresholdService maintains adaptive per-metric thresholds from the stream
// of recorded user patterns and answers above/below-threshold queries.
type ThresholdService interface {
	RecordPattern(ctx context.Context, pattern models.UserPattern) error
	GetThreshold(ctx context.Context, userID string, patternType models.PatternType, metric string) (*models.AdaptiveThreshold, error)
	GetUserThresholds(ctx context.Context, userID string) ([]models.AdaptiveThreshold, error)
	IsAboveThreshold(ctx context.Context, userID string, patternType models.PatternType, metric string, value float64) (bool, error)
	IsBelowThreshold(ctx context.Context, userID string, patternType models.PatternType, metric string, value float64) (bool, error)
	GetThresholdRecommendations(ctx context.Context, userID string) ([]models.ThresholdRecommendation, error)
	ClearUserData(ctx context.Context, userID string) error
}

// CrossTabService maintains the TTL cache of cross-feature snapshots with
// debounced refresh and subscriber notification.
type CrossTabService interface {
	SyncCrossTabData(ctx context.Context, userID string) (models.CrossTabData, error)
	GetCachedData(ctx context.Context, key string, out any) (bool, error)
	SetCachedData(ctx context.Context, key string, data any, ttl time.Duration) error
	Subscribe(key string, callback func(models.CrossTabData)) (unsubscribe func())
	GenerateInsights(ctx context.Context, data models.CrossTabData) (*models.CrossTabInsights, error)
	ClearCache(ctx context.Context) error
	GetCacheStats(ctx context.Context) models.CacheStats
}

// InsightService is the pure calculation layer: every method is a function
// of its snapshot argument with no side effects.
type InsightService interface {
	CalculateMetrics(data models.CrossTabData) models.CalculationMetrics
	AnalyzeTrends(data models.CrossTabData, history []models.CrossTabData) models.TrendAnalysis
	GenerateRecommendations(data models.CrossTabData) []models.Recommendation
	GenerateTodayInsight(data models.CrossTabData) (models.TodayInsight, error)
	GenerateWeeklyProgress(data models.CrossTabData) (models.WeeklyProgress, error)
	GenerateLearningInsight(data models.CrossTabData) (models.LearningInsight, error)
	CalculatePerformanceScore(metrics models.CalculationMetrics) int
	GetPerformanceLevel(score int) models.PerformanceLevel
	CalculateImprovementPotential(metrics models.CalculationMetrics) models.ImprovementPotential
}

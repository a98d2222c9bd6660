package repository

import (
	"context"

	"github.com/habitloop/backend/internal/models"
)

// StateRepository is the durable key-value blob store backing the analytics
// engine. Each table (patterns, thresholds, cross-tab cache) is serialized
// as a single blob and overwritten wholesale on every mutating write.
type StateRepository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// HabitStatsRepository fetches the habit feature area's snapshot
type HabitStatsRepository interface {
	GetByUserID(ctx context.Context, userID string) (*models.HabitSummary, error)
}

// LearningStatsRepository fetches the course/library feature area's snapshot
type LearningStatsRepository interface {
	GetByUserID(ctx context.Context, userID string) (*models.LearningSummary, error)
}

// GamificationStatsRepository fetches the points/level feature area's snapshot
type GamificationStatsRepository interface {
	GetByUserID(ctx context.Context, userID string) (*models.GamificationSummary, error)
}

// PreferencesRepository fetches the settings feature area's snapshot
type PreferencesRepository interface {
	GetByUserID(ctx context.Context, userID string) (*models.PreferencesSummary, error)
}

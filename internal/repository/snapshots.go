package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/habitloop/backend/internal/models"
	"github.com/habitloop/backend/pkg/supabase"
)

// The snapshot repositories each read one denormalized per-user stats row
// maintained by the habit/learning/gamification/settings features. They
// report fetch failures to the caller; fallback policy (last good snapshot
// or zero default) lives in the sync path, not here.

type habitStatsRepository struct {
	client *supabase.Client
}

// NewHabitStatsRepository creates a habit stats repository
func NewHabitStatsRepository(client *supabase.Client) HabitStatsRepository {
	return &habitStatsRepository{client: client}
}

func (r *habitStatsRepository) GetByUserID(ctx context.Context, userID string) (*models.HabitSummary, error) {
	return queryOne[models.HabitSummary](r.client, "habit_stats", userID)
}

type learningStatsRepository struct {
	client *supabase.Client
}

// NewLearningStatsRepository creates a learning stats repository
func NewLearningStatsRepository(client *supabase.Client) LearningStatsRepository {
	return &learningStatsRepository{client: client}
}

func (r *learningStatsRepository) GetByUserID(ctx context.Context, userID string) (*models.LearningSummary, error) {
	summary, err := queryOne[models.LearningSummary](r.client, "learning_stats", userID)
	if err != nil {
		return nil, err
	}
	if summary.AppliedTechniques == nil {
		summary.AppliedTechniques = []string{}
	}
	return summary, nil
}

type gamificationStatsRepository struct {
	client *supabase.Client
}

// NewGamificationStatsRepository creates a gamification stats repository
func NewGamificationStatsRepository(client *supabase.Client) GamificationStatsRepository {
	return &gamificationStatsRepository{client: client}
}

func (r *gamificationStatsRepository) GetByUserID(ctx context.Context, userID string) (*models.GamificationSummary, error) {
	summary, err := queryOne[models.GamificationSummary](r.client, "gamification_stats", userID)
	if err != nil {
		return nil, err
	}
	if summary.CurrentLevel < 1 {
		summary.CurrentLevel = 1
	}
	return summary, nil
}

type preferencesRepository struct {
	client *supabase.Client
}

// NewPreferencesRepository creates a user preferences repository
func NewPreferencesRepository(client *supabase.Client) PreferencesRepository {
	return &preferencesRepository{client: client}
}

func (r *preferencesRepository) GetByUserID(ctx context.Context, userID string) (*models.PreferencesSummary, error) {
	summary, err := queryOne[models.PreferencesSummary](r.client, "user_preferences", userID)
	if err != nil {
		return nil, err
	}
	if summary.FocusAreas == nil {
		summary.FocusAreas = []string{}
	}
	return summary, nil
}

// queryOne fetches the single stats row for a user from the given table.
// A missing row is an error: a user with no stats row has not been
// provisioned by the owning feature yet.
func queryOne[T any](client *supabase.Client, table, userID string) (*T, error) {
	body, err := client.Query(table, map[string]interface{}{
		"user_id": fmt.Sprintf("eq.%s", userID),
		"select":  "*",
		"limit":   1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", table, err)
	}

	var rows []T
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s response: %w", table, err)
	}

	if len(rows) == 0 {
		return nil, fmt.Errorf("no %s row for user %s", table, userID)
	}

	return &rows[0], nil
}

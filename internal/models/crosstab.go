package models

import "time"

// HabitSummary is the habit feature area's contribution to a cross-tab snapshot
type HabitSummary struct {
	TodayCompletions     int     `json:"today_completions"`
	TotalHabits          int     `json:"total_habits"`
	CurrentStreak        int     `json:"current_streak"`
	LongestStreak        int     `json:"longest_streak"`
	WeeklyCompletionRate float64 `json:"weekly_completion_rate"`
}

// LearningSummary is the course/library feature area's contribution
type LearningSummary struct {
	CoursesCompleted  int      `json:"courses_completed"`
	TotalCourses      int      `json:"total_courses"`
	AppliedTechniques []string `json:"applied_techniques"`
	LearningStreak    int      `json:"learning_streak"`
}

// GamificationSummary is the points/level feature area's contribution
type GamificationSummary struct {
	CurrentLevel         int `json:"current_level"`
	TotalXP              int `json:"total_xp"`
	AchievementsUnlocked int `json:"achievements_unlocked"`
}

// PreferencesSummary is the settings feature area's contribution
type PreferencesSummary struct {
	PreferredTimeOfDay string   `json:"preferred_time_of_day"`
	DifficultyLevel    string   `json:"difficulty_level"`
	FocusAreas         []string `json:"focus_areas"`
	NotificationStyle  string   `json:"notification_style"`
}

// CrossTabData is a single consistent read of state spanning all four
// feature areas, assembled atomically for downstream analytics. Consumers
// never see a partially populated snapshot: sync either returns a fully
// assembled one or falls back to the last good (or zero-default) snapshot.
type CrossTabData struct {
	Habits       HabitSummary        `json:"habits"`
	Learning     LearningSummary     `json:"learning"`
	Gamification GamificationSummary `json:"gamification"`
	Preferences  PreferencesSummary  `json:"preferences"`
	SyncedAt     time.Time           `json:"synced_at"`
}

// DefaultCrossTabData returns a structurally valid zero snapshot used when
// no cached data exists and a sync cannot complete.
func DefaultCrossTabData() CrossTabData {
	return CrossTabData{
		Habits:   HabitSummary{},
		Learning: LearningSummary{AppliedTechniques: []string{}},
		Gamification: GamificationSummary{
			CurrentLevel: 1,
		},
		Preferences: PreferencesSummary{
			PreferredTimeOfDay: "morning",
			DifficultyLevel:    "beginner",
			FocusAreas:         []string{},
			NotificationStyle:  "gentle",
		},
		SyncedAt: time.Now().UTC(),
	}
}

// ValidationResult reports consistency problems found in a snapshot.
// The validator is advisory: errors and warnings are logged, never fatal.
type ValidationResult struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// CacheStats describes the current state of the cross-tab cache
type CacheStats struct {
	Entries      int       `json:"entries"`
	Keys         []string  `json:"keys"`
	LastSync     time.Time `json:"last_sync"`
	SyncInFlight bool      `json:"sync_in_flight"`
}

package models

import "time"

// CalculationMetrics holds the five composite 0-100 scores derived from a
// cross-tab snapshot. Derived on demand, never persisted.
type CalculationMetrics struct {
	CompletionRate         float64 `json:"completion_rate"`
	StreakEfficiency       float64 `json:"streak_efficiency"`
	LearningImpact         float64 `json:"learning_impact"`
	GamificationEngagement float64 `json:"gamification_engagement"`
	OverallProgress        float64 `json:"overall_progress"`
}

// TrendAnalysis classifies how a user's overall progress is moving.
// Confidence is higher when real history was available for comparison.
type TrendAnalysis struct {
	Direction  Trend    `json:"direction"`
	Magnitude  float64  `json:"magnitude"`
	Confidence float64  `json:"confidence"`
	Factors    []string `json:"factors"`
}

// Recommendation is a ranked, actionable suggestion derived from metrics
type Recommendation struct {
	Priority       Priority `json:"priority"`
	Category       string   `json:"category"`
	Action         string   `json:"action"`
	Reasoning      string   `json:"reasoning"`
	ExpectedImpact float64  `json:"expected_impact"`
}

// TodayInsight is the daily user-facing summary
type TodayInsight struct {
	MainMetric string   `json:"main_metric"`
	NextAction string   `json:"next_action"`
	Motivation string   `json:"motivation"`
	Context    string   `json:"context"`
	Priority   Priority `json:"priority"`
}

// WeeklyProgress is the week-level user-facing summary
type WeeklyProgress struct {
	MainMetric string   `json:"main_metric"`
	NextAction string   `json:"next_action"`
	Motivation string   `json:"motivation"`
	Context    string   `json:"context"`
	Priority   Priority `json:"priority"`
}

// LearningInsight is the course-progress user-facing summary
type LearningInsight struct {
	MainMetric string   `json:"main_metric"`
	NextAction string   `json:"next_action"`
	Motivation string   `json:"motivation"`
	Context    string   `json:"context"`
	Priority   Priority `json:"priority"`
}

// CrossTabInsights bundles the three generated summaries
type CrossTabInsights struct {
	Today    TodayInsight    `json:"today"`
	Weekly   WeeklyProgress  `json:"weekly"`
	Learning LearningInsight `json:"learning"`
}

// PerformanceLevel is the qualitative band for a performance score
type PerformanceLevel string

const (
	PerformanceExcellent        PerformanceLevel = "excellent"
	PerformanceGood             PerformanceLevel = "good"
	PerformanceFair             PerformanceLevel = "fair"
	PerformanceNeedsImprovement PerformanceLevel = "needs_improvement"
)

// ImprovementOpportunity is the weighted headroom left in one metric category
type ImprovementOpportunity struct {
	Category string  `json:"category"`
	Current  float64 `json:"current"`
	Headroom float64 `json:"headroom"`
}

// ImprovementPotential summarizes how much weighted headroom remains and
// which category offers the most of it.
type ImprovementPotential struct {
	Overall        float64                  `json:"overall"`
	TopOpportunity string                   `json:"top_opportunity"`
	Opportunities  []ImprovementOpportunity `json:"opportunities"`
}

// PerformanceReport is the combined score/level/potential response
type PerformanceReport struct {
	Score      int                  `json:"score"`
	Level      PerformanceLevel     `json:"level"`
	Potential  ImprovementPotential `json:"potential"`
	ComputedAt time.Time            `json:"computed_at"`
}

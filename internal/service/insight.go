package service

import (
	"fmt"
	"math"
	"sort"

	"github.com/habitloop/backend/internal/models"
)

// Weight tables for the composite scores. Each table must sum to 1.0.
var (
	progressWeights = compositeWeights{
		Completion:   0.40,
		Streak:       0.25,
		Learning:     0.20,
		Gamification: 0.15,
	}

	performanceWeights = compositeWeights{
		Completion:   0.35,
		Streak:       0.25,
		Learning:     0.25,
		Gamification: 0.15,
	}
)

type compositeWeights struct {
	Completion   float64
	Streak       float64
	Learning     float64
	Gamification float64
}

// Sum returns the total weight; used to assert the tables stay normalized
func (w compositeWeights) Sum() float64 {
	return w.Completion + w.Streak + w.Learning + w.Gamification
}

// Trend classification cutoffs
const (
	trendHighCutoff    = 70.0 // overall progress above this reads as increasing
	trendLowCutoff     = 30.0 // overall progress below this reads as decreasing
	trendDeltaCutoff   = 5.0  // minimum delta vs. history to leave "stable"
	historyConfidence  = 0.8
	baselineConfidence = 0.5
	maxSnapshotConf    = 0.7
)

type insightService struct{}

// NewInsightService creates the stateless insight calculation service
func NewInsightService() InsightService {
	return &insightService{}
}

// =============================================================================
// Composite Metrics
// =============================================================================

func (s *insightService) CalculateMetrics(data models.CrossTabData) models.CalculationMetrics {
	m := models.CalculationMetrics{
		CompletionRate:         completionRate(data.Habits),
		StreakEfficiency:       streakEfficiency(data.Habits),
		LearningImpact:         learningImpact(data.Learning),
		GamificationEngagement: gamificationEngagement(data.Gamification),
	}

	m.OverallProgress = clampScore(
		m.CompletionRate*progressWeights.Completion +
			m.StreakEfficiency*progressWeights.Streak +
			m.LearningImpact*progressWeights.Learning +
			m.GamificationEngagement*progressWeights.Gamification)

	return m
}

func completionRate(h models.HabitSummary) float64 {
	if h.TotalHabits == 0 {
		return 0
	}
	return clampScore(float64(h.TodayCompletions) / float64(h.TotalHabits) * 100)
}

func streakEfficiency(h models.HabitSummary) float64 {
	if h.LongestStreak == 0 {
		return 0
	}
	return clampScore(float64(h.CurrentStreak) / float64(h.LongestStreak) * 100)
}

func learningImpact(l models.LearningSummary) float64 {
	courseProgress := 0.0
	if l.TotalCourses > 0 {
		courseProgress = float64(l.CoursesCompleted) / float64(l.TotalCourses) * 100
	}
	return clampScore(courseProgress + float64(len(l.AppliedTechniques))*10)
}

func gamificationEngagement(g models.GamificationSummary) float64 {
	// Each sub-term is capped at 100 against a fixed denominator:
	// level 10, 5 achievements, 1000 XP.
	levelProgress := math.Min(100, float64(g.CurrentLevel)*10)
	achievementProgress := math.Min(100, float64(g.AchievementsUnlocked)*20)
	xpProgress := math.Min(100, float64(g.TotalXP)/10)

	return clampScore((levelProgress + achievementProgress + xpProgress) / 3)
}

func clampScore(v float64) float64 {
	return math.Max(0, math.Min(100, v))
}

// =============================================================================
// Trend Analysis
// =============================================================================

func (s *insightService) AnalyzeTrends(data models.CrossTabData, history []models.CrossTabData) models.TrendAnalysis {
	current := s.CalculateMetrics(data)

	if len(history) == 0 {
		return analyzeSingleSnapshot(current)
	}

	previous := s.CalculateMetrics(history[len(history)-1])
	delta := current.OverallProgress - previous.OverallProgress

	direction := models.TrendStable
	if delta > trendDeltaCutoff {
		direction = models.TrendIncreasing
	} else if delta < -trendDeltaCutoff {
		direction = models.TrendDecreasing
	}

	return models.TrendAnalysis{
		Direction:  direction,
		Magnitude:  math.Abs(delta),
		Confidence: historyConfidence,
		Factors:    trendFactors(current, previous),
	}
}

// analyzeSingleSnapshot infers a trend from absolute position when no
// history exists. Confidence is deliberately lower than a real comparison.
func analyzeSingleSnapshot(m models.CalculationMetrics) models.TrendAnalysis {
	var direction models.Trend
	var distance float64

	switch {
	case m.OverallProgress > trendHighCutoff:
		direction = models.TrendIncreasing
		distance = m.OverallProgress - trendHighCutoff
	case m.OverallProgress < trendLowCutoff:
		direction = models.TrendDecreasing
		distance = trendLowCutoff - m.OverallProgress
	default:
		direction = models.TrendStable
		distance = math.Min(m.OverallProgress-trendLowCutoff, trendHighCutoff-m.OverallProgress)
	}

	confidence := math.Min(maxSnapshotConf, baselineConfidence+distance/100)

	return models.TrendAnalysis{
		Direction:  direction,
		Magnitude:  distance,
		Confidence: confidence,
		Factors:    snapshotFactors(m),
	}
}

func trendFactors(current, previous models.CalculationMetrics) []string {
	factors := make([]string, 0, 4)

	pairs := []struct {
		name string
		cur  float64
		prev float64
	}{
		{"habit completion", current.CompletionRate, previous.CompletionRate},
		{"streak efficiency", current.StreakEfficiency, previous.StreakEfficiency},
		{"learning impact", current.LearningImpact, previous.LearningImpact},
		{"gamification engagement", current.GamificationEngagement, previous.GamificationEngagement},
	}

	for _, p := range pairs {
		delta := p.cur - p.prev
		if delta > trendDeltaCutoff {
			factors = append(factors, fmt.Sprintf("%s improved by %.0f points", p.name, delta))
		} else if delta < -trendDeltaCutoff {
			factors = append(factors, fmt.Sprintf("%s dropped by %.0f points", p.name, -delta))
		}
	}

	if len(factors) == 0 {
		factors = append(factors, "all metrics holding steady")
	}

	return factors
}

func snapshotFactors(m models.CalculationMetrics) []string {
	factors := make([]string, 0, 4)

	if m.CompletionRate >= trendHighCutoff {
		factors = append(factors, "strong habit completion today")
	} else if m.CompletionRate < trendLowCutoff {
		factors = append(factors, "low habit completion today")
	}
	if m.StreakEfficiency >= trendHighCutoff {
		factors = append(factors, "streak near personal best")
	} else if m.StreakEfficiency < trendLowCutoff {
		factors = append(factors, "streak well below personal best")
	}
	if m.LearningImpact < trendLowCutoff {
		factors = append(factors, "little recent learning activity")
	}
	if m.GamificationEngagement >= trendHighCutoff {
		factors = append(factors, "high gamification engagement")
	}

	if len(factors) == 0 {
		factors = append(factors, "metrics in the middle range")
	}

	return factors
}

// =============================================================================
// Recommendations
// =============================================================================

func (s *insightService) GenerateRecommendations(data models.CrossTabData) []models.Recommendation {
	m := s.CalculateMetrics(data)
	recs := make([]models.Recommendation, 0, 5)

	if m.CompletionRate < 50 {
		recs = append(recs, models.Recommendation{
			Priority:       models.PriorityHigh,
			Category:       "habits",
			Action:         "Complete one habit right now",
			Reasoning:      fmt.Sprintf("Only %.0f%% of today's habits are done", m.CompletionRate),
			ExpectedImpact: 25,
		})
	} else if m.CompletionRate < 80 {
		recs = append(recs, models.Recommendation{
			Priority:       models.PriorityMedium,
			Category:       "habits",
			Action:         "Finish your remaining habits",
			Reasoning:      fmt.Sprintf("You are at %.0f%% completion; a full day is within reach", m.CompletionRate),
			ExpectedImpact: 15,
		})
	}

	if m.StreakEfficiency < 30 {
		recs = append(recs, models.Recommendation{
			Priority:       models.PriorityHigh,
			Category:       "streaks",
			Action:         "Protect your streak with an easy win",
			Reasoning:      "Your current streak is far below your personal best",
			ExpectedImpact: 20,
		})
	}

	if m.LearningImpact < 30 {
		recs = append(recs, models.Recommendation{
			Priority:       models.PriorityMedium,
			Category:       "learning",
			Action:         "Start a course from the library",
			Reasoning:      "Learning activity has been low lately",
			ExpectedImpact: 12,
		})
	}

	if m.GamificationEngagement < 40 {
		recs = append(recs, models.Recommendation{
			Priority:       models.PriorityLow,
			Category:       "gamification",
			Action:         "Check your progress toward the next achievement",
			Reasoning:      "A nearby achievement can make the next habit easier to start",
			ExpectedImpact: 8,
		})
	}

	sort.SliceStable(recs, func(i, j int) bool {
		if recs[i].Priority.Rank() != recs[j].Priority.Rank() {
			return recs[i].Priority.Rank() > recs[j].Priority.Rank()
		}
		return recs[i].ExpectedImpact > recs[j].ExpectedImpact
	})

	return recs
}

// =============================================================================
// Narrative Summaries
// =============================================================================

// The bucket functions below are total: every completion percentage in
// [0, 100] falls into exactly one branch.

func (s *insightService) GenerateTodayInsight(data models.CrossTabData) (models.TodayInsight, error) {
	h := data.Habits

	if h.TotalHabits == 0 {
		return models.TodayInsight{
			MainMetric: "No habits yet",
			NextAction: "Create your first habit",
			Motivation: "Small daily actions compound into big changes",
			Context:    "Your dashboard fills in once you start tracking",
			Priority:   models.PriorityHigh,
		}, nil
	}

	rate := completionRate(h)
	metric := fmt.Sprintf("%d of %d habits completed", h.TodayCompletions, h.TotalHabits)

	switch {
	case rate == 0:
		return models.TodayInsight{
			MainMetric: metric,
			NextAction: "Start with your easiest habit",
			Motivation: "The first one is the hardest; momentum follows",
			Context:    "No habits completed today",
			Priority:   models.PriorityHigh,
		}, nil
	case rate < 30:
		return models.TodayInsight{
			MainMetric: metric,
			NextAction: "Knock out one more habit",
			Motivation: "You have started; keep the chain going",
			Context:    "Early progress today",
			Priority:   models.PriorityHigh,
		}, nil
	case rate < 70:
		return models.TodayInsight{
			MainMetric: metric,
			NextAction: "Push past the halfway mark",
			Motivation: "More than half the day's work can still be yours",
			Context:    "Solid progress today",
			Priority:   models.PriorityMedium,
		}, nil
	case rate < 100:
		return models.TodayInsight{
			MainMetric: metric,
			NextAction: "Finish the last habit for a perfect day",
			Motivation: "You are one step from a clean sweep",
			Context:    "Almost a perfect day",
			Priority:   models.PriorityMedium,
		}, nil
	default:
		return models.TodayInsight{
			MainMetric: metric,
			NextAction: "Enjoy the win and rest up",
			Motivation: "Perfect days build unstoppable streaks",
			Context:    "All habits completed",
			Priority:   models.PriorityLow,
		}, nil
	}
}

func (s *insightService) GenerateWeeklyProgress(data models.CrossTabData) (models.WeeklyProgress, error) {
	h := data.Habits
	rate := clampScore(h.WeeklyCompletionRate)
	metric := fmt.Sprintf("%.0f%% weekly completion", rate)
	streak := fmt.Sprintf("current streak %d days", h.CurrentStreak)

	switch {
	case rate == 0:
		return models.WeeklyProgress{
			MainMetric: metric,
			NextAction: "Pick one habit to restart this week",
			Motivation: "A fresh week is a fresh start",
			Context:    streak,
			Priority:   models.PriorityHigh,
		}, nil
	case rate < 40:
		return models.WeeklyProgress{
			MainMetric: metric,
			NextAction: "Aim for one completed habit each day",
			Motivation: "Consistency beats intensity",
			Context:    streak,
			Priority:   models.PriorityHigh,
		}, nil
	case rate < 75:
		return models.WeeklyProgress{
			MainMetric: metric,
			NextAction: "Target your weakest weekday",
			Motivation: "You are building a dependable routine",
			Context:    streak,
			Priority:   models.PriorityMedium,
		}, nil
	default:
		return models.WeeklyProgress{
			MainMetric: metric,
			NextAction: "Consider raising a habit's difficulty",
			Motivation: "Strong week; you have room to grow",
			Context:    streak,
			Priority:   models.PriorityLow,
		}, nil
	}
}

func (s *insightService) GenerateLearningInsight(data models.CrossTabData) (models.LearningInsight, error) {
	l := data.Learning

	if l.TotalCourses == 0 {
		return models.LearningInsight{
			MainMetric: "No courses started",
			NextAction: "Browse the library for a course",
			Motivation: "Learning a technique makes every habit easier",
			Context:    "The library is waiting",
			Priority:   models.PriorityMedium,
		}, nil
	}

	impact := learningImpact(l)
	metric := fmt.Sprintf("%d of %d courses completed", l.CoursesCompleted, l.TotalCourses)

	switch {
	case impact == 0:
		return models.LearningInsight{
			MainMetric: metric,
			NextAction: "Finish the first lesson of a course",
			Motivation: "Ten minutes of learning counts",
			Context:    "No learning progress yet",
			Priority:   models.PriorityHigh,
		}, nil
	case impact < 30:
		return models.LearningInsight{
			MainMetric: metric,
			NextAction: "Schedule a short learning session",
			Motivation: "You have started; keep the thread alive",
			Context:    fmt.Sprintf("%d techniques applied so far", len(l.AppliedTechniques)),
			Priority:   models.PriorityMedium,
		}, nil
	case impact < 70:
		return models.LearningInsight{
			MainMetric: metric,
			NextAction: "Apply a technique from a recent course",
			Motivation: "Applying is where learning sticks",
			Context:    fmt.Sprintf("%d techniques applied so far", len(l.AppliedTechniques)),
			Priority:   models.PriorityMedium,
		}, nil
	case impact < 100:
		return models.LearningInsight{
			MainMetric: metric,
			NextAction: "Close out the course you are nearest to finishing",
			Motivation: "Completion cements what you learned",
			Context:    fmt.Sprintf("%d techniques applied so far", len(l.AppliedTechniques)),
			Priority:   models.PriorityLow,
		}, nil
	default:
		return models.LearningInsight{
			MainMetric: metric,
			NextAction: "Revisit your favorite technique",
			Motivation: "You have completed everything available",
			Context:    "Full learning progress",
			Priority:   models.PriorityLow,
		}, nil
	}
}

// =============================================================================
// Performance
// =============================================================================

func (s *insightService) CalculatePerformanceScore(m models.CalculationMetrics) int {
	score := m.CompletionRate*performanceWeights.Completion +
		m.StreakEfficiency*performanceWeights.Streak +
		m.LearningImpact*performanceWeights.Learning +
		m.GamificationEngagement*performanceWeights.Gamification

	return int(math.Round(clampScore(score)))
}

func (s *insightService) GetPerformanceLevel(score int) models.PerformanceLevel {
	switch {
	case score >= 80:
		return models.PerformanceExcellent
	case score >= 60:
		return models.PerformanceGood
	case score >= 40:
		return models.PerformanceFair
	default:
		return models.PerformanceNeedsImprovement
	}
}

func (s *insightService) CalculateImprovementPotential(m models.CalculationMetrics) models.ImprovementPotential {
	opportunities := []models.ImprovementOpportunity{
		{Category: "habits", Current: m.CompletionRate, Headroom: (100 - m.CompletionRate) * performanceWeights.Completion},
		{Category: "streaks", Current: m.StreakEfficiency, Headroom: (100 - m.StreakEfficiency) * performanceWeights.Streak},
		{Category: "learning", Current: m.LearningImpact, Headroom: (100 - m.LearningImpact) * performanceWeights.Learning},
		{Category: "gamification", Current: m.GamificationEngagement, Headroom: (100 - m.GamificationEngagement) * performanceWeights.Gamification},
	}

	sort.SliceStable(opportunities, func(i, j int) bool {
		return opportunities[i].Headroom > opportunities[j].Headroom
	})

	overall := 0.0
	for _, o := range opportunities {
		overall += o.Headroom
	}

	return models.ImprovementPotential{
		Overall:        overall,
		TopOpportunity: opportunities[0].Category,
		Opportunities:  opportunities,
	}
}

package service

import (
	"math"
	"testing"

	"github.com/habitloop/backend/internal/models"
)

func middlingSnapshot() models.CrossTabData {
	return models.CrossTabData{
		Habits: models.HabitSummary{
			TodayCompletions: 3,
			TotalHabits:      4,
			CurrentStreak:    5,
			LongestStreak:    10,
		},
		Learning: models.LearningSummary{
			CoursesCompleted:  1,
			TotalCourses:      2,
			AppliedTechniques: []string{"habit stacking", "implementation intentions"},
		},
		Gamification: models.GamificationSummary{
			CurrentLevel:         3,
			TotalXP:              500,
			AchievementsUnlocked: 2,
		},
	}
}

func maxedSnapshot() models.CrossTabData {
	return models.CrossTabData{
		Habits: models.HabitSummary{
			TodayCompletions:     5,
			TotalHabits:          5,
			CurrentStreak:        30,
			LongestStreak:        30,
			WeeklyCompletionRate: 100,
		},
		Learning: models.LearningSummary{
			CoursesCompleted:  3,
			TotalCourses:      3,
			AppliedTechniques: []string{"a", "b", "c"},
		},
		Gamification: models.GamificationSummary{
			CurrentLevel:         10,
			TotalXP:              1000,
			AchievementsUnlocked: 5,
		},
	}
}

func TestWeightTablesSumToOne(t *testing.T) {
	if diff := math.Abs(progressWeights.Sum() - 1.0); diff > 1e-9 {
		t.Errorf("progress weights sum to %v, want 1.0", progressWeights.Sum())
	}
	if diff := math.Abs(performanceWeights.Sum() - 1.0); diff > 1e-9 {
		t.Errorf("performance weights sum to %v, want 1.0", performanceWeights.Sum())
	}
}

func TestCalculateMetrics(t *testing.T) {
	svc := NewInsightService()

	m := svc.CalculateMetrics(middlingSnapshot())

	if m.CompletionRate != 75 {
		t.Errorf("CompletionRate = %v, want 75", m.CompletionRate)
	}
	if m.StreakEfficiency != 50 {
		t.Errorf("StreakEfficiency = %v, want 50", m.StreakEfficiency)
	}
	// 1/2 courses (50) plus two applied techniques (20)
	if m.LearningImpact != 70 {
		t.Errorf("LearningImpact = %v, want 70", m.LearningImpact)
	}
	// (level 30 + achievements 40 + xp 50) / 3
	if m.GamificationEngagement != 40 {
		t.Errorf("GamificationEngagement = %v, want 40", m.GamificationEngagement)
	}
	// 75*.40 + 50*.25 + 70*.20 + 40*.15
	if math.Abs(m.OverallProgress-62.5) > 1e-9 {
		t.Errorf("OverallProgress = %v, want 62.5", m.OverallProgress)
	}
}

func TestCalculateMetricsZeroDenominators(t *testing.T) {
	svc := NewInsightService()

	m := svc.CalculateMetrics(models.CrossTabData{})

	if m.CompletionRate != 0 || m.StreakEfficiency != 0 || m.LearningImpact != 0 ||
		m.GamificationEngagement != 0 || m.OverallProgress != 0 {
		t.Errorf("empty snapshot should score zero everywhere, got %+v", m)
	}
}

func TestCalculateMetricsClamping(t *testing.T) {
	svc := NewInsightService()

	data := models.CrossTabData{
		Habits: models.HabitSummary{
			// Inconsistent upstream data: more completions than habits
			TodayCompletions: 10,
			TotalHabits:      4,
			CurrentStreak:    50,
			LongestStreak:    10,
		},
		Learning: models.LearningSummary{
			CoursesCompleted:  3,
			TotalCourses:      3,
			AppliedTechniques: []string{"a", "b", "c", "d", "e", "f", "g"},
		},
		Gamification: models.GamificationSummary{
			CurrentLevel:         99,
			TotalXP:              100000,
			AchievementsUnlocked: 40,
		},
	}

	m := svc.CalculateMetrics(data)

	if m.CompletionRate != 100 {
		t.Errorf("CompletionRate = %v, want clamped 100", m.CompletionRate)
	}
	if m.StreakEfficiency != 100 {
		t.Errorf("StreakEfficiency = %v, want clamped 100", m.StreakEfficiency)
	}
	if m.LearningImpact != 100 {
		t.Errorf("LearningImpact = %v, want clamped 100", m.LearningImpact)
	}
	if m.GamificationEngagement != 100 {
		t.Errorf("GamificationEngagement = %v, want clamped 100", m.GamificationEngagement)
	}
	if m.OverallProgress != 100 {
		t.Errorf("OverallProgress = %v, want 100", m.OverallProgress)
	}
}

func TestAnalyzeTrendsWithHistory(t *testing.T) {
	svc := NewInsightService()

	t.Run("improvement beyond cutoff reads increasing", func(t *testing.T) {
		analysis := svc.AnalyzeTrends(middlingSnapshot(), []models.CrossTabData{{}})

		if analysis.Direction != models.TrendIncreasing {
			t.Errorf("Direction = %v, want increasing", analysis.Direction)
		}
		if math.Abs(analysis.Magnitude-62.5) > 1e-9 {
			t.Errorf("Magnitude = %v, want 62.5", analysis.Magnitude)
		}
		if analysis.Confidence != 0.8 {
			t.Errorf("Confidence = %v, want 0.8", analysis.Confidence)
		}
		if len(analysis.Factors) == 0 {
			t.Error("expected per-metric factors for a large improvement")
		}
	})

	t.Run("identical snapshots read stable", func(t *testing.T) {
		data := middlingSnapshot()
		analysis := svc.AnalyzeTrends(data, []models.CrossTabData{data})

		if analysis.Direction != models.TrendStable {
			t.Errorf("Direction = %v, want stable", analysis.Direction)
		}
		if analysis.Magnitude != 0 {
			t.Errorf("Magnitude = %v, want 0", analysis.Magnitude)
		}
		if len(analysis.Factors) != 1 || analysis.Factors[0] != "all metrics holding steady" {
			t.Errorf("Factors = %v", analysis.Factors)
		}
	})

	t.Run("decline beyond cutoff reads decreasing", func(t *testing.T) {
		analysis := svc.AnalyzeTrends(models.CrossTabData{}, []models.CrossTabData{middlingSnapshot()})

		if analysis.Direction != models.TrendDecreasing {
			t.Errorf("Direction = %v, want decreasing", analysis.Direction)
		}
	})

	t.Run("only latest history entry is compared", func(t *testing.T) {
		history := []models.CrossTabData{maxedSnapshot(), middlingSnapshot()}
		analysis := svc.AnalyzeTrends(middlingSnapshot(), history)

		if analysis.Direction != models.TrendStable {
			t.Errorf("Direction = %v, want stable against latest entry", analysis.Direction)
		}
	})
}

func TestAnalyzeTrendsSingleSnapshot(t *testing.T) {
	svc := NewInsightService()

	t.Run("high overall progress reads increasing", func(t *testing.T) {
		analysis := svc.AnalyzeTrends(maxedSnapshot(), nil)

		if analysis.Direction != models.TrendIncreasing {
			t.Errorf("Direction = %v, want increasing", analysis.Direction)
		}
		if analysis.Confidence != 0.7 {
			t.Errorf("Confidence = %v, want capped 0.7", analysis.Confidence)
		}
	})

	t.Run("low overall progress reads decreasing", func(t *testing.T) {
		analysis := svc.AnalyzeTrends(models.CrossTabData{}, nil)

		if analysis.Direction != models.TrendDecreasing {
			t.Errorf("Direction = %v, want decreasing", analysis.Direction)
		}
		if analysis.Magnitude != 30 {
			t.Errorf("Magnitude = %v, want 30", analysis.Magnitude)
		}
	})

	t.Run("middle range reads stable with modest confidence", func(t *testing.T) {
		analysis := svc.AnalyzeTrends(middlingSnapshot(), nil)

		if analysis.Direction != models.TrendStable {
			t.Errorf("Direction = %v, want stable", analysis.Direction)
		}
		// Distance to the nearer cutoff is 7.5, so 0.5 + 7.5/100
		if math.Abs(analysis.Confidence-0.575) > 1e-9 {
			t.Errorf("Confidence = %v, want 0.575", analysis.Confidence)
		}
		if analysis.Confidence >= 0.8 {
			t.Error("snapshot-only confidence must stay below history confidence")
		}
	})
}

func TestGenerateRecommendationsOrdering(t *testing.T) {
	svc := NewInsightService()

	recs := svc.GenerateRecommendations(models.CrossTabData{})
	if len(recs) != 4 {
		t.Fatalf("expected 4 recommendations for an empty snapshot, got %d", len(recs))
	}

	wantCategories := []string{"habits", "streaks", "learning", "gamification"}
	for i, want := range wantCategories {
		if recs[i].Category != want {
			t.Errorf("recs[%d].Category = %q, want %q", i, recs[i].Category, want)
		}
	}

	for i := 1; i < len(recs); i++ {
		prev, cur := recs[i-1], recs[i]
		if cur.Priority.Rank() > prev.Priority.Rank() {
			t.Errorf("recommendations out of priority order at %d: %v after %v", i, cur.Priority, prev.Priority)
		}
		if cur.Priority.Rank() == prev.Priority.Rank() && cur.ExpectedImpact > prev.ExpectedImpact {
			t.Errorf("recommendations out of impact order at %d", i)
		}
	}
}

func TestGenerateRecommendationsQuietWhenStrong(t *testing.T) {
	svc := NewInsightService()

	recs := svc.GenerateRecommendations(maxedSnapshot())
	if len(recs) != 0 {
		t.Errorf("expected no recommendations for a maxed snapshot, got %v", recs)
	}
}

func TestGenerateTodayInsightBuckets(t *testing.T) {
	svc := NewInsightService()

	tests := []struct {
		name         string
		completions  int
		total        int
		wantPriority models.Priority
		wantContext  string
	}{
		{"no habits configured", 0, 0, models.PriorityHigh, "Your dashboard fills in once you start tracking"},
		{"nothing done yet", 0, 4, models.PriorityHigh, "No habits completed today"},
		{"early progress", 1, 4, models.PriorityHigh, "Early progress today"},
		{"solid progress", 2, 4, models.PriorityMedium, "Solid progress today"},
		{"almost done", 3, 4, models.PriorityMedium, "Almost a perfect day"},
		{"perfect day", 4, 4, models.PriorityLow, "All habits completed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := models.CrossTabData{
				Habits: models.HabitSummary{
					TodayCompletions: tt.completions,
					TotalHabits:      tt.total,
				},
			}

			insight, err := svc.GenerateTodayInsight(data)
			if err != nil {
				t.Fatalf("GenerateTodayInsight failed: %v", err)
			}
			if insight.Priority != tt.wantPriority {
				t.Errorf("Priority = %v, want %v", insight.Priority, tt.wantPriority)
			}
			if insight.Context != tt.wantContext {
				t.Errorf("Context = %q, want %q", insight.Context, tt.wantContext)
			}
			if insight.NextAction == "" || insight.Motivation == "" {
				t.Error("insight must always carry a next action and motivation")
			}
		})
	}
}

func TestGenerateWeeklyProgressBuckets(t *testing.T) {
	svc := NewInsightService()

	tests := []struct {
		name         string
		rate         float64
		wantPriority models.Priority
	}{
		{"zero week", 0, models.PriorityHigh},
		{"weak week", 25, models.PriorityHigh},
		{"building week", 60, models.PriorityMedium},
		{"strong week", 90, models.PriorityLow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := models.CrossTabData{
				Habits: models.HabitSummary{WeeklyCompletionRate: tt.rate, CurrentStreak: 3},
			}

			progress, err := svc.GenerateWeeklyProgress(data)
			if err != nil {
				t.Fatalf("GenerateWeeklyProgress failed: %v", err)
			}
			if progress.Priority != tt.wantPriority {
				t.Errorf("Priority = %v, want %v", progress.Priority, tt.wantPriority)
			}
			if progress.Context != "current streak 3 days" {
				t.Errorf("Context = %q", progress.Context)
			}
		})
	}
}

func TestGenerateLearningInsightBuckets(t *testing.T) {
	svc := NewInsightService()

	t.Run("no courses", func(t *testing.T) {
		insight, err := svc.GenerateLearningInsight(models.CrossTabData{})
		if err != nil {
			t.Fatalf("GenerateLearningInsight failed: %v", err)
		}
		if insight.Priority != models.PriorityMedium {
			t.Errorf("Priority = %v, want medium", insight.Priority)
		}
		if insight.MainMetric != "No courses started" {
			t.Errorf("MainMetric = %q", insight.MainMetric)
		}
	})

	t.Run("courses but no progress", func(t *testing.T) {
		data := models.CrossTabData{
			Learning: models.LearningSummary{TotalCourses: 3},
		}
		insight, err := svc.GenerateLearningInsight(data)
		if err != nil {
			t.Fatalf("GenerateLearningInsight failed: %v", err)
		}
		if insight.Priority != models.PriorityHigh {
			t.Errorf("Priority = %v, want high", insight.Priority)
		}
	})

	t.Run("full progress", func(t *testing.T) {
		data := models.CrossTabData{
			Learning: models.LearningSummary{
				CoursesCompleted: 3,
				TotalCourses:     3,
			},
		}
		insight, err := svc.GenerateLearningInsight(data)
		if err != nil {
			t.Fatalf("GenerateLearningInsight failed: %v", err)
		}
		if insight.Priority != models.PriorityLow {
			t.Errorf("Priority = %v, want low", insight.Priority)
		}
		if insight.MainMetric != "3 of 3 courses completed" {
			t.Errorf("MainMetric = %q", insight.MainMetric)
		}
	})
}

func TestPerformanceScoreAndLevel(t *testing.T) {
	svc := NewInsightService()

	metrics := models.CalculationMetrics{
		CompletionRate:         75,
		StreakEfficiency:       50,
		LearningImpact:         70,
		GamificationEngagement: 40,
	}

	// 75*.35 + 50*.25 + 70*.25 + 40*.15 = 62.25, rounded to 62
	score := svc.CalculatePerformanceScore(metrics)
	if score != 62 {
		t.Errorf("score = %d, want 62", score)
	}

	levels := []struct {
		score int
		want  models.PerformanceLevel
	}{
		{100, models.PerformanceExcellent},
		{80, models.PerformanceExcellent},
		{79, models.PerformanceGood},
		{60, models.PerformanceGood},
		{59, models.PerformanceFair},
		{40, models.PerformanceFair},
		{39, models.PerformanceNeedsImprovement},
		{0, models.PerformanceNeedsImprovement},
	}

	for _, tt := range levels {
		if got := svc.GetPerformanceLevel(tt.score); got != tt.want {
			t.Errorf("GetPerformanceLevel(%d) = %v, want %v", tt.score, got, tt.want)
		}
	}
}

func TestCalculateImprovementPotential(t *testing.T) {
	svc := NewInsightService()

	t.Run("all headroom when everything is zero", func(t *testing.T) {
		potential := svc.CalculateImprovementPotential(models.CalculationMetrics{})

		if math.Abs(potential.Overall-100) > 1e-9 {
			t.Errorf("Overall = %v, want 100", potential.Overall)
		}
		if potential.TopOpportunity != "habits" {
			t.Errorf("TopOpportunity = %q, want habits", potential.TopOpportunity)
		}
		if len(potential.Opportunities) != 4 {
			t.Fatalf("expected 4 opportunities, got %d", len(potential.Opportunities))
		}
	})

	t.Run("maxed category drops out of the top spot", func(t *testing.T) {
		potential := svc.CalculateImprovementPotential(models.CalculationMetrics{
			CompletionRate: 100,
		})

		if potential.TopOpportunity == "habits" {
			t.Error("habits has no headroom and must not lead")
		}
		if math.Abs(potential.Overall-65) > 1e-9 {
			t.Errorf("Overall = %v, want 65", potential.Overall)
		}
	})

	t.Run("no headroom at all", func(t *testing.T) {
		potential := svc.CalculateImprovementPotential(models.CalculationMetrics{
			CompletionRate:         100,
			StreakEfficiency:       100,
			LearningImpact:         100,
			GamificationEngagement: 100,
		})

		if potential.Overall != 0 {
			t.Errorf("Overall = %v, want 0", potential.Overall)
		}
	})
}

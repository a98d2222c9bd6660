package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/habitloop/backend/internal/config"
	"github.com/habitloop/backend/internal/logger"
	"github.com/habitloop/backend/internal/models"
)

// Stub snapshot repositories with call counting and injectable failures

type stubHabitRepo struct {
	summary models.HabitSummary
	err     error
	delay   time.Duration
	calls   int32
}

func (r *stubHabitRepo) GetByUserID(ctx context.Context, userID string) (*models.HabitSummary, error) {
	atomic.AddInt32(&r.calls, 1)
	if r.delay > 0 {
		time.Sleep(r.delay)
	}
	if r.err != nil {
		return nil, r.err
	}
	out := r.summary
	return &out, nil
}

type stubLearningRepo struct {
	summary models.LearningSummary
	err     error
}

func (r *stubLearningRepo) GetByUserID(ctx context.Context, userID string) (*models.LearningSummary, error) {
	if r.err != nil {
		return nil, r.err
	}
	out := r.summary
	return &out, nil
}

type stubGamificationRepo struct {
	summary models.GamificationSummary
	err     error
}

func (r *stubGamificationRepo) GetByUserID(ctx context.Context, userID string) (*models.GamificationSummary, error) {
	if r.err != nil {
		return nil, r.err
	}
	out := r.summary
	return &out, nil
}

type stubPreferencesRepo struct {
	summary models.PreferencesSummary
	err     error
}

func (r *stubPreferencesRepo) GetByUserID(ctx context.Context, userID string) (*models.PreferencesSummary, error) {
	if r.err != nil {
		return nil, r.err
	}
	out := r.summary
	return &out, nil
}

type crossTabFixture struct {
	habits       *stubHabitRepo
	learning     *stubLearningRepo
	gamification *stubGamificationRepo
	preferences  *stubPreferencesRepo
	stateRepo    *memStateRepo
	svc          CrossTabService
}

func newCrossTabFixture(cfg config.AnalyticsConfig) *crossTabFixture {
	f := &crossTabFixture{
		habits: &stubHabitRepo{summary: models.HabitSummary{
			TodayCompletions:     3,
			TotalHabits:          4,
			CurrentStreak:        5,
			LongestStreak:        10,
			WeeklyCompletionRate: 75,
		}},
		learning: &stubLearningRepo{summary: models.LearningSummary{
			CoursesCompleted:  1,
			TotalCourses:      2,
			AppliedTechniques: []string{"habit stacking"},
			LearningStreak:    3,
		}},
		gamification: &stubGamificationRepo{summary: models.GamificationSummary{
			CurrentLevel:         3,
			TotalXP:              500,
			AchievementsUnlocked: 2,
		}},
		preferences: &stubPreferencesRepo{summary: models.PreferencesSummary{
			PreferredTimeOfDay: "morning",
			DifficultyLevel:    "intermediate",
			FocusAreas:         []string{"fitness"},
			NotificationStyle:  "gentle",
		}},
		stateRepo: newMemStateRepo(),
	}

	f.svc = NewCrossTabService(
		cfg,
		f.habits,
		f.learning,
		f.gamification,
		f.preferences,
		f.stateRepo,
		NewInsightService(),
		logger.NewSlogLogger(logger.Config{Level: logger.LevelError}),
	)
	return f
}

func crossTabTestConfig() config.AnalyticsConfig {
	cfg := testAnalyticsConfig()
	cfg.SyncInterval = 0 // no debounce unless a test opts in
	cfg.CacheTTL = 5 * time.Minute
	return cfg
}

func TestSyncAssemblesAndCachesSnapshot(t *testing.T) {
	f := newCrossTabFixture(crossTabTestConfig())
	ctx := context.Background()

	data, err := f.svc.SyncCrossTabData(ctx, "u1")
	if err != nil {
		t.Fatalf("SyncCrossTabData failed: %v", err)
	}
	if data.Habits.TodayCompletions != 3 || data.Learning.TotalCourses != 2 {
		t.Errorf("unexpected snapshot: %+v", data)
	}
	if data.SyncedAt.IsZero() {
		t.Error("SyncedAt not set")
	}

	var cached models.CrossTabData
	hit, err := f.svc.GetCachedData(ctx, CrossTabCacheKey("u1"), &cached)
	if err != nil {
		t.Fatalf("GetCachedData failed: %v", err)
	}
	if !hit {
		t.Fatal("expected cache hit after sync")
	}
	if cached.Habits != data.Habits {
		t.Errorf("cached habits %+v differ from synced %+v", cached.Habits, data.Habits)
	}
}

func TestSyncDebouncedByMinInterval(t *testing.T) {
	cfg := crossTabTestConfig()
	cfg.SyncInterval = time.Hour
	f := newCrossTabFixture(cfg)
	ctx := context.Background()

	if _, err := f.svc.SyncCrossTabData(ctx, "u1"); err != nil {
		t.Fatalf("first sync failed: %v", err)
	}
	if _, err := f.svc.SyncCrossTabData(ctx, "u1"); err != nil {
		t.Fatalf("second sync failed: %v", err)
	}

	if calls := atomic.LoadInt32(&f.habits.calls); calls != 1 {
		t.Errorf("expected 1 fetch fan-out, got %d", calls)
	}
}

func TestConcurrentSyncsCollapseOntoOneFetch(t *testing.T) {
	f := newCrossTabFixture(crossTabTestConfig())
	f.habits.delay = 50 * time.Millisecond
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make([]models.CrossTabData, 2)
	errs := make([]error, 2)

	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], errs[0] = f.svc.SyncCrossTabData(ctx, "u1")
	}()

	// Let the first call claim the in-flight slot before the second starts
	time.Sleep(10 * time.Millisecond)

	wg.Add(1)
	go func() {
		defer wg.Done()
		results[1], errs[1] = f.svc.SyncCrossTabData(ctx, "u1")
	}()
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("sync %d failed: %v", i, err)
		}
	}
	if calls := atomic.LoadInt32(&f.habits.calls); calls != 1 {
		t.Errorf("expected 1 fetch fan-out, got %d", calls)
	}
	if results[0].SyncedAt != results[1].SyncedAt {
		t.Errorf("callers received different snapshots: %v vs %v",
			results[0].SyncedAt, results[1].SyncedAt)
	}
}

func TestSyncFailureFallsBackToDefault(t *testing.T) {
	f := newCrossTabFixture(crossTabTestConfig())
	f.habits.err = errors.New("habit store unavailable")

	data, err := f.svc.SyncCrossTabData(context.Background(), "u1")
	if err != nil {
		t.Fatalf("expected swallowed fetch failure, got %v", err)
	}

	// Never a partial snapshot: every field comes from the zero default
	if data.Gamification.CurrentLevel != 1 {
		t.Errorf("CurrentLevel = %d, want default 1", data.Gamification.CurrentLevel)
	}
	if data.Preferences.PreferredTimeOfDay != "morning" {
		t.Errorf("PreferredTimeOfDay = %q, want default morning", data.Preferences.PreferredTimeOfDay)
	}
	if data.Learning.TotalCourses != 0 {
		t.Errorf("partial snapshot leaked: %+v", data.Learning)
	}
}

func TestSyncFailureFallsBackToLastGoodSnapshot(t *testing.T) {
	f := newCrossTabFixture(crossTabTestConfig())
	ctx := context.Background()

	good, err := f.svc.SyncCrossTabData(ctx, "u1")
	if err != nil {
		t.Fatalf("first sync failed: %v", err)
	}

	f.habits.err = errors.New("habit store unavailable")

	fallback, err := f.svc.SyncCrossTabData(ctx, "u1")
	if err != nil {
		t.Fatalf("expected swallowed fetch failure, got %v", err)
	}
	if fallback.Habits != good.Habits {
		t.Errorf("fallback %+v differs from last good snapshot %+v", fallback.Habits, good.Habits)
	}
}

func TestCacheEntryExpiresOnRead(t *testing.T) {
	f := newCrossTabFixture(crossTabTestConfig())
	ctx := context.Background()

	if err := f.svc.SetCachedData(ctx, "scratch", map[string]int{"n": 1}, time.Millisecond); err != nil {
		t.Fatalf("SetCachedData failed: %v", err)
	}

	time.Sleep(10 * time.Millisecond)

	var out map[string]int
	hit, err := f.svc.GetCachedData(ctx, "scratch", &out)
	if err != nil {
		t.Fatalf("GetCachedData failed: %v", err)
	}
	if hit {
		t.Error("expected expired entry to miss")
	}

	// Expiry-on-read evicts, so the entry is gone from the stats too
	stats := f.svc.GetCacheStats(ctx)
	if stats.Entries != 0 {
		t.Errorf("Entries = %d, want 0 after eviction", stats.Entries)
	}

	// Reading an expired key twice behaves the same both times
	hit, err = f.svc.GetCachedData(ctx, "scratch", &out)
	if err != nil || hit {
		t.Errorf("second read: hit=%v err=%v, want miss with no error", hit, err)
	}
}

func TestSubscriberPanicIsolation(t *testing.T) {
	f := newCrossTabFixture(crossTabTestConfig())
	ctx := context.Background()
	key := CrossTabCacheKey("u1")

	var received int32
	f.svc.Subscribe(key, func(models.CrossTabData) {
		panic("misbehaving subscriber")
	})
	f.svc.Subscribe(key, func(data models.CrossTabData) {
		atomic.AddInt32(&received, 1)
	})

	if _, err := f.svc.SyncCrossTabData(ctx, "u1"); err != nil {
		t.Fatalf("SyncCrossTabData failed: %v", err)
	}

	if got := atomic.LoadInt32(&received); got != 1 {
		t.Errorf("surviving subscriber received %d notifications, want 1", got)
	}
}

func TestUnsubscribeStopsNotifications(t *testing.T) {
	f := newCrossTabFixture(crossTabTestConfig())
	ctx := context.Background()
	key := CrossTabCacheKey("u1")

	var received int32
	unsubscribe := f.svc.Subscribe(key, func(models.CrossTabData) {
		atomic.AddInt32(&received, 1)
	})

	if _, err := f.svc.SyncCrossTabData(ctx, "u1"); err != nil {
		t.Fatalf("SyncCrossTabData failed: %v", err)
	}
	unsubscribe()
	if _, err := f.svc.SyncCrossTabData(ctx, "u1"); err != nil {
		t.Fatalf("SyncCrossTabData failed: %v", err)
	}

	if got := atomic.LoadInt32(&received); got != 1 {
		t.Errorf("received %d notifications, want 1 (none after unsubscribe)", got)
	}
}

func TestNoNotificationOnFailedSync(t *testing.T) {
	f := newCrossTabFixture(crossTabTestConfig())
	f.habits.err = errors.New("habit store unavailable")
	key := CrossTabCacheKey("u1")

	var received int32
	f.svc.Subscribe(key, func(models.CrossTabData) {
		atomic.AddInt32(&received, 1)
	})

	if _, err := f.svc.SyncCrossTabData(context.Background(), "u1"); err != nil {
		t.Fatalf("SyncCrossTabData failed: %v", err)
	}

	if got := atomic.LoadInt32(&received); got != 0 {
		t.Errorf("received %d notifications for a failed sync, want 0", got)
	}
}

func TestGenerateInsightsFromSnapshot(t *testing.T) {
	f := newCrossTabFixture(crossTabTestConfig())
	ctx := context.Background()

	data, err := f.svc.SyncCrossTabData(ctx, "u1")
	if err != nil {
		t.Fatalf("SyncCrossTabData failed: %v", err)
	}

	insights, err := f.svc.GenerateInsights(ctx, data)
	if err != nil {
		t.Fatalf("GenerateInsights failed: %v", err)
	}
	if insights.Today.MainMetric != "3 of 4 habits completed" {
		t.Errorf("Today.MainMetric = %q", insights.Today.MainMetric)
	}
	if insights.Weekly.MainMetric != "75% weekly completion" {
		t.Errorf("Weekly.MainMetric = %q", insights.Weekly.MainMetric)
	}
	if insights.Learning.MainMetric != "1 of 2 courses completed" {
		t.Errorf("Learning.MainMetric = %q", insights.Learning.MainMetric)
	}
}

// failingInsightService wraps the real service but fails one generator to
// verify that GenerateInsights propagates instead of isolating failures.
type failingInsightService struct {
	InsightService
}

func (f *failingInsightService) GenerateWeeklyProgress(models.CrossTabData) (models.WeeklyProgress, error) {
	return models.WeeklyProgress{}, errors.New("weekly generator broken")
}

func TestGenerateInsightsPropagatesGeneratorFailure(t *testing.T) {
	f := newCrossTabFixture(crossTabTestConfig())
	svc := NewCrossTabService(
		crossTabTestConfig(),
		f.habits,
		f.learning,
		f.gamification,
		f.preferences,
		newMemStateRepo(),
		&failingInsightService{InsightService: NewInsightService()},
		logger.NewSlogLogger(logger.Config{Level: logger.LevelError}),
	)

	_, err := svc.GenerateInsights(context.Background(), models.DefaultCrossTabData())
	if err == nil {
		t.Fatal("expected generator failure to propagate, got nil")
	}
}

func TestClearCache(t *testing.T) {
	f := newCrossTabFixture(crossTabTestConfig())
	ctx := context.Background()

	if _, err := f.svc.SyncCrossTabData(ctx, "u1"); err != nil {
		t.Fatalf("SyncCrossTabData failed: %v", err)
	}
	if err := f.svc.ClearCache(ctx); err != nil {
		t.Fatalf("ClearCache failed: %v", err)
	}

	stats := f.svc.GetCacheStats(ctx)
	if stats.Entries != 0 {
		t.Errorf("Entries = %d, want 0", stats.Entries)
	}

	var out models.CrossTabData
	hit, err := f.svc.GetCachedData(ctx, CrossTabCacheKey("u1"), &out)
	if err != nil || hit {
		t.Errorf("hit=%v err=%v, want miss with no error", hit, err)
	}
}

func TestCacheSurvivesRestart(t *testing.T) {
	cfg := crossTabTestConfig()
	f := newCrossTabFixture(cfg)
	ctx := context.Background()

	synced, err := f.svc.SyncCrossTabData(ctx, "u1")
	if err != nil {
		t.Fatalf("SyncCrossTabData failed: %v", err)
	}

	second := NewCrossTabService(
		cfg,
		f.habits,
		f.learning,
		f.gamification,
		f.preferences,
		f.stateRepo,
		NewInsightService(),
		logger.NewSlogLogger(logger.Config{Level: logger.LevelError}),
	)

	var cached models.CrossTabData
	hit, err := second.GetCachedData(ctx, CrossTabCacheKey("u1"), &cached)
	if err != nil {
		t.Fatalf("GetCachedData failed: %v", err)
	}
	if !hit {
		t.Fatal("expected cache hydrated from durable state")
	}
	if cached.Habits != synced.Habits {
		t.Errorf("hydrated habits %+v differ from synced %+v", cached.Habits, synced.Habits)
	}
}

func TestCacheStatsHydratedFromDurableState(t *testing.T) {
	cfg := crossTabTestConfig()
	f := newCrossTabFixture(cfg)
	ctx := context.Background()

	if _, err := f.svc.SyncCrossTabData(ctx, "u1"); err != nil {
		t.Fatalf("SyncCrossTabData failed: %v", err)
	}

	second := NewCrossTabService(
		cfg,
		f.habits,
		f.learning,
		f.gamification,
		f.preferences,
		f.stateRepo,
		NewInsightService(),
		logger.NewSlogLogger(logger.Config{Level: logger.LevelError}),
	)

	// Stats as the very first call must still see the persisted entries
	stats := second.GetCacheStats(ctx)
	if stats.Entries != 1 {
		t.Fatalf("Entries = %d, want 1 hydrated from durable state", stats.Entries)
	}
	if len(stats.Keys) != 1 || stats.Keys[0] != CrossTabCacheKey("u1") {
		t.Errorf("Keys = %v, want [%s]", stats.Keys, CrossTabCacheKey("u1"))
	}
}

func TestValidateCrossTabData(t *testing.T) {
	valid := models.DefaultCrossTabData()
	valid.Preferences.FocusAreas = []string{"fitness"}

	tests := []struct {
		name       string
		mutate     func(*models.CrossTabData)
		wantValid  bool
		wantErrors int
	}{
		{
			name:      "default snapshot is valid",
			mutate:    func(*models.CrossTabData) {},
			wantValid: true,
		},
		{
			name: "completions exceed habits",
			mutate: func(d *models.CrossTabData) {
				d.Habits.TodayCompletions = 5
				d.Habits.TotalHabits = 3
			},
			wantValid:  false,
			wantErrors: 1,
		},
		{
			name: "completed courses exceed total",
			mutate: func(d *models.CrossTabData) {
				d.Learning.CoursesCompleted = 4
				d.Learning.TotalCourses = 2
			},
			wantValid:  false,
			wantErrors: 1,
		},
		{
			name: "level below one",
			mutate: func(d *models.CrossTabData) {
				d.Gamification.CurrentLevel = 0
			},
			wantValid:  false,
			wantErrors: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := valid
			tt.mutate(&data)

			result := ValidateCrossTabData(data)
			if result.Valid != tt.wantValid {
				t.Errorf("Valid = %v, want %v (errors: %v)", result.Valid, tt.wantValid, result.Errors)
			}
			if len(result.Errors) != tt.wantErrors {
				t.Errorf("got %d errors, want %d: %v", len(result.Errors), tt.wantErrors, result.Errors)
			}
		})
	}
}

func TestValidateCrossTabDataWarningsAreAdvisory(t *testing.T) {
	data := models.DefaultCrossTabData()
	data.Preferences.FocusAreas = nil
	data.Preferences.PreferredTimeOfDay = ""

	result := ValidateCrossTabData(data)
	if !result.Valid {
		t.Errorf("warnings must not invalidate a snapshot: %v", result.Errors)
	}
	if len(result.Warnings) == 0 {
		t.Error("expected warnings for missing optional fields")
	}
}

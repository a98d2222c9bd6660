package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/habitloop/backend/internal/config"
	"github.com/habitloop/backend/internal/logger"
	"github.com/habitloop/backend/internal/models"
	"github.com/habitloop/backend/internal/repository"
)

// stateCrossTabKey is the durable blob holding the serialized cache
const stateCrossTabKey = "crosstab_cache"

// CrossTabCacheKey returns the cache/notification key for a user's snapshot
func CrossTabCacheKey(userID string) string {
	return "cross_tab_data|" + userID
}

// cacheEntry is one TTL-bounded cache slot. An entry is logically absent
// once its TTL has elapsed; reads evict expired entries before reporting
// absence.
type cacheEntry struct {
	Payload  json.RawMessage `json:"payload"`
	CachedAt time.Time       `json:"cached_at"`
	TTL      time.Duration   `json:"ttl"`
}

func (e cacheEntry) expired(now time.Time) bool {
	return now.Sub(e.CachedAt) > e.TTL
}

// syncState tracks per-user sync debouncing. Overlapping callers collapse
// onto the in-flight result via the done channel.
type syncState struct {
	inFlight bool
	lastSync time.Time
	done     chan struct{}
	result   models.CrossTabData
}

type crossTabService struct {
	habits       repository.HabitStatsRepository
	learning     repository.LearningStatsRepository
	gamification repository.GamificationStatsRepository
	preferences  repository.PreferencesRepository
	stateRepo    repository.StateRepository
	insights     InsightService
	log          logger.Logger

	syncInterval time.Duration
	cacheTTL     time.Duration

	mu          sync.Mutex
	loaded      bool
	entries     map[string]cacheEntry
	subscribers map[string]map[string]func(models.CrossTabData)
	syncs       map[string]*syncState
}

// NewCrossTabService creates the cross-feature snapshot cache
func NewCrossTabService(
	cfg config.AnalyticsConfig,
	habits repository.HabitStatsRepository,
	learning repository.LearningStatsRepository,
	gamification repository.GamificationStatsRepository,
	preferences repository.PreferencesRepository,
	stateRepo repository.StateRepository,
	insights InsightService,
	log logger.Logger,
) CrossTabService {
	return &crossTabService{
		habits:       habits,
		learning:     learning,
		gamification: gamification,
		preferences:  preferences,
		stateRepo:    stateRepo,
		insights:     insights,
		log:          log,
		syncInterval: cfg.SyncInterval,
		cacheTTL:     cfg.CacheTTL,
		entries:      make(map[string]cacheEntry),
		subscribers:  make(map[string]map[string]func(models.CrossTabData)),
		syncs:        make(map[string]*syncState),
	}
}

// =============================================================================
// TTL Cache
// =============================================================================

func (s *crossTabService) GetCachedData(ctx context.Context, key string, out any) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoaded(ctx)

	entry, exists := s.entries[key]
	if !exists {
		return false, nil
	}

	if entry.expired(time.Now().UTC()) {
		delete(s.entries, key)
		s.persistLocked(ctx)
		return false, nil
	}

	if err := json.Unmarshal(entry.Payload, out); err != nil {
		return false, fmt.Errorf("failed to decode cache entry %q: %w", key, err)
	}

	return true, nil
}

func (s *crossTabService) SetCachedData(ctx context.Context, key string, data any, ttl time.Duration) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode cache entry %q: %w", key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoaded(ctx)

	s.entries[key] = cacheEntry{
		Payload:  payload,
		CachedAt: time.Now().UTC(),
		TTL:      ttl,
	}
	s.persistLocked(ctx)

	return nil
}

func (s *crossTabService) ClearCache(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoaded(ctx)

	s.entries = make(map[string]cacheEntry)
	s.persistLocked(ctx)

	return nil
}

func (s *crossTabService) GetCacheStats(ctx context.Context) models.CacheStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoaded(ctx)

	keys := make([]string, 0, len(s.entries))
	for key := range s.entries {
		keys = append(keys, key)
	}

	stats := models.CacheStats{
		Entries: len(s.entries),
		Keys:    keys,
	}

	for _, st := range s.syncs {
		if st.inFlight {
			stats.SyncInFlight = true
		}
		if st.lastSync.After(stats.LastSync) {
			stats.LastSync = st.lastSync
		}
	}

	return stats
}

// =============================================================================
// Sync
// =============================================================================

// SyncCrossTabData refreshes the user's cross-feature snapshot. Three
// short-circuits, in order: an in-flight sync collapses the caller onto its
// result; a sync completed less than the minimum interval ago serves the
// cache; otherwise the four sub-snapshots are fetched concurrently,
// validated, cached, and published to subscribers. Fetch failure never
// yields a partial snapshot: callers get the last good one or a zero
// default.
func (s *crossTabService) SyncCrossTabData(ctx context.Context, userID string) (models.CrossTabData, error) {
	key := CrossTabCacheKey(userID)

	s.mu.Lock()
	s.ensureLoaded(ctx)
	st := s.syncs[userID]
	if st == nil {
		st = &syncState{}
		s.syncs[userID] = st
	}

	if st.inFlight {
		done := st.done
		s.mu.Unlock()

		select {
		case <-done:
			s.mu.Lock()
			result := st.result
			s.mu.Unlock()
			return result, nil
		case <-ctx.Done():
			return s.fallbackSnapshot(ctx, key), ctx.Err()
		}
	}

	if time.Since(st.lastSync) < s.syncInterval {
		result := s.snapshotOrDefaultLocked(ctx, key)
		s.mu.Unlock()
		return result, nil
	}

	st.inFlight = true
	st.done = make(chan struct{})
	s.mu.Unlock()

	data, err := s.fetchSnapshot(ctx, userID)
	if err != nil {
		s.log.Warn("cross-tab sync failed, serving fallback",
			logger.String("user_id", userID),
			logger.Err(err),
		)
		data = s.fallbackSnapshot(ctx, key)
	} else {
		s.logValidation(userID, ValidateCrossTabData(data))
	}

	s.mu.Lock()
	if err == nil {
		if payload, marshalErr := json.Marshal(data); marshalErr != nil {
			s.log.Error("failed to encode snapshot", logger.Err(marshalErr))
		} else {
			s.entries[key] = cacheEntry{
				Payload:  payload,
				CachedAt: time.Now().UTC(),
				TTL:      s.cacheTTL,
			}
			s.persistLocked(ctx)
		}
		st.lastSync = time.Now()
	}
	st.result = data
	st.inFlight = false
	close(st.done)
	callbacks := s.subscriberList(key)
	s.mu.Unlock()

	if err == nil {
		s.notify(key, callbacks, data)
	}

	return data, nil
}

// fetchSnapshot runs the four sub-snapshot fetches concurrently and
// assembles them all-or-nothing.
func (s *crossTabService) fetchSnapshot(ctx context.Context, userID string) (models.CrossTabData, error) {
	var (
		wg           sync.WaitGroup
		habits       *models.HabitSummary
		learning     *models.LearningSummary
		gamification *models.GamificationSummary
		preferences  *models.PreferencesSummary
		errs         [4]error
	)

	wg.Add(4)
	go func() {
		defer wg.Done()
		habits, errs[0] = s.habits.GetByUserID(ctx, userID)
	}()
	go func() {
		defer wg.Done()
		learning, errs[1] = s.learning.GetByUserID(ctx, userID)
	}()
	go func() {
		defer wg.Done()
		gamification, errs[2] = s.gamification.GetByUserID(ctx, userID)
	}()
	go func() {
		defer wg.Done()
		preferences, errs[3] = s.preferences.GetByUserID(ctx, userID)
	}()
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return models.CrossTabData{}, fmt.Errorf("snapshot fetch failed: %w", err)
		}
	}

	return models.CrossTabData{
		Habits:       *habits,
		Learning:     *learning,
		Gamification: *gamification,
		Preferences:  *preferences,
		SyncedAt:     time.Now().UTC(),
	}, nil
}

// snapshotOrDefaultLocked reads the cached snapshot for key, applying
// normal expiry-on-read semantics. Caller holds the lock.
func (s *crossTabService) snapshotOrDefaultLocked(ctx context.Context, key string) models.CrossTabData {
	entry, exists := s.entries[key]
	if exists && entry.expired(time.Now().UTC()) {
		delete(s.entries, key)
		s.persistLocked(ctx)
		exists = false
	}
	if !exists {
		return models.DefaultCrossTabData()
	}

	var data models.CrossTabData
	if err := json.Unmarshal(entry.Payload, &data); err != nil {
		s.log.Warn("failed to decode cached snapshot, serving default", logger.Err(err))
		return models.DefaultCrossTabData()
	}
	return data
}

func (s *crossTabService) fallbackSnapshot(ctx context.Context, key string) models.CrossTabData {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotOrDefaultLocked(ctx, key)
}

func (s *crossTabService) logValidation(userID string, result models.ValidationResult) {
	for _, msg := range result.Errors {
		s.log.Error("cross-tab consistency violation",
			logger.String("user_id", userID),
			logger.String("violation", msg),
		)
	}
	for _, msg := range result.Warnings {
		s.log.Warn("cross-tab consistency warning",
			logger.String("user_id", userID),
			logger.String("warning", msg),
		)
	}
}

// =============================================================================
// Subscriptions
// =============================================================================

// Subscribe registers a callback fired synchronously after each successful
// sync that refreshes key. The returned func removes the subscription;
// removing the last subscriber for a key drops the key's registration.
func (s *crossTabService) Subscribe(key string, callback func(models.CrossTabData)) func() {
	id := uuid.New().String()

	s.mu.Lock()
	if s.subscribers[key] == nil {
		s.subscribers[key] = make(map[string]func(models.CrossTabData))
	}
	s.subscribers[key][id] = callback
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if callbacks, exists := s.subscribers[key]; exists {
			delete(callbacks, id)
			if len(callbacks) == 0 {
				delete(s.subscribers, key)
			}
		}
	}
}

// subscriberList snapshots the callbacks for key. Caller holds the lock.
func (s *crossTabService) subscriberList(key string) []func(models.CrossTabData) {
	callbacks := make([]func(models.CrossTabData), 0, len(s.subscribers[key]))
	for _, cb := range s.subscribers[key] {
		callbacks = append(callbacks, cb)
	}
	return callbacks
}

// notify delivers data to each callback, isolating panics per callback so
// one faulty subscriber cannot suppress delivery to the others.
func (s *crossTabService) notify(key string, callbacks []func(models.CrossTabData), data models.CrossTabData) {
	for _, cb := range callbacks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.log.Error("subscriber callback panicked",
						logger.String("key", key),
						logger.Any("panic", r),
					)
				}
			}()
			cb(data)
		}()
	}
}

// =============================================================================
// Insights
// =============================================================================

// GenerateInsights fans out the three generators concurrently. Unlike the
// subscriber path, failures are not isolated: the first error propagates.
func (s *crossTabService) GenerateInsights(ctx context.Context, data models.CrossTabData) (*models.CrossTabInsights, error) {
	var (
		wg       sync.WaitGroup
		today    models.TodayInsight
		weekly   models.WeeklyProgress
		learning models.LearningInsight
		errs     [3]error
	)

	wg.Add(3)
	go func() {
		defer wg.Done()
		today, errs[0] = s.insights.GenerateTodayInsight(data)
	}()
	go func() {
		defer wg.Done()
		weekly, errs[1] = s.insights.GenerateWeeklyProgress(data)
	}()
	go func() {
		defer wg.Done()
		learning, errs[2] = s.insights.GenerateLearningInsight(data)
	}()
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("failed to generate insights: %w", err)
		}
	}

	return &models.CrossTabInsights{
		Today:    today,
		Weekly:   weekly,
		Learning: learning,
	}, nil
}

// =============================================================================
// Validation & Persistence
// =============================================================================

// ValidateCrossTabData checks cross-feature consistency. The result is
// advisory: violations are logged by the sync path, never fatal.
func ValidateCrossTabData(data models.CrossTabData) models.ValidationResult {
	result := models.ValidationResult{Valid: true}

	if data.Habits.TodayCompletions > data.Habits.TotalHabits {
		result.Valid = false
		result.Errors = append(result.Errors,
			fmt.Sprintf("today's completions (%d) exceed total habits (%d)",
				data.Habits.TodayCompletions, data.Habits.TotalHabits))
	}
	if data.Learning.CoursesCompleted > data.Learning.TotalCourses {
		result.Valid = false
		result.Errors = append(result.Errors,
			fmt.Sprintf("completed courses (%d) exceed total courses (%d)",
				data.Learning.CoursesCompleted, data.Learning.TotalCourses))
	}
	if data.Gamification.CurrentLevel < 1 {
		result.Valid = false
		result.Errors = append(result.Errors,
			fmt.Sprintf("current level must be at least 1, got %d", data.Gamification.CurrentLevel))
	}

	if len(data.Preferences.FocusAreas) == 0 {
		result.Warnings = append(result.Warnings, "no focus areas configured")
	}
	if data.Preferences.PreferredTimeOfDay == "" {
		result.Warnings = append(result.Warnings, "no preferred time of day configured")
	}
	if data.Learning.AppliedTechniques == nil {
		result.Warnings = append(result.Warnings, "applied techniques missing from learning summary")
	}

	return result
}

// ensureLoaded hydrates the cache from the durable store on first use.
// Caller holds the lock.
func (s *crossTabService) ensureLoaded(ctx context.Context) {
	if s.loaded {
		return
	}
	s.loaded = true

	blob, err := s.stateRepo.Get(ctx, stateCrossTabKey)
	if err != nil {
		s.log.Warn("failed to load cross-tab cache, starting empty", logger.Err(err))
		return
	}
	if blob == nil {
		return
	}
	if err := json.Unmarshal(blob, &s.entries); err != nil {
		s.log.Warn("failed to decode cross-tab cache, starting empty", logger.Err(err))
		s.entries = make(map[string]cacheEntry)
	}
}

// persistLocked mirrors the cache to the durable store as one blob. Write
// failures are logged; in-memory state stays authoritative. Caller holds
// the lock.
func (s *crossTabService) persistLocked(ctx context.Context) {
	blob, err := json.Marshal(s.entries)
	if err != nil {
		s.log.Error("failed to encode cross-tab cache", logger.Err(err))
		return
	}
	if err := s.stateRepo.Set(ctx, stateCrossTabKey, blob); err != nil {
		s.log.Error("failed to persist cross-tab cache", logger.Err(err))
	}
}

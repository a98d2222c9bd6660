package service

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/habitloop/backend/internal/config"
	"github.com/habitloop/backend/internal/logger"
	"github.com/habitloop/backend/internal/models"
	"github.com/habitloop/backend/internal/repository"
)

// State keys for the durable blobs owned by this service
const (
	statePatternsKey   = "adaptive_patterns"
	stateThresholdsKey = "adaptive_thresholds"
)

// Recommendation deviation ladder (relative to the current threshold)
const (
	deviationEmitCutoff   = 0.20
	deviationMediumCutoff = 0.30
	deviationHighCutoff   = 0.50
)

// Confidence bounds for a computed threshold
const (
	confidenceFloor = 0.3
	confidenceCeil  = 1.0
)

// nearZero guards the relative-variance term of the confidence formula
// against a mean close to zero.
const nearZero = 1e-9

type thresholdService struct {
	stateRepo repository.StateRepository
	log       logger.Logger

	learningRate   float64
	minSampleSize  int
	confidenceGate float64
	recWindow      int

	mu         sync.RWMutex
	loaded     bool
	patterns   map[string][]models.UserPattern
	thresholds map[string]models.AdaptiveThreshold
}

// NewThresholdService creates the adaptive threshold engine. In-memory
// state is authoritative for the session; the state repository is a
// best-effort durable mirror.
func NewThresholdService(cfg config.AnalyticsConfig, stateRepo repository.StateRepository, log logger.Logger) ThresholdService {
	return &thresholdService{
		stateRepo:      stateRepo,
		log:            log,
		learningRate:   cfg.LearningRate,
		minSampleSize:  cfg.MinSampleSize,
		confidenceGate: cfg.ConfidenceGate,
		recWindow:      cfg.RecommendationWindow,
		patterns:       make(map[string][]models.UserPattern),
		thresholds:     make(map[string]models.AdaptiveThreshold),
	}
}

// patternKey builds the composite map key for one tracked metric
func patternKey(userID string, patternType models.PatternType, metric string) string {
	return fmt.Sprintf("%s|%s|%s", userID, patternType, metric)
}

func validPatternType(t models.PatternType) bool {
	switch t {
	case models.PatternTypeMood, models.PatternTypeHabit, models.PatternTypePerformance, models.PatternTypeWellness:
		return true
	}
	return false
}

func (s *thresholdService) RecordPattern(ctx context.Context, pattern models.UserPattern) error {
	if pattern.UserID == "" {
		return fmt.Errorf("user id is required")
	}
	if pattern.Metric == "" {
		return fmt.Errorf("metric is required")
	}
	if !validPatternType(pattern.PatternType) {
		return fmt.Errorf("unknown pattern type %q", pattern.PatternType)
	}

	if pattern.ID == "" {
		pattern.ID = uuid.New().String()
	}
	if pattern.Timestamp.IsZero() {
		pattern.Timestamp = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoaded(ctx)

	key := patternKey(pattern.UserID, pattern.PatternType, pattern.Metric)
	s.patterns[key] = append(s.patterns[key], pattern)

	if len(s.patterns[key]) >= s.minSampleSize {
		s.recompute(key, pattern)
	}

	s.persist(ctx)
	return nil
}

// recompute updates the threshold for one key from its most recent sample
// window. Caller holds the write lock.
func (s *thresholdService) recompute(key string, latest models.UserPattern) {
	seq := s.patterns[key]
	window := seq[len(seq)-s.minSampleSize:]

	mean, variance := meanAndVariance(window)

	threshold, exists := s.thresholds[key]
	if !exists {
		threshold = models.AdaptiveThreshold{
			UserID:      latest.UserID,
			PatternType: latest.PatternType,
			Metric:      latest.Metric,
			Baseline:    mean,
			Current:     mean,
		}
	} else {
		threshold.Current = threshold.Current*(1-s.learningRate) + mean*s.learningRate
	}

	threshold.Trend = windowTrend(window)
	threshold.Confidence = sampleConfidence(mean, variance, len(seq))
	threshold.SampleSize = len(seq)
	threshold.LastUpdated = time.Now().UTC()

	s.thresholds[key] = threshold
}

func meanAndVariance(window []models.UserPattern) (mean, variance float64) {
	n := float64(len(window))
	for _, p := range window {
		mean += p.Value
	}
	mean /= n

	for _, p := range window {
		d := p.Value - mean
		variance += d * d
	}
	variance /= n

	return mean, variance
}

// windowTrend compares the first half of the window against the second.
// Relative change under 5% reads as stable.
func windowTrend(window []models.UserPattern) models.Trend {
	half := len(window) / 2
	firstMean, _ := meanAndVariance(window[:half])
	secondMean, _ := meanAndVariance(window[half:])

	if math.Abs(firstMean) < nearZero {
		if math.Abs(secondMean) < nearZero {
			return models.TrendStable
		}
		if secondMean > 0 {
			return models.TrendIncreasing
		}
		return models.TrendDecreasing
	}

	change := (secondMean - firstMean) / math.Abs(firstMean)
	switch {
	case math.Abs(change) < 0.05:
		return models.TrendStable
	case change > 0:
		return models.TrendIncreasing
	default:
		return models.TrendDecreasing
	}
}

// sampleConfidence rises with sample size and falls with relative variance.
// The relative-variance term is skipped when the mean is near zero, where
// the ratio is meaningless.
func sampleConfidence(mean, variance float64, sampleSize int) float64 {
	relVariance := 0.0
	if math.Abs(mean) > nearZero {
		relVariance = variance / mean
	}

	confidence := 1 - relVariance + float64(sampleSize)/100
	return math.Max(confidenceFloor, math.Min(confidenceCeil, confidence))
}

func (s *thresholdService) GetThreshold(ctx context.Context, userID string, patternType models.PatternType, metric string) (*models.AdaptiveThreshold, error) {
	s.mu.Lock()
	s.ensureLoaded(ctx)
	threshold, exists := s.thresholds[patternKey(userID, patternType, metric)]
	s.mu.Unlock()

	if !exists {
		return nil, nil
	}
	return &threshold, nil
}

func (s *thresholdService) GetUserThresholds(ctx context.Context, userID string) ([]models.AdaptiveThreshold, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoaded(ctx)

	prefix := userID + "|"
	thresholds := make([]models.AdaptiveThreshold, 0)
	for key, threshold := range s.thresholds {
		if strings.HasPrefix(key, prefix) {
			thresholds = append(thresholds, threshold)
		}
	}

	sort.Slice(thresholds, func(i, j int) bool {
		if thresholds[i].PatternType != thresholds[j].PatternType {
			return thresholds[i].PatternType < thresholds[j].PatternType
		}
		return thresholds[i].Metric < thresholds[j].Metric
	})

	return thresholds, nil
}

// IsAboveThreshold reports whether value exceeds the current threshold.
// It returns false when no threshold exists or its confidence is below the
// gate: a false result is "no reliable signal", not proof of non-exceedance.
func (s *thresholdService) IsAboveThreshold(ctx context.Context, userID string, patternType models.PatternType, metric string, value float64) (bool, error) {
	threshold, err := s.GetThreshold(ctx, userID, patternType, metric)
	if err != nil || threshold == nil {
		return false, err
	}
	if threshold.Confidence < s.confidenceGate {
		return false, nil
	}
	return value > threshold.Current, nil
}

// IsBelowThreshold mirrors IsAboveThreshold with the same confidence gating
func (s *thresholdService) IsBelowThreshold(ctx context.Context, userID string, patternType models.PatternType, metric string, value float64) (bool, error) {
	threshold, err := s.GetThreshold(ctx, userID, patternType, metric)
	if err != nil || threshold == nil {
		return false, err
	}
	if threshold.Confidence < s.confidenceGate {
		return false, nil
	}
	return value < threshold.Current, nil
}

func (s *thresholdService) GetThresholdRecommendations(ctx context.Context, userID string) ([]models.ThresholdRecommendation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoaded(ctx)

	prefix := userID + "|"
	recommendations := make([]models.ThresholdRecommendation, 0)

	for key, threshold := range s.thresholds {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		if math.Abs(threshold.Current) < nearZero {
			continue
		}

		seq := s.patterns[key]
		if len(seq) == 0 {
			continue
		}

		recent := seq
		if len(recent) > s.recWindow {
			recent = recent[len(recent)-s.recWindow:]
		}

		recentMean, _ := meanAndVariance(recent)
		deviation := math.Abs(recentMean-threshold.Current) / math.Abs(threshold.Current)
		if deviation <= deviationEmitCutoff {
			continue
		}

		priority := models.PriorityLow
		if deviation > deviationHighCutoff {
			priority = models.PriorityHigh
		} else if deviation > deviationMediumCutoff {
			priority = models.PriorityMedium
		}

		recommendations = append(recommendations, models.ThresholdRecommendation{
			PatternType:        threshold.PatternType,
			Metric:             threshold.Metric,
			CurrentThreshold:   threshold.Current,
			SuggestedThreshold: recentMean,
			Deviation:          deviation,
			Priority:           priority,
			Reason: fmt.Sprintf("recent %s observations deviate %.0f%% from the current threshold",
				threshold.Metric, deviation*100),
		})
	}

	sort.SliceStable(recommendations, func(i, j int) bool {
		if recommendations[i].Priority.Rank() != recommendations[j].Priority.Rank() {
			return recommendations[i].Priority.Rank() > recommendations[j].Priority.Rank()
		}
		return recommendations[i].Deviation > recommendations[j].Deviation
	})

	return recommendations, nil
}

func (s *thresholdService) ClearUserData(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoaded(ctx)

	prefix := userID + "|"
	for key := range s.patterns {
		if strings.HasPrefix(key, prefix) {
			delete(s.patterns, key)
		}
	}
	for key := range s.thresholds {
		if strings.HasPrefix(key, prefix) {
			delete(s.thresholds, key)
		}
	}

	s.persist(ctx)
	return nil
}

// ensureLoaded hydrates in-memory state from the durable store on first
// use. Load failures are logged and leave the service running on empty
// state. Caller holds the write lock.
func (s *thresholdService) ensureLoaded(ctx context.Context) {
	if s.loaded {
		return
	}
	s.loaded = true

	if blob, err := s.stateRepo.Get(ctx, statePatternsKey); err != nil {
		s.log.Warn("failed to load pattern table, starting empty", logger.Err(err))
	} else if blob != nil {
		if err := json.Unmarshal(blob, &s.patterns); err != nil {
			s.log.Warn("failed to decode pattern table, starting empty", logger.Err(err))
			s.patterns = make(map[string][]models.UserPattern)
		}
	}

	if blob, err := s.stateRepo.Get(ctx, stateThresholdsKey); err != nil {
		s.log.Warn("failed to load threshold table, starting empty", logger.Err(err))
	} else if blob != nil {
		if err := json.Unmarshal(blob, &s.thresholds); err != nil {
			s.log.Warn("failed to decode threshold table, starting empty", logger.Err(err))
			s.thresholds = make(map[string]models.AdaptiveThreshold)
		}
	}
}

// persist mirrors both tables to the durable store as whole blobs. Write
// failures are logged; in-memory state stays authoritative for the session.
// Caller holds the write lock.
func (s *thresholdService) persist(ctx context.Context) {
	if blob, err := json.Marshal(s.patterns); err != nil {
		s.log.Error("failed to encode pattern table", logger.Err(err))
	} else if err := s.stateRepo.Set(ctx, statePatternsKey, blob); err != nil {
		s.log.Error("failed to persist pattern table", logger.Err(err))
	}

	if blob, err := json.Marshal(s.thresholds); err != nil {
		s.log.Error("failed to encode threshold table", logger.Err(err))
	} else if err := s.stateRepo.Set(ctx, stateThresholdsKey, blob); err != nil {
		s.log.Error("failed to persist threshold table", logger.Err(err))
	}
}

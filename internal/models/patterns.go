package models

import "time"

// PatternType classifies the feature area a tracked observation belongs to
type PatternType string

const (
	PatternTypeMood        PatternType = "mood"
	PatternTypeHabit       PatternType = "habit"
	PatternTypePerformance PatternType = "performance"
	PatternTypeWellness    PatternType = "wellness"
)

// Trend represents the direction a metric is moving
type Trend string

const (
	TrendIncreasing Trend = "increasing"
	TrendDecreasing Trend = "decreasing"
	TrendStable     Trend = "stable"
)

// Priority represents the urgency of a recommendation
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Rank returns a sortable weight for the priority (higher is more urgent)
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	default:
		return 0
	}
}

// UserPattern is a single tracked observation. Patterns are immutable once
// recorded and accumulate in an append-only sequence per
// (user, pattern type, metric) key.
type UserPattern struct {
	ID          string         `json:"id"`
	UserID      string         `json:"user_id"`
	PatternType PatternType    `json:"pattern_type"`
	Metric      string         `json:"metric"`
	Value       float64        `json:"value"`
	Timestamp   time.Time      `json:"timestamp"`
	Context     map[string]any `json:"context,omitempty"`
}

// AdaptiveThreshold is the derived reference value for one
// (user, pattern type, metric) key. Baseline is set once from the first
// sufficient sample window and never silently reset; Current moves toward
// recent observations via an exponential moving average.
type AdaptiveThreshold struct {
	UserID      string      `json:"user_id"`
	PatternType PatternType `json:"pattern_type"`
	Metric      string      `json:"metric"`
	Baseline    float64     `json:"baseline"`
	Current     float64     `json:"current"`
	Trend       Trend       `json:"trend"`
	Confidence  float64     `json:"confidence"`
	LastUpdated time.Time   `json:"last_updated"`
	SampleSize  int         `json:"sample_size"`
}

// ThresholdRecommendation suggests retargeting a threshold whose recent
// observations have drifted away from the current value.
type ThresholdRecommendation struct {
	PatternType        PatternType `json:"pattern_type"`
	Metric             string      `json:"metric"`
	CurrentThreshold   float64     `json:"current_threshold"`
	SuggestedThreshold float64     `json:"suggested_threshold"`
	Deviation          float64     `json:"deviation"`
	Priority           Priority    `json:"priority"`
	Reason             string      `json:"reason"`
}

// RecordPatternRequest is the request body for recording an observation
type RecordPatternRequest struct {
	PatternType PatternType    `json:"pattern_type" binding:"required"`
	Metric      string         `json:"metric" binding:"required"`
	Value       float64        `json:"value"`
	Timestamp   *time.Time     `json:"timestamp"`
	Context     map[string]any `json:"context"`
}

package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/habitloop/backend/internal/apierror"
	"github.com/habitloop/backend/internal/logger"
	"github.com/habitloop/backend/internal/models"
	"github.com/habitloop/backend/internal/service"
)

// InsightsHandler serves derived insights over the user's current snapshot
type InsightsHandler struct {
	crossTabService service.CrossTabService
	insightService  service.InsightService
}

// NewInsightsHandler creates a new insights handler
func NewInsightsHandler(crossTabService service.CrossTabService, insightService service.InsightService) *InsightsHandler {
	return &InsightsHandler{
		crossTabService: crossTabService,
		insightService:  insightService,
	}
}

// snapshot returns the user's cached cross-feature snapshot, syncing when
// nothing usable is cached.
func (h *InsightsHandler) snapshot(c *gin.Context, userID string) (models.CrossTabData, bool) {
	var data models.CrossTabData
	key := service.CrossTabCacheKey(userID)

	hit, err := h.crossTabService.GetCachedData(c.Request.Context(), key, &data)
	if err != nil {
		logger.Ctx(c.Request.Context()).Warn("failed to read cached snapshot", logger.Err(err))
	}
	if hit && err == nil {
		return data, true
	}

	data, err = h.crossTabService.SyncCrossTabData(c.Request.Context(), userID)
	if err != nil {
		logger.Ctx(c.Request.Context()).Error("failed to sync snapshot", logger.Err(err))
		apierror.WriteProblem(c, apierror.NewInternalError(apierror.GetRequestID(c)))
		return models.CrossTabData{}, false
	}

	return data, true
}

// GetInsights returns today/weekly/learning insights for the user
// GET /api/v1/insights
func (h *InsightsHandler) GetInsights(c *gin.Context) {
	userID, ok := authedUserID(c)
	if !ok {
		return
	}

	data, ok := h.snapshot(c, userID)
	if !ok {
		return
	}

	insights, err := h.crossTabService.GenerateInsights(c.Request.Context(), data)
	if err != nil {
		logger.Ctx(c.Request.Context()).Error("failed to generate insights", logger.Err(err))
		apierror.WriteProblem(c, apierror.NewInternalError(apierror.GetRequestID(c)))
		return
	}

	c.JSON(http.StatusOK, insights)
}

// GetMetrics returns the composite metrics over the current snapshot
// GET /api/v1/insights/metrics
func (h *InsightsHandler) GetMetrics(c *gin.Context) {
	userID, ok := authedUserID(c)
	if !ok {
		return
	}

	data, ok := h.snapshot(c, userID)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"metrics":   h.insightService.CalculateMetrics(data),
		"synced_at": data.SyncedAt,
	})
}

// GetRecommendations returns prioritized next actions
// GET /api/v1/insights/recommendations
func (h *InsightsHandler) GetRecommendations(c *gin.Context) {
	userID, ok := authedUserID(c)
	if !ok {
		return
	}

	data, ok := h.snapshot(c, userID)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"recommendations": h.insightService.GenerateRecommendations(data),
	})
}

// GetPerformance returns the performance score, level, and improvement
// potential
// GET /api/v1/insights/performance
func (h *InsightsHandler) GetPerformance(c *gin.Context) {
	userID, ok := authedUserID(c)
	if !ok {
		return
	}

	data, ok := h.snapshot(c, userID)
	if !ok {
		return
	}

	metrics := h.insightService.CalculateMetrics(data)
	score := h.insightService.CalculatePerformanceScore(metrics)

	c.JSON(http.StatusOK, models.PerformanceReport{
		Score:      score,
		Level:      h.insightService.GetPerformanceLevel(score),
		Potential:  h.insightService.CalculateImprovementPotential(metrics),
		ComputedAt: data.SyncedAt,
	})
}

package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/habitloop/backend/internal/apierror"
	"github.com/habitloop/backend/internal/logger"
	"github.com/habitloop/backend/internal/models"
	"github.com/habitloop/backend/internal/service"
)

// PatternsHandler handles pattern recording and threshold queries
type PatternsHandler struct {
	thresholdService service.ThresholdService
}

// NewPatternsHandler creates a new patterns handler
func NewPatternsHandler(thresholdService service.ThresholdService) *PatternsHandler {
	return &PatternsHandler{
		thresholdService: thresholdService,
	}
}

// RecordPattern records one observation for the authenticated user
// POST /api/v1/patterns
func (h *PatternsHandler) RecordPattern(c *gin.Context) {
	userID, ok := authedUserID(c)
	if !ok {
		return
	}

	log := logger.Ctx(c.Request.Context())

	var req models.RecordPatternRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierror.WriteProblem(c, apierror.NewValidationError(
			apierror.GetRequestID(c),
			[]apierror.FieldError{
				{Field: "body", Message: err.Error(), Code: "invalid_body"},
			},
		))
		return
	}

	pattern := models.UserPattern{
		UserID:      userID,
		PatternType: req.PatternType,
		Metric:      req.Metric,
		Value:       req.Value,
		Context:     req.Context,
	}
	if req.Timestamp != nil {
		pattern.Timestamp = *req.Timestamp
	}

	if err := h.thresholdService.RecordPattern(c.Request.Context(), pattern); err != nil {
		log.Warn("failed to record pattern",
			logger.Err(err),
			logger.String("metric", req.Metric),
		)
		apierror.WriteProblem(c, apierror.NewBadRequestError(
			apierror.GetRequestID(c),
			err.Error(),
			"The observation could not be recorded",
		))
		return
	}

	threshold, err := h.thresholdService.GetThreshold(c.Request.Context(), userID, req.PatternType, req.Metric)
	if err != nil {
		log.Error("failed to read back threshold", logger.Err(err))
		apierror.WriteProblem(c, apierror.NewInternalError(apierror.GetRequestID(c)))
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"status":    "recorded",
		"threshold": threshold,
	})
}

// GetUserThresholds returns every threshold tracked for the user
// GET /api/v1/thresholds
func (h *PatternsHandler) GetUserThresholds(c *gin.Context) {
	userID, ok := authedUserID(c)
	if !ok {
		return
	}

	thresholds, err := h.thresholdService.GetUserThresholds(c.Request.Context(), userID)
	if err != nil {
		logger.Ctx(c.Request.Context()).Error("failed to get thresholds", logger.Err(err))
		apierror.WriteProblem(c, apierror.NewInternalError(apierror.GetRequestID(c)))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"thresholds": thresholds,
	})
}

// GetThreshold returns the threshold for one (pattern type, metric) key
// GET /api/v1/thresholds/:patternType/:metric
func (h *PatternsHandler) GetThreshold(c *gin.Context) {
	userID, ok := authedUserID(c)
	if !ok {
		return
	}

	patternType := models.PatternType(c.Param("patternType"))
	metric := c.Param("metric")

	threshold, err := h.thresholdService.GetThreshold(c.Request.Context(), userID, patternType, metric)
	if err != nil {
		logger.Ctx(c.Request.Context()).Error("failed to get threshold", logger.Err(err))
		apierror.WriteProblem(c, apierror.NewInternalError(apierror.GetRequestID(c)))
		return
	}
	if threshold == nil {
		apierror.WriteProblem(c, apierror.NewNotFoundError(
			apierror.GetRequestID(c), "Threshold", string(patternType)+"/"+metric))
		return
	}

	c.JSON(http.StatusOK, threshold)
}

// GetRecommendations returns threshold retargeting suggestions
// GET /api/v1/thresholds/recommendations
func (h *PatternsHandler) GetRecommendations(c *gin.Context) {
	userID, ok := authedUserID(c)
	if !ok {
		return
	}

	recommendations, err := h.thresholdService.GetThresholdRecommendations(c.Request.Context(), userID)
	if err != nil {
		logger.Ctx(c.Request.Context()).Error("failed to get threshold recommendations", logger.Err(err))
		apierror.WriteProblem(c, apierror.NewInternalError(apierror.GetRequestID(c)))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"recommendations": recommendations,
	})
}

// ClearUserData removes all recorded patterns and thresholds for the user
// DELETE /api/v1/patterns
func (h *PatternsHandler) ClearUserData(c *gin.Context) {
	userID, ok := authedUserID(c)
	if !ok {
		return
	}

	log := logger.Ctx(c.Request.Context())

	if err := h.thresholdService.ClearUserData(c.Request.Context(), userID); err != nil {
		log.Error("failed to clear user data", logger.Err(err))
		apierror.WriteProblem(c, apierror.NewInternalError(apierror.GetRequestID(c)))
		return
	}

	log.Info("cleared pattern data", logger.String("user_id", userID))

	c.JSON(http.StatusOK, gin.H{
		"status": "cleared",
	})
}

// authedUserID pulls the authenticated user ID set by the auth middleware,
// writing a 401 problem when it is missing.
func authedUserID(c *gin.Context) (string, bool) {
	userID, exists := c.Get("user_id")
	if !exists {
		apierror.WriteProblem(c, apierror.NewUnauthorizedError(apierror.GetRequestID(c)))
		return "", false
	}
	id, ok := userID.(string)
	if !ok || id == "" {
		apierror.WriteProblem(c, apierror.NewUnauthorizedError(apierror.GetRequestID(c)))
		return "", false
	}
	return id, true
}

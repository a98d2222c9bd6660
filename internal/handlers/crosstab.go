package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/habitloop/backend/internal/apierror"
	"github.com/habitloop/backend/internal/logger"
	"github.com/habitloop/backend/internal/service"
)

// CrossTabHandler handles cross-feature snapshot sync and cache management
type CrossTabHandler struct {
	crossTabService service.CrossTabService
}

// NewCrossTabHandler creates a new cross-tab handler
func NewCrossTabHandler(crossTabService service.CrossTabService) *CrossTabHandler {
	return &CrossTabHandler{
		crossTabService: crossTabService,
	}
}

// Sync refreshes the user's cross-feature snapshot
// POST /api/v1/crosstab/sync
func (h *CrossTabHandler) Sync(c *gin.Context) {
	userID, ok := authedUserID(c)
	if !ok {
		return
	}

	data, err := h.crossTabService.SyncCrossTabData(c.Request.Context(), userID)
	if err != nil {
		logger.Ctx(c.Request.Context()).Error("failed to sync cross-tab data", logger.Err(err))
		apierror.WriteProblem(c, apierror.NewInternalError(apierror.GetRequestID(c)))
		return
	}

	c.JSON(http.StatusOK, data)
}

// CacheStats reports cache entry counts and sync status
// GET /api/v1/crosstab/cache/stats
func (h *CrossTabHandler) CacheStats(c *gin.Context) {
	if _, ok := authedUserID(c); !ok {
		return
	}

	c.JSON(http.StatusOK, h.crossTabService.GetCacheStats(c.Request.Context()))
}

// ClearCache drops every cached snapshot
// DELETE /api/v1/crosstab/cache
func (h *CrossTabHandler) ClearCache(c *gin.Context) {
	if _, ok := authedUserID(c); !ok {
		return
	}

	log := logger.Ctx(c.Request.Context())

	if err := h.crossTabService.ClearCache(c.Request.Context()); err != nil {
		log.Error("failed to clear cross-tab cache", logger.Err(err))
		apierror.WriteProblem(c, apierror.NewInternalError(apierror.GetRequestID(c)))
		return
	}

	log.Info("cross-tab cache cleared")

	c.JSON(http.StatusOK, gin.H{
		"status": "cleared",
	})
}

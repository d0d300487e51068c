package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// CronHandler serves the external scheduler's periodic sweep.
type CronHandler struct {
	secret string
	syncs  sweeper
	logger *zap.Logger
}

func NewCronHandler(secret string, syncs sweeper, logger *zap.Logger) *CronHandler {
	return &CronHandler{
		secret: secret,
		syncs:  syncs,
		logger: logger,
	}
}

// Handle runs one sweep of stale accounts. Failed accounts keep their stale
// timestamp and are retried on the next invocation.
func (h *CronHandler) Handle(c *gin.Context) {
	if c.GetHeader("Authorization") != "Bearer "+h.secret {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	synced, err := h.syncs.SyncStale(c.Request.Context(), nil)
	if err != nil {
		h.logger.Error("Periodic sync failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "Failed to sync emails",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": fmt.Sprintf("Synced batch of %d accounts", synced),
	})
}

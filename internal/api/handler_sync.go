package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mailpilot/internal/syncer"
)

// stepService is the slice of the sync service the manual triggers use.
type stepService interface {
	SyncStep(ctx context.Context, req *syncer.StepRequest) (*syncer.StepResult, error)
	Resync(ctx context.Context, accountID, userID string) error
}

type SyncHandler struct {
	syncs  stepService
	logger *zap.Logger
}

func NewSyncHandler(syncs stepService, logger *zap.Logger) *SyncHandler {
	return &SyncHandler{syncs: syncs, logger: logger}
}

// Sync handles POST /api/mail/sync: one client-driven step of a sync.
func (h *SyncHandler) Sync(c *gin.Context) {
	var req struct {
		AccountID  string `json:"accountId"`
		PageToken  string `json:"pageToken"`
		DeltaToken string `json:"deltaToken"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.AccountID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "INVALID_REQUEST"})
		return
	}

	result, err := h.syncs.SyncStep(c.Request.Context(), &syncer.StepRequest{
		AccountID:  req.AccountID,
		UserID:     currentUser(c),
		PageToken:  req.PageToken,
		DeltaToken: req.DeltaToken,
	})
	if err != nil {
		if errors.Is(err, syncer.ErrAccountNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "ACCOUNT_NOT_FOUND"})
			return
		}
		h.logger.Error("Manual sync step failed",
			zap.String("account_id", req.AccountID),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "FAILED_TO_SYNC"})
		return
	}

	if result.SyncInProgress {
		c.JSON(http.StatusOK, gin.H{
			"success":        true,
			"syncInProgress": true,
			"complete":       false,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":        true,
		"nextPageToken":  result.NextPageToken,
		"nextDeltaToken": result.NextDeltaToken,
		"complete":       result.Complete,
	})
}

// Resync handles POST /api/mail/resync: a throttled full re-sync.
func (h *SyncHandler) Resync(c *gin.Context) {
	var req struct {
		AccountID string `json:"accountId"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.AccountID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Account ID is required"})
		return
	}

	userID := currentUser(c)
	err := h.syncs.Resync(c.Request.Context(), req.AccountID, userID)
	if err != nil {
		var throttled *syncer.ThrottledError
		switch {
		case errors.As(err, &throttled):
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":          fmt.Sprintf("Please wait %d hours before resyncing again", throttled.HoursRemaining),
				"hoursRemaining": throttled.HoursRemaining,
			})
		case errors.Is(err, syncer.ErrAccountNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Account not found"})
		default:
			h.logger.Error("Resync failed",
				zap.String("account_id", req.AccountID),
				zap.Error(err),
			)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to resync account"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Resync initiated successfully",
	})
}

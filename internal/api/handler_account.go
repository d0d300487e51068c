package api

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mailpilot/internal/account"
	"mailpilot/internal/model"
	"mailpilot/internal/provider"
)

// maxIndexBytes caps the accepted search index upload.
const maxIndexBytes = 32 << 20

// accountService is the slice of the account service the handlers use.
type accountService interface {
	Connect(ctx context.Context, userID, code string) (*model.Account, error)
	Send(ctx context.Context, userID, accountID string, req *provider.SendRequest) (*provider.SendResponse, error)
	Unlink(ctx context.Context, userID, accountID string) error
	SaveSearchIndex(ctx context.Context, userID, accountID string, blob []byte) error
	LoadSearchIndex(ctx context.Context, userID, accountID string) ([]byte, error)
}

type AccountHandler struct {
	accounts accountService
	logger   *zap.Logger
}

func NewAccountHandler(accounts accountService, logger *zap.Logger) *AccountHandler {
	return &AccountHandler{accounts: accounts, logger: logger}
}

// Callback handles GET /api/mail/callback: the provider redirects here after
// the user approves the connection. On success the user agent goes to the
// mail view; the initial sync runs in the worker.
func (h *AccountHandler) Callback(c *gin.Context) {
	if c.Query("status") != "success" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Account connection failed"})
		return
	}

	code := c.Query("code")
	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing authorization code"})
		return
	}

	userID := currentUser(c)
	acct, err := h.accounts.Connect(c.Request.Context(), userID, code)
	if err != nil {
		var authErr *provider.AuthError
		if errors.As(err, &authErr) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to fetch token"})
			return
		}
		h.logger.Error("OAuth callback failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to connect account"})
		return
	}

	h.logger.Info("Account linked via callback",
		zap.String("account_id", acct.ID),
		zap.String("user_id", userID),
	)
	c.Redirect(http.StatusFound, "/mail")
}

// Send handles POST /api/mail/send: outbound dispatch via the provider.
func (h *AccountHandler) Send(c *gin.Context) {
	var req struct {
		AccountID string `json:"accountId"`
		provider.SendRequest
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.AccountID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "INVALID_REQUEST"})
		return
	}

	sent, err := h.accounts.Send(c.Request.Context(), currentUser(c), req.AccountID, &req.SendRequest)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "ACCOUNT_NOT_FOUND"})
			return
		}
		h.logger.Error("Send failed",
			zap.String("account_id", req.AccountID),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "FAILED_TO_SEND"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"id":       sent.ID,
		"threadId": sent.ThreadID,
	})
}

// SaveIndex handles PUT /api/mail/accounts/:id/index: the web client persists
// its serialized search index so it survives reloads.
func (h *AccountHandler) SaveIndex(c *gin.Context) {
	accountID := c.Param("id")

	blob, err := io.ReadAll(io.LimitReader(c.Request.Body, maxIndexBytes))
	if err != nil || len(blob) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "INVALID_REQUEST"})
		return
	}

	if err := h.accounts.SaveSearchIndex(c.Request.Context(), currentUser(c), accountID, blob); err != nil {
		if errors.Is(err, account.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "ACCOUNT_NOT_FOUND"})
			return
		}
		h.logger.Error("Failed to save search index",
			zap.String("account_id", accountID),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "FAILED_TO_SAVE"})
		return
	}

	c.Status(http.StatusNoContent)
}

// LoadIndex handles GET /api/mail/accounts/:id/index.
func (h *AccountHandler) LoadIndex(c *gin.Context) {
	accountID := c.Param("id")

	blob, err := h.accounts.LoadSearchIndex(c.Request.Context(), currentUser(c), accountID)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "ACCOUNT_NOT_FOUND"})
			return
		}
		h.logger.Error("Failed to load search index",
			zap.String("account_id", accountID),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "FAILED_TO_LOAD"})
		return
	}
	if len(blob) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "INDEX_NOT_FOUND"})
		return
	}

	c.Data(http.StatusOK, "application/octet-stream", blob)
}

// Unlink handles DELETE /api/mail/accounts/:id: removes the account and its
// derived mail data.
func (h *AccountHandler) Unlink(c *gin.Context) {
	accountID := c.Param("id")

	if err := h.accounts.Unlink(c.Request.Context(), currentUser(c), accountID); err != nil {
		if errors.Is(err, account.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "ACCOUNT_NOT_FOUND"})
			return
		}
		h.logger.Error("Unlink failed",
			zap.String("account_id", accountID),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "FAILED_TO_UNLINK"})
		return
	}

	c.Status(http.StatusNoContent)
}

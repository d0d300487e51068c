package api

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"mailpilot/internal/model"
	"mailpilot/pkg/metrics"
)

const (
	headerTimestamp = "X-Request-Timestamp"
	headerSignature = "X-Signature"
)

// Notification is the provider's push payload.
type Notification struct {
	Subscription int64  `json:"subscription"`
	Resource     string `json:"resource"`
	AccountID    int64  `json:"accountId"`
	Payloads     []struct {
		ID         string `json:"id"`
		ChangeType string `json:"changeType"`
		Attributes struct {
			ThreadID string `json:"threadId"`
		} `json:"attributes"`
	} `json:"payloads"`
}

// accountFinder resolves the notified account.
type accountFinder interface {
	FindByID(ctx context.Context, id string) (*model.Account, error)
}

// sweeper runs the opportunistic stale-account sweep.
type sweeper interface {
	SyncStale(ctx context.Context, extra *model.Account) (int, error)
}

type WebhookHandler struct {
	signingSecret string
	accounts      accountFinder
	syncs         sweeper
	logger        *zap.Logger
}

func NewWebhookHandler(signingSecret string, accounts accountFinder, syncs sweeper, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{
		signingSecret: signingSecret,
		accounts:      accounts,
		syncs:         syncs,
		logger:        logger,
	}
}

// Handle processes POSTed provider notifications. Validation handshakes echo
// the token and bypass signature checks. Signed notifications trigger a sync
// for the notified account plus an opportunistic sweep of stale accounts.
// Processing failures still return 200 so the provider does not redeliver.
func (h *WebhookHandler) Handle(c *gin.Context) {
	if token := c.Query("validationToken"); token != "" {
		metrics.WebhookRequests.WithLabelValues("validated").Inc()
		c.String(http.StatusOK, token)
		return
	}

	timestamp := c.GetHeader(headerTimestamp)
	signature := c.GetHeader(headerSignature)
	body, err := io.ReadAll(c.Request.Body)
	if err != nil || timestamp == "" || signature == "" || len(body) == 0 {
		metrics.WebhookRequests.WithLabelValues("bad_request").Inc()
		c.String(http.StatusBadRequest, "Bad Request")
		return
	}

	if !verifySignature(h.signingSecret, timestamp, body, signature) {
		metrics.WebhookRequests.WithLabelValues("bad_signature").Inc()
		c.String(http.StatusUnauthorized, "Unauthorized")
		return
	}
	metrics.WebhookRequests.WithLabelValues("accepted").Inc()

	var extra *model.Account
	var note Notification
	if err := json.Unmarshal(body, &note); err != nil {
		h.logger.Warn("Unparseable webhook notification", zap.Error(err))
	} else if note.AccountID != 0 {
		account, err := h.accounts.FindByID(c.Request.Context(), strconv.FormatInt(note.AccountID, 10))
		switch {
		case err == nil:
			extra = account
		case errors.Is(err, pgx.ErrNoRows):
			h.logger.Warn("Webhook for unknown account",
				zap.Int64("provider_account_id", note.AccountID),
			)
		default:
			h.logger.Error("Failed to resolve webhook account", zap.Error(err))
		}
	}

	synced, err := h.syncs.SyncStale(c.Request.Context(), extra)
	if err != nil {
		// acknowledged anyway; redelivery would not help
		h.logger.Error("Webhook sweep failed", zap.Error(err))
		c.String(http.StatusOK, "Sync failed, acknowledged")
		return
	}

	if extra == nil && synced == 0 && note.AccountID != 0 {
		c.String(http.StatusNotFound, "No matching account")
		return
	}

	c.String(http.StatusOK, "Sync completed")
}

// verifySignature checks the hex HMAC-SHA256 of "v0:<timestamp>:<body>".
func verifySignature(secret, timestamp string, body []byte, signature string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte("v0:" + timestamp + ":"))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(signature))
}

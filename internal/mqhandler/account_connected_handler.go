package mqhandler

import (
	"context"
	"encoding/json"
	"errors"

	"go.uber.org/zap"

	"mailpilot/internal/mq"
	"mailpilot/internal/syncer"
)

// initialSyncer runs the deferred first sync for a freshly connected account.
type initialSyncer interface {
	InitialSync(ctx context.Context, accountID string, daysWithin int) error
}

// AccountConnectedHandler consumes account.connected and runs the initial
// sync the OAuth callback deferred.
type AccountConnectedHandler struct {
	syncs      initialSyncer
	daysWithin int
	logger     *zap.Logger
}

func NewAccountConnectedHandler(syncs initialSyncer, daysWithin int, logger *zap.Logger) *AccountConnectedHandler {
	return &AccountConnectedHandler{
		syncs:      syncs,
		daysWithin: daysWithin,
		logger:     logger,
	}
}

func (h *AccountConnectedHandler) Handle(ctx context.Context, data json.RawMessage) error {
	var payload mq.AccountConnectedPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		// malformed payload, requeueing cannot fix it
		h.logger.Error("Unparseable account.connected payload", zap.Error(err))
		return nil
	}

	h.logger.Info("Running deferred initial sync",
		zap.String("account_id", payload.AccountID),
		zap.String("user_id", payload.UserID),
	)

	err := h.syncs.InitialSync(ctx, payload.AccountID, h.daysWithin)
	if err != nil {
		if errors.Is(err, syncer.ErrAccountNotFound) {
			// unlinked before the worker got to it
			h.logger.Warn("Account gone before initial sync",
				zap.String("account_id", payload.AccountID),
			)
			return nil
		}
		if errors.Is(err, syncer.ErrLeaseHeld) {
			// another trigger got there first, nothing left to do
			return nil
		}
		var timeout *syncer.TimeoutError
		if errors.As(err, &timeout) {
			// requeue; the provider snapshot may be ready next attempt
			return err
		}
		h.logger.Error("Initial sync failed",
			zap.String("account_id", payload.AccountID),
			zap.Error(err),
		)
		return err
	}

	return nil
}

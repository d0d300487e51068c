package syncer

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"mailpilot/internal/provider"
)

// StepRequest is one client-driven step of a sync. The client keeps calling
// with the returned page token until Complete.
type StepRequest struct {
	AccountID  string
	UserID     string
	PageToken  string
	DeltaToken string
}

// StepResult tells the client how to continue.
type StepResult struct {
	SyncInProgress bool
	NextPageToken  string
	NextDeltaToken string
	Complete       bool
}

// SyncStep drives the machine one provider call at a time for the manual
// sync endpoint. A page token continues an in-progress pull, a delta token
// pulls an increment, and neither starts an initial sync (subscription
// registration, snapshot request, first page). No lease is taken: the client
// holds the paging state across requests, so there is no session to guard.
func (s *Service) SyncStep(ctx context.Context, req *StepRequest) (*StepResult, error) {
	account, err := s.accounts.FindByIDAndUser(ctx, req.AccountID, req.UserID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}

	client := s.clients.ForToken(account.Token)

	if req.PageToken != "" {
		return s.stepPage(ctx, account.ID, client, "", req.PageToken)
	}
	if req.DeltaToken != "" {
		return s.stepPage(ctx, account.ID, client, req.DeltaToken, "")
	}

	// fresh start: register the push endpoint, then request a short snapshot
	if _, err := client.CreateSubscription(ctx, "/email/messages", s.webhookURL); err != nil {
		s.logger.Warn("Failed to register webhook subscription",
			zap.String("account_id", account.ID),
			zap.Error(err),
		)
	}

	sr, err := client.StartSync(ctx, s.cfg.InitialDaysWithin)
	if err != nil {
		return nil, err
	}
	if !sr.Ready {
		// client retries; nothing persisted yet
		return &StepResult{SyncInProgress: true}, nil
	}

	return s.stepPage(ctx, account.ID, client, sr.SyncUpdatedToken, "")
}

func (s *Service) stepPage(ctx context.Context, accountID string, client provider.Mail, deltaToken, pageToken string) (*StepResult, error) {
	page, err := client.GetUpdatedEmails(ctx, deltaToken, pageToken)
	if err != nil {
		return nil, err
	}

	for _, batch := range chunk(page.Records, s.cfg.IngestBatchSize) {
		if err := s.writer.WriteBatch(ctx, accountID, batch); err != nil {
			return nil, err
		}
	}

	if page.NextDeltaToken != "" {
		if err := s.accounts.UpdateDeltaToken(ctx, accountID, page.NextDeltaToken); err != nil {
			return nil, err
		}
	}

	return &StepResult{
		NextPageToken:  page.NextPageToken,
		NextDeltaToken: page.NextDeltaToken,
		Complete:       page.NextPageToken == "",
	}, nil
}

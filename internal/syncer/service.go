package syncer

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"mailpilot/config"
	"mailpilot/internal/model"
	"mailpilot/internal/provider"
	"mailpilot/pkg/metrics"
	"mailpilot/pkg/util"
)

// AccountStore is the account repository surface the service needs.
type AccountStore interface {
	CursorStore
	FindByID(ctx context.Context, id string) (*model.Account, error)
	FindByIDAndUser(ctx context.Context, id, userID string) (*model.Account, error)
	ListStale(ctx context.Context, olderThan time.Time, limit int) ([]model.Account, error)
	MarkResynced(ctx context.Context, id string, at time.Time) error
	ResetResyncCount(ctx context.Context, id string) error
}

// ClientFactory builds a provider client bound to one account's credential.
type ClientFactory interface {
	ForToken(token string) provider.Mail
}

// Leaser guards an account against concurrent sync sessions.
type Leaser interface {
	Acquire(ctx context.Context, accountID string) bool
	Release(ctx context.Context, accountID string)
}

// Service drives sync sessions for the trigger surfaces: webhook, cron sweep,
// the deferred initial sync, and the manual sync/resync endpoints. All
// collaborators are injected; nothing here is ambient.
type Service struct {
	accounts   AccountStore
	writer     Ingestor
	clients    ClientFactory
	leases     Leaser
	cfg        config.SyncConfig
	webhookURL string
	logger     *zap.Logger
}

func NewService(accounts AccountStore, writer Ingestor, clients ClientFactory, leases Leaser, cfg config.SyncConfig, webhookURL string, logger *zap.Logger) *Service {
	return &Service{
		accounts:   accounts,
		writer:     writer,
		clients:    clients,
		leases:     leases,
		cfg:        cfg,
		webhookURL: webhookURL,
		logger:     logger,
	}
}

// InitialSync runs a from-scratch session for an account. Used by the worker
// after an OAuth callback (short day window) and as the webhook's fallback
// for accounts that never completed a first pass (full window).
func (s *Service) InitialSync(ctx context.Context, accountID string, daysWithin int) error {
	account, err := s.accounts.FindByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrAccountNotFound
		}
		return err
	}
	return s.run(ctx, account, "initial", func(sess *Session) (*Result, error) {
		return sess.RunInitial(ctx, daysWithin)
	})
}

// IncrementalSync pulls the change stream from the account's stored cursor.
func (s *Service) IncrementalSync(ctx context.Context, account *model.Account) error {
	if !account.HasDeltaToken() {
		return ErrNoDeltaToken
	}
	return s.run(ctx, account, "incremental", func(sess *Session) (*Result, error) {
		return sess.RunIncremental(ctx, *account.NextDeltaToken)
	})
}

// SyncAccount syncs one account whichever way its state allows: incremental
// when a cursor exists, otherwise a full initial session.
func (s *Service) SyncAccount(ctx context.Context, account *model.Account) error {
	if account.HasDeltaToken() {
		return s.IncrementalSync(ctx, account)
	}
	s.logger.Info("No delta token, falling back to initial sync",
		zap.String("account_id", account.ID),
	)
	return s.run(ctx, account, "initial", func(sess *Session) (*Result, error) {
		return sess.RunInitial(ctx, s.cfg.FullDaysWithin)
	})
}

// SyncStale sweeps a bounded batch of accounts whose last sync is missing or
// older than the staleness threshold, oldest first. extra, when non-nil, is a
// webhook-notified account joined into the batch; the sweep is deduplicated
// by account ID. Accounts run concurrently and failures are isolated: a
// failed account keeps its stale timestamp and is retried next sweep.
func (s *Service) SyncStale(ctx context.Context, extra *model.Account) (int, error) {
	cutoff := time.Now().Add(-s.cfg.StaleAfter())
	accounts, err := s.accounts.ListStale(ctx, cutoff, s.cfg.SweepBatchSize)
	if err != nil {
		return 0, err
	}
	if extra != nil {
		accounts = append(accounts, *extra)
	}

	seen := make(map[string]bool, len(accounts))
	var wg sync.WaitGroup
	synced := 0
	var mu sync.Mutex

	for i := range accounts {
		account := accounts[i]
		if seen[account.ID] {
			continue
		}
		seen[account.ID] = true

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.SyncAccount(ctx, &account); err != nil {
				retryable, class := util.IsRetryableError(err)
				s.logger.Error("Failed to sync account",
					zap.String("account_id", account.ID),
					zap.String("class", class),
					zap.Bool("retryable", retryable),
					zap.Error(err),
				)
				return
			}
			mu.Lock()
			synced++
			mu.Unlock()
		}()
	}
	wg.Wait()

	return synced, nil
}

// Resync reruns a full session on user request, throttled to one per rolling
// cooldown window per account.
func (s *Service) Resync(ctx context.Context, accountID, userID string) error {
	account, err := s.accounts.FindByIDAndUser(ctx, accountID, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrAccountNotFound
		}
		return err
	}

	cooldown := s.cfg.ResyncCooldown()
	if account.LastResyncAt != nil {
		elapsed := time.Since(*account.LastResyncAt)
		if elapsed < cooldown {
			remaining := cooldown - elapsed
			return &ThrottledError{HoursRemaining: int(remaining.Hours()) + 1}
		}
		// window elapsed, counter starts over
		if err := s.accounts.ResetResyncCount(ctx, account.ID); err != nil {
			return err
		}
		account.ResyncCount = 0
	}

	if account.ResyncCount >= s.cfg.ResyncMaxPerWindow {
		return &ThrottledError{HoursRemaining: s.cfg.ResyncCooldownHrs}
	}

	err = s.run(ctx, account, "resync", func(sess *Session) (*Result, error) {
		return sess.RunInitial(ctx, s.cfg.FullDaysWithin)
	})
	if err != nil {
		return err
	}

	return s.accounts.MarkResynced(ctx, account.ID, time.Now())
}

// run wraps one session with the per-account lease and metrics. The lease
// makes concurrent triggers (webhook plus cron) skip instead of racing on
// the cursor; MarkSynced happens inside the session, on success only.
func (s *Service) run(ctx context.Context, account *model.Account, mode string, fn func(*Session) (*Result, error)) error {
	if !s.leases.Acquire(ctx, account.ID) {
		metrics.LeaseSkips.Inc()
		return ErrLeaseHeld
	}
	defer s.leases.Release(ctx, account.ID)

	sess := NewSession(account.ID, s.clients.ForToken(account.Token), s.writer, s.accounts, s.cfg, s.logger)

	start := time.Now()
	_, err := fn(sess)
	if err != nil {
		_, class := util.IsRetryableError(err)
		var te *TimeoutError
		if errors.As(err, &te) {
			class = "sync_timeout"
		}
		metrics.SyncFailures.WithLabelValues(mode, class).Inc()
		metrics.RecordSyncSession(mode, "failed", time.Since(start))
		return err
	}

	metrics.RecordSyncSession(mode, "success", time.Since(start))
	return nil
}

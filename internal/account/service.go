package account

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"mailpilot/internal/model"
	"mailpilot/internal/mq"
	"mailpilot/internal/provider"
)

// ErrNotFound is returned when an account does not exist or is not owned by
// the requesting user.
var ErrNotFound = errors.New("account not found")

// Store is the account repository surface this service needs.
type Store interface {
	Upsert(ctx context.Context, a *model.Account) error
	FindByIDAndUser(ctx context.Context, id, userID string) (*model.Account, error)
	Delete(ctx context.Context, id, userID string) error
	SaveSearchIndex(ctx context.Context, id string, blob []byte) error
	LoadSearchIndex(ctx context.Context, id string) ([]byte, error)
}

// Connector exchanges OAuth codes and builds per-token provider clients.
type Connector interface {
	ExchangeCode(ctx context.Context, code string) (*provider.TokenResponse, error)
	ForToken(token string) provider.Mail
}

// Publisher emits events for the worker.
type Publisher interface {
	Publish(routingKey string, payload any) error
}

// Service handles account lifecycle: OAuth connection, outbound send, unlink.
type Service struct {
	store      Store
	connector  Connector
	publisher  Publisher
	webhookURL string
	logger     *zap.Logger
}

func NewService(store Store, connector Connector, publisher Publisher, webhookURL string, logger *zap.Logger) *Service {
	return &Service{
		store:      store,
		connector:  connector,
		publisher:  publisher,
		webhookURL: webhookURL,
		logger:     logger,
	}
}

// Connect completes an OAuth callback: exchange the code, fetch the profile,
// upsert the account keyed by the provider-assigned ID, register the webhook
// subscription, and hand the initial sync to the worker so the HTTP response
// does not block on it.
func (s *Service) Connect(ctx context.Context, userID, code string) (*model.Account, error) {
	token, err := s.connector.ExchangeCode(ctx, code)
	if err != nil {
		return nil, err
	}

	client := s.connector.ForToken(token.AccessToken)
	profile, err := client.GetProfile(ctx)
	if err != nil {
		return nil, err
	}

	account := &model.Account{
		ID:           strconv.FormatInt(profile.ID, 10),
		UserID:       userID,
		Provider:     "aurinko",
		Token:        token.AccessToken,
		EmailAddress: profile.Email,
		Name:         profile.Name,
	}
	if err := s.store.Upsert(ctx, account); err != nil {
		return nil, err
	}

	if _, err := client.CreateSubscription(ctx, "/email/messages", s.webhookURL); err != nil {
		// sync still works via cron sweeps without the push subscription
		s.logger.Warn("Failed to register webhook subscription",
			zap.String("account_id", account.ID),
			zap.Error(err),
		)
	}

	payload := mq.AccountConnectedPayload{
		AccountID:   account.ID,
		UserID:      userID,
		ConnectedAt: time.Now(),
	}
	if err := s.publisher.Publish(mq.RoutingKeyAccountConnected, payload); err != nil {
		s.logger.Error("Failed to publish account.connected",
			zap.String("account_id", account.ID),
			zap.Error(err),
		)
	}

	s.logger.Info("Account connected",
		zap.String("account_id", account.ID),
		zap.String("email", account.EmailAddress),
	)
	return account, nil
}

// Send dispatches an outbound message through the owning account's credential.
func (s *Service) Send(ctx context.Context, userID, accountID string, req *provider.SendRequest) (*provider.SendResponse, error) {
	account, err := s.find(ctx, accountID, userID)
	if err != nil {
		return nil, err
	}
	return s.connector.ForToken(account.Token).SendEmail(ctx, req)
}

// SaveSearchIndex stores the client's serialized search index for an account.
// The blob is opaque here; the web client builds and queries it.
func (s *Service) SaveSearchIndex(ctx context.Context, userID, accountID string, blob []byte) error {
	if _, err := s.find(ctx, accountID, userID); err != nil {
		return err
	}
	return s.store.SaveSearchIndex(ctx, accountID, blob)
}

// LoadSearchIndex returns the stored index blob, nil when none exists yet.
func (s *Service) LoadSearchIndex(ctx context.Context, userID, accountID string) ([]byte, error) {
	if _, err := s.find(ctx, accountID, userID); err != nil {
		return nil, err
	}
	return s.store.LoadSearchIndex(ctx, accountID)
}

// Unlink removes an account and its derived mail data. Explicit user action.
func (s *Service) Unlink(ctx context.Context, userID, accountID string) error {
	if _, err := s.find(ctx, accountID, userID); err != nil {
		return err
	}
	return s.store.Delete(ctx, accountID, userID)
}

func (s *Service) find(ctx context.Context, accountID, userID string) (*model.Account, error) {
	account, err := s.store.FindByIDAndUser(ctx, accountID, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return account, nil
}

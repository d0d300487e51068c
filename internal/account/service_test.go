package account

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mailpilot/internal/model"
	"mailpilot/internal/mq"
	"mailpilot/internal/provider"
)

type fakeStore struct {
	upserted *model.Account
	accounts map[string]*model.Account
	deleted  []string
	indexes  map[string][]byte
}

func (f *fakeStore) Upsert(ctx context.Context, a *model.Account) error {
	f.upserted = a
	return nil
}

func (f *fakeStore) FindByIDAndUser(ctx context.Context, id, userID string) (*model.Account, error) {
	if a, ok := f.accounts[id]; ok && a.UserID == userID {
		return a, nil
	}
	return nil, pgx.ErrNoRows
}

func (f *fakeStore) Delete(ctx context.Context, id, userID string) error {
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeStore) SaveSearchIndex(ctx context.Context, id string, blob []byte) error {
	if f.indexes == nil {
		f.indexes = map[string][]byte{}
	}
	f.indexes[id] = blob
	return nil
}

func (f *fakeStore) LoadSearchIndex(ctx context.Context, id string) ([]byte, error) {
	return f.indexes[id], nil
}

type fakeMail struct {
	profile  *provider.Profile
	subErr   error
	subCalls int
	sendResp *provider.SendResponse
	sent     *provider.SendRequest
}

func (f *fakeMail) GetProfile(ctx context.Context) (*provider.Profile, error) {
	return f.profile, nil
}

func (f *fakeMail) StartSync(ctx context.Context, daysWithin int) (*provider.SyncResponse, error) {
	return &provider.SyncResponse{}, nil
}

func (f *fakeMail) GetUpdatedEmails(ctx context.Context, deltaToken, pageToken string) (*provider.SyncUpdatedResponse, error) {
	return &provider.SyncUpdatedResponse{}, nil
}

func (f *fakeMail) CreateSubscription(ctx context.Context, resource, notificationURL string) (*provider.Subscription, error) {
	f.subCalls++
	if f.subErr != nil {
		return nil, f.subErr
	}
	return &provider.Subscription{ID: 1, Resource: resource, NotificationURL: notificationURL}, nil
}

func (f *fakeMail) ListSubscriptions(ctx context.Context) (*provider.SubscriptionList, error) {
	return &provider.SubscriptionList{}, nil
}

func (f *fakeMail) DeleteSubscription(ctx context.Context, subscriptionID int64) error {
	return nil
}

func (f *fakeMail) SendEmail(ctx context.Context, req *provider.SendRequest) (*provider.SendResponse, error) {
	f.sent = req
	return f.sendResp, nil
}

type fakeConnector struct {
	token    *provider.TokenResponse
	tokenErr error
	mail     *fakeMail
	forToken []string
}

func (f *fakeConnector) ExchangeCode(ctx context.Context, code string) (*provider.TokenResponse, error) {
	return f.token, f.tokenErr
}

func (f *fakeConnector) ForToken(token string) provider.Mail {
	f.forToken = append(f.forToken, token)
	return f.mail
}

type fakePublisher struct {
	keys     []string
	payloads []any
	err      error
}

func (f *fakePublisher) Publish(routingKey string, payload any) error {
	f.keys = append(f.keys, routingKey)
	f.payloads = append(f.payloads, payload)
	return f.err
}

func TestConnectLinksAccountAndDefersInitialSync(t *testing.T) {
	store := &fakeStore{}
	mail := &fakeMail{profile: &provider.Profile{ID: 42, Email: "alice@example.com", Name: "Alice"}}
	conn := &fakeConnector{token: &provider.TokenResponse{AccessToken: "tok-1", AccountID: 42}, mail: mail}
	pub := &fakePublisher{}
	svc := NewService(store, conn, pub, "https://hook.example", zap.NewNop())

	acct, err := svc.Connect(context.Background(), "user-1", "code-1")

	require.NoError(t, err)
	assert.Equal(t, "42", acct.ID, "account keyed by provider-assigned ID")
	assert.Equal(t, "user-1", acct.UserID)
	assert.Equal(t, "tok-1", acct.Token)
	assert.Equal(t, "alice@example.com", acct.EmailAddress)
	require.NotNil(t, store.upserted)

	assert.Equal(t, 1, mail.subCalls)

	require.Equal(t, []string{mq.RoutingKeyAccountConnected}, pub.keys)
	payload, ok := pub.payloads[0].(mq.AccountConnectedPayload)
	require.True(t, ok)
	assert.Equal(t, "42", payload.AccountID)
	assert.Equal(t, "user-1", payload.UserID)

	// payload round-trips for the worker
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	var decoded mq.AccountConnectedPayload
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, payload.AccountID, decoded.AccountID)
}

func TestConnectReconnectKeepsProviderID(t *testing.T) {
	store := &fakeStore{}
	mail := &fakeMail{profile: &provider.Profile{ID: 42, Email: "alice@example.com"}}
	conn := &fakeConnector{token: &provider.TokenResponse{AccessToken: "tok-2", AccountID: 42}, mail: mail}
	svc := NewService(store, conn, &fakePublisher{}, "https://hook.example", zap.NewNop())

	acct, err := svc.Connect(context.Background(), "user-1", "code-2")

	require.NoError(t, err)
	assert.Equal(t, "42", acct.ID)
	assert.Equal(t, "tok-2", acct.Token, "reconnect refreshes the credential")
}

func TestConnectSurvivesSubscriptionFailure(t *testing.T) {
	store := &fakeStore{}
	mail := &fakeMail{
		profile: &provider.Profile{ID: 42, Email: "alice@example.com"},
		subErr:  errors.New("subscription quota exceeded"),
	}
	conn := &fakeConnector{token: &provider.TokenResponse{AccessToken: "tok-1"}, mail: mail}
	pub := &fakePublisher{}
	svc := NewService(store, conn, pub, "https://hook.example", zap.NewNop())

	_, err := svc.Connect(context.Background(), "user-1", "code-1")

	require.NoError(t, err, "cron sweeps cover accounts without push")
	assert.Len(t, pub.keys, 1, "initial sync still deferred to the worker")
}

func TestConnectFailedExchange(t *testing.T) {
	conn := &fakeConnector{
		tokenErr: &provider.AuthError{APIError: provider.APIError{Op: "exchange_code", Status: 401}},
	}
	svc := NewService(&fakeStore{}, conn, &fakePublisher{}, "https://hook.example", zap.NewNop())

	_, err := svc.Connect(context.Background(), "user-1", "bad-code")

	var authErr *provider.AuthError
	require.ErrorAs(t, err, &authErr)
}

func TestSendUsesOwningAccountCredential(t *testing.T) {
	mail := &fakeMail{sendResp: &provider.SendResponse{ID: "m-1", ThreadID: "t-1"}}
	conn := &fakeConnector{mail: mail}
	store := &fakeStore{accounts: map[string]*model.Account{
		"42": {ID: "42", UserID: "user-1", Token: "tok-42"},
	}}
	svc := NewService(store, conn, &fakePublisher{}, "https://hook.example", zap.NewNop())

	sent, err := svc.Send(context.Background(), "user-1", "42", &provider.SendRequest{Subject: "hi"})

	require.NoError(t, err)
	assert.Equal(t, "m-1", sent.ID)
	assert.Equal(t, []string{"tok-42"}, conn.forToken)
	assert.Equal(t, "hi", mail.sent.Subject)
}

func TestSendForeignAccount(t *testing.T) {
	store := &fakeStore{accounts: map[string]*model.Account{
		"42": {ID: "42", UserID: "someone-else", Token: "tok-42"},
	}}
	svc := NewService(store, &fakeConnector{}, &fakePublisher{}, "https://hook.example", zap.NewNop())

	_, err := svc.Send(context.Background(), "user-1", "42", &provider.SendRequest{})

	require.ErrorIs(t, err, ErrNotFound)
}

func TestUnlinkDeletesOwnedAccount(t *testing.T) {
	store := &fakeStore{accounts: map[string]*model.Account{
		"42": {ID: "42", UserID: "user-1"},
	}}
	svc := NewService(store, &fakeConnector{}, &fakePublisher{}, "https://hook.example", zap.NewNop())

	require.NoError(t, svc.Unlink(context.Background(), "user-1", "42"))
	assert.Equal(t, []string{"42"}, store.deleted)
}

func TestSearchIndexRoundTrip(t *testing.T) {
	store := &fakeStore{accounts: map[string]*model.Account{
		"42": {ID: "42", UserID: "user-1"},
	}}
	svc := NewService(store, &fakeConnector{}, &fakePublisher{}, "https://hook.example", zap.NewNop())

	blob := []byte("serialized index")
	require.NoError(t, svc.SaveSearchIndex(context.Background(), "user-1", "42", blob))

	got, err := svc.LoadSearchIndex(context.Background(), "user-1", "42")
	require.NoError(t, err)
	assert.Equal(t, blob, got)
}

func TestSearchIndexChecksOwnership(t *testing.T) {
	store := &fakeStore{accounts: map[string]*model.Account{
		"42": {ID: "42", UserID: "someone-else"},
	}}
	svc := NewService(store, &fakeConnector{}, &fakePublisher{}, "https://hook.example", zap.NewNop())

	err := svc.SaveSearchIndex(context.Background(), "user-1", "42", []byte("x"))
	require.ErrorIs(t, err, ErrNotFound)

	_, err = svc.LoadSearchIndex(context.Background(), "user-1", "42")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestUnlinkUnknownAccount(t *testing.T) {
	svc := NewService(&fakeStore{}, &fakeConnector{}, &fakePublisher{}, "https://hook.example", zap.NewNop())

	err := svc.Unlink(context.Background(), "user-1", "ghost")

	require.ErrorIs(t, err, ErrNotFound)
}

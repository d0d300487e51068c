package syncer

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"mailpilot/internal/model"
	"mailpilot/internal/provider"
)

// scriptedMail plays back a fixed sequence of start-sync and page responses.
type scriptedMail struct {
	startResponses []provider.SyncResponse
	pages          []provider.SyncUpdatedResponse
	pageErrs       []error

	startCalls int
	pageCalls  int
	pageArgs   [][2]string // deltaToken, pageToken per call
	subCalls   int
}

func (m *scriptedMail) StartSync(ctx context.Context, daysWithin int) (*provider.SyncResponse, error) {
	idx := m.startCalls
	m.startCalls++
	if idx >= len(m.startResponses) {
		idx = len(m.startResponses) - 1
	}
	resp := m.startResponses[idx]
	return &resp, nil
}

func (m *scriptedMail) GetUpdatedEmails(ctx context.Context, deltaToken, pageToken string) (*provider.SyncUpdatedResponse, error) {
	idx := m.pageCalls
	m.pageCalls++
	m.pageArgs = append(m.pageArgs, [2]string{deltaToken, pageToken})
	if idx < len(m.pageErrs) && m.pageErrs[idx] != nil {
		return nil, m.pageErrs[idx]
	}
	resp := m.pages[idx]
	return &resp, nil
}

func (m *scriptedMail) GetProfile(ctx context.Context) (*provider.Profile, error) {
	return &provider.Profile{}, nil
}

func (m *scriptedMail) CreateSubscription(ctx context.Context, resource, notificationURL string) (*provider.Subscription, error) {
	m.subCalls++
	return &provider.Subscription{}, nil
}

func (m *scriptedMail) ListSubscriptions(ctx context.Context) (*provider.SubscriptionList, error) {
	return &provider.SubscriptionList{}, nil
}

func (m *scriptedMail) DeleteSubscription(ctx context.Context, subscriptionID int64) error {
	return nil
}

func (m *scriptedMail) SendEmail(ctx context.Context, req *provider.SendRequest) (*provider.SendResponse, error) {
	return &provider.SendResponse{}, nil
}

type fakeFactory struct {
	client provider.Mail
}

func (f *fakeFactory) ForToken(token string) provider.Mail { return f.client }

// memAccounts is an in-memory account store.
type memAccounts struct {
	mu       sync.Mutex
	accounts map[string]*model.Account

	committedTokens []string // every UpdateDeltaToken call, in order
	markedSynced    []string // tokens passed to MarkSynced
	resyncResets    int
	listErr         error
}

func newMemAccounts(accounts ...*model.Account) *memAccounts {
	m := &memAccounts{accounts: map[string]*model.Account{}}
	for _, a := range accounts {
		m.accounts[a.ID] = a
	}
	return m
}

func (m *memAccounts) FindByID(ctx context.Context, id string) (*model.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *a
	return &cp, nil
}

func (m *memAccounts) FindByIDAndUser(ctx context.Context, id, userID string) (*model.Account, error) {
	a, err := m.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.UserID != userID {
		return nil, pgx.ErrNoRows
	}
	return a, nil
}

func (m *memAccounts) UpdateDeltaToken(ctx context.Context, id, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.accounts[id]; ok {
		t := token
		a.NextDeltaToken = &t
	}
	m.committedTokens = append(m.committedTokens, token)
	return nil
}

func (m *memAccounts) MarkSynced(ctx context.Context, id, token string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.accounts[id]; ok {
		t := token
		a.NextDeltaToken = &t
		ts := at
		a.LastSyncedAt = &ts
	}
	m.markedSynced = append(m.markedSynced, token)
	return nil
}

func (m *memAccounts) ListStale(ctx context.Context, olderThan time.Time, limit int) ([]model.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := []model.Account{}
	for _, a := range m.accounts {
		if !a.HasDeltaToken() {
			continue
		}
		if a.LastSyncedAt == nil || a.LastSyncedAt.Before(olderThan) {
			out = append(out, *a)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *memAccounts) MarkResynced(ctx context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.accounts[id]; ok {
		ts := at
		a.LastResyncAt = &ts
		a.ResyncCount++
	}
	return nil
}

func (m *memAccounts) ResetResyncCount(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.accounts[id]; ok {
		a.ResyncCount = 0
	}
	m.resyncResets++
	return nil
}

// recordingWriter collects batches and can fail on a given call number.
type recordingWriter struct {
	mu      sync.Mutex
	batches [][]provider.EmailRecord
	failOn  int // 1-based call number that errors; 0 never fails
	calls   int
	err     error
}

func (w *recordingWriter) WriteBatch(ctx context.Context, accountID string, records []provider.EmailRecord) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls++
	if w.failOn != 0 && w.calls == w.failOn {
		return w.err
	}
	w.batches = append(w.batches, records)
	return nil
}

func (w *recordingWriter) total() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := 0
	for _, b := range w.batches {
		n += len(b)
	}
	return n
}

// openLease never blocks; heldLease always does.
type openLease struct {
	mu       sync.Mutex
	acquired []string
	released []string
}

func (l *openLease) Acquire(ctx context.Context, accountID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.acquired = append(l.acquired, accountID)
	return true
}

func (l *openLease) Release(ctx context.Context, accountID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.released = append(l.released, accountID)
}

type heldLease struct{}

func (heldLease) Acquire(ctx context.Context, accountID string) bool { return false }
func (heldLease) Release(ctx context.Context, accountID string)      {}

package syncer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mailpilot/config"
	"mailpilot/internal/provider"
)

func testSyncConfig() config.SyncConfig {
	return config.SyncConfig{
		InitialDaysWithin:  3,
		FullDaysWithin:     30,
		ReadyPollAttempts:  5,
		ReadyPollDelaySec:  0, // no sleeping in tests
		StaleAfterSec:      240,
		SweepBatchSize:     3,
		IngestBatchSize:    100,
		LeaseTTLSec:        120,
		ResyncCooldownHrs:  24,
		ResyncMaxPerWindow: 1,
	}
}

func records(ids ...string) []provider.EmailRecord {
	out := make([]provider.EmailRecord, 0, len(ids))
	for _, id := range ids {
		out = append(out, provider.EmailRecord{ID: id, ThreadID: "t-" + id})
	}
	return out
}

func TestIncrementalWithoutDeltaTokenMakesNoProviderCalls(t *testing.T) {
	mail := &scriptedMail{}
	store := newMemAccounts()
	writer := &recordingWriter{}

	sess := NewSession("acc-1", mail, writer, store, testSyncConfig(), zap.NewNop())
	_, err := sess.RunIncremental(context.Background(), "")

	require.ErrorIs(t, err, ErrNoDeltaToken)
	assert.Equal(t, 0, mail.startCalls)
	assert.Equal(t, 0, mail.pageCalls)
	assert.Equal(t, StateFailed, sess.State())
	assert.Empty(t, store.committedTokens)
}

func TestPaginationTerminatesAfterLastPage(t *testing.T) {
	// 3 pages; only the last carries a fresh delta token and no page token.
	mail := &scriptedMail{
		pages: []provider.SyncUpdatedResponse{
			{Records: records("m1", "m2"), NextPageToken: "p2"},
			{Records: records("m3"), NextPageToken: "p3"},
			{Records: records("m4"), NextDeltaToken: "d-final"},
		},
	}
	store := newMemAccounts()
	writer := &recordingWriter{}

	sess := NewSession("acc-1", mail, writer, store, testSyncConfig(), zap.NewNop())
	res, err := sess.RunIncremental(context.Background(), "d-start")

	require.NoError(t, err)
	assert.Equal(t, 3, mail.pageCalls)
	assert.Equal(t, StateComplete, sess.State())
	assert.Equal(t, "d-final", res.DeltaToken)
	assert.Equal(t, 4, writer.total())
	require.NotEmpty(t, store.markedSynced)
	assert.Equal(t, "d-final", store.markedSynced[0])

	// page order: first call by delta token, the rest by page token
	assert.Equal(t, [2]string{"d-start", ""}, mail.pageArgs[0])
	assert.Equal(t, [2]string{"", "p2"}, mail.pageArgs[1])
	assert.Equal(t, [2]string{"", "p3"}, mail.pageArgs[2])
}

func TestReadyPollingIsBounded(t *testing.T) {
	mail := &scriptedMail{
		startResponses: []provider.SyncResponse{{Ready: false}},
	}
	store := newMemAccounts()
	writer := &recordingWriter{}

	sess := NewSession("acc-1", mail, writer, store, testSyncConfig(), zap.NewNop())
	_, err := sess.RunInitial(context.Background(), 3)

	var timeout *TimeoutError
	require.ErrorAs(t, err, &timeout)
	assert.Equal(t, 5, timeout.Attempts)
	assert.Equal(t, 5, mail.startCalls)
	assert.Equal(t, 0, mail.pageCalls)
	assert.Equal(t, StateFailed, sess.State())
	assert.Empty(t, store.committedTokens)
	assert.Empty(t, store.markedSynced)
}

func TestInitialSyncBecomesReadyAndPages(t *testing.T) {
	mail := &scriptedMail{
		startResponses: []provider.SyncResponse{
			{Ready: false},
			{Ready: true, SyncUpdatedToken: "sut-1"},
		},
		pages: []provider.SyncUpdatedResponse{
			{Records: records("m1"), NextDeltaToken: "d1"},
		},
	}
	store := newMemAccounts()
	writer := &recordingWriter{}

	sess := NewSession("acc-1", mail, writer, store, testSyncConfig(), zap.NewNop())
	res, err := sess.RunInitial(context.Background(), 30)

	require.NoError(t, err)
	assert.Equal(t, 2, mail.startCalls)
	assert.Equal(t, "d1", res.DeltaToken)
	assert.Equal(t, [2]string{"sut-1", ""}, mail.pageArgs[0])
}

func TestIncrementalScenarioAdvancesCursor(t *testing.T) {
	// account at d1; one page of 2 records moves it to d2
	mail := &scriptedMail{
		pages: []provider.SyncUpdatedResponse{
			{Records: records("m1", "m2"), NextDeltaToken: "d2"},
		},
	}
	store := newMemAccounts()
	writer := &recordingWriter{}

	sess := NewSession("acc-1", mail, writer, store, testSyncConfig(), zap.NewNop())
	res, err := sess.RunIncremental(context.Background(), "d1")

	require.NoError(t, err)
	assert.Equal(t, "d2", res.DeltaToken)
	assert.Equal(t, 2, res.Records)
	assert.Equal(t, []string{"d2"}, store.markedSynced)
}

func TestFailedBatchDoesNotAdvanceCursorPastItself(t *testing.T) {
	mail := &scriptedMail{
		pages: []provider.SyncUpdatedResponse{
			{Records: records("m1"), NextPageToken: "p2", NextDeltaToken: "d-mid"},
			{Records: records("m2"), NextDeltaToken: "d-late"},
		},
	}
	store := newMemAccounts()
	writer := &recordingWriter{failOn: 2, err: errors.New("db write failed")}

	sess := NewSession("acc-1", mail, writer, store, testSyncConfig(), zap.NewNop())
	_, err := sess.RunIncremental(context.Background(), "d-start")

	require.Error(t, err)
	assert.Equal(t, StateFailed, sess.State())
	// page 1 committed its carried token, the failed page 2 committed nothing
	assert.Equal(t, []string{"d-mid"}, store.committedTokens)
	assert.Empty(t, store.markedSynced)
}

func TestPageFailureSurfacesProviderError(t *testing.T) {
	provErr := &provider.APIError{Op: "GET /email/sync/updated", Status: 500, Body: "boom"}
	mail := &scriptedMail{
		pages:    []provider.SyncUpdatedResponse{{}},
		pageErrs: []error{provErr},
	}
	store := newMemAccounts()
	writer := &recordingWriter{}

	sess := NewSession("acc-1", mail, writer, store, testSyncConfig(), zap.NewNop())
	_, err := sess.RunIncremental(context.Background(), "d1")

	var apiErr *provider.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 500, apiErr.Status)
	assert.Empty(t, store.committedTokens)
}

func TestBatchingSplitsLargePages(t *testing.T) {
	cfg := testSyncConfig()
	cfg.IngestBatchSize = 2

	mail := &scriptedMail{
		pages: []provider.SyncUpdatedResponse{
			{Records: records("m1", "m2", "m3", "m4", "m5"), NextDeltaToken: "d2"},
		},
	}
	store := newMemAccounts()
	writer := &recordingWriter{}

	sess := NewSession("acc-1", mail, writer, store, cfg, zap.NewNop())
	res, err := sess.RunIncremental(context.Background(), "d1")

	require.NoError(t, err)
	assert.Equal(t, 5, res.Records)
	require.Len(t, writer.batches, 3)
	assert.Len(t, writer.batches[0], 2)
	assert.Len(t, writer.batches[2], 1)
}

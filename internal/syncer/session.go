package syncer

import (
	"context"
	"time"

	"go.uber.org/zap"

	"mailpilot/config"
	"mailpilot/internal/provider"
	"mailpilot/pkg/metrics"
)

// State of a sync session.
type State int

const (
	StateNotStarted State = iota
	StateSyncRequested
	StateSyncReady
	StatePaging
	StateComplete
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "NOT_STARTED"
	case StateSyncRequested:
		return "SYNC_REQUESTED"
	case StateSyncReady:
		return "SYNC_READY"
	case StatePaging:
		return "PAGING"
	case StateComplete:
		return "COMPLETE"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// CursorStore is the slice of the account store a session writes through.
type CursorStore interface {
	UpdateDeltaToken(ctx context.Context, id, token string) error
	MarkSynced(ctx context.Context, id, token string, at time.Time) error
}

// Ingestor consumes batches of provider records.
type Ingestor interface {
	WriteBatch(ctx context.Context, accountID string, records []provider.EmailRecord) error
}

// Result summarizes a completed session.
type Result struct {
	DeltaToken string
	Pages      int
	Records    int
}

// Session runs the sync state machine for one account:
//
//	NOT_STARTED -> SYNC_REQUESTED -> SYNC_READY -> PAGING -> COMPLETE
//
// with FAILED reachable from any state. Provider calls are sequential; each
// page depends on the previous page's token, so pages are applied in stream
// order. The last-seen delta token is carried forward and committed after
// every successfully ingested page, so a crash mid-session loses at most the
// page in flight; the ingestor is idempotent so reprocessing is safe.
type Session struct {
	accountID string
	client    provider.Mail
	writer    Ingestor
	cursors   CursorStore
	cfg       config.SyncConfig
	logger    *zap.Logger

	state State
}

func NewSession(accountID string, client provider.Mail, writer Ingestor, cursors CursorStore, cfg config.SyncConfig, logger *zap.Logger) *Session {
	return &Session{
		accountID: accountID,
		client:    client,
		writer:    writer,
		cursors:   cursors,
		cfg:       cfg,
		logger:    logger,
		state:     StateNotStarted,
	}
}

func (s *Session) State() State { return s.state }

// RunInitial drives a full session from scratch: request a snapshot covering
// daysWithin days, poll until ready, then page through the change stream.
func (s *Session) RunInitial(ctx context.Context, daysWithin int) (*Result, error) {
	s.state = StateSyncRequested
	sr, err := s.client.StartSync(ctx, daysWithin)
	if err != nil {
		return nil, s.fail(err)
	}

	attempts := 1
	for !sr.Ready {
		if attempts >= s.cfg.ReadyPollAttempts {
			// not fatal to the account; nothing was persisted, retry later
			s.state = StateFailed
			return nil, &TimeoutError{Attempts: attempts}
		}
		if err := sleepCtx(ctx, s.cfg.ReadyPollDelay()); err != nil {
			return nil, s.fail(err)
		}
		sr, err = s.client.StartSync(ctx, daysWithin)
		if err != nil {
			return nil, s.fail(err)
		}
		attempts++
	}
	s.state = StateSyncReady

	s.logger.Info("Sync snapshot ready",
		zap.String("account_id", s.accountID),
		zap.Int("days_within", daysWithin),
		zap.Int("attempts", attempts),
	)

	return s.page(ctx, sr.SyncUpdatedToken)
}

// RunIncremental enters directly at PAGING using the stored cursor.
// Makes no provider calls when the account has no cursor yet.
func (s *Session) RunIncremental(ctx context.Context, deltaToken string) (*Result, error) {
	if deltaToken == "" {
		s.state = StateFailed
		return nil, ErrNoDeltaToken
	}
	s.state = StateSyncReady
	return s.page(ctx, deltaToken)
}

// page walks the change stream from startToken. The delta token returned by
// any page replaces the carried value; only that carried value is ever
// committed, and never past a batch that failed to ingest.
func (s *Session) page(ctx context.Context, startToken string) (*Result, error) {
	s.state = StatePaging

	delta := startToken
	pageToken := ""
	res := &Result{}

	for {
		var (
			page *provider.SyncUpdatedResponse
			err  error
		)
		if pageToken == "" {
			page, err = s.client.GetUpdatedEmails(ctx, delta, "")
		} else {
			page, err = s.client.GetUpdatedEmails(ctx, "", pageToken)
		}
		if err != nil {
			return nil, s.fail(err)
		}

		res.Pages++
		metrics.SyncPagesFetched.Inc()

		if page.NextDeltaToken != "" {
			delta = page.NextDeltaToken
		}

		for _, batch := range chunk(page.Records, s.cfg.IngestBatchSize) {
			if err := s.writer.WriteBatch(ctx, s.accountID, batch); err != nil {
				return nil, s.fail(err)
			}
			res.Records += len(batch)
		}

		// commit the carried cursor now that everything up to here is durable
		if err := s.cursors.UpdateDeltaToken(ctx, s.accountID, delta); err != nil {
			return nil, s.fail(err)
		}

		if page.NextPageToken == "" {
			break
		}
		pageToken = page.NextPageToken
	}

	if err := s.cursors.MarkSynced(ctx, s.accountID, delta, time.Now()); err != nil {
		return nil, s.fail(err)
	}

	s.state = StateComplete
	res.DeltaToken = delta

	s.logger.Info("Sync session complete",
		zap.String("account_id", s.accountID),
		zap.Int("pages", res.Pages),
		zap.Int("records", res.Records),
	)
	return res, nil
}

func (s *Session) fail(err error) error {
	s.state = StateFailed
	return err
}

func chunk(records []provider.EmailRecord, size int) [][]provider.EmailRecord {
	if len(records) == 0 {
		return nil
	}
	if size <= 0 || len(records) <= size {
		return [][]provider.EmailRecord{records}
	}
	var out [][]provider.EmailRecord
	for start := 0; start < len(records); start += size {
		end := start + size
		if end > len(records) {
			end = len(records)
		}
		out = append(out, records[start:end])
	}
	return out
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

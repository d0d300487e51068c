package ingest

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"mailpilot/internal/model"
	"mailpilot/internal/provider"
	"mailpilot/pkg/metrics"
)

// MailStore is the slice of the relational store the writer needs.
type MailStore interface {
	UpsertThread(ctx context.Context, t *model.Thread) error
	UpsertMessage(ctx context.Context, m *model.Message) error
	DeleteMessage(ctx context.Context, accountID, messageID string) error
}

// Error marks a failed write so the syncer knows not to advance the cursor
// past the affected batch.
type Error struct {
	AccountID string
	RecordID  string
	Err       error
}

func (e *Error) Error() string {
	return fmt.Sprintf("ingest account %s record %s: %v", e.AccountID, e.RecordID, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Writer maps provider email records into the relational mail store.
// Writes are idempotent on the provider message ID, so replaying a batch
// after a partial failure is safe.
type Writer struct {
	store  MailStore
	logger *zap.Logger
}

func NewWriter(store MailStore, logger *zap.Logger) *Writer {
	return &Writer{store: store, logger: logger}
}

// WriteBatch applies one batch of records for an account, in stream order.
func (w *Writer) WriteBatch(ctx context.Context, accountID string, records []provider.EmailRecord) error {
	for i := range records {
		rec := &records[i]
		if err := w.writeRecord(ctx, accountID, rec); err != nil {
			metrics.RecordsIngested.WithLabelValues("failed").Inc()
			return &Error{AccountID: accountID, RecordID: rec.ID, Err: err}
		}
		metrics.RecordsIngested.WithLabelValues(changeType(rec)).Inc()
	}

	if len(records) > 0 {
		w.logger.Debug("Ingested batch",
			zap.String("account_id", accountID),
			zap.Int("records", len(records)),
		)
	}
	return nil
}

func (w *Writer) writeRecord(ctx context.Context, accountID string, rec *provider.EmailRecord) error {
	if rec.ChangeType == provider.ChangeDeleted {
		return w.store.DeleteMessage(ctx, accountID, rec.ID)
	}

	thread := &model.Thread{
		ID:            rec.ThreadID,
		AccountID:     accountID,
		Subject:       rec.Subject,
		LastMessageAt: rec.SentAt,
	}
	if err := w.store.UpsertThread(ctx, thread); err != nil {
		return err
	}

	msg := &model.Message{
		ID:          rec.ID,
		ThreadID:    rec.ThreadID,
		AccountID:   accountID,
		Subject:     rec.Subject,
		FromName:    rec.From.Name,
		FromAddress: rec.From.Address,
		ToJSON:      marshalAddresses(rec.To),
		CcJSON:      marshalAddresses(rec.Cc),
		BccJSON:     marshalAddresses(rec.Bcc),
		Body:        rec.Body,
		SentAt:      rec.SentAt,
	}
	return w.store.UpsertMessage(ctx, msg)
}

func changeType(rec *provider.EmailRecord) string {
	if rec.ChangeType == "" {
		return "updated"
	}
	return rec.ChangeType
}

func marshalAddresses(addrs []provider.EmailAddress) string {
	if len(addrs) == 0 {
		return "[]"
	}
	b, err := json.Marshal(addrs)
	if err != nil {
		return "[]"
	}
	return string(b)
}

package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"mailpilot/internal/model"
)

type MailRepository struct {
	db *pgxpool.Pool
}

func NewMailRepository(db *pgxpool.Pool) *MailRepository {
	return &MailRepository{db: db}
}

// UpsertThread creates or refreshes a thread keyed by the provider thread ID.
func (r *MailRepository) UpsertThread(ctx context.Context, t *model.Thread) error {
	query := `
        INSERT INTO threads (id, account_id, subject, last_message_at, created_at, updated_at)
        VALUES ($1, $2, $3, $4, NOW(), NOW())
        ON CONFLICT (id) DO UPDATE
        SET subject = EXCLUDED.subject,
            last_message_at = GREATEST(threads.last_message_at, EXCLUDED.last_message_at),
            updated_at = NOW()
    `
	_, err := r.db.Exec(ctx, query, t.ID, t.AccountID, t.Subject, t.LastMessageAt)
	return err
}

// UpsertMessage writes a message keyed by the provider message ID. Replaying
// the same record leaves the row unchanged except updated_at, which is what
// makes at-least-once reprocessing safe.
func (r *MailRepository) UpsertMessage(ctx context.Context, m *model.Message) error {
	query := `
        INSERT INTO messages (id, thread_id, account_id, subject, from_name, from_address,
                              to_json, cc_json, bcc_json, body, sent_at, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW(), NOW())
        ON CONFLICT (id) DO UPDATE
        SET thread_id = EXCLUDED.thread_id,
            subject = EXCLUDED.subject,
            from_name = EXCLUDED.from_name,
            from_address = EXCLUDED.from_address,
            to_json = EXCLUDED.to_json,
            cc_json = EXCLUDED.cc_json,
            bcc_json = EXCLUDED.bcc_json,
            body = EXCLUDED.body,
            sent_at = EXCLUDED.sent_at,
            updated_at = NOW()
    `
	_, err := r.db.Exec(ctx, query,
		m.ID, m.ThreadID, m.AccountID, m.Subject, m.FromName, m.FromAddress,
		m.ToJSON, m.CcJSON, m.BccJSON, m.Body, m.SentAt,
	)
	return err
}

// DeleteMessage removes a message the change stream reported as deleted.
// Missing rows are fine, the stream can replay deletions.
func (r *MailRepository) DeleteMessage(ctx context.Context, accountID, messageID string) error {
	query := `DELETE FROM messages WHERE id = $1 AND account_id = $2`
	_, err := r.db.Exec(ctx, query, messageID, accountID)
	return err
}

package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"mailpilot/internal/model"
)

type AccountRepository struct {
	db *pgxpool.Pool
}

func NewAccountRepository(db *pgxpool.Pool) *AccountRepository {
	return &AccountRepository{db: db}
}

// Upsert creates or refreshes an account keyed by the provider-assigned ID.
// The key is fixed at creation; conflicts only refresh credential and profile.
func (r *AccountRepository) Upsert(ctx context.Context, a *model.Account) error {
	query := `
        INSERT INTO accounts (id, user_id, provider, token, email_address, name, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
        ON CONFLICT (id) DO UPDATE
        SET token = EXCLUDED.token,
            email_address = EXCLUDED.email_address,
            name = EXCLUDED.name,
            updated_at = NOW()
    `
	_, err := r.db.Exec(ctx, query, a.ID, a.UserID, a.Provider, a.Token, a.EmailAddress, a.Name)
	return err
}

// FindByID returns an account by provider-assigned ID.
func (r *AccountRepository) FindByID(ctx context.Context, id string) (*model.Account, error) {
	query := selectAccount + ` WHERE id = $1`
	return r.scanOne(r.db.QueryRow(ctx, query, id))
}

// FindByIDAndUser returns an account only if it belongs to the given user.
func (r *AccountRepository) FindByIDAndUser(ctx context.Context, id, userID string) (*model.Account, error) {
	query := selectAccount + ` WHERE id = $1 AND user_id = $2`
	return r.scanOne(r.db.QueryRow(ctx, query, id, userID))
}

// UpdateDeltaToken advances the stored cursor without touching last_synced_at.
// Used for mid-session commits after each ingested batch.
func (r *AccountRepository) UpdateDeltaToken(ctx context.Context, id, token string) error {
	query := `
        UPDATE accounts
        SET next_delta_token = $1, updated_at = NOW()
        WHERE id = $2
    `
	_, err := r.db.Exec(ctx, query, token, id)
	return err
}

// MarkSynced commits the final cursor of a session and stamps last_synced_at.
func (r *AccountRepository) MarkSynced(ctx context.Context, id, token string, at time.Time) error {
	query := `
        UPDATE accounts
        SET next_delta_token = $1, last_synced_at = $2, updated_at = NOW()
        WHERE id = $3
    `
	_, err := r.db.Exec(ctx, query, token, at, id)
	return err
}

// ListStale returns up to limit accounts with a cursor whose last sync is
// missing or older than the threshold, oldest first. Never-synced accounts
// sort first so they are picked up before merely stale ones.
func (r *AccountRepository) ListStale(ctx context.Context, olderThan time.Time, limit int) ([]model.Account, error) {
	query := selectAccount + `
        WHERE next_delta_token IS NOT NULL
          AND (last_synced_at IS NULL OR last_synced_at < $1)
        ORDER BY last_synced_at ASC NULLS FIRST
        LIMIT $2
    `
	rows, err := r.db.Query(ctx, query, olderThan, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	accounts := []model.Account{}
	for rows.Next() {
		a, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *a)
	}
	return accounts, rows.Err()
}

// MarkResynced stamps a manual resync and bumps the window counter.
func (r *AccountRepository) MarkResynced(ctx context.Context, id string, at time.Time) error {
	query := `
        UPDATE accounts
        SET last_resync_at = $1, resync_count = resync_count + 1, updated_at = NOW()
        WHERE id = $2
    `
	_, err := r.db.Exec(ctx, query, at, id)
	return err
}

// ResetResyncCount clears the counter once the cooldown window has elapsed.
func (r *AccountRepository) ResetResyncCount(ctx context.Context, id string) error {
	query := `UPDATE accounts SET resync_count = 0, updated_at = NOW() WHERE id = $1`
	_, err := r.db.Exec(ctx, query, id)
	return err
}

// SaveSearchIndex stores the serialized search index blob for an account.
// The blob is opaque to the sync core.
func (r *AccountRepository) SaveSearchIndex(ctx context.Context, id string, blob []byte) error {
	query := `UPDATE accounts SET binary_index = $1, updated_at = NOW() WHERE id = $2`
	_, err := r.db.Exec(ctx, query, blob, id)
	return err
}

// LoadSearchIndex returns the stored index blob, nil when none exists yet.
func (r *AccountRepository) LoadSearchIndex(ctx context.Context, id string) ([]byte, error) {
	query := `SELECT binary_index FROM accounts WHERE id = $1`
	var blob []byte
	if err := r.db.QueryRow(ctx, query, id).Scan(&blob); err != nil {
		return nil, err
	}
	return blob, nil
}

// Delete unlinks an account and its derived mail data. Explicit user action;
// accounts are never deleted automatically.
func (r *AccountRepository) Delete(ctx context.Context, id, userID string) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM messages WHERE account_id = $1`, id); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM threads WHERE account_id = $1`, id); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM accounts WHERE id = $1 AND user_id = $2`, id, userID); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

const selectAccount = `
        SELECT id, user_id, provider, token, email_address, name,
               next_delta_token, last_synced_at, last_resync_at, resync_count,
               created_at, updated_at
        FROM accounts`

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *AccountRepository) scanOne(row pgx.Row) (*model.Account, error) {
	return r.scanRow(row)
}

func (r *AccountRepository) scanRow(row rowScanner) (*model.Account, error) {
	var a model.Account
	err := row.Scan(
		&a.ID,
		&a.UserID,
		&a.Provider,
		&a.Token,
		&a.EmailAddress,
		&a.Name,
		&a.NextDeltaToken,
		&a.LastSyncedAt,
		&a.LastResyncAt,
		&a.ResyncCount,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

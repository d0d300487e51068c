package model

import "time"

// Account is one connected mailbox. The primary key is the provider-assigned
// account ID, fixed at creation time and never rewritten.
type Account struct {
	ID           string
	UserID       string
	Provider     string
	Token        string
	EmailAddress string
	Name         string

	// Delta cursor state. NextDeltaToken is nil until the first successful
	// sync pass and is only ever replaced, never cleared.
	NextDeltaToken *string
	LastSyncedAt   *time.Time

	// Manual resync throttling.
	LastResyncAt *time.Time
	ResyncCount  int

	// Serialized search index written by the search component. Opaque here.
	BinaryIndex []byte

	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasDeltaToken reports whether an incremental sync can run.
func (a *Account) HasDeltaToken() bool {
	return a.NextDeltaToken != nil && *a.NextDeltaToken != ""
}

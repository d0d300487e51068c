package syncer

import (
	"errors"
	"fmt"
)

var (
	// ErrNoDeltaToken means an incremental sync was requested for an account
	// that never completed a first pass. Callers fall back to an initial sync.
	ErrNoDeltaToken = errors.New("no delta token for account")

	// ErrAccountNotFound is returned when the target account does not exist
	// or does not belong to the requesting user.
	ErrAccountNotFound = errors.New("account not found")

	// ErrLeaseHeld means another session is already syncing the account.
	ErrLeaseHeld = errors.New("sync lease held by another session")
)

// TimeoutError is returned when the provider snapshot never became ready
// within the bounded poll. Retryable later; no cursor state was touched.
type TimeoutError struct {
	Attempts int
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("sync not ready after %d attempts", e.Attempts)
}

// ThrottledError rejects a manual resync inside the cooldown window.
type ThrottledError struct {
	HoursRemaining int
}

func (e *ThrottledError) Error() string {
	return fmt.Sprintf("resync throttled, wait %d hours", e.HoursRemaining)
}

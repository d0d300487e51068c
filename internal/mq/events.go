package mq

import "time"

const (
	ExchangeName = "events"

	// RoutingKeyAccountConnected kicks the worker's deferred initial sync.
	RoutingKeyAccountConnected = "account.connected"
)

// AccountConnectedPayload is published after a successful OAuth callback.
type AccountConnectedPayload struct {
	AccountID   string    `json:"account_id"`
	UserID      string    `json:"user_id"`
	ConnectedAt time.Time `json:"connected_at"`
}

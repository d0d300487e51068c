package provider

import "time"

// Profile is the provider's view of the connected account.
type Profile struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// TokenResponse is returned by the OAuth code exchange.
type TokenResponse struct {
	AccessToken string `json:"accessToken"`
	AccountID   int64  `json:"accountId"`
}

// SyncResponse is returned by the start-sync call. The provider builds its
// snapshot asynchronously; callers poll until Ready.
type SyncResponse struct {
	Ready            bool   `json:"ready"`
	SyncUpdatedToken string `json:"syncUpdatedToken"`
}

// EmailAddress is a name/address pair as the provider serializes it.
type EmailAddress struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

// EmailHeader is a raw message header.
type EmailHeader struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// EmailAttachment describes one attachment of a provider record.
type EmailAttachment struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	MimeType string `json:"mimeType"`
	Size     int64  `json:"size"`
	Inline   bool   `json:"inline"`
}

// EmailRecord is one email in a sync page. Passed through to the ingestion
// writer; this package does not interpret it beyond IDs and ChangeType.
type EmailRecord struct {
	ID          string            `json:"id"`
	ThreadID    string            `json:"threadId"`
	ChangeType  string            `json:"changeType"`
	Subject     string            `json:"subject"`
	From        EmailAddress      `json:"from"`
	To          []EmailAddress    `json:"to"`
	Cc          []EmailAddress    `json:"cc"`
	Bcc         []EmailAddress    `json:"bcc"`
	Headers     []EmailHeader     `json:"internetHeaders"`
	Body        string            `json:"body"`
	SentAt      time.Time         `json:"sentAt"`
	Attachments []EmailAttachment `json:"attachments"`
}

// ChangeType values the sync stream emits.
const (
	ChangeDeleted = "deleted"
)

// SyncUpdatedResponse is one page of the change stream. NextPageToken links
// pages within the current pull; NextDeltaToken, when present, is the durable
// resume point to carry forward.
type SyncUpdatedResponse struct {
	Records        []EmailRecord `json:"records"`
	NextPageToken  string        `json:"nextPageToken"`
	NextDeltaToken string        `json:"nextDeltaToken"`
}

// Subscription is a registered webhook endpoint.
type Subscription struct {
	ID              int64  `json:"id"`
	Resource        string `json:"resource"`
	NotificationURL string `json:"notificationUrl"`
	Active          bool   `json:"active"`
	FailSince       string `json:"failSince"`
	FailDescription string `json:"failDescription"`
}

// SubscriptionList is the provider's paged subscription listing.
type SubscriptionList struct {
	Records   []Subscription `json:"records"`
	TotalSize int            `json:"totalSize"`
	Offset    int            `json:"offset"`
	Done      bool           `json:"done"`
}

// SendRequest is an outbound message.
type SendRequest struct {
	From       EmailAddress   `json:"from"`
	Subject    string         `json:"subject"`
	Body       string         `json:"body"`
	InReplyTo  string         `json:"inReplyTo,omitempty"`
	References string         `json:"references,omitempty"`
	ThreadID   string         `json:"threadId,omitempty"`
	To         []EmailAddress `json:"to"`
	Cc         []EmailAddress `json:"cc,omitempty"`
	Bcc        []EmailAddress `json:"bcc,omitempty"`
	ReplyTo    []EmailAddress `json:"replyTo,omitempty"`
}

// SendResponse carries the provider-assigned IDs of a sent message.
type SendResponse struct {
	ID       string `json:"id"`
	ThreadID string `json:"threadId"`
}

package model

import "time"

// Thread groups messages by the provider's thread ID.
type Thread struct {
	ID            string
	AccountID     string
	Subject       string
	LastMessageAt time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Message is one stored email, keyed by the provider's message ID.
type Message struct {
	ID          string
	ThreadID    string
	AccountID   string
	Subject     string
	FromName    string
	FromAddress string
	ToJSON      string
	CcJSON      string
	BccJSON     string
	Body        string
	SentAt      time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

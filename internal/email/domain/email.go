package domain

import "time"

// Attachment is one attachment on an ingested message. Only metadata is
// stored; content stays with the provider.
type Attachment struct {
	ID         string `json:"id" gorm:"primaryKey"`
	MessageID  string `json:"message_id" gorm:"index;not null"`
	ExternalID string `json:"external_id"`
	Filename   string `json:"filename"`
	MimeType   string `json:"mime_type"`
	Size       int64  `json:"size"`
}

// Message is the unified model every provider's payload is normalized into
// before rule evaluation. ExternalID is the provider's own message id and is
// unique per account.
type Message struct {
	ID           string       `json:"id" gorm:"primaryKey"`
	AccountID    string       `json:"account_id" gorm:"index:idx_account_external,unique;not null"`
	ExternalID   string       `json:"external_id" gorm:"index:idx_account_external,unique;not null"`
	UserID       string       `json:"user_id" gorm:"index"`
	ProviderKind string       `json:"provider_kind"`
	Sender       string       `json:"sender"`
	Recipients   Recipients   `json:"recipients" gorm:"type:jsonb"`
	Subject      string       `json:"subject"`
	Body         string       `json:"body"`
	Snippet      string       `json:"snippet"`
	IsRead       bool         `json:"is_read"`
	ReceivedAt   time.Time    `json:"received_at" gorm:"index"`
	Attachments  []Attachment `json:"attachments" gorm:"foreignKey:MessageID"`
	CreatedAt    time.Time    `json:"created_at"`
}

// HasAttachments reports whether the message carries at least one attachment
func (m *Message) HasAttachments() bool {
	return len(m.Attachments) > 0
}

// SeenMessage is one entry in the per-account dedup index. A row exists for
// every external id the poller has ever processed, whether or not the full
// message was stored.
type SeenMessage struct {
	ID         string    `json:"id" gorm:"primaryKey"`
	AccountID  string    `json:"account_id" gorm:"index:idx_seen_account_external,unique;not null"`
	ExternalID string    `json:"external_id" gorm:"index:idx_seen_account_external,unique;not null"`
	SeenAt     time.Time `json:"seen_at"`
}

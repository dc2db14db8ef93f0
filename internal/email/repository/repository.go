package repository

import (
	"emailtrigger-backend/internal/email/domain"
)

// MessageRepository defines data access for the unified message store.
// Rows are write-once; there is no update path.
type MessageRepository interface {
	// Create persists a newly ingested message with its attachments
	Create(message *domain.Message) error

	// FindByID finds a message by its internal ID
	FindByID(id string) (*domain.Message, error)

	// FindRecentByUserID lists a user's messages newest-first
	FindRecentByUserID(userID string, limit int) ([]*domain.Message, error)
}

// SeenMessageRepository is the per-account index of already-processed
// external ids. Append-only: entries are never removed.
type SeenMessageRepository interface {
	// MarkSeen records the external id for the account and reports whether it
	// was already present (check and insert in one query)
	MarkSeen(accountID, externalID string) (alreadySeen bool, err error)

	// IsSeen checks whether the external id has been processed for the account
	IsSeen(accountID, externalID string) (bool, error)
}

package usecase

import (
	"fmt"

	"emailtrigger-backend/internal/email/domain"
	"emailtrigger-backend/internal/email/repository"
)

// EmailUsecase exposes read access to the ingested message history
type EmailUsecase interface {
	// ListRecent returns a user's messages newest-first
	ListRecent(userID string, limit int) ([]*domain.Message, error)

	// GetByID returns one message, scoped to its owning user
	GetByID(userID, id string) (*domain.Message, error)
}

type emailUsecase struct {
	messages repository.MessageRepository
}

// NewEmailUsecase creates a new instance of emailUsecase
func NewEmailUsecase(messages repository.MessageRepository) EmailUsecase {
	return &emailUsecase{
		messages: messages,
	}
}

func (u *emailUsecase) ListRecent(userID string, limit int) ([]*domain.Message, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return u.messages.FindRecentByUserID(userID, limit)
}

func (u *emailUsecase) GetByID(userID, id string) (*domain.Message, error) {
	message, err := u.messages.FindByID(id)
	if err != nil {
		return nil, err
	}
	if message == nil {
		return nil, nil
	}
	if message.UserID != userID {
		return nil, fmt.Errorf("message %s does not belong to user %s", id, userID)
	}
	return message, nil
}

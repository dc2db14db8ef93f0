package repository

import (
	"errors"
	"time"

	"emailtrigger-backend/internal/email/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// messageRepository implements MessageRepository interface
type messageRepository struct {
	db *gorm.DB
}

// NewMessageRepository creates a new instance of messageRepository
func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepository{
		db: db,
	}
}

func (r *messageRepository) Create(message *domain.Message) error {
	if message.ID == "" {
		message.ID = uuid.New().String()
	}
	message.CreatedAt = time.Now()
	for i := range message.Attachments {
		if message.Attachments[i].ID == "" {
			message.Attachments[i].ID = uuid.New().String()
		}
		message.Attachments[i].MessageID = message.ID
	}
	return r.db.Create(message).Error
}

func (r *messageRepository) FindByID(id string) (*domain.Message, error) {
	var message domain.Message
	err := r.db.Preload("Attachments").Where("id = ?", id).First(&message).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &message, nil
}

func (r *messageRepository) FindRecentByUserID(userID string, limit int) ([]*domain.Message, error) {
	if limit <= 0 {
		limit = 20
	}
	var messages []*domain.Message
	err := r.db.Preload("Attachments").
		Where("user_id = ?", userID).
		Order("received_at desc").
		Limit(limit).
		Find(&messages).Error
	return messages, err
}

package repository

import (
	"errors"
	"time"

	"emailtrigger-backend/internal/email/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// seenMessageRepository implements SeenMessageRepository interface
type seenMessageRepository struct {
	db *gorm.DB
}

// NewSeenMessageRepository creates a new instance of seenMessageRepository
func NewSeenMessageRepository(db *gorm.DB) SeenMessageRepository {
	return &seenMessageRepository{
		db: db,
	}
}

// MarkSeen records the external id via FirstOrCreate so check-and-insert is a
// single query. RowsAffected == 0 means the entry already existed. Only the
// (account_id, external_id) pair is part of the lookup; ID and SeenAt are
// assigned through Attrs so they never leak into the query conditions.
func (r *seenMessageRepository) MarkSeen(accountID, externalID string) (bool, error) {
	var seen domain.SeenMessage
	result := r.db.Where(domain.SeenMessage{AccountID: accountID, ExternalID: externalID}).
		Attrs(domain.SeenMessage{ID: uuid.New().String(), SeenAt: time.Now()}).
		FirstOrCreate(&seen)
	if result.Error != nil {
		// A concurrent nudge and tick can race on the insert; the unique
		// index makes the loser equivalent to already-seen
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return true, nil
		}
		return false, result.Error
	}
	return result.RowsAffected == 0, nil
}

func (r *seenMessageRepository) IsSeen(accountID, externalID string) (bool, error) {
	var seen domain.SeenMessage
	err := r.db.Where("account_id = ? AND external_id = ?", accountID, externalID).First(&seen).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

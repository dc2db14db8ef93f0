package repository

import (
	"errors"
	"time"

	"emailtrigger-backend/internal/account/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// accountRepository implements AccountRepository interface
type accountRepository struct {
	db *gorm.DB
}

// NewAccountRepository creates a new instance of accountRepository
func NewAccountRepository(db *gorm.DB) AccountRepository {
	return &accountRepository{
		db: db,
	}
}

func (r *accountRepository) Create(account *domain.ConnectedAccount) error {
	if account.ID == "" {
		account.ID = uuid.New().String()
	}
	account.CreatedAt = time.Now()
	account.UpdatedAt = time.Now()
	return r.db.Create(account).Error
}

func (r *accountRepository) FindByID(id string) (*domain.ConnectedAccount, error) {
	var account domain.ConnectedAccount
	err := r.db.Where("id = ?", id).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

func (r *accountRepository) FindByUserID(userID string) ([]*domain.ConnectedAccount, error) {
	var accounts []*domain.ConnectedAccount
	err := r.db.Where("user_id = ?", userID).Order("created_at asc").Find(&accounts).Error
	return accounts, err
}

func (r *accountRepository) FindActive() ([]*domain.ConnectedAccount, error) {
	var accounts []*domain.ConnectedAccount
	err := r.db.Where("status = ?", domain.StatusActive).Find(&accounts).Error
	return accounts, err
}

func (r *accountRepository) FindByEmailAndKind(email string, kind domain.ProviderKind) (*domain.ConnectedAccount, error) {
	var account domain.ConnectedAccount
	err := r.db.Where("email_address = ? AND provider_kind = ?", email, kind).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &account, nil
}

func (r *accountRepository) Update(account *domain.ConnectedAccount) error {
	account.UpdatedAt = time.Now()
	return r.db.Save(account).Error
}

// UpdateTokens persists the refreshed credentials in a single statement so a
// concurrent reader never observes a new access token with a stale expiry
func (r *accountRepository) UpdateTokens(id, accessToken, refreshToken string, expiry *time.Time) error {
	updates := map[string]interface{}{
		"access_token": accessToken,
		"token_expiry": expiry,
		"updated_at":   time.Now(),
	}
	if refreshToken != "" {
		updates["refresh_token"] = refreshToken
	}
	return r.db.Model(&domain.ConnectedAccount{}).Where("id = ?", id).Updates(updates).Error
}

func (r *accountRepository) UpdateStatus(id string, status domain.AccountStatus) error {
	return r.db.Model(&domain.ConnectedAccount{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":     status,
		"updated_at": time.Now(),
	}).Error
}

func (r *accountRepository) UpdateLastSync(id string, t time.Time) error {
	return r.db.Model(&domain.ConnectedAccount{}).Where("id = ?", id).Updates(map[string]interface{}{
		"last_sync_at": t,
		"updated_at":   time.Now(),
	}).Error
}

package repository

import (
	"time"

	"emailtrigger-backend/internal/account/domain"
)

// AccountRepository defines data access for connected accounts
type AccountRepository interface {
	// Create creates a new connected account
	Create(account *domain.ConnectedAccount) error

	// FindByID finds an account by its ID
	FindByID(id string) (*domain.ConnectedAccount, error)

	// FindByUserID lists all accounts belonging to a user
	FindByUserID(userID string) ([]*domain.ConnectedAccount, error)

	// FindActive lists every account the scheduler should poll
	FindActive() ([]*domain.ConnectedAccount, error)

	// FindByEmailAndKind looks up an account by mailbox address and provider
	FindByEmailAndKind(email string, kind domain.ProviderKind) (*domain.ConnectedAccount, error)

	// Update saves the full account row
	Update(account *domain.ConnectedAccount) error

	// UpdateTokens atomically persists a refreshed credential set
	UpdateTokens(id, accessToken, refreshToken string, expiry *time.Time) error

	// UpdateStatus transitions the account lifecycle state
	UpdateStatus(id string, status domain.AccountStatus) error

	// UpdateLastSync advances the account's polling cursor
	UpdateLastSync(id string, t time.Time) error
}

package usecase

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"emailtrigger-backend/internal/account/domain"
	"emailtrigger-backend/internal/account/repository"
	"emailtrigger-backend/pkg/oauth"
	"emailtrigger-backend/pkg/provider"

	"golang.org/x/oauth2"
)

// TokenRefresher performs the provider refresh flow. Implemented by
// oauth.Manager; mocked in tests.
type TokenRefresher interface {
	Refresh(ctx context.Context, kind domain.ProviderKind, refreshToken string) (*oauth2.Token, error)
}

// TokenManager owns credential state for connected accounts. Refresh for a
// given account is single-flight: concurrent callers serialize on a
// per-account lock and the expiry is re-checked under that lock, so only the
// first caller actually hits the provider.
type TokenManager struct {
	accounts  repository.AccountRepository
	refresher TokenRefresher
	margin    time.Duration

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewTokenManager creates a token manager with the given refresh safety margin
func NewTokenManager(accounts repository.AccountRepository, refresher TokenRefresher, margin time.Duration) *TokenManager {
	if margin <= 0 {
		margin = 60 * time.Second
	}
	return &TokenManager{
		accounts:  accounts,
		refresher: refresher,
		margin:    margin,
		locks:     make(map[string]*sync.Mutex),
	}
}

func (tm *TokenManager) accountLock(accountID string) *sync.Mutex {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	lock, ok := tm.locks[accountID]
	if !ok {
		lock = &sync.Mutex{}
		tm.locks[accountID] = lock
	}
	return lock
}

// GetValidToken returns an access token guaranteed to outlive the safety
// margin, refreshing first when needed. Returns domain.ErrReauthRequired when
// the refresh token has been revoked; any other failure is transient and
// leaves the account status untouched.
func (tm *TokenManager) GetValidToken(ctx context.Context, accountID string) (string, error) {
	lock := tm.accountLock(accountID)
	lock.Lock()
	defer lock.Unlock()

	// Re-read under the lock: a concurrent caller may have refreshed already
	account, err := tm.accounts.FindByID(accountID)
	if err != nil {
		return "", err
	}

	switch account.Status {
	case domain.StatusRevoked:
		return "", fmt.Errorf("account %s is revoked", accountID)
	case domain.StatusNeedsReauth:
		return "", domain.ErrReauthRequired
	}

	// IMAP accounts hold a password, not an OAuth token; nothing to refresh
	if account.ProviderKind == domain.ProviderIMAP {
		return account.AccessToken, nil
	}

	if account.TokenExpiry != nil && time.Until(*account.TokenExpiry) > tm.margin {
		return account.AccessToken, nil
	}

	return tm.refresh(ctx, account)
}

func (tm *TokenManager) refresh(ctx context.Context, account *domain.ConnectedAccount) (string, error) {
	if account.RefreshToken == "" {
		if err := tm.accounts.UpdateStatus(account.ID, domain.StatusNeedsReauth); err != nil {
			log.Printf("[TokenManager] Failed to mark account %s needs_reauth: %v", account.ID, err)
		}
		return "", fmt.Errorf("%w: no refresh token stored", domain.ErrReauthRequired)
	}

	token, err := tm.refresher.Refresh(ctx, account.ProviderKind, account.RefreshToken)
	if err != nil {
		if errors.Is(err, oauth.ErrInvalidGrant) {
			log.Printf("[TokenManager] Refresh token rejected for account %s, marking needs_reauth", account.ID)
			if updateErr := tm.accounts.UpdateStatus(account.ID, domain.StatusNeedsReauth); updateErr != nil {
				log.Printf("[TokenManager] Failed to mark account %s needs_reauth: %v", account.ID, updateErr)
			}
			return "", fmt.Errorf("%w: %v", domain.ErrReauthRequired, err)
		}
		// Transient: the caller retries the whole cycle on the next schedule
		return "", fmt.Errorf("transient refresh failure: %w", err)
	}

	expiry := token.Expiry
	if err := tm.accounts.UpdateTokens(account.ID, token.AccessToken, token.RefreshToken, &expiry); err != nil {
		return "", fmt.Errorf("failed to persist refreshed token: %w", err)
	}

	log.Printf("[TokenManager] Refreshed token for account %s (expires %s)", account.ID, expiry.Format(time.RFC3339))
	return token.AccessToken, nil
}

// CredentialsFor builds adapter credentials for an account, acquiring a valid
// token first for OAuth providers
func (tm *TokenManager) CredentialsFor(ctx context.Context, account *domain.ConnectedAccount) (provider.Credentials, error) {
	if account.ProviderKind == domain.ProviderIMAP {
		return provider.Credentials{
			IMAPHost: account.IMAPHost,
			Username: account.EmailAddress,
			Password: account.AccessToken,
		}, nil
	}

	token, err := tm.GetValidToken(ctx, account.ID)
	if err != nil {
		return provider.Credentials{}, err
	}
	return provider.Credentials{AccessToken: token}, nil
}

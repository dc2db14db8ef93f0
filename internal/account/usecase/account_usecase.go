package usecase

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"emailtrigger-backend/internal/account/domain"
	"emailtrigger-backend/internal/account/dto"
	"emailtrigger-backend/internal/account/repository"
	"emailtrigger-backend/pkg/oauth"
	"emailtrigger-backend/pkg/provider"

	"github.com/google/uuid"
)

// ErrInvalidState is returned when an OAuth callback carries an unknown or
// expired state parameter
var ErrInvalidState = errors.New("invalid or expired oauth state")

const stateTTL = 10 * time.Minute

// AccountUsecase defines connected account business logic
type AccountUsecase interface {
	// ConnectURL starts the OAuth connect flow for a provider
	ConnectURL(userID string, kind domain.ProviderKind) (string, error)

	// HandleCallback finishes the OAuth connect flow, creating or
	// reactivating the account for the mailbox behind the code
	HandleCallback(ctx context.Context, kind domain.ProviderKind, state, code string) (*domain.ConnectedAccount, error)

	// ConnectIMAP connects a plain IMAP mailbox after verifying the
	// credentials against the server
	ConnectIMAP(ctx context.Context, userID string, req *dto.ConnectIMAPRequest) (*domain.ConnectedAccount, error)

	// List returns all of a user's connected accounts
	List(userID string) ([]*domain.ConnectedAccount, error)

	// Revoke disconnects an account; its poller stops on the next reconcile
	Revoke(userID, id string) error

	// CheckPermissions probes what the account's credentials can still do
	CheckPermissions(ctx context.Context, userID, id string) (*provider.Permissions, error)
}

type stateEntry struct {
	userID    string
	createdAt time.Time
}

type accountUsecase struct {
	accounts repository.AccountRepository
	oauth    *oauth.Manager
	factory  *provider.Factory
	tokens   *TokenManager

	stateMu sync.Mutex
	states  map[string]stateEntry
}

// NewAccountUsecase creates a new instance of accountUsecase
func NewAccountUsecase(
	accounts repository.AccountRepository,
	oauthManager *oauth.Manager,
	factory *provider.Factory,
	tokens *TokenManager,
) AccountUsecase {
	return &accountUsecase{
		accounts: accounts,
		oauth:    oauthManager,
		factory:  factory,
		tokens:   tokens,
		states:   make(map[string]stateEntry),
	}
}

func (u *accountUsecase) ConnectURL(userID string, kind domain.ProviderKind) (string, error) {
	state := uuid.New().String()

	u.stateMu.Lock()
	for s, entry := range u.states {
		if time.Since(entry.createdAt) > stateTTL {
			delete(u.states, s)
		}
	}
	u.states[state] = stateEntry{userID: userID, createdAt: time.Now()}
	u.stateMu.Unlock()

	return u.oauth.AuthURL(kind, state)
}

func (u *accountUsecase) consumeState(state string) (string, error) {
	u.stateMu.Lock()
	defer u.stateMu.Unlock()

	entry, ok := u.states[state]
	if !ok {
		return "", ErrInvalidState
	}
	delete(u.states, state)
	if time.Since(entry.createdAt) > stateTTL {
		return "", ErrInvalidState
	}
	return entry.userID, nil
}

func (u *accountUsecase) HandleCallback(ctx context.Context, kind domain.ProviderKind, state, code string) (*domain.ConnectedAccount, error) {
	userID, err := u.consumeState(state)
	if err != nil {
		return nil, err
	}

	token, err := u.oauth.Exchange(ctx, kind, code)
	if err != nil {
		return nil, err
	}

	email, err := u.oauth.UserEmail(ctx, kind, token)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve mailbox address: %w", err)
	}

	existing, err := u.accounts.FindByEmailAndKind(email, kind)
	if err != nil {
		return nil, err
	}

	expiry := token.Expiry
	if existing != nil {
		if existing.UserID != userID {
			return nil, fmt.Errorf("mailbox %s is already connected by another user", email)
		}
		// Reconnect: fresh tokens and back to active
		if err := u.accounts.UpdateTokens(existing.ID, token.AccessToken, token.RefreshToken, &expiry); err != nil {
			return nil, err
		}
		if err := u.accounts.UpdateStatus(existing.ID, domain.StatusActive); err != nil {
			return nil, err
		}
		log.Printf("[Account] Reconnected %s account %s", kind, existing.ID)
		return u.accounts.FindByID(existing.ID)
	}

	account := &domain.ConnectedAccount{
		ID:           uuid.New().String(),
		UserID:       userID,
		ProviderKind: kind,
		EmailAddress: email,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenExpiry:  &expiry,
		Status:       domain.StatusActive,
	}
	if err := u.accounts.Create(account); err != nil {
		return nil, err
	}
	log.Printf("[Account] Connected %s account %s (%s)", kind, account.ID, email)
	return account, nil
}

func (u *accountUsecase) ConnectIMAP(ctx context.Context, userID string, req *dto.ConnectIMAPRequest) (*domain.ConnectedAccount, error) {
	adapter, err := u.factory.ForKind(domain.ProviderIMAP)
	if err != nil {
		return nil, err
	}

	creds := provider.Credentials{
		IMAPHost: req.Host,
		Username: req.EmailAddress,
		Password: req.Password,
	}
	perms, err := adapter.CheckPermissions(ctx, creds)
	if err != nil {
		return nil, fmt.Errorf("imap credential check failed: %w", err)
	}
	if !perms.MessagesOK {
		return nil, fmt.Errorf("imap credentials cannot read the mailbox")
	}

	existing, err := u.accounts.FindByEmailAndKind(req.EmailAddress, domain.ProviderIMAP)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if existing.UserID != userID {
			return nil, fmt.Errorf("mailbox %s is already connected by another user", req.EmailAddress)
		}
		existing.AccessToken = req.Password
		existing.IMAPHost = req.Host
		existing.Status = domain.StatusActive
		if err := u.accounts.Update(existing); err != nil {
			return nil, err
		}
		log.Printf("[Account] Reconnected imap account %s", existing.ID)
		return existing, nil
	}

	account := &domain.ConnectedAccount{
		ID:           uuid.New().String(),
		UserID:       userID,
		ProviderKind: domain.ProviderIMAP,
		EmailAddress: req.EmailAddress,
		AccessToken:  req.Password,
		IMAPHost:     req.Host,
		Status:       domain.StatusActive,
	}
	if err := u.accounts.Create(account); err != nil {
		return nil, err
	}
	log.Printf("[Account] Connected imap account %s (%s)", account.ID, req.EmailAddress)
	return account, nil
}

func (u *accountUsecase) List(userID string) ([]*domain.ConnectedAccount, error) {
	return u.accounts.FindByUserID(userID)
}

func (u *accountUsecase) owned(userID, id string) (*domain.ConnectedAccount, error) {
	account, err := u.accounts.FindByID(id)
	if err != nil {
		return nil, err
	}
	if account.UserID != userID {
		return nil, domain.ErrAccountNotFound
	}
	return account, nil
}

func (u *accountUsecase) Revoke(userID, id string) error {
	account, err := u.owned(userID, id)
	if err != nil {
		return err
	}
	if err := u.accounts.UpdateStatus(account.ID, domain.StatusRevoked); err != nil {
		return err
	}
	log.Printf("[Account] Revoked account %s", account.ID)
	return nil
}

func (u *accountUsecase) CheckPermissions(ctx context.Context, userID, id string) (*provider.Permissions, error) {
	account, err := u.owned(userID, id)
	if err != nil {
		return nil, err
	}

	adapter, err := u.factory.ForKind(account.ProviderKind)
	if err != nil {
		return nil, err
	}
	creds, err := u.tokens.CredentialsFor(ctx, account)
	if err != nil {
		return nil, err
	}
	return adapter.CheckPermissions(ctx, creds)
}

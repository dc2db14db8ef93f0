package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"emailtrigger-backend/internal/account/domain"

	"golang.org/x/oauth2"
)

// memAccountRepo is an in-memory AccountRepository for tests
type memAccountRepo struct {
	mu       sync.Mutex
	accounts map[string]*domain.ConnectedAccount
}

func newMemAccountRepo(accounts ...*domain.ConnectedAccount) *memAccountRepo {
	repo := &memAccountRepo{accounts: make(map[string]*domain.ConnectedAccount)}
	for _, a := range accounts {
		copied := *a
		repo.accounts[a.ID] = &copied
	}
	return repo
}

func (r *memAccountRepo) Create(account *domain.ConnectedAccount) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *account
	r.accounts[account.ID] = &copied
	return nil
}

func (r *memAccountRepo) FindByID(id string) (*domain.ConnectedAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	account, ok := r.accounts[id]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	copied := *account
	return &copied, nil
}

func (r *memAccountRepo) FindByUserID(userID string) ([]*domain.ConnectedAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.ConnectedAccount
	for _, a := range r.accounts {
		if a.UserID == userID {
			copied := *a
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *memAccountRepo) FindActive() ([]*domain.ConnectedAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.ConnectedAccount
	for _, a := range r.accounts {
		if a.Status == domain.StatusActive {
			copied := *a
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *memAccountRepo) FindByEmailAndKind(email string, kind domain.ProviderKind) (*domain.ConnectedAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.accounts {
		if a.EmailAddress == email && a.ProviderKind == kind {
			copied := *a
			return &copied, nil
		}
	}
	return nil, nil
}

func (r *memAccountRepo) Update(account *domain.ConnectedAccount) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *account
	r.accounts[account.ID] = &copied
	return nil
}

func (r *memAccountRepo) UpdateTokens(id, accessToken, refreshToken string, expiry *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	account := r.accounts[id]
	account.AccessToken = accessToken
	if refreshToken != "" {
		account.RefreshToken = refreshToken
	}
	account.TokenExpiry = expiry
	return nil
}

func (r *memAccountRepo) UpdateStatus(id string, status domain.AccountStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.accounts[id].Status = status
	return nil
}

func (r *memAccountRepo) UpdateLastSync(id string, t time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ts := t
	r.accounts[id].LastSyncAt = &ts
	return nil
}

// fakeRefresher counts refresh calls and returns a fixed token
type fakeRefresher struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeRefresher) Refresh(ctx context.Context, kind domain.ProviderKind, refreshToken string) (*oauth2.Token, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &oauth2.Token{
		AccessToken:  "fresh-access",
		RefreshToken: "fresh-refresh",
		Expiry:       time.Now().Add(time.Hour),
	}, nil
}

func (f *fakeRefresher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func gmailAccount(expiry time.Time) *domain.ConnectedAccount {
	return &domain.ConnectedAccount{
		ID:           "acc-1",
		UserID:       "user-1",
		ProviderKind: domain.ProviderGmail,
		EmailAddress: "user@example.com",
		AccessToken:  "stale-access",
		RefreshToken: "stored-refresh",
		TokenExpiry:  &expiry,
		Status:       domain.StatusActive,
	}
}

func TestTokenInsideMarginIsRefreshed(t *testing.T) {
	// Expires in 30s with a 60s margin: must refresh even though not expired
	repo := newMemAccountRepo(gmailAccount(time.Now().Add(30 * time.Second)))
	refresher := &fakeRefresher{}
	tm := NewTokenManager(repo, refresher, 60*time.Second)

	token, err := tm.GetValidToken(context.Background(), "acc-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if token != "fresh-access" {
		t.Errorf("expected refreshed token, got %q", token)
	}
	if refresher.callCount() != 1 {
		t.Errorf("expected 1 refresh call, got %d", refresher.callCount())
	}
}

func TestTokenOutsideMarginIsReturnedAsIs(t *testing.T) {
	repo := newMemAccountRepo(gmailAccount(time.Now().Add(time.Hour)))
	refresher := &fakeRefresher{}
	tm := NewTokenManager(repo, refresher, 60*time.Second)

	token, err := tm.GetValidToken(context.Background(), "acc-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if token != "stale-access" {
		t.Errorf("expected stored token, got %q", token)
	}
	if refresher.callCount() != 0 {
		t.Errorf("expected no refresh calls, got %d", refresher.callCount())
	}
}

func TestConcurrentCallersRefreshOnce(t *testing.T) {
	repo := newMemAccountRepo(gmailAccount(time.Now().Add(-time.Minute)))
	refresher := &fakeRefresher{}
	tm := NewTokenManager(repo, refresher, 60*time.Second)

	var wg sync.WaitGroup
	tokens := make([]string, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			token, err := tm.GetValidToken(context.Background(), "acc-1")
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			tokens[i] = token
		}(i)
	}
	wg.Wait()

	if refresher.callCount() != 1 {
		t.Fatalf("expected exactly one refresh across concurrent callers, got %d", refresher.callCount())
	}
	for i, token := range tokens {
		if token != "fresh-access" {
			t.Errorf("caller %d got %q, want fresh-access", i, token)
		}
	}
}

func TestIMAPAccountNeverRefreshes(t *testing.T) {
	account := &domain.ConnectedAccount{
		ID:           "acc-imap",
		UserID:       "user-1",
		ProviderKind: domain.ProviderIMAP,
		EmailAddress: "user@mail.example",
		AccessToken:  "mailbox-password",
		Status:       domain.StatusActive,
	}
	repo := newMemAccountRepo(account)
	refresher := &fakeRefresher{}
	tm := NewTokenManager(repo, refresher, 60*time.Second)

	token, err := tm.GetValidToken(context.Background(), "acc-imap")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if token != "mailbox-password" {
		t.Errorf("expected stored password, got %q", token)
	}
	if refresher.callCount() != 0 {
		t.Errorf("expected no refresh calls for imap, got %d", refresher.callCount())
	}
}

func TestMissingRefreshTokenMarksNeedsReauth(t *testing.T) {
	account := gmailAccount(time.Now().Add(-time.Minute))
	account.RefreshToken = ""
	repo := newMemAccountRepo(account)
	tm := NewTokenManager(repo, &fakeRefresher{}, 60*time.Second)

	_, err := tm.GetValidToken(context.Background(), "acc-1")
	if err == nil {
		t.Fatal("expected an error")
	}

	stored, _ := repo.FindByID("acc-1")
	if stored.Status != domain.StatusNeedsReauth {
		t.Errorf("expected status needs_reauth, got %s", stored.Status)
	}
}

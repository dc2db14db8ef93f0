package ingest

import (
	"context"
	"sync"
	"testing"
	"time"

	accountdomain "emailtrigger-backend/internal/account/domain"
	accountusecase "emailtrigger-backend/internal/account/usecase"
	emaildomain "emailtrigger-backend/internal/email/domain"
	triggerdomain "emailtrigger-backend/internal/trigger/domain"
	"emailtrigger-backend/internal/trigger/dispatcher"
	"emailtrigger-backend/internal/trigger/engine"
	"emailtrigger-backend/pkg/provider"

	"golang.org/x/oauth2"
)

// --- in-memory collaborators ---

type memAccounts struct {
	mu       sync.Mutex
	accounts map[string]*accountdomain.ConnectedAccount
}

func newMemAccounts(accounts ...*accountdomain.ConnectedAccount) *memAccounts {
	repo := &memAccounts{accounts: make(map[string]*accountdomain.ConnectedAccount)}
	for _, a := range accounts {
		copied := *a
		repo.accounts[a.ID] = &copied
	}
	return repo
}

func (r *memAccounts) Create(account *accountdomain.ConnectedAccount) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *account
	r.accounts[account.ID] = &copied
	return nil
}

func (r *memAccounts) FindByID(id string) (*accountdomain.ConnectedAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	account, ok := r.accounts[id]
	if !ok {
		return nil, accountdomain.ErrAccountNotFound
	}
	copied := *account
	return &copied, nil
}

func (r *memAccounts) FindByUserID(userID string) ([]*accountdomain.ConnectedAccount, error) {
	return nil, nil
}

func (r *memAccounts) FindActive() ([]*accountdomain.ConnectedAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*accountdomain.ConnectedAccount
	for _, a := range r.accounts {
		if a.Status == accountdomain.StatusActive {
			copied := *a
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *memAccounts) FindByEmailAndKind(email string, kind accountdomain.ProviderKind) (*accountdomain.ConnectedAccount, error) {
	return nil, nil
}

func (r *memAccounts) Update(account *accountdomain.ConnectedAccount) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *account
	r.accounts[account.ID] = &copied
	return nil
}

func (r *memAccounts) UpdateTokens(id, accessToken, refreshToken string, expiry *time.Time) error {
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

func (r *memAccounts) UpdateStatus(id string, status accountdomain.AccountStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.accounts[id].Status = status
	return nil
}

func (r *memAccounts) UpdateLastSync(id string, t time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ts := t
	r.accounts[id].LastSyncAt = &ts
	return nil
}

type memMessages struct {
	mu       sync.Mutex
	messages []*emaildomain.Message
}

func (r *memMessages) Create(message *emaildomain.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if message.ID == "" {
		message.ID = message.ExternalID
	}
	copied := *message
	r.messages = append(r.messages, &copied)
	return nil
}

func (r *memMessages) FindByID(id string) (*emaildomain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.messages {
		if m.ID == id {
			copied := *m
			return &copied, nil
		}
	}
	return nil, nil
}

func (r *memMessages) FindRecentByUserID(userID string, limit int) ([]*emaildomain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*emaildomain.Message
	for _, m := range r.messages {
		if m.UserID == userID {
			copied := *m
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *memMessages) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.messages)
}

type memSeen struct {
	mu   sync.Mutex
	seen map[string]bool
}

func newMemSeen() *memSeen {
	return &memSeen{seen: make(map[string]bool)}
}

func (r *memSeen) MarkSeen(accountID, externalID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := accountID + "|" + externalID
	if r.seen[key] {
		return true, nil
	}
	r.seen[key] = true
	return false, nil
}

func (r *memSeen) IsSeen(accountID, externalID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.seen[accountID+"|"+externalID], nil
}

type memTriggers struct {
	rules []*triggerdomain.TriggerRule
}

func (r *memTriggers) Create(rule *triggerdomain.TriggerRule) error { return nil }
func (r *memTriggers) FindByID(id string) (*triggerdomain.TriggerRule, error) {
	return nil, nil
}
func (r *memTriggers) FindByUserID(userID string) ([]*triggerdomain.TriggerRule, error) {
	return r.rules, nil
}
func (r *memTriggers) FindActiveByUserID(userID string) ([]*triggerdomain.TriggerRule, error) {
	var out []*triggerdomain.TriggerRule
	for _, rule := range r.rules {
		if rule.IsActive && rule.UserID == userID {
			out = append(out, rule)
		}
	}
	return out, nil
}
func (r *memTriggers) Update(rule *triggerdomain.TriggerRule) error { return nil }
func (r *memTriggers) Delete(id string) error                      { return nil }

type memOutcomes struct {
	mu       sync.Mutex
	outcomes map[string]*triggerdomain.DispatchOutcome
}

func newMemOutcomes() *memOutcomes {
	return &memOutcomes{outcomes: make(map[string]*triggerdomain.DispatchOutcome)}
}

func (r *memOutcomes) FindByPair(messageExternalID, ruleID string) (*triggerdomain.DispatchOutcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if o, ok := r.outcomes[messageExternalID+"|"+ruleID]; ok {
		copied := *o
		return &copied, nil
	}
	return nil, nil
}

func (r *memOutcomes) Save(outcome *triggerdomain.DispatchOutcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if outcome.ID == "" {
		outcome.ID = outcome.MessageExternalID + "|" + outcome.RuleID
	}
	copied := *outcome
	r.outcomes[outcome.MessageExternalID+"|"+outcome.RuleID] = &copied
	return nil
}

func (r *memOutcomes) FindByRuleID(ruleID string, limit int) ([]*triggerdomain.DispatchOutcome, error) {
	return nil, nil
}

func (r *memOutcomes) FindByUserID(userID string, limit int) ([]*triggerdomain.DispatchOutcome, error) {
	return nil, nil
}

// fakeAdapter serves a fixed message list and records call counts
type fakeAdapter struct {
	mu       sync.Mutex
	messages []*emaildomain.Message
	listErr  error
	calls    int
}

func (a *fakeAdapter) ListNewMessages(ctx context.Context, creds provider.Credentials, since time.Time, limit int) ([]*emaildomain.Message, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	if a.listErr != nil {
		return nil, a.listErr
	}
	out := make([]*emaildomain.Message, 0, len(a.messages))
	for _, m := range a.messages {
		copied := *m
		out = append(out, &copied)
	}
	return out, nil
}

func (a *fakeAdapter) MarkAsRead(ctx context.Context, creds provider.Credentials, externalID string) error {
	return nil
}

func (a *fakeAdapter) Forward(ctx context.Context, creds provider.Credentials, msg *emaildomain.Message, to string) error {
	return nil
}

func (a *fakeAdapter) CheckPermissions(ctx context.Context, creds provider.Credentials) (*provider.Permissions, error) {
	return &provider.Permissions{ProfileOK: true, MessagesOK: true}, nil
}

type noopRefresher struct{}

func (noopRefresher) Refresh(ctx context.Context, kind accountdomain.ProviderKind, refreshToken string) (*oauth2.Token, error) {
	return &oauth2.Token{AccessToken: "fresh", Expiry: time.Now().Add(time.Hour)}, nil
}

// countingExecutor records how many times an action ran
type countingExecutor struct {
	mu    sync.Mutex
	calls int
}

func (e *countingExecutor) Execute(ctx context.Context, job dispatcher.Job) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	return nil
}

func (e *countingExecutor) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// --- tests ---

func imapAccount() *accountdomain.ConnectedAccount {
	return &accountdomain.ConnectedAccount{
		ID:           "acc-1",
		UserID:       "user-1",
		ProviderKind: accountdomain.ProviderIMAP,
		EmailAddress: "user@mail.example",
		AccessToken:  "password",
		IMAPHost:     "mail.example:993",
		Status:       accountdomain.StatusActive,
	}
}

func fixtureMessages() []*emaildomain.Message {
	return []*emaildomain.Message{
		{
			ExternalID: "ext-2",
			Sender:     "boss@co.com",
			Subject:    "urgent invoice",
			ReceivedAt: time.Now().Add(-time.Minute),
		},
		{
			ExternalID: "ext-1",
			Sender:     "other@co.com",
			Subject:    "lunch",
			ReceivedAt: time.Now().Add(-2 * time.Minute),
		},
	}
}

func newTestScheduler(t *testing.T, adapter *fakeAdapter, accounts *memAccounts, rules []*triggerdomain.TriggerRule) (*Scheduler, *memMessages, *memOutcomes, *dispatcher.Dispatcher, *countingExecutor) {
	t.Helper()

	tokens := accountusecase.NewTokenManager(accounts, noopRefresher{}, time.Minute)
	factory := provider.NewFactory()
	factory.Register(accountdomain.ProviderIMAP, adapter)

	messages := &memMessages{}
	outcomes := newMemOutcomes()

	exec := &countingExecutor{}
	dispatch := dispatcher.NewDispatcher(outcomes, 1, 3, time.Second)
	dispatch.SetBackoffBase(time.Millisecond)
	dispatch.RegisterExecutor(triggerdomain.ActionLogMessage, exec)
	dispatch.Start()

	scheduler := NewScheduler(
		accounts, tokens, factory,
		messages, newMemSeen(), &memTriggers{rules: rules},
		engine.NewEngine(), dispatch,
		Options{PollInterval: time.Minute, PollBackoffMax: 16 * time.Minute, PageSize: 50, CycleTimeout: time.Second},
	)
	return scheduler, messages, outcomes, dispatch, exec
}

func TestCycleIsIdempotentAcrossRuns(t *testing.T) {
	adapter := &fakeAdapter{messages: fixtureMessages()}
	accounts := newMemAccounts(imapAccount())
	rules := []*triggerdomain.TriggerRule{{
		ID:          "rule-1",
		UserID:      "user-1",
		Name:        "invoices",
		TriggerType: triggerdomain.TriggerSubjectContains,
		Condition:   "invoice",
		Action:      triggerdomain.ActionLogMessage,
		IsActive:    true,
	}}

	scheduler, messages, outcomes, dispatch, exec := newTestScheduler(t, adapter, accounts, rules)

	account, _ := accounts.FindByID("acc-1")
	if err := scheduler.cycle(context.Background(), account); err != nil {
		t.Fatalf("first cycle failed: %v", err)
	}

	// Same messages again: the seen index must swallow every one of them
	account, _ = accounts.FindByID("acc-1")
	if err := scheduler.cycle(context.Background(), account); err != nil {
		t.Fatalf("second cycle failed: %v", err)
	}

	dispatch.Stop()

	if got := messages.count(); got != 2 {
		t.Errorf("expected 2 stored messages after two cycles, got %d", got)
	}
	if got := exec.callCount(); got != 1 {
		t.Errorf("expected the matching rule's action to run once, got %d", got)
	}

	outcome, _ := outcomes.FindByPair("ext-2", "rule-1")
	if outcome == nil || outcome.Status != triggerdomain.OutcomeSucceeded {
		t.Fatalf("expected a succeeded outcome for the matching pair, got %+v", outcome)
	}
}

func TestCycleAdvancesSyncCursor(t *testing.T) {
	adapter := &fakeAdapter{messages: fixtureMessages()}
	accounts := newMemAccounts(imapAccount())

	scheduler, _, _, dispatch, _ := newTestScheduler(t, adapter, accounts, nil)
	defer dispatch.Stop()

	account, _ := accounts.FindByID("acc-1")
	if err := scheduler.cycle(context.Background(), account); err != nil {
		t.Fatalf("cycle failed: %v", err)
	}

	stored, _ := accounts.FindByID("acc-1")
	if stored.LastSyncAt == nil {
		t.Fatal("expected last_sync_at to be set")
	}
	want := fixtureMessages()[0].ReceivedAt
	if !stored.LastSyncAt.Equal(want) && !stored.LastSyncAt.After(want.Add(-time.Second)) {
		t.Errorf("expected cursor near newest message time %s, got %s", want, stored.LastSyncAt)
	}
}

func TestNextIntervalDoublesAndCaps(t *testing.T) {
	max := 16 * time.Minute

	interval := time.Minute
	expected := []time.Duration{2 * time.Minute, 4 * time.Minute, 8 * time.Minute, 16 * time.Minute, 16 * time.Minute}
	for i, want := range expected {
		interval = nextInterval(interval, max)
		if interval != want {
			t.Fatalf("step %d: got %s, want %s", i, interval, want)
		}
	}
}

func TestRunCycleBacksOffAndRecovers(t *testing.T) {
	adapter := &fakeAdapter{listErr: provider.ErrRateLimited}
	accounts := newMemAccounts(imapAccount())

	scheduler, _, _, dispatch, _ := newTestScheduler(t, adapter, accounts, nil)
	defer dispatch.Stop()

	account, _ := accounts.FindByID("acc-1")
	p := &poller{account: account, interval: time.Minute}

	scheduler.runCycle(p)
	if p.interval != 2*time.Minute {
		t.Fatalf("expected interval doubled to 2m after failure, got %s", p.interval)
	}
	scheduler.runCycle(p)
	if p.interval != 4*time.Minute {
		t.Fatalf("expected interval doubled to 4m after second failure, got %s", p.interval)
	}

	adapter.mu.Lock()
	adapter.listErr = nil
	adapter.mu.Unlock()

	scheduler.runCycle(p)
	if p.interval != time.Minute {
		t.Fatalf("expected interval reset to base after success, got %s", p.interval)
	}
}

package ingest

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	accountdomain "emailtrigger-backend/internal/account/domain"
	accountrepository "emailtrigger-backend/internal/account/repository"
	accountusecase "emailtrigger-backend/internal/account/usecase"
	emailrepository "emailtrigger-backend/internal/email/repository"
	"emailtrigger-backend/internal/trigger/dispatcher"
	"emailtrigger-backend/internal/trigger/engine"
	triggerrepository "emailtrigger-backend/internal/trigger/repository"
	"emailtrigger-backend/pkg/provider"
)

// Options tunes the scheduler's polling behavior
type Options struct {
	PollInterval   time.Duration
	PollBackoffMax time.Duration
	PageSize       int
	CycleTimeout   time.Duration
}

func (o *Options) withDefaults() {
	if o.PollInterval <= 0 {
		o.PollInterval = time.Minute
	}
	if o.PollBackoffMax <= 0 {
		o.PollBackoffMax = 16 * time.Minute
	}
	if o.PageSize <= 0 {
		o.PageSize = 50
	}
	if o.CycleTimeout <= 0 {
		o.CycleTimeout = 2 * time.Minute
	}
}

// Scheduler runs one polling goroutine per active account. A reconcile tick
// picks up newly connected accounts and stops pollers for accounts that were
// disconnected or need reauth.
type Scheduler struct {
	accounts   accountrepository.AccountRepository
	tokens     *accountusecase.TokenManager
	factory    *provider.Factory
	messages   emailrepository.MessageRepository
	seen       emailrepository.SeenMessageRepository
	triggers   triggerrepository.TriggerRepository
	engine     *engine.Engine
	dispatcher *dispatcher.Dispatcher
	opts       Options

	mu       sync.Mutex
	pollers  map[string]*poller
	stopChan chan struct{}
	wg       sync.WaitGroup
	started  bool
}

// poller is the per-account polling loop state
type poller struct {
	account  *accountdomain.ConnectedAccount
	interval time.Duration
	nudge    chan struct{}
	stop     chan struct{}
}

// NewScheduler creates a scheduler over the given collaborators
func NewScheduler(
	accounts accountrepository.AccountRepository,
	tokens *accountusecase.TokenManager,
	factory *provider.Factory,
	messages emailrepository.MessageRepository,
	seen emailrepository.SeenMessageRepository,
	triggers triggerrepository.TriggerRepository,
	ruleEngine *engine.Engine,
	dispatch *dispatcher.Dispatcher,
	opts Options,
) *Scheduler {
	opts.withDefaults()
	return &Scheduler{
		accounts:   accounts,
		tokens:     tokens,
		factory:    factory,
		messages:   messages,
		seen:       seen,
		triggers:   triggers,
		engine:     ruleEngine,
		dispatcher: dispatch,
		opts:       opts,
		pollers:    make(map[string]*poller),
		stopChan:   make(chan struct{}),
	}
}

// Start reconciles pollers immediately and then on every poll interval
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	s.reconcile()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.opts.PollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.reconcile()
			case <-s.stopChan:
				return
			}
		}
	}()

	log.Printf("[Scheduler] Started (interval %s, page size %d)", s.opts.PollInterval, s.opts.PageSize)
}

// Stop shuts down the reconcile loop and every account poller
func (s *Scheduler) Stop() {
	close(s.stopChan)

	s.mu.Lock()
	for id, p := range s.pollers {
		close(p.stop)
		delete(s.pollers, id)
	}
	s.mu.Unlock()

	s.wg.Wait()
	log.Println("[Scheduler] Stopped")
}

// Nudge triggers an immediate poll cycle for one account, used by push
// notifications so new mail is picked up before the next tick
func (s *Scheduler) Nudge(accountID string) {
	s.mu.Lock()
	p, ok := s.pollers[accountID]
	s.mu.Unlock()
	if !ok {
		return
	}
	select {
	case p.nudge <- struct{}{}:
	default:
	}
}

// reconcile aligns running pollers with the set of pollable accounts
func (s *Scheduler) reconcile() {
	accounts, err := s.accounts.FindActive()
	if err != nil {
		log.Printf("[Scheduler] Reconcile failed to list accounts: %v", err)
		return
	}

	pollable := make(map[string]*accountdomain.ConnectedAccount)
	for _, account := range accounts {
		if account.Pollable() {
			pollable[account.ID] = account
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for id, p := range s.pollers {
		if _, ok := pollable[id]; !ok {
			close(p.stop)
			delete(s.pollers, id)
			log.Printf("[Scheduler] Stopped poller for account %s", id)
		}
	}

	for id, account := range pollable {
		if _, ok := s.pollers[id]; ok {
			continue
		}
		p := &poller{
			account:  account,
			interval: s.opts.PollInterval,
			nudge:    make(chan struct{}, 1),
			stop:     make(chan struct{}),
		}
		s.pollers[id] = p
		s.wg.Add(1)
		go s.run(p)
		log.Printf("[Scheduler] Started poller for account %s (%s)", id, account.ProviderKind)
	}
}

// run is one account's polling loop. The interval doubles on transient
// failures up to the backoff cap and resets on the first success.
func (s *Scheduler) run(p *poller) {
	defer s.wg.Done()

	s.runCycle(p)
	for {
		timer := time.NewTimer(p.interval)
		select {
		case <-timer.C:
			s.runCycle(p)
		case <-p.nudge:
			timer.Stop()
			s.runCycle(p)
		case <-p.stop:
			timer.Stop()
			return
		}
	}
}

func (s *Scheduler) runCycle(p *poller) {
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.CycleTimeout)
	defer cancel()

	err := s.cycle(ctx, p.account)
	switch {
	case err == nil:
		p.interval = s.opts.PollInterval
	case errors.Is(err, accountdomain.ErrReauthRequired):
		// Status is already needs_reauth; the next reconcile removes us
		log.Printf("[Scheduler] Account %s needs reauth, pausing poller", p.account.ID)
		p.interval = s.opts.PollBackoffMax
	default:
		p.interval = nextInterval(p.interval, s.opts.PollBackoffMax)
		log.Printf("[Scheduler] Cycle failed for account %s, backing off to %s: %v", p.account.ID, p.interval, err)
	}
}

// nextInterval doubles the current interval, capped at max
func nextInterval(current, max time.Duration) time.Duration {
	next := current * 2
	if next > max {
		return max
	}
	return next
}

// cycle fetches new messages for one account, dedups them against the seen
// index, stores the new ones and dispatches matching rules
func (s *Scheduler) cycle(ctx context.Context, account *accountdomain.ConnectedAccount) error {
	adapter, err := s.factory.ForKind(account.ProviderKind)
	if err != nil {
		return err
	}

	creds, err := s.tokens.CredentialsFor(ctx, account)
	if err != nil {
		return err
	}

	since := time.Now().Add(-24 * time.Hour)
	if account.LastSyncAt != nil {
		since = *account.LastSyncAt
	}

	fetched, err := adapter.ListNewMessages(ctx, creds, since, s.opts.PageSize)
	if err != nil {
		if errors.Is(err, provider.ErrAuthRejected) {
			// Force a refresh attempt on the next cycle by expiring the token
			return s.handleAuthRejected(ctx, account)
		}
		return err
	}

	rules, err := s.triggers.FindActiveByUserID(account.UserID)
	if err != nil {
		return err
	}

	newCount := 0
	latest := since

	// Adapters return newest first; walk oldest first so the sync cursor
	// only moves past fully processed messages
	for i := len(fetched) - 1; i >= 0; i-- {
		message := fetched[i]

		// Mark seen before any further processing. A crash after this point
		// loses the message rather than double-firing its actions.
		alreadySeen, err := s.seen.MarkSeen(account.ID, message.ExternalID)
		if err != nil {
			return err
		}
		if alreadySeen {
			continue
		}

		message.AccountID = account.ID
		message.UserID = account.UserID
		if err := s.messages.Create(message); err != nil {
			log.Printf("[Scheduler] Failed to store message %s for account %s: %v", message.ExternalID, account.ID, err)
			continue
		}
		newCount++

		for _, rule := range s.engine.Evaluate(message, rules) {
			queued, err := s.dispatcher.Enqueue(dispatcher.Job{
				Message: message,
				Rule:    rule,
				Account: account,
			})
			if err != nil {
				log.Printf("[Scheduler] Failed to enqueue rule %s for message %s: %v", rule.ID, message.ExternalID, err)
				continue
			}
			if queued {
				log.Printf("[Scheduler] Queued rule %s (%s) for message %s", rule.ID, rule.Action, message.ExternalID)
			}
		}

		if message.ReceivedAt.After(latest) {
			latest = message.ReceivedAt
		}
	}

	if err := s.accounts.UpdateLastSync(account.ID, latest); err != nil {
		return err
	}
	account.LastSyncAt = &latest

	if newCount > 0 {
		log.Printf("[Scheduler] Account %s: %d new messages", account.ID, newCount)
	}
	return nil
}

// handleAuthRejected runs when the provider refuses a token mid-cycle. OAuth
// accounts get their stored expiry invalidated so the next cycle refreshes;
// IMAP passwords cannot be refreshed, so the account goes to needs_reauth.
func (s *Scheduler) handleAuthRejected(ctx context.Context, account *accountdomain.ConnectedAccount) error {
	if account.ProviderKind == accountdomain.ProviderIMAP {
		if err := s.accounts.UpdateStatus(account.ID, accountdomain.StatusNeedsReauth); err != nil {
			return err
		}
		return accountdomain.ErrReauthRequired
	}

	expired := time.Now().Add(-time.Minute)
	if err := s.accounts.UpdateTokens(account.ID, account.AccessToken, "", &expired); err != nil {
		return err
	}
	return provider.ErrAuthRejected
}

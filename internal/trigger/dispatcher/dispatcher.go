package dispatcher

import (
	"context"
	"log"
	"sync"
	"time"

	accountdomain "emailtrigger-backend/internal/account/domain"
	emaildomain "emailtrigger-backend/internal/email/domain"
	"emailtrigger-backend/internal/trigger/domain"
	"emailtrigger-backend/internal/trigger/repository"
)

// Job is one action execution request for a (message, rule) pair
type Job struct {
	Message *emaildomain.Message
	Rule    *domain.TriggerRule
	Account *accountdomain.ConnectedAccount
}

// Executor runs one action type against a job
type Executor interface {
	Execute(ctx context.Context, job Job) error
}

// Dispatcher runs matched rules' actions on a bounded worker pool. Every
// dispatch writes a DispatchOutcome row; a pair whose outcome is already
// terminal (succeeded or exhausted) is never dispatched again.
type Dispatcher struct {
	outcomes  repository.OutcomeRepository
	executors map[domain.ActionType]Executor

	jobQueue      chan Job
	workerWg      sync.WaitGroup
	workerCount   int
	maxAttempts   int
	actionTimeout time.Duration
	backoffBase   time.Duration

	started bool
	mu      sync.Mutex
}

// NewDispatcher creates a dispatcher with workerCount workers and at most
// maxAttempts executions per job
func NewDispatcher(outcomes repository.OutcomeRepository, workerCount, maxAttempts int, actionTimeout time.Duration) *Dispatcher {
	if workerCount <= 0 {
		workerCount = 4
	}
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if actionTimeout <= 0 {
		actionTimeout = 30 * time.Second
	}
	return &Dispatcher{
		outcomes:      outcomes,
		executors:     make(map[domain.ActionType]Executor),
		jobQueue:      make(chan Job, 500),
		workerCount:   workerCount,
		maxAttempts:   maxAttempts,
		actionTimeout: actionTimeout,
		backoffBase:   2 * time.Second,
	}
}

// RegisterExecutor binds an executor to an action type
func (d *Dispatcher) RegisterExecutor(action domain.ActionType, executor Executor) {
	d.executors[action] = executor
}

// SetBackoffBase overrides the base delay between failed attempts
func (d *Dispatcher) SetBackoffBase(base time.Duration) {
	d.backoffBase = base
}

// Start starts the dispatch workers
func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.started {
		return
	}

	for i := 0; i < d.workerCount; i++ {
		d.workerWg.Add(1)
		go d.worker(i)
	}
	d.started = true
	log.Printf("[Dispatcher] Started %d workers", d.workerCount)
}

// Stop drains the queue and stops all workers gracefully
func (d *Dispatcher) Stop() {
	close(d.jobQueue)
	d.workerWg.Wait()
	log.Println("[Dispatcher] All workers stopped")
}

// Enqueue queues a job unless its (message, rule) pair already reached a
// terminal outcome. Returns whether the job was accepted.
func (d *Dispatcher) Enqueue(job Job) (bool, error) {
	existing, err := d.outcomes.FindByPair(job.Message.ExternalID, job.Rule.ID)
	if err != nil {
		return false, err
	}
	if existing != nil && existing.Terminal() {
		return false, nil
	}

	select {
	case d.jobQueue <- job:
		return true, nil
	default:
		log.Printf("[Dispatcher] Queue full, dropping job for rule %s message %s", job.Rule.ID, job.Message.ExternalID)
		return false, nil
	}
}

func (d *Dispatcher) worker(id int) {
	defer d.workerWg.Done()

	for job := range d.jobQueue {
		d.processJob(job)
	}

	log.Printf("[Dispatcher] Worker %d stopped", id)
}

// processJob runs the job's action up to maxAttempts times, recording the
// attempt count and final status on the pair's outcome row
func (d *Dispatcher) processJob(job Job) {
	outcome, err := d.outcomes.FindByPair(job.Message.ExternalID, job.Rule.ID)
	if err != nil {
		log.Printf("[Dispatcher] Failed to load outcome for rule %s message %s: %v", job.Rule.ID, job.Message.ExternalID, err)
		return
	}
	if outcome != nil && outcome.Terminal() {
		return
	}
	if outcome == nil {
		outcome = &domain.DispatchOutcome{
			MessageExternalID: job.Message.ExternalID,
			RuleID:            job.Rule.ID,
			UserID:            job.Rule.UserID,
		}
	}

	executor, ok := d.executors[job.Rule.Action]
	if !ok {
		outcome.Status = domain.OutcomeExhausted
		outcome.LastError = "no executor for action " + string(job.Rule.Action)
		d.saveOutcome(outcome)
		return
	}

	for outcome.AttemptCount < d.maxAttempts {
		outcome.AttemptCount++

		err := d.runAttempt(executor, job)
		if err == nil {
			outcome.Status = domain.OutcomeSucceeded
			outcome.LastError = ""
			d.saveOutcome(outcome)
			log.Printf("[Dispatcher] Rule %s (%s) succeeded for message %s on attempt %d",
				job.Rule.ID, job.Rule.Action, job.Message.ExternalID, outcome.AttemptCount)
			return
		}

		outcome.LastError = err.Error()
		if outcome.AttemptCount >= d.maxAttempts {
			outcome.Status = domain.OutcomeExhausted
			d.saveOutcome(outcome)
			log.Printf("[Dispatcher] Rule %s (%s) exhausted after %d attempts for message %s: %v",
				job.Rule.ID, job.Rule.Action, outcome.AttemptCount, job.Message.ExternalID, err)
			return
		}

		outcome.Status = domain.OutcomeFailed
		d.saveOutcome(outcome)
		log.Printf("[Dispatcher] Rule %s (%s) attempt %d failed for message %s: %v",
			job.Rule.ID, job.Rule.Action, outcome.AttemptCount, job.Message.ExternalID, err)

		time.Sleep(d.backoffBase << (outcome.AttemptCount - 1))
	}
}

func (d *Dispatcher) runAttempt(executor Executor, job Job) error {
	ctx, cancel := context.WithTimeout(context.Background(), d.actionTimeout)
	defer cancel()
	return executor.Execute(ctx, job)
}

func (d *Dispatcher) saveOutcome(outcome *domain.DispatchOutcome) {
	if err := d.outcomes.Save(outcome); err != nil {
		log.Printf("[Dispatcher] Failed to save outcome for rule %s message %s: %v",
			outcome.RuleID, outcome.MessageExternalID, err)
	}
}

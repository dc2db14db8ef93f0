package repository

import (
	"emailtrigger-backend/internal/trigger/domain"
)

// TriggerRepository defines data access for trigger rules
type TriggerRepository interface {
	// Create creates a new trigger rule
	Create(rule *domain.TriggerRule) error

	// FindByID finds a rule by its ID
	FindByID(id string) (*domain.TriggerRule, error)

	// FindByUserID lists all rules for a user
	FindByUserID(userID string) ([]*domain.TriggerRule, error)

	// FindActiveByUserID lists the active rules evaluated against new messages
	FindActiveByUserID(userID string) ([]*domain.TriggerRule, error)

	// Update updates an existing rule
	Update(rule *domain.TriggerRule) error

	// Delete deletes a rule by ID
	Delete(id string) error
}

// OutcomeRepository is the append-only audit trail of dispatch outcomes
type OutcomeRepository interface {
	// FindByPair returns the outcome for a (message, rule) pair, or nil
	FindByPair(messageExternalID, ruleID string) (*domain.DispatchOutcome, error)

	// Save inserts or updates the single row for the outcome's pair
	Save(outcome *domain.DispatchOutcome) error

	// FindByRuleID lists outcomes for one rule, newest first
	FindByRuleID(ruleID string, limit int) ([]*domain.DispatchOutcome, error)

	// FindByUserID lists outcomes for a user, newest first
	FindByUserID(userID string, limit int) ([]*domain.DispatchOutcome, error)
}

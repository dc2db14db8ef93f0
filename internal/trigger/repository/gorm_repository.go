package repository

import (
	"errors"
	"time"

	"emailtrigger-backend/internal/trigger/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// triggerRepository implements TriggerRepository interface
type triggerRepository struct {
	db *gorm.DB
}

// NewTriggerRepository creates a new instance of triggerRepository
func NewTriggerRepository(db *gorm.DB) TriggerRepository {
	return &triggerRepository{
		db: db,
	}
}

func (r *triggerRepository) Create(rule *domain.TriggerRule) error {
	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}
	rule.CreatedAt = time.Now()
	rule.UpdatedAt = time.Now()
	return r.db.Create(rule).Error
}

func (r *triggerRepository) FindByID(id string) (*domain.TriggerRule, error) {
	var rule domain.TriggerRule
	err := r.db.Where("id = ?", id).First(&rule).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &rule, nil
}

func (r *triggerRepository) FindByUserID(userID string) ([]*domain.TriggerRule, error) {
	var rules []*domain.TriggerRule
	err := r.db.Where("user_id = ?", userID).Order("created_at asc").Find(&rules).Error
	return rules, err
}

func (r *triggerRepository) FindActiveByUserID(userID string) ([]*domain.TriggerRule, error) {
	var rules []*domain.TriggerRule
	err := r.db.Where("user_id = ? AND is_active = ?", userID, true).Find(&rules).Error
	return rules, err
}

func (r *triggerRepository) Update(rule *domain.TriggerRule) error {
	rule.UpdatedAt = time.Now()
	return r.db.Save(rule).Error
}

func (r *triggerRepository) Delete(id string) error {
	return r.db.Where("id = ?", id).Delete(&domain.TriggerRule{}).Error
}

// outcomeRepository implements OutcomeRepository interface
type outcomeRepository struct {
	db *gorm.DB
}

// NewOutcomeRepository creates a new instance of outcomeRepository
func NewOutcomeRepository(db *gorm.DB) OutcomeRepository {
	return &outcomeRepository{
		db: db,
	}
}

func (r *outcomeRepository) FindByPair(messageExternalID, ruleID string) (*domain.DispatchOutcome, error) {
	var outcome domain.DispatchOutcome
	err := r.db.Where("message_external_id = ? AND rule_id = ?", messageExternalID, ruleID).
		First(&outcome).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &outcome, nil
}

func (r *outcomeRepository) Save(outcome *domain.DispatchOutcome) error {
	now := time.Now()
	if outcome.ID == "" {
		outcome.ID = uuid.New().String()
		outcome.CreatedAt = now
	}
	outcome.UpdatedAt = now
	return r.db.Save(outcome).Error
}

func (r *outcomeRepository) FindByRuleID(ruleID string, limit int) ([]*domain.DispatchOutcome, error) {
	if limit <= 0 {
		limit = 50
	}
	var outcomes []*domain.DispatchOutcome
	err := r.db.Where("rule_id = ?", ruleID).Order("updated_at desc").Limit(limit).Find(&outcomes).Error
	return outcomes, err
}

func (r *outcomeRepository) FindByUserID(userID string, limit int) ([]*domain.DispatchOutcome, error) {
	if limit <= 0 {
		limit = 50
	}
	var outcomes []*domain.DispatchOutcome
	err := r.db.Where("user_id = ?", userID).Order("updated_at desc").Limit(limit).Find(&outcomes).Error
	return outcomes, err
}

package usecase

import (
	"errors"
	"fmt"
	"strings"

	emaildomain "emailtrigger-backend/internal/email/domain"
	emailrepository "emailtrigger-backend/internal/email/repository"
	"emailtrigger-backend/internal/trigger/domain"
	"emailtrigger-backend/internal/trigger/dto"
	"emailtrigger-backend/internal/trigger/engine"
	"emailtrigger-backend/internal/trigger/repository"
)

// ErrInvalidRule marks rule payloads rejected at save time. Handlers map it
// to a 400 response.
var ErrInvalidRule = errors.New("invalid trigger rule")

// ErrRuleNotFound is returned when a rule does not exist or belongs to
// another user
var ErrRuleNotFound = errors.New("trigger rule not found")

// TriggerUsecase defines trigger rule business logic
type TriggerUsecase interface {
	Create(userID string, req *dto.CreateTriggerRequest) (*domain.TriggerRule, error)
	List(userID string) ([]*domain.TriggerRule, error)
	Get(userID, id string) (*domain.TriggerRule, error)
	Update(userID, id string, req *dto.UpdateTriggerRequest) (*domain.TriggerRule, error)
	Delete(userID, id string) error

	// TestRule dry-runs a condition against the user's recent messages
	// without dispatching any action
	TestRule(userID string, req *dto.TestTriggerRequest) (*dto.TestTriggerResponse, error)

	// ListOutcomes returns dispatch outcomes, optionally scoped to one rule
	ListOutcomes(userID, ruleID string, limit int) ([]*domain.DispatchOutcome, error)
}

type triggerUsecase struct {
	triggers repository.TriggerRepository
	outcomes repository.OutcomeRepository
	messages emailrepository.MessageRepository
	engine   *engine.Engine
}

// NewTriggerUsecase creates a new instance of triggerUsecase
func NewTriggerUsecase(
	triggers repository.TriggerRepository,
	outcomes repository.OutcomeRepository,
	messages emailrepository.MessageRepository,
	ruleEngine *engine.Engine,
) TriggerUsecase {
	return &triggerUsecase{
		triggers: triggers,
		outcomes: outcomes,
		messages: messages,
		engine:   ruleEngine,
	}
}

func (u *triggerUsecase) Create(userID string, req *dto.CreateTriggerRequest) (*domain.TriggerRule, error) {
	triggerType := domain.TriggerType(req.TriggerType)
	action := domain.ActionType(req.Action)
	if err := validateRule(triggerType, req.Condition, action, req.ActionTarget); err != nil {
		return nil, err
	}

	rule := &domain.TriggerRule{
		UserID:       userID,
		Name:         strings.TrimSpace(req.Name),
		TriggerType:  triggerType,
		Condition:    req.Condition,
		Action:       action,
		ActionTarget: strings.TrimSpace(req.ActionTarget),
		IsActive:     true,
	}
	if req.IsActive != nil {
		rule.IsActive = *req.IsActive
	}

	if err := u.triggers.Create(rule); err != nil {
		return nil, err
	}
	return rule, nil
}

func (u *triggerUsecase) List(userID string) ([]*domain.TriggerRule, error) {
	return u.triggers.FindByUserID(userID)
}

func (u *triggerUsecase) Get(userID, id string) (*domain.TriggerRule, error) {
	rule, err := u.triggers.FindByID(id)
	if err != nil {
		return nil, err
	}
	if rule == nil || rule.UserID != userID {
		return nil, ErrRuleNotFound
	}
	return rule, nil
}

func (u *triggerUsecase) Update(userID, id string, req *dto.UpdateTriggerRequest) (*domain.TriggerRule, error) {
	rule, err := u.Get(userID, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		rule.Name = strings.TrimSpace(*req.Name)
	}
	if req.TriggerType != nil {
		rule.TriggerType = domain.TriggerType(*req.TriggerType)
	}
	if req.Condition != nil {
		rule.Condition = *req.Condition
	}
	if req.Action != nil {
		rule.Action = domain.ActionType(*req.Action)
	}
	if req.ActionTarget != nil {
		rule.ActionTarget = strings.TrimSpace(*req.ActionTarget)
	}
	if req.IsActive != nil {
		rule.IsActive = *req.IsActive
	}

	// The merged rule must pass the same validation as a fresh one
	if err := validateRule(rule.TriggerType, rule.Condition, rule.Action, rule.ActionTarget); err != nil {
		return nil, err
	}

	if err := u.triggers.Update(rule); err != nil {
		return nil, err
	}
	return rule, nil
}

func (u *triggerUsecase) Delete(userID, id string) error {
	if _, err := u.Get(userID, id); err != nil {
		return err
	}
	return u.triggers.Delete(id)
}

func (u *triggerUsecase) TestRule(userID string, req *dto.TestTriggerRequest) (*dto.TestTriggerResponse, error) {
	triggerType := domain.TriggerType(req.TriggerType)
	if !validTriggerType(triggerType) {
		return nil, fmt.Errorf("%w: unknown trigger type %q", ErrInvalidRule, req.TriggerType)
	}
	if err := engine.ValidateCondition(triggerType, req.Condition); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}

	limit := req.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	recent, err := u.messages.FindRecentByUserID(userID, limit)
	if err != nil {
		return nil, err
	}

	probe := &domain.TriggerRule{
		UserID:      userID,
		TriggerType: triggerType,
		Condition:   req.Condition,
		IsActive:    true,
	}

	matched := make([]*emaildomain.Message, 0)
	for _, message := range recent {
		ok, err := u.engine.Matches(message, probe)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRule, err)
		}
		if ok {
			matched = append(matched, message)
		}
	}

	return &dto.TestTriggerResponse{
		Checked: len(recent),
		Matched: matched,
	}, nil
}

func (u *triggerUsecase) ListOutcomes(userID, ruleID string, limit int) ([]*domain.DispatchOutcome, error) {
	if ruleID != "" {
		if _, err := u.Get(userID, ruleID); err != nil {
			return nil, err
		}
		return u.outcomes.FindByRuleID(ruleID, limit)
	}
	return u.outcomes.FindByUserID(userID, limit)
}

func validateRule(triggerType domain.TriggerType, condition string, action domain.ActionType, actionTarget string) error {
	if !validTriggerType(triggerType) {
		return fmt.Errorf("%w: unknown trigger type %q", ErrInvalidRule, triggerType)
	}
	if !validActionType(action) {
		return fmt.Errorf("%w: unknown action %q", ErrInvalidRule, action)
	}
	if err := engine.ValidateCondition(triggerType, condition); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}

	// Actions that need a target must have one before the rule can be saved
	switch action {
	case domain.ActionForwardEmail, domain.ActionWebhookCall, domain.ActionCustomScript:
		if strings.TrimSpace(actionTarget) == "" {
			return fmt.Errorf("%w: action %s requires a target", ErrInvalidRule, action)
		}
	}
	return nil
}

func validTriggerType(t domain.TriggerType) bool {
	for _, valid := range domain.ValidTriggerTypes {
		if t == valid {
			return true
		}
	}
	return false
}

func validActionType(a domain.ActionType) bool {
	for _, valid := range domain.ValidActionTypes {
		if a == valid {
			return true
		}
	}
	return false
}

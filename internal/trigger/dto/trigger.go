package dto

import (
	emaildomain "emailtrigger-backend/internal/email/domain"
	"emailtrigger-backend/internal/trigger/domain"
)

type CreateTriggerRequest struct {
	Name         string `json:"name" binding:"required"`
	TriggerType  string `json:"trigger_type" binding:"required"`
	Condition    string `json:"condition"`
	Action       string `json:"action" binding:"required"`
	ActionTarget string `json:"action_target"`
	IsActive     *bool  `json:"is_active"`
}

type UpdateTriggerRequest struct {
	Name         *string `json:"name"`
	TriggerType  *string `json:"trigger_type"`
	Condition    *string `json:"condition"`
	Action       *string `json:"action"`
	ActionTarget *string `json:"action_target"`
	IsActive     *bool   `json:"is_active"`
}

type TriggersResponse struct {
	Triggers []*domain.TriggerRule `json:"triggers"`
}

type TestTriggerRequest struct {
	TriggerType string `json:"trigger_type" binding:"required"`
	Condition   string `json:"condition"`
	Limit       int    `json:"limit"`
}

type TestTriggerResponse struct {
	Checked int                    `json:"checked"`
	Matched []*emaildomain.Message `json:"matched"`
}

type OutcomesResponse struct {
	Outcomes []*domain.DispatchOutcome `json:"outcomes"`
	Limit    int                       `json:"limit"`
}

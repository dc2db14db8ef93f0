package domain

import "time"

// TriggerType is the closed set of match conditions a rule can use
type TriggerType string

const (
	TriggerSenderContains   TriggerType = "sender_contains"
	TriggerSubjectContains  TriggerType = "subject_contains"
	TriggerBodyContains     TriggerType = "body_contains"
	TriggerSenderExact      TriggerType = "sender_exact"
	TriggerSubjectRegex     TriggerType = "subject_regex"
	TriggerAttachmentExists TriggerType = "attachment_exists"
	TriggerTimeRange        TriggerType = "time_range"
)

// ActionType is the closed set of actions a matched rule can fire
type ActionType string

const (
	ActionLogMessage       ActionType = "log_message"
	ActionMarkAsRead       ActionType = "mark_as_read"
	ActionForwardEmail     ActionType = "forward_email"
	ActionSendNotification ActionType = "send_notification"
	ActionWebhookCall      ActionType = "webhook_call"
	ActionCustomScript     ActionType = "custom_script"
)

// ValidTriggerTypes lists every supported trigger type, for save-time validation
var ValidTriggerTypes = []TriggerType{
	TriggerSenderContains,
	TriggerSubjectContains,
	TriggerBodyContains,
	TriggerSenderExact,
	TriggerSubjectRegex,
	TriggerAttachmentExists,
	TriggerTimeRange,
}

// ValidActionTypes lists every supported action type, for save-time validation
var ValidActionTypes = []ActionType{
	ActionLogMessage,
	ActionMarkAsRead,
	ActionForwardEmail,
	ActionSendNotification,
	ActionWebhookCall,
	ActionCustomScript,
}

// TriggerRule is a user-defined rule evaluated against every newly ingested
// message. Condition semantics depend on TriggerType; ActionTarget carries the
// single parameter an action may need (forward address, webhook URL, script
// path) and is empty for actions that take none.
type TriggerRule struct {
	ID           string      `json:"id" gorm:"primaryKey"`
	UserID       string      `json:"user_id" gorm:"index;not null"`
	Name         string      `json:"name"`
	TriggerType  TriggerType `json:"trigger_type" gorm:"not null"`
	Condition    string      `json:"condition"`
	Action       ActionType  `json:"action" gorm:"not null"`
	ActionTarget string      `json:"action_target,omitempty"`
	IsActive     bool        `json:"is_active" gorm:"default:true;index"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// OutcomeStatus is the terminal state of one (message, rule) dispatch
type OutcomeStatus string

const (
	OutcomeSucceeded OutcomeStatus = "succeeded"
	OutcomeFailed    OutcomeStatus = "failed"
	OutcomeExhausted OutcomeStatus = "exhausted"
)

// DispatchOutcome is the audit record for one (message, rule) dispatch. One
// row per pair; rows are never deleted. A succeeded or exhausted row
// permanently suppresses re-dispatch of the pair.
type DispatchOutcome struct {
	ID                string        `json:"id" gorm:"primaryKey"`
	MessageExternalID string        `json:"message_external_id" gorm:"index:idx_outcome_pair,unique;not null"`
	RuleID            string        `json:"rule_id" gorm:"index:idx_outcome_pair,unique;not null"`
	UserID            string        `json:"user_id" gorm:"index"`
	AttemptCount      int           `json:"attempt_count"`
	Status            OutcomeStatus `json:"status" gorm:"index"`
	LastError         string        `json:"last_error,omitempty"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
}

// Terminal reports whether this outcome must never be dispatched again
func (o *DispatchOutcome) Terminal() bool {
	return o.Status == OutcomeSucceeded || o.Status == OutcomeExhausted
}

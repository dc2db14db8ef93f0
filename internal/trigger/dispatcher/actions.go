package dispatcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os/exec"
	"strings"
	"time"

	accountusecase "emailtrigger-backend/internal/account/usecase"
	"emailtrigger-backend/pkg/fcm"
	"emailtrigger-backend/pkg/provider"
)

// LogMessageExecutor writes the matched message to the application log
type LogMessageExecutor struct{}

func NewLogMessageExecutor() *LogMessageExecutor {
	return &LogMessageExecutor{}
}

func (e *LogMessageExecutor) Execute(ctx context.Context, job Job) error {
	log.Printf("[Action] Rule %q matched: from=%s subject=%q received=%s",
		job.Rule.Name, job.Message.Sender, job.Message.Subject,
		job.Message.ReceivedAt.Format(time.RFC3339))
	return nil
}

// MarkAsReadExecutor flags the remote message as read through its provider
type MarkAsReadExecutor struct {
	tokens  *accountusecase.TokenManager
	factory *provider.Factory
}

func NewMarkAsReadExecutor(tokens *accountusecase.TokenManager, factory *provider.Factory) *MarkAsReadExecutor {
	return &MarkAsReadExecutor{tokens: tokens, factory: factory}
}

func (e *MarkAsReadExecutor) Execute(ctx context.Context, job Job) error {
	adapter, err := e.factory.ForKind(job.Account.ProviderKind)
	if err != nil {
		return err
	}
	creds, err := e.tokens.CredentialsFor(ctx, job.Account)
	if err != nil {
		return fmt.Errorf("failed to get credentials: %w", err)
	}
	return adapter.MarkAsRead(ctx, creds, job.Message.ExternalID)
}

// ForwardEmailExecutor forwards the message to the rule's target address
type ForwardEmailExecutor struct {
	tokens  *accountusecase.TokenManager
	factory *provider.Factory
}

func NewForwardEmailExecutor(tokens *accountusecase.TokenManager, factory *provider.Factory) *ForwardEmailExecutor {
	return &ForwardEmailExecutor{tokens: tokens, factory: factory}
}

func (e *ForwardEmailExecutor) Execute(ctx context.Context, job Job) error {
	to := strings.TrimSpace(job.Rule.ActionTarget)
	if to == "" {
		return fmt.Errorf("forward_email rule %s has no target address", job.Rule.ID)
	}
	adapter, err := e.factory.ForKind(job.Account.ProviderKind)
	if err != nil {
		return err
	}
	creds, err := e.tokens.CredentialsFor(ctx, job.Account)
	if err != nil {
		return fmt.Errorf("failed to get credentials: %w", err)
	}
	return adapter.Forward(ctx, creds, job.Message, to)
}

// DeviceTokenSource resolves a user's registered push notification tokens
type DeviceTokenSource interface {
	TokensForUser(userID string) ([]string, error)
}

// SendNotificationExecutor pushes a notification about the matched message
// via FCM. Without an FCM client or registered device tokens it degrades to
// a log entry so the action still succeeds.
type SendNotificationExecutor struct {
	fcmClient *fcm.Client
	devices   DeviceTokenSource
}

func NewSendNotificationExecutor(fcmClient *fcm.Client, devices DeviceTokenSource) *SendNotificationExecutor {
	return &SendNotificationExecutor{fcmClient: fcmClient, devices: devices}
}

func (e *SendNotificationExecutor) Execute(ctx context.Context, job Job) error {
	title := fmt.Sprintf("Rule matched: %s", job.Rule.Name)
	body := fmt.Sprintf("From %s: %s", job.Message.Sender, job.Message.Subject)

	if e.fcmClient == nil || e.devices == nil {
		log.Printf("[Action] Notification (no FCM): %s / %s", title, body)
		return nil
	}

	tokens, err := e.devices.TokensForUser(job.Rule.UserID)
	if err != nil {
		return fmt.Errorf("failed to load device tokens: %w", err)
	}
	if len(tokens) == 0 {
		log.Printf("[Action] Notification (no devices for user %s): %s", job.Rule.UserID, title)
		return nil
	}

	_, err = e.fcmClient.SendToDevices(ctx, tokens, fcm.NotificationData{
		Title: title,
		Body:  body,
		Data: map[string]string{
			"rule_id":    job.Rule.ID,
			"message_id": job.Message.ID,
		},
	})
	return err
}

// webhookPayload is the JSON body POSTed to the rule's webhook URL
type webhookPayload struct {
	RuleID      string    `json:"rule_id"`
	RuleName    string    `json:"rule_name"`
	TriggerType string    `json:"trigger_type"`
	MessageID   string    `json:"message_id"`
	ExternalID  string    `json:"external_id"`
	Sender      string    `json:"sender"`
	Subject     string    `json:"subject"`
	Snippet     string    `json:"snippet"`
	ReceivedAt  time.Time `json:"received_at"`
}

// WebhookExecutor POSTs the matched message as JSON to the rule's target URL
type WebhookExecutor struct {
	client *http.Client
}

func NewWebhookExecutor(client *http.Client) *WebhookExecutor {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &WebhookExecutor{client: client}
}

func (e *WebhookExecutor) Execute(ctx context.Context, job Job) error {
	url := strings.TrimSpace(job.Rule.ActionTarget)
	if url == "" {
		return fmt.Errorf("webhook_call rule %s has no target URL", job.Rule.ID)
	}

	payload := webhookPayload{
		RuleID:      job.Rule.ID,
		RuleName:    job.Rule.Name,
		TriggerType: string(job.Rule.TriggerType),
		MessageID:   job.Message.ID,
		ExternalID:  job.Message.ExternalID,
		Sender:      job.Message.Sender,
		Subject:     job.Message.Subject,
		Snippet:     job.Message.Snippet,
		ReceivedAt:  job.Message.ReceivedAt,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// CustomScriptExecutor runs the rule's target script with the matched
// message's JSON on stdin. The script's exit status decides success.
type CustomScriptExecutor struct{}

func NewCustomScriptExecutor() *CustomScriptExecutor {
	return &CustomScriptExecutor{}
}

func (e *CustomScriptExecutor) Execute(ctx context.Context, job Job) error {
	script := strings.TrimSpace(job.Rule.ActionTarget)
	if script == "" {
		return fmt.Errorf("custom_script rule %s has no script path", job.Rule.ID)
	}

	input, err := json.Marshal(job.Message)
	if err != nil {
		return err
	}

	cmd := exec.CommandContext(ctx, script)
	cmd.Stdin = bytes.NewReader(input)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("script %s failed: %w (output: %s)", script, err, strings.TrimSpace(string(output)))
	}
	return nil
}

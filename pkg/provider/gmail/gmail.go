package gmail

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	emaildomain "emailtrigger-backend/internal/email/domain"
	"emailtrigger-backend/pkg/provider"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// Adapter talks to the Gmail API. Token refresh is owned by the token
// manager, so the adapter always receives a currently-valid access token and
// uses it as-is.
type Adapter struct{}

func NewAdapter() *Adapter {
	return &Adapter{}
}

func (a *Adapter) service(ctx context.Context, creds provider.Credentials) (*gmail.Service, error) {
	tokenSource := oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: creds.AccessToken,
		TokenType:   "Bearer",
	})

	srv, err := gmail.NewService(ctx, option.WithTokenSource(tokenSource))
	if err != nil {
		return nil, fmt.Errorf("unable to create Gmail service: %w", err)
	}
	return srv, nil
}

// ListNewMessages fetches messages received after since, normalized into the
// unified model, newest first
func (a *Adapter) ListNewMessages(ctx context.Context, creds provider.Credentials, since time.Time, limit int) ([]*emaildomain.Message, error) {
	srv, err := a.service(ctx, creds)
	if err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = 50
	}

	listCall := srv.Users.Messages.List("me").MaxResults(int64(limit)).Context(ctx)
	if !since.IsZero() {
		// Gmail's after: operator accepts epoch seconds
		listCall = listCall.Q(fmt.Sprintf("after:%d", since.Unix()))
	}

	resp, err := listCall.Do()
	if err != nil {
		return nil, mapError(err)
	}

	if len(resp.Messages) == 0 {
		return nil, nil
	}

	// Fetch full messages in parallel, bounded so we don't hammer the API
	type fetchResult struct {
		message *emaildomain.Message
		err     error
	}

	results := make(chan fetchResult, len(resp.Messages))
	semaphore := make(chan struct{}, 10)

	for _, ref := range resp.Messages {
		go func(id string) {
			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			full, err := srv.Users.Messages.Get("me", id).Format("full").Context(ctx).Do()
			if err != nil {
				results <- fetchResult{nil, mapError(err)}
				return
			}
			results <- fetchResult{convertMessage(full), nil}
		}(ref.Id)
	}

	messages := make([]*emaildomain.Message, 0, len(resp.Messages))
	var firstErr error
	for range resp.Messages {
		result := <-results
		if result.err != nil {
			if firstErr == nil {
				firstErr = result.err
			}
			continue
		}
		messages = append(messages, result.message)
	}

	if len(messages) == 0 && firstErr != nil {
		return nil, firstErr
	}

	// Parallel fetching returns messages in arbitrary order
	sort.Slice(messages, func(i, j int) bool {
		return messages[i].ReceivedAt.After(messages[j].ReceivedAt)
	})

	return messages, nil
}

// MarkAsRead removes the UNREAD label. Removing an absent label is a no-op on
// the Gmail side, so this is idempotent.
func (a *Adapter) MarkAsRead(ctx context.Context, creds provider.Credentials, externalID string) error {
	srv, err := a.service(ctx, creds)
	if err != nil {
		return err
	}

	modifyReq := &gmail.ModifyMessageRequest{
		RemoveLabelIds: []string{"UNREAD"},
	}
	if _, err := srv.Users.Messages.Modify("me", externalID, modifyReq).Context(ctx).Do(); err != nil {
		return mapError(err)
	}
	return nil
}

// Forward re-sends the stored message body to another address
func (a *Adapter) Forward(ctx context.Context, creds provider.Credentials, msg *emaildomain.Message, to string) error {
	srv, err := a.service(ctx, creds)
	if err != nil {
		return err
	}

	var raw bytes.Buffer
	raw.WriteString(fmt.Sprintf("To: %s\r\n", to))
	encodedSubject := fmt.Sprintf("=?utf-8?B?%s?=", base64.StdEncoding.EncodeToString([]byte("Fwd: "+msg.Subject)))
	raw.WriteString(fmt.Sprintf("Subject: %s\r\n", encodedSubject))
	raw.WriteString("MIME-Version: 1.0\r\n")
	raw.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n\r\n")
	raw.WriteString(fmt.Sprintf("---------- Forwarded message ----------\r\nFrom: %s\r\nDate: %s\r\n\r\n",
		msg.Sender, msg.ReceivedAt.Format(time.RFC1123Z)))
	raw.WriteString(msg.Body)

	gmsg := &gmail.Message{
		Raw: base64.URLEncoding.EncodeToString(raw.Bytes()),
	}
	if _, err := srv.Users.Messages.Send("me", gmsg).Context(ctx).Do(); err != nil {
		return mapError(err)
	}
	return nil
}

// CheckPermissions probes profile and message read access separately so the
// diagnostics surface can report which scope is missing
func (a *Adapter) CheckPermissions(ctx context.Context, creds provider.Credentials) (*provider.Permissions, error) {
	srv, err := a.service(ctx, creds)
	if err != nil {
		return nil, err
	}

	perms := &provider.Permissions{}

	if _, err := srv.Users.GetProfile("me").Context(ctx).Do(); err == nil {
		perms.ProfileOK = true
	}
	if _, err := srv.Users.Messages.List("me").MaxResults(1).Context(ctx).Do(); err == nil {
		perms.MessagesOK = true
	}

	return perms, nil
}

// mapError translates googleapi errors into the shared provider taxonomy
func mapError(err error) error {
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return err
	}

	switch apiErr.Code {
	case 401:
		return fmt.Errorf("%w: %v", provider.ErrAuthRejected, err)
	case 429:
		return fmt.Errorf("%w: %v", provider.ErrRateLimited, err)
	case 403:
		// Gmail reports quota problems as 403 with a rate-limit reason
		for _, item := range apiErr.Errors {
			if strings.Contains(item.Reason, "ateLimit") {
				return fmt.Errorf("%w: %v", provider.ErrRateLimited, err)
			}
		}
		return fmt.Errorf("%w: %v", provider.ErrAuthRejected, err)
	}
	return err
}

// convertMessage normalizes a full Gmail message into the unified model.
// A response without a payload still yields a usable row with zero-valued
// headers, body, and attachments.
func convertMessage(msg *gmail.Message) *emaildomain.Message {
	if msg.Payload == nil {
		return &emaildomain.Message{
			ID:           uuid.New().String(),
			ExternalID:   msg.Id,
			ProviderKind: "gmail",
			Recipients:   emaildomain.Recipients{},
			Snippet:      msg.Snippet,
			ReceivedAt:   time.Unix(msg.InternalDate/1000, 0),
			IsRead:       !hasLabel(msg.LabelIds, "UNREAD"),
		}
	}

	headers := msg.Payload.Headers

	recipients := emaildomain.Recipients{}
	if to := getHeader(headers, "To"); to != "" {
		for _, addr := range strings.Split(to, ",") {
			recipients = append(recipients, strings.TrimSpace(addr))
		}
	}

	body, _ := extractBody(msg.Payload)

	return &emaildomain.Message{
		ID:           uuid.New().String(),
		ExternalID:   msg.Id,
		ProviderKind: "gmail",
		Sender:       getHeader(headers, "From"),
		Recipients:   recipients,
		Subject:      getHeader(headers, "Subject"),
		Body:         body,
		Snippet:      msg.Snippet,
		ReceivedAt:   time.Unix(msg.InternalDate/1000, 0),
		IsRead:       !hasLabel(msg.LabelIds, "UNREAD"),
		Attachments:  extractAttachments(msg.Payload),
	}
}

func getHeader(headers []*gmail.MessagePartHeader, name string) string {
	for _, header := range headers {
		if header.Name == name {
			return header.Value
		}
	}
	return ""
}

func extractBody(payload *gmail.MessagePart) (string, bool) {
	if payload.Body != nil && payload.Body.Data != "" {
		data, err := base64.URLEncoding.DecodeString(payload.Body.Data)
		if err == nil {
			return string(data), payload.MimeType == "text/html"
		}
	}

	var htmlBody string
	var plainBody string

	var findBody func(parts []*gmail.MessagePart)
	findBody = func(parts []*gmail.MessagePart) {
		for _, part := range parts {
			if part.Body != nil && part.Body.Data != "" {
				data, err := base64.URLEncoding.DecodeString(part.Body.Data)
				if err == nil {
					switch part.MimeType {
					case "text/html":
						htmlBody = string(data)
					case "text/plain":
						plainBody = string(data)
					}
				}
			}
			if len(part.Parts) > 0 {
				findBody(part.Parts)
			}
		}
	}
	findBody(payload.Parts)

	// Prefer plain text for rule matching; fall back to HTML
	if plainBody != "" {
		return plainBody, false
	}
	return htmlBody, htmlBody != ""
}

func extractAttachments(payload *gmail.MessagePart) []emaildomain.Attachment {
	var attachments []emaildomain.Attachment

	var findAttachments func(parts []*gmail.MessagePart)
	findAttachments = func(parts []*gmail.MessagePart) {
		for _, part := range parts {
			if part.Filename != "" && part.Body != nil && part.Body.AttachmentId != "" {
				attachments = append(attachments, emaildomain.Attachment{
					ID:         uuid.New().String(),
					ExternalID: part.Body.AttachmentId,
					Filename:   part.Filename,
					MimeType:   part.MimeType,
					Size:       part.Body.Size,
				})
			}
			if len(part.Parts) > 0 {
				findAttachments(part.Parts)
			}
		}
	}
	findAttachments(payload.Parts)

	return attachments
}

func hasLabel(labels []string, labelID string) bool {
	for _, label := range labels {
		if label == labelID {
			return true
		}
	}
	return false
}

package outlook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	emaildomain "emailtrigger-backend/internal/email/domain"
	"emailtrigger-backend/pkg/provider"

	"github.com/google/uuid"
)

const defaultBaseURL = "https://graph.microsoft.com/v1.0"

// Adapter talks to the Microsoft Graph mail API over plain REST
type Adapter struct {
	baseURL string
	client  *http.Client
}

func NewAdapter() *Adapter {
	return &Adapter{
		baseURL: defaultBaseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// NewAdapterWithBaseURL is used by tests to point the adapter at a fake server
func NewAdapterWithBaseURL(baseURL string) *Adapter {
	return &Adapter{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// graphMessage mirrors the subset of the Graph message resource we consume
type graphMessage struct {
	ID      string `json:"id"`
	Subject string `json:"subject"`
	Sender  struct {
		EmailAddress struct {
			Name    string `json:"name"`
			Address string `json:"address"`
		} `json:"emailAddress"`
	} `json:"sender"`
	ToRecipients []struct {
		EmailAddress struct {
			Address string `json:"address"`
		} `json:"emailAddress"`
	} `json:"toRecipients"`
	Body struct {
		ContentType string `json:"contentType"`
		Content     string `json:"content"`
	} `json:"body"`
	ReceivedDateTime string `json:"receivedDateTime"`
	IsRead           bool   `json:"isRead"`
	HasAttachments   bool   `json:"hasAttachments"`
}

type graphAttachment struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
}

func (a *Adapter) do(ctx context.Context, creds provider.Credentials, method, path string, body io.Reader, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+creds.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("graph request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: graph returned %d", provider.ErrAuthRejected, resp.StatusCode)
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: graph returned 429", provider.ErrRateLimited)
	case resp.StatusCode >= 400:
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("graph returned %d: %s", resp.StatusCode, string(data))
	}

	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

// ListNewMessages fetches messages received after since, newest first
func (a *Adapter) ListNewMessages(ctx context.Context, creds provider.Credentials, since time.Time, limit int) ([]*emaildomain.Message, error) {
	if limit <= 0 {
		limit = 50
	}

	params := url.Values{}
	params.Set("$top", fmt.Sprintf("%d", limit))
	params.Set("$orderby", "receivedDateTime desc")
	if !since.IsZero() {
		params.Set("$filter", fmt.Sprintf("receivedDateTime ge %s", since.UTC().Format("2006-01-02T15:04:05Z")))
	}

	var listResp struct {
		Value []graphMessage `json:"value"`
	}
	if err := a.do(ctx, creds, http.MethodGet, "/me/messages?"+params.Encode(), nil, &listResp); err != nil {
		return nil, err
	}

	messages := make([]*emaildomain.Message, 0, len(listResp.Value))
	for _, gm := range listResp.Value {
		msg := a.convertMessage(ctx, creds, &gm)
		messages = append(messages, msg)
	}
	return messages, nil
}

func (a *Adapter) convertMessage(ctx context.Context, creds provider.Credentials, gm *graphMessage) *emaildomain.Message {
	sender := gm.Sender.EmailAddress.Address
	if gm.Sender.EmailAddress.Name != "" {
		sender = fmt.Sprintf("%s <%s>", gm.Sender.EmailAddress.Name, gm.Sender.EmailAddress.Address)
	}

	recipients := emaildomain.Recipients{}
	for _, r := range gm.ToRecipients {
		recipients = append(recipients, r.EmailAddress.Address)
	}

	receivedAt := time.Time{}
	if gm.ReceivedDateTime != "" {
		if parsed, err := time.Parse(time.RFC3339, gm.ReceivedDateTime); err == nil {
			receivedAt = parsed
		}
	}

	var attachments []emaildomain.Attachment
	if gm.HasAttachments {
		var attResp struct {
			Value []graphAttachment `json:"value"`
		}
		// Attachment metadata needs a second call; a failure here degrades to
		// an empty list rather than dropping the message
		if err := a.do(ctx, creds, http.MethodGet, "/me/messages/"+gm.ID+"/attachments", nil, &attResp); err == nil {
			for _, ga := range attResp.Value {
				attachments = append(attachments, emaildomain.Attachment{
					ID:         uuid.New().String(),
					ExternalID: ga.ID,
					Filename:   ga.Name,
					MimeType:   ga.ContentType,
					Size:       ga.Size,
				})
			}
		}
	}

	return &emaildomain.Message{
		ID:           uuid.New().String(),
		ExternalID:   gm.ID,
		ProviderKind: "outlook",
		Sender:       sender,
		Recipients:   recipients,
		Subject:      gm.Subject,
		Body:         gm.Body.Content,
		ReceivedAt:   receivedAt,
		IsRead:       gm.IsRead,
		Attachments:  attachments,
	}
}

// MarkAsRead sets isRead on the remote message. Idempotent.
func (a *Adapter) MarkAsRead(ctx context.Context, creds provider.Credentials, externalID string) error {
	body := bytes.NewBufferString(`{"isRead": true}`)
	return a.do(ctx, creds, http.MethodPatch, "/me/messages/"+externalID, body, nil)
}

// Forward uses Graph's native forward endpoint
func (a *Adapter) Forward(ctx context.Context, creds provider.Credentials, msg *emaildomain.Message, to string) error {
	payload := map[string]interface{}{
		"comment": "",
		"toRecipients": []map[string]interface{}{
			{"emailAddress": map[string]string{"address": to}},
		},
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return a.do(ctx, creds, http.MethodPost, "/me/messages/"+msg.ExternalID+"/forward", bytes.NewReader(data), nil)
}

// CheckPermissions probes profile and mailbox read access
func (a *Adapter) CheckPermissions(ctx context.Context, creds provider.Credentials) (*provider.Permissions, error) {
	perms := &provider.Permissions{}

	if err := a.do(ctx, creds, http.MethodGet, "/me", nil, &struct{}{}); err == nil {
		perms.ProfileOK = true
	}
	if err := a.do(ctx, creds, http.MethodGet, "/me/messages?%24top=1", nil, &struct{}{}); err == nil {
		perms.MessagesOK = true
	}

	return perms, nil
}

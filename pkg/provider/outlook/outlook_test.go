package outlook

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"emailtrigger-backend/pkg/provider"
)

const listResponse = `{
	"value": [
		{
			"id": "AAMkAGI1",
			"subject": "Quarterly report",
			"sender": {"emailAddress": {"name": "Alice Smith", "address": "alice@corp.example"}},
			"toRecipients": [{"emailAddress": {"address": "me@corp.example"}}],
			"body": {"contentType": "text", "content": "Report attached."},
			"receivedDateTime": "2025-03-10T14:30:00Z",
			"isRead": false,
			"hasAttachments": true
		},
		{
			"id": "AAMkAGI2",
			"subject": "Lunch?",
			"sender": {"emailAddress": {"name": "", "address": "bob@corp.example"}},
			"toRecipients": [],
			"body": {"contentType": "html", "content": "<p>Today?</p>"},
			"receivedDateTime": "2025-03-10T12:00:00Z",
			"isRead": true,
			"hasAttachments": false
		}
	]
}`

const attachmentsResponse = `{
	"value": [
		{"id": "att-1", "name": "report.pdf", "contentType": "application/pdf", "size": 4096}
	]
}`

func TestListNewMessagesNormalizesGraphPayload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer token-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch r.URL.Path {
		case "/me/messages":
			w.Write([]byte(listResponse))
		case "/me/messages/AAMkAGI1/attachments":
			w.Write([]byte(attachmentsResponse))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	adapter := NewAdapterWithBaseURL(server.URL)
	creds := provider.Credentials{AccessToken: "token-1"}

	messages, err := adapter.ListNewMessages(context.Background(), creds, time.Now().Add(-time.Hour), 50)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(messages))
	}

	first := messages[0]
	if first.ExternalID != "AAMkAGI1" {
		t.Errorf("external id: got %q", first.ExternalID)
	}
	if first.Sender != "Alice Smith <alice@corp.example>" {
		t.Errorf("sender: got %q", first.Sender)
	}
	if first.Subject != "Quarterly report" {
		t.Errorf("subject: got %q", first.Subject)
	}
	if first.IsRead {
		t.Error("expected first message unread")
	}
	want := time.Date(2025, 3, 10, 14, 30, 0, 0, time.UTC)
	if !first.ReceivedAt.Equal(want) {
		t.Errorf("received at: got %s, want %s", first.ReceivedAt, want)
	}
	if len(first.Attachments) != 1 || first.Attachments[0].Filename != "report.pdf" {
		t.Errorf("attachments: got %+v", first.Attachments)
	}

	second := messages[1]
	if second.Sender != "bob@corp.example" {
		t.Errorf("nameless sender should be bare address, got %q", second.Sender)
	}
	if len(second.Attachments) != 0 {
		t.Errorf("expected no attachments, got %d", len(second.Attachments))
	}
}

func TestUnauthorizedMapsToErrAuthRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	adapter := NewAdapterWithBaseURL(server.URL)
	_, err := adapter.ListNewMessages(context.Background(), provider.Credentials{AccessToken: "bad"}, time.Time{}, 10)
	if !errors.Is(err, provider.ErrAuthRejected) {
		t.Fatalf("expected ErrAuthRejected, got %v", err)
	}
}

func TestTooManyRequestsMapsToErrRateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	adapter := NewAdapterWithBaseURL(server.URL)
	_, err := adapter.ListNewMessages(context.Background(), provider.Credentials{AccessToken: "t"}, time.Time{}, 10)
	if !errors.Is(err, provider.ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
}

func TestMarkAsReadPatchesMessage(t *testing.T) {
	var gotMethod, gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	adapter := NewAdapterWithBaseURL(server.URL)
	if err := adapter.MarkAsRead(context.Background(), provider.Credentials{AccessToken: "t"}, "AAMkAGI1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotMethod != http.MethodPatch || gotPath != "/me/messages/AAMkAGI1" {
		t.Errorf("got %s %s", gotMethod, gotPath)
	}
}

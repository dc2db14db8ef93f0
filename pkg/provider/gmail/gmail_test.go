package gmail

import (
	"testing"
	"time"

	gmail "google.golang.org/api/gmail/v1"
)

func TestConvertMessageWithoutPayload(t *testing.T) {
	msg := convertMessage(&gmail.Message{
		Id:           "m-1",
		Snippet:      "short preview",
		InternalDate: 1741617000000,
		LabelIds:     []string{"INBOX", "UNREAD"},
	})

	if msg.ExternalID != "m-1" {
		t.Errorf("external id: got %q", msg.ExternalID)
	}
	if msg.Subject != "" || msg.Body != "" || msg.Sender != "" {
		t.Errorf("payload-less message should have empty headers, got %+v", msg)
	}
	if len(msg.Attachments) != 0 {
		t.Errorf("expected no attachments, got %d", len(msg.Attachments))
	}
	if msg.Snippet != "short preview" {
		t.Errorf("snippet: got %q", msg.Snippet)
	}
	if msg.IsRead {
		t.Error("UNREAD label should map to unread")
	}
	want := time.Unix(1741617000, 0)
	if !msg.ReceivedAt.Equal(want) {
		t.Errorf("received at: got %s, want %s", msg.ReceivedAt, want)
	}
}

func TestConvertMessageExtractsHeadersAndBody(t *testing.T) {
	msg := convertMessage(&gmail.Message{
		Id:           "m-2",
		InternalDate: 1741617000000,
		Payload: &gmail.MessagePart{
			MimeType: "text/plain",
			Headers: []*gmail.MessagePartHeader{
				{Name: "From", Value: "alice@corp.example"},
				{Name: "To", Value: "me@corp.example, team@corp.example"},
				{Name: "Subject", Value: "Quarterly report"},
			},
			Body: &gmail.MessagePartBody{Data: "UmVwb3J0IGF0dGFjaGVkLg=="},
		},
	})

	if msg.Sender != "alice@corp.example" {
		t.Errorf("sender: got %q", msg.Sender)
	}
	if msg.Subject != "Quarterly report" {
		t.Errorf("subject: got %q", msg.Subject)
	}
	if len(msg.Recipients) != 2 || msg.Recipients[1] != "team@corp.example" {
		t.Errorf("recipients: got %+v", msg.Recipients)
	}
	if msg.Body != "Report attached." {
		t.Errorf("body: got %q", msg.Body)
	}
}

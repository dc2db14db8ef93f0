package engine

import (
	"testing"
	"time"

	emaildomain "emailtrigger-backend/internal/email/domain"
	"emailtrigger-backend/internal/trigger/domain"
)

func message(sender, subject, body string) *emaildomain.Message {
	return &emaildomain.Message{
		ID:         "msg-1",
		ExternalID: "ext-1",
		Sender:     sender,
		Subject:    subject,
		Body:       body,
		ReceivedAt: time.Date(2025, 3, 10, 14, 30, 0, 0, time.UTC),
	}
}

func rule(t domain.TriggerType, condition string) *domain.TriggerRule {
	return &domain.TriggerRule{
		ID:          "rule-1",
		TriggerType: t,
		Condition:   condition,
		Action:      domain.ActionLogMessage,
		IsActive:    true,
	}
}

func TestSubjectContainsIsCaseInsensitive(t *testing.T) {
	e := NewEngine()

	msg := message("billing@vendor.com", "Your INVOICE for March", "")
	ok, err := e.Matches(msg, rule(domain.TriggerSubjectContains, "invoice"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Error("expected subject_contains to match regardless of case")
	}

	msg = message("billing@vendor.com", "Your Receipt", "")
	ok, err = e.Matches(msg, rule(domain.TriggerSubjectContains, "invoice"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("expected subject_contains not to match an absent substring")
	}
}

func TestSenderExactTrimsAndIgnoresCase(t *testing.T) {
	e := NewEngine()

	msg := message("  Boss@Co.com ", "status", "")
	ok, err := e.Matches(msg, rule(domain.TriggerSenderExact, "boss@co.com"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Error("expected sender_exact to match after trimming and case folding")
	}

	msg = message("boss@co.com.evil.example", "status", "")
	ok, _ = e.Matches(msg, rule(domain.TriggerSenderExact, "boss@co.com"))
	if ok {
		t.Error("expected sender_exact to reject a superstring address")
	}
}

func TestBodyContains(t *testing.T) {
	e := NewEngine()

	msg := message("a@b.com", "hello", "please find the ATTACHED report")
	ok, err := e.Matches(msg, rule(domain.TriggerBodyContains, "attached report"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Error("expected body_contains to match")
	}
}

func TestSubjectRegex(t *testing.T) {
	e := NewEngine()

	msg := message("a@b.com", "ALERT: disk usage at 93%", "")
	ok, err := e.Matches(msg, rule(domain.TriggerSubjectRegex, `alert:.*\d+%`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Error("expected subject_regex to match case-insensitively")
	}
}

func TestInvalidRegexIsSkippedNotFatal(t *testing.T) {
	e := NewEngine()

	msg := message("a@b.com", "anything", "")
	bad := rule(domain.TriggerSubjectRegex, "([unclosed")
	good := rule(domain.TriggerSubjectContains, "anything")
	good.ID = "rule-2"

	matched := e.Evaluate(msg, []*domain.TriggerRule{bad, good})
	if len(matched) != 1 || matched[0].ID != "rule-2" {
		t.Fatalf("expected only the valid rule to match, got %d matches", len(matched))
	}
}

func TestAttachmentExists(t *testing.T) {
	e := NewEngine()

	msg := message("a@b.com", "report", "")
	ok, _ := e.Matches(msg, rule(domain.TriggerAttachmentExists, ""))
	if ok {
		t.Error("expected no match without attachments")
	}

	msg.Attachments = []emaildomain.Attachment{{ID: "att-1", Filename: "report.pdf"}}
	ok, _ = e.Matches(msg, rule(domain.TriggerAttachmentExists, ""))
	if !ok {
		t.Error("expected match with an attachment present")
	}
}

func TestTimeRangeWithinSameDay(t *testing.T) {
	e := NewEngineInLocation(time.UTC)

	msg := message("a@b.com", "hi", "")
	msg.ReceivedAt = time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)

	ok, err := e.Matches(msg, rule(domain.TriggerTimeRange, "09:00-17:00"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Error("expected 10:00 to fall inside 09:00-17:00")
	}
}

func TestTimeRangeWrapsPastMidnight(t *testing.T) {
	e := NewEngineInLocation(time.UTC)
	r := rule(domain.TriggerTimeRange, "22:00-06:00")

	cases := []struct {
		hour, minute int
		want         bool
	}{
		{23, 30, true},
		{5, 0, true},
		{22, 0, true},
		{6, 0, true},
		{12, 0, false},
		{21, 59, false},
	}
	for _, tc := range cases {
		msg := message("a@b.com", "hi", "")
		msg.ReceivedAt = time.Date(2025, 3, 10, tc.hour, tc.minute, 0, 0, time.UTC)
		ok, err := e.Matches(msg, r)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if ok != tc.want {
			t.Errorf("22:00-06:00 at %02d:%02d: got %v, want %v", tc.hour, tc.minute, ok, tc.want)
		}
	}
}

func TestTimeRangeIgnoresTimestampZone(t *testing.T) {
	e := NewEngineInLocation(time.UTC)
	r := rule(domain.TriggerTimeRange, "22:00-06:00")

	// The same instant, once in UTC and once rendered in other zones the
	// providers use, must match identically
	instant := time.Date(2025, 3, 10, 23, 30, 0, 0, time.UTC)
	representations := []time.Time{
		instant,
		instant.In(time.FixedZone("UTC+8", 8*3600)),
		instant.In(time.FixedZone("UTC-5", -5*3600)),
	}
	for _, received := range representations {
		msg := message("a@b.com", "hi", "")
		msg.ReceivedAt = received
		ok, err := e.Matches(msg, r)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !ok {
			t.Errorf("23:30 UTC rendered in %s should match 22:00-06:00", received.Location())
		}
	}
}

func TestInactiveRulesAreSkipped(t *testing.T) {
	e := NewEngine()

	msg := message("a@b.com", "invoice", "")
	r := rule(domain.TriggerSubjectContains, "invoice")
	r.IsActive = false

	matched := e.Evaluate(msg, []*domain.TriggerRule{r})
	if len(matched) != 0 {
		t.Error("expected inactive rule to be skipped")
	}
}

func TestValidateCondition(t *testing.T) {
	cases := []struct {
		triggerType domain.TriggerType
		condition   string
		wantErr     bool
	}{
		{domain.TriggerSubjectContains, "invoice", false},
		{domain.TriggerSubjectContains, "   ", true},
		{domain.TriggerSubjectRegex, `^\[ticket-\d+\]`, false},
		{domain.TriggerSubjectRegex, "([unclosed", true},
		{domain.TriggerAttachmentExists, "", false},
		{domain.TriggerTimeRange, "22:00-06:00", false},
		{domain.TriggerTimeRange, "9am-5pm", true},
		{domain.TriggerTimeRange, "22:00", true},
		{domain.TriggerType("bogus"), "x", true},
	}
	for _, tc := range cases {
		err := ValidateCondition(tc.triggerType, tc.condition)
		if (err != nil) != tc.wantErr {
			t.Errorf("ValidateCondition(%s, %q): got err=%v, want error=%v", tc.triggerType, tc.condition, err, tc.wantErr)
		}
	}
}

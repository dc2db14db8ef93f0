package imapmail

import (
	"context"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"
	"time"

	emaildomain "emailtrigger-backend/internal/email/domain"
	"emailtrigger-backend/pkg/provider"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-message/mail"
	"github.com/google/uuid"
)

// Adapter connects to plain IMAP mailboxes. These accounts authenticate with
// a stored password, so the token manager's refresh path is a no-op for them.
type Adapter struct{}

func NewAdapter() *Adapter {
	return &Adapter{}
}

func (a *Adapter) connect(creds provider.Credentials) (*client.Client, error) {
	host := creds.IMAPHost
	if !strings.Contains(host, ":") {
		host += ":993"
	}

	c, err := client.DialTLS(host, nil)
	if err != nil {
		return nil, fmt.Errorf("imap dial %s: %w", host, err)
	}

	if err := c.Login(creds.Username, creds.Password); err != nil {
		c.Logout()
		return nil, fmt.Errorf("%w: imap login failed: %v", provider.ErrAuthRejected, err)
	}

	return c, nil
}

// ListNewMessages fetches messages received after since from INBOX
func (a *Adapter) ListNewMessages(ctx context.Context, creds provider.Credentials, since time.Time, limit int) ([]*emaildomain.Message, error) {
	c, err := a.connect(creds)
	if err != nil {
		return nil, err
	}
	defer c.Logout()

	if _, err := c.Select("INBOX", true); err != nil {
		return nil, fmt.Errorf("imap select INBOX: %w", err)
	}

	criteria := imap.NewSearchCriteria()
	if !since.IsZero() {
		// IMAP SINCE has day granularity; finer filtering happens after fetch
		criteria.Since = since.Truncate(24 * time.Hour)
	}

	uids, err := c.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("imap search: %w", err)
	}
	if len(uids) == 0 {
		return nil, nil
	}

	if limit > 0 && len(uids) > limit {
		// Search results are ordered oldest first; keep the newest
		uids = uids[len(uids)-limit:]
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uids...)

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{
		imap.FetchEnvelope,
		imap.FetchFlags,
		imap.FetchUid,
		imap.FetchInternalDate,
		section.FetchItem(),
	}

	fetched := make(chan *imap.Message, len(uids))
	done := make(chan error, 1)
	go func() {
		done <- c.UidFetch(seqSet, items, fetched)
	}()

	var messages []*emaildomain.Message
	for msg := range fetched {
		converted, err := convertMessage(msg, section)
		if err != nil {
			log.Printf("[IMAP] Skipping message %d: %v", msg.Uid, err)
			continue
		}
		if !since.IsZero() && !converted.ReceivedAt.After(since) {
			continue
		}
		messages = append(messages, converted)
	}

	if err := <-done; err != nil {
		return messages, fmt.Errorf("imap fetch: %w", err)
	}

	// Newest first, matching the other adapters
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, nil
}

// MarkAsRead sets the \Seen flag on the message. Idempotent.
func (a *Adapter) MarkAsRead(ctx context.Context, creds provider.Credentials, externalID string) error {
	uid, err := strconv.ParseUint(externalID, 10, 32)
	if err != nil {
		return fmt.Errorf("invalid imap uid %q: %w", externalID, err)
	}

	c, err := a.connect(creds)
	if err != nil {
		return err
	}
	defer c.Logout()

	if _, err := c.Select("INBOX", false); err != nil {
		return fmt.Errorf("imap select INBOX: %w", err)
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uint32(uid))

	item := imap.FormatFlagsOp(imap.AddFlags, true)
	return c.UidStore(seqSet, item, []interface{}{imap.SeenFlag}, nil)
}

// Forward is not available over a plain IMAP connection
func (a *Adapter) Forward(ctx context.Context, creds provider.Credentials, msg *emaildomain.Message, to string) error {
	return fmt.Errorf("%w: imap accounts cannot forward", provider.ErrUnsupported)
}

// CheckPermissions probes login and mailbox access
func (a *Adapter) CheckPermissions(ctx context.Context, creds provider.Credentials) (*provider.Permissions, error) {
	perms := &provider.Permissions{}

	c, err := a.connect(creds)
	if err != nil {
		return perms, nil
	}
	defer c.Logout()
	perms.ProfileOK = true

	if _, err := c.Select("INBOX", true); err == nil {
		perms.MessagesOK = true
	}

	return perms, nil
}

func convertMessage(msg *imap.Message, section *imap.BodySectionName) (*emaildomain.Message, error) {
	if msg.Envelope == nil {
		return nil, fmt.Errorf("message has no envelope")
	}

	sender := ""
	if len(msg.Envelope.From) > 0 {
		sender = formatAddress(msg.Envelope.From[0])
	}

	recipients := emaildomain.Recipients{}
	for _, addr := range msg.Envelope.To {
		recipients = append(recipients, fmt.Sprintf("%s@%s", addr.MailboxName, addr.HostName))
	}

	receivedAt := msg.InternalDate
	if receivedAt.IsZero() {
		receivedAt = msg.Envelope.Date
	}

	body, attachments := parseBody(msg.GetBody(section))

	return &emaildomain.Message{
		ID:           uuid.New().String(),
		ExternalID:   strconv.FormatUint(uint64(msg.Uid), 10),
		ProviderKind: "imap",
		Sender:       sender,
		Recipients:   recipients,
		Subject:      msg.Envelope.Subject,
		Body:         body,
		ReceivedAt:   receivedAt,
		IsRead:       hasFlag(msg.Flags, imap.SeenFlag),
		Attachments:  attachments,
	}, nil
}

// formatAddress renders an envelope address as "Name <box@host>" or "box@host"
func formatAddress(addr *imap.Address) string {
	email := fmt.Sprintf("%s@%s", addr.MailboxName, addr.HostName)
	if addr.PersonalName != "" {
		return fmt.Sprintf("%s <%s>", addr.PersonalName, email)
	}
	return email
}

// parseBody walks the MIME structure collecting the text body and attachment
// metadata. Parse failures degrade to an empty body, never an error.
func parseBody(r io.Reader) (string, []emaildomain.Attachment) {
	if r == nil {
		return "", nil
	}

	mr, err := mail.CreateReader(r)
	if err != nil {
		return "", nil
	}

	var plainBody, htmlBody string
	var attachments []emaildomain.Attachment

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			break
		}

		switch header := part.Header.(type) {
		case *mail.InlineHeader:
			contentType, _, _ := header.ContentType()
			data, readErr := io.ReadAll(part.Body)
			if readErr != nil {
				continue
			}
			switch contentType {
			case "text/plain":
				plainBody = string(data)
			case "text/html":
				htmlBody = string(data)
			}
		case *mail.AttachmentHeader:
			filename, _ := header.Filename()
			contentType, _, _ := header.ContentType()
			data, readErr := io.ReadAll(part.Body)
			size := int64(0)
			if readErr == nil {
				size = int64(len(data))
			}
			attachments = append(attachments, emaildomain.Attachment{
				ID:         uuid.New().String(),
				ExternalID: filename,
				Filename:   filename,
				MimeType:   contentType,
				Size:       size,
			})
		}
	}

	if plainBody != "" {
		return plainBody, attachments
	}
	return htmlBody, attachments
}

func hasFlag(flags []string, flag string) bool {
	for _, f := range flags {
		if f == flag {
			return true
		}
	}
	return false
}

package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	accountdomain "emailtrigger-backend/internal/account/domain"
	emaildomain "emailtrigger-backend/internal/email/domain"
)

// ErrAuthRejected means the provider refused the supplied credentials. The
// caller routes this through the token manager's reauth handling.
var ErrAuthRejected = errors.New("provider rejected credentials")

// ErrRateLimited means the provider throttled us; the account's cycle is
// retried on the next schedule, not immediately.
var ErrRateLimited = errors.New("provider rate limited")

// ErrUnsupported is returned for operations a provider cannot perform
// (e.g. forwarding through a read-only IMAP connection).
var ErrUnsupported = errors.New("operation not supported by provider")

// Credentials carries whatever the adapter needs to talk to the provider.
// OAuth providers use AccessToken; IMAP accounts use host/username/password.
type Credentials struct {
	AccessToken string
	IMAPHost    string
	Username    string
	Password    string
}

// Permissions is the result of a diagnostic probe against the provider
type Permissions struct {
	ProfileOK  bool `json:"profile_ok"`
	MessagesOK bool `json:"messages_ok"`
}

// Adapter translates provider-native message APIs into the unified message
// model. Implementations must not mutate remote state except through
// MarkAsRead and Forward.
type Adapter interface {
	// ListNewMessages fetches up to limit messages received after since,
	// newest first, normalized into the unified shape. AccountID and UserID
	// on the returned messages are filled in by the caller.
	ListNewMessages(ctx context.Context, creds Credentials, since time.Time, limit int) ([]*emaildomain.Message, error)

	// MarkAsRead sets the read flag on the remote message. Idempotent.
	MarkAsRead(ctx context.Context, creds Credentials, externalID string) error

	// Forward sends the message on to another address through the provider
	Forward(ctx context.Context, creds Credentials, msg *emaildomain.Message, to string) error

	// CheckPermissions probes whether the credentials can read the profile
	// and list messages
	CheckPermissions(ctx context.Context, creds Credentials) (*Permissions, error)
}

// Factory resolves the adapter for a provider kind
type Factory struct {
	adapters map[accountdomain.ProviderKind]Adapter
}

func NewFactory() *Factory {
	return &Factory{adapters: make(map[accountdomain.ProviderKind]Adapter)}
}

// Register adds an adapter for a provider kind
func (f *Factory) Register(kind accountdomain.ProviderKind, adapter Adapter) {
	f.adapters[kind] = adapter
}

// ForKind returns the adapter registered for kind
func (f *Factory) ForKind(kind accountdomain.ProviderKind) (Adapter, error) {
	adapter, ok := f.adapters[kind]
	if !ok {
		return nil, fmt.Errorf("unsupported provider kind: %s", kind)
	}
	return adapter, nil
}

// Kinds lists the registered provider kinds
func (f *Factory) Kinds() []accountdomain.ProviderKind {
	kinds := make([]accountdomain.ProviderKind, 0, len(f.adapters))
	for kind := range f.adapters {
		kinds = append(kinds, kind)
	}
	return kinds
}

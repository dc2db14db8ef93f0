package domain

import (
	"errors"
	"time"
)

// ProviderKind identifies which mail provider an account belongs to
type ProviderKind string

const (
	ProviderGmail   ProviderKind = "gmail"
	ProviderOutlook ProviderKind = "outlook"
	ProviderIMAP    ProviderKind = "imap"
)

// AccountStatus represents the lifecycle state of a connected account
type AccountStatus string

const (
	// StatusActive: the account is polled on schedule
	StatusActive AccountStatus = "active"
	// StatusNeedsReauth: the refresh token was rejected; polling stops until
	// the user reconnects the account
	StatusNeedsReauth AccountStatus = "needs_reauth"
	// StatusRevoked: the user disconnected the account; polling stops
	StatusRevoked AccountStatus = "revoked"
)

// ConnectedAccount holds the OAuth credential state for one mailbox connection.
// Tokens are mutated only through the token manager's refresh path or an
// explicit revoke; the access token is never handed out past its expiry.
type ConnectedAccount struct {
	ID           string        `json:"id" gorm:"primaryKey"`
	UserID       string        `json:"user_id" gorm:"index;not null"`
	ProviderKind ProviderKind  `json:"provider_kind" gorm:"not null"`
	EmailAddress string        `json:"email_address" gorm:"not null"`
	AccessToken  string        `json:"-" gorm:"type:text;not null"`
	RefreshToken string        `json:"-" gorm:"type:text"`
	TokenExpiry  *time.Time    `json:"token_expiry,omitempty"`
	Status       AccountStatus `json:"status" gorm:"default:active;index"`
	// IMAPHost is set only for provider_kind=imap; the access token then holds
	// the mailbox password and never expires.
	IMAPHost   string     `json:"imap_host,omitempty"`
	LastSyncAt *time.Time `json:"last_sync_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// ErrReauthRequired is returned when the provider rejects the refresh token.
// The account has already been moved to needs_reauth when this is returned;
// callers stop polling the account rather than retrying.
var ErrReauthRequired = errors.New("account requires re-authentication")

// ErrAccountNotFound is returned when an account id resolves to nothing
var ErrAccountNotFound = errors.New("connected account not found")

// Pollable reports whether the scheduler should run cycles for this account
func (a *ConnectedAccount) Pollable() bool {
	return a.Status == StatusActive
}

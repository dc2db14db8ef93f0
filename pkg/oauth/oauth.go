package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	accountdomain "emailtrigger-backend/internal/account/domain"
	"emailtrigger-backend/pkg/config"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/oauth2/microsoft"
)

// ErrInvalidGrant means the provider permanently rejected the refresh token
// (revoked or expired). The token manager maps this to needs_reauth.
var ErrInvalidGrant = errors.New("refresh token rejected by provider")

var gmailScopes = []string{
	"https://www.googleapis.com/auth/gmail.readonly",
	"https://www.googleapis.com/auth/gmail.modify",
	"https://www.googleapis.com/auth/gmail.send",
	"https://www.googleapis.com/auth/userinfo.email",
}

var outlookScopes = []string{
	"https://graph.microsoft.com/Mail.Read",
	"https://graph.microsoft.com/Mail.ReadWrite",
	"https://graph.microsoft.com/Mail.Send",
	"https://graph.microsoft.com/User.Read",
	"offline_access",
}

// Manager owns the oauth2 configuration for every OAuth-backed provider
type Manager struct {
	configs map[accountdomain.ProviderKind]*oauth2.Config
}

func NewManager(cfg *config.Config) *Manager {
	return &Manager{
		configs: map[accountdomain.ProviderKind]*oauth2.Config{
			accountdomain.ProviderGmail: {
				ClientID:     cfg.GoogleClientID,
				ClientSecret: cfg.GoogleClientSecret,
				RedirectURL:  cfg.GoogleRedirectURI,
				Scopes:       gmailScopes,
				Endpoint:     google.Endpoint,
			},
			accountdomain.ProviderOutlook: {
				ClientID:     cfg.OutlookClientID,
				ClientSecret: cfg.OutlookClientSecret,
				RedirectURL:  cfg.OutlookRedirectURI,
				Scopes:       outlookScopes,
				Endpoint:     microsoft.AzureADEndpoint(cfg.OutlookTenantID),
			},
		},
	}
}

func (m *Manager) configFor(kind accountdomain.ProviderKind) (*oauth2.Config, error) {
	cfg, ok := m.configs[kind]
	if !ok {
		return nil, fmt.Errorf("no oauth config for provider %s", kind)
	}
	return cfg, nil
}

// AuthURL builds the provider consent URL for the connect flow
func (m *Manager) AuthURL(kind accountdomain.ProviderKind, state string) (string, error) {
	cfg, err := m.configFor(kind)
	if err != nil {
		return "", err
	}
	return cfg.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
	), nil
}

// Exchange trades an authorization code for tokens
func (m *Manager) Exchange(ctx context.Context, kind accountdomain.ProviderKind, code string) (*oauth2.Token, error) {
	cfg, err := m.configFor(kind)
	if err != nil {
		return nil, err
	}
	token, err := cfg.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("code exchange failed: %w", err)
	}
	return token, nil
}

// Refresh obtains a new access token using the stored refresh token. A
// provider-side rejection of the refresh token (HTTP 400/401) surfaces as
// ErrInvalidGrant; anything else is a transient failure.
func (m *Manager) Refresh(ctx context.Context, kind accountdomain.ProviderKind, refreshToken string) (*oauth2.Token, error) {
	cfg, err := m.configFor(kind)
	if err != nil {
		return nil, err
	}

	source := cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	token, err := source.Token()
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) &&
			(retrieveErr.Response.StatusCode == http.StatusBadRequest ||
				retrieveErr.Response.StatusCode == http.StatusUnauthorized) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidGrant, err)
		}
		return nil, fmt.Errorf("token refresh failed: %w", err)
	}
	return token, nil
}

// UserEmail resolves the mailbox address behind a fresh token, used once at
// connect time to label the account
func (m *Manager) UserEmail(ctx context.Context, kind accountdomain.ProviderKind, token *oauth2.Token) (string, error) {
	cfg, err := m.configFor(kind)
	if err != nil {
		return "", err
	}
	client := cfg.Client(ctx, token)

	switch kind {
	case accountdomain.ProviderGmail:
		var info struct {
			Email string `json:"email"`
		}
		if err := getJSON(client, "https://www.googleapis.com/oauth2/v2/userinfo", &info); err != nil {
			return "", err
		}
		return info.Email, nil

	case accountdomain.ProviderOutlook:
		var info struct {
			Mail              string `json:"mail"`
			UserPrincipalName string `json:"userPrincipalName"`
		}
		if err := getJSON(client, "https://graph.microsoft.com/v1.0/me", &info); err != nil {
			return "", err
		}
		if info.Mail != "" {
			return info.Mail, nil
		}
		return info.UserPrincipalName, nil
	}

	return "", fmt.Errorf("no user info endpoint for provider %s", kind)
}

func getJSON(client *http.Client, url string, out interface{}) error {
	resp, err := client.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("user info request returned %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

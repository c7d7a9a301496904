package config

import (
	"fmt"
	"strings"
	"time"
)

// AuthMode represents the authentication mode for the application.
type AuthMode string

const (
	// AuthModeOAuth uses a third-party OAuth2 provider for authentication.
	AuthModeOAuth AuthMode = "oauth"
	// AuthModeMock uses mock/dev authentication (for development only).
	AuthModeMock AuthMode = "mock"
)

// UnmarshalText implements encoding.TextUnmarshaler for AuthMode.
func (a *AuthMode) UnmarshalText(text []byte) error {
	v := strings.ToLower(string(text))
	switch v {
	case "oauth", "mock":
		*a = AuthMode(v)
		return nil
	default:
		return fmt.Errorf("invalid AuthMode: %q (valid options: oauth, mock)", v)
	}
}

// OAuthConfig contains OAuth2 provider configuration.
// Endpoints are either set explicitly (AUTH_URL, TOKEN_URL, USERINFO_URL) or
// discovered from DISCOVERY_URL. The defaults target GitHub.
type OAuthConfig struct {
	ClientID     string   `env:"CLIENT_ID"`
	ClientSecret string   `env:"CLIENT_SECRET"`
	RedirectURL  string   `env:"REDIRECT_URL"  envDefault:"http://localhost:8080/auth/callback"`
	Scopes       []string `env:"SCOPES"        envDefault:"read:user"                                envSeparator:" "`
	AuthURL      string   `env:"AUTH_URL"      envDefault:"https://github.com/login/oauth/authorize"`
	TokenURL     string   `env:"TOKEN_URL"     envDefault:"https://github.com/login/oauth/access_token"`
	UserInfoURL  string   `env:"USERINFO_URL"  envDefault:"https://api.github.com/user"`
	DiscoveryURL string   `env:"DISCOVERY_URL"`
	UserAgent    string   `env:"USER_AGENT"    envDefault:"sessionauth"`

	// IDClaim and NameClaim are JMESPath expressions evaluated against the identity response.
	IDClaim   string `env:"ID_CLAIM"   envDefault:"id"`
	NameClaim string `env:"NAME_CLAIM" envDefault:"login"`

	// AuthInHeader sends the client credentials with HTTP Basic auth instead of the form body.
	AuthInHeader bool `env:"AUTH_IN_HEADER" envDefault:"false"`
}

// Validate reports missing settings required by the oauth mode.
func (o OAuthConfig) Validate() error {
	if o.ClientID == "" || o.ClientSecret == "" {
		return fmt.Errorf("OAUTH_CLIENT_ID and OAUTH_CLIENT_SECRET are required when AUTH_MODE=oauth")
	}
	if o.RedirectURL == "" {
		return fmt.Errorf("OAUTH_REDIRECT_URL is required when AUTH_MODE=oauth")
	}
	return nil
}

// DevAuthConfig controls mock/dev authentication identity.
// Used when AUTH_MODE=mock for development and testing.
type DevAuthConfig struct {
	UserID      string `env:"USER_ID"      envDefault:"dev-user"`
	DisplayName string `env:"DISPLAY_NAME" envDefault:"dev"`
}

// SessionConfig controls session lifetimes and the timeouts of the login steps.
type SessionConfig struct {
	// PendingLoginTTL bounds how long a started login may wait for its callback.
	PendingLoginTTL time.Duration `env:"PENDING_LOGIN_TTL" envDefault:"10m"`

	// SessionTTL is the lifetime of an authenticated session.
	SessionTTL time.Duration `env:"SESSION_TTL" envDefault:"168h"`

	// StoreTimeout bounds each session or user store call.
	StoreTimeout time.Duration `env:"STORE_TIMEOUT" envDefault:"5s"`

	// ProviderTimeout bounds each call to the identity provider.
	ProviderTimeout time.Duration `env:"PROVIDER_TIMEOUT" envDefault:"10s"`
}

// Sanitize applies guardrails to session configuration values.
func (s *SessionConfig) Sanitize() {
	if s.PendingLoginTTL < time.Minute {
		s.PendingLoginTTL = time.Minute
	}
	if s.SessionTTL < s.PendingLoginTTL {
		s.SessionTTL = s.PendingLoginTTL
	}
	if s.StoreTimeout <= 0 {
		s.StoreTimeout = 5 * time.Second
	}
	if s.ProviderTimeout <= 0 {
		s.ProviderTimeout = 10 * time.Second
	}
}

// AuthConfig groups all authentication-related configuration.
type AuthConfig struct {
	// Mode determines which authentication provider to use.
	Mode AuthMode `env:"AUTH_MODE" envDefault:"oauth"`

	// OAuth configuration (used when Mode=oauth).
	OAuth OAuthConfig `envPrefix:"OAUTH_"`

	// DevAuth configuration (used when Mode=mock).
	DevAuth DevAuthConfig `envPrefix:"DEV_AUTH_"`

	// AdminDisplayName is the display name of the single administrator.
	// Leave empty to grant admin access to nobody.
	AdminDisplayName string `env:"ADMIN_DISPLAY_NAME"`

	// Session lifetimes and step timeouts.
	Session SessionConfig `envPrefix:"AUTH_"`
}

// Package devauth provides a config-driven identity provider for local development.
package devauth

import (
	"context"
	"errors"
	"net/url"

	domainauth "github.com/weeklydigest/sessionauth/internal/domain/auth"
	apperrors "github.com/weeklydigest/sessionauth/internal/errors"
	"github.com/weeklydigest/sessionauth/internal/ports"
)

var (
	_ ports.TokenExchanger   = (*Provider)(nil)
	_ ports.IdentityResolver = (*Provider)(nil)
)

// devCode is the only authorization code the dev provider accepts.
const devCode = "dev"

// Config controls the dev auth provider behavior.
type Config struct {
	UserID      string
	DisplayName string
	// CallbackPath defaults to /auth/callback.
	CallbackPath string
}

// Provider short-circuits the OAuth2 flow by redirecting straight back to our own callback.
// The state still travels through the callback, so CSRF verification runs unchanged.
type Provider struct {
	identity     domainauth.RemoteIdentity
	callbackPath string
}

// NewProvider constructs a dev auth provider from Config.
func NewProvider(cfg Config) (*Provider, error) {
	if cfg.UserID == "" {
		return nil, errors.New("dev auth: UserID is required")
	}
	if cfg.DisplayName == "" {
		return nil, errors.New("dev auth: DisplayName is required")
	}
	cb := cfg.CallbackPath
	if cb == "" {
		cb = "/auth/callback"
	}
	return &Provider{
		identity:     domainauth.RemoteIdentity{ID: cfg.UserID, DisplayName: cfg.DisplayName},
		callbackPath: cb,
	}, nil
}

// AuthorizeURL returns a local callback URL carrying the state.
func (p *Provider) AuthorizeURL(state string) string {
	q := url.Values{}
	q.Set("code", devCode)
	q.Set("state", state)
	return p.callbackPath + "?" + q.Encode()
}

// Exchange accepts only the dev code.
func (p *Provider) Exchange(_ context.Context, code string) (string, error) {
	if code != devCode {
		return "", apperrors.ProviderRejected(nil, "dev auth: unknown authorization code")
	}
	return "dev-token-" + p.identity.ID, nil
}

// Resolve returns the configured identity for tokens minted by Exchange.
func (p *Provider) Resolve(_ context.Context, accessToken string) (domainauth.RemoteIdentity, error) {
	if accessToken != "dev-token-"+p.identity.ID {
		return domainauth.RemoteIdentity{}, apperrors.ProviderRejected(nil, "dev auth: unknown access token")
	}
	return p.identity, nil
}

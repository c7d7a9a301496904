// Package oidc provides the OAuth2 adapters used by the login flow: the token exchange
// client and the identity resolver. Endpoints are either configured statically (for plain
// OAuth2 providers such as GitHub) or discovered from an OpenID Connect issuer.
package oidc

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

// DefaultTimeout bounds every provider request when no HTTP client is supplied.
const DefaultTimeout = 10 * time.Second

// Endpoints are the provider URLs the login flow talks to.
type Endpoints struct {
	AuthURL     string
	TokenURL    string
	UserInfoURL string
	// Provider is set by Discover; it is nil for statically configured endpoints.
	Provider *gooidc.Provider
}

// Discover resolves endpoints from an OpenID Connect discovery URL (issuer or
// .well-known/openid-configuration).
func Discover(ctx context.Context, discoveryURL string, httpClient *http.Client) (Endpoints, error) {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, httpClient)

	issuer := strings.TrimSuffix(discoveryURL, "/")
	issuer = strings.TrimSuffix(issuer, "/.well-known/openid-configuration")
	issuer = strings.TrimSuffix(issuer, ".well-known/openid-configuration")
	op, err := gooidc.NewProvider(ctx, issuer)
	if err != nil {
		return Endpoints{}, fmt.Errorf("oidc new provider: %w", err)
	}

	ep := op.Endpoint()
	return Endpoints{
		AuthURL:     ep.AuthURL,
		TokenURL:    ep.TokenURL,
		UserInfoURL: op.UserInfoEndpoint(),
		Provider:    op,
	}, nil
}

func defaultHTTPClient(c *http.Client) *http.Client {
	if c != nil {
		return c
	}
	return &http.Client{Timeout: DefaultTimeout}
}

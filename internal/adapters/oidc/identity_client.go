package oidc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	domainauth "github.com/weeklydigest/sessionauth/internal/domain/auth"
	apperrors "github.com/weeklydigest/sessionauth/internal/errors"
	"github.com/weeklydigest/sessionauth/internal/ports"
	"golang.org/x/oauth2"
)

var _ ports.IdentityResolver = (*IdentityClient)(nil)

// DefaultUserAgent identifies us to providers that require a User-Agent (GitHub does).
const DefaultUserAgent = "sessionauth"

const maxIdentityBody = 1 << 20

// IdentityClientConfig holds configuration for the identity resolver.
type IdentityClientConfig struct {
	UserInfoURL string
	// Provider is the discovered OpenID Connect provider. When it publishes the userinfo
	// endpoint in use, identities are fetched through go-oidc.
	Provider   *gooidc.Provider
	UserAgent  string
	Claims     ClaimMapper
	HTTPClient *http.Client // Optional, defaults to a client with DefaultTimeout
}

// IdentityClient asks the provider's identity endpoint who owns an access token.
type IdentityClient struct {
	url        string
	provider   *gooidc.Provider
	userAgent  string
	claims     ClaimMapper
	httpClient *http.Client
}

// NewIdentityClient validates cfg and returns an IdentityClient.
func NewIdentityClient(cfg IdentityClientConfig) (*IdentityClient, error) {
	url := cfg.UserInfoURL
	var provider *gooidc.Provider
	if p := cfg.Provider; p != nil && p.UserInfoEndpoint() != "" && (url == "" || url == p.UserInfoEndpoint()) {
		provider, url = p, p.UserInfoEndpoint()
	}
	if url == "" {
		return nil, errors.New("identity endpoint URL is required")
	}
	ua := cfg.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}
	claims := cfg.Claims
	if claims.IDExpr == "" || claims.NameExpr == "" {
		var err error
		claims, err = NewClaimMapper(claims.IDExpr, claims.NameExpr)
		if err != nil {
			return nil, err
		}
	}
	return &IdentityClient{
		url:        url,
		provider:   provider,
		userAgent:  ua,
		claims:     claims,
		httpClient: defaultHTTPClient(cfg.HTTPClient),
	}, nil
}

// Resolve fetches the caller's identity. 401/403 responses and responses without an id are
// provider rejections; any other failure is a transport failure.
func (c *IdentityClient) Resolve(ctx context.Context, accessToken string) (domainauth.RemoteIdentity, error) {
	tr := &identityTransport{base: c.httpClient.Transport, userAgent: c.userAgent}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, &http.Client{
		Transport: tr,
		Timeout:   c.httpClient.Timeout,
	})
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken})

	body, err := c.fetch(ctx, src)
	if err != nil {
		if tr.status == http.StatusUnauthorized || tr.status == http.StatusForbidden {
			return domainauth.RemoteIdentity{}, apperrors.ProviderRejected(err, "identity endpoint rejected the access token")
		}
		return domainauth.RemoteIdentity{}, apperrors.TransportFailure(err, "identity endpoint failed")
	}

	// UseNumber keeps numeric ids exact; float64 collapses ids above 2^53.
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return domainauth.RemoteIdentity{}, apperrors.TransportFailure(err, "decode identity response")
	}

	id, name, err := c.claims.Map(doc)
	if err != nil {
		return domainauth.RemoteIdentity{}, apperrors.ProviderRejected(err, "identity response did not match claim mapping")
	}
	if id == "" {
		return domainauth.RemoteIdentity{}, apperrors.ProviderRejected(nil, "identity response carried no id")
	}
	return domainauth.RemoteIdentity{ID: id, DisplayName: name}, nil
}

// fetch returns the raw identity document. Discovered providers go through go-oidc's
// UserInfo; plain OAuth2 endpoints such as GitHub's /user through an oauth2 client.
func (c *IdentityClient) fetch(ctx context.Context, src oauth2.TokenSource) ([]byte, error) {
	if c.provider != nil {
		ui, err := c.provider.UserInfo(ctx, src)
		if err != nil {
			return nil, fmt.Errorf("fetch user info: %w", err)
		}
		var raw json.RawMessage
		if err := ui.Claims(&raw); err != nil {
			return nil, fmt.Errorf("decode user info: %w", err)
		}
		return raw, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("build identity request: %w", err)
	}
	resp, err := oauth2.NewClient(ctx, src).Do(req)
	if err != nil {
		return nil, fmt.Errorf("identity endpoint unreachable: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("identity endpoint returned %s", resp.Status)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxIdentityBody))
	if err != nil {
		return nil, fmt.Errorf("read identity response: %w", err)
	}
	return body, nil
}

// identityTransport sets the headers identity endpoints expect and records the last
// response status so failures can be classified whichever client made the call.
type identityTransport struct {
	base      http.RoundTripper
	userAgent string
	status    int
}

func (t *identityTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	req = req.Clone(req.Context())
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", t.userAgent)
	resp, err := base.RoundTrip(req)
	if resp != nil {
		t.status = resp.StatusCode
	}
	return resp, err
}

package oidc

import (
	"context"
	"errors"
	"net/http"
	"strings"

	apperrors "github.com/weeklydigest/sessionauth/internal/errors"
	"github.com/weeklydigest/sessionauth/internal/ports"
	"golang.org/x/oauth2"
)

var _ ports.TokenExchanger = (*TokenClient)(nil)

// TokenClientConfig holds configuration for the token exchange client.
type TokenClientConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
	Endpoints    Endpoints
	// AuthInHeader sends client credentials with HTTP Basic auth instead of the request body.
	AuthInHeader bool
	HTTPClient   *http.Client // Optional, defaults to a client with DefaultTimeout
}

// TokenClient builds authorization URLs and exchanges authorization codes for access tokens.
type TokenClient struct {
	config     *oauth2.Config
	httpClient *http.Client
}

// NewTokenClient validates cfg and returns a TokenClient.
func NewTokenClient(cfg TokenClientConfig) (*TokenClient, error) {
	if cfg.ClientID == "" {
		return nil, errors.New("client ID is required")
	}
	if cfg.ClientSecret == "" {
		return nil, errors.New("client secret is required")
	}
	if cfg.RedirectURL == "" {
		return nil, errors.New("redirect URL is required")
	}
	if cfg.Endpoints.AuthURL == "" || cfg.Endpoints.TokenURL == "" {
		return nil, errors.New("authorization and token endpoints are required")
	}

	// A fixed style keeps the exchange to one request; auto-detect retries on failure.
	style := oauth2.AuthStyleInParams
	if cfg.AuthInHeader {
		style = oauth2.AuthStyleInHeader
	}

	return &TokenClient{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.Endpoints.AuthURL,
				TokenURL:  cfg.Endpoints.TokenURL,
				AuthStyle: style,
			},
		},
		httpClient: defaultHTTPClient(cfg.HTTPClient),
	}, nil
}

// AuthorizeURL returns the provider authorization URL carrying state, the configured
// scopes and redirect URI, and response_type=code.
func (c *TokenClient) AuthorizeURL(state string) string {
	return c.config.AuthCodeURL(state)
}

// Exchange trades an authorization code for an access token with a single request.
func (c *TokenClient) Exchange(ctx context.Context, code string) (string, error) {
	if code == "" {
		return "", apperrors.ProviderRejected(nil, "authorization code is missing")
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	tok, err := c.config.Exchange(ctx, code)
	if err != nil {
		return "", classifyExchangeError(err)
	}
	if tok == nil || tok.AccessToken == "" {
		return "", apperrors.ProviderRejected(nil, "token response carried no access token")
	}
	return tok.AccessToken, nil
}

// classifyExchangeError separates provider refusals from failures to reach the provider.
func classifyExchangeError(err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		if re.ErrorCode == "" && re.Response != nil && re.Response.StatusCode >= http.StatusInternalServerError {
			return apperrors.TransportFailure(err, "token endpoint failed")
		}
		return apperrors.ProviderRejected(err, "token endpoint rejected the authorization code")
	}
	// x/oauth2 reports a 2xx response without a token as a plain error.
	if strings.Contains(err.Error(), "missing access_token") {
		return apperrors.ProviderRejected(err, "token response carried no access token")
	}
	return apperrors.TransportFailure(err, "token endpoint unreachable")
}

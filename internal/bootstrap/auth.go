package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/weeklydigest/sessionauth/config"
	"github.com/weeklydigest/sessionauth/internal/adapters/authroles"
	"github.com/weeklydigest/sessionauth/internal/adapters/devauth"
	"github.com/weeklydigest/sessionauth/internal/adapters/oidc"
	"github.com/weeklydigest/sessionauth/internal/observability/metrics"
	"github.com/weeklydigest/sessionauth/internal/ports"
	"github.com/weeklydigest/sessionauth/internal/service"
)

// AuthConfig contains configuration for auth service.
type AuthConfig struct {
	Auth     config.AuthConfig
	IsDev    bool
	Sessions ports.SessionStore
	Users    ports.UserRepository
	Logger   *slog.Logger
	Metrics  *metrics.AuthMetrics
	// HTTPClient is used for provider requests; defaults to a client bounded by ProviderTimeout.
	HTTPClient *http.Client
}

// provider bundles both halves of an identity provider.
type provider interface {
	ports.TokenExchanger
	ports.IdentityResolver
}

// BuildAuthService creates an auth service based on the configured auth mode.
func BuildAuthService(ctx context.Context, cfg AuthConfig) (*service.AuthService, error) {
	if cfg.Sessions == nil || cfg.Users == nil {
		return nil, errors.New("auth service requires session and user stores")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var (
		prov provider
		err  error
	)
	switch cfg.Auth.Mode {
	case config.AuthModeMock:
		prov, err = buildDevAuthProvider(cfg)
	case config.AuthModeOAuth:
		prov, err = buildOAuthProvider(ctx, cfg)
	default:
		err = fmt.Errorf("unsupported auth mode %q", cfg.Auth.Mode)
	}
	if err != nil {
		return nil, err
	}

	var admin ports.AdminPolicy
	if cfg.Auth.AdminDisplayName != "" {
		admin = authroles.DisplayNamePolicy{AdminName: cfg.Auth.AdminDisplayName}
	} else {
		logger.Warn("ADMIN_DISPLAY_NAME is empty; no user has administrative access")
	}

	logger.Info("auth service configured", "mode", cfg.Auth.Mode)
	return service.NewAuthService(service.AuthServiceOptions{
		Exchanger: prov,
		Identity:  prov,
		Sessions:  cfg.Sessions,
		Users:     cfg.Users,
		Admin:     admin,
		Config:    cfg.Auth.Session,
		Logger:    logger,
		Metrics:   cfg.Metrics,
	})
}

//nolint:ireturn // both providers satisfy the same pair of ports.
func buildDevAuthProvider(cfg AuthConfig) (provider, error) {
	// Explicitly enabled dev auth mode; config validation restricts it to DEV=true.
	if !cfg.IsDev {
		return nil, errors.New("mock auth mode requires development mode")
	}
	prov, err := devauth.NewProvider(devauth.Config{
		UserID:      cfg.Auth.DevAuth.UserID,
		DisplayName: cfg.Auth.DevAuth.DisplayName,
	})
	if err != nil {
		return nil, fmt.Errorf("create dev auth provider: %w", err)
	}
	return prov, nil
}

type oauthProvider struct {
	*oidc.TokenClient
	*oidc.IdentityClient
}

//nolint:ireturn // both providers satisfy the same pair of ports.
func buildOAuthProvider(ctx context.Context, cfg AuthConfig) (provider, error) {
	oauth := cfg.Auth.OAuth
	if err := oauth.Validate(); err != nil {
		return nil, err
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Auth.Session.ProviderTimeout
		if timeout <= 0 {
			timeout = oidc.DefaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	endpoints, err := resolveEndpoints(ctx, oauth, httpClient)
	if err != nil {
		return nil, err
	}

	claims, err := oidc.NewClaimMapper(oauth.IDClaim, oauth.NameClaim)
	if err != nil {
		return nil, err
	}

	tokens, err := oidc.NewTokenClient(oidc.TokenClientConfig{
		ClientID:     oauth.ClientID,
		ClientSecret: oauth.ClientSecret,
		RedirectURL:  oauth.RedirectURL,
		Scopes:       oauth.Scopes,
		Endpoints:    endpoints,
		AuthInHeader: oauth.AuthInHeader,
		HTTPClient:   httpClient,
	})
	if err != nil {
		return nil, fmt.Errorf("create token client: %w", err)
	}

	identity, err := oidc.NewIdentityClient(oidc.IdentityClientConfig{
		UserInfoURL: endpoints.UserInfoURL,
		Provider:    endpoints.Provider,
		UserAgent:   oauth.UserAgent,
		Claims:      claims,
		HTTPClient:  httpClient,
	})
	if err != nil {
		return nil, fmt.Errorf("create identity client: %w", err)
	}

	return oauthProvider{TokenClient: tokens, IdentityClient: identity}, nil
}

// resolveEndpoints returns the discovered endpoints when DISCOVERY_URL is set and the configured
// ones otherwise. The configured identity URL fills in when discovery publishes none.
func resolveEndpoints(ctx context.Context, oauth config.OAuthConfig, httpClient *http.Client) (oidc.Endpoints, error) {
	endpoints := oidc.Endpoints{
		AuthURL:     oauth.AuthURL,
		TokenURL:    oauth.TokenURL,
		UserInfoURL: oauth.UserInfoURL,
	}
	if oauth.DiscoveryURL == "" {
		return endpoints, nil
	}

	discovered, err := oidc.Discover(ctx, oauth.DiscoveryURL, httpClient)
	if err != nil {
		return oidc.Endpoints{}, fmt.Errorf("discover oauth endpoints: %w", err)
	}
	if discovered.UserInfoURL == "" {
		discovered.UserInfoURL = oauth.UserInfoURL
	}
	return discovered, nil
}

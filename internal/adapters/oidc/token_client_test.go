package oidc

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apperrors "github.com/weeklydigest/sessionauth/internal/errors"
)

func newTestTokenClient(t *testing.T, tokenURL string) *TokenClient {
	t.Helper()
	c, err := NewTokenClient(TokenClientConfig{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURL:  "https://blog.example.com/auth/callback",
		Scopes:       []string{"read:user"},
		Endpoints: Endpoints{
			AuthURL:  "https://github.com/login/oauth/authorize",
			TokenURL: tokenURL,
		},
		HTTPClient: &http.Client{Timeout: time.Second},
	})
	require.NoError(t, err)
	return c
}

func TestNewTokenClient_ValidationErrors(t *testing.T) {
	base := TokenClientConfig{
		ClientID:     "id",
		ClientSecret: "secret",
		RedirectURL:  "https://x/cb",
		Endpoints:    Endpoints{AuthURL: "https://a", TokenURL: "https://t"},
	}
	tests := []struct {
		name   string
		mutate func(*TokenClientConfig)
		errMsg string
	}{
		{"missing client ID", func(c *TokenClientConfig) { c.ClientID = "" }, "client ID is required"},
		{"missing client secret", func(c *TokenClientConfig) { c.ClientSecret = "" }, "client secret is required"},
		{"missing redirect URL", func(c *TokenClientConfig) { c.RedirectURL = "" }, "redirect URL is required"},
		{"missing token URL", func(c *TokenClientConfig) { c.Endpoints.TokenURL = "" }, "endpoints are required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			_, err := NewTokenClient(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestTokenClient_AuthorizeURL(t *testing.T) {
	c := newTestTokenClient(t, "https://github.com/login/oauth/access_token")

	raw := c.AuthorizeURL("csrf-state-value")
	u, err := url.Parse(raw)
	require.NoError(t, err)

	q := u.Query()
	assert.Equal(t, "github.com", u.Host)
	assert.Equal(t, "csrf-state-value", q.Get("state"))
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "client-id", q.Get("client_id"))
	assert.Equal(t, "read:user", q.Get("scope"))
	assert.Equal(t, "https://blog.example.com/auth/callback", q.Get("redirect_uri"))
}

func TestTokenClient_ExchangeSuccess(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "good-code", r.PostForm.Get("code"))
		assert.Equal(t, "client-secret", r.PostForm.Get("client_secret"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"gho_abc","token_type":"bearer","scope":"read:user"}`))
	}))
	defer srv.Close()

	tok, err := newTestTokenClient(t, srv.URL).Exchange(context.Background(), "good-code")
	require.NoError(t, err)
	assert.Equal(t, "gho_abc", tok)
	assert.EqualValues(t, 1, calls.Load())
}

func TestTokenClient_ExchangeClassification(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		contentType string
		body        string
		rejected    bool
	}{
		{"oauth error body", http.StatusBadRequest, "application/json", `{"error":"invalid_grant"}`, true},
		{"github 200 with error", http.StatusOK, "application/json", `{"error":"bad_verification_code"}`, true},
		{"form encoded error", http.StatusOK, "application/x-www-form-urlencoded", `error=bad_verification_code`, true},
		{"no access token", http.StatusOK, "application/json", `{"token_type":"bearer"}`, true},
		{"unauthorized without body", http.StatusUnauthorized, "text/html", `<html>nope</html>`, true},
		{"server error without oauth body", http.StatusBadGateway, "text/html", `<html>bad gateway</html>`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				calls.Add(1)
				w.Header().Set("Content-Type", tt.contentType)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			tok, err := newTestTokenClient(t, srv.URL).Exchange(context.Background(), "code")
			require.Error(t, err)
			assert.Empty(t, tok)
			assert.Equal(t, tt.rejected, apperrors.IsProviderRejected(err), "err=%v", err)
			assert.Equal(t, !tt.rejected, apperrors.IsTransportFailure(err), "err=%v", err)
			assert.EqualValues(t, 1, calls.Load(), "exchange must not retry")
		})
	}
}

func TestTokenClient_ExchangeUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	tokenURL := srv.URL
	srv.Close()

	_, err := newTestTokenClient(t, tokenURL).Exchange(context.Background(), "code")
	assert.True(t, apperrors.IsTransportFailure(err))
}

func TestTokenClient_ExchangeTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := newTestTokenClient(t, srv.URL).Exchange(ctx, "code")
	assert.True(t, apperrors.IsTransportFailure(err))
}

func TestTokenClient_EmptyCode(t *testing.T) {
	_, err := newTestTokenClient(t, "https://unused").Exchange(context.Background(), "")
	assert.True(t, apperrors.IsProviderRejected(err))
}

package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/weeklydigest/sessionauth/config"
	"github.com/weeklydigest/sessionauth/internal/adapters/authroles"
	domainauth "github.com/weeklydigest/sessionauth/internal/domain/auth"
	apperrors "github.com/weeklydigest/sessionauth/internal/errors"
	"github.com/weeklydigest/sessionauth/internal/mocks"
	authmocks "github.com/weeklydigest/sessionauth/internal/mocks/auth"
	"github.com/weeklydigest/sessionauth/internal/testutil"
	"go.uber.org/mock/gomock"
)

var testStart = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type authFixture struct {
	svc      *AuthService
	provider *authmocks.MockProvider
	sessions *authmocks.MemorySessionStore
	users    *authmocks.MemoryUserRepository
	clock    *testutil.Clock
}

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("sess-%d", n)
	}
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	clock := testutil.NewClock(testStart)
	sessions := authmocks.NewMemorySessionStore()
	sessions.Now = clock.Now
	provider := authmocks.NewMockProvider()
	provider.Identity = domainauth.RemoteIdentity{ID: "583231", DisplayName: "octocat"}
	users := authmocks.NewMemoryUserRepository()

	svc, err := NewAuthService(AuthServiceOptions{
		Exchanger: provider,
		Identity:  provider,
		Sessions:  sessions,
		Users:     users,
		Admin:     authroles.DisplayNamePolicy{AdminName: "octocat"},
		Config: config.SessionConfig{
			PendingLoginTTL: 10 * time.Minute,
			SessionTTL:      24 * time.Hour,
		},
		Now:   clock.Now,
		NewID: sequentialIDs(),
	})
	require.NoError(t, err)

	return &authFixture{svc: svc, provider: provider, sessions: sessions, users: users, clock: clock}
}

func stateFromAuthURL(t *testing.T, authURL string) string {
	t.Helper()
	u, err := url.Parse(authURL)
	require.NoError(t, err)
	state := u.Query().Get("state")
	require.NotEmpty(t, state)
	return state
}

func TestNewAuthService_RequiresDependencies(t *testing.T) {
	provider := authmocks.NewMockProvider()
	sessions := authmocks.NewMemorySessionStore()
	users := authmocks.NewMemoryUserRepository()

	tests := []struct {
		name string
		opts AuthServiceOptions
	}{
		{"no exchanger", AuthServiceOptions{Identity: provider, Sessions: sessions, Users: users}},
		{"no identity", AuthServiceOptions{Exchanger: provider, Sessions: sessions, Users: users}},
		{"no sessions", AuthServiceOptions{Exchanger: provider, Identity: provider, Users: users}},
		{"no users", AuthServiceOptions{Exchanger: provider, Identity: provider, Sessions: sessions}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := NewAuthService(tt.opts)
			require.Error(t, err)
			assert.Nil(t, svc)
		})
	}
}

func TestAuthService_StartLogin_NewSession(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	res, err := f.svc.StartLogin(ctx, StartLoginInput{RedirectTo: "/admin"})
	require.NoError(t, err)

	assert.Equal(t, "sess-1", res.SessionID)
	assert.Equal(t, testStart.Add(10*time.Minute), res.ExpiresAt)
	state := stateFromAuthURL(t, res.AuthURL)

	rec, err := f.sessions.Load(ctx, res.SessionID)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, domainauth.StateLoginPending, rec.Payload.State())
	assert.Equal(t, state, rec.Payload.CSRFState)
	assert.Equal(t, "/admin", rec.Payload.NextURL)
	assert.Equal(t, domainauth.PayloadVersion, rec.Payload.Version)
}

func TestAuthService_StartLogin_SanitizesRedirect(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	res, err := f.svc.StartLogin(ctx, StartLoginInput{RedirectTo: "https://evil.example/steal"})
	require.NoError(t, err)

	rec, err := f.sessions.Load(ctx, res.SessionID)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "/", rec.Payload.NextURL)
}

func TestAuthService_StartLogin_ReplacesPendingLogin(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	first, err := f.svc.StartLogin(ctx, StartLoginInput{RedirectTo: "/a"})
	require.NoError(t, err)
	second, err := f.svc.StartLogin(ctx, StartLoginInput{SessionID: first.SessionID, RedirectTo: "/b"})
	require.NoError(t, err)

	assert.Equal(t, first.SessionID, second.SessionID)
	assert.NotEqual(t, stateFromAuthURL(t, first.AuthURL), stateFromAuthURL(t, second.AuthURL))
	assert.Equal(t, 1, f.sessions.Len())

	// Only the latest attempt can complete.
	_, err = f.svc.CompleteLogin(ctx, CompleteLoginInput{
		SessionID: first.SessionID,
		Code:      "abc",
		State:     stateFromAuthURL(t, first.AuthURL),
	})
	assert.True(t, apperrors.IsCSRFMismatch(err))
}

func TestAuthService_StartLogin_UnknownSessionGetsNewID(t *testing.T) {
	f := newAuthFixture(t)

	res, err := f.svc.StartLogin(context.Background(), StartLoginInput{SessionID: "forged-id"})
	require.NoError(t, err)
	assert.Equal(t, "sess-1", res.SessionID)
}

func TestAuthService_StartLogin_AlreadyAuthenticated(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	require.NoError(t, f.sessions.Save(ctx, domainauth.SessionRecord{
		ID:      "signed-in",
		Payload: domainauth.Payload{Version: domainauth.PayloadVersion, UserID: "583231"},
		Expiry:  testStart.Add(time.Hour),
	}))

	res, err := f.svc.StartLogin(ctx, StartLoginInput{SessionID: "signed-in", RedirectTo: "/admin"})
	require.ErrorIs(t, err, ErrAlreadyAuthenticated)
	assert.Nil(t, res)
}

func TestAuthService_AdminLoginScenario(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	start, err := f.svc.StartLogin(ctx, StartLoginInput{RedirectTo: "/admin"})
	require.NoError(t, err)

	res, err := f.svc.CompleteLogin(ctx, CompleteLoginInput{
		SessionID: start.SessionID,
		Code:      "abc",
		State:     stateFromAuthURL(t, start.AuthURL),
	})
	require.NoError(t, err)

	assert.Equal(t, "/admin", res.RedirectTo)
	assert.Equal(t, "sess-2", res.SessionID, "session id must rotate on login")
	assert.Equal(t, testStart.Add(24*time.Hour), res.ExpiresAt)
	assert.Equal(t, "583231", res.User.ID)
	assert.Equal(t, "token-abc", res.User.AccessToken)

	old, err := f.sessions.Load(ctx, start.SessionID)
	require.NoError(t, err)
	assert.Nil(t, old, "pre-login session id must stop working")

	rec, err := f.sessions.Load(ctx, res.SessionID)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, domainauth.StateAuthenticated, rec.Payload.State())
	assert.Empty(t, rec.Payload.CSRFState)

	user, err := f.svc.CurrentUser(ctx, res.SessionID)
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, "octocat", user.DisplayName)
	assert.True(t, f.svc.IsAdmin(user))
}

func TestAuthService_CompleteLogin_DefaultRedirect(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	start, err := f.svc.StartLogin(ctx, StartLoginInput{})
	require.NoError(t, err)

	res, err := f.svc.CompleteLogin(ctx, CompleteLoginInput{
		SessionID: start.SessionID,
		Code:      "abc",
		State:     stateFromAuthURL(t, start.AuthURL),
	})
	require.NoError(t, err)
	assert.Equal(t, "/", res.RedirectTo)
}

func TestAuthService_CompleteLogin_WrongStateNeverExchanges(t *testing.T) {
	ctrl := gomock.NewController(t)
	exchanger := mocks.NewMockTokenExchanger(ctrl)
	identity := mocks.NewMockIdentityResolver(ctrl)
	exchanger.EXPECT().AuthorizeURL(gomock.Any()).DoAndReturn(func(state string) string {
		return "https://idp.example/authorize?state=" + state
	})
	// No Exchange or Resolve expectations: any call fails the test.

	sessions := authmocks.NewMemorySessionStore()
	svc, err := NewAuthService(AuthServiceOptions{
		Exchanger: exchanger,
		Identity:  identity,
		Sessions:  sessions,
		Users:     authmocks.NewMemoryUserRepository(),
	})
	require.NoError(t, err)
	ctx := context.Background()

	start, err := svc.StartLogin(ctx, StartLoginInput{RedirectTo: "/admin"})
	require.NoError(t, err)

	res, err := svc.CompleteLogin(ctx, CompleteLoginInput{
		SessionID: start.SessionID,
		Code:      "abc",
		State:     "attacker-supplied",
	})
	require.Error(t, err)
	assert.Nil(t, res)
	assert.True(t, apperrors.IsCSRFMismatch(err))

	rec, err := sessions.Load(ctx, start.SessionID)
	require.NoError(t, err)
	assert.Nil(t, rec, "a mismatched callback consumes the pending login")
}

func TestAuthService_CompleteLogin_CSRFFailures(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T, f *authFixture) CompleteLoginInput
	}{
		{
			name: "no session",
			setup: func(t *testing.T, f *authFixture) CompleteLoginInput {
				return CompleteLoginInput{Code: "abc", State: "whatever"}
			},
		},
		{
			name: "unknown session",
			setup: func(t *testing.T, f *authFixture) CompleteLoginInput {
				return CompleteLoginInput{SessionID: "nope", Code: "abc", State: "whatever"}
			},
		},
		{
			name: "empty state",
			setup: func(t *testing.T, f *authFixture) CompleteLoginInput {
				start, err := f.svc.StartLogin(context.Background(), StartLoginInput{})
				require.NoError(t, err)
				return CompleteLoginInput{SessionID: start.SessionID, Code: "abc"}
			},
		},
		{
			name: "pending login expired",
			setup: func(t *testing.T, f *authFixture) CompleteLoginInput {
				start, err := f.svc.StartLogin(context.Background(), StartLoginInput{})
				require.NoError(t, err)
				f.clock.Advance(11 * time.Minute)
				return CompleteLoginInput{
					SessionID: start.SessionID,
					Code:      "abc",
					State:     stateFromAuthURL(t, start.AuthURL),
				}
			},
		},
		{
			name: "session without pending login",
			setup: func(t *testing.T, f *authFixture) CompleteLoginInput {
				require.NoError(t, f.sessions.Save(context.Background(), domainauth.SessionRecord{
					ID:      "anon",
					Payload: domainauth.Payload{Version: domainauth.PayloadVersion, NextURL: "/"},
					Expiry:  testStart.Add(time.Hour),
				}))
				return CompleteLoginInput{SessionID: "anon", Code: "abc", State: ""}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newAuthFixture(t)
			in := tt.setup(t, f)

			res, err := f.svc.CompleteLogin(context.Background(), in)
			require.Error(t, err)
			assert.Nil(t, res)
			assert.True(t, apperrors.IsCSRFMismatch(err), "got %v", err)
			assert.Zero(t, f.provider.ExchangeCalls())
			assert.Zero(t, f.users.Len())
		})
	}
}

func TestAuthService_CompleteLogin_CallbackIsSingleUse(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	start, err := f.svc.StartLogin(ctx, StartLoginInput{})
	require.NoError(t, err)
	in := CompleteLoginInput{
		SessionID: start.SessionID,
		Code:      "abc",
		State:     stateFromAuthURL(t, start.AuthURL),
	}

	_, err = f.svc.CompleteLogin(ctx, in)
	require.NoError(t, err)

	_, err = f.svc.CompleteLogin(ctx, in)
	assert.True(t, apperrors.IsCSRFMismatch(err))
	assert.Equal(t, 1, f.provider.ExchangeCalls())
}

func TestAuthService_CompleteLogin_ProviderFailuresDiscardSession(t *testing.T) {
	tests := []struct {
		name      string
		configure func(p *authmocks.MockProvider)
		input     func(in CompleteLoginInput) CompleteLoginInput
		check     func(error) bool
		exchanges int
	}{
		{
			name: "exchange rejected",
			configure: func(p *authmocks.MockProvider) {
				p.ExchangeFunc = func(context.Context, string) (string, error) {
					return "", apperrors.ProviderRejected(errors.New("bad_verification_code"), "token exchange rejected")
				}
			},
			check:     apperrors.IsProviderRejected,
			exchanges: 1,
		},
		{
			name: "exchange transport error without a code",
			configure: func(p *authmocks.MockProvider) {
				p.ExchangeFunc = func(context.Context, string) (string, error) {
					return "", errors.New("dial tcp: connection refused")
				}
			},
			check:     apperrors.IsTransportFailure,
			exchanges: 1,
		},
		{
			name: "identity endpoint rejects token",
			configure: func(p *authmocks.MockProvider) {
				p.ResolveFunc = func(context.Context, string) (domainauth.RemoteIdentity, error) {
					return domainauth.RemoteIdentity{}, apperrors.ProviderRejected(nil, "identity request unauthorized")
				}
			},
			check:     apperrors.IsProviderRejected,
			exchanges: 1,
		},
		{
			name: "identity without id",
			configure: func(p *authmocks.MockProvider) {
				p.ResolveFunc = func(context.Context, string) (domainauth.RemoteIdentity, error) {
					return domainauth.RemoteIdentity{DisplayName: "ghost"}, nil
				}
			},
			check:     apperrors.IsProviderRejected,
			exchanges: 1,
		},
		{
			name:      "provider returned an error instead of a code",
			configure: func(*authmocks.MockProvider) {},
			input: func(in CompleteLoginInput) CompleteLoginInput {
				in.Code = ""
				in.ProviderError = "access_denied"
				return in
			},
			check:     apperrors.IsProviderRejected,
			exchanges: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newAuthFixture(t)
			tt.configure(f.provider)
			ctx := context.Background()

			start, err := f.svc.StartLogin(ctx, StartLoginInput{RedirectTo: "/admin"})
			require.NoError(t, err)
			in := CompleteLoginInput{
				SessionID: start.SessionID,
				Code:      "abc",
				State:     stateFromAuthURL(t, start.AuthURL),
			}
			if tt.input != nil {
				in = tt.input(in)
			}

			res, err := f.svc.CompleteLogin(ctx, in)
			require.Error(t, err)
			assert.Nil(t, res)
			assert.True(t, tt.check(err), "unexpected error class: %v", err)
			assert.Equal(t, tt.exchanges, f.provider.ExchangeCalls())

			rec, err := f.sessions.Load(ctx, start.SessionID)
			require.NoError(t, err)
			assert.Nil(t, rec, "failed callback must remove the session")
			assert.Zero(t, f.sessions.Len())
			assert.Zero(t, f.users.Len())
		})
	}
}

// flakySessionStore fails Save after a number of successful calls.
type flakySessionStore struct {
	*authmocks.MemorySessionStore
	okSaves int
}

func (s *flakySessionStore) Save(ctx context.Context, rec domainauth.SessionRecord) error {
	if s.okSaves <= 0 {
		return apperrors.StorageUnavailable(errors.New("connection reset"), "save session")
	}
	s.okSaves--
	return s.MemorySessionStore.Save(ctx, rec)
}

func TestAuthService_CompleteLogin_RotationSaveFailure(t *testing.T) {
	store := &flakySessionStore{MemorySessionStore: authmocks.NewMemorySessionStore(), okSaves: 1}
	provider := authmocks.NewMockProvider()
	users := authmocks.NewMemoryUserRepository()
	svc, err := NewAuthService(AuthServiceOptions{
		Exchanger: provider,
		Identity:  provider,
		Sessions:  store,
		Users:     users,
	})
	require.NoError(t, err)
	ctx := context.Background()

	start, err := svc.StartLogin(ctx, StartLoginInput{})
	require.NoError(t, err)

	res, err := svc.CompleteLogin(ctx, CompleteLoginInput{
		SessionID: start.SessionID,
		Code:      "abc",
		State:     stateFromAuthURL(t, start.AuthURL),
	})
	require.Error(t, err)
	assert.Nil(t, res)
	assert.True(t, apperrors.IsStorageUnavailable(err))
	assert.Zero(t, store.Len(), "old session must not survive a failed rotation")
}

func TestAuthService_CompleteLogin_UpsertFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	users := mocks.NewMockUserRepository(ctrl)
	users.EXPECT().Upsert(gomock.Any(), gomock.Any()).Return(domainauth.User{}, errors.New("disk full"))

	provider := authmocks.NewMockProvider()
	sessions := authmocks.NewMemorySessionStore()
	svc, err := NewAuthService(AuthServiceOptions{
		Exchanger: provider,
		Identity:  provider,
		Sessions:  sessions,
		Users:     users,
	})
	require.NoError(t, err)
	ctx := context.Background()

	start, err := svc.StartLogin(ctx, StartLoginInput{})
	require.NoError(t, err)

	_, err = svc.CompleteLogin(ctx, CompleteLoginInput{
		SessionID: start.SessionID,
		Code:      "abc",
		State:     stateFromAuthURL(t, start.AuthURL),
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsStorageUnavailable(err))
	assert.Zero(t, sessions.Len())
}

func TestAuthService_LoadFailureKeepsSession(t *testing.T) {
	ctrl := gomock.NewController(t)
	sessions := mocks.NewMockSessionStore(ctrl)
	sessions.EXPECT().Load(gomock.Any(), "sess").Return(nil, errors.New("i/o timeout"))
	// No Delete expectation: a load failure must not remove anything.

	provider := authmocks.NewMockProvider()
	svc, err := NewAuthService(AuthServiceOptions{
		Exchanger: provider,
		Identity:  provider,
		Sessions:  sessions,
		Users:     authmocks.NewMemoryUserRepository(),
	})
	require.NoError(t, err)

	_, err = svc.CompleteLogin(context.Background(), CompleteLoginInput{SessionID: "sess", Code: "abc", State: "s"})
	require.Error(t, err)
	assert.True(t, apperrors.IsStorageUnavailable(err))
	assert.Zero(t, provider.ExchangeCalls())
}

func TestAuthService_ReloginRefreshesUser(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	login := func(code string) *CompleteLoginResult {
		start, err := f.svc.StartLogin(ctx, StartLoginInput{})
		require.NoError(t, err)
		res, err := f.svc.CompleteLogin(ctx, CompleteLoginInput{
			SessionID: start.SessionID,
			Code:      code,
			State:     stateFromAuthURL(t, start.AuthURL),
		})
		require.NoError(t, err)
		return res
	}

	login("first")
	f.provider.Identity.DisplayName = "octocat-renamed"
	second := login("second")

	assert.Equal(t, 1, f.users.Len())
	user, err := f.users.GetByID(ctx, "583231")
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, "octocat-renamed", user.DisplayName)
	assert.Equal(t, "token-second", user.AccessToken)
	assert.False(t, f.svc.IsAdmin(&second.User))
}

func TestAuthService_CurrentUser(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	t.Run("empty id", func(t *testing.T) {
		u, err := f.svc.CurrentUser(ctx, "")
		require.NoError(t, err)
		assert.Nil(t, u)
	})

	t.Run("pending login is not a user", func(t *testing.T) {
		start, err := f.svc.StartLogin(ctx, StartLoginInput{})
		require.NoError(t, err)
		u, err := f.svc.CurrentUser(ctx, start.SessionID)
		require.NoError(t, err)
		assert.Nil(t, u)
	})

	t.Run("bound user row missing", func(t *testing.T) {
		require.NoError(t, f.sessions.Save(ctx, domainauth.SessionRecord{
			ID:      "orphan",
			Payload: domainauth.Payload{Version: domainauth.PayloadVersion, UserID: "deleted-user"},
			Expiry:  testStart.Add(time.Hour),
		}))
		u, err := f.svc.CurrentUser(ctx, "orphan")
		require.NoError(t, err)
		assert.Nil(t, u)
	})

	t.Run("expired session", func(t *testing.T) {
		_, err := f.users.Upsert(ctx, domainauth.User{ID: "7", DisplayName: "seven"})
		require.NoError(t, err)
		require.NoError(t, f.sessions.Save(ctx, domainauth.SessionRecord{
			ID:      "stale",
			Payload: domainauth.Payload{Version: domainauth.PayloadVersion, UserID: "7"},
			Expiry:  testStart.Add(time.Minute),
		}))
		f.clock.Advance(time.Minute)
		u, err := f.svc.CurrentUser(ctx, "stale")
		require.NoError(t, err)
		assert.Nil(t, u)
	})
}

func TestAuthService_Logout(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	start, err := f.svc.StartLogin(ctx, StartLoginInput{})
	require.NoError(t, err)
	res, err := f.svc.CompleteLogin(ctx, CompleteLoginInput{
		SessionID: start.SessionID,
		Code:      "abc",
		State:     stateFromAuthURL(t, start.AuthURL),
	})
	require.NoError(t, err)

	require.NoError(t, f.svc.Logout(ctx, res.SessionID))
	u, err := f.svc.CurrentUser(ctx, res.SessionID)
	require.NoError(t, err)
	assert.Nil(t, u)

	require.NoError(t, f.svc.Logout(ctx, res.SessionID), "logout is idempotent")
	require.NoError(t, f.svc.Logout(ctx, ""))
}

func TestAuthService_IsAdmin(t *testing.T) {
	f := newAuthFixture(t)

	assert.False(t, f.svc.IsAdmin(nil))
	assert.True(t, f.svc.IsAdmin(&domainauth.User{ID: "1", DisplayName: "octocat"}))
	assert.False(t, f.svc.IsAdmin(&domainauth.User{ID: "1", DisplayName: "Octocat"}))

	noPolicy, err := NewAuthService(AuthServiceOptions{
		Exchanger: f.provider,
		Identity:  f.provider,
		Sessions:  f.sessions,
		Users:     f.users,
	})
	require.NoError(t, err)
	assert.False(t, noPolicy.IsAdmin(&domainauth.User{ID: "1", DisplayName: "octocat"}))
}

func TestSanitizeRedirect(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", "/"},
		{"/", "/"},
		{"/admin", "/admin"},
		{"/posts/1?draft=true", "/posts/1?draft=true"},
		{"admin", "/"},
		{"https://evil.example/", "/"},
		{"//evil.example/", "/"},
		{"/\\evil.example", "/"},
		{"javascript:alert(1)", "/"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeRedirect(tt.in))
		})
	}
}

package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/weeklydigest/sessionauth/config"
	"github.com/weeklydigest/sessionauth/internal/csrf"
	domainauth "github.com/weeklydigest/sessionauth/internal/domain/auth"
	apperrors "github.com/weeklydigest/sessionauth/internal/errors"
	"github.com/weeklydigest/sessionauth/internal/observability/metrics"
	"github.com/weeklydigest/sessionauth/internal/ports"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/weeklydigest/sessionauth/internal/service"

// ErrAlreadyAuthenticated is returned by StartLogin when the session is already bound to a user.
var ErrAlreadyAuthenticated = errors.New("session is already authenticated")

// AuthServiceOptions groups dependencies for AuthService.
type AuthServiceOptions struct {
	Exchanger ports.TokenExchanger   // Required: authorization URL and code exchange
	Identity  ports.IdentityResolver // Required: access token to remote identity
	Sessions  ports.SessionStore     // Required: session persistence
	Users     ports.UserRepository   // Required: local user records
	Guard     ports.StateGuard       // Optional: defaults to csrf.NewGuard()
	Admin     ports.AdminPolicy      // Optional: nobody is admin when nil
	Config    config.SessionConfig   // Optional: zero values fall back to defaults
	Logger    *slog.Logger           // Optional: structured logger
	Metrics   *metrics.AuthMetrics   // Optional: login and provider instruments
	Tracer    trace.Tracer           // Optional: defaults to the global tracer provider
	Now       func() time.Time       // Optional: clock, defaults to time.Now
	NewID     func() string          // Optional: session id source, defaults to uuid.NewString
}

// AuthService drives the login state machine (anonymous, login pending, authenticated)
// on top of the session store, the provider adapters and the user repository.
type AuthService struct {
	exchanger ports.TokenExchanger
	identity  ports.IdentityResolver
	sessions  ports.SessionStore
	users     ports.UserRepository
	guard     ports.StateGuard
	admin     ports.AdminPolicy
	cfg       config.SessionConfig
	logger    *slog.Logger
	metrics   *metrics.AuthMetrics
	tracer    trace.Tracer
	now       func() time.Time
	newID     func() string
}

// NewAuthService constructs a new AuthService.
func NewAuthService(opts AuthServiceOptions) (*AuthService, error) {
	switch {
	case opts.Exchanger == nil:
		return nil, errors.New("TokenExchanger is required")
	case opts.Identity == nil:
		return nil, errors.New("IdentityResolver is required")
	case opts.Sessions == nil:
		return nil, errors.New("SessionStore is required")
	case opts.Users == nil:
		return nil, errors.New("UserRepository is required")
	}

	cfg := opts.Config
	cfg.Sanitize()

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &AuthService{
		exchanger: opts.Exchanger,
		identity:  opts.Identity,
		sessions:  opts.Sessions,
		users:     opts.Users,
		guard:     opts.Guard,
		admin:     opts.Admin,
		cfg:       cfg,
		logger:    logger.With("component", "auth_service"),
		metrics:   opts.Metrics,
		tracer:    opts.Tracer,
		now:       opts.Now,
		newID:     opts.NewID,
	}
	if s.guard == nil {
		s.guard = csrf.NewGuard()
	}
	if s.tracer == nil {
		s.tracer = otel.Tracer(tracerName)
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	return s, nil
}

// StartLoginInput groups parameters for starting a login.
type StartLoginInput struct {
	// SessionID is the id presented by the browser, empty when it has none.
	SessionID string
	// RedirectTo is where the browser goes after a successful login.
	RedirectTo string
}

// StartLoginResult tells the caller where to send the browser and which session id to keep.
type StartLoginResult struct {
	AuthURL   string
	SessionID string
	ExpiresAt time.Time
}

// StartLogin records a pending login in the session and returns the provider URL.
// A previous pending login on the same session is replaced.
func (s *AuthService) StartLogin(ctx context.Context, in StartLoginInput) (*StartLoginResult, error) {
	sessionID := in.SessionID
	if sessionID != "" {
		rec, err := s.load(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		switch {
		case rec == nil:
			// Unknown or expired ids are never reused.
			sessionID = ""
		case rec.Payload.State() == domainauth.StateAuthenticated:
			return nil, ErrAlreadyAuthenticated
		}
	}
	if sessionID == "" {
		sessionID = s.newID()
	}

	state, err := s.guard.Mint()
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "mint login state")
	}

	rec := domainauth.SessionRecord{
		ID: sessionID,
		Payload: domainauth.Payload{
			Version:   domainauth.PayloadVersion,
			CSRFState: state,
			NextURL:   SanitizeRedirect(in.RedirectTo),
		},
		Expiry: s.now().Add(s.cfg.PendingLoginTTL),
	}
	if err := s.save(ctx, rec); err != nil {
		return nil, err
	}

	s.logger.DebugContext(ctx, "login started", "expires_at", rec.Expiry)

	return &StartLoginResult{
		AuthURL:   s.exchanger.AuthorizeURL(state),
		SessionID: sessionID,
		ExpiresAt: rec.Expiry,
	}, nil
}

// CompleteLoginInput groups the callback parameters.
type CompleteLoginInput struct {
	SessionID string
	Code      string
	State     string
	// ProviderError is the provider's error parameter when it refused the authorization.
	ProviderError string
}

// CompleteLoginResult is the outcome of a successful callback.
type CompleteLoginResult struct {
	// SessionID is the rotated id the browser must use from now on.
	SessionID  string
	RedirectTo string
	ExpiresAt  time.Time
	User       domainauth.User
}

// CompleteLogin finishes a pending login: it verifies the callback state, exchanges the
// code, resolves and reconciles the user and binds it to a fresh session id.
// Every failure after the state is read removes the session, so a callback can be
// consumed at most once.
func (s *AuthService) CompleteLogin(
	ctx context.Context,
	in CompleteLoginInput,
) (result *CompleteLoginResult, err error) {
	ctx, span := s.tracer.Start(ctx, "auth.CompleteLogin")
	defer func() {
		s.metrics.LoginCompleted(err)
		endSpan(span, err)
	}()

	rec, err := s.load(ctx, in.SessionID)
	if err != nil {
		return nil, err
	}
	if rec == nil || rec.Payload.CSRFState == "" {
		s.logger.WarnContext(ctx, "login callback without a pending login")
		return nil, apperrors.CSRFMismatch()
	}

	if !s.guard.Verify(rec.Payload.CSRFState, in.State) {
		s.discard(ctx, rec.ID)
		s.logger.WarnContext(ctx, "login callback state mismatch")
		return nil, apperrors.CSRFMismatch()
	}

	if in.ProviderError != "" || in.Code == "" {
		s.discard(ctx, rec.ID)
		reason := in.ProviderError
		if reason == "" {
			reason = "missing authorization code"
		}
		s.logger.WarnContext(ctx, "provider refused authorization", "reason", reason)
		return nil, apperrors.ProviderRejected(errors.New(reason), "authorization was not granted")
	}

	user, err := s.resolveUser(ctx, in.Code)
	if err != nil {
		s.discard(ctx, rec.ID)
		s.logger.ErrorContext(ctx, "login failed", "code", apperrors.GetCode(err), "error", err)
		return nil, err
	}

	newRec, err := s.rotate(ctx, rec, user.ID)
	if err != nil {
		s.logger.ErrorContext(ctx, "login failed", "code", apperrors.GetCode(err), "error", err, "user", user)
		return nil, err
	}

	s.logger.InfoContext(ctx, "login completed", "user", user)

	return &CompleteLoginResult{
		SessionID:  newRec.ID,
		RedirectTo: SanitizeRedirect(rec.Payload.NextURL),
		ExpiresAt:  newRec.Expiry,
		User:       user,
	}, nil
}

// resolveUser runs the provider steps and reconciles the local user record.
func (s *AuthService) resolveUser(ctx context.Context, code string) (domainauth.User, error) {
	token, err := s.exchange(ctx, code)
	if err != nil {
		return domainauth.User{}, err
	}

	remote, err := s.resolve(ctx, token)
	if err != nil {
		return domainauth.User{}, err
	}

	stepCtx, span := s.tracer.Start(ctx, "auth.upsert_user")
	stepCtx, cancel := context.WithTimeout(stepCtx, s.cfg.StoreTimeout)
	user, err := s.users.Upsert(stepCtx, domainauth.User{
		ID:          remote.ID,
		DisplayName: remote.DisplayName,
		AccessToken: token,
	})
	cancel()
	err = storageError(err, "upsert user")
	endSpan(span, err)
	return user, err
}

func (s *AuthService) exchange(ctx context.Context, code string) (string, error) {
	ctx, span := s.tracer.Start(ctx, "auth.exchange")
	ctx, cancel := context.WithTimeout(ctx, s.cfg.ProviderTimeout)
	defer cancel()

	start := time.Now()
	token, err := s.exchanger.Exchange(ctx, code)
	s.metrics.ProviderDuration(metrics.StepExchange, time.Since(start))
	if err != nil {
		err = providerError(err, "token exchange")
	}
	endSpan(span, err)
	return token, err
}

func (s *AuthService) resolve(ctx context.Context, token string) (domainauth.RemoteIdentity, error) {
	ctx, span := s.tracer.Start(ctx, "auth.resolve_identity")
	ctx, cancel := context.WithTimeout(ctx, s.cfg.ProviderTimeout)
	defer cancel()

	start := time.Now()
	remote, err := s.identity.Resolve(ctx, token)
	s.metrics.ProviderDuration(metrics.StepResolve, time.Since(start))
	if err == nil && remote.ID == "" {
		err = apperrors.ProviderRejected(nil, "identity response carried no id")
	}
	if err != nil {
		err = providerError(err, "resolve identity")
	} else {
		span.SetAttributes(attribute.String("auth.user_id", remote.ID))
	}
	endSpan(span, err)
	return remote, err
}

// rotate binds userID to a fresh session id and removes the pending session.
// The old id must stop working whether or not the new record was written.
func (s *AuthService) rotate(
	ctx context.Context,
	old *domainauth.SessionRecord,
	userID string,
) (domainauth.SessionRecord, error) {
	ctx, span := s.tracer.Start(ctx, "auth.rotate_session")
	rec := domainauth.SessionRecord{
		ID: s.newID(),
		Payload: domainauth.Payload{
			Version: domainauth.PayloadVersion,
			UserID:  userID,
		},
		Expiry: s.now().Add(s.cfg.SessionTTL),
	}

	if err := s.save(ctx, rec); err != nil {
		s.discard(ctx, old.ID)
		endSpan(span, err)
		return domainauth.SessionRecord{}, err
	}
	s.discard(ctx, old.ID)
	endSpan(span, nil)
	return rec, nil
}

// CurrentUser returns the user bound to the session, or nil when the session is not
// authenticated or the user record no longer exists.
func (s *AuthService) CurrentUser(ctx context.Context, sessionID string) (*domainauth.User, error) {
	if sessionID == "" {
		return nil, nil
	}
	rec, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if rec == nil || rec.Payload.State() != domainauth.StateAuthenticated {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()
	user, err := s.users.GetByID(ctx, rec.Payload.UserID)
	if err != nil {
		return nil, storageError(err, "get user")
	}
	return user, nil
}

// Logout removes the session. Unknown and empty ids are not an error.
func (s *AuthService) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()
	if err := s.sessions.Delete(ctx, sessionID); err != nil {
		return storageError(err, "delete session")
	}
	return nil
}

// IsAdmin reports whether u has administrative access. Nil users never do.
func (s *AuthService) IsAdmin(u *domainauth.User) bool {
	return u != nil && s.admin != nil && s.admin.IsAdmin(u)
}

func (s *AuthService) load(ctx context.Context, id string) (*domainauth.SessionRecord, error) {
	if id == "" {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()
	rec, err := s.sessions.Load(ctx, id)
	if err != nil {
		return nil, storageError(err, "load session")
	}
	return rec, nil
}

func (s *AuthService) save(ctx context.Context, rec domainauth.SessionRecord) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()
	return storageError(s.sessions.Save(ctx, rec), "save session")
}

// discard deletes a session even when the request context is already done.
func (s *AuthService) discard(ctx context.Context, id string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.StoreTimeout)
	defer cancel()
	if err := s.sessions.Delete(ctx, id); err != nil {
		s.logger.WarnContext(ctx, "failed to delete session", "error", err)
	}
}

// SanitizeRedirect keeps only same-origin relative paths and falls back to "/".
func SanitizeRedirect(candidate string) string {
	if candidate == "" {
		return "/"
	}
	if strings.HasPrefix(candidate, "//") || strings.HasPrefix(candidate, "/\\") {
		return "/"
	}
	u, err := url.Parse(candidate)
	if err != nil || u.IsAbs() || u.Host != "" || !strings.HasPrefix(u.Path, "/") {
		return "/"
	}
	return candidate
}

// storageError tags uncoded store failures as storage_unavailable.
func storageError(err error, op string) error {
	if err == nil {
		return nil
	}
	if apperrors.GetCode(err) == "" {
		return apperrors.StorageUnavailable(err, op)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// providerError tags uncoded provider failures as transport failures.
func providerError(err error, op string) error {
	if apperrors.GetCode(err) == "" {
		return apperrors.TransportFailure(err, op)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(apperrors.GetCode(err)))
	}
	span.End()
}

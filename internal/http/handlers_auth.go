package httpx

import (
	"context"
	"errors"
	"html/template"
	"log/slog"
	"net/http"

	domainauth "github.com/weeklydigest/sessionauth/internal/domain/auth"
	apperrors "github.com/weeklydigest/sessionauth/internal/errors"
	"github.com/weeklydigest/sessionauth/internal/service"
)

// Paths of the auth surface.
const (
	PathLogin     = "/login"
	PathLogout    = "/logout"
	PathCallback  = "/auth/callback"
	PathAuthError = "/auth/error"
	PathStatus    = "/auth/status"
)

// AuthServiceInterface defines the interface for auth service operations.
type AuthServiceInterface interface {
	StartLogin(ctx context.Context, in service.StartLoginInput) (*service.StartLoginResult, error)
	CompleteLogin(ctx context.Context, in service.CompleteLoginInput) (*service.CompleteLoginResult, error)
	CurrentUser(ctx context.Context, sessionID string) (*domainauth.User, error)
	Logout(ctx context.Context, sessionID string) error
	IsAdmin(u *domainauth.User) bool
}

// AuthHandlers provides HTTP handlers for authentication operations.
type AuthHandlers struct {
	Svc    AuthServiceInterface
	Cookie SessionCookie
	Logger *slog.Logger
}

func (h *AuthHandlers) logger() *slog.Logger {
	if h != nil && h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

var loginPage = template.Must(template.New("login").Parse(`<!doctype html>
<html><head><meta charset="utf-8"><title>Sign in</title></head>
<body>
<form method="post" action="/login">
<input type="hidden" name="next" value="{{.Next}}">
<button type="submit">Sign in</button>
</form>
</body></html>
`))

// LoginPage renders a minimal form that posts to /login.
// GET /login?next=<optional_redirect>.
func (h *AuthHandlers) LoginPage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	data := struct{ Next string }{Next: service.SanitizeRedirect(r.URL.Query().Get("next"))}
	if err := loginPage.Execute(w, data); err != nil {
		h.logger().ErrorContext(r.Context(), "render login page", "error", err)
	}
}

// Login starts the authorization-code flow.
// POST /login with optional form field next.
func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_form"})
		return
	}
	next := r.PostFormValue("next")

	result, err := h.Svc.StartLogin(r.Context(), service.StartLoginInput{
		SessionID:  h.Cookie.Read(r),
		RedirectTo: next,
	})
	if errors.Is(err, service.ErrAlreadyAuthenticated) {
		http.Redirect(w, r, service.SanitizeRedirect(next), http.StatusFound)
		return
	}
	if err != nil {
		h.logger().ErrorContext(r.Context(), "start login failed", "code", apperrors.GetCode(err), "error", err)
		writeAppError(w, err)
		return
	}

	h.Cookie.Set(w, r, result.SessionID, result.ExpiresAt)
	http.Redirect(w, r, result.AuthURL, http.StatusFound)
}

// Callback handles the provider redirect.
// GET /auth/callback?code=<code>&state=<state>.
func (h *AuthHandlers) Callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	result, err := h.Svc.CompleteLogin(r.Context(), service.CompleteLoginInput{
		SessionID:     h.Cookie.Read(r),
		Code:          q.Get("code"),
		State:         q.Get("state"),
		ProviderError: q.Get("error"),
	})
	if err != nil {
		// The cause was logged by the service; the browser only learns that login failed.
		h.logger().InfoContext(r.Context(), "login callback failed", "code", apperrors.GetCode(err))
		h.Cookie.Clear(w, r)
		http.Redirect(w, r, PathAuthError, http.StatusFound)
		return
	}

	h.Cookie.Set(w, r, result.SessionID, result.ExpiresAt)
	http.Redirect(w, r, result.RedirectTo, http.StatusFound)
}

// AuthError renders the generic login failure page.
// GET /auth/error.
func (h *AuthHandlers) AuthError(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte("login failed\n"))
}

// Logout deletes the server-side session and returns to the login page.
// GET /logout.
func (h *AuthHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	if id := h.Cookie.Read(r); id != "" {
		if err := h.Svc.Logout(r.Context(), id); err != nil {
			h.logger().WarnContext(r.Context(), "logout failed", "error", err)
		}
	}
	h.Cookie.Clear(w, r)
	http.Redirect(w, r, PathLogin, http.StatusFound)
}

type statusUser struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

type statusResponse struct {
	Authenticated bool        `json:"authenticated"`
	User          *statusUser `json:"user,omitempty"`
	IsAdmin       bool        `json:"is_admin"`
}

// Status returns the current authentication status.
// GET /auth/status.
func (h *AuthHandlers) Status(w http.ResponseWriter, r *http.Request) {
	user := CurrentUserFromContext(r.Context())
	if user == nil {
		id := h.Cookie.Read(r)
		var err error
		user, err = h.Svc.CurrentUser(r.Context(), id)
		if err != nil {
			h.logger().ErrorContext(r.Context(), "load current user", "code", apperrors.GetCode(err), "error", err)
			writeAppError(w, err)
			return
		}
	}

	w.Header().Set("Cache-Control", "no-store")
	if user == nil {
		WriteJSON(w, http.StatusOK, statusResponse{})
		return
	}
	WriteJSON(w, http.StatusOK, statusResponse{
		Authenticated: true,
		User:          &statusUser{ID: user.ID, DisplayName: user.DisplayName},
		IsAdmin:       h.Svc.IsAdmin(user),
	})
}

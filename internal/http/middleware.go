package httpx

import (
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	domainauth "github.com/weeklydigest/sessionauth/internal/domain/auth"
	apperrors "github.com/weeklydigest/sessionauth/internal/errors"
	"github.com/weeklydigest/sessionauth/internal/observability/metrics"
)

// Logging returns a middleware that logs HTTP requests and responses.
func Logging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &respWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.InfoContext(r.Context(), "http",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("route", r.Pattern),
				slog.Int("status", ww.status),
				slog.Duration("duration", time.Since(start)),
			)
		})
	}
}

type respWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *respWriter) WriteHeader(status int) {
	if !w.wroteHeader {
		w.status = status
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *respWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

// Metrics returns a middleware that records request counts and latency per route pattern.
// It must wrap the ServeMux directly so the matched pattern is visible after serving.
func Metrics(m *metrics.HTTPMetrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if m == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &respWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			m.Observe(r.Pattern, r.Method, ww.status, time.Since(start))
		})
	}
}

// Recover returns a middleware that recovers from panics and logs them.
func Recover(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					logger.Error("panic",
						slog.Any("error", err),
						slog.String("path", r.URL.Path),
						slog.String("method", r.Method),
						slog.String("stack", string(debug.Stack())))
					http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// OptionalAuth returns a middleware that optionally adds the current user to the request context.
// Storage failures are logged and the request continues anonymously. A nil logger means slog.Default().
func OptionalAuth(authSvc AuthServiceInterface, cookie SessionCookie, logger *slog.Logger) func(http.Handler) http.Handler {
	logger = orDefaultLogger(logger)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, err := userFromRequest(r, authSvc, cookie)
			if err != nil {
				logger.WarnContext(r.Context(), "optional auth lookup failed", "code", apperrors.GetCode(err), "error", err)
			}
			if user != nil {
				r = r.WithContext(SetUserInContext(r.Context(), user, authSvc.IsAdmin(user)))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAuth returns a middleware that requires authentication.
// If the user is not authenticated, it returns a 401 Unauthorized response.
func RequireAuth(authSvc AuthServiceInterface, cookie SessionCookie, logger *slog.Logger) func(http.Handler) http.Handler {
	logger = orDefaultLogger(logger)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := requireUser(w, r, authSvc, cookie, logger)
			if !ok {
				return
			}
			ctx := SetUserInContext(r.Context(), user, authSvc.IsAdmin(user))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin returns a middleware that requires an administrator.
// Anonymous requests get 401, authenticated non-admins get 403.
func RequireAdmin(authSvc AuthServiceInterface, cookie SessionCookie, logger *slog.Logger) func(http.Handler) http.Handler {
	logger = orDefaultLogger(logger)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := requireUser(w, r, authSvc, cookie, logger)
			if !ok {
				return
			}
			if !authSvc.IsAdmin(user) {
				WriteError(w, ErrorParams{
					Code:    http.StatusForbidden,
					ErrCode: "insufficient_permissions",
					Message: "administrator access required",
				})
				return
			}
			ctx := SetUserInContext(r.Context(), user, true)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// requireUser resolves the user or writes the 401/5xx response itself.
func requireUser(
	w http.ResponseWriter,
	r *http.Request,
	authSvc AuthServiceInterface,
	cookie SessionCookie,
	logger *slog.Logger,
) (*domainauth.User, bool) {
	user, err := userFromRequest(r, authSvc, cookie)
	if err != nil {
		logger.ErrorContext(r.Context(), "auth lookup failed", "code", apperrors.GetCode(err), "error", err)
		writeAppError(w, err)
		return nil, false
	}
	if user == nil {
		WriteError(w, ErrorParams{
			Code:    http.StatusUnauthorized,
			ErrCode: "authentication_required",
			Message: "authentication required",
		})
		return nil, false
	}
	return user, true
}

// userFromRequest returns the user already resolved for this request or looks it up
// from the session cookie.
func userFromRequest(
	r *http.Request,
	authSvc AuthServiceInterface,
	cookie SessionCookie,
) (*domainauth.User, error) {
	if user := CurrentUserFromContext(r.Context()); user != nil {
		return user, nil
	}
	id := cookie.Read(r)
	if id == "" {
		return nil, nil
	}
	return authSvc.CurrentUser(r.Context(), id)
}

func orDefaultLogger(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}

package httpx

import (
	"log/slog"
	"net/http"

	"github.com/weeklydigest/sessionauth/internal/observability/metrics"
)

// RouterServices holds all the services needed by the HTTP router.
type RouterServices struct {
	Auth   AuthServiceInterface // Required
	Cookie SessionCookie
	Logger *slog.Logger // Optional, defaults to slog.Default()

	// Optional: request instruments and the exposition handler.
	Metrics        *metrics.HTTPMetrics
	MetricsHandler http.Handler
	MetricsPath    string

	// Optional: backend checks behind /readyz, keyed by backend name.
	Readiness map[string]ReadinessCheck
}

// NewRouter creates and configures the HTTP router.
func NewRouter(services RouterServices) http.Handler {
	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()

	authHandlers := &AuthHandlers{Svc: services.Auth, Cookie: services.Cookie, Logger: logger}
	registerAuthRoutes(mux, authHandlers)
	registerAdminRoutes(mux, services.Auth, services.Cookie, logger)

	// GET patterns also match HEAD.
	mux.HandleFunc("GET /healthz", livenessHandler)
	health := &HealthHandlers{Checks: services.Readiness, Logger: logger}
	mux.HandleFunc("GET /readyz", health.Ready)

	if services.MetricsHandler != nil {
		path := services.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		mux.Handle("GET "+path, services.MetricsHandler)
	}

	// Metrics must wrap the mux directly; see Metrics.
	return Recover(logger)(Logging(logger)(Metrics(services.Metrics)(mux)))
}

func registerAuthRoutes(mux *http.ServeMux, h *AuthHandlers) {
	mux.HandleFunc("GET "+PathLogin, h.LoginPage)
	mux.HandleFunc("POST "+PathLogin, h.Login)
	mux.HandleFunc("GET "+PathLogout, h.Logout)
	mux.HandleFunc("GET "+PathCallback, h.Callback)
	mux.HandleFunc("GET "+PathAuthError, h.AuthError)
	mux.Handle("GET "+PathStatus, OptionalAuth(h.Svc, h.Cookie, h.logger())(http.HandlerFunc(h.Status)))
}

func registerAdminRoutes(mux *http.ServeMux, authSvc AuthServiceInterface, cookie SessionCookie, logger *slog.Logger) {
	mux.Handle("GET /admin/whoami", RequireAdmin(authSvc, cookie, logger)(http.HandlerFunc(whoamiHandler)))
}

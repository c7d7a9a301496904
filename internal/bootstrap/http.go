package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/weeklydigest/sessionauth/config"
	apperrors "github.com/weeklydigest/sessionauth/internal/errors"
	httpx "github.com/weeklydigest/sessionauth/internal/http"
	"github.com/weeklydigest/sessionauth/internal/observability/metrics"
)

// defaultShutdownTimeout bounds graceful shutdown when none is configured.
const defaultShutdownTimeout = 15 * time.Second

// HTTPServerConfig contains configuration for HTTP server.
type HTTPServerConfig struct {
	Config  *config.AppConfig
	Auth    httpx.AuthServiceInterface
	Metrics *metrics.Registry
	Storage *Storage
	Logger  *slog.Logger
}

// BuildHTTPServer wires the router into an http.Server without starting it.
func BuildHTTPServer(cfg *HTTPServerConfig) *http.Server {
	if cfg == nil {
		return nil
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	appCfg := cfg.Config
	if appCfg == nil {
		appCfg = &config.AppConfig{}
	}

	services := httpx.RouterServices{
		Auth:   cfg.Auth,
		Cookie: httpx.SessionCookie{Name: appCfg.HTTP.CookieName, Domain: appCfg.HTTP.CookieDomain},
		Logger: logger,

		Readiness: cfg.Storage.readinessChecks(),
	}
	if cfg.Metrics != nil {
		services.Metrics = cfg.Metrics.HTTP
		if appCfg.Observability.Metrics.Enabled {
			services.MetricsHandler = metrics.Handler(cfg.Metrics.Gatherer)
			services.MetricsPath = appCfg.Observability.Metrics.Path
		}
	}

	addr := appCfg.HTTP.Addr
	// Guard against empty addr to avoid listening on Go default
	if addr == "" {
		addr = ":8080"
	}

	return &http.Server{
		Addr:              addr,
		Handler:           httpx.NewRouter(services),
		ReadHeaderTimeout: appCfg.HTTP.ReadHeaderTimeout,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}
}

// readinessChecks pings every backend the storage layer opened.
func (s *Storage) readinessChecks() map[string]httpx.ReadinessCheck {
	if s == nil {
		return nil
	}
	checks := make(map[string]httpx.ReadinessCheck, 2)
	if s.DB != nil {
		db := s.DB
		checks["database"] = func(ctx context.Context) error {
			return apperrors.MapDBError(db.PingContext(ctx), "ping database")
		}
	}
	if s.Redis != nil {
		client := s.Redis
		checks["redis"] = func(ctx context.Context) error {
			if err := client.Ping(ctx).Err(); err != nil {
				return apperrors.StorageUnavailable(err, "ping redis")
			}
			return nil
		}
	}
	return checks
}

// ServeHTTP runs server until ctx ends, then shuts it down within the configured timeout.
func ServeHTTP(ctx context.Context, server *http.Server, cfg config.HTTPConfig, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	ln, err := net.Listen("tcp", server.Addr)
	if err != nil {
		return err
	}
	return serveListener(ctx, server, ln, cfg, logger)
}

func serveListener(
	ctx context.Context,
	server *http.Server,
	ln net.Listener,
	cfg config.HTTPConfig,
	logger *slog.Logger,
) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting HTTP server", "addr", ln.Addr().String())
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down HTTP server")
	timeout := cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}
	// Shutdown HTTP server with timeout; ctx is already done.
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil {
		return err
	}
	logger.Info("HTTP server stopped")
	return nil
}

package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/weeklydigest/sessionauth/config"
	"github.com/weeklydigest/sessionauth/internal/adapters/sweeper"
	"github.com/weeklydigest/sessionauth/internal/observability/metrics"
	"github.com/weeklydigest/sessionauth/internal/observability/tracing"
	"github.com/weeklydigest/sessionauth/internal/service"
	"golang.org/x/sync/errgroup"
)

// Application holds the wired dependencies of a running process.
type Application struct {
	Config  *config.AppConfig
	Storage *Storage
	Auth    *service.AuthService
	Metrics *metrics.Registry
	Logger  *slog.Logger
}

// NewApplication opens storage and builds the services the enabled modes need.
func NewApplication(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger) (*Application, error) {
	if cfg == nil {
		return nil, errors.New("application config is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := ValidateServiceConfig(cfg); err != nil {
		return nil, err
	}

	reg := metrics.NewRegistry()
	storage, err := OpenStorage(ctx, StorageOptions{
		Config:  cfg.Storage,
		Logger:  logger,
		Migrate: cfg.Storage.Postgres.RunMigrationsOnStart,
	})
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	app := &Application{Config: cfg, Storage: storage, Metrics: reg, Logger: logger}
	if cfg.IsHTTPServerEnabled() {
		authSvc, err := BuildAuthService(ctx, AuthConfig{
			Auth:     cfg.Auth,
			IsDev:    cfg.IsDev,
			Sessions: storage.Sessions,
			Users:    storage.Users,
			Logger:   logger,
			Metrics:  reg.Auth,
		})
		if err != nil {
			return nil, errors.Join(fmt.Errorf("build auth service: %w", err), storage.Close())
		}
		app.Auth = authSvc
	}
	return app, nil
}

// Close releases storage.
func (a *Application) Close() error {
	if a == nil {
		return nil
	}
	return a.Storage.Close()
}

// backgroundService describes a startable component bound to a service mode.
type backgroundService struct {
	mode  config.ServiceMode
	name  string
	start func(context.Context) error
}

func newHTTPService(app *Application) backgroundService {
	return backgroundService{
		mode: config.ServiceModeHTTP,
		name: "http server",
		start: func(ctx context.Context) error {
			server := BuildHTTPServer(&HTTPServerConfig{
				Config:  app.Config,
				Auth:    app.Auth,
				Metrics: app.Metrics,
				Storage: app.Storage,
				Logger:  app.Logger,
			})
			return ServeHTTP(ctx, server, app.Config.HTTP, app.Logger)
		},
	}
}

func newSweeperService(app *Application) backgroundService {
	return backgroundService{
		mode: config.ServiceModeSweeper,
		name: "session sweeper",
		start: func(ctx context.Context) error {
			var m *metrics.AuthMetrics
			if app.Metrics != nil {
				m = app.Metrics.Auth
			}
			runner, err := sweeper.NewRunner(sweeper.RunnerOptions{
				Sessions: app.Storage.Sessions,
				Config:   app.Config.Sweeper,
				Logger:   app.Logger,
				Metrics:  m,
			})
			if err != nil {
				return err
			}
			return runner.Run(ctx)
		},
	}
}

func buildBackgroundServices(app *Application) []backgroundService {
	return []backgroundService{
		newHTTPService(app),
		newSweeperService(app),
	}
}

// RunServices starts all enabled services and blocks until ctx ends or one of them fails.
// A failing service cancels the others.
func RunServices(ctx context.Context, app *Application) error {
	if app == nil || app.Config == nil {
		return errors.New("application is required")
	}
	enabled, err := app.Config.GetEnabledServices()
	if err != nil {
		return fmt.Errorf("determine enabled services: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, svc := range buildBackgroundServices(app) {
		if !enabled[svc.mode] {
			continue
		}
		g.Go(func() error {
			app.Logger.InfoContext(gctx, "background service started", "service", svc.name, "mode", svc.mode)
			if err := svc.start(gctx); err != nil {
				return fmt.Errorf("%s failed: %w", svc.name, err)
			}
			app.Logger.InfoContext(gctx, svc.name+" stopped")
			return nil
		})
	}
	return g.Wait()
}

// Run installs signal handling and tracing, then runs the application built from cfg
// until SIGINT or SIGTERM.
func Run(cfg *config.AppConfig, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Setup(ctx, tracing.Config{
		Endpoint:    cfg.Observability.Tracing.Endpoint,
		ServiceName: cfg.Observability.Tracing.ServiceName,
		SampleRatio: cfg.Observability.Tracing.SampleRatio,
	})
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() {
		if err := shutdownTracing(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("tracing shutdown failed", "error", err)
		}
	}()

	app, err := NewApplication(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.Warn("close application", "error", err)
		}
	}()

	logger.Info("services enabled", "services", GetEnabledServices(cfg))
	if err := RunServices(ctx, app); err != nil {
		return err
	}
	logger.Info("shutdown complete")
	return nil
}

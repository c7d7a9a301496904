package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/weeklydigest/sessionauth/config"
	"github.com/weeklydigest/sessionauth/internal/bootstrap"
)

func main() {
	ctx := context.Background()
	cfg, err := bootstrap.LoadConfig()
	logger := bootstrap.InitLogger(cfg.IsDev)
	if err != nil {
		logger.ErrorContext(ctx, "load config", "error", err)
		os.Exit(1) //nolint:forbidigo // Main entrypoint should exit with non-zero status on fatal errors.
	}

	logStartupInfo(ctx, logger, &cfg)
	if err := bootstrap.Run(&cfg, logger); err != nil {
		logger.ErrorContext(ctx, "fatal error", "error", err)
		os.Exit(1) //nolint:forbidigo // Main entrypoint should exit with non-zero status on fatal errors.
	}
}

func logStartupInfo(ctx context.Context, logger *slog.Logger, cfg *config.AppConfig) {
	logger.InfoContext(ctx, "starting sessionauth",
		"auth_mode", cfg.Auth.Mode,
		"db_driver", cfg.Storage.Driver,
		"session_backend", cfg.Storage.SessionBackend,
		"http_addr", cfg.HTTP.Addr,
		"enabled_services", bootstrap.GetEnabledServices(cfg))
}

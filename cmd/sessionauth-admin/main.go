// Command sessionauth-admin runs maintenance tasks against the session and user stores.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/weeklydigest/sessionauth/config"
	"github.com/weeklydigest/sessionauth/internal/bootstrap"
)

const defaultMigrationTimeout = 5 * time.Minute

// cliDeps are the process-level inputs of the command tree.
type cliDeps struct {
	loadConfig func() (config.AppConfig, error)
	logger     *slog.Logger
	out        io.Writer
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := bootstrap.InitLogger(false)
	root := newRootCmd(cliDeps{loadConfig: bootstrap.LoadMaintenanceConfig, logger: logger, out: os.Stdout})
	if err := root.ExecuteContext(ctx); err != nil {
		logger.ErrorContext(ctx, "command failed", "error", err)
		stop()
		os.Exit(1) //nolint:forbidigo // CLI must propagate command execution failure to callers
	}
}

func newRootCmd(deps cliDeps) *cobra.Command {
	root := &cobra.Command{
		Use:           "sessionauth-admin",
		Short:         "Maintenance commands for sessionauth storage",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(deps.out)
	root.AddCommand(
		newMigrateCmd(deps),
		newSweepCmd(deps),
		newRevokeCmd(deps),
		newInspectCmd(deps),
	)
	return root
}

// withStorage loads config, opens storage and closes it after fn returns.
func withStorage(
	cmd *cobra.Command,
	deps cliDeps,
	migrate bool,
	fn func(ctx context.Context, cfg config.AppConfig, st *bootstrap.Storage) error,
) error {
	cfg, err := deps.loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	ctx := cmd.Context()
	st, err := bootstrap.OpenStorage(ctx, bootstrap.StorageOptions{
		Config:  cfg.Storage,
		Logger:  deps.logger,
		Migrate: migrate,
	})
	if err != nil {
		return err
	}
	defer func() {
		if cerr := st.Close(); cerr != nil {
			deps.logger.WarnContext(ctx, "close storage", "error", cerr)
		}
	}()
	return fn(ctx, cfg, st)
}

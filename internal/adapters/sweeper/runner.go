// Package sweeper provides adapters for running the expired-session sweeper.
package sweeper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/weeklydigest/sessionauth/config"
	"github.com/weeklydigest/sessionauth/internal/observability/metrics"
	"github.com/weeklydigest/sessionauth/internal/ports"
	"github.com/weeklydigest/sessionauth/internal/service"
)

// Runner provides a simple adapter to run the sweep loop.
// It constructs the sweeper service and runs it until the context ends.
type Runner struct {
	sweeper *service.SessionSweeper
	logger  *slog.Logger
}

// RunnerOptions holds the dependencies for creating a Runner.
type RunnerOptions struct {
	Sessions ports.SessionStore
	Config   config.SweeperConfig
	Logger   *slog.Logger
	Metrics  *metrics.AuthMetrics
}

// NewRunner creates a new sweeper runner with the given options.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if err := validateRunnerOptions(&opts); err != nil {
		return nil, err
	}

	sweeper, err := service.NewSessionSweeper(service.SessionSweeperOptions{
		Sessions: opts.Sessions,
		Config:   opts.Config,
		Logger:   opts.Logger,
		Metrics:  opts.Metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("wire session sweeper: %w", err)
	}

	return &Runner{sweeper: sweeper, logger: opts.Logger}, nil
}

// validateRunnerOptions validates and sets defaults for RunnerOptions.
func validateRunnerOptions(opts *RunnerOptions) error {
	if opts.Sessions == nil {
		return errors.New("session store is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return nil
}

// Run starts the sweep loop and runs until the context is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting sweeper runner")
	return r.sweeper.Run(ctx)
}

// SweepOnce runs a single pass; used by the admin CLI.
func (r *Runner) SweepOnce(ctx context.Context) (int64, error) {
	return r.sweeper.SweepOnce(ctx)
}

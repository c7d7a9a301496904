package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/weeklydigest/sessionauth/config"
	"github.com/weeklydigest/sessionauth/internal/adapters/sweeper"
	"github.com/weeklydigest/sessionauth/internal/bootstrap"
	domainauth "github.com/weeklydigest/sessionauth/internal/domain/auth"
)

func newMigrateCmd(deps cliDeps) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the embedded schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			cmd.SetContext(ctx)
			return withStorage(cmd, deps, true, func(_ context.Context, _ config.AppConfig, st *bootstrap.Storage) error {
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "migrations applied (%s)\n", st.Dialect)
				return err
			})
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", defaultMigrationTimeout, "maximum time to wait for migrations")
	return cmd
}

func newSweepCmd(deps cliDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Delete expired sessions once and report how many were removed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStorage(cmd, deps, false, func(ctx context.Context, cfg config.AppConfig, st *bootstrap.Storage) error {
				runner, err := sweeper.NewRunner(sweeper.RunnerOptions{
					Sessions: st.Sessions,
					Config:   cfg.Sweeper,
					Logger:   deps.logger,
				})
				if err != nil {
					return err
				}
				n, err := runner.SweepOnce(ctx)
				if err != nil {
					return fmt.Errorf("sweep: %w", err)
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "removed %d expired sessions\n", n)
				return err
			})
		},
	}
}

func newRevokeCmd(deps cliDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <session-id>...",
		Short: "Delete sessions by id, logging their owners out",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStorage(cmd, deps, false, func(ctx context.Context, _ config.AppConfig, st *bootstrap.Storage) error {
				for _, id := range args {
					if err := st.Sessions.Delete(ctx, id); err != nil {
						return fmt.Errorf("revoke %s: %w", id, err)
					}
				}
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "revoked %d sessions\n", len(args))
				return err
			})
		},
	}
}

// sessionInfo is the inspect output. It never carries the CSRF state or the access token.
type sessionInfo struct {
	ID          string                `json:"id"`
	Found       bool                  `json:"found"`
	State       domainauth.LoginState `json:"state,omitempty"`
	ExpiresAt   *time.Time            `json:"expires_at,omitempty"`
	NextURL     string                `json:"next_url,omitempty"`
	UserID      string                `json:"user_id,omitempty"`
	DisplayName string                `json:"display_name,omitempty"`
}

func newInspectCmd(deps cliDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <session-id>",
		Short: "Show the login state of a session as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStorage(cmd, deps, false, func(ctx context.Context, _ config.AppConfig, st *bootstrap.Storage) error {
				info, err := inspectSession(ctx, st, args[0])
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(info)
			})
		},
	}
}

func inspectSession(ctx context.Context, st *bootstrap.Storage, id string) (sessionInfo, error) {
	info := sessionInfo{ID: id}
	rec, err := st.Sessions.Load(ctx, id)
	if err != nil {
		return info, fmt.Errorf("load session: %w", err)
	}
	if rec == nil {
		return info, nil
	}

	expiry := rec.Expiry.UTC()
	info.Found = true
	info.State = rec.Payload.State()
	info.ExpiresAt = &expiry
	info.NextURL = rec.Payload.NextURL
	info.UserID = rec.Payload.UserID

	if info.UserID != "" {
		user, err := st.Users.GetByID(ctx, info.UserID)
		if err != nil {
			return info, fmt.Errorf("load user: %w", err)
		}
		if user != nil {
			info.DisplayName = user.DisplayName
		}
	}
	return info, nil
}

package service

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/weeklydigest/sessionauth/config"
	obserrors "github.com/weeklydigest/sessionauth/internal/observability/errors"
	"github.com/weeklydigest/sessionauth/internal/observability/metrics"
	"github.com/weeklydigest/sessionauth/internal/ports"
)

const defaultSweepInterval = time.Minute

// SessionSweeperOptions groups dependencies for SessionSweeper.
type SessionSweeperOptions struct {
	Sessions ports.SessionStore   // Required: store to sweep
	Config   config.SweeperConfig // Required: sweep cadence
	Logger   *slog.Logger         // Optional: structured logger
	Metrics  *metrics.AuthMetrics // Optional: sweep counters
}

// SessionSweeper periodically removes expired session records.
// Readers already treat expired records as absent; sweeping only reclaims space.
type SessionSweeper struct {
	sessions ports.SessionStore
	config   config.SweeperConfig
	logger   *slog.Logger
	metrics  *metrics.AuthMetrics
}

// NewSessionSweeper constructs a new SessionSweeper.
func NewSessionSweeper(opts SessionSweeperOptions) (*SessionSweeper, error) {
	if opts.Sessions == nil {
		return nil, errors.New("SessionStore is required")
	}

	cfg := opts.Config
	if cfg.Interval <= 0 {
		cfg.Interval = defaultSweepInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = cfg.Interval
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "session_sweeper")
	logger.Debug("SessionSweeper initialized", "interval", cfg.Interval, "timeout", cfg.Timeout)

	return &SessionSweeper{
		sessions: opts.Sessions,
		config:   cfg,
		logger:   logger,
		metrics:  opts.Metrics,
	}, nil
}

// Run starts the sweep loop and runs until the context is cancelled.
// Returns nil on graceful shutdown (context.Canceled), error otherwise.
func (s *SessionSweeper) Run(ctx context.Context) error {
	s.logger.InfoContext(ctx, "starting session sweeper", "interval", s.config.Interval)

	// Add jitter to prevent thundering herd if multiple instances start together
	s.waitWithJitter(ctx)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	if _, err := s.SweepOnce(ctx); err != nil {
		s.logSweepError(ctx, err, "initial sweep")
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "session sweeper stopping", "reason", ctx.Err())
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()

		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil {
				s.logSweepError(ctx, err, "sweep")
			}
		}
	}
}

// SweepOnce runs a single DeleteExpired pass bounded by the configured timeout.
func (s *SessionSweeper) SweepOnce(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	start := time.Now()
	n, err := s.sessions.DeleteExpired(ctx)
	s.metrics.SessionsSwept(n, suppressContextCancellation(err))
	if err != nil {
		return n, fmt.Errorf("delete expired sessions: %w", err)
	}

	if n > 0 {
		s.logger.InfoContext(ctx, "deleted expired sessions", "count", n, "elapsed", time.Since(start))
	}
	return n, nil
}

// waitWithJitter adds a random delay up to 10% of the interval.
func (s *SessionSweeper) waitWithJitter(ctx context.Context) {
	maxJitter := int64(s.config.Interval / 10)
	if maxJitter <= 0 {
		return
	}

	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// If crypto/rand fails, skip jitter rather than failing startup
		s.logger.WarnContext(ctx, "failed to generate jitter, skipping", "error", err)
		return
	}

	// Use modulo on uint64 before converting to avoid overflow
	jitterNanos := binary.BigEndian.Uint64(buf[:]) % uint64(maxJitter)
	jitter := time.Duration(int64(jitterNanos)) // #nosec G115 - bounded by maxJitter which is int64

	select {
	case <-time.After(jitter):
	case <-ctx.Done():
	}
}

func (s *SessionSweeper) logSweepError(ctx context.Context, err error, label string) {
	if isContextCancellation(err) {
		s.logger.DebugContext(ctx, label+" cancelled by context", "error", err)
		return
	}
	s.logger.ErrorContext(ctx, label+" failed", "error", err, "error_class", obserrors.Classify(err))
}

func isContextCancellation(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func suppressContextCancellation(err error) error {
	if isContextCancellation(err) {
		return nil
	}
	return err
}

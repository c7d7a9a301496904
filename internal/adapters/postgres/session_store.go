// Package postgres implements the session and user stores over PostgreSQL through
// database/sql and the pgx stdlib driver.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	domainauth "github.com/weeklydigest/sessionauth/internal/domain/auth"
	apperrors "github.com/weeklydigest/sessionauth/internal/errors"
	"github.com/weeklydigest/sessionauth/internal/ports"
	"github.com/weeklydigest/sessionauth/internal/sessioncodec"
)

var _ ports.SessionStore = (*SessionStore)(nil)

// SessionStoreOptions groups dependencies for the PostgreSQL session store.
type SessionStoreOptions struct {
	Logger *slog.Logger
}

// SessionStore persists session records in the sessions table.
// Expiry checks run against the database clock (now()).
type SessionStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSessionStore creates a session store backed by db, which must already be migrated.
func NewSessionStore(db *sql.DB, opts SessionStoreOptions) *SessionStore {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionStore{db: db, logger: logger.With("component", "postgres_session_store")}
}

func (s *SessionStore) Save(ctx context.Context, rec domainauth.SessionRecord) error {
	if rec.ID == "" {
		return apperrors.ValidationField("id", "session ID cannot be empty")
	}
	payload, err := sessioncodec.Encode(rec.Payload)
	if err != nil {
		return apperrors.Internal("encode session payload: " + err.Error())
	}

	const q = `
		INSERT INTO sessions (id, payload, expiry) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET payload = EXCLUDED.payload, expiry = EXCLUDED.expiry`
	if _, err := s.db.ExecContext(ctx, q, rec.ID, payload, rec.Expiry.UTC()); err != nil {
		return apperrors.MapDBError(err, "save session")
	}
	return nil
}

func (s *SessionStore) Load(ctx context.Context, id string) (*domainauth.SessionRecord, error) {
	if id == "" {
		return nil, nil
	}

	const q = `SELECT payload, expiry FROM sessions WHERE id = $1 AND expiry > now()`
	var (
		payload []byte
		expiry  time.Time
	)
	err := s.db.QueryRowContext(ctx, q, id).Scan(&payload, &expiry)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.MapDBError(err, "load session")
	}

	p, err := sessioncodec.Decode(payload)
	if err != nil {
		s.logger.WarnContext(ctx, "discarding undecodable session payload", "error", err)
		return nil, nil
	}
	return &domainauth.SessionRecord{ID: id, Payload: p, Expiry: expiry.UTC()}, nil
}

func (s *SessionStore) Delete(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, id); err != nil {
		return apperrors.MapDBError(err, "delete session")
	}
	return nil
}

func (s *SessionStore) DeleteExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE expiry <= now()`)
	if err != nil {
		return 0, apperrors.MapDBError(err, "delete expired sessions")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, apperrors.MapDBError(err, "delete expired sessions")
	}
	return n, nil
}

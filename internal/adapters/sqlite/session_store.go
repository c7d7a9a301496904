package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	domainauth "github.com/weeklydigest/sessionauth/internal/domain/auth"
	apperrors "github.com/weeklydigest/sessionauth/internal/errors"
	"github.com/weeklydigest/sessionauth/internal/ports"
	"github.com/weeklydigest/sessionauth/internal/sessioncodec"
)

var _ ports.SessionStore = (*SessionStore)(nil)

// SessionStoreOptions groups dependencies for the SQLite session store.
type SessionStoreOptions struct {
	Logger *slog.Logger
}

// SessionStore persists session records in the sessions table.
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
	return &SessionStore{db: db, logger: logger.With("component", "sqlite_session_store")}
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
		INSERT INTO sessions (id, payload, expiry) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET payload = excluded.payload, expiry = excluded.expiry`
	if _, err := s.db.ExecContext(ctx, q, rec.ID, payload, toMillis(rec.Expiry)); err != nil {
		return apperrors.MapDBError(err, "save session")
	}
	return nil
}

func (s *SessionStore) Load(ctx context.Context, id string) (*domainauth.SessionRecord, error) {
	if id == "" {
		return nil, nil
	}

	q := `SELECT payload, expiry FROM sessions WHERE id = ? AND expiry > ` + nowMillis
	var (
		payload []byte
		expiry  int64
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
	return &domainauth.SessionRecord{ID: id, Payload: p, Expiry: fromMillis(expiry)}, nil
}

func (s *SessionStore) Delete(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return apperrors.MapDBError(err, "delete session")
	}
	return nil
}

func (s *SessionStore) DeleteExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE expiry <= `+nowMillis)
	if err != nil {
		return 0, apperrors.MapDBError(err, "delete expired sessions")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, apperrors.MapDBError(err, "delete expired sessions")
	}
	return n, nil
}

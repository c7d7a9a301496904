package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/weeklydigest/sessionauth/internal/cryptoutil"
	domainauth "github.com/weeklydigest/sessionauth/internal/domain/auth"
	apperrors "github.com/weeklydigest/sessionauth/internal/errors"
	"github.com/weeklydigest/sessionauth/internal/ports"
)

var _ ports.UserRepository = (*UserRepo)(nil)

// UserRepoOptions groups optional dependencies for UserRepo.
type UserRepoOptions struct {
	// Encryptor seals access tokens at rest. Defaults to cryptoutil.NoopEncryptor.
	Encryptor cryptoutil.Encryptor
}

// UserRepo persists users in the users table.
type UserRepo struct {
	db  *sql.DB
	enc cryptoutil.Encryptor
	now func() time.Time
}

// NewUserRepo creates a user repository backed by db.
func NewUserRepo(db *sql.DB, opts UserRepoOptions) *UserRepo {
	enc := opts.Encryptor
	if enc == nil {
		enc = cryptoutil.NoopEncryptor{}
	}
	return &UserRepo{db: db, enc: enc, now: time.Now}
}

func (r *UserRepo) Upsert(ctx context.Context, u domainauth.User) (domainauth.User, error) {
	if u.ID == "" {
		return domainauth.User{}, apperrors.ValidationField("external_id", "user ID cannot be empty")
	}
	sealed, err := r.enc.Encrypt([]byte(u.AccessToken), []byte(u.ID))
	if err != nil {
		return domainauth.User{}, apperrors.Wrap(err, apperrors.ErrCodeInternal, "seal access token")
	}

	const q = `
		INSERT INTO users (external_id, display_name, access_token, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(external_id) DO UPDATE SET
			display_name = excluded.display_name,
			access_token = excluded.access_token,
			updated_at   = excluded.updated_at
		RETURNING external_id, display_name, access_token, created_at, updated_at`

	now := toMillis(r.now())
	out, err := scanUser(r.db.QueryRowContext(ctx, q, u.ID, u.DisplayName, sealed, now, now))
	if err != nil {
		return domainauth.User{}, apperrors.MapDBError(err, "upsert user")
	}
	out.AccessToken = u.AccessToken
	return out, nil
}

func (r *UserRepo) GetByID(ctx context.Context, id string) (*domainauth.User, error) {
	const q = `
		SELECT external_id, display_name, access_token, created_at, updated_at
		FROM users WHERE external_id = ?`
	u, err := scanUser(r.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.MapDBError(err, "get user")
	}
	token, err := r.enc.Decrypt(u.AccessToken, []byte(u.ID))
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "open access token")
	}
	u.AccessToken = string(token)
	return &u, nil
}

// scanUser leaves AccessToken in its stored, sealed form.
func scanUser(row *sql.Row) (domainauth.User, error) {
	var (
		u                    domainauth.User
		createdAt, updatedAt int64
	)
	if err := row.Scan(&u.ID, &u.DisplayName, &u.AccessToken, &createdAt, &updatedAt); err != nil {
		return domainauth.User{}, err
	}
	u.CreatedAt = fromMillis(createdAt)
	u.UpdatedAt = fromMillis(updatedAt)
	return u, nil
}

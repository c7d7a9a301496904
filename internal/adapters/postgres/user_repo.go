package postgres

import (
	"context"
	"database/sql"
	"errors"

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
}

// NewUserRepo creates a user repository backed by db.
func NewUserRepo(db *sql.DB, opts UserRepoOptions) *UserRepo {
	enc := opts.Encryptor
	if enc == nil {
		enc = cryptoutil.NoopEncryptor{}
	}
	return &UserRepo{db: db, enc: enc}
}

// Upsert inserts the user or, when the external id already exists, replaces the display
// name and access token in the same statement. created_at is preserved.
func (r *UserRepo) Upsert(ctx context.Context, u domainauth.User) (domainauth.User, error) {
	if u.ID == "" {
		return domainauth.User{}, apperrors.ValidationField("external_id", "user ID cannot be empty")
	}
	sealed, err := r.enc.Encrypt([]byte(u.AccessToken), []byte(u.ID))
	if err != nil {
		return domainauth.User{}, apperrors.Wrap(err, apperrors.ErrCodeInternal, "seal access token")
	}

	const q = `
		INSERT INTO users (external_id, display_name, access_token)
		VALUES ($1, $2, $3)
		ON CONFLICT (external_id) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			access_token = EXCLUDED.access_token,
			updated_at   = now()
		RETURNING external_id, display_name, created_at, updated_at`

	out := domainauth.User{AccessToken: u.AccessToken}
	err = r.db.QueryRowContext(ctx, q, u.ID, u.DisplayName, sealed).
		Scan(&out.ID, &out.DisplayName, &out.CreatedAt, &out.UpdatedAt)
	if err != nil {
		return domainauth.User{}, apperrors.MapDBError(err, "upsert user")
	}
	return out, nil
}

func (r *UserRepo) GetByID(ctx context.Context, id string) (*domainauth.User, error) {
	const q = `
		SELECT external_id, display_name, access_token, created_at, updated_at
		FROM users WHERE external_id = $1`

	var (
		u      domainauth.User
		sealed string
	)
	err := r.db.QueryRowContext(ctx, q, id).
		Scan(&u.ID, &u.DisplayName, &sealed, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.MapDBError(err, "get user")
	}
	token, err := r.enc.Decrypt(sealed, []byte(u.ID))
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "open access token")
	}
	u.AccessToken = string(token)
	return &u, nil
}

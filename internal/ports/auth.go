// Package ports defines interfaces (hexagonal ports) for auth-related behavior.
// Implementations live in internal/adapters; orchestration in internal/service.
package ports

import (
	"context"

	domainauth "github.com/weeklydigest/sessionauth/internal/domain/auth"
)

// SessionStore persists server-side session records.
//
// Load returns (nil, nil) when the record is absent, expired or its payload cannot be
// decoded. Delete is idempotent. DeleteExpired removes every record whose expiry has
// passed and reports how many were removed.
type SessionStore interface {
	Save(ctx context.Context, rec domainauth.SessionRecord) error
	Load(ctx context.Context, id string) (*domainauth.SessionRecord, error)
	Delete(ctx context.Context, id string) error
	DeleteExpired(ctx context.Context) (int64, error)
}

// UserRepository stores local user records keyed by the provider-assigned id.
type UserRepository interface {
	// Upsert creates the user or replaces display name and access token in one statement.
	Upsert(ctx context.Context, u domainauth.User) (domainauth.User, error)
	// GetByID returns (nil, nil) when no user has the id.
	GetByID(ctx context.Context, id string) (*domainauth.User, error)
}

// TokenExchanger builds the provider authorization URL and trades codes for access tokens.
type TokenExchanger interface {
	AuthorizeURL(state string) string
	Exchange(ctx context.Context, code string) (accessToken string, err error)
}

// IdentityResolver asks the provider who owns an access token.
type IdentityResolver interface {
	Resolve(ctx context.Context, accessToken string) (domainauth.RemoteIdentity, error)
}

// StateGuard mints and verifies CSRF state values.
type StateGuard interface {
	Mint() (string, error)
	Verify(expected, received string) bool
}

// AdminPolicy decides whether a user gets administrative access.
type AdminPolicy interface {
	IsAdmin(u *domainauth.User) bool
}

package httpx

import (
	"context"

	domainauth "github.com/weeklydigest/sessionauth/internal/domain/auth"
)

// userKey is an unexported context key type to avoid collisions across packages.
// Centralized in this file so all handlers/middleware use the same key.
type userKey struct{}

// requestUser is what the auth middleware resolved for the request.
type requestUser struct {
	user    *domainauth.User
	isAdmin bool
}

// SetUserInContext returns a child context that carries the given user.
// If user is nil, the original ctx is returned unchanged.
func SetUserInContext(ctx context.Context, user *domainauth.User, isAdmin bool) context.Context {
	if user == nil {
		return ctx
	}
	return context.WithValue(ctx, userKey{}, requestUser{user: user, isAdmin: isAdmin})
}

// CurrentUserFromContext returns the authenticated user, or nil for anonymous requests.
// Downstream handlers use it as the single source of the current user.
func CurrentUserFromContext(ctx context.Context) *domainauth.User {
	if ru, ok := ctx.Value(userKey{}).(requestUser); ok {
		return ru.user
	}
	return nil
}

// IsAdminFromContext reports whether the authenticated user has administrative access.
func IsAdminFromContext(ctx context.Context) bool {
	ru, ok := ctx.Value(userKey{}).(requestUser)
	return ok && ru.isAdmin
}

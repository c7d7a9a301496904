// Package mocks provides gomock implementations of the auth ports.
//
// This package uses go.uber.org/mock (gomock) to generate type-safe mocks for the
// interfaces in internal/ports. Hand-written in-memory doubles live in internal/mocks/auth.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	exchanger := mocks.NewMockTokenExchanger(ctrl)
//	exchanger.EXPECT().Exchange(gomock.Any(), "code").Return("token", nil)
package mocks

// Generate mocks for the session store, user repository, token exchanger and identity resolver.
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=ports_mock.go github.com/weeklydigest/sessionauth/internal/ports IdentityResolver,SessionStore,TokenExchanger,UserRepository

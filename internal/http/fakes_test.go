package httpx

import (
	"context"

	domainauth "github.com/weeklydigest/sessionauth/internal/domain/auth"
	"github.com/weeklydigest/sessionauth/internal/service"
)

// fakeAuthService is a scripted AuthServiceInterface for handler tests.
type fakeAuthService struct {
	startLogin    func(ctx context.Context, in service.StartLoginInput) (*service.StartLoginResult, error)
	completeLogin func(ctx context.Context, in service.CompleteLoginInput) (*service.CompleteLoginResult, error)
	users         map[string]*domainauth.User
	currentErr    error
	admins        map[string]bool

	lastStart    service.StartLoginInput
	lastComplete service.CompleteLoginInput
	loggedOut    []string
	currentCalls int
}

var _ AuthServiceInterface = (*fakeAuthService)(nil)

func (f *fakeAuthService) StartLogin(ctx context.Context, in service.StartLoginInput) (*service.StartLoginResult, error) {
	f.lastStart = in
	return f.startLogin(ctx, in)
}

func (f *fakeAuthService) CompleteLogin(ctx context.Context, in service.CompleteLoginInput) (*service.CompleteLoginResult, error) {
	f.lastComplete = in
	return f.completeLogin(ctx, in)
}

func (f *fakeAuthService) CurrentUser(_ context.Context, sessionID string) (*domainauth.User, error) {
	f.currentCalls++
	if f.currentErr != nil {
		return nil, f.currentErr
	}
	return f.users[sessionID], nil
}

func (f *fakeAuthService) Logout(_ context.Context, sessionID string) error {
	f.loggedOut = append(f.loggedOut, sessionID)
	return nil
}

func (f *fakeAuthService) IsAdmin(u *domainauth.User) bool {
	return u != nil && f.admins[u.ID]
}

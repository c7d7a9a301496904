// Package auth contains simple hand-written test doubles for auth ports.
// These are lightweight and suitable for unit tests without codegen.
package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	domainauth "github.com/weeklydigest/sessionauth/internal/domain/auth"
	"github.com/weeklydigest/sessionauth/internal/ports"
)

// Ensure compile-time conformance to ports.
var (
	_ ports.TokenExchanger   = (*MockProvider)(nil)
	_ ports.IdentityResolver = (*MockProvider)(nil)
	_ ports.SessionStore     = (*MemorySessionStore)(nil)
	_ ports.UserRepository   = (*MemoryUserRepository)(nil)
)

// MockProvider simulates an OAuth2 identity provider with deterministic tokens.
type MockProvider struct {
	ExchangeFunc func(ctx context.Context, code string) (string, error)
	ResolveFunc  func(ctx context.Context, accessToken string) (domainauth.RemoteIdentity, error)

	// Deterministic values for predictable testing
	AuthURL     string
	TokenPrefix string
	Identity    domainauth.RemoteIdentity

	mu            sync.Mutex
	exchangeCalls int
	resolveCalls  int
}

// NewMockProvider creates a MockProvider with sensible defaults.
func NewMockProvider() *MockProvider {
	return &MockProvider{
		AuthURL:     "https://mock-idp/authorize",
		TokenPrefix: "token",
		Identity:    domainauth.RemoteIdentity{ID: "mock-user-1", DisplayName: "mockuser"},
	}
}

// AuthorizeURL appends the state to the configured authorization URL.
func (m *MockProvider) AuthorizeURL(state string) string {
	authURL := m.AuthURL
	if authURL == "" {
		authURL = "https://mock-idp/authorize"
	}
	return authURL + "?response_type=code&state=" + state
}

// Exchange returns "<prefix>-<code>" unless ExchangeFunc is set.
func (m *MockProvider) Exchange(ctx context.Context, code string) (string, error) {
	m.mu.Lock()
	m.exchangeCalls++
	m.mu.Unlock()

	if m.ExchangeFunc != nil {
		return m.ExchangeFunc(ctx, code)
	}
	prefix := m.TokenPrefix
	if prefix == "" {
		prefix = "token"
	}
	return fmt.Sprintf("%s-%s", prefix, code), nil
}

// Resolve returns the configured identity unless ResolveFunc is set.
func (m *MockProvider) Resolve(ctx context.Context, accessToken string) (domainauth.RemoteIdentity, error) {
	m.mu.Lock()
	m.resolveCalls++
	m.mu.Unlock()

	if m.ResolveFunc != nil {
		return m.ResolveFunc(ctx, accessToken)
	}
	id := m.Identity
	if id.ID == "" {
		id = domainauth.RemoteIdentity{ID: "mock-user-1", DisplayName: "mockuser"}
	}
	return id, nil
}

// ExchangeCalls reports how many times Exchange ran.
func (m *MockProvider) ExchangeCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.exchangeCalls
}

// ResolveCalls reports how many times Resolve ran.
func (m *MockProvider) ResolveCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resolveCalls
}

// MemorySessionStore is an in-memory session store for unit tests.
// Now may be replaced to move the store's clock.
type MemorySessionStore struct {
	Now func() time.Time

	mu       sync.Mutex
	sessions map[string]domainauth.SessionRecord
}

// NewMemorySessionStore creates a new in-memory session store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		Now:      time.Now,
		sessions: make(map[string]domainauth.SessionRecord),
	}
}

func (m *MemorySessionStore) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

func (m *MemorySessionStore) Save(_ context.Context, rec domainauth.SessionRecord) error {
	if rec.ID == "" {
		return errors.New("session ID cannot be empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[rec.ID] = rec
	return nil
}

func (m *MemorySessionStore) Load(_ context.Context, id string) (*domainauth.SessionRecord, error) {
	if id == "" {
		return nil, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.sessions[id]
	if !ok || rec.Expired(m.now()) {
		return nil, nil
	}
	return &rec, nil
}

func (m *MemorySessionStore) Delete(_ context.Context, id string) error {
	if id == "" {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

func (m *MemorySessionStore) DeleteExpired(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	var n int64
	for id, rec := range m.sessions {
		if rec.Expired(now) {
			delete(m.sessions, id)
			n++
		}
	}
	return n, nil
}

// Len reports how many records are held, expired ones included.
func (m *MemorySessionStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// IDs returns the ids of all held records.
func (m *MemorySessionStore) IDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		out = append(out, id)
	}
	return out
}

// MemoryUserRepository is an in-memory user repository for unit tests.
type MemoryUserRepository struct {
	mu    sync.Mutex
	users map[string]domainauth.User
}

// NewMemoryUserRepository creates an empty repository.
func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{users: make(map[string]domainauth.User)}
}

func (m *MemoryUserRepository) Upsert(_ context.Context, u domainauth.User) (domainauth.User, error) {
	if u.ID == "" {
		return domainauth.User{}, errors.New("user ID cannot be empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	if existing, ok := m.users[u.ID]; ok {
		existing.DisplayName = u.DisplayName
		existing.AccessToken = u.AccessToken
		existing.UpdatedAt = now
		m.users[u.ID] = existing
		return existing, nil
	}
	u.CreatedAt, u.UpdatedAt = now, now
	m.users[u.ID] = u
	return u, nil
}

func (m *MemoryUserRepository) GetByID(_ context.Context, id string) (*domainauth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

// Len reports how many users are stored.
func (m *MemoryUserRepository) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.users)
}

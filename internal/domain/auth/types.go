// Package auth contains domain-level types for authentication and sessions.
// It is pure and free of framework/adapter concerns.
package auth

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

// PayloadVersion is the current shape version written into every session payload.
const PayloadVersion = 1

// redacted replaces secret values in every human-readable rendering.
const redacted = "[redacted]"

// LoginState is the per-session position in the login state machine.
type LoginState string

const (
	StateAnonymous     LoginState = "anonymous"
	StateLoginPending  LoginState = "login_pending"
	StateAuthenticated LoginState = "authenticated"
)

// User is the local record of an external identity.
// AccessToken is a provider-scoped secret; it is never rendered by String, GoString,
// Format, LogValue or MarshalJSON.
type User struct {
	ID          string
	DisplayName string
	AccessToken string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// String implements fmt.Stringer without the access token.
func (u User) String() string {
	return fmt.Sprintf("User{ID:%q DisplayName:%q AccessToken:%s}", u.ID, u.DisplayName, redacted)
}

// GoString implements fmt.GoStringer for %#v.
func (u User) GoString() string {
	return fmt.Sprintf("auth.User{ID:%q, DisplayName:%q, AccessToken:%q}", u.ID, u.DisplayName, redacted)
}

// Format routes every verb through String/GoString so %+v cannot walk the struct fields.
func (u User) Format(f fmt.State, verb rune) {
	if verb == 'v' && f.Flag('#') {
		_, _ = fmt.Fprint(f, u.GoString())
		return
	}
	_, _ = fmt.Fprint(f, u.String())
}

// LogValue implements slog.LogValuer.
func (u User) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("id", u.ID),
		slog.String("display_name", u.DisplayName),
	)
}

// MarshalJSON omits the access token from any JSON rendering.
func (u User) MarshalJSON() ([]byte, error) {
	type public struct {
		ID          string `json:"id"`
		DisplayName string `json:"display_name"`
	}
	return json.Marshal(public{ID: u.ID, DisplayName: u.DisplayName})
}

// RemoteIdentity is what the identity provider reports about the caller.
type RemoteIdentity struct {
	ID          string
	DisplayName string
}

// Payload is the facade-owned content of a session record.
// CSRFState and NextURL together form the pending login; UserID binds an authenticated user.
type Payload struct {
	Version   int    `cbor:"v"`
	CSRFState string `cbor:"csrf,omitempty"`
	NextURL   string `cbor:"next,omitempty"`
	UserID    string `cbor:"uid,omitempty"`
}

// State derives the login state from the payload fields.
func (p Payload) State() LoginState {
	switch {
	case p.UserID != "":
		return StateAuthenticated
	case p.CSRFState != "":
		return StateLoginPending
	default:
		return StateAnonymous
	}
}

// SessionRecord is the server-side record we persist per browser session.
// ID is an opaque session identifier carried in the session cookie.
type SessionRecord struct {
	ID      string
	Payload Payload
	Expiry  time.Time
}

// Expired reports whether the record is no longer valid at now.
func (r SessionRecord) Expired(now time.Time) bool {
	return !r.Expiry.After(now)
}

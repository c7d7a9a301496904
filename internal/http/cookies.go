package httpx

import (
	"net/http"
	"strings"
	"time"
)

// DefaultSessionCookie is the cookie name used when none is configured.
const DefaultSessionCookie = "session_id"

// SessionCookie writes and reads the opaque session id cookie.
type SessionCookie struct {
	Name   string
	Domain string
	// Now is used to compute Max-Age; defaults to time.Now.
	Now func() time.Time
}

func (c SessionCookie) name() string {
	if c.Name == "" {
		return DefaultSessionCookie
	}
	return c.Name
}

// Read returns the session id presented by the browser, or "".
func (c SessionCookie) Read(r *http.Request) string {
	ck, err := r.Cookie(c.name())
	if err != nil {
		return ""
	}
	return ck.Value
}

// Set writes the session cookie so that it expires with the server-side record.
func (c SessionCookie) Set(w http.ResponseWriter, r *http.Request, id string, expiresAt time.Time) {
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	maxAge := int(expiresAt.Sub(now()).Seconds())
	if maxAge < 1 {
		maxAge = 1
	}
	http.SetCookie(w, &http.Cookie{
		Name:     c.name(),
		Value:    id,
		Path:     "/",
		Domain:   c.Domain,
		HttpOnly: true,
		Secure:   isSecureRequest(r),
		SameSite: http.SameSiteLaxMode,
		MaxAge:   maxAge,
	})
}

// Clear expires the session cookie.
// It mirrors key attributes (Secure, Path, Domain, SameSite) used when setting cookies
// to maximize compatibility across browsers during deletion.
func (c SessionCookie) Clear(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.name(),
		Value:    "",
		Path:     "/",
		Domain:   c.Domain,
		HttpOnly: true,
		Secure:   isSecureRequest(r),
		MaxAge:   -1,
		Expires:  time.Unix(0, 0).UTC(),
		SameSite: http.SameSiteLaxMode,
	})
}

func isSecureRequest(r *http.Request) bool {
	return r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}

package models

import "time"

// SessionKind distinguishes the two credential modes.
type SessionKind string

const (
	// SessionKindAPIKey is a stateless session derived from the configured
	// API key. It never expires.
	SessionKindAPIKey SessionKind = "apikey"
	// SessionKindCookie is a stateful session obtained through browser
	// login (or manual injection). It expires after a fixed TTL.
	SessionKindCookie SessionKind = "cookie"
)

// Session is the acquired right to call the helpdesk API.
type Session struct {
	Kind SessionKind `json:"kind"`
	// Cookies is the concatenated cookie header value
	// ("name=value; name=value; ...") for cookie sessions.
	Cookies string `json:"cookies,omitempty"`
	// AuthHeader is the full Authorization header value for API-key sessions.
	AuthHeader string    `json:"auth_header,omitempty"`
	AcquiredAt time.Time `json:"acquired_at"`
}

// IsExpired reports whether the session has aged past ttl. API-key
// sessions never expire.
func (s *Session) IsExpired(ttl time.Duration) bool {
	if s == nil {
		return true
	}
	if s.Kind == SessionKindAPIKey {
		return false
	}
	return time.Since(s.AcquiredAt) > ttl
}

// BrowserCookie is a single browser cookie persisted between runs so a
// later session can be restored without re-running login or re-clearing
// a verification challenge.
type BrowserCookie struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Domain string `json:"domain,omitempty"`
	Path   string `json:"path,omitempty"`
}

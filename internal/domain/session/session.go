// Package session contains the domain model of an authenticated session as
// handed out by the remote identity provider: the principal, the token pair,
// and the change events the provider emits.
package session

import (
	"strings"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// PRINCIPAL
// ══════════════════════════════════════════════════════════════════════════════

// User is the projection of the identity provider's principal consumed by
// the dashboard. The provider attaches arbitrary metadata; only the role
// string is interpreted here.
type User struct {
	// ID is the provider-assigned user id.
	ID string

	// Email is the sign-in address.
	Email string

	// Role is the role claim checked by the gate, e.g. "student".
	Role string

	// FullName is the display name, when the provider carries one.
	FullName string

	// Metadata is the remaining provider metadata, passed through untouched.
	Metadata map[string]any
}

// HasRole reports whether the user's role claim equals the required role.
// Comparison is an exact, case-sensitive equality per the gate's contract.
func (u *User) HasRole(required string) bool {
	if u == nil {
		return false
	}
	return u.Role == required
}

// ══════════════════════════════════════════════════════════════════════════════
// SESSION
// ══════════════════════════════════════════════════════════════════════════════

// Session is one authenticated session: the token pair plus the principal it
// belongs to. Sessions are transient; nothing here is persisted.
type Session struct {
	// AccessToken is the bearer token presented to the backends.
	AccessToken string

	// RefreshToken exchanges for a new access token when the current one
	// expires.
	RefreshToken string

	// ExpiresAt is when the access token stops being accepted.
	ExpiresAt time.Time

	// User is the authenticated principal.
	User *User
}

// Expired reports whether the access token has expired at the given instant.
// A zero ExpiresAt means the provider did not report an expiry; such a
// session is treated as live.
func (s *Session) Expired(now time.Time) bool {
	if s == nil {
		return true
	}
	if s.ExpiresAt.IsZero() {
		return false
	}
	return !now.Before(s.ExpiresAt)
}

// ExpiresWithin reports whether the session expires within d of now.
// Used by the watcher to schedule proactive refresh.
func (s *Session) ExpiresWithin(now time.Time, d time.Duration) bool {
	if s == nil {
		return true
	}
	if s.ExpiresAt.IsZero() {
		return false
	}
	return !now.Add(d).Before(s.ExpiresAt)
}

// Clone returns a deep copy so callers cannot mutate the gate's state.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	clone := *s
	if s.User != nil {
		u := *s.User
		if s.User.Metadata != nil {
			u.Metadata = make(map[string]any, len(s.User.Metadata))
			for k, v := range s.User.Metadata {
				u.Metadata[k] = v
			}
		}
		clone.User = &u
	}
	return &clone
}

// ══════════════════════════════════════════════════════════════════════════════
// CHANGE EVENTS
// ══════════════════════════════════════════════════════════════════════════════

// EventType identifies a session-change notification from the provider.
type EventType string

const (
	// EventSignedIn fires when a session is established.
	EventSignedIn EventType = "signed_in"

	// EventSignedOut fires when the session ends, voluntarily or forced.
	EventSignedOut EventType = "signed_out"

	// EventTokenRefreshed fires when the access token is rotated. The
	// principal is unchanged but the token pair is new.
	EventTokenRefreshed EventType = "token_refreshed"
)

// IsValid reports whether the event type is one of the known kinds.
func (t EventType) IsValid() bool {
	switch t {
	case EventSignedIn, EventSignedOut, EventTokenRefreshed:
		return true
	}
	return false
}

// Listener receives session-change notifications. The session argument is
// nil for EventSignedOut.
type Listener func(event EventType, s *Session)

// Subscription is a live registration of a Listener. Closing it guarantees
// the listener receives no further notifications; Close is idempotent and
// safe on all exit paths.
type Subscription interface {
	Close()
}

// RoleFromMetadata extracts a role string from provider metadata, falling
// back to the explicit claim when metadata carries none.
func RoleFromMetadata(metadata map[string]any, claim string) string {
	if metadata != nil {
		if v, ok := metadata["role"]; ok {
			if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
				return s
			}
		}
	}
	return claim
}

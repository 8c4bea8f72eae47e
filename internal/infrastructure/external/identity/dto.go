// Package identity implements the remote identity provider client. It
// handles sign-in, sign-out, token refresh, and the session-change
// notifications the auth gate subscribes to.
package identity

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/cohort-hub/student-dashboard/internal/domain/session"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROVIDER DTOs
// ══════════════════════════════════════════════════════════════════════════════

// UserDTO is the principal as the provider returns it.
type UserDTO struct {
	// ID is the provider-assigned user id.
	ID string `json:"id"`

	// Email is the sign-in address.
	Email string `json:"email"`

	// Role is the top-level role claim.
	Role string `json:"role,omitempty"`

	// UserMetadata carries application-managed fields, including the
	// dashboard's role override and the display name.
	UserMetadata map[string]any `json:"user_metadata,omitempty"`
}

// SessionDTO is the token grant response.
type SessionDTO struct {
	// AccessToken is the bearer token.
	AccessToken string `json:"access_token"`

	// TokenType is always "bearer".
	TokenType string `json:"token_type"`

	// ExpiresIn is the access token lifetime in seconds.
	ExpiresIn int `json:"expires_in"`

	// RefreshToken exchanges for the next token pair.
	RefreshToken string `json:"refresh_token"`

	// User is the authenticated principal.
	User *UserDTO `json:"user,omitempty"`
}

// APIErrorDTO is the provider's error body shape.
type APIErrorDTO struct {
	// Status is the HTTP status the error arrived with.
	Status int `json:"-"`

	// Code is the provider's error code.
	Code string `json:"error,omitempty"`

	// Message is the human-readable description.
	Message string `json:"error_description,omitempty"`

	// Msg is the alternate message key some endpoints use.
	Msg string `json:"msg,omitempty"`
}

// Error implements the error interface.
func (e *APIErrorDTO) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Msg
	}
	if e.Code != "" {
		return fmt.Sprintf("identity provider error %d (%s): %s", e.Status, e.Code, msg)
	}
	return fmt.Sprintf("identity provider error %d: %s", e.Status, msg)
}

// ══════════════════════════════════════════════════════════════════════════════
// MAPPING
// ══════════════════════════════════════════════════════════════════════════════

// userFromDTO maps the provider principal to the domain projection. The
// role claim prefers user metadata over the provider's top-level role,
// which the provider sets to a generic value for every signed-in user.
func userFromDTO(dto *UserDTO) *session.User {
	if dto == nil {
		return nil
	}

	fullName := ""
	if dto.UserMetadata != nil {
		if v, ok := dto.UserMetadata["full_name"].(string); ok {
			fullName = v
		}
	}

	return &session.User{
		ID:       dto.ID,
		Email:    dto.Email,
		Role:     session.RoleFromMetadata(dto.UserMetadata, dto.Role),
		FullName: fullName,
		Metadata: dto.UserMetadata,
	}
}

// sessionFromDTO maps a token grant to a domain session. Expiry prefers the
// access token's exp claim; ExpiresIn is the fallback when the token is not
// a parseable JWT.
func sessionFromDTO(dto *SessionDTO, now time.Time) *session.Session {
	if dto == nil {
		return nil
	}

	expiresAt, ok := accessTokenExpiry(dto.AccessToken)
	if !ok && dto.ExpiresIn > 0 {
		expiresAt = now.Add(time.Duration(dto.ExpiresIn) * time.Second)
	}

	return &session.Session{
		AccessToken:  dto.AccessToken,
		RefreshToken: dto.RefreshToken,
		ExpiresAt:    expiresAt,
		User:         userFromDTO(dto.User),
	}
}

// accessTokenExpiry reads the exp claim without verifying the signature.
// Trust in the principal comes from the provider's /user endpoint; the
// claim is only used to schedule refresh.
func accessTokenExpiry(token string) (time.Time, bool) {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

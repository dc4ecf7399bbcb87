package schema

import (
	"fmt"
	"time"
)

// ProfilesTable holds the one profile record provisioned for every account.
const ProfilesTable = "profiles"

// User represents an authenticated principal on the hosted backend.
type User struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	LastSignIn  time.Time `json:"last_sign_in,omitempty"`
}

// Session is the opaque handle the backend hands out on sign-in.
type Session struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
	User        *User     `json:"user"`
}

// Expired reports whether the session is past its expiry at now.
func (s *Session) Expired(now time.Time) bool {
	return s == nil || (!s.ExpiresAt.IsZero() && now.After(s.ExpiresAt))
}

// Credentials are passed through to the backend's auth endpoints.
type Credentials struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name,omitempty"`
}

// AuthResult is returned by sign-up and sign-in.
type AuthResult struct {
	User    *User    `json:"user"`
	Session *Session `json:"session"`
}

// AuthError is the structured failure for auth calls.
type AuthError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth %s: %s", e.Code, e.Message)
}

// Auth error codes.
const (
	AuthInvalidCredentials = "invalid_credentials"
	AuthUserExists         = "user_exists"
	AuthInvalidRequest     = "invalid_request"
	AuthNotAuthenticated   = "not_authenticated"
	AuthUnavailable        = "unavailable"
)

// AuthEventType names an auth state transition.
type AuthEventType string

const (
	AuthSignedIn  AuthEventType = "SIGNED_IN"
	AuthSignedOut AuthEventType = "SIGNED_OUT"
)

// AuthEvent is delivered to auth-state listeners.
type AuthEvent struct {
	Type    AuthEventType `json:"type"`
	Session *Session      `json:"session,omitempty"`
}

// Profile is the default record provisioned on sign-up.
type Profile struct {
	ID          string `json:"id,omitempty"`
	UserID      string `json:"user_id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	CreatedAt   string `json:"created_at,omitempty"`
	UpdatedAt   string `json:"updated_at,omitempty"`
}

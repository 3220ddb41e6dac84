package domain

import "context"

// AuthEventType identifies a lifecycle event delivered by the auth backend.
type AuthEventType string

const (
	EventSignedIn       AuthEventType = "SIGNED_IN"
	EventSignedOut      AuthEventType = "SIGNED_OUT"
	EventTokenRefreshed AuthEventType = "TOKEN_REFRESHED"
	EventUserUpdated    AuthEventType = "USER_UPDATED"
)

// AuthEvent is a lifecycle event with an attached session payload.
// Session is nil for SIGNED_OUT.
type AuthEvent struct {
	Type    AuthEventType `json:"event"`
	Session *Credential   `json:"session,omitempty"`
}

// AuthBackend is the contract against the external auth service.
type AuthBackend interface {
	// RefreshSession exchanges the refresh handle for a fresh credential.
	RefreshSession(ctx context.Context, refreshToken string) (*Credential, error)
	// SignOut revokes the session server-side.
	SignOut(ctx context.Context, accessToken string) error
}
